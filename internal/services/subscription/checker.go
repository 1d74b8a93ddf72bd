package subscription

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/VladKovDev/subgate-bot/internal/config"
	"github.com/VladKovDev/subgate-bot/internal/metrics"
	"github.com/VladKovDev/subgate-bot/pkg/logger"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// MemberGetter is the subset of *tgbotapi.BotAPI used for membership lookups.
type MemberGetter interface {
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
}

// Channel is a chat a user has to be a member of.
type Channel struct {
	Chat      string
	InviteURL string
}

// JoinURL is the link shown on the join button.
func (c Channel) JoinURL() string {
	if name, ok := strings.CutPrefix(c.Chat, "@"); ok && c.InviteURL == "" {
		return "https://t.me/" + name
	}
	return c.InviteURL
}

// Checker answers whether a user belongs to every required channel.
type Checker struct {
	bot      MemberGetter
	channels []Channel
	logger   logger.Logger
}

func NewChecker(bot MemberGetter, cfg config.SubscriptionConfig, log logger.Logger) *Checker {
	channels := make([]Channel, 0, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		chat := strings.TrimSpace(ch.Chat)
		if chat == "" {
			continue
		}
		channels = append(channels, Channel{Chat: chat, InviteURL: ch.InviteURL})
	}

	return &Checker{
		bot:      bot,
		channels: channels,
		logger:   log.Named("subscription"),
	}
}

// Channels returns the configured channels in order.
func (c *Checker) Channels() []Channel {
	return c.channels
}

// IsSubscribed reports whether userID is a member of every channel.
// Lookup failures count as not subscribed.
func (c *Checker) IsSubscribed(ctx context.Context, userID int64) bool {
	for _, ch := range c.channels {
		if ctx.Err() != nil {
			metrics.IncSubscriptionCheck("error")
			return false
		}

		ok, err := c.isMember(ch, userID)
		if err != nil {
			c.logger.Debug("membership lookup failed",
				zap.Int64("user_id", userID),
				zap.String("chat", ch.Chat),
				zap.Error(err))
			metrics.IncSubscriptionCheck("error")
			return false
		}
		if !ok {
			metrics.IncSubscriptionCheck("not_subscribed")
			return false
		}
	}

	metrics.IncSubscriptionCheck("subscribed")
	return true
}

func (c *Checker) isMember(ch Channel, userID int64) (bool, error) {
	chatCfg := tgbotapi.ChatConfigWithUser{UserID: userID}
	if strings.HasPrefix(ch.Chat, "@") {
		chatCfg.SuperGroupUsername = ch.Chat
	} else {
		id, err := strconv.ParseInt(ch.Chat, 10, 64)
		if err != nil {
			return false, fmt.Errorf("invalid chat %q: %w", ch.Chat, err)
		}
		chatCfg.ChatID = id
	}

	member, err := c.bot.GetChatMember(tgbotapi.GetChatMemberConfig{ChatConfigWithUser: chatCfg})
	if err != nil {
		return false, err
	}

	switch member.Status {
	case "creator", "administrator", "member":
		return true, nil
	default:
		return false, nil
	}
}
