package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	domainBroadcast "github.com/VladKovDev/subgate-bot/internal/domain/broadcast"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Bot API descriptions for recipients the bot can never reach again.
const (
	descBlocked     = "bot was blocked by the user"
	descDeactivated = "user is deactivated"
)

// minFloodWait is used when a 429 carries no retry_after hint.
const minFloodWait = time.Second

// Requester is the subset of *tgbotapi.BotAPI used for raw method calls.
type Requester interface {
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Copier delivers a broadcast template with the copyMessage method.
type Copier struct {
	bot Requester
}

func NewCopier(bot Requester) *Copier {
	return &Copier{bot: bot}
}

// DeliverCopy copies the template into the recipient's private chat.
func (c *Copier) DeliverCopy(ctx context.Context, tmpl domainBroadcast.Template, recipientID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cp := tgbotapi.NewCopyMessage(recipientID, tmpl.ChatID, tmpl.MessageID)
	if _, err := c.bot.Request(cp); err != nil {
		return ClassifyError(err)
	}
	return nil
}

// ClassifyError maps a Bot API failure to the broadcast error taxonomy.
// Errors that do not match a known class are returned unchanged.
func ClassifyError(err error) error {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}

	if apiErr.Code == http.StatusTooManyRequests || apiErr.RetryAfter > 0 {
		wait := time.Duration(apiErr.RetryAfter) * time.Second
		if wait < minFloodWait {
			wait = minFloodWait
		}
		return &domainBroadcast.RateLimitError{Wait: wait, Err: err}
	}

	if apiErr.Code == http.StatusForbidden {
		desc := strings.ToLower(apiErr.Message)
		switch {
		case strings.Contains(desc, descBlocked):
			return fmt.Errorf("%w: %s", domainBroadcast.ErrRecipientBlocked, apiErr.Message)
		case strings.Contains(desc, descDeactivated):
			return fmt.Errorf("%w: %s", domainBroadcast.ErrRecipientDeactivated, apiErr.Message)
		}
	}

	return err
}
