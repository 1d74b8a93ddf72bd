package telegram

import (
	"context"
	"fmt"

	"github.com/VladKovDev/subgate-bot/internal/domain/command"
	"github.com/VladKovDev/subgate-bot/pkg/logger"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Requester is the subset of *tgbotapi.BotAPI used for raw method calls.
type Requester interface {
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// CommandService handles Telegram Bot API command registration.
// It manages role-based command visibility for public and admin users.
type CommandService struct {
	bot    Requester
	logger logger.Logger
}

func NewCommandService(bot Requester, log logger.Logger) *CommandService {
	return &CommandService{
		bot:    bot,
		logger: log.Named("commands"),
	}
}

// RegisterCommands registers bot commands with Telegram API using role-based visibility.
// Public commands are registered for all private chats.
// Admin commands are registered per-admin-user and include both public and admin commands.
func (s *CommandService) RegisterCommands(ctx context.Context, adminIDs []int64) error {
	publicCmds := command.GetPublicCommands()

	setPublicCmds := tgbotapi.NewSetMyCommandsWithScope(
		tgbotapi.NewBotCommandScopeAllPrivateChats(),
		toBotCommands(publicCmds)...)

	if _, err := s.bot.Request(setPublicCmds); err != nil {
		return fmt.Errorf("failed to register public commands: %w", err)
	}
	s.logger.Info("registered public commands", zap.Int("count", len(publicCmds)))

	adminCmds := command.GetAdminCommands()
	if len(adminCmds) == 0 || len(adminIDs) == 0 {
		return nil
	}

	allAdminCmds := append(toBotCommands(publicCmds), toBotCommands(adminCmds)...)

	for _, adminID := range adminIDs {
		select {
		case <-ctx.Done():
			return fmt.Errorf("admin registration cancelled: %w", ctx.Err())
		default:
		}

		setAdminCmds := tgbotapi.NewSetMyCommandsWithScope(
			tgbotapi.NewBotCommandScopeChat(adminID),
			allAdminCmds...)
		if _, err := s.bot.Request(setAdminCmds); err != nil {
			return fmt.Errorf("failed to register admin commands for %d: %w", adminID, err)
		}
		s.logger.Debug("registered admin commands", zap.Int64("user_id", adminID))
	}

	return nil
}

// toBotCommands converts domain commands to Telegram BotCommand slice.
func toBotCommands(cmds []command.Command) []tgbotapi.BotCommand {
	result := make([]tgbotapi.BotCommand, len(cmds))
	for i, cmd := range cmds {
		result[i] = tgbotapi.BotCommand{
			Command:     cmd.Name,
			Description: cmd.Description,
		}
	}
	return result
}
