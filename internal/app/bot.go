package app

import (
	"context"
	"fmt"

	tgdelivery "github.com/VladKovDev/subgate-bot/internal/delivery/telegram"
	"github.com/VladKovDev/subgate-bot/internal/infrastructure/telegram"
	"github.com/VladKovDev/subgate-bot/internal/services/broadcast"
	"github.com/VladKovDev/subgate-bot/internal/services/subscription"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// runningBot is a started update loop.
type runningBot struct {
	handler *tgdelivery.BotHandler
	done    chan struct{}
}

// startBot authorizes the bot, wires its services and starts the update loop.
func (a *App) startBot(ctx context.Context) (*runningBot, error) {
	cfg := a.Config

	bot, err := tgbotapi.NewBotAPI(cfg.Bot.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create new bot API: %w", err)
	}

	bot.Debug = cfg.Bot.Debug
	a.Logger.Info("Authorized on account",
		zap.String("account", bot.Self.UserName))

	dispatcher := broadcast.NewDispatcher(
		telegram.NewCopier(bot),
		a.UserRepo,
		broadcast.Options{
			RatePerSecond:      cfg.Broadcast.RatePerSecond,
			DegradeFailedRetry: cfg.Broadcast.DegradeFailedRetry,
		},
		a.Logger,
	)
	checker := subscription.NewChecker(bot, cfg.Subscription, a.Logger)

	handler := tgdelivery.NewBotHandler(bot, bot.Self.UserName, cfg, a.UserRepo, checker, dispatcher, a.Logger)

	commands := tgdelivery.NewCommandService(bot, a.Logger)
	if err := commands.RegisterCommands(ctx, cfg.Bot.AdminIDs); err != nil {
		// The bot works without a command menu.
		a.Logger.Warn("failed to register bot commands", zap.Error(err))
	}

	rb := &runningBot{handler: handler, done: make(chan struct{})}
	go func() {
		defer close(rb.done)
		handler.Start(ctx)
	}()

	return rb, nil
}
