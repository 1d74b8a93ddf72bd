package app

import (
	"context"
	"fmt"
	"time"

	"github.com/VladKovDev/subgate-bot/internal/domain/repository"
	"github.com/VladKovDev/subgate-bot/pkg/logger"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

// gracefulShutdown blocks until ctx is cancelled or the HTTP server fails,
// then waits for the update loop and any running broadcast before closing
// the user store.
func gracefulShutdown(ctx context.Context, cancel context.CancelFunc, logger logger.Logger, bot *runningBot, users repository.UserRepository, serverErr <-chan error) error {
	var runErr error

	select {
	case <-ctx.Done():
		logger.Info("context cancelled, starting shutdown")
	case err := <-serverErr:
		logger.Error("HTTP server failed, starting shutdown", zap.Error(err))
		runErr = fmt.Errorf("http server: %w", err)
	}
	cancel()

	stopped := make(chan struct{})
	go func() {
		<-bot.done
		bot.handler.Wait()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(shutdownTimeout):
		logger.Warn("shutdown timeout exceeded, broadcast still running")
	}

	logger.Info("closing user store")
	if err := users.Close(); err != nil {
		logger.Error("failed to close user store", zap.Error(err))
	}

	logger.Info("shutdown completed")
	return runErr
}
