package app

import (
	"context"
	"fmt"
	"os"

	"github.com/VladKovDev/subgate-bot/internal/config"
	"github.com/VladKovDev/subgate-bot/internal/domain/repository"
	"github.com/VladKovDev/subgate-bot/internal/metrics"
	"github.com/VladKovDev/subgate-bot/internal/repository/postgres"
	"github.com/VladKovDev/subgate-bot/internal/repository/sqlite"
	"github.com/VladKovDev/subgate-bot/internal/server"
	"github.com/VladKovDev/subgate-bot/internal/services/template"
	"github.com/VladKovDev/subgate-bot/pkg/logger"
	"go.uber.org/zap"
)

// App holds high-level application dependencies.
type App struct {
	Config   *config.Config
	Logger   logger.Logger
	UserRepo repository.UserRepository
}

func NewApp(cfg *config.Config, userRepo repository.UserRepository, logger logger.Logger) *App {
	return &App{
		Config:   cfg,
		Logger:   logger,
		UserRepo: userRepo,
	}
}

func Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	configPath := os.Getenv("SUBGATE_CONFIG_PATH")
	cfg, err := initConfig(configPath, ctx)
	if err != nil {
		return fmt.Errorf("failed to init config: %w", err)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	logger.Debug("logger debug enabled...")

	if err := checkTemplates(cfg.Templates); err != nil {
		return fmt.Errorf("invalid templates: %w", err)
	}

	metrics.MustRegister()

	userRepo, err := initUserRepository(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to init user store: %w", err)
	}

	app := NewApp(cfg, userRepo, logger)

	bot, err := app.startBot(ctx)
	if err != nil {
		_ = userRepo.Close()
		return fmt.Errorf("failed to start bot: %w", err)
	}

	serverErr := make(chan error, 1)
	if cfg.Server.Enabled {
		srv := server.New(cfg.Server, userRepo, logger)
		go func() {
			if err := srv.Start(ctx); err != nil {
				serverErr <- err
			}
		}()
	}

	return gracefulShutdown(ctx, cancel, logger, bot, userRepo, serverErr)
}

func initConfig(configPath string, ctx context.Context) (*config.Config, error) {
	return config.Load(configPath, ctx)
}

func initLogger(cfg *config.Config) (logger.Logger, error) {
	return logger.New(cfg.Logger)
}

func checkTemplates(t config.TemplatesConfig) error {
	r := template.NewRenderer()
	for key, text := range map[string]string{
		"templates.start":     t.Start,
		"templates.force_sub": t.ForceSub,
		"templates.about":     t.About,
	} {
		if err := r.Check(text); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

func initUserRepository(ctx context.Context, cfg *config.Config, logger logger.Logger) (repository.UserRepository, error) {
	logger.Info("opening user store", zap.String("driver", cfg.Storage.Driver))

	switch cfg.Storage.Driver {
	case config.StorageDriverSQLite:
		return sqlite.Open(ctx, cfg.Storage.SQLitePath, logger)
	default:
		pool, err := postgres.NewPool(ctx, &cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		repo, err := postgres.NewPostgresUserRepository(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return repo, nil
	}
}
