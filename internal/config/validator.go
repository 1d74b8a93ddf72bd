package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverSQLite   = "sqlite"
)

// maxChannels is the number of force-subscribe channels the /start gate checks.
const maxChannels = 2

var (
	ErrMissingToken        = errors.New("bot.token is required")
	ErrUnknownDriver       = errors.New("unknown storage driver")
	ErrTooManyChannels     = errors.New("too many subscription channels")
	ErrChannelInviteURL    = errors.New("numeric channel requires invite_url")
	ErrNegativeRate        = errors.New("broadcast.rate_per_second must not be negative")
	ErrMissingSQLitePath   = errors.New("storage.sqlite_path is required for sqlite driver")
	ErrMissingStartMessage = errors.New("templates.start is required")
)

type Validator interface {
	Validate(cfg *Config) error
}

type validator struct{}

func NewValidator() Validator {
	return &validator{}
}

func (v *validator) Validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Bot.Token) == "" {
		return ErrMissingToken
	}

	if strings.TrimSpace(cfg.Templates.Start) == "" {
		return ErrMissingStartMessage
	}

	if len(cfg.Subscription.Channels) > maxChannels {
		return fmt.Errorf("%w: got %d, max %d", ErrTooManyChannels, len(cfg.Subscription.Channels), maxChannels)
	}
	for _, ch := range cfg.Subscription.Channels {
		if _, err := strconv.ParseInt(ch.Chat, 10, 64); err == nil && ch.InviteURL == "" {
			return fmt.Errorf("%w: %s", ErrChannelInviteURL, ch.Chat)
		}
	}

	if cfg.Broadcast.RatePerSecond < 0 {
		return ErrNegativeRate
	}

	switch cfg.Storage.Driver {
	case StorageDriverPostgres:
	case StorageDriverSQLite:
		if cfg.Storage.SQLitePath == "" {
			return ErrMissingSQLitePath
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownDriver, cfg.Storage.Driver)
	}

	return nil
}
