package repository

import (
	"context"
)

// UserRepository is the set of Telegram user ids the bot may broadcast to.
type UserRepository interface {
	Add(ctx context.Context, userID int64) error
	Remove(ctx context.Context, userID int64) error
	Contains(ctx context.Context, userID int64) (bool, error)
	ListAll(ctx context.Context) ([]int64, error)
	Count(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}
