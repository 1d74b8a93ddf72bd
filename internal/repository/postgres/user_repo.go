package postgres

import (
	"context"
	"fmt"

	"github.com/VladKovDev/subgate-bot/internal/domain/repository"
	"github.com/jackc/pgx/v5"
)

const createUsersTable = `
CREATE TABLE IF NOT EXISTS users (
	id         BIGINT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

type PostgresUserRepository struct {
	pool *Pool
}

// NewPostgresUserRepository creates the users table if needed and returns a
// repository that owns pool.
func NewPostgresUserRepository(ctx context.Context, pool *Pool) (repository.UserRepository, error) {
	if _, err := pool.Exec(ctx, createUsersTable); err != nil {
		return nil, fmt.Errorf("failed to migrate users table: %w", err)
	}
	return &PostgresUserRepository{pool: pool}, nil
}

func (r *PostgresUserRepository) Add(ctx context.Context, userID int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, userID)
	if err != nil {
		return fmt.Errorf("failed to add user: %w", err)
	}
	return nil
}

func (r *PostgresUserRepository) Remove(ctx context.Context, userID int64) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID); err != nil {
		return fmt.Errorf("failed to remove user: %w", err)
	}
	return nil
}

func (r *PostgresUserRepository) Contains(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user: %w", err)
	}
	return exists, nil
}

func (r *PostgresUserRepository) ListAll(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list all users: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("failed to scan user ids: %w", err)
	}
	return ids, nil
}

func (r *PostgresUserRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

func (r *PostgresUserRepository) Ping(ctx context.Context) error {
	return r.pool.HealthCheck(ctx)
}

func (r *PostgresUserRepository) Close() error {
	r.pool.Close()
	return nil
}
