package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bobmcallan/folio/internal/models"
)

// InternalStore implements interfaces.InternalStore on the system_kv table.
type InternalStore struct {
	pool *pgxpool.Pool
}

func (s *InternalStore) GetSystemKV(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM system_kv WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if isNoRows(err) {
			return "", &models.NotFoundError{Kind: "system_kv", ID: key}
		}
		return "", fmt.Errorf("failed to get system KV: %w", err)
	}
	return value, nil
}

func (s *InternalStore) SetSystemKV(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO system_kv (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to set system KV: %w", err)
	}
	return nil
}
