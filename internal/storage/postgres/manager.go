// Package postgres implements interfaces.StorageManager on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
)

const schema = `
CREATE TABLE IF NOT EXISTS positions (
	id          TEXT PRIMARY KEY,
	ticker      TEXT NOT NULL,
	account     TEXT NOT NULL,
	quantity    NUMERIC NOT NULL,
	cost_basis  NUMERIC NOT NULL,
	type        TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS positions_key_idx ON positions (ticker, account);

CREATE TABLE IF NOT EXISTS prices (
	ticker             TEXT PRIMARY KEY,
	price              NUMERIC NOT NULL,
	last_refreshed_at  TIMESTAMPTZ NOT NULL,
	source             TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS system_kv (
	key         TEXT PRIMARY KEY,
	value       TEXT NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Manager implements interfaces.StorageManager using a pgx pool.
type Manager struct {
	pool   *pgxpool.Pool
	logger *common.Logger

	ledgerStore   *LedgerStore
	priceStore    *PriceStore
	internalStore *InternalStore
}

// NewManager connects to Postgres, registers shopspring decimals and
// creates the folio tables.
func NewManager(ctx context.Context, logger *common.Logger, config *common.PostgresConfig) (*Manager, error) {
	poolConfig, err := pgxpool.ParseConfig(config.URL)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping Postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	logger.Info().
		Str("host", poolConfig.ConnConfig.Host).
		Str("database", poolConfig.ConnConfig.Database).
		Msg("Postgres storage manager initialized")

	return &Manager{
		pool:          pool,
		logger:        logger,
		ledgerStore:   &LedgerStore{pool: pool},
		priceStore:    &PriceStore{pool: pool},
		internalStore: &InternalStore{pool: pool},
	}, nil
}

func (m *Manager) LedgerStore() interfaces.LedgerStore {
	return m.ledgerStore
}

func (m *Manager) PriceStore() interfaces.PriceStore {
	return m.priceStore
}

func (m *Manager) InternalStore() interfaces.InternalStore {
	return m.internalStore
}

// Close releases the pool.
func (m *Manager) Close() error {
	m.pool.Close()
	return nil
}

func isNoRows(err error) bool { return errors.Is(err, pgx.ErrNoRows) }
