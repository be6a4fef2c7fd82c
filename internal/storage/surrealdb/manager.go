// Package surrealdb implements interfaces.StorageManager on SurrealDB.
package surrealdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
)

// Table names
const (
	tablePosition = "position"
	tablePrice    = "price"
	tableSystemKV = "system_kv"
)

// Manager implements interfaces.StorageManager using SurrealDB.
type Manager struct {
	db     *surrealdb.DB
	logger *common.Logger

	ledgerStore   *LedgerStore
	priceStore    *PriceStore
	internalStore *InternalStore
}

// NewManager connects to SurrealDB and prepares the folio tables.
func NewManager(ctx context.Context, logger *common.Logger, config *common.SurrealDBConfig) (*Manager, error) {
	db, err := surrealdb.New(config.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if _, err := db.SignIn(ctx, map[string]interface{}{
		"user": config.Username,
		"pass": config.Password,
	}); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("failed to sign in to SurrealDB: %w", err)
	}

	if err := db.Use(ctx, config.Namespace, config.Database); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("failed to select namespace/database: %w", err)
	}

	m, err := newManagerFromDB(ctx, db, logger)
	if err != nil {
		db.Close(ctx)
		return nil, err
	}

	logger.Info().
		Str("address", config.Address).
		Str("namespace", config.Namespace).
		Str("database", config.Database).
		Msg("SurrealDB storage manager initialized")

	return m, nil
}

// newManagerFromDB defines tables on an already-connected database.
func newManagerFromDB(ctx context.Context, db *surrealdb.DB, logger *common.Logger) (*Manager, error) {
	// SurrealDB v3 errors on querying non-existent tables
	for _, table := range []string{tablePosition, tablePrice, tableSystemKV} {
		sql := fmt.Sprintf("DEFINE TABLE IF NOT EXISTS %s SCHEMALESS", table)
		if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
			return nil, fmt.Errorf("failed to define table %s: %w", table, err)
		}
	}

	indexes := []string{
		"DEFINE INDEX IF NOT EXISTS position_key ON TABLE position FIELDS ticker, account",
	}
	for _, sql := range indexes {
		if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
			return nil, fmt.Errorf("failed to define index: %w", err)
		}
	}

	return &Manager{
		db:            db,
		logger:        logger,
		ledgerStore:   NewLedgerStore(db, logger),
		priceStore:    NewPriceStore(db, logger),
		internalStore: NewInternalStore(db, logger),
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

// Close closes the SurrealDB connection.
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close(context.Background())
	}
	return nil
}

// isNotFoundError reports whether a SurrealDB error means the record is absent.
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "does not exist")
}

// checkResults returns the first failed statement in a multi-statement query.
func checkResults[T any](results *[]surrealdb.QueryResult[T]) error {
	if results == nil {
		return nil
	}
	for i, r := range *results {
		if r.Status != "" && r.Status != "OK" {
			return fmt.Errorf("statement %d failed: %s", i, r.Status)
		}
	}
	return nil
}
