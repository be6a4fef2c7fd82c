// Package interfaces defines service contracts for Folio
package interfaces

import (
	"context"
	"time"

	"github.com/bobmcallan/folio/internal/models"
)

// StorageManager coordinates all storage backends
type StorageManager interface {
	LedgerStore() LedgerStore
	PriceStore() PriceStore
	InternalStore() InternalStore

	// Lifecycle
	Close() error
}

// LedgerStore persists position records. Get/Update/Delete return a
// *models.NotFoundError for unknown ids.
type LedgerStore interface {
	Insert(ctx context.Context, p *models.Position) error
	// InsertMany persists every record or none.
	InsertMany(ctx context.Context, ps []models.Position) error
	Get(ctx context.Context, id string) (*models.Position, error)
	Update(ctx context.Context, p *models.Position) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]models.Position, error)
	ListByKey(ctx context.Context, ticker, account string) ([]models.Position, error)
	// ReplaceGroup updates the survivor and deletes removeIDs as one atomic step.
	ReplaceGroup(ctx context.Context, survivor *models.Position, removeIDs []string) error
	// DeleteAll removes every record and returns how many were removed.
	DeleteAll(ctx context.Context) (int, error)
}

// PriceReader is the read side of the price cache used by valuation.
type PriceReader interface {
	// GetPrice returns a *models.NotFoundError when the ticker has no cached price.
	GetPrice(ctx context.Context, ticker string) (*models.PriceEntry, error)
	Snapshot(ctx context.Context) (models.PriceSnapshot, error)
}

// PriceWriter is the write side, used only by the refresh job.
type PriceWriter interface {
	UpsertPrices(ctx context.Context, prices []models.PriceEntry) error
}

// PriceStore is the full price cache.
type PriceStore interface {
	PriceReader
	PriceWriter
}

// InternalStore manages system-level KV such as the refresh marker.
type InternalStore interface {
	// GetSystemKV returns a *models.NotFoundError when the key is absent.
	GetSystemKV(ctx context.Context, key string) (string, error)
	SetSystemKV(ctx context.Context, key, value string) error
}

// Clock returns the current time. Injected so staleness decisions are testable.
type Clock func() time.Time
