package interfaces

import (
	"context"
	"time"

	"github.com/bobmcallan/folio/internal/models"
)

// RefreshJob refreshes the price cache. Implementations update prices and the
// persisted "last refreshed" marker on success.
type RefreshJob interface {
	Run(ctx context.Context, force bool) error
	// LastRefreshed returns the persisted marker, or the zero time if none.
	LastRefreshed(ctx context.Context) (time.Time, error)
}

// RefreshCoordinator decides whether prices need refreshing before a read.
type RefreshCoordinator interface {
	EnsureFresh(ctx context.Context, force bool) (models.RefreshOutcome, error)
	State() models.RefreshState
	LastRefreshedAt() time.Time
}

// EventPublisher emits ledger change events after mutations commit.
type EventPublisher interface {
	Publish(ctx context.Context, event models.LedgerEvent) error
	Close() error
}
