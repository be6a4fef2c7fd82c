// Package consolidate merges duplicate (ticker, account) records into one
// record at the weighted-average cost basis.
package consolidate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
	"github.com/bobmcallan/folio/internal/services/ledger"
)

// ErrZeroQuantity is returned by WeightedAverage when the total quantity is zero.
var ErrZeroQuantity = errors.New("total quantity is zero")

// Result describes what a consolidation did.
type Result struct {
	// Added is the record appended by AddAndConsolidate; nil for Consolidate.
	Added *models.Position `json:"added,omitempty"`
	// Survivor is the record left after merging. Nil when the group was
	// deleted under the delete policy.
	Survivor   *models.Position `json:"survivor,omitempty"`
	Merged     int              `json:"merged"`
	RemovedIDs []string         `json:"removed_ids,omitempty"`
	Deleted    int              `json:"deleted,omitempty"`
}

// Engine merges same-key records on the single-add path.
type Engine struct {
	ledger *ledger.Ledger
	store  interfaces.LedgerStore
	policy string
	locks  *keyedMutex
	logger *common.Logger
	now    func() time.Time
}

// NewEngine creates an Engine. policy is common.ZeroQuantityError or
// common.ZeroQuantityDelete.
func NewEngine(l *ledger.Ledger, store interfaces.LedgerStore, policy string, logger *common.Logger) *Engine {
	if policy == "" {
		policy = common.ZeroQuantityError
	}
	return &Engine{
		ledger: l,
		store:  store,
		policy: policy,
		locks:  newKeyedMutex(),
		logger: logger,
		now:    time.Now,
	}
}

// WeightedAverage returns Σq and Σ(q·c)/Σq over ps.
func WeightedAverage(ps []models.Position) (qty, cost decimal.Decimal, err error) {
	total := decimal.Zero
	value := decimal.Zero
	for _, p := range ps {
		total = total.Add(p.Quantity)
		value = value.Add(p.Quantity.Mul(p.CostBasis))
	}
	if total.IsZero() {
		return decimal.Zero, decimal.Zero, ErrZeroQuantity
	}
	return total, value.Div(total), nil
}

// Consolidate merges every record of (ticker, account) into the one with the
// lowest id. Zero or one matching record is a no-op.
func (e *Engine) Consolidate(ctx context.Context, ticker, account string) (*Result, error) {
	key := models.PositionKey{Ticker: models.NormalizeTicker(ticker), Account: strings.TrimSpace(account)}
	unlock := e.locks.Lock(key.String())
	defer unlock()
	return e.consolidateLocked(ctx, key)
}

// AddAndConsolidate appends p and merges it with any existing records of the
// same key. The append and merge hold the key's lock together so concurrent
// adds cannot miss each other. On a consolidation error the appended record
// is removed again.
func (e *Engine) AddAndConsolidate(ctx context.Context, p models.Position) (*Result, error) {
	p.Normalize()
	unlock := e.locks.Lock(p.Key().String())
	defer unlock()

	added, err := e.ledger.Append(ctx, p)
	if err != nil {
		return nil, err
	}

	res, err := e.consolidateLocked(ctx, added.Key())
	if err != nil {
		var cerr *models.ConsolidationError
		if errors.As(err, &cerr) {
			if rmErr := e.ledger.Remove(ctx, added.ID); rmErr != nil {
				return nil, fmt.Errorf("%w (rollback of %s failed: %v)", err, added.ID, rmErr)
			}
		}
		return nil, err
	}

	res.Added = added
	if res.Survivor == nil && res.Deleted == 0 {
		res.Survivor = added
	}
	return res, nil
}

func (e *Engine) consolidateLocked(ctx context.Context, key models.PositionKey) (*Result, error) {
	matches, err := e.store.ListByKey(ctx, key.Ticker, key.Account)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", key, err)
	}
	if len(matches) == 0 {
		return &Result{}, nil
	}
	if len(matches) == 1 {
		survivor := matches[0]
		return &Result{Survivor: &survivor}, nil
	}

	// ListByKey is id-ordered, so matches[0] is the oldest record
	survivor := matches[0]
	removeIDs := make([]string, 0, len(matches)-1)
	for _, m := range matches[1:] {
		removeIDs = append(removeIDs, m.ID)
	}

	qty, cost, err := WeightedAverage(matches)
	if errors.Is(err, ErrZeroQuantity) {
		return e.handleZeroQuantity(ctx, key, survivor, removeIDs)
	}
	if err != nil {
		return nil, err
	}

	survivor.Quantity = qty
	survivor.CostBasis = cost
	survivor.UpdatedAt = e.now().UTC()
	if survivor.Type == models.PositionTypeUnknown {
		for _, m := range matches[1:] {
			if m.Type != models.PositionTypeUnknown {
				survivor.Type = m.Type
				break
			}
		}
	}

	if err := e.store.ReplaceGroup(ctx, &survivor, removeIDs); err != nil {
		return nil, fmt.Errorf("failed to merge %s: %w", key, err)
	}

	e.logger.Info().
		Str("ticker", key.Ticker).
		Str("account", key.Account).
		Str("survivor", survivor.ID).
		Int("merged", len(removeIDs)).
		Str("quantity", qty.String()).
		Str("cost_basis", cost.String()).
		Msg("Positions consolidated")

	return &Result{Survivor: &survivor, Merged: len(removeIDs), RemovedIDs: removeIDs}, nil
}

// handleZeroQuantity applies the configured policy when Σq is zero.
func (e *Engine) handleZeroQuantity(ctx context.Context, key models.PositionKey, survivor models.Position, removeIDs []string) (*Result, error) {
	if e.policy != common.ZeroQuantityDelete {
		return nil, &models.ConsolidationError{
			Ticker:  key.Ticker,
			Account: key.Account,
			Reason:  "total quantity is zero; weighted cost basis is undefined",
		}
	}

	// Collapse atomically first so a failed final delete leaves one
	// zero-quantity record rather than a partial group.
	survivor.Quantity = decimal.Zero
	survivor.CostBasis = decimal.Zero
	survivor.UpdatedAt = e.now().UTC()
	if err := e.store.ReplaceGroup(ctx, &survivor, removeIDs); err != nil {
		return nil, fmt.Errorf("failed to collapse %s: %w", key, err)
	}
	if err := e.store.Delete(ctx, survivor.ID); err != nil {
		return nil, fmt.Errorf("failed to delete %s: %w", key, err)
	}

	e.logger.Info().
		Str("ticker", key.Ticker).
		Str("account", key.Account).
		Int("deleted", len(removeIDs)+1).
		Msg("Zero-quantity position group deleted")

	return &Result{
		RemovedIDs: append(removeIDs, survivor.ID),
		Deleted:    len(removeIDs) + 1,
	}, nil
}
