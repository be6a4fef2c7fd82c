// Package ledger validates and persists position records.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

// Field limits
const (
	MaxTickerLength  = 20
	MaxAccountLength = 100
)

// maxAmount bounds quantity and cost basis.
var maxAmount = decimal.New(1, 15)

// Ledger is the append-oriented store of individual position records.
type Ledger struct {
	store  interfaces.LedgerStore
	logger *common.Logger
	now    func() time.Time
}

// NewLedger creates a ledger over store.
func NewLedger(store interfaces.LedgerStore, logger *common.Logger) *Ledger {
	return &Ledger{store: store, logger: logger, now: time.Now}
}

// newID returns a UUIDv7 so that id order is creation order.
func newID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate position id: %w", err)
	}
	return id.String(), nil
}

// Validate checks a normalised position. Row is copied into the returned
// *models.ValidationError.
func Validate(p models.Position, row int) error {
	fail := func(field, msg string) error {
		return &models.ValidationError{Field: field, Row: row, Message: msg}
	}

	if p.Ticker == "" {
		return fail("ticker", "ticker is required")
	}
	if utf8.RuneCountInString(p.Ticker) > MaxTickerLength {
		return fail("ticker", fmt.Sprintf("ticker exceeds %d characters", MaxTickerLength))
	}
	if strings.ContainsAny(p.Ticker, " \t\n|") {
		return fail("ticker", "ticker must not contain whitespace or '|'")
	}
	if p.Account == "" {
		return fail("account", "account is required")
	}
	if utf8.RuneCountInString(p.Account) > MaxAccountLength {
		return fail("account", fmt.Sprintf("account name exceeds %d characters", MaxAccountLength))
	}
	if p.Quantity.IsNegative() {
		return fail("quantity", "quantity must not be negative")
	}
	if p.Quantity.GreaterThanOrEqual(maxAmount) {
		return fail("quantity", "quantity exceeds maximum (1e15)")
	}
	if p.Quantity.IsPositive() && !p.CostBasis.IsPositive() {
		return fail("cost_basis", "cost basis must be positive when quantity is positive")
	}
	if p.CostBasis.IsNegative() {
		return fail("cost_basis", "cost basis must not be negative")
	}
	if p.CostBasis.GreaterThanOrEqual(maxAmount) {
		return fail("cost_basis", "cost basis exceeds maximum (1e15)")
	}
	if !models.ValidPositionType(p.Type) {
		return fail("type", fmt.Sprintf("invalid type %q; must be stock, etf, or cash", p.Type))
	}
	return nil
}

// prepare normalises, validates and stamps a new record.
func (l *Ledger) prepare(p models.Position, row int, now time.Time) (models.Position, error) {
	p.Normalize()
	if err := Validate(p, row); err != nil {
		return models.Position{}, err
	}
	id, err := newID()
	if err != nil {
		return models.Position{}, err
	}
	p.ID = id
	p.CreatedAt = now
	p.UpdatedAt = now
	return p, nil
}

// Append validates and persists a single record.
func (l *Ledger) Append(ctx context.Context, p models.Position) (*models.Position, error) {
	rec, err := l.prepare(p, 0, l.now().UTC())
	if err != nil {
		return nil, err
	}
	if err := l.store.Insert(ctx, &rec); err != nil {
		return nil, fmt.Errorf("failed to append position: %w", err)
	}

	l.logger.Debug().
		Str("id", rec.ID).
		Str("ticker", rec.Ticker).
		Str("account", rec.Account).
		Str("quantity", rec.Quantity.String()).
		Msg("Position appended")
	return &rec, nil
}

// BulkAppend validates every record and persists all of them, or none when
// any row fails. Rows in errors are 1-based.
func (l *Ledger) BulkAppend(ctx context.Context, ps []models.Position) ([]models.Position, error) {
	now := l.now().UTC()
	out := make([]models.Position, 0, len(ps))
	for i, p := range ps {
		rec, err := l.prepare(p, i+1, now)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if len(out) == 0 {
		return out, nil
	}

	if err := l.store.InsertMany(ctx, out); err != nil {
		return nil, fmt.Errorf("failed to import %d positions: %w", len(out), err)
	}

	l.logger.Info().Int("count", len(out)).Msg("Positions imported")
	return out, nil
}

// Update merges the non-nil fields of upd into record id and re-validates.
func (l *Ledger) Update(ctx context.Context, id string, upd models.PositionUpdate) (*models.Position, error) {
	existing, err := l.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	merged := upd.Apply(*existing)
	merged.Normalize()
	if err := Validate(merged, 0); err != nil {
		return nil, err
	}
	merged.ID = existing.ID
	merged.CreatedAt = existing.CreatedAt
	merged.UpdatedAt = l.now().UTC()

	if err := l.store.Update(ctx, &merged); err != nil {
		return nil, err
	}
	return &merged, nil
}

// Remove deletes record id.
func (l *Ledger) Remove(ctx context.Context, id string) error {
	return l.store.Delete(ctx, id)
}

// Get returns record id.
func (l *Ledger) Get(ctx context.Context, id string) (*models.Position, error) {
	return l.store.Get(ctx, id)
}

// ListAll returns every record sorted by ticker, account, then id.
func (l *Ledger) ListAll(ctx context.Context) ([]models.Position, error) {
	ps, err := l.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}
	SortPositions(ps)
	return ps, nil
}

// FindByKey returns the records of one (ticker, account) group in id order.
func (l *Ledger) FindByKey(ctx context.Context, ticker, account string) ([]models.Position, error) {
	ps, err := l.store.ListByKey(ctx, models.NormalizeTicker(ticker), strings.TrimSpace(account))
	if err != nil {
		return nil, fmt.Errorf("failed to find positions: %w", err)
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i].ID < ps[j].ID })
	return ps, nil
}

// Clear removes every record.
func (l *Ledger) Clear(ctx context.Context) (int, error) {
	n, err := l.store.DeleteAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to clear positions: %w", err)
	}
	l.logger.Info().Int("count", n).Msg("Ledger cleared")
	return n, nil
}

// SortPositions orders positions by ticker, account, then id.
func SortPositions(ps []models.Position) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].Ticker != ps[j].Ticker {
			return ps[i].Ticker < ps[j].Ticker
		}
		if ps[i].Account != ps[j].Account {
			return ps[i].Account < ps[j].Account
		}
		return ps[i].ID < ps[j].ID
	})
}
