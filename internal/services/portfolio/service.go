// Package portfolio orchestrates reads and writes: refresh before reading,
// consolidate and persist before a forced refresh on writes.
package portfolio

import (
	"context"
	"fmt"
	"time"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
	"github.com/bobmcallan/folio/internal/services/consolidate"
	"github.com/bobmcallan/folio/internal/services/ledger"
	"github.com/bobmcallan/folio/internal/services/valuation"
)

// Service is the entry point used by the REST server and the CLI.
type Service struct {
	ledger  *ledger.Ledger
	engine  *consolidate.Engine
	prices  interfaces.PriceReader
	refresh interfaces.RefreshCoordinator
	events  interfaces.EventPublisher
	logger  *common.Logger
	now     func() time.Time

	publishTimeout time.Duration
}

// DefaultPublishTimeout bounds the ledger event publish that follows a write.
const DefaultPublishTimeout = 5 * time.Second

// Option configures a Service.
type Option func(*Service)

// WithPublishTimeout overrides DefaultPublishTimeout.
func WithPublishTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.publishTimeout = d
		}
	}
}

// NewService creates a portfolio service
func NewService(
	l *ledger.Ledger,
	engine *consolidate.Engine,
	prices interfaces.PriceReader,
	refresh interfaces.RefreshCoordinator,
	events interfaces.EventPublisher,
	logger *common.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		ledger:         l,
		engine:         engine,
		prices:         prices,
		refresh:        refresh,
		events:         events,
		logger:         logger,
		now:            time.Now,
		publishTimeout: DefaultPublishTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SummaryOptions controls a summary read.
type SummaryOptions struct {
	Force bool
}

// HoldingsQuery filters and orders the holdings view.
type HoldingsQuery struct {
	Search     string
	Sort       string
	Descending bool
}

// MutationResult is returned by every write. Summary reflects the state
// after the forced refresh that follows the write.
type MutationResult struct {
	Position      *models.Position         `json:"position,omitempty"`
	Positions     []models.Position        `json:"positions,omitempty"`
	Consolidation *consolidate.Result      `json:"consolidation,omitempty"`
	Removed       int                      `json:"removed,omitempty"`
	Summary       *models.PortfolioSummary `json:"summary"`
	EventError    string                   `json:"event_error,omitempty"`
}

// GetSummary ensures freshness and values the ledger. A failed refresh is
// reported in Freshness rather than as an error: the summary is built from
// whatever prices are cached.
func (s *Service) GetSummary(ctx context.Context, opts SummaryOptions) (*models.PortfolioSummary, error) {
	outcome, refreshErr := s.refresh.EnsureFresh(ctx, opts.Force)
	return s.summarize(ctx, outcome, refreshErr)
}

// GetHoldings returns the per-ticker rollup filtered by Search and ordered
// by Sort (default ticker).
func (s *Service) GetHoldings(ctx context.Context, q HoldingsQuery) ([]models.ConsolidatedHolding, error) {
	key, err := valuation.ParseSortKey(q.Sort)
	if err != nil {
		return nil, err
	}
	summary, err := s.GetSummary(ctx, SummaryOptions{})
	if err != nil {
		return nil, err
	}
	holdings := valuation.FilterHoldings(summary.Holdings, q.Search)
	valuation.SortHoldings(holdings, key, q.Descending)
	return holdings, nil
}

// GetAccounts returns the per-account grouping.
func (s *Service) GetAccounts(ctx context.Context) (map[string]*models.AccountGroup, error) {
	summary, err := s.GetSummary(ctx, SummaryOptions{})
	if err != nil {
		return nil, err
	}
	return summary.Accounts, nil
}

// ListPositions returns the raw ledger without valuation or refresh.
func (s *Service) ListPositions(ctx context.Context) ([]models.Position, error) {
	return s.ledger.ListAll(ctx)
}

// GetPosition returns one ledger record.
func (s *Service) GetPosition(ctx context.Context, id string) (*models.Position, error) {
	return s.ledger.Get(ctx, id)
}

// AddPosition appends p, merging it with existing records of the same
// (ticker, account).
func (s *Service) AddPosition(ctx context.Context, p models.Position) (*MutationResult, error) {
	res, err := s.engine.AddAndConsolidate(ctx, p)
	if err != nil {
		return nil, err
	}

	event := models.LedgerEvent{
		Type:       models.EventPositionAdded,
		Ticker:     res.Added.Ticker,
		Account:    res.Added.Account,
		PositionID: res.Added.ID,
		Position:   res.Survivor,
		RemovedIDs: res.RemovedIDs,
	}
	if res.Merged > 0 || res.Deleted > 0 {
		event.Type = models.EventPositionConsolidated
		if res.Survivor != nil {
			event.PositionID = res.Survivor.ID
		}
	}

	result := &MutationResult{Position: res.Survivor, Consolidation: res}
	return s.afterMutation(ctx, result, event)
}

// UpdatePosition applies upd to record id. Updates never consolidate.
func (s *Service) UpdatePosition(ctx context.Context, id string, upd models.PositionUpdate) (*MutationResult, error) {
	if upd.IsEmpty() {
		return nil, &models.ValidationError{Field: "update", Message: "no fields to update"}
	}
	p, err := s.ledger.Update(ctx, id, upd)
	if err != nil {
		return nil, err
	}
	return s.afterMutation(ctx, &MutationResult{Position: p}, models.LedgerEvent{
		Type:       models.EventPositionUpdated,
		Ticker:     p.Ticker,
		Account:    p.Account,
		PositionID: p.ID,
		Position:   p,
	})
}

// RemovePosition deletes record id.
func (s *Service) RemovePosition(ctx context.Context, id string) (*MutationResult, error) {
	existing, err := s.ledger.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.ledger.Remove(ctx, id); err != nil {
		return nil, err
	}
	return s.afterMutation(ctx, &MutationResult{Position: existing, Removed: 1}, models.LedgerEvent{
		Type:       models.EventPositionRemoved,
		Ticker:     existing.Ticker,
		Account:    existing.Account,
		PositionID: existing.ID,
		RemovedIDs: []string{existing.ID},
	})
}

// ImportPositions appends every record as a separate lot, or none when any
// row is invalid. Imported lots are never consolidated.
func (s *Service) ImportPositions(ctx context.Context, ps []models.Position) (*MutationResult, error) {
	if len(ps) == 0 {
		return nil, &models.ValidationError{Field: "positions", Message: "no positions to import"}
	}
	imported, err := s.ledger.BulkAppend(ctx, ps)
	if err != nil {
		return nil, err
	}
	return s.afterMutation(ctx, &MutationResult{Positions: imported}, models.LedgerEvent{
		Type:  models.EventPositionsImported,
		Count: len(imported),
	})
}

// ClearPositions removes every ledger record.
func (s *Service) ClearPositions(ctx context.Context) (*MutationResult, error) {
	n, err := s.ledger.Clear(ctx)
	if err != nil {
		return nil, err
	}
	return s.afterMutation(ctx, &MutationResult{Removed: n}, models.LedgerEvent{
		Type:  models.EventPositionsCleared,
		Count: n,
	})
}

// Refresh runs a forced refresh and returns its error, unlike reads.
func (s *Service) Refresh(ctx context.Context) (*models.PortfolioSummary, error) {
	outcome, err := s.refresh.EnsureFresh(ctx, true)
	if err != nil {
		return nil, err
	}
	return s.summarize(ctx, outcome, nil)
}

// RefreshStatus reports the coordinator state.
func (s *Service) RefreshStatus() models.RefreshStatus {
	if sp, ok := s.refresh.(interface{ Status() models.RefreshStatus }); ok {
		return sp.Status()
	}
	return models.RefreshStatus{
		State:           s.refresh.State(),
		LastRefreshedAt: s.refresh.LastRefreshedAt(),
	}
}

// afterMutation forces a refresh, re-reads, then publishes the event. The
// write has already committed, so refresh and publish failures are reported
// in the result rather than returned. The publish is bounded by
// publishTimeout so a slow broker cannot hold the response.
func (s *Service) afterMutation(ctx context.Context, result *MutationResult, event models.LedgerEvent) (*MutationResult, error) {
	event.Actor = common.ResolveActor(ctx)
	event.OccurredAt = s.now().UTC()

	outcome, refreshErr := s.refresh.EnsureFresh(ctx, true)
	summary, readErr := s.summarize(ctx, outcome, refreshErr)

	pubCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()
	if err := s.events.Publish(pubCtx, event); err != nil {
		s.logger.Warn().Err(err).Str("type", string(event.Type)).Msg("Failed to publish ledger event")
		result.EventError = err.Error()
	}

	if readErr != nil {
		return nil, fmt.Errorf("mutation saved but re-read failed: %w", readErr)
	}
	result.Summary = summary
	return result, nil
}

func (s *Service) summarize(ctx context.Context, outcome models.RefreshOutcome, refreshErr error) (*models.PortfolioSummary, error) {
	positions, err := s.ledger.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	snapshot, err := s.prices.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read prices: %w", err)
	}

	summary := valuation.Valuate(positions, snapshot)
	summary.Freshness = models.Freshness{
		LastRefreshedAt: s.refresh.LastRefreshedAt(),
		OldestPriceAt:   valuation.OldestPrice(summary.Holdings),
		Outcome:         outcome,
	}
	if refreshErr != nil {
		s.logger.Warn().Err(refreshErr).Msg("Serving summary from stale prices")
		summary.Freshness.Outcome = models.RefreshFailed
		summary.Freshness.Stale = true
		summary.Freshness.Error = refreshErr.Error()
	}
	return summary, nil
}
