// Package pricejob implements the price refresh job run by the refresh
// coordinator.
package pricejob

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bobmcallan/folio/internal/clients/eodhd"
	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

// Compile-time interface check
var _ interfaces.RefreshJob = (*Job)(nil)

const defaultConcurrency = 4

// Job quotes every ledger ticker and writes the results to the price store.
type Job struct {
	ledger      interfaces.LedgerStore
	prices      interfaces.PriceStore
	internal    interfaces.InternalStore
	source      interfaces.QuoteSource
	logger      *common.Logger
	clock       interfaces.Clock
	window      time.Duration
	concurrency int
}

// Option configures a Job.
type Option func(*Job)

// WithClock injects the time source.
func WithClock(clock interfaces.Clock) Option {
	return func(j *Job) { j.clock = clock }
}

// WithStalenessWindow sets the age below which a non-forced run keeps a price.
func WithStalenessWindow(d time.Duration) Option {
	return func(j *Job) {
		if d > 0 {
			j.window = d
		}
	}
}

// WithConcurrency bounds the number of quotes in flight.
func WithConcurrency(n int) Option {
	return func(j *Job) {
		if n > 0 {
			j.concurrency = n
		}
	}
}

// NewJob creates a refresh job.
func NewJob(
	ledger interfaces.LedgerStore,
	prices interfaces.PriceStore,
	internal interfaces.InternalStore,
	source interfaces.QuoteSource,
	logger *common.Logger,
	opts ...Option,
) *Job {
	j := &Job{
		ledger:      ledger,
		prices:      prices,
		internal:    internal,
		source:      source,
		logger:      logger,
		clock:       time.Now,
		window:      common.StalenessWindow,
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Run refreshes prices. A non-forced run keeps prices younger than the
// staleness window. Unknown tickers are skipped; any other quote failure
// fails the run and leaves the marker untouched.
func (j *Job) Run(ctx context.Context, force bool) error {
	positions, err := j.ledger.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list positions: %w", err)
	}

	tickers := activeTickers(positions)
	now := j.clock()

	if !force && len(tickers) > 0 {
		snapshot, err := j.prices.Snapshot(ctx)
		if err != nil {
			return fmt.Errorf("failed to read price snapshot: %w", err)
		}
		due := tickers[:0]
		for _, t := range tickers {
			if entry, ok := snapshot[t]; ok && common.IsFresh(entry.LastRefreshedAt, now, j.window) {
				continue
			}
			due = append(due, t)
		}
		tickers = due
	}

	var (
		mu      sync.Mutex
		entries []models.PriceEntry
		missing []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.concurrency)
	for _, ticker := range tickers {
		g.Go(func() error {
			quote, err := j.source.GetQuote(gctx, ticker)
			if err != nil {
				if errors.Is(err, eodhd.ErrQuoteNotFound) {
					mu.Lock()
					missing = append(missing, ticker)
					mu.Unlock()
					return nil
				}
				return fmt.Errorf("failed to quote %s: %w", ticker, err)
			}
			mu.Lock()
			entries = append(entries, models.PriceEntry{
				Ticker:          ticker,
				Price:           quote.Close,
				LastRefreshedAt: now,
				Source:          j.source.Name(),
			})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		j.logger.Warn().Strs("tickers", missing).Str("source", j.source.Name()).Msg("No price available, tickers left unpriced")
	}

	if len(entries) > 0 {
		sort.Slice(entries, func(a, b int) bool { return entries[a].Ticker < entries[b].Ticker })
		if err := j.prices.UpsertPrices(ctx, entries); err != nil {
			return fmt.Errorf("failed to save prices: %w", err)
		}
	}

	if err := j.internal.SetSystemKV(ctx, common.SystemKeyLastPriceRefresh, now.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("failed to write refresh marker: %w", err)
	}

	j.logger.Info().
		Int("quoted", len(entries)).
		Int("unpriced", len(missing)).
		Bool("force", force).
		Msg("Prices refreshed")
	return nil
}

// LastRefreshed reads the persisted marker. A missing marker is the zero time.
func (j *Job) LastRefreshed(ctx context.Context) (time.Time, error) {
	value, err := j.internal.GetSystemKV(ctx, common.SystemKeyLastPriceRefresh)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("failed to read refresh marker: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid refresh marker %q: %w", value, err)
	}
	return t, nil
}

// activeTickers returns the sorted distinct non-cash tickers with a
// non-zero quantity.
func activeTickers(positions []models.Position) []string {
	seen := make(map[string]struct{})
	var tickers []string
	for _, p := range positions {
		if p.IsCash() || p.Quantity.IsZero() {
			continue
		}
		if _, ok := seen[p.Ticker]; ok {
			continue
		}
		seen[p.Ticker] = struct{}{}
		tickers = append(tickers, p.Ticker)
	}
	sort.Strings(tickers)
	return tickers
}
