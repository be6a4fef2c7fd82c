package portfolio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/models"
	"github.com/bobmcallan/folio/internal/services/consolidate"
	"github.com/bobmcallan/folio/internal/services/ledger"
	"github.com/bobmcallan/folio/internal/services/pricejob"
	"github.com/bobmcallan/folio/internal/services/refresh"
	"github.com/bobmcallan/folio/internal/storage/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.LedgerEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, e models.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []models.LedgerEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.LedgerEventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

// stubCoordinator records EnsureFresh calls and returns a fixed result.
type stubCoordinator struct {
	mu    sync.Mutex
	calls []bool
	err   error
	last  time.Time
}

func (c *stubCoordinator) EnsureFresh(ctx context.Context, force bool) (models.RefreshOutcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, force)
	if c.err != nil {
		return models.RefreshFailed, c.err
	}
	if force {
		return models.RefreshRefreshed, nil
	}
	return models.RefreshSkipped, nil
}

func (c *stubCoordinator) State() models.RefreshState { return models.RefreshStateIdle }
func (c *stubCoordinator) LastRefreshedAt() time.Time { return c.last }

type harness struct {
	svc    *Service
	store  *memory.Manager
	source *pricejob.StaticQuoteSource
	events *recordingPublisher
	coord  *refresh.Coordinator
}

func newHarness(t *testing.T, prices map[string]string) *harness {
	t.Helper()
	logger := common.NewSilentLogger()
	store := memory.NewManager()

	quotes := make(map[string]decimal.Decimal, len(prices))
	for k, v := range prices {
		quotes[k] = decimal.RequireFromString(v)
	}
	source := pricejob.NewStaticQuoteSource(quotes)

	l := ledger.NewLedger(store.LedgerStore(), logger)
	engine := consolidate.NewEngine(l, store.LedgerStore(), common.ZeroQuantityError, logger)
	job := pricejob.NewJob(store.LedgerStore(), store.PriceStore(), store.InternalStore(), source, logger)
	coord := refresh.NewCoordinator(job, logger, refresh.WithTimeout(5*time.Second))
	events := &recordingPublisher{}

	return &harness{
		svc:    NewService(l, engine, store.PriceStore(), coord, events, logger),
		store:  store,
		source: source,
		events: events,
		coord:  coord,
	}
}

func lot(ticker, account, qty, cost string) models.Position {
	return models.Position{
		Ticker:    ticker,
		Account:   account,
		Quantity:  decimal.RequireFromString(qty),
		CostBasis: decimal.RequireFromString(cost),
	}
}

func assertAAPLScenario(t *testing.T, summary *models.PortfolioSummary) {
	t.Helper()
	require.Len(t, summary.Holdings, 1)
	h := summary.Holdings[0]
	assert.Equal(t, "AAPL", h.Ticker)
	assert.True(t, h.TotalQuantity.Equal(decimal.NewFromInt(20)), "quantity %s", h.TotalQuantity)
	assert.True(t, h.TotalCostValue.Equal(decimal.NewFromInt(2200)), "cost %s", h.TotalCostValue)
	assert.True(t, h.MarketValue.Equal(decimal.NewFromInt(3000)), "value %s", h.MarketValue)
	assert.True(t, h.PnLDollar.Equal(decimal.NewFromInt(800)), "pnl %s", h.PnLDollar)
	assert.Equal(t, "36.36", h.PnLPercent.StringFixed(2))
}

func TestAddPosition_ConsolidatesAndValues(t *testing.T) {
	h := newHarness(t, map[string]string{"AAPL": "150"})
	ctx := context.Background()

	first, err := h.svc.AddPosition(ctx, lot("AAPL", "Acct1", "10", "100"))
	require.NoError(t, err)
	require.NotNil(t, first.Position)
	assert.Zero(t, first.Consolidation.Merged)

	second, err := h.svc.AddPosition(ctx, lot("AAPL", "Acct1", "10", "120"))
	require.NoError(t, err)
	assert.Equal(t, 1, second.Consolidation.Merged)
	assert.Equal(t, first.Position.ID, second.Position.ID, "oldest record survives")
	assert.True(t, second.Position.CostBasis.Equal(decimal.NewFromInt(110)))

	assertAAPLScenario(t, second.Summary)
	assert.Equal(t, models.RefreshRefreshed, second.Summary.Freshness.Outcome)
	assert.False(t, second.Summary.Freshness.Stale)
	assert.False(t, second.Summary.Freshness.OldestPriceAt.IsZero())

	positions, err := h.svc.ListPositions(ctx)
	require.NoError(t, err)
	assert.Len(t, positions, 1)

	assert.Equal(t, []models.LedgerEventType{models.EventPositionAdded, models.EventPositionConsolidated}, h.events.types())
}

func TestImportPositions_PreservesLots(t *testing.T) {
	h := newHarness(t, map[string]string{"AAPL": "150"})
	ctx := context.Background()

	res, err := h.svc.ImportPositions(ctx, []models.Position{
		lot("AAPL", "Acct1", "10", "100"),
		lot("AAPL", "Acct1", "10", "120"),
	})
	require.NoError(t, err)
	assert.Len(t, res.Positions, 2)
	assertAAPLScenario(t, res.Summary)
	assert.Equal(t, 2, res.Summary.Holdings[0].LotCount)

	positions, err := h.svc.ListPositions(ctx)
	require.NoError(t, err)
	assert.Len(t, positions, 2, "bulk import never consolidates")

	assert.Equal(t, []models.LedgerEventType{models.EventPositionsImported}, h.events.types())
	assert.Equal(t, 2, h.events.events[0].Count)
}

func TestImportPositions_InvalidRowRejectsBatch(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.svc.ImportPositions(ctx, []models.Position{
		lot("AAPL", "Acct1", "10", "100"),
		lot("MSFT", "", "1", "100"),
	})
	require.Error(t, err)
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 2, verr.Row)
	assert.Equal(t, "account", verr.Field)

	positions, err := h.svc.ListPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)
	assert.Empty(t, h.events.types())
}

func TestImportPositions_Empty(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.svc.ImportPositions(context.Background(), nil)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestAddPosition_ValidationError(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.svc.AddPosition(context.Background(), lot("AAPL", "Acct1", "-1", "100"))
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.Empty(t, h.events.types())
}

func TestAddPosition_NewTickerPricedAfterWrite(t *testing.T) {
	h := newHarness(t, map[string]string{"AAPL": "150", "MSFT": "300"})
	ctx := context.Background()

	_, err := h.svc.AddPosition(ctx, lot("AAPL", "Acct1", "1", "100"))
	require.NoError(t, err)

	// Prices are now fresh; only the forced refresh after a write picks up MSFT
	res, err := h.svc.AddPosition(ctx, lot("MSFT", "Acct1", "2", "250"))
	require.NoError(t, err)

	require.Len(t, res.Summary.Holdings, 2)
	msft := res.Summary.Holdings[1]
	assert.Equal(t, "MSFT", msft.Ticker)
	assert.True(t, msft.PriceKnown)
	assert.True(t, msft.MarketValue.Equal(decimal.NewFromInt(600)))
}

func TestGetSummary_SkipsWhenFresh(t *testing.T) {
	h := newHarness(t, map[string]string{"AAPL": "150"})
	ctx := context.Background()

	_, err := h.svc.AddPosition(ctx, lot("AAPL", "Acct1", "1", "100"))
	require.NoError(t, err)

	summary, err := h.svc.GetSummary(ctx, SummaryOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.RefreshSkipped, summary.Freshness.Outcome)
	assert.False(t, summary.Freshness.LastRefreshedAt.IsZero())

	summary, err = h.svc.GetSummary(ctx, SummaryOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, models.RefreshRefreshed, summary.Freshness.Outcome)
}

func TestGetSummary_RefreshFailureServesStale(t *testing.T) {
	logger := common.NewSilentLogger()
	store := memory.NewManager()
	l := ledger.NewLedger(store.LedgerStore(), logger)
	engine := consolidate.NewEngine(l, store.LedgerStore(), common.ZeroQuantityError, logger)
	coord := &stubCoordinator{err: &models.RefreshError{Cause: errors.New("provider down")}}
	svc := NewService(l, engine, store.PriceStore(), coord, &recordingPublisher{}, logger)
	ctx := context.Background()

	require.NoError(t, store.PriceStore().UpsertPrices(ctx, []models.PriceEntry{
		{Ticker: "AAPL", Price: decimal.NewFromInt(140), LastRefreshedAt: time.Now().Add(-5 * time.Hour)},
	}))
	_, err := l.Append(ctx, lot("AAPL", "Acct1", "1", "100"))
	require.NoError(t, err)

	summary, err := svc.GetSummary(ctx, SummaryOptions{})
	require.NoError(t, err)
	assert.True(t, summary.Freshness.Stale)
	assert.Equal(t, models.RefreshFailed, summary.Freshness.Outcome)
	assert.Contains(t, summary.Freshness.Error, "provider down")
	require.Len(t, summary.Holdings, 1)
	assert.True(t, summary.Holdings[0].MarketValue.Equal(decimal.NewFromInt(140)))

	// Explicit refresh surfaces the error
	_, err = svc.Refresh(ctx)
	assert.ErrorIs(t, err, models.ErrRefresh)

	// Writes still commit and report staleness
	res, err := svc.AddPosition(ctx, lot("MSFT", "Acct1", "1", "100"))
	require.NoError(t, err)
	assert.True(t, res.Summary.Freshness.Stale)
}

func TestMutations_ForceRefresh(t *testing.T) {
	logger := common.NewSilentLogger()
	store := memory.NewManager()
	l := ledger.NewLedger(store.LedgerStore(), logger)
	engine := consolidate.NewEngine(l, store.LedgerStore(), common.ZeroQuantityError, logger)
	coord := &stubCoordinator{}
	svc := NewService(l, engine, store.PriceStore(), coord, &recordingPublisher{}, logger)
	ctx := context.Background()

	added, err := svc.AddPosition(ctx, lot("AAPL", "Acct1", "1", "100"))
	require.NoError(t, err)
	qty := decimal.NewFromInt(3)
	_, err = svc.UpdatePosition(ctx, added.Position.ID, models.PositionUpdate{Quantity: &qty})
	require.NoError(t, err)
	_, err = svc.ImportPositions(ctx, []models.Position{lot("MSFT", "Acct1", "1", "1")})
	require.NoError(t, err)
	_, err = svc.RemovePosition(ctx, added.Position.ID)
	require.NoError(t, err)
	_, err = svc.ClearPositions(ctx)
	require.NoError(t, err)
	_, err = svc.GetSummary(ctx, SummaryOptions{})
	require.NoError(t, err)

	assert.Equal(t, []bool{true, true, true, true, true, false}, coord.calls)
}

func TestUpdatePosition(t *testing.T) {
	h := newHarness(t, map[string]string{"AAPL": "150"})
	ctx := context.Background()

	added, err := h.svc.AddPosition(ctx, lot("AAPL", "Acct1", "10", "100"))
	require.NoError(t, err)

	qty := decimal.NewFromInt(4)
	res, err := h.svc.UpdatePosition(ctx, added.Position.ID, models.PositionUpdate{Quantity: &qty})
	require.NoError(t, err)
	assert.True(t, res.Position.Quantity.Equal(qty))
	assert.True(t, res.Summary.Holdings[0].MarketValue.Equal(decimal.NewFromInt(600)))

	_, err = h.svc.UpdatePosition(ctx, "missing", models.PositionUpdate{Quantity: &qty})
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = h.svc.UpdatePosition(ctx, added.Position.ID, models.PositionUpdate{})
	assert.ErrorIs(t, err, models.ErrValidation)

	negative := decimal.NewFromInt(-1)
	_, err = h.svc.UpdatePosition(ctx, added.Position.ID, models.PositionUpdate{Quantity: &negative})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestRemovePosition(t *testing.T) {
	h := newHarness(t, map[string]string{"AAPL": "150"})
	ctx := context.Background()

	added, err := h.svc.AddPosition(ctx, lot("AAPL", "Acct1", "10", "100"))
	require.NoError(t, err)

	res, err := h.svc.RemovePosition(ctx, added.Position.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Removed)
	assert.Empty(t, res.Summary.Holdings)

	_, err = h.svc.RemovePosition(ctx, added.Position.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	types := h.events.types()
	assert.Equal(t, models.EventPositionRemoved, types[len(types)-1])
}

func TestClearPositions(t *testing.T) {
	h := newHarness(t, map[string]string{"AAPL": "150"})
	ctx := context.Background()

	_, err := h.svc.ImportPositions(ctx, []models.Position{
		lot("AAPL", "Acct1", "1", "100"),
		lot("AAPL", "Acct2", "1", "100"),
		lot("CASH", "Acct1", "500", "1"),
	})
	require.NoError(t, err)

	res, err := h.svc.ClearPositions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Removed)
	assert.Empty(t, res.Summary.Holdings)
	assert.Empty(t, res.Summary.Accounts)
}

func TestGetHoldings_SearchAndSort(t *testing.T) {
	h := newHarness(t, map[string]string{"AAPL": "150", "MSFT": "300", "AMZN": "100"})
	ctx := context.Background()

	_, err := h.svc.ImportPositions(ctx, []models.Position{
		lot("AAPL", "Acct1", "1", "100"),
		lot("MSFT", "Acct1", "1", "100"),
		lot("AMZN", "Acct1", "1", "100"),
	})
	require.NoError(t, err)

	holdings, err := h.svc.GetHoldings(ctx, HoldingsQuery{Sort: "value", Descending: true})
	require.NoError(t, err)
	require.Len(t, holdings, 3)
	assert.Equal(t, []string{"MSFT", "AAPL", "AMZN"}, []string{holdings[0].Ticker, holdings[1].Ticker, holdings[2].Ticker})

	holdings, err = h.svc.GetHoldings(ctx, HoldingsQuery{Search: "a"})
	require.NoError(t, err)
	require.Len(t, holdings, 2)
	assert.Equal(t, "AAPL", holdings[0].Ticker)
	assert.Equal(t, "AMZN", holdings[1].Ticker)

	_, err = h.svc.GetHoldings(ctx, HoldingsQuery{Sort: "colour"})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestGetAccounts(t *testing.T) {
	h := newHarness(t, map[string]string{"AAPL": "150"})
	ctx := context.Background()

	_, err := h.svc.ImportPositions(ctx, []models.Position{
		lot("AAPL", "IRA", "10", "100"),
		lot("CASH", "IRA", "500", "1"),
		lot("AAPL", "Taxable", "2", "120"),
	})
	require.NoError(t, err)

	accounts, err := h.svc.GetAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.True(t, accounts["IRA"].TotalValue.Equal(decimal.NewFromInt(2000)))
	assert.True(t, accounts["Taxable"].TotalValue.Equal(decimal.NewFromInt(300)))
}

func TestEventFailureDoesNotFailMutation(t *testing.T) {
	h := newHarness(t, map[string]string{"AAPL": "150"})
	h.events.err = errors.New("broker unavailable")

	res, err := h.svc.AddPosition(context.Background(), lot("AAPL", "Acct1", "1", "100"))
	require.NoError(t, err)
	assert.Contains(t, res.EventError, "broker unavailable")

	positions, err := h.svc.ListPositions(context.Background())
	require.NoError(t, err)
	assert.Len(t, positions, 1)
}

func TestEventsCarryActor(t *testing.T) {
	h := newHarness(t, map[string]string{"AAPL": "150"})

	_, err := h.svc.AddPosition(context.Background(), lot("AAPL", "Acct1", "1", "100"))
	require.NoError(t, err)
	ctx := common.WithIdentity(context.Background(), &common.Identity{Subject: "alice"})
	_, err = h.svc.AddPosition(ctx, lot("AAPL", "Acct2", "1", "100"))
	require.NoError(t, err)

	require.Len(t, h.events.events, 2)
	assert.Equal(t, "local", h.events.events[0].Actor)
	assert.Equal(t, "alice", h.events.events[1].Actor)
	assert.Equal(t, "AAPL|Acct2", h.events.events[1].Key())
}

func TestRefreshStatus(t *testing.T) {
	h := newHarness(t, nil)
	status := h.svc.RefreshStatus()
	assert.Equal(t, models.RefreshStateIdle, status.State)
	assert.Equal(t, "2h0m0s", status.StalenessWindow)

	_, err := h.svc.Refresh(context.Background())
	require.NoError(t, err)
	assert.False(t, h.svc.RefreshStatus().LastRefreshedAt.IsZero())
}

// slowPublisher blocks until its context ends and records how many forced
// refreshes had already happened.
type slowPublisher struct {
	coord         *stubCoordinator
	refreshesSeen int
}

func (p *slowPublisher) Publish(ctx context.Context, e models.LedgerEvent) error {
	p.coord.mu.Lock()
	p.refreshesSeen = len(p.coord.calls)
	p.coord.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func (p *slowPublisher) Close() error { return nil }

func TestAfterMutation_PublishIsBoundedAndFollowsRefresh(t *testing.T) {
	logger := common.NewSilentLogger()
	store := memory.NewManager()
	l := ledger.NewLedger(store.LedgerStore(), logger)
	engine := consolidate.NewEngine(l, store.LedgerStore(), common.ZeroQuantityError, logger)
	coord := &stubCoordinator{}
	pub := &slowPublisher{coord: coord}
	svc := NewService(l, engine, store.PriceStore(), coord, pub, logger, WithPublishTimeout(20*time.Millisecond))

	start := time.Now()
	res, err := svc.AddPosition(context.Background(), lot("AAPL", "Acct1", "1", "100"))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	require.NotNil(t, res.Summary, "write result is served despite the stuck broker")
	assert.Len(t, res.Summary.Holdings, 1)
	assert.Contains(t, res.EventError, context.DeadlineExceeded.Error())
	assert.Equal(t, 1, pub.refreshesSeen, "event is published after the forced refresh")
}

