package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/events"
	"github.com/bobmcallan/folio/internal/models"
	"github.com/bobmcallan/folio/internal/services/portfolio"
	"github.com/bobmcallan/folio/internal/services/pricejob"
	"github.com/bobmcallan/folio/internal/storage/memory"
)

func newTestApp(t *testing.T, prices map[string]string, mutate ...func(*common.Config)) (*App, *pricejob.StaticQuoteSource) {
	t.Helper()
	cfg := common.NewDefaultConfig()
	cfg.Storage.Backend = common.BackendMemory
	for _, m := range mutate {
		m(cfg)
	}

	quotes := make(map[string]decimal.Decimal, len(prices))
	for k, v := range prices {
		quotes[k] = decimal.RequireFromString(v)
	}
	source := pricejob.NewStaticQuoteSource(quotes)

	a, err := New(cfg, common.NewSilentLogger(), memory.NewManager(), source)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a, source
}

func TestNew_WiresServices(t *testing.T) {
	a, _ := newTestApp(t, nil)

	assert.NotNil(t, a.Ledger)
	assert.NotNil(t, a.Engine)
	assert.NotNil(t, a.Job)
	assert.NotNil(t, a.Refresh)
	assert.NotNil(t, a.Portfolio)
	assert.NotNil(t, a.priceCache, "cache enabled by default")
	assert.False(t, a.StartupTime.IsZero())
	_, ok := a.Events.(events.NopPublisher)
	assert.True(t, ok, "events disabled by default")
}

func TestNew_CacheDisabled(t *testing.T) {
	a, _ := newTestApp(t, nil, func(c *common.Config) { c.PriceCache.Enabled = false })
	assert.Nil(t, a.priceCache)
	assert.Equal(t, a.Storage.PriceStore(), a.Prices)
}

func TestApp_EndToEnd(t *testing.T) {
	a, _ := newTestApp(t, map[string]string{"AAPL": "150"})
	ctx := context.Background()

	_, err := a.Portfolio.AddPosition(ctx, models.Position{
		Ticker: "AAPL", Account: "Acct1",
		Quantity: decimal.NewFromInt(10), CostBasis: decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	res, err := a.Portfolio.AddPosition(ctx, models.Position{
		Ticker: "AAPL", Account: "Acct1",
		Quantity: decimal.NewFromInt(10), CostBasis: decimal.NewFromInt(120),
	})
	require.NoError(t, err)

	require.Len(t, res.Summary.Holdings, 1)
	h := res.Summary.Holdings[0]
	assert.True(t, h.MarketValue.Equal(decimal.NewFromInt(3000)))
	assert.Equal(t, "36.36", h.PnLPercent.StringFixed(2))
}

func TestApp_RefreshInvalidatesPriceCache(t *testing.T) {
	a, source := newTestApp(t, map[string]string{"AAPL": "150"})
	ctx := context.Background()

	_, err := a.Portfolio.AddPosition(ctx, models.Position{
		Ticker: "AAPL", Account: "Acct1",
		Quantity: decimal.NewFromInt(1), CostBasis: decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	// Populate the cache, then move the price and force a refresh
	summary, err := a.Portfolio.GetSummary(ctx, portfolio.SummaryOptions{})
	require.NoError(t, err)
	assert.True(t, summary.Holdings[0].CurrentPrice.Equal(decimal.NewFromInt(150)))

	source.Set("AAPL", decimal.NewFromInt(175))
	summary, err = a.Portfolio.GetSummary(ctx, portfolio.SummaryOptions{Force: true})
	require.NoError(t, err)
	assert.True(t, summary.Holdings[0].CurrentPrice.Equal(decimal.NewFromInt(175)),
		"post-refresh read must not see cached pre-refresh prices")
}

func TestStartPriceScheduler_Ticks(t *testing.T) {
	a, _ := newTestApp(t, nil, func(c *common.Config) { c.Refresh.ScheduleInterval = "10ms" })

	a.StartPriceScheduler()
	assert.Eventually(t, func() bool { return !a.Refresh.LastRefreshedAt().IsZero() }, 2*time.Second, 10*time.Millisecond)
}

func TestStartPriceScheduler_Disabled(t *testing.T) {
	a, _ := newTestApp(t, nil, func(c *common.Config) { c.Refresh.ScheduleInterval = "0" })

	a.StartPriceScheduler()
	assert.Nil(t, a.schedulerCancel)
}

func TestStartWarmCache(t *testing.T) {
	a, _ := newTestApp(t, nil)

	a.StartWarmCache()
	assert.Eventually(t, func() bool { return !a.Refresh.LastRefreshedAt().IsZero() }, 2*time.Second, 10*time.Millisecond)
}

func TestWarmCache_DisabledByEnv(t *testing.T) {
	t.Setenv("FOLIO_WARM_CACHE", "off")
	a, _ := newTestApp(t, nil)

	warmCache(context.Background(), a.Refresh, a.Logger)
	assert.True(t, a.Refresh.LastRefreshedAt().IsZero())
}

func TestNewAppFromConfig_MemoryBackend(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Storage.Backend = common.BackendMemory
	cfg.Logging.Level = "error"

	a, err := NewAppFromConfig(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, "static", a.Quotes.Name(), "no API key falls back to the static source")
}

func TestResolveConfigPath(t *testing.T) {
	assert.Equal(t, "explicit.toml", ResolveConfigPath("explicit.toml"))

	t.Setenv("FOLIO_CONFIG", "/etc/folio/folio.toml")
	assert.Equal(t, "/etc/folio/folio.toml", ResolveConfigPath(""))
}

func TestLoadPositionsFile(t *testing.T) {
	dir := t.TempDir()

	arrayPath := filepath.Join(dir, "array.json")
	require.NoError(t, os.WriteFile(arrayPath, []byte(`[
		{"ticker": "AAPL", "account": "Acct1", "quantity": "10", "cost_basis": "100"},
		{"ticker": "VTI", "account": "IRA", "quantity": 5, "cost_basis": 200.5, "type": "etf"}
	]`), 0o644))

	ps, err := LoadPositionsFile(arrayPath)
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.Equal(t, "AAPL", ps[0].Ticker)
	assert.True(t, ps[1].CostBasis.Equal(decimal.RequireFromString("200.5")))
	assert.Equal(t, models.PositionTypeETF, ps[1].Type)

	wrappedPath := filepath.Join(dir, "wrapped.json")
	require.NoError(t, os.WriteFile(wrappedPath, []byte(`{"positions": [{"ticker": "CASH", "account": "IRA", "quantity": "500", "cost_basis": "1"}]}`), 0o644))
	ps, err = LoadPositionsFile(wrappedPath)
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, "CASH", ps[0].Ticker)

	_, err = LoadPositionsFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	_, err = ParsePositions([]byte(`{"positions": "nope"}`))
	assert.ErrorIs(t, err, ErrMalformedImport)

	_, err = ParsePositions([]byte(`[
		{"ticker": "AAPL", "account": "Acct1", "quantity": "10", "cost_basis": "100"},
		{"ticker": "MSFT", "account": "Acct1", "quantity": "abc", "cost_basis": "100"}
	]`))
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.NotErrorIs(t, err, ErrMalformedImport)
	var ve *models.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, 2, ve.Row)
	assert.Equal(t, "quantity", ve.Field)
}
