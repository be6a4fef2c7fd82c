package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bobmcallan/folio/internal/clients/eodhd"
	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/events"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/services/consolidate"
	"github.com/bobmcallan/folio/internal/services/ledger"
	"github.com/bobmcallan/folio/internal/services/portfolio"
	"github.com/bobmcallan/folio/internal/services/pricejob"
	"github.com/bobmcallan/folio/internal/services/refresh"
	"github.com/bobmcallan/folio/internal/storage"
	"github.com/bobmcallan/folio/internal/storage/pricecache"
)

// App holds all initialized services and clients.
// It is the shared core used by both cmd/folio-server and cmd/folio.
type App struct {
	Config      *common.Config
	Logger      *common.Logger
	Storage     interfaces.StorageManager
	Prices      interfaces.PriceStore
	Quotes      interfaces.QuoteSource
	Ledger      *ledger.Ledger
	Engine      *consolidate.Engine
	Job         *pricejob.Job
	Refresh     *refresh.Coordinator
	Events      interfaces.EventPublisher
	Portfolio   *portfolio.Service
	StartupTime time.Time

	priceCache      *pricecache.Cache
	schedulerCancel context.CancelFunc
	warmCacheCancel context.CancelFunc
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// ResolveConfigPath returns configPath, else FOLIO_CONFIG, else folio.toml
// next to the binary, else config/folio.toml.
func ResolveConfigPath(configPath string) string {
	if configPath == "" {
		configPath = os.Getenv("FOLIO_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(getBinaryDir(), "folio.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/folio.toml" // fallback for development
		}
	}
	return configPath
}

// NewApp loads configuration, opens storage, and wires every service.
// configPath may be empty, in which case ResolveConfigPath decides.
func NewApp(configPath string) (*App, error) {
	common.LoadVersionFromFile()

	config, err := common.LoadConfig(ResolveConfigPath(configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return NewAppFromConfig(context.Background(), config)
}

// NewAppFromConfig wires an App from an already loaded config.
func NewAppFromConfig(ctx context.Context, config *common.Config) (*App, error) {
	logger := common.NewLoggerFromConfig(config.Logging)

	storageManager, err := storage.NewStorageManager(ctx, logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	a, err := New(config, logger, storageManager, newQuoteSource(config, logger))
	if err != nil {
		storageManager.Close()
		return nil, err
	}
	return a, nil
}

func newQuoteSource(config *common.Config, logger *common.Logger) interfaces.QuoteSource {
	if config.Clients.EODHD.APIKey == "" {
		logger.Warn().Msg("EODHD API key not configured - prices will be unavailable")
		return pricejob.NewStaticQuoteSource(nil)
	}
	return eodhd.NewClientFromConfig(config.Clients.EODHD, logger)
}

// New wires services around an open storage manager and quote source.
func New(config *common.Config, logger *common.Logger, storageManager interfaces.StorageManager, quotes interfaces.QuoteSource) (*App, error) {
	startupStart := time.Now()

	a := &App{
		Config:      config,
		Logger:      logger,
		Storage:     storageManager,
		Prices:      storageManager.PriceStore(),
		Quotes:      quotes,
		StartupTime: startupStart,
	}

	if config.PriceCache.Enabled {
		cache, err := pricecache.New(storageManager.PriceStore(), config.PriceCache.GetTTL(), config.PriceCache.MaxCost, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize price cache: %w", err)
		}
		a.priceCache = cache
		a.Prices = cache
	}

	window := config.Refresh.GetStalenessWindow()

	a.Ledger = ledger.NewLedger(storageManager.LedgerStore(), logger)
	a.Engine = consolidate.NewEngine(a.Ledger, storageManager.LedgerStore(), config.Ledger.ZeroQuantityPolicy, logger)
	a.Job = pricejob.NewJob(
		storageManager.LedgerStore(),
		a.Prices,
		storageManager.InternalStore(),
		quotes,
		logger,
		pricejob.WithStalenessWindow(window),
	)

	opts := []refresh.Option{
		refresh.WithStalenessWindow(window),
		refresh.WithTimeout(config.Refresh.GetTimeout()),
	}
	if a.priceCache != nil {
		opts = append(opts, refresh.WithInvalidation(a.priceCache.Invalidate))
	}
	a.Refresh = refresh.NewCoordinator(a.Job, logger, opts...)

	a.Events = events.NewPublisher(config.Events, logger)
	a.Portfolio = portfolio.NewService(a.Ledger, a.Engine, a.Prices, a.Refresh, a.Events, logger,
		portfolio.WithPublishTimeout(config.Events.GetPublishTimeout()))

	logger.Info().
		Str("storage", config.Storage.Backend).
		Str("quotes", quotes.Name()).
		Bool("price_cache", a.priceCache != nil).
		Dur("staleness_window", window).
		Dur("startup", time.Since(startupStart)).
		Msg("App initialized")

	return a, nil
}

// Close releases all resources held by the App.
// Shutdown order: cancel scheduler, cancel warm cache, close events, cache, storage.
func (a *App) Close() {
	if a.schedulerCancel != nil {
		a.schedulerCancel()
		a.schedulerCancel = nil
	}
	if a.warmCacheCancel != nil {
		a.warmCacheCancel()
		a.warmCacheCancel = nil
	}
	if a.Events != nil {
		if err := a.Events.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event publisher")
		}
		a.Events = nil
	}
	if a.priceCache != nil {
		a.priceCache.Close()
		a.priceCache = nil
	}
	if a.Storage != nil {
		if err := a.Storage.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close storage")
		}
		a.Storage = nil
	}
}

// StartWarmCache launches a one-off non-forced refresh so the first read
// does not pay for it.
func (a *App) StartWarmCache() {
	if !a.Config.Refresh.WarmOnStart {
		return
	}
	warmCtx, warmCancel := context.WithTimeout(context.Background(), a.Config.Refresh.GetTimeout())
	a.warmCacheCancel = warmCancel
	go func() {
		defer warmCancel()
		warmCache(warmCtx, a.Refresh, a.Logger)
	}()
}

// StartPriceScheduler launches the background refresh loop when an
// interval is configured.
func (a *App) StartPriceScheduler() {
	interval := a.Config.Refresh.GetScheduleInterval()
	if interval <= 0 {
		a.Logger.Info().Msg("Price scheduler disabled")
		return
	}
	schedulerCtx, schedulerCancel := context.WithCancel(context.Background())
	a.schedulerCancel = schedulerCancel
	go startPriceScheduler(schedulerCtx, a.Refresh, a.Logger, interval)
}
