package app

import (
	"context"
	"time"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
)

// startPriceScheduler asks the coordinator for freshness on a fixed
// interval. The coordinator skips the job while prices are within the
// staleness window, so a short interval costs nothing between refreshes.
func startPriceScheduler(ctx context.Context, coordinator interfaces.RefreshCoordinator, logger *common.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info().Dur("interval", interval).Msg("Price scheduler: started")
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Price scheduler: stopped")
			return
		case <-ticker.C:
			refreshPrices(ctx, coordinator, logger)
		}
	}
}

func refreshPrices(ctx context.Context, coordinator interfaces.RefreshCoordinator, logger *common.Logger) {
	start := time.Now()
	outcome, err := coordinator.EnsureFresh(ctx, false)
	if err != nil {
		logger.Warn().Err(err).Msg("Price scheduler: refresh failed")
		return
	}
	logger.Debug().
		Str("outcome", string(outcome)).
		Dur("elapsed", time.Since(start)).
		Msg("Price scheduler: tick complete")
}
