package app

import (
	"context"
	"os"
	"time"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
)

// warmCache refreshes stale prices on startup so the first read is fast.
func warmCache(ctx context.Context, coordinator interfaces.RefreshCoordinator, logger *common.Logger) {
	if os.Getenv("FOLIO_WARM_CACHE") == "off" {
		logger.Info().Msg("Warm cache: disabled via FOLIO_WARM_CACHE=off")
		return
	}

	start := time.Now()
	outcome, err := coordinator.EnsureFresh(ctx, false)
	if err != nil {
		logger.Warn().Err(err).Msg("Warm cache: price refresh failed")
		return
	}

	logger.Info().
		Str("outcome", string(outcome)).
		Dur("elapsed", time.Since(start)).
		Msg("Warm cache: complete")
}
