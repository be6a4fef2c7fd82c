// Package common provides shared utilities for Folio
package common

import "time"

// StalenessWindow is the age beyond which cached prices are too old for a
// non-forced read.
const StalenessWindow = 2 * time.Hour

// SystemKeyLastPriceRefresh is the system KV key holding the persisted
// "last refreshed" marker written by the price refresh job.
const SystemKeyLastPriceRefresh = "last_price_refresh"

// IsFresh returns true if updated is within ttl of now. A zero timestamp is
// never fresh. The boundary is inclusive: age == ttl is still fresh.
func IsFresh(updated, now time.Time, ttl time.Duration) bool {
	if updated.IsZero() {
		return false
	}
	return now.Sub(updated) <= ttl
}
