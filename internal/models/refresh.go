package models

import "time"

// RefreshOutcome records what EnsureFresh did.
type RefreshOutcome string

const (
	RefreshSkipped   RefreshOutcome = "skipped"
	RefreshRefreshed RefreshOutcome = "refreshed"
	RefreshFailed    RefreshOutcome = "failed"
)

// RefreshState is the coordinator's observable state.
type RefreshState string

const (
	RefreshStateIdle       RefreshState = "idle"
	RefreshStateChecking   RefreshState = "checking"
	RefreshStateSkipped    RefreshState = "skipped"
	RefreshStateRefreshing RefreshState = "refreshing"
)

// Freshness describes the price data behind a summary.
type Freshness struct {
	LastRefreshedAt time.Time      `json:"last_refreshed_at,omitempty"`
	OldestPriceAt   time.Time      `json:"oldest_price_at,omitempty"`
	Outcome         RefreshOutcome `json:"outcome"`
	Stale           bool           `json:"stale"`
	Error           string         `json:"error,omitempty"`
}

// RefreshStatus is the coordinator status exposed to operators.
type RefreshStatus struct {
	State           RefreshState `json:"state"`
	LastRefreshedAt time.Time    `json:"last_refreshed_at,omitempty"`
	StalenessWindow string       `json:"staleness_window"`
	Waiters         int          `json:"waiters"`
}
