package models

import "time"

// LedgerEventType names a ledger mutation.
type LedgerEventType string

const (
	EventPositionAdded        LedgerEventType = "position.added"
	EventPositionConsolidated LedgerEventType = "position.consolidated"
	EventPositionUpdated      LedgerEventType = "position.updated"
	EventPositionRemoved      LedgerEventType = "position.removed"
	EventPositionsImported    LedgerEventType = "positions.imported"
	EventPositionsCleared     LedgerEventType = "positions.cleared"
)

// LedgerEvent is published after a ledger mutation commits.
type LedgerEvent struct {
	Type       LedgerEventType `json:"type"`
	Ticker     string          `json:"ticker,omitempty"`
	Account    string          `json:"account,omitempty"`
	PositionID string          `json:"position_id,omitempty"`
	Position   *Position       `json:"position,omitempty"`
	RemovedIDs []string        `json:"removed_ids,omitempty"`
	Count      int             `json:"count,omitempty"`
	Actor      string          `json:"actor"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Key returns the partition key for the event: "ticker|account" when the
// event concerns a single group, otherwise the event type.
func (e LedgerEvent) Key() string {
	if e.Ticker == "" {
		return string(e.Type)
	}
	return PositionKey{Ticker: e.Ticker, Account: e.Account}.String()
}
