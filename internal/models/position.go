// Package models defines data structures for Folio
package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CashTicker is the reserved ticker for uninvested cash. It is always priced at 1.
const CashTicker = "CASH"

// PositionType classifies a holding for allocation reporting.
type PositionType string

const (
	PositionTypeUnknown PositionType = ""
	PositionTypeStock   PositionType = "stock"
	PositionTypeETF     PositionType = "etf"
	PositionTypeCash    PositionType = "cash"
)

// ValidPositionType returns true if t is an accepted position type.
func ValidPositionType(t PositionType) bool {
	switch t {
	case PositionTypeUnknown, PositionTypeStock, PositionTypeETF, PositionTypeCash:
		return true
	default:
		return false
	}
}

// Position is a single ledger entry: a quantity of one ticker held in one
// account at a per-unit cost basis.
type Position struct {
	ID        string          `json:"id"`
	Ticker    string          `json:"ticker"`
	Account   string          `json:"account"`
	Quantity  decimal.Decimal `json:"quantity"`
	CostBasis decimal.Decimal `json:"cost_basis"`
	Type      PositionType    `json:"type,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// PositionKey identifies the consolidation group of a position.
type PositionKey struct {
	Ticker  string
	Account string
}

// String returns "ticker|account", used for lock and message keys.
func (k PositionKey) String() string {
	return k.Ticker + "|" + k.Account
}

// Key returns the (ticker, account) pair of the position.
func (p Position) Key() PositionKey {
	return PositionKey{Ticker: p.Ticker, Account: p.Account}
}

// IsCash reports whether the position holds the cash sentinel.
func (p Position) IsCash() bool {
	return p.Ticker == CashTicker
}

// CostValue returns quantity × cost basis.
func (p Position) CostValue() decimal.Decimal {
	return p.Quantity.Mul(p.CostBasis)
}

// NormalizeTicker trims and upper-cases a ticker symbol.
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// Normalize canonicalises user input in place: ticker upper-cased, account
// trimmed, type lower-cased, and CASH inferred as a cash position.
func (p *Position) Normalize() {
	p.Ticker = NormalizeTicker(p.Ticker)
	p.Account = strings.TrimSpace(p.Account)
	p.Type = PositionType(strings.ToLower(strings.TrimSpace(string(p.Type))))
	if p.Ticker == CashTicker && p.Type == PositionTypeUnknown {
		p.Type = PositionTypeCash
	}
}

// PositionUpdate is a partial update. Nil fields are left unchanged.
type PositionUpdate struct {
	Ticker    *string          `json:"ticker,omitempty"`
	Account   *string          `json:"account,omitempty"`
	Quantity  *decimal.Decimal `json:"quantity,omitempty"`
	CostBasis *decimal.Decimal `json:"cost_basis,omitempty"`
	Type      *PositionType    `json:"type,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u PositionUpdate) IsEmpty() bool {
	return u.Ticker == nil && u.Account == nil && u.Quantity == nil && u.CostBasis == nil && u.Type == nil
}

// Apply returns a copy of p with the non-nil fields of u merged in.
func (u PositionUpdate) Apply(p Position) Position {
	if u.Ticker != nil {
		p.Ticker = *u.Ticker
	}
	if u.Account != nil {
		p.Account = *u.Account
	}
	if u.Quantity != nil {
		p.Quantity = *u.Quantity
	}
	if u.CostBasis != nil {
		p.CostBasis = *u.CostBasis
	}
	if u.Type != nil {
		p.Type = *u.Type
	}
	return p
}
