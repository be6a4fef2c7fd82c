package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ConsolidatedHolding is the per-ticker rollup across all accounts.
type ConsolidatedHolding struct {
	Ticker           string          `json:"ticker"`
	Type             PositionType    `json:"type,omitempty"`
	TotalQuantity    decimal.Decimal `json:"total_quantity"`
	TotalCostValue   decimal.Decimal `json:"total_cost_value"`
	CurrentPrice     decimal.Decimal `json:"current_price"`
	PriceKnown       bool            `json:"price_known"`
	PriceAsOf        time.Time       `json:"price_as_of,omitempty"`
	MarketValue      decimal.Decimal `json:"market_value"`
	PnLDollar        decimal.Decimal `json:"pnl_dollar"`
	PnLPercent       decimal.Decimal `json:"pnl_percent"`
	PortfolioPercent decimal.Decimal `json:"portfolio_percent"`
	Accounts         []string        `json:"accounts"`
	LotCount         int             `json:"lot_count"`
}

// EnrichedPosition is a ledger record with its current valuation.
type EnrichedPosition struct {
	Position
	CurrentPrice decimal.Decimal `json:"current_price"`
	PriceKnown   bool            `json:"price_known"`
	CurrentValue decimal.Decimal `json:"current_value"`
	CostValue    decimal.Decimal `json:"cost_value"`
	PnL          decimal.Decimal `json:"pnl"`
}

// AccountGroup is the per-account rollup.
type AccountGroup struct {
	Account       string             `json:"account"`
	Positions     []EnrichedPosition `json:"positions"`
	TotalValue    decimal.Decimal    `json:"total_value"`
	TotalCost     decimal.Decimal    `json:"total_cost"`
	PnL           decimal.Decimal    `json:"pnl"`
	PnLPercentage decimal.Decimal    `json:"pnl_percentage"`
}

// PortfolioTotals sums the active holdings.
type PortfolioTotals struct {
	MarketValue   decimal.Decimal `json:"market_value"`
	CostValue     decimal.Decimal `json:"cost_value"`
	PnLDollar     decimal.Decimal `json:"pnl_dollar"`
	PnLPercent    decimal.Decimal `json:"pnl_percent"`
	HoldingCount  int             `json:"holding_count"`
	AccountCount  int             `json:"account_count"`
	UnpricedCount int             `json:"unpriced_count"`
}

// TypeAllocation is the share of market value held in one position type.
type TypeAllocation struct {
	Type        PositionType    `json:"type"`
	MarketValue decimal.Decimal `json:"market_value"`
	Percent     decimal.Decimal `json:"percent"`
}

// PortfolioSummary is the full valuation view returned on reads.
type PortfolioSummary struct {
	Holdings   []ConsolidatedHolding    `json:"holdings"`
	Accounts   map[string]*AccountGroup `json:"accounts"`
	Totals     PortfolioTotals          `json:"totals"`
	Allocation []TypeAllocation         `json:"allocation"`
	Freshness  Freshness                `json:"freshness"`
}
