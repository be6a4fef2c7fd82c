package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PriceEntry is the cached market price of one ticker.
type PriceEntry struct {
	Ticker          string          `json:"ticker"`
	Price           decimal.Decimal `json:"price"`
	LastRefreshedAt time.Time       `json:"last_refreshed_at"`
	Source          string          `json:"source,omitempty"`
}

// PriceSnapshot is a read-only view of the price cache keyed by ticker.
type PriceSnapshot map[string]PriceEntry

// Lookup resolves the price of a ticker. CASH is always 1 and known.
// Unknown tickers return zero with known=false.
func (s PriceSnapshot) Lookup(ticker string) (price decimal.Decimal, known bool, asOf time.Time) {
	if ticker == CashTicker {
		return decimal.NewFromInt(1), true, time.Time{}
	}
	entry, ok := s[ticker]
	if !ok {
		return decimal.Zero, false, time.Time{}
	}
	return entry.Price, true, entry.LastRefreshedAt
}

// EodhdSymbol maps a ledger ticker to an EODHD symbol. Tickers that already
// carry an exchange suffix ("BHP.AU") pass through; bare tickers get the
// default exchange appended.
func EodhdSymbol(ticker, defaultExchange string) string {
	ticker = NormalizeTicker(ticker)
	if strings.Contains(ticker, ".") || defaultExchange == "" {
		return ticker
	}
	return ticker + "." + EodhdExchange(defaultExchange)
}

// EodhdExchange maps common exchange names (e.g. "ASX", "NYSE") to EODHD
// exchange codes (e.g. "AU", "US").
func EodhdExchange(exchange string) string {
	switch strings.ToUpper(exchange) {
	case "ASX", "AU":
		return "AU"
	case "NYSE", "NASDAQ", "US", "BATS", "AMEX", "ARCA":
		return "US"
	case "LSE", "LON":
		return "LSE"
	case "":
		return "US"
	default:
		return strings.ToUpper(exchange)
	}
}
