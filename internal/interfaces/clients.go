package interfaces

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a single price observation from a market data provider.
type Quote struct {
	Symbol    string
	Close     decimal.Decimal
	Timestamp time.Time
}

// QuoteSource fetches current prices for ledger tickers.
type QuoteSource interface {
	// GetQuote returns eodhd.ErrQuoteNotFound (or an error wrapping it) when
	// the provider does not know the ticker.
	GetQuote(ctx context.Context, ticker string) (*Quote, error)
	Name() string
}
