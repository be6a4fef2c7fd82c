package pricejob

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/folio/internal/clients/eodhd"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

// StaticQuoteSource serves fixed prices. With no prices set it knows no
// ticker, which keeps the server usable without an API key.
type StaticQuoteSource struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

// NewStaticQuoteSource creates a source from ticker -> price.
func NewStaticQuoteSource(prices map[string]decimal.Decimal) *StaticQuoteSource {
	s := &StaticQuoteSource{prices: make(map[string]decimal.Decimal, len(prices))}
	for t, p := range prices {
		s.prices[models.NormalizeTicker(t)] = p
	}
	return s
}

// Set changes the price of a ticker.
func (s *StaticQuoteSource) Set(ticker string, price decimal.Decimal) {
	s.mu.Lock()
	s.prices[models.NormalizeTicker(ticker)] = price
	s.mu.Unlock()
}

func (s *StaticQuoteSource) Name() string { return "static" }

func (s *StaticQuoteSource) GetQuote(ctx context.Context, ticker string) (*interfaces.Quote, error) {
	s.mu.RLock()
	price, ok := s.prices[models.NormalizeTicker(ticker)]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", ticker, eodhd.ErrQuoteNotFound)
	}
	return &interfaces.Quote{Symbol: ticker, Close: price, Timestamp: time.Now()}, nil
}
