package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestEodhdExchange(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"ASX", "AU"},
		{"AU", "AU"},
		{"NYSE", "US"},
		{"NASDAQ", "US"},
		{"LSE", "LSE"},
		{"", "US"},
		{"xetra", "XETRA"},
	}
	for _, tt := range tests {
		got := EodhdExchange(tt.input)
		if got != tt.want {
			t.Errorf("EodhdExchange(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestEodhdSymbol(t *testing.T) {
	assert.Equal(t, "AAPL.US", EodhdSymbol("aapl", "NASDAQ"))
	assert.Equal(t, "BHP.AU", EodhdSymbol("BHP.AU", "US"))
	assert.Equal(t, "VTI", EodhdSymbol("vti", ""))
}

func TestPriceSnapshot_Lookup(t *testing.T) {
	asOf := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	snap := PriceSnapshot{
		"AAPL": {Ticker: "AAPL", Price: decimal.NewFromInt(150), LastRefreshedAt: asOf},
	}

	price, known, at := snap.Lookup("AAPL")
	assert.True(t, known)
	assert.True(t, price.Equal(decimal.NewFromInt(150)))
	assert.Equal(t, asOf, at)

	price, known, _ = snap.Lookup(CashTicker)
	assert.True(t, known)
	assert.True(t, price.Equal(decimal.NewFromInt(1)))

	price, known, _ = snap.Lookup("MSFT")
	assert.False(t, known)
	assert.True(t, price.IsZero())
}

func TestPosition_Normalize(t *testing.T) {
	p := Position{Ticker: "  cash ", Account: " Brokerage ", Type: ""}
	p.Normalize()

	assert.Equal(t, CashTicker, p.Ticker)
	assert.Equal(t, "Brokerage", p.Account)
	assert.Equal(t, PositionTypeCash, p.Type)
	assert.True(t, p.IsCash())

	q := Position{Ticker: "vti", Type: "ETF"}
	q.Normalize()
	assert.Equal(t, "VTI", q.Ticker)
	assert.Equal(t, PositionTypeETF, q.Type)
}

func TestPositionUpdate_Apply(t *testing.T) {
	base := Position{ID: "p1", Ticker: "AAPL", Account: "IRA", Quantity: decimal.NewFromInt(10), CostBasis: decimal.NewFromInt(100)}

	qty := decimal.NewFromInt(25)
	upd := PositionUpdate{Quantity: &qty}
	assert.False(t, upd.IsEmpty())

	got := upd.Apply(base)
	assert.True(t, got.Quantity.Equal(qty))
	assert.True(t, got.CostBasis.Equal(base.CostBasis))
	assert.Equal(t, "IRA", got.Account)
	assert.True(t, base.Quantity.Equal(decimal.NewFromInt(10)), "Apply must not mutate the original")

	assert.True(t, PositionUpdate{}.IsEmpty())
}

func TestPositionKey_String(t *testing.T) {
	p := Position{Ticker: "AAPL", Account: "Brokerage"}
	assert.Equal(t, "AAPL|Brokerage", p.Key().String())
}
