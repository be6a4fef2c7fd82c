// Package valuation computes holdings, account groups and totals from a
// ledger snapshot and a price snapshot. Every function is pure.
package valuation

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/folio/internal/models"
)

var hundred = decimal.NewFromInt(100)

// percentOf returns part/whole·100, or 0 when whole is not positive.
func percentOf(part, whole decimal.Decimal) decimal.Decimal {
	if !whole.IsPositive() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred)
}

// Valuate builds the full summary. Freshness is left for the caller.
func Valuate(positions []models.Position, prices models.PriceSnapshot) *models.PortfolioSummary {
	holdings := RollupByTicker(positions, prices)
	accounts := RollupByAccount(positions, prices)
	return &models.PortfolioSummary{
		Holdings:   holdings,
		Accounts:   accounts,
		Totals:     Totals(holdings, accounts),
		Allocation: AllocationByType(holdings),
	}
}

type tickerAcc struct {
	typ      models.PositionType
	qty      decimal.Decimal
	cost     decimal.Decimal
	accounts map[string]bool
	lots     int
}

// RollupByTicker aggregates positions per ticker across accounts. Only
// tickers with total quantity > 0 are returned, sorted by ticker.
func RollupByTicker(positions []models.Position, prices models.PriceSnapshot) []models.ConsolidatedHolding {
	byTicker := make(map[string]*tickerAcc)
	for _, p := range positions {
		acc, ok := byTicker[p.Ticker]
		if !ok {
			acc = &tickerAcc{accounts: make(map[string]bool)}
			byTicker[p.Ticker] = acc
		}
		acc.qty = acc.qty.Add(p.Quantity)
		acc.cost = acc.cost.Add(p.CostValue())
		if p.Quantity.IsPositive() {
			acc.accounts[p.Account] = true
			acc.lots++
		}
		if acc.typ == models.PositionTypeUnknown {
			acc.typ = p.Type
		}
	}

	holdings := make([]models.ConsolidatedHolding, 0, len(byTicker))
	for ticker, acc := range byTicker {
		if !acc.qty.IsPositive() {
			continue
		}
		price, known, asOf := prices.Lookup(ticker)
		market := acc.qty.Mul(price)
		if ticker == models.CashTicker {
			market = acc.qty
		}
		pnl := market.Sub(acc.cost)

		accounts := make([]string, 0, len(acc.accounts))
		for a := range acc.accounts {
			accounts = append(accounts, a)
		}
		sort.Strings(accounts)

		typ := acc.typ
		if ticker == models.CashTicker {
			typ = models.PositionTypeCash
		}

		holdings = append(holdings, models.ConsolidatedHolding{
			Ticker:         ticker,
			Type:           typ,
			TotalQuantity:  acc.qty,
			TotalCostValue: acc.cost,
			CurrentPrice:   price,
			PriceKnown:     known,
			PriceAsOf:      asOf,
			MarketValue:    market,
			PnLDollar:      pnl,
			PnLPercent:     percentOf(pnl, acc.cost),
			Accounts:       accounts,
			LotCount:       acc.lots,
		})
	}

	// Denominator computed once over all active holdings
	total := decimal.Zero
	for _, h := range holdings {
		total = total.Add(h.MarketValue)
	}
	for i := range holdings {
		holdings[i].PortfolioPercent = percentOf(holdings[i].MarketValue, total)
	}

	SortHoldings(holdings, SortByTicker, false)
	return holdings
}

// Enrich attaches current valuation to a single record.
func Enrich(p models.Position, prices models.PriceSnapshot) models.EnrichedPosition {
	price, known, _ := prices.Lookup(p.Ticker)
	value := p.Quantity.Mul(price)
	if p.IsCash() {
		value = p.Quantity
	}
	cost := p.CostValue()
	return models.EnrichedPosition{
		Position:     p,
		CurrentPrice: price,
		PriceKnown:   known,
		CurrentValue: value,
		CostValue:    cost,
		PnL:          value.Sub(cost),
	}
}

// RollupByAccount groups positions by account with per-record enrichment.
// Zero-quantity records are not listed and accounts without active records
// are omitted.
func RollupByAccount(positions []models.Position, prices models.PriceSnapshot) map[string]*models.AccountGroup {
	groups := make(map[string]*models.AccountGroup)
	for _, p := range positions {
		if !p.Quantity.IsPositive() {
			continue
		}
		g, ok := groups[p.Account]
		if !ok {
			g = &models.AccountGroup{Account: p.Account, Positions: []models.EnrichedPosition{}}
			groups[p.Account] = g
		}
		ep := Enrich(p, prices)
		g.Positions = append(g.Positions, ep)
		g.TotalValue = g.TotalValue.Add(ep.CurrentValue)
		g.TotalCost = g.TotalCost.Add(ep.CostValue)
	}

	for _, g := range groups {
		g.PnL = g.TotalValue.Sub(g.TotalCost)
		g.PnLPercentage = percentOf(g.PnL, g.TotalCost)
		sort.Slice(g.Positions, func(i, j int) bool {
			a, b := g.Positions[i], g.Positions[j]
			if a.Ticker != b.Ticker {
				return a.Ticker < b.Ticker
			}
			return a.ID < b.ID
		})
	}
	return groups
}

// Totals sums active holdings. AccountCount counts accounts with active records.
func Totals(holdings []models.ConsolidatedHolding, accounts map[string]*models.AccountGroup) models.PortfolioTotals {
	var t models.PortfolioTotals
	for _, h := range holdings {
		t.MarketValue = t.MarketValue.Add(h.MarketValue)
		t.CostValue = t.CostValue.Add(h.TotalCostValue)
		if !h.PriceKnown {
			t.UnpricedCount++
		}
	}
	t.PnLDollar = t.MarketValue.Sub(t.CostValue)
	t.PnLPercent = percentOf(t.PnLDollar, t.CostValue)
	t.HoldingCount = len(holdings)
	t.AccountCount = len(accounts)
	return t
}

// AllocationByType splits market value by position type, largest first.
func AllocationByType(holdings []models.ConsolidatedHolding) []models.TypeAllocation {
	byType := make(map[models.PositionType]decimal.Decimal)
	total := decimal.Zero
	for _, h := range holdings {
		byType[h.Type] = byType[h.Type].Add(h.MarketValue)
		total = total.Add(h.MarketValue)
	}

	out := make([]models.TypeAllocation, 0, len(byType))
	for typ, value := range byType {
		out = append(out, models.TypeAllocation{
			Type:        typ,
			MarketValue: value,
			Percent:     percentOf(value, total),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].MarketValue.Cmp(out[j].MarketValue); c != 0 {
			return c > 0
		}
		return out[i].Type < out[j].Type
	})
	return out
}

// OldestPrice returns the earliest PriceAsOf among priced non-cash holdings.
func OldestPrice(holdings []models.ConsolidatedHolding) time.Time {
	var oldest time.Time
	for _, h := range holdings {
		if !h.PriceKnown || h.PriceAsOf.IsZero() {
			continue
		}
		if oldest.IsZero() || h.PriceAsOf.Before(oldest) {
			oldest = h.PriceAsOf
		}
	}
	return oldest
}
