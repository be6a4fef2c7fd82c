package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/bobmcallan/folio/internal/models"
	"github.com/bobmcallan/folio/internal/services/consolidate"
	"github.com/bobmcallan/folio/internal/services/portfolio"
)

// formatMoney renders d in the given currency, rounded to its minor unit.
func formatMoney(d decimal.Decimal, code string) string {
	cur := money.GetCurrency(code)
	if cur == nil {
		cur = money.GetCurrency(money.USD)
	}
	minor := d.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, cur.Code).Display()
}

// formatSignedMoney is formatMoney with an explicit "+" on gains.
func formatSignedMoney(d decimal.Decimal, code string) string {
	if d.IsPositive() {
		return "+" + formatMoney(d, code)
	}
	return formatMoney(d, code)
}

func formatPercent(d decimal.Decimal) string {
	return d.StringFixed(2) + "%"
}

func formatPrice(h models.ConsolidatedHolding, code string) string {
	if !h.PriceKnown {
		return "n/a"
	}
	return formatMoney(h.CurrentPrice, code)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
}

func writePositions(w io.Writer, ps []models.Position, code string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTICKER\tACCOUNT\tQUANTITY\tCOST BASIS\tTYPE\t")
	for _, p := range ps {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t\n",
			p.ID, p.Ticker, p.Account, p.Quantity.String(), formatMoney(p.CostBasis, code), p.Type)
	}
	tw.Flush()
}

func writeHoldings(w io.Writer, holdings []models.ConsolidatedHolding, code string) {
	tw := newTable(w)
	fmt.Fprintln(tw, "TICKER\tQUANTITY\tPRICE\tMARKET VALUE\tCOST\tP&L\tP&L %\tWEIGHT\tLOTS\t")
	for _, h := range holdings {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\t\n",
			h.Ticker,
			h.TotalQuantity.String(),
			formatPrice(h, code),
			formatMoney(h.MarketValue, code),
			formatMoney(h.TotalCostValue, code),
			formatSignedMoney(h.PnLDollar, code),
			formatPercent(h.PnLPercent),
			formatPercent(h.PortfolioPercent),
			h.LotCount,
		)
	}
	tw.Flush()
}

func writeAccounts(w io.Writer, accounts map[string]*models.AccountGroup, code string) {
	names := make([]string, 0, len(accounts))
	for name := range accounts {
		names = append(names, name)
	}
	sort.Strings(names)

	for i, name := range names {
		g := accounts[name]
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s  value %s  cost %s  P&L %s (%s)\n",
			name,
			formatMoney(g.TotalValue, code),
			formatMoney(g.TotalCost, code),
			formatSignedMoney(g.PnL, code),
			formatPercent(g.PnLPercentage),
		)
		tw := newTable(w)
		fmt.Fprintln(tw, "TICKER\tQUANTITY\tCOST BASIS\tVALUE\tP&L\t")
		for _, p := range g.Positions {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t\n",
				p.Ticker, p.Quantity.String(), formatMoney(p.CostBasis, code),
				formatMoney(p.CurrentValue, code), formatSignedMoney(p.PnL, code))
		}
		tw.Flush()
	}
}

func writeFreshness(w io.Writer, f models.Freshness) {
	fmt.Fprintf(w, "Prices: %s (last refresh %s)", f.Outcome, formatTime(f.LastRefreshedAt))
	if !f.OldestPriceAt.IsZero() {
		fmt.Fprintf(w, ", oldest quote %s", formatTime(f.OldestPriceAt))
	}
	if f.Stale {
		fmt.Fprintf(w, "  STALE: %s", f.Error)
	}
	fmt.Fprintln(w)
}

func writeSummary(w io.Writer, s *models.PortfolioSummary, code string) {
	writeHoldings(w, s.Holdings, code)
	fmt.Fprintln(w)

	t := s.Totals
	fmt.Fprintf(w, "Market value  %s\n", formatMoney(t.MarketValue, code))
	fmt.Fprintf(w, "Cost          %s\n", formatMoney(t.CostValue, code))
	fmt.Fprintf(w, "P&L           %s (%s)\n", formatSignedMoney(t.PnLDollar, code), formatPercent(t.PnLPercent))
	fmt.Fprintf(w, "Holdings      %d across %d accounts", t.HoldingCount, t.AccountCount)
	if t.UnpricedCount > 0 {
		fmt.Fprintf(w, ", %d unpriced", t.UnpricedCount)
	}
	fmt.Fprintln(w)

	if len(s.Allocation) > 0 {
		parts := make([]string, 0, len(s.Allocation))
		for _, a := range s.Allocation {
			label := string(a.Type)
			if label == "" {
				label = "other"
			}
			parts = append(parts, fmt.Sprintf("%s %s", label, formatPercent(a.Percent)))
		}
		fmt.Fprintf(w, "Allocation    %s\n", strings.Join(parts, ", "))
	}
	writeFreshness(w, s.Freshness)
}

func writeConsolidation(w io.Writer, res *consolidate.Result, code string) {
	if res == nil {
		return
	}
	switch {
	case res.Deleted > 0:
		fmt.Fprintf(w, "Deleted %d zero-quantity records\n", res.Deleted)
	case res.Merged > 0 && res.Survivor != nil:
		fmt.Fprintf(w, "Merged %d records into %s: %s @ %s\n",
			res.Merged, res.Survivor.ID, res.Survivor.Quantity.String(), formatMoney(res.Survivor.CostBasis, code))
	}
}

// writeMutation prints the outcome of a write followed by the refreshed summary.
func writeMutation(w io.Writer, verb string, res *portfolio.MutationResult, code string) {
	switch {
	case res.Position != nil:
		fmt.Fprintf(w, "%s %s %s in %s (%s)\n", verb, res.Position.Quantity.String(), res.Position.Ticker, res.Position.Account, res.Position.ID)
	case len(res.Positions) > 0:
		fmt.Fprintf(w, "%s %d positions\n", verb, len(res.Positions))
	default:
		fmt.Fprintf(w, "%s %d positions\n", verb, res.Removed)
	}
	writeConsolidation(w, res.Consolidation, code)
	if res.EventError != "" {
		fmt.Fprintf(w, "Warning: ledger event not published: %s\n", res.EventError)
	}
	if res.Summary != nil {
		fmt.Fprintln(w)
		writeSummary(w, res.Summary, code)
	}
}
