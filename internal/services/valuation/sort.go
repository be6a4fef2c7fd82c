package valuation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/folio/internal/models"
)

// SortKey selects the holdings ordering.
type SortKey string

const (
	SortByTicker     SortKey = "ticker"
	SortByValue      SortKey = "value"
	SortByPnL        SortKey = "pnl"
	SortByPnLPercent SortKey = "pnl_percent"
	SortByWeight     SortKey = "weight"
)

// ParseSortKey validates a user-supplied sort key. Empty means ticker.
func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return SortByTicker, nil
	case SortByTicker, SortByValue, SortByPnL, SortByPnLPercent, SortByWeight:
		return k, nil
	default:
		return "", &models.ValidationError{
			Field:   "sort",
			Message: fmt.Sprintf("unknown sort key %q; must be ticker, value, pnl, pnl_percent, or weight", s),
		}
	}
}

func sortValue(h models.ConsolidatedHolding, key SortKey) decimal.Decimal {
	switch key {
	case SortByValue:
		return h.MarketValue
	case SortByPnL:
		return h.PnLDollar
	case SortByPnLPercent:
		return h.PnLPercent
	case SortByWeight:
		return h.PortfolioPercent
	default:
		return decimal.Zero
	}
}

// SortHoldings orders holdings in place. Equal keys fall back to ticker
// ascending regardless of direction.
func SortHoldings(holdings []models.ConsolidatedHolding, key SortKey, descending bool) {
	sort.SliceStable(holdings, func(i, j int) bool {
		a, b := holdings[i], holdings[j]
		if key != SortByTicker && key != "" {
			if c := sortValue(a, key).Cmp(sortValue(b, key)); c != 0 {
				if descending {
					return c > 0
				}
				return c < 0
			}
			return a.Ticker < b.Ticker
		}
		if descending {
			return a.Ticker > b.Ticker
		}
		return a.Ticker < b.Ticker
	})
}

// FilterHoldings keeps holdings whose ticker contains query, case-insensitively.
func FilterHoldings(holdings []models.ConsolidatedHolding, query string) []models.ConsolidatedHolding {
	q := strings.ToUpper(strings.TrimSpace(query))
	if q == "" {
		return holdings
	}
	out := make([]models.ConsolidatedHolding, 0, len(holdings))
	for _, h := range holdings {
		if strings.Contains(h.Ticker, q) {
			out = append(out, h)
		}
	}
	return out
}
