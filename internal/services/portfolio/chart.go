package portfolio

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/bobmcallan/folio/internal/models"
)

// ErrNothingToChart is returned when there is no market value to draw.
var ErrNothingToChart = errors.New("no priced holdings to chart")

var typeColors = map[models.PositionType]drawing.Color{
	models.PositionTypeStock:   drawing.ColorFromHex("2563eb"), // blue-600
	models.PositionTypeETF:     drawing.ColorFromHex("16a34a"), // green-600
	models.PositionTypeCash:    drawing.ColorFromHex("9ca3af"), // gray-400
	models.PositionTypeUnknown: drawing.ColorFromHex("f59e0b"), // amber-500
}

// RenderAllocationChart renders a PNG pie of market value by position type.
func RenderAllocationChart(allocation []models.TypeAllocation) ([]byte, error) {
	values := make([]chart.Value, 0, len(allocation))
	for _, a := range allocation {
		v, _ := a.MarketValue.Float64()
		if v <= 0 {
			continue
		}
		label := string(a.Type)
		if label == "" {
			label = "other"
		}
		values = append(values, chart.Value{
			Label: fmt.Sprintf("%s %s%%", strings.ToUpper(label), a.Percent.StringFixed(1)),
			Value: v,
			Style: chart.Style{FillColor: typeColors[a.Type], StrokeColor: drawing.ColorWhite, StrokeWidth: 1},
		})
	}
	if len(values) == 0 {
		return nil, ErrNothingToChart
	}

	pie := chart.PieChart{
		Title:  "Allocation",
		Width:  512,
		Height: 512,
		Values: values,
	}

	var buf bytes.Buffer
	if err := pie.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderHoldingsChart renders a PNG bar chart of market value per ticker.
// Unpriced holdings are omitted.
func RenderHoldingsChart(holdings []models.ConsolidatedHolding) ([]byte, error) {
	bars := make([]chart.Value, 0, len(holdings))
	maxValue := 0.0
	for _, h := range holdings {
		if !h.PriceKnown {
			continue
		}
		v, _ := h.MarketValue.Float64()
		if v <= 0 {
			continue
		}
		if v > maxValue {
			maxValue = v
		}
		bars = append(bars, chart.Value{
			Label: h.Ticker,
			Value: v,
			Style: chart.Style{FillColor: typeColors[h.Type], StrokeColor: typeColors[h.Type]},
		})
	}
	if len(bars) == 0 {
		return nil, ErrNothingToChart
	}

	graph := chart.BarChart{
		Title:    "Holdings by Market Value",
		Width:    900,
		Height:   400,
		BarWidth: 40,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		UseBaseValue: true,
		BaseValue:    0,
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: maxValue * 1.1},
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("$%.0fk", f/1000)
				}
				return ""
			},
		},
		Bars: bars,
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}
	return buf.Bytes(), nil
}
