package portfolio

import (
	"bytes"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/folio/internal/models"
)

var pngMagic = []byte("\x89PNG")

func TestRenderAllocationChart(t *testing.T) {
	png, err := RenderAllocationChart([]models.TypeAllocation{
		{Type: models.PositionTypeStock, MarketValue: decimal.NewFromInt(600), Percent: decimal.NewFromInt(60)},
		{Type: models.PositionTypeCash, MarketValue: decimal.NewFromInt(400), Percent: decimal.NewFromInt(40)},
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, pngMagic))
}

func TestRenderAllocationChart_Empty(t *testing.T) {
	_, err := RenderAllocationChart(nil)
	assert.ErrorIs(t, err, ErrNothingToChart)

	_, err = RenderAllocationChart([]models.TypeAllocation{{Type: models.PositionTypeStock}})
	assert.ErrorIs(t, err, ErrNothingToChart)
}

func TestRenderHoldingsChart(t *testing.T) {
	png, err := RenderHoldingsChart([]models.ConsolidatedHolding{
		{Ticker: "AAPL", Type: models.PositionTypeStock, PriceKnown: true, MarketValue: decimal.NewFromInt(3000)},
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, pngMagic))

	_, err = RenderHoldingsChart([]models.ConsolidatedHolding{{Ticker: "ZZZZ"}})
	assert.ErrorIs(t, err, ErrNothingToChart)
}
