package ledger

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/models"
	"github.com/bobmcallan/folio/internal/storage/memory"
)

func newTestLedger() (*Ledger, *memory.LedgerStore) {
	store := memory.NewLedgerStore()
	return NewLedger(store, common.NewSilentLogger()), store
}

func pos(ticker, account string, qty, cost string) models.Position {
	return models.Position{
		Ticker:    ticker,
		Account:   account,
		Quantity:  decimal.RequireFromString(qty),
		CostBasis: decimal.RequireFromString(cost),
	}
}

func TestAppend_NormalisesAndAssignsID(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()

	got, err := l.Append(ctx, pos(" aapl ", " Brokerage ", "10", "100"))
	require.NoError(t, err)

	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "AAPL", got.Ticker)
	assert.Equal(t, "Brokerage", got.Account)
	assert.False(t, got.CreatedAt.IsZero())
	assert.Equal(t, got.CreatedAt, got.UpdatedAt)

	cash, err := l.Append(ctx, pos("cash", "Brokerage", "500", "1"))
	require.NoError(t, err)
	assert.Equal(t, models.PositionTypeCash, cash.Type)
}

func TestAppend_IDsOrderByCreation(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()

	var last string
	for i := 0; i < 20; i++ {
		p, err := l.Append(ctx, pos("AAPL", "IRA", "1", "1"))
		require.NoError(t, err)
		assert.Greater(t, p.ID, last)
		last = p.ID
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		p     models.Position
		field string
	}{
		{"empty ticker", pos("", "IRA", "1", "1"), "ticker"},
		{"long ticker", pos(strings.Repeat("X", 21), "IRA", "1", "1"), "ticker"},
		{"ticker with separator", pos("A|B", "IRA", "1", "1"), "ticker"},
		{"empty account", pos("AAPL", "", "1", "1"), "account"},
		{"long account", pos("AAPL", strings.Repeat("a", 101), "1", "1"), "account"},
		{"negative quantity", pos("AAPL", "IRA", "-1", "1"), "quantity"},
		{"huge quantity", pos("AAPL", "IRA", "1000000000000000", "1"), "quantity"},
		{"zero cost with quantity", pos("AAPL", "IRA", "5", "0"), "cost_basis"},
		{"negative cost", pos("AAPL", "IRA", "0", "-2"), "cost_basis"},
		{"bad type", models.Position{Ticker: "AAPL", Account: "IRA", Quantity: decimal.NewFromInt(1), CostBasis: decimal.NewFromInt(1), Type: "bond"}, "type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.p
			p.Normalize()
			err := Validate(p, 0)
			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrValidation)

			var ve *models.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestValidate_ZeroQuantityZeroCostAllowed(t *testing.T) {
	assert.NoError(t, Validate(pos("AAPL", "IRA", "0", "0"), 0))
}

func TestBulkAppend_AllOrNothing(t *testing.T) {
	l, store := newTestLedger()
	ctx := context.Background()

	_, err := l.BulkAppend(ctx, []models.Position{
		pos("AAPL", "IRA", "10", "100"),
		pos("MSFT", "IRA", "5", "300"),
		pos("GOOG", "", "1", "1"),
		pos("VTI", "IRA", "-1", "1"),
	})
	require.Error(t, err)

	var ve *models.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, 3, ve.Row, "first offending row is reported 1-based")
	assert.Equal(t, "account", ve.Field)
	assert.Contains(t, err.Error(), "row 3")

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all, "nothing persisted when any row fails")
}

func TestBulkAppend_PreservesLots(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()

	got, err := l.BulkAppend(ctx, []models.Position{
		pos("AAPL", "IRA", "10", "100"),
		pos("AAPL", "IRA", "5", "130"),
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.NotEqual(t, got[0].ID, got[1].ID)

	lots, err := l.FindByKey(ctx, "aapl", "IRA")
	require.NoError(t, err)
	assert.Len(t, lots, 2)
}

func TestBulkAppend_Empty(t *testing.T) {
	l, _ := newTestLedger()
	got, err := l.BulkAppend(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUpdate(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()

	p, err := l.Append(ctx, pos("AAPL", "IRA", "10", "100"))
	require.NoError(t, err)

	qty := decimal.NewFromInt(12)
	got, err := l.Update(ctx, p.ID, models.PositionUpdate{Quantity: &qty})
	require.NoError(t, err)
	assert.True(t, got.Quantity.Equal(qty))
	assert.True(t, got.CostBasis.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, p.CreatedAt, got.CreatedAt)

	neg := decimal.NewFromInt(-1)
	_, err = l.Update(ctx, p.ID, models.PositionUpdate{Quantity: &neg})
	assert.ErrorIs(t, err, models.ErrValidation)

	stored, err := l.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, stored.Quantity.Equal(qty), "rejected update leaves record unchanged")
}

func TestUpdateRemove_NotFound(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()

	qty := decimal.NewFromInt(1)
	_, err := l.Update(ctx, "missing", models.PositionUpdate{Quantity: &qty})
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.ErrorIs(t, l.Remove(ctx, "missing"), models.ErrNotFound)
}

func TestListAll_Sorted(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()

	for _, p := range []models.Position{
		pos("MSFT", "IRA", "1", "1"),
		pos("AAPL", "Taxable", "1", "1"),
		pos("AAPL", "IRA", "1", "1"),
	} {
		_, err := l.Append(ctx, p)
		require.NoError(t, err)
	}

	all, err := l.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "AAPL", all[0].Ticker)
	assert.Equal(t, "IRA", all[0].Account)
	assert.Equal(t, "Taxable", all[1].Account)
	assert.Equal(t, "MSFT", all[2].Ticker)
}

func TestClear(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()

	_, err := l.BulkAppend(ctx, []models.Position{pos("AAPL", "IRA", "1", "1"), pos("VTI", "IRA", "1", "1")})
	require.NoError(t, err)

	n, err := l.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	all, err := l.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
