// Package storagetest holds behaviour tests shared by every StorageManager
// backend. Each backend's _test.go calls Run with a fresh manager per test.
package storagetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

// Factory returns an empty StorageManager for one subtest.
type Factory func(t *testing.T) interfaces.StorageManager

// Run executes the shared suite against the backend produced by newManager.
func Run(t *testing.T, newManager Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, m interfaces.StorageManager)
	}{
		{"InsertGetRoundTrip", testInsertGet},
		{"GetMissing", testGetMissing},
		{"UpdateAndDelete", testUpdateDelete},
		{"ListByKey", testListByKey},
		{"InsertMany", testInsertMany},
		{"ReplaceGroup", testReplaceGroup},
		{"ReplaceGroupMissingIsAtomic", testReplaceGroupMissing},
		{"DeleteAll", testDeleteAll},
		{"Prices", testPrices},
		{"SystemKV", testSystemKV},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newManager(t)
			tt.fn(t, m)
		})
	}
}

// NewPosition builds a valid position with a fresh UUIDv7 id.
func NewPosition(t *testing.T, ticker, account string, qty, cost int64) models.Position {
	t.Helper()
	id, err := uuid.NewV7()
	require.NoError(t, err)
	now := time.Now().UTC().Truncate(time.Millisecond)
	return models.Position{
		ID:        id.String(),
		Ticker:    ticker,
		Account:   account,
		Quantity:  decimal.NewFromInt(qty),
		CostBasis: decimal.NewFromInt(cost),
		Type:      models.PositionTypeStock,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func testInsertGet(t *testing.T, m interfaces.StorageManager) {
	ctx := context.Background()
	store := m.LedgerStore()

	p := NewPosition(t, "AAPL", "Brokerage", 10, 100)
	p.CostBasis = decimal.RequireFromString("123.456789")
	require.NoError(t, store.Insert(ctx, &p))

	got, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, "AAPL", got.Ticker)
	assert.Equal(t, "Brokerage", got.Account)
	assert.True(t, got.Quantity.Equal(p.Quantity), "quantity %s", got.Quantity)
	assert.True(t, got.CostBasis.Equal(p.CostBasis), "cost basis %s", got.CostBasis)
	assert.Equal(t, models.PositionTypeStock, got.Type)
	assert.WithinDuration(t, p.CreatedAt, got.CreatedAt, time.Second)
}

func testGetMissing(t *testing.T, m interfaces.StorageManager) {
	ctx := context.Background()
	_, err := m.LedgerStore().Get(ctx, "does-not-exist")
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.ErrorIs(t, m.LedgerStore().Delete(ctx, "does-not-exist"), models.ErrNotFound)

	ghost := NewPosition(t, "AAPL", "Brokerage", 1, 1)
	assert.ErrorIs(t, m.LedgerStore().Update(ctx, &ghost), models.ErrNotFound)
}

func testUpdateDelete(t *testing.T, m interfaces.StorageManager) {
	ctx := context.Background()
	store := m.LedgerStore()

	p := NewPosition(t, "MSFT", "IRA", 5, 300)
	require.NoError(t, store.Insert(ctx, &p))

	p.Quantity = decimal.NewFromInt(7)
	require.NoError(t, store.Update(ctx, &p))

	got, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.Quantity.Equal(decimal.NewFromInt(7)))

	require.NoError(t, store.Delete(ctx, p.ID))
	_, err = store.Get(ctx, p.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func testListByKey(t *testing.T, m interfaces.StorageManager) {
	ctx := context.Background()
	store := m.LedgerStore()

	a1 := NewPosition(t, "AAPL", "Brokerage", 10, 100)
	a2 := NewPosition(t, "AAPL", "Brokerage", 5, 130)
	other := NewPosition(t, "AAPL", "IRA", 1, 1)
	require.NoError(t, store.Insert(ctx, &a1))
	require.NoError(t, store.Insert(ctx, &a2))
	require.NoError(t, store.Insert(ctx, &other))

	got, err := store.ListByKey(ctx, "AAPL", "Brokerage")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, a1.ID, got[0].ID, "results are ordered by id")
	assert.Equal(t, a2.ID, got[1].ID)

	none, err := store.ListByKey(ctx, "AAPL", "brokerage")
	require.NoError(t, err)
	assert.Empty(t, none, "account match is case-sensitive")

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func testInsertMany(t *testing.T, m interfaces.StorageManager) {
	ctx := context.Background()
	store := m.LedgerStore()

	batch := make([]models.Position, 0, 5)
	for i := 0; i < 5; i++ {
		batch = append(batch, NewPosition(t, fmt.Sprintf("T%d", i), "Brokerage", int64(i+1), 10))
	}
	require.NoError(t, store.InsertMany(ctx, batch))

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	require.NoError(t, store.InsertMany(ctx, nil))
}

func testReplaceGroup(t *testing.T, m interfaces.StorageManager) {
	ctx := context.Background()
	store := m.LedgerStore()

	a1 := NewPosition(t, "AAPL", "Brokerage", 10, 100)
	a2 := NewPosition(t, "AAPL", "Brokerage", 5, 130)
	require.NoError(t, store.Insert(ctx, &a1))
	require.NoError(t, store.Insert(ctx, &a2))

	a1.Quantity = decimal.NewFromInt(15)
	a1.CostBasis = decimal.NewFromInt(110)
	require.NoError(t, store.ReplaceGroup(ctx, &a1, []string{a2.ID}))

	got, err := store.ListByKey(ctx, "AAPL", "Brokerage")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, a1.ID, got[0].ID)
	assert.True(t, got[0].Quantity.Equal(decimal.NewFromInt(15)))
	assert.True(t, got[0].CostBasis.Equal(decimal.NewFromInt(110)))
}

func testReplaceGroupMissing(t *testing.T, m interfaces.StorageManager) {
	ctx := context.Background()
	store := m.LedgerStore()

	a1 := NewPosition(t, "AAPL", "Brokerage", 10, 100)
	a2 := NewPosition(t, "AAPL", "Brokerage", 5, 130)
	require.NoError(t, store.Insert(ctx, &a1))
	require.NoError(t, store.Insert(ctx, &a2))

	changed := a1
	changed.Quantity = decimal.NewFromInt(99)
	err := store.ReplaceGroup(ctx, &changed, []string{a2.ID, "missing"})
	assert.ErrorIs(t, err, models.ErrNotFound)

	got, err := store.ListByKey(ctx, "AAPL", "Brokerage")
	require.NoError(t, err)
	require.Len(t, got, 2, "a failed replace leaves the group untouched")
	assert.True(t, got[0].Quantity.Equal(decimal.NewFromInt(10)))
}

func testDeleteAll(t *testing.T, m interfaces.StorageManager) {
	ctx := context.Background()
	store := m.LedgerStore()

	for i := 0; i < 3; i++ {
		p := NewPosition(t, "VTI", fmt.Sprintf("acct-%d", i), 1, 200)
		require.NoError(t, store.Insert(ctx, &p))
	}

	n, err := store.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func testPrices(t *testing.T, m interfaces.StorageManager) {
	ctx := context.Background()
	prices := m.PriceStore()

	_, err := prices.GetPrice(ctx, "AAPL")
	assert.ErrorIs(t, err, models.ErrNotFound)

	at := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, prices.UpsertPrices(ctx, []models.PriceEntry{
		{Ticker: "AAPL", Price: decimal.RequireFromString("150.25"), LastRefreshedAt: at, Source: "test"},
		{Ticker: "MSFT", Price: decimal.NewFromInt(400), LastRefreshedAt: at, Source: "test"},
	}))
	require.NoError(t, prices.UpsertPrices(ctx, []models.PriceEntry{
		{Ticker: "AAPL", Price: decimal.NewFromInt(151), LastRefreshedAt: at.Add(time.Minute), Source: "test"},
	}))

	got, err := prices.GetPrice(ctx, "AAPL")
	require.NoError(t, err)
	assert.True(t, got.Price.Equal(decimal.NewFromInt(151)))
	assert.WithinDuration(t, at.Add(time.Minute), got.LastRefreshedAt, time.Second)

	snap, err := prices.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap, 2)
	assert.True(t, snap["MSFT"].Price.Equal(decimal.NewFromInt(400)))
}

func testSystemKV(t *testing.T, m interfaces.StorageManager) {
	ctx := context.Background()
	kv := m.InternalStore()

	_, err := kv.GetSystemKV(ctx, "last_price_refresh")
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, kv.SetSystemKV(ctx, "last_price_refresh", "a"))
	require.NoError(t, kv.SetSystemKV(ctx, "last_price_refresh", "b"))

	v, err := kv.GetSystemKV(ctx, "last_price_refresh")
	require.NoError(t, err)
	assert.Equal(t, "b", v)
}
