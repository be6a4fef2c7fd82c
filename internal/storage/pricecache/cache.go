// Package pricecache decorates a PriceStore with an in-process ristretto
// cache of the full price snapshot.
package pricecache

import (
	"context"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

const snapshotKey = "snapshot"

// Cache is a read-through snapshot cache. Writes pass through to the wrapped
// store and invalidate the cached snapshot.
type Cache struct {
	store  interfaces.PriceStore
	cache  *ristretto.Cache
	ttl    time.Duration
	logger *common.Logger

	// generation guards against a load that started before an invalidation
	// repopulating the cache with pre-refresh prices. mu makes the
	// generation check and the cache write a single step with respect to
	// Invalidate.
	mu         sync.Mutex
	generation uint64
}

// New wraps store with a snapshot cache of the given TTL and cost budget.
func New(store interfaces.PriceStore, ttl time.Duration, maxCost int64, logger *common.Logger) (*Cache, error) {
	if maxCost <= 0 {
		maxCost = 1 << 20
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{store: store, cache: c, ttl: ttl, logger: logger}, nil
}

// GetPrice serves from the cached snapshot when present.
func (c *Cache) GetPrice(ctx context.Context, ticker string) (*models.PriceEntry, error) {
	if v, ok := c.cache.Get(snapshotKey); ok {
		if entry, ok := v.(models.PriceSnapshot)[ticker]; ok {
			return &entry, nil
		}
	}
	return c.store.GetPrice(ctx, ticker)
}

// Snapshot returns a copy of the cached snapshot, loading it on a miss.
func (c *Cache) Snapshot(ctx context.Context) (models.PriceSnapshot, error) {
	if v, ok := c.cache.Get(snapshotKey); ok {
		return copySnapshot(v.(models.PriceSnapshot)), nil
	}

	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()

	snap, err := c.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation == gen {
		c.cache.SetWithTTL(snapshotKey, copySnapshot(snap), int64(len(snap))+1, c.ttl)
		c.cache.Wait()
	}
	return snap, nil
}

// UpsertPrices writes through and invalidates.
func (c *Cache) UpsertPrices(ctx context.Context, prices []models.PriceEntry) error {
	err := c.store.UpsertPrices(ctx, prices)
	c.Invalidate()
	return err
}

// Invalidate drops the cached snapshot. The refresh coordinator calls this
// after every successful refresh.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.generation++
	c.cache.Del(snapshotKey)
	c.cache.Wait()
	c.mu.Unlock()
	c.logger.Debug().Msg("Price snapshot cache invalidated")
}

// Close stops the cache's background goroutines.
func (c *Cache) Close() {
	c.cache.Close()
}

func copySnapshot(s models.PriceSnapshot) models.PriceSnapshot {
	out := make(models.PriceSnapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
