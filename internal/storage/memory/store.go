// Package memory provides an in-process StorageManager backed by maps.
// Used by tests, the CLI --memory mode, and demos.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

// Manager implements interfaces.StorageManager in memory.
type Manager struct {
	ledger   *LedgerStore
	prices   *PriceStore
	internal *InternalStore
}

// NewManager creates an empty in-memory storage manager.
func NewManager() *Manager {
	return &Manager{
		ledger:   NewLedgerStore(),
		prices:   NewPriceStore(),
		internal: NewInternalStore(),
	}
}

func (m *Manager) LedgerStore() interfaces.LedgerStore     { return m.ledger }
func (m *Manager) PriceStore() interfaces.PriceStore       { return m.prices }
func (m *Manager) InternalStore() interfaces.InternalStore { return m.internal }
func (m *Manager) Close() error                            { return nil }

// LedgerStore is a mutex-guarded map of positions keyed by id.
type LedgerStore struct {
	mu        sync.RWMutex
	positions map[string]models.Position
}

// NewLedgerStore creates an empty ledger store.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{positions: make(map[string]models.Position)}
}

func (s *LedgerStore) Insert(ctx context.Context, p *models.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[p.ID] = *p
	return nil
}

func (s *LedgerStore) InsertMany(ctx context.Context, ps []models.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range ps {
		s.positions[p.ID] = p
	}
	return nil
}

func (s *LedgerStore) Get(ctx context.Context, id string) (*models.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[id]
	if !ok {
		return nil, &models.NotFoundError{Kind: "position", ID: id}
	}
	return &p, nil
}

func (s *LedgerStore) Update(ctx context.Context, p *models.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.positions[p.ID]; !ok {
		return &models.NotFoundError{Kind: "position", ID: p.ID}
	}
	s.positions[p.ID] = *p
	return nil
}

func (s *LedgerStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.positions[id]; !ok {
		return &models.NotFoundError{Kind: "position", ID: id}
	}
	delete(s.positions, id)
	return nil
}

func (s *LedgerStore) List(ctx context.Context) ([]models.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *LedgerStore) ListByKey(ctx context.Context, ticker, account string) ([]models.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Position
	for _, p := range s.positions {
		if p.Ticker == ticker && p.Account == account {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *LedgerStore) ReplaceGroup(ctx context.Context, survivor *models.Position, removeIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.positions[survivor.ID]; !ok {
		return &models.NotFoundError{Kind: "position", ID: survivor.ID}
	}
	for _, id := range removeIDs {
		if _, ok := s.positions[id]; !ok {
			return &models.NotFoundError{Kind: "position", ID: id}
		}
	}
	s.positions[survivor.ID] = *survivor
	for _, id := range removeIDs {
		delete(s.positions, id)
	}
	return nil
}

func (s *LedgerStore) DeleteAll(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.positions)
	s.positions = make(map[string]models.Position)
	return n, nil
}

// PriceStore is a mutex-guarded map of prices keyed by ticker.
type PriceStore struct {
	mu     sync.RWMutex
	prices map[string]models.PriceEntry
}

// NewPriceStore creates an empty price store.
func NewPriceStore() *PriceStore {
	return &PriceStore{prices: make(map[string]models.PriceEntry)}
}

func (s *PriceStore) GetPrice(ctx context.Context, ticker string) (*models.PriceEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.prices[ticker]
	if !ok {
		return nil, &models.NotFoundError{Kind: "price", ID: ticker}
	}
	return &e, nil
}

func (s *PriceStore) Snapshot(ctx context.Context) (models.PriceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := make(models.PriceSnapshot, len(s.prices))
	for k, v := range s.prices {
		snap[k] = v
	}
	return snap, nil
}

func (s *PriceStore) UpsertPrices(ctx context.Context, prices []models.PriceEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range prices {
		s.prices[p.Ticker] = p
	}
	return nil
}

// InternalStore is a mutex-guarded system KV map.
type InternalStore struct {
	mu sync.RWMutex
	kv map[string]models.SystemKV
}

// NewInternalStore creates an empty system KV store.
func NewInternalStore() *InternalStore {
	return &InternalStore{kv: make(map[string]models.SystemKV)}
}

func (s *InternalStore) GetSystemKV(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	kv, ok := s.kv[key]
	if !ok {
		return "", &models.NotFoundError{Kind: "system_kv", ID: key}
	}
	return kv.Value, nil
}

func (s *InternalStore) SetSystemKV(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kv[key] = models.SystemKV{Key: key, Value: value, UpdatedAt: time.Now()}
	return nil
}
