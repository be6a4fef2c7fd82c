package surrealdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/models"
)

type priceRecord struct {
	Ticker          string    `json:"ticker"`
	Price           string    `json:"price"`
	LastRefreshedAt time.Time `json:"last_refreshed_at"`
	Source          string    `json:"source"`
}

func (r priceRecord) toModel() (models.PriceEntry, error) {
	price, err := decimal.NewFromString(r.Price)
	if err != nil {
		return models.PriceEntry{}, fmt.Errorf("price %s: bad value %q: %w", r.Ticker, r.Price, err)
	}
	return models.PriceEntry{
		Ticker:          r.Ticker,
		Price:           price,
		LastRefreshedAt: r.LastRefreshedAt,
		Source:          r.Source,
	}, nil
}

// PriceStore implements interfaces.PriceStore on the price table.
type PriceStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewPriceStore creates a PriceStore on an open connection.
func NewPriceStore(db *surrealdb.DB, logger *common.Logger) *PriceStore {
	return &PriceStore{db: db, logger: logger}
}

func (s *PriceStore) GetPrice(ctx context.Context, ticker string) (*models.PriceEntry, error) {
	rec, err := surrealdb.Select[priceRecord](ctx, s.db, surrealmodels.NewRecordID(tablePrice, ticker))
	if err != nil && !isNotFoundError(err) {
		return nil, fmt.Errorf("failed to select price: %w", err)
	}
	if rec == nil || rec.Ticker == "" {
		return nil, &models.NotFoundError{Kind: "price", ID: ticker}
	}
	entry, err := rec.toModel()
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *PriceStore) Snapshot(ctx context.Context) (models.PriceSnapshot, error) {
	results, err := surrealdb.Query[[]priceRecord](ctx, s.db, "SELECT * FROM price", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices: %w", err)
	}

	snap := make(models.PriceSnapshot)
	if results != nil && len(*results) > 0 {
		for _, rec := range (*results)[0].Result {
			entry, err := rec.toModel()
			if err != nil {
				return nil, err
			}
			snap[entry.Ticker] = entry
		}
	}
	return snap, nil
}

func (s *PriceStore) UpsertPrices(ctx context.Context, prices []models.PriceEntry) error {
	if len(prices) == 0 {
		return nil
	}

	var sb strings.Builder
	vars := make(map[string]any, len(prices)*2)
	sb.WriteString("BEGIN TRANSACTION;\n")
	for i, p := range prices {
		fmt.Fprintf(&sb, "UPSERT $rid%d CONTENT $rec%d;\n", i, i)
		vars[fmt.Sprintf("rid%d", i)] = surrealmodels.NewRecordID(tablePrice, p.Ticker)
		vars[fmt.Sprintf("rec%d", i)] = priceRecord{
			Ticker:          p.Ticker,
			Price:           p.Price.String(),
			LastRefreshedAt: p.LastRefreshedAt,
			Source:          p.Source,
		}
	}
	sb.WriteString("COMMIT TRANSACTION;")

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		results, err := surrealdb.Query[any](ctx, s.db, sb.String(), vars)
		if err == nil {
			err = checkResults(results)
		}
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("failed to upsert %d prices after retries: %w", len(prices), lastErr)
}
