package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bobmcallan/folio/internal/models"
)

// PriceStore implements interfaces.PriceStore on the prices table.
type PriceStore struct {
	pool *pgxpool.Pool
}

func (s *PriceStore) GetPrice(ctx context.Context, ticker string) (*models.PriceEntry, error) {
	var e models.PriceEntry
	err := s.pool.QueryRow(ctx,
		`SELECT ticker, price, last_refreshed_at, source FROM prices WHERE ticker = $1`, ticker).
		Scan(&e.Ticker, &e.Price, &e.LastRefreshedAt, &e.Source)
	if err != nil {
		if isNoRows(err) {
			return nil, &models.NotFoundError{Kind: "price", ID: ticker}
		}
		return nil, fmt.Errorf("failed to get price: %w", err)
	}
	return &e, nil
}

func (s *PriceStore) Snapshot(ctx context.Context) (models.PriceSnapshot, error) {
	rows, err := s.pool.Query(ctx, `SELECT ticker, price, last_refreshed_at, source FROM prices`)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices: %w", err)
	}
	defer rows.Close()

	snap := make(models.PriceSnapshot)
	for rows.Next() {
		var e models.PriceEntry
		if err := rows.Scan(&e.Ticker, &e.Price, &e.LastRefreshedAt, &e.Source); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		snap[e.Ticker] = e
	}
	return snap, rows.Err()
}

func (s *PriceStore) UpsertPrices(ctx context.Context, prices []models.PriceEntry) error {
	if len(prices) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range prices {
		batch.Queue(`
			INSERT INTO prices (ticker, price, last_refreshed_at, source)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (ticker) DO UPDATE SET
				price = EXCLUDED.price,
				last_refreshed_at = EXCLUDED.last_refreshed_at,
				source = EXCLUDED.source`,
			p.Ticker, p.Price, p.LastRefreshedAt, p.Source)
	}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		lastErr = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			return tx.SendBatch(ctx, batch).Close()
		})
		if lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("failed to upsert %d prices after retries: %w", len(prices), lastErr)
}
