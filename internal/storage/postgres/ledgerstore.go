package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bobmcallan/folio/internal/models"
)

const positionColumns = `id, ticker, account, quantity, cost_basis, type, created_at, updated_at`

// LedgerStore implements interfaces.LedgerStore on the positions table.
type LedgerStore struct {
	pool *pgxpool.Pool
}

func scanPosition(row pgx.Row) (models.Position, error) {
	var p models.Position
	var typ string
	err := row.Scan(&p.ID, &p.Ticker, &p.Account, &p.Quantity, &p.CostBasis, &typ, &p.CreatedAt, &p.UpdatedAt)
	p.Type = models.PositionType(typ)
	return p, err
}

func (s *LedgerStore) Insert(ctx context.Context, p *models.Position) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO positions (`+positionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.Ticker, p.Account, p.Quantity, p.CostBasis, string(p.Type), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert position: %w", err)
	}
	return nil
}

func (s *LedgerStore) InsertMany(ctx context.Context, ps []models.Position) error {
	if len(ps) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(ps))
	for _, p := range ps {
		rows = append(rows, []any{p.ID, p.Ticker, p.Account, p.Quantity, p.CostBasis, string(p.Type), p.CreatedAt, p.UpdatedAt})
	}

	// CopyFrom runs as one statement, so the batch lands whole or not at all
	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"positions"},
		[]string{"id", "ticker", "account", "quantity", "cost_basis", "type", "created_at", "updated_at"},
		pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to insert %d positions: %w", len(ps), err)
	}
	return nil
}

func (s *LedgerStore) Get(ctx context.Context, id string) (*models.Position, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+positionColumns+` FROM positions WHERE id = $1`, id)
	p, err := scanPosition(row)
	if err != nil {
		if isNoRows(err) {
			return nil, &models.NotFoundError{Kind: "position", ID: id}
		}
		return nil, fmt.Errorf("failed to get position: %w", err)
	}
	return &p, nil
}

func (s *LedgerStore) Update(ctx context.Context, p *models.Position) error {
	return updatePosition(ctx, s.pool, p)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func updatePosition(ctx context.Context, db execer, p *models.Position) error {
	tag, err := db.Exec(ctx,
		`UPDATE positions SET ticker = $2, account = $3, quantity = $4, cost_basis = $5, type = $6, updated_at = $7 WHERE id = $1`,
		p.ID, p.Ticker, p.Account, p.Quantity, p.CostBasis, string(p.Type), p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &models.NotFoundError{Kind: "position", ID: p.ID}
	}
	return nil
}

func (s *LedgerStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM positions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &models.NotFoundError{Kind: "position", ID: id}
	}
	return nil
}

func (s *LedgerStore) List(ctx context.Context) ([]models.Position, error) {
	return s.query(ctx, `SELECT `+positionColumns+` FROM positions ORDER BY id`)
}

func (s *LedgerStore) ListByKey(ctx context.Context, ticker, account string) ([]models.Position, error) {
	return s.query(ctx, `SELECT `+positionColumns+` FROM positions WHERE ticker = $1 AND account = $2 ORDER BY id`, ticker, account)
}

func (s *LedgerStore) ReplaceGroup(ctx context.Context, survivor *models.Position, removeIDs []string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	ids := append([]string{survivor.ID}, removeIDs...)
	rows, err := tx.Query(ctx, `SELECT id FROM positions WHERE id = ANY($1) FOR UPDATE`, ids)
	if err != nil {
		return fmt.Errorf("failed to lock position group: %w", err)
	}
	found, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("failed to lock position group: %w", err)
	}
	if len(found) != len(ids) {
		present := make(map[string]bool, len(found))
		for _, id := range found {
			present[id] = true
		}
		for _, id := range ids {
			if !present[id] {
				return &models.NotFoundError{Kind: "position", ID: id}
			}
		}
	}

	if err := updatePosition(ctx, tx, survivor); err != nil {
		return err
	}
	if len(removeIDs) > 0 {
		if _, err := tx.Exec(ctx, `DELETE FROM positions WHERE id = ANY($1)`, removeIDs); err != nil {
			return fmt.Errorf("failed to delete merged positions: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit position group: %w", err)
	}
	return nil
}

func (s *LedgerStore) DeleteAll(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM positions`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete positions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *LedgerStore) query(ctx context.Context, sql string, args ...any) ([]models.Position, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var out []models.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
