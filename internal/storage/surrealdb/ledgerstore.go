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

// positionRecord is the stored form of a position. Decimals are kept as
// strings so no precision is lost in CBOR encoding.
type positionRecord struct {
	PositionID string    `json:"position_id"`
	Ticker     string    `json:"ticker"`
	Account    string    `json:"account"`
	Quantity   string    `json:"quantity"`
	CostBasis  string    `json:"cost_basis"`
	Type       string    `json:"type"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toPositionRecord(p *models.Position) positionRecord {
	return positionRecord{
		PositionID: p.ID,
		Ticker:     p.Ticker,
		Account:    p.Account,
		Quantity:   p.Quantity.String(),
		CostBasis:  p.CostBasis.String(),
		Type:       string(p.Type),
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

func (r positionRecord) toModel() (models.Position, error) {
	qty, err := decimal.NewFromString(r.Quantity)
	if err != nil {
		return models.Position{}, fmt.Errorf("position %s: bad quantity %q: %w", r.PositionID, r.Quantity, err)
	}
	cost, err := decimal.NewFromString(r.CostBasis)
	if err != nil {
		return models.Position{}, fmt.Errorf("position %s: bad cost basis %q: %w", r.PositionID, r.CostBasis, err)
	}
	return models.Position{
		ID:        r.PositionID,
		Ticker:    r.Ticker,
		Account:   r.Account,
		Quantity:  qty,
		CostBasis: cost,
		Type:      models.PositionType(r.Type),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

func positionRID(id string) surrealmodels.RecordID {
	return surrealmodels.NewRecordID(tablePosition, id)
}

// LedgerStore implements interfaces.LedgerStore on the position table.
type LedgerStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewLedgerStore creates a LedgerStore on an open connection.
func NewLedgerStore(db *surrealdb.DB, logger *common.Logger) *LedgerStore {
	return &LedgerStore{db: db, logger: logger}
}

func (s *LedgerStore) Insert(ctx context.Context, p *models.Position) error {
	sql := "UPSERT $rid CONTENT $record"
	vars := map[string]any{"rid": positionRID(p.ID), "record": toPositionRecord(p)}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		_, err := surrealdb.Query[[]positionRecord](ctx, s.db, sql, vars)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("failed to insert position after retries: %w", lastErr)
}

func (s *LedgerStore) InsertMany(ctx context.Context, ps []models.Position) error {
	if len(ps) == 0 {
		return nil
	}

	var sb strings.Builder
	vars := make(map[string]any, len(ps)*2)
	sb.WriteString("BEGIN TRANSACTION;\n")
	for i := range ps {
		fmt.Fprintf(&sb, "CREATE $rid%d CONTENT $rec%d;\n", i, i)
		vars[fmt.Sprintf("rid%d", i)] = positionRID(ps[i].ID)
		vars[fmt.Sprintf("rec%d", i)] = toPositionRecord(&ps[i])
	}
	sb.WriteString("COMMIT TRANSACTION;")

	results, err := surrealdb.Query[any](ctx, s.db, sb.String(), vars)
	if err != nil {
		return fmt.Errorf("failed to insert %d positions: %w", len(ps), err)
	}
	if err := checkResults(results); err != nil {
		return fmt.Errorf("failed to insert %d positions: %w", len(ps), err)
	}
	return nil
}

func (s *LedgerStore) Get(ctx context.Context, id string) (*models.Position, error) {
	rec, err := surrealdb.Select[positionRecord](ctx, s.db, positionRID(id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, &models.NotFoundError{Kind: "position", ID: id}
		}
		return nil, fmt.Errorf("failed to select position: %w", err)
	}
	if rec == nil || rec.PositionID == "" {
		return nil, &models.NotFoundError{Kind: "position", ID: id}
	}
	p, err := rec.toModel()
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *LedgerStore) Update(ctx context.Context, p *models.Position) error {
	// UPDATE on a record id only touches an existing record
	sql := "UPDATE $rid CONTENT $record"
	vars := map[string]any{"rid": positionRID(p.ID), "record": toPositionRecord(p)}

	results, err := surrealdb.Query[[]positionRecord](ctx, s.db, sql, vars)
	if err != nil {
		return fmt.Errorf("failed to update position: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return &models.NotFoundError{Kind: "position", ID: p.ID}
	}
	return nil
}

func (s *LedgerStore) Delete(ctx context.Context, id string) error {
	sql := "DELETE $rid RETURN BEFORE"
	results, err := surrealdb.Query[[]positionRecord](ctx, s.db, sql, map[string]any{"rid": positionRID(id)})
	if err != nil {
		return fmt.Errorf("failed to delete position: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return &models.NotFoundError{Kind: "position", ID: id}
	}
	return nil
}

func (s *LedgerStore) List(ctx context.Context) ([]models.Position, error) {
	return s.query(ctx, "SELECT * FROM position ORDER BY position_id ASC", nil)
}

func (s *LedgerStore) ListByKey(ctx context.Context, ticker, account string) ([]models.Position, error) {
	sql := "SELECT * FROM position WHERE ticker = $ticker AND account = $account ORDER BY position_id ASC"
	return s.query(ctx, sql, map[string]any{"ticker": ticker, "account": account})
}

func (s *LedgerStore) ReplaceGroup(ctx context.Context, survivor *models.Position, removeIDs []string) error {
	ids := append([]string{survivor.ID}, removeIDs...)

	sql := `BEGIN TRANSACTION;
LET $found = (SELECT VALUE position_id FROM position WHERE position_id IN $ids);
IF array::len($found) != $expected { THROW "position group changed" };
UPDATE $survivor CONTENT $record;
DELETE position WHERE position_id IN $removed;
COMMIT TRANSACTION;`
	vars := map[string]any{
		"ids":      ids,
		"expected": len(ids),
		"survivor": positionRID(survivor.ID),
		"record":   toPositionRecord(survivor),
		"removed":  removeIDs,
	}

	results, err := surrealdb.Query[any](ctx, s.db, sql, vars)
	if err == nil {
		err = checkResults(results)
	}
	if err != nil {
		if strings.Contains(err.Error(), "position group changed") {
			return s.missingFrom(ctx, ids)
		}
		return fmt.Errorf("failed to replace position group: %w", err)
	}
	return nil
}

// missingFrom reports which id of a failed group replace no longer exists.
func (s *LedgerStore) missingFrom(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
	}
	return fmt.Errorf("failed to replace position group: concurrent modification")
}

func (s *LedgerStore) DeleteAll(ctx context.Context) (int, error) {
	results, err := surrealdb.Query[[]positionRecord](ctx, s.db, "DELETE position RETURN BEFORE", nil)
	if err != nil {
		return 0, fmt.Errorf("failed to delete positions: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return 0, nil
	}
	return len((*results)[0].Result), nil
}

func (s *LedgerStore) query(ctx context.Context, sql string, vars map[string]any) ([]models.Position, error) {
	results, err := surrealdb.Query[[]positionRecord](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}

	var out []models.Position
	if results != nil && len(*results) > 0 {
		for _, rec := range (*results)[0].Result {
			p, err := rec.toModel()
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}
	}
	return out, nil
}
