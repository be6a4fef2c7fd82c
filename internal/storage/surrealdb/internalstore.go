package surrealdb

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/models"
)

// InternalStore implements interfaces.InternalStore on the system_kv table.
type InternalStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewInternalStore creates an InternalStore on an open connection.
func NewInternalStore(db *surrealdb.DB, logger *common.Logger) *InternalStore {
	return &InternalStore{db: db, logger: logger}
}

func (s *InternalStore) GetSystemKV(ctx context.Context, key string) (string, error) {
	kv, err := surrealdb.Select[models.SystemKV](ctx, s.db, surrealmodels.NewRecordID(tableSystemKV, key))
	if err != nil && !isNotFoundError(err) {
		return "", fmt.Errorf("failed to select system KV: %w", err)
	}
	if kv == nil || kv.Key == "" {
		return "", &models.NotFoundError{Kind: "system_kv", ID: key}
	}
	return kv.Value, nil
}

func (s *InternalStore) SetSystemKV(ctx context.Context, key, value string) error {
	kv := models.SystemKV{Key: key, Value: value, UpdatedAt: time.Now().UTC()}

	sql := "UPSERT $rid CONTENT $kv"
	vars := map[string]any{"rid": surrealmodels.NewRecordID(tableSystemKV, key), "kv": kv}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		_, err := surrealdb.Query[[]models.SystemKV](ctx, s.db, sql, vars)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("failed to set system KV after retries: %w", lastErr)
}
