// Package storage selects and builds the configured StorageManager backend.
package storage

import (
	"context"
	"fmt"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/storage/memory"
	"github.com/bobmcallan/folio/internal/storage/postgres"
	"github.com/bobmcallan/folio/internal/storage/surrealdb"
)

// NewStorageManager creates the backend named by config.Storage.Backend.
// Supported backends: "surrealdb" (default), "postgres", "memory".
func NewStorageManager(ctx context.Context, logger *common.Logger, config *common.Config) (interfaces.StorageManager, error) {
	switch config.Storage.Backend {
	case common.BackendSurrealDB, "":
		return surrealdb.NewManager(ctx, logger, &config.Storage.SurrealDB)
	case common.BackendPostgres:
		return postgres.NewManager(ctx, logger, &config.Storage.Postgres)
	case common.BackendMemory:
		logger.Warn().Msg("Using in-memory storage; data is lost on exit")
		return memory.NewManager(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s (supported: surrealdb, postgres, memory)", config.Storage.Backend)
	}
}
