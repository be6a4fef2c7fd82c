package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/storage/memory"
)

func TestNewStorageManager_Memory(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Storage.Backend = common.BackendMemory

	m, err := NewStorageManager(context.Background(), common.NewSilentLogger(), cfg)
	require.NoError(t, err)
	defer m.Close()

	_, ok := m.(*memory.Manager)
	assert.True(t, ok)
}

func TestNewStorageManager_Unknown(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Storage.Backend = "mongo"

	_, err := NewStorageManager(context.Background(), common.NewSilentLogger(), cfg)
	assert.ErrorContains(t, err, "unknown storage backend")
}
