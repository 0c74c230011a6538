package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rbright/rehearse/internal/config"
	"github.com/rbright/rehearse/internal/persist"
	"github.com/rbright/rehearse/internal/persist/sqlite"
	"github.com/stretchr/testify/require"
)

func TestOpenMemory(t *testing.T) {
	t.Parallel()

	store, err := Open(context.Background(), config.StorageConfig{Driver: "memory"})
	require.NoError(t, err)
	require.IsType(t, &persist.MemoryStore{}, store)
	require.Equal(t, "memory", Describe(config.StorageConfig{Driver: "memory"}))
}

func TestOpenSQLiteAtDSN(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "rehearse.db")
	cfg := config.StorageConfig{Driver: "sqlite", DSN: path}

	store, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.IsType(t, &sqlite.Store{}, store)
	require.Equal(t, "sqlite "+path, Describe(cfg))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), config.StorageConfig{Driver: "redis"})
	require.ErrorContains(t, err, "unsupported storage driver")
}
