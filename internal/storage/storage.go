// Package storage opens the configured snapshot and history store.
package storage

import (
	"context"
	"fmt"

	"github.com/rbright/rehearse/internal/config"
	"github.com/rbright/rehearse/internal/persist"
	"github.com/rbright/rehearse/internal/persist/postgres"
	"github.com/rbright/rehearse/internal/persist/sqlite"
)

// Open returns the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StorageConfig) (persist.Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		path, err := cfg.SQLitePath()
		if err != nil {
			return nil, err
		}
		return sqlite.Open(ctx, path)
	case "postgres":
		return postgres.Open(ctx, cfg.DSN)
	case "memory":
		return persist.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

// Describe names the store location without credentials.
func Describe(cfg config.StorageConfig) string {
	switch cfg.Driver {
	case "", "sqlite":
		path, err := cfg.SQLitePath()
		if err != nil {
			return "sqlite"
		}
		return "sqlite " + path
	default:
		return cfg.Driver
	}
}
