// Package persist snapshots, restores, and archives sessions over pluggable stores.
package persist

import (
	"context"
	"errors"

	"github.com/rbright/rehearse/internal/interview"
)

// ErrNotFound is returned by stores for missing keys.
var ErrNotFound = errors.New("not found")

// Store is a durable substrate for snapshots and the history collection.
type Store interface {
	PutSnapshot(ctx context.Context, sessionID string, data []byte) error
	GetSnapshot(ctx context.Context, sessionID string) ([]byte, error)
	DeleteSnapshot(ctx context.Context, sessionID string) error
	// AppendHistory inserts entry once; re-inserting the same ID is a no-op.
	AppendHistory(ctx context.Context, entry interview.HistoryEntry) error
	// ListHistory returns up to limit entries, newest first. limit <= 0 means all.
	ListHistory(ctx context.Context, limit int) ([]interview.HistoryEntry, error)
	Close() error
}

// Archiver forwards completed sessions to a secondary destination.
type Archiver interface {
	Name() string
	Archive(ctx context.Context, entry interview.HistoryEntry) error
}
