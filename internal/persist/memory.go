package persist

import (
	"context"
	"sort"
	"sync"

	"github.com/rbright/rehearse/internal/interview"
)

// MemoryStore keeps snapshots and history in process memory.
type MemoryStore struct {
	mu        sync.Mutex
	snapshots map[string][]byte
	history   []interview.HistoryEntry
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string][]byte)}
}

func (m *MemoryStore) PutSnapshot(ctx context.Context, sessionID string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[sessionID] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryStore) GetSnapshot(ctx context.Context, sessionID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.snapshots[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryStore) DeleteSnapshot(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, sessionID)
	return nil
}

func (m *MemoryStore) AppendHistory(ctx context.Context, entry interview.HistoryEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.history {
		if existing.ID == entry.ID {
			return nil
		}
	}
	m.history = append(m.history, entry)
	return nil
}

func (m *MemoryStore) ListHistory(ctx context.Context, limit int) ([]interview.HistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	out := append([]interview.HistoryEntry(nil), m.history...)
	m.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
