package persist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rbright/rehearse/internal/aggregate"
	"github.com/rbright/rehearse/internal/fsm"
	"github.com/rbright/rehearse/internal/interview"
	"github.com/rbright/rehearse/internal/metrics"
	"github.com/rs/zerolog"
)

// Bridge is the session engine's view of durable storage.
type Bridge struct {
	store     Store
	archivers []Archiver
	logger    zerolog.Logger
	metrics   *metrics.Metrics

	mu sync.Mutex
}

// NewBridge wraps store with optional secondary archivers.
func NewBridge(store Store, logger zerolog.Logger, m *metrics.Metrics, archivers ...Archiver) *Bridge {
	return &Bridge{store: store, archivers: archivers, logger: logger, metrics: m}
}

// Snapshot overwrites the stored snapshot for state.SessionID.
func (b *Bridge) Snapshot(ctx context.Context, state interview.State) error {
	data, err := Encode(state)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	err = b.store.PutSnapshot(ctx, state.SessionID, data)
	b.metrics.RecordSnapshot(err)
	if err != nil {
		return fmt.Errorf("write snapshot %q: %w", state.SessionID, err)
	}
	return nil
}

// Restore loads the snapshot for sessionID.
func (b *Bridge) Restore(ctx context.Context, sessionID string) (interview.State, error) {
	data, err := b.store.GetSnapshot(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return interview.State{}, interview.ErrNoSnapshot
	}
	if err != nil {
		return interview.State{}, fmt.Errorf("read snapshot %q: %w", sessionID, err)
	}
	return Decode(data)
}

// Discard removes the snapshot for sessionID.
func (b *Bridge) Discard(ctx context.Context, sessionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.store.DeleteSnapshot(ctx, sessionID); err != nil {
		return fmt.Errorf("delete snapshot %q: %w", sessionID, err)
	}
	return nil
}

// Archive records a completed session in history and forwards it to every archiver.
// All destinations are attempted; failures are joined under ErrSaveFailed.
func (b *Bridge) Archive(ctx context.Context, state interview.State) (interview.HistoryEntry, error) {
	if state.Phase != fsm.PhaseComplete {
		return interview.HistoryEntry{}, fmt.Errorf("%w: archive from %s", fsm.ErrInvalidTransition, state.Phase)
	}
	entry := EntryFor(state, time.Now())

	var errs []error
	err := b.store.AppendHistory(ctx, entry)
	b.metrics.RecordArchive("local", err)
	if err != nil {
		errs = append(errs, fmt.Errorf("local history: %w", err))
	}
	for _, archiver := range b.archivers {
		err := archiver.Archive(ctx, entry)
		b.metrics.RecordArchive(archiver.Name(), err)
		if err != nil {
			b.logger.Warn().Err(err).Str("archiver", archiver.Name()).Msg("archive failed")
			errs = append(errs, fmt.Errorf("%s: %w", archiver.Name(), err))
		}
	}
	if len(errs) > 0 {
		return entry, fmt.Errorf("%w: %w", interview.ErrSaveFailed, errors.Join(errs...))
	}
	return entry, nil
}

// History lists archived sessions, newest first.
func (b *Bridge) History(ctx context.Context, limit int) ([]interview.HistoryEntry, error) {
	entries, err := b.store.ListHistory(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return entries, nil
}

// Close releases the underlying store.
func (b *Bridge) Close() error {
	return b.store.Close()
}

// EntryFor builds the immutable history record for a completed session.
// The ID is the run ID so retried archives do not duplicate. States without
// one fall back to the session ID and start time.
func EntryFor(state interview.State, now time.Time) interview.HistoryEntry {
	id := state.RunID
	if id == "" {
		id = fmt.Sprintf("%s-%d", state.SessionID, state.StartedAt.UnixMilli())
	}
	entry := interview.HistoryEntry{
		ID:        id,
		SessionID: state.SessionID,
		Date:      now.UTC(),
		Questions: aggregate.Items(state),
	}
	if state.ArchivedAt != nil {
		entry.Date = state.ArchivedAt.UTC()
	}
	copied := state.Clone()
	entry.Score = copied.SessionScore
	entry.Summary = copied.OverallSummary
	return entry
}
