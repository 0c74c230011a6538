// Package postgres provides a Postgres snapshot and history store for shared deployments.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rbright/rehearse/internal/interview"
	"github.com/rbright/rehearse/internal/persist"
	"github.com/rbright/rehearse/internal/persist/postgres/migrations"
)

// Store persists snapshots and history through a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn and applies migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{pool: pool}, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	if err != nil {
		return err
	}
	_, err = provider.Up(ctx)
	return err
}

// Close releases the pool.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *Store) PutSnapshot(ctx context.Context, sessionID string, data []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO session_snapshots (session_id, payload, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (session_id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`,
		sessionID, data,
	)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

func (s *Store) GetSnapshot(ctx context.Context, sessionID string) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT payload FROM session_snapshots WHERE session_id = $1`, sessionID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, persist.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select snapshot: %w", err)
	}
	return data, nil
}

func (s *Store) DeleteSnapshot(ctx context.Context, sessionID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM session_snapshots WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

func (s *Store) AppendHistory(ctx context.Context, entry interview.HistoryEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode history entry: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO session_history (id, session_id, recorded_at, score, payload) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO NOTHING`,
		entry.ID, entry.SessionID, entry.Date.UTC(), entry.Score, payload,
	)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

func (s *Store) ListHistory(ctx context.Context, limit int) ([]interview.HistoryEntry, error) {
	query := `SELECT payload FROM session_history ORDER BY recorded_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select history: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (interview.HistoryEntry, error) {
		var payload []byte
		if err := row.Scan(&payload); err != nil {
			return interview.HistoryEntry{}, err
		}
		var entry interview.HistoryEntry
		if err := json.Unmarshal(payload, &entry); err != nil {
			return interview.HistoryEntry{}, fmt.Errorf("decode history entry: %w", err)
		}
		return entry, nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect history: %w", err)
	}
	return entries, nil
}
