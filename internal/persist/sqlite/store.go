// Package sqlite provides the local SQLite snapshot and history store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rbright/rehearse/internal/interview"
	"github.com/rbright/rehearse/internal/persist"
	"github.com/rbright/rehearse/internal/persist/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists snapshots and history in one SQLite file.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the store at path, creating parent directories and applying migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o700); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}

	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) PutSnapshot(ctx context.Context, sessionID string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO session_snapshots (session_id, payload, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		sessionID, data, toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

func (s *Store) GetSnapshot(ctx context.Context, sessionID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data []byte
	err := s.sqlDB.QueryRowContext(ctx, `SELECT payload FROM session_snapshots WHERE session_id = ?`, sessionID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persist.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select snapshot: %w", err)
	}
	return data, nil
}

func (s *Store) DeleteSnapshot(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM session_snapshots WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

func (s *Store) AppendHistory(ctx context.Context, entry interview.HistoryEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode history entry: %w", err)
	}
	var score sql.NullFloat64
	if entry.Score != nil {
		score = sql.NullFloat64{Float64: *entry.Score, Valid: true}
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO session_history (id, session_id, recorded_at, score, payload) VALUES (?, ?, ?, ?, ?)`,
		entry.ID, entry.SessionID, toMillis(entry.Date), score, payload,
	)
	if isConstraintUnique(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

func (s *Store) ListHistory(ctx context.Context, limit int) ([]interview.HistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT recorded_at, payload FROM session_history ORDER BY recorded_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("select history: %w", err)
	}
	defer rows.Close()

	var out []interview.HistoryEntry
	for rows.Next() {
		var (
			recordedAt int64
			payload    []byte
		)
		if err := rows.Scan(&recordedAt, &payload); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		var entry interview.HistoryEntry
		if err := json.Unmarshal(payload, &entry); err != nil {
			return nil, fmt.Errorf("decode history entry: %w", err)
		}
		entry.Date = fromMillis(recordedAt)
		out = append(out, entry)
	}
	return out, rows.Err()
}

func isConstraintUnique(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code() == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY || sqliteErr.Code() == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE
}
