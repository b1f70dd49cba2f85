// Package sqlitehistory persists resolved console invocations in SQLite.
package sqlitehistory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	console "github.com/network-plane/planeconsole"
)

const schema = `
CREATE TABLE IF NOT EXISTS invocations (
	id           TEXT PRIMARY KEY,
	command      TEXT NOT NULL,
	input        TEXT NOT NULL,
	status       TEXT NOT NULL,
	store        TEXT NOT NULL DEFAULT '{}',
	submitted_at INTEGER NOT NULL,
	resolved_at  INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_invocations_submitted ON invocations(submitted_at);
`

// Store is a console.HistoryRecorder backed by a SQLite database.
type Store struct {
	db *sql.DB
}

var _ console.HistoryRecorder = (*Store)(nil)

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Record inserts rec, replacing any earlier row for the same invocation.
func (s *Store) Record(ctx context.Context, rec console.InvocationRecord) error {
	data, err := json.Marshal(rec.Store)
	if err != nil {
		return fmt.Errorf("encode store of %s: %w", rec.ID, err)
	}
	if rec.Store == nil {
		data = []byte("{}")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO invocations (id, command, input, status, store, submitted_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			store = excluded.store,
			resolved_at = excluded.resolved_at`,
		rec.ID, rec.Command, rec.Input, string(rec.Status), string(data),
		toMillis(rec.SubmittedAt), toMillis(rec.ResolvedAt))
	if err != nil {
		return fmt.Errorf("record invocation %s: %w", rec.ID, err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]console.InvocationRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, command, input, status, store, submitted_at, resolved_at
		FROM invocations
		ORDER BY submitted_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var records []console.InvocationRecord
	for rows.Next() {
		var (
			rec                 console.InvocationRecord
			status, store       string
			submitted, resolved int64
		)
		if err := rows.Scan(&rec.ID, &rec.Command, &rec.Input, &status, &store, &submitted, &resolved); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		rec.Status = console.Status(status)
		if err := json.Unmarshal([]byte(store), &rec.Store); err != nil {
			return nil, fmt.Errorf("decode store of %s: %w", rec.ID, err)
		}
		rec.SubmittedAt = fromMillis(submitted)
		rec.ResolvedAt = fromMillis(resolved)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
