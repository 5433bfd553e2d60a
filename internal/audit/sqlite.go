package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists events so they survive restarts and can be read by
// the CLI while the server runs.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Verify SQLiteStore implements Store
var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the event database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create audit dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS failure_events (
		event_id TEXT PRIMARY KEY,
		request_id TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL,
		operation TEXT NOT NULL,
		status TEXT NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER NOT NULL DEFAULT 0,
		at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_failure_events_at ON failure_events(at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record inserts an event.
func (s *SQLiteStore) Record(ctx context.Context, e *Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO failure_events
			(event_id, request_id, category, operation, status, error_message, duration_ms, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.EventID, e.RequestID, string(e.Category), e.Operation, string(e.Status),
		e.ErrorMessage, e.DurationMs, e.At.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first. A limit <= 0 returns all.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, request_id, category, operation, status, error_message, duration_ms, at
		FROM failure_events
		ORDER BY at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var category, status string
		if err := rows.Scan(&e.EventID, &e.RequestID, &category, &e.Operation, &status,
			&e.ErrorMessage, &e.DurationMs, &e.At); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Category = Category(category)
		e.Status = Status(status)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
