package eventbus

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteSink persists dead letters to SQLite so they survive a process
// restart. It is suitable for single-process production use.
//
// Payloads are stored as JSON; Snapshot returns them as json.RawMessage.
// The final error is stored as its message and rehydrated as a plain error.
type SQLiteSink struct {
	db     *sql.DB
	mu     sync.Mutex
	closed bool
}

// Compile-time interface check.
var _ Sink = (*SQLiteSink)(nil)

// NewSQLiteSink creates a new SQLite dead-letter sink.
// The path should be a file path (e.g., "./deadletters.db") or ":memory:" for testing.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite allows one writer; a single pooled connection also keeps
	// ":memory:" databases coherent across calls.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS dead_letters (
			id TEXT PRIMARY KEY,
			event TEXT NOT NULL,
			payload BLOB,
			error TEXT NOT NULL,
			attempts INTEGER NOT NULL,
			failed_at TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_dead_letters_event
		ON dead_letters(event)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &SQLiteSink{db: db}, nil
}

// Append implements Sink.
func (s *SQLiteSink) Append(ctx context.Context, dl *DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSinkClosed
	}

	payload, err := json.Marshal(dl.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	msg := ""
	if dl.Err != nil {
		msg = dl.Err.Error()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO dead_letters (id, event, payload, error, attempts, failed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, dl.ID, dl.Event, payload, msg, dl.Attempts, dl.FailedAt.UTC().Format(time.RFC3339Nano))

	if err != nil {
		return fmt.Errorf("append dead letter: %w", err)
	}
	return nil
}

// Snapshot implements Sink. Entries come back in append order.
func (s *SQLiteSink) Snapshot(ctx context.Context) ([]DeadLetter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSinkClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event, payload, error, attempts, failed_at
		FROM dead_letters
		ORDER BY rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("snapshot dead letters: %w", err)
	}
	defer rows.Close()

	var entries []DeadLetter
	for rows.Next() {
		var (
			dl       DeadLetter
			payload  []byte
			msg      string
			failedAt string
		)
		if err := rows.Scan(&dl.ID, &dl.Event, &payload, &msg, &dl.Attempts, &failedAt); err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		if len(payload) > 0 {
			dl.Payload = json.RawMessage(payload)
		}
		if msg != "" {
			dl.Err = errors.New(msg)
		}
		if t, err := time.Parse(time.RFC3339Nano, failedAt); err == nil {
			dl.FailedAt = t
		}
		entries = append(entries, dl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("snapshot dead letters: %w", err)
	}
	return entries, nil
}

// Clear implements Sink.
func (s *SQLiteSink) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSinkClosed
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM dead_letters`); err != nil {
		return fmt.Errorf("clear dead letters: %w", err)
	}
	return nil
}

// Len implements Sink.
func (s *SQLiteSink) Len(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrSinkClosed
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dead_letters`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count dead letters: %w", err)
	}
	return n, nil
}

// Close releases the underlying database. Further sink operations return
// ErrSinkClosed.
func (s *SQLiteSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
