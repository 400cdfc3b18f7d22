// Package turnlog keeps a durable record of processed assistant turns in
// SQLite.
package turnlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("turnlog: store closed")

// Entry is one processed turn.
type Entry struct {
	ID           string        `json:"id"`
	SessionID    string        `json:"session_id"`
	Mode         string        `json:"mode"`
	Capabilities []string      `json:"capabilities,omitempty"`
	Success      bool          `json:"success"`
	Error        string        `json:"error,omitempty"`
	Message      string        `json:"message"`
	Reply        string        `json:"reply"`
	Artifacts    int           `json:"artifacts"`
	Iterations   int           `json:"iterations"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration_ns"`
}

// Store is a SQLite-backed turn log.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

// Open opens (creating if needed) the turn log at path. ":memory:" works
// for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("turnlog: open db: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
			db.Close()
			return nil, fmt.Errorf("turnlog: wal mode: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("turnlog: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS turns (
			id           TEXT PRIMARY KEY,
			session_id   TEXT NOT NULL,
			mode         TEXT NOT NULL,
			capabilities TEXT NOT NULL DEFAULT '',
			success      INTEGER NOT NULL,
			error        TEXT NOT NULL DEFAULT '',
			message      TEXT NOT NULL,
			reply        TEXT NOT NULL,
			artifacts    INTEGER NOT NULL DEFAULT 0,
			iterations   INTEGER NOT NULL DEFAULT 0,
			started_at   INTEGER NOT NULL,
			duration_ms  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_started ON turns(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate %q: %w", stmt[:40], err)
		}
	}
	return nil
}

// Record stores e. Recording the same ID twice replaces the entry.
func (s *Store) Record(ctx context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO turns
		(id, session_id, mode, capabilities, success, error, message, reply, artifacts, iterations, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, e.Mode, strings.Join(e.Capabilities, ","), e.Success, e.Error,
		e.Message, e.Reply, e.Artifacts, e.Iterations, e.StartedAt.UnixMilli(), e.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("turnlog: record %s: %w", e.ID, err)
	}
	return nil
}

// Recent returns up to n entries, newest first. sessionID filters when set.
func (s *Store) Recent(ctx context.Context, sessionID string, n int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if n <= 0 {
		n = 20
	}

	query := `SELECT id, session_id, mode, capabilities, success, error, message, reply,
		artifacts, iterations, started_at, duration_ms FROM turns`
	args := []any{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY started_at DESC, rowid DESC LIMIT ?`
	args = append(args, n)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("turnlog: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e          Entry
			caps       string
			started    int64
			durationMs int64
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Mode, &caps, &e.Success, &e.Error,
			&e.Message, &e.Reply, &e.Artifacts, &e.Iterations, &started, &durationMs); err != nil {
			return nil, fmt.Errorf("turnlog: scan: %w", err)
		}
		if caps != "" {
			e.Capabilities = strings.Split(caps, ",")
		}
		e.StartedAt = time.UnixMilli(started)
		e.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the number of stored turns.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM turns`).Scan(&n); err != nil {
		return 0, fmt.Errorf("turnlog: count: %w", err)
	}
	return n, nil
}

// Close releases the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
