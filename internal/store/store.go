// Package store keeps a SQLite ledger of sessions: one row per session, written when
// it starts and again when it reaches a terminal status.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	module      TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	input_json  TEXT NOT NULL DEFAULT '{}',
	turns       INTEGER NOT NULL DEFAULT 0,
	cost_usd    REAL NOT NULL DEFAULT 0.0,
	page_id     TEXT NOT NULL DEFAULT '',
	page_url    TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at);
CREATE INDEX IF NOT EXISTS idx_sessions_module ON sessions(module, started_at);
`

// ErrNotFound is returned by Get for an unknown session id.
var ErrNotFound = errors.New("session not found")

// Session is one ledger row.
type Session struct {
	ID         string     `json:"id"`
	Module     string     `json:"module"`
	Status     string     `json:"status"`
	InputJSON  string     `json:"input"`
	Turns      int        `json:"turns"`
	CostUSD    float64    `json:"cost_usd"`
	PageID     string     `json:"page_id,omitempty"`
	PageURL    string     `json:"page_url,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Outcome is the terminal part of a row.
type Outcome struct {
	Status  string
	Turns   int
	CostUSD float64
	PageID  string
	PageURL string
	Error   string
}

// Store is the session ledger.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the ledger at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// single writer; concurrent sessions serialize on this connection
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Start records a running session.
func (s *Store) Start(ctx context.Context, id, module, inputJSON string, startedAt time.Time) error {
	if inputJSON == "" {
		inputJSON = "{}"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, module, status, input_json, started_at) VALUES (?, ?, 'running', ?, ?)`,
		id, module, inputJSON, startedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert session %s: %w", id, err)
	}
	return nil
}

// Finish records the terminal outcome of a session.
func (s *Store) Finish(ctx context.Context, id string, o Outcome, finishedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, turns = ?, cost_usd = ?, page_id = ?, page_url = ?, error = ?, finished_at = ? WHERE id = ?`,
		o.Status, o.Turns, o.CostUSD, o.PageID, o.PageURL, o.Error, finishedAt.UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("update session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

const selectColumns = `SELECT id, module, status, input_json, turns, cost_usd, page_id, page_url, error, started_at, finished_at FROM sessions`

// Get returns one session.
func (s *Store) Get(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return sess, err
}

// List returns up to limit sessions, newest first. An empty module lists all.
func (s *Store) List(ctx context.Context, module string, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 20
	}
	query := selectColumns + ` ORDER BY started_at DESC, id DESC LIMIT ?`
	args := []any{limit}
	if module != "" {
		query = selectColumns + ` WHERE module = ? ORDER BY started_at DESC, id DESC LIMIT ?`
		args = []any{module, limit}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (Session, error) {
	var (
		sess              Session
		started, finished int64
	)
	err := sc.Scan(&sess.ID, &sess.Module, &sess.Status, &sess.InputJSON, &sess.Turns, &sess.CostUSD,
		&sess.PageID, &sess.PageURL, &sess.Error, &started, &finished)
	if err != nil {
		return Session{}, err
	}
	sess.StartedAt = time.UnixMilli(started)
	if finished > 0 {
		t := time.UnixMilli(finished)
		sess.FinishedAt = &t
	}
	return sess, nil
}
