// Package history keeps a SQLite ledger of runs and the per-user steps they
// performed, so an operator can see what was done to an account and when.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const createRunsTable = `
CREATE TABLE IF NOT EXISTS runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    action TEXT NOT NULL,
    provider TEXT NOT NULL,
    what_if BOOLEAN NOT NULL DEFAULT 0,
    started_at TEXT NOT NULL,
    finished_at TEXT,
    total INTEGER NOT NULL DEFAULT 0,
    succeeded INTEGER NOT NULL DEFAULT 0,
    partial INTEGER NOT NULL DEFAULT 0,
    failed INTEGER NOT NULL DEFAULT 0,
    invalid INTEGER NOT NULL DEFAULT 0
);
`

const createStepsTable = `
CREATE TABLE IF NOT EXISTS steps (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id INTEGER NOT NULL REFERENCES runs(id),
    email TEXT NOT NULL,
    step TEXT NOT NULL,
    status TEXT NOT NULL,
    detail TEXT NOT NULL DEFAULT '',
    at TEXT NOT NULL
);
`

const createStepsEmailIndex = `CREATE INDEX IF NOT EXISTS idx_steps_email ON steps(email);`

const timeLayout = time.RFC3339

// Migrate creates the ledger tables if they do not exist.
func Migrate(db *sql.DB) error {
	for _, stmt := range []string{createRunsTable, createStepsTable, createStepsEmailIndex} {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("history migration failed: %w", err)
		}
	}
	return nil
}

// Totals are the record counters stored with a finished run.
type Totals struct {
	Total     int
	Succeeded int
	Partial   int
	Failed    int
	Invalid   int
}

// Run is one row of the runs table.
type Run struct {
	ID         int64
	Action     string
	Provider   string
	WhatIf     bool
	StartedAt  time.Time
	FinishedAt time.Time // zero while running or after an interrupted run
	Totals
}

// Step is one recorded step for a user.
type Step struct {
	RunID  int64
	Action string
	Email  string
	Step   string
	Status string
	Detail string
	At     time.Time
}

// Store is the SQLite-backed ledger.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// DefaultPath returns <user config dir>/reactivatetool/history.db.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine user config directory: %w", err)
	}
	return filepath.Join(dir, "reactivatetool", "history.db"), nil
}

// Open opens (creating if needed) the ledger at path and migrates it.
// An empty path uses DefaultPath.
func Open(path string) (*Store, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// One writer; the tool is sequential.
	db.SetMaxOpenConns(1)
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun inserts a run and returns its id.
func (s *Store) StartRun(ctx context.Context, action, provider string, whatIf bool) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (action, provider, what_if, started_at) VALUES (?, ?, ?, ?)`,
		action, provider, whatIf, s.now().UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to record run start: %w", err)
	}
	return res.LastInsertId()
}

// RecordStep appends a step outcome for email to run runID.
func (s *Store) RecordStep(ctx context.Context, runID int64, email, step, status, detail string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO steps (run_id, email, step, status, detail, at) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, strings.ToLower(email), step, status, detail, s.now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to record step: %w", err)
	}
	return nil
}

// FinishRun stores the final counters of run runID.
func (s *Store) FinishRun(ctx context.Context, runID int64, t Totals) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, total = ?, succeeded = ?, partial = ?, failed = ?, invalid = ? WHERE id = ?`,
		s.now().UTC().Format(timeLayout), t.Total, t.Succeeded, t.Partial, t.Failed, t.Invalid, runID)
	if err != nil {
		return fmt.Errorf("failed to record run end: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %d not found", runID)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, action, provider, what_if, started_at, COALESCE(finished_at, ''),
		        total, succeeded, partial, failed, invalid
		 FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished string
		if err := rows.Scan(&r.ID, &r.Action, &r.Provider, &r.WhatIf, &started, &finished,
			&r.Total, &r.Succeeded, &r.Partial, &r.Failed, &r.Invalid); err != nil {
			return nil, err
		}
		if r.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, err
		}
		if finished != "" {
			if r.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
				return nil, err
			}
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// UserHistory returns every step recorded for email, oldest first.
func (s *Store) UserHistory(ctx context.Context, email string) ([]Step, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.run_id, r.action, s.email, s.step, s.status, s.detail, s.at
		 FROM steps s JOIN runs r ON r.id = s.run_id
		 WHERE s.email = ? ORDER BY s.id`, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []Step
	for rows.Next() {
		var st Step
		var at string
		if err := rows.Scan(&st.RunID, &st.Action, &st.Email, &st.Step, &st.Status, &st.Detail, &at); err != nil {
			return nil, err
		}
		if st.At, err = time.Parse(timeLayout, at); err != nil {
			return nil, err
		}
		steps = append(steps, st)
	}
	return steps, rows.Err()
}
