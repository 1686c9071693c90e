// Package store keeps the history of harvest runs in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = errors.New("store: run not found")

// Run is one completed harvest and its export.
type Run struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Target     string    `json:"target"`
	Format     string    `json:"format,omitempty"`
	Filename   string    `json:"filename,omitempty"`
	FileSize   int64     `json:"file_size,omitempty"`
	Products   int       `json:"products_count"`
	Reason     string    `json:"terminal_reason"`
	Partial    bool      `json:"partial"`
	Pages      int       `json:"pages"`
	Requests   int       `json:"requests"`
	Errors     int       `json:"errors"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// RunStore persists runs.
type RunStore struct {
	db *sql.DB
}

// NewRunStore opens (creating if needed) the database at path.
func NewRunStore(path string) (*RunStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	store := &RunStore{db: db}
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the database.
func (s *RunStore) Close() error {
	return s.db.Close()
}

func (s *RunStore) migrate(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    target TEXT NOT NULL,
    format TEXT NOT NULL DEFAULT '',
    filename TEXT NOT NULL DEFAULT '',
    file_size INTEGER NOT NULL DEFAULT 0,
    products INTEGER NOT NULL DEFAULT 0,
    reason TEXT NOT NULL DEFAULT '',
    partial INTEGER NOT NULL DEFAULT 0,
    pages INTEGER NOT NULL DEFAULT 0,
    requests INTEGER NOT NULL DEFAULT 0,
    errors INTEGER NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT '',
    started_at_ms INTEGER NOT NULL,
    finished_at_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs (started_at_ms DESC);
CREATE INDEX IF NOT EXISTS idx_runs_filename ON runs (filename);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// Record stores run, assigning an ID when it has none.
func (s *RunStore) Record(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = run.StartedAt
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO runs(id, kind, target, format, filename, file_size, products, reason, partial,
    pages, requests, errors, error, started_at_ms, finished_at_ms)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Kind, run.Target, run.Format, run.Filename, run.FileSize, run.Products, run.Reason,
		run.Partial, run.Pages, run.Requests, run.Errors, run.Error,
		run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

const runColumns = `id, kind, target, format, filename, file_size, products, reason, partial,
    pages, requests, errors, error, started_at_ms, finished_at_ms`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		run                 Run
		startedMs, finishMs int64
	)
	err := row.Scan(&run.ID, &run.Kind, &run.Target, &run.Format, &run.Filename, &run.FileSize,
		&run.Products, &run.Reason, &run.Partial, &run.Pages, &run.Requests, &run.Errors, &run.Error,
		&startedMs, &finishMs)
	if err != nil {
		return nil, err
	}
	run.StartedAt = time.UnixMilli(startedMs).UTC()
	run.FinishedAt = time.UnixMilli(finishMs).UTC()
	return &run, nil
}

// Get returns the run with id.
func (s *RunStore) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// FindByFilename returns the run that produced filename.
func (s *RunStore) FindByFilename(ctx context.Context, filename string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE filename = ? ORDER BY started_at_ms DESC LIMIT 1`, filename)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("find run: %w", err)
	}
	return run, nil
}

// List returns up to limit runs, newest first.
func (s *RunStore) List(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at_ms DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}
