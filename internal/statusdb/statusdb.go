// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package statusdb persists run status documents in a local SQLite
// database. One document exists per run name; updates merge into the
// existing document rather than creating duplicates.
package statusdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/taca/internal/runs"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrNotFound      = errors.New("run not found in status database")
	ErrDatabaseError = errors.New("database error")
)

// =============================================================================
// DOCUMENT
// =============================================================================

// Document is one run's status record.
type Document struct {
	Name      string        `json:"name"`
	Platform  runs.Platform `json:"platform"`
	State     runs.State    `json:"state"`
	Path      string        `json:"path"`
	Flowcell  string        `json:"flowcell"`
	Note      string        `json:"note,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// =============================================================================
// STORE
// =============================================================================

// Store wraps the SQLite status database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the status database at path.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// initSchema creates the runs table when missing.
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		name       TEXT NOT NULL UNIQUE,
		platform   TEXT NOT NULL,
		state      TEXT NOT NULL,
		path       TEXT NOT NULL,
		flowcell   TEXT NOT NULL DEFAULT '',
		note       TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_state ON runs(state);
	CREATE INDEX IF NOT EXISTS idx_runs_platform ON runs(platform);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("%w: failed to init schema: %v", ErrDatabaseError, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// WRITE OPERATIONS
// =============================================================================

// Upsert stores a run document. When a document with the same name
// exists it is updated in place (CreatedAt preserved); otherwise a new
// one is inserted. Never creates a second document for the same run.
func (s *Store) Upsert(ctx context.Context, doc *Document) error {
	now := time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (name, platform, state, path, flowcell, note, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			platform   = excluded.platform,
			state      = excluded.state,
			path       = excluded.path,
			flowcell   = excluded.flowcell,
			note       = excluded.note,
			updated_at = excluded.updated_at
	`, doc.Name, string(doc.Platform), string(doc.State), doc.Path,
		doc.Flowcell, doc.Note, doc.CreatedAt.Unix(), doc.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("%w: upsert of %s: %v", ErrDatabaseError, doc.Name, err)
	}
	return nil
}

// SetState transitions a run to a new state, validating the move
// against the run lifecycle. Returns ErrNotFound for unknown runs.
func (s *Store) SetState(ctx context.Context, name string, to runs.State) error {
	doc, err := s.Get(ctx, name)
	if err != nil {
		return err
	}
	if err := runs.Transition(doc.State, to); err != nil {
		return fmt.Errorf("run %s: %w", name, err)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE runs SET state = ?, updated_at = ? WHERE name = ?`,
		string(to), time.Now().Unix(), name)
	if err != nil {
		return fmt.Errorf("%w: state update of %s: %v", ErrDatabaseError, name, err)
	}
	return nil
}

// SetNote attaches a free-form note (e.g. a failure reason) to a run.
func (s *Store) SetNote(ctx context.Context, name, note string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET note = ?, updated_at = ? WHERE name = ?`,
		note, time.Now().Unix(), name)
	if err != nil {
		return fmt.Errorf("%w: note update of %s: %v", ErrDatabaseError, name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}

// Delete removes a run document. Deleting an absent run is not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("%w: delete of %s: %v", ErrDatabaseError, name, err)
	}
	return nil
}

// =============================================================================
// READ OPERATIONS
// =============================================================================

// Get returns the document for a run name.
func (s *Store) Get(ctx context.Context, name string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, platform, state, path, flowcell, note, created_at, updated_at
		FROM runs WHERE name = ?`, name)
	return scanDocument(row)
}

// Filter selects list results. Zero values match everything.
type Filter struct {
	State    runs.State
	Platform runs.Platform
}

// List returns documents matching the filter, newest update first.
func (s *Store) List(ctx context.Context, f Filter) ([]*Document, error) {
	query := `
		SELECT name, platform, state, path, flowcell, note, created_at, updated_at
		FROM runs WHERE 1=1`
	var args []any
	if f.State != "" {
		query += ` AND state = ?`
		args = append(args, string(f.State))
	}
	if f.Platform != "" {
		query += ` AND platform = ?`
		args = append(args, string(f.Platform))
	}
	query += ` ORDER BY updated_at DESC, name ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// CountByState returns the number of runs per state.
func (s *Store) CountByState(ctx context.Context) (map[runs.State]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT state, COUNT(*) FROM runs GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("%w: count: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	counts := make(map[runs.State]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("%w: count scan: %v", ErrDatabaseError, err)
		}
		counts[runs.State(state)] = n
	}
	return counts, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*Document, error) {
	var doc Document
	var platform, state string
	var created, updated int64

	err := row.Scan(&doc.Name, &platform, &state, &doc.Path,
		&doc.Flowcell, &doc.Note, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: scan: %v", ErrDatabaseError, err)
	}

	doc.Platform = runs.Platform(platform)
	doc.State = runs.State(state)
	doc.CreatedAt = time.Unix(created, 0)
	doc.UpdatedAt = time.Unix(updated, 0)
	return &doc, nil
}
