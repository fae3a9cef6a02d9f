package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS mappings (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL,
	original_name TEXT NOT NULL,
	hashed_name   TEXT NOT NULL,
	downloaded_at TEXT NOT NULL,
	link          TEXT NOT NULL,
	note          TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_mappings_run ON mappings(run_id);
CREATE INDEX IF NOT EXISTS idx_mappings_hashed ON mappings(hashed_name);
`

// Store is a sqlite provenance catalog accumulating entries across runs.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the catalog database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("catalog: %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts entries under runID in a single transaction.
func (s *Store) Save(ctx context.Context, runID string, entries []Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO mappings
		(run_id, original_name, hashed_name, downloaded_at, link, note)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("catalog: prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, runID, e.OriginalName, e.HashedName,
			e.DownloadedAt.Format(time.RFC3339), e.Link, e.Note); err != nil {
			return fmt.Errorf("catalog: insert %s: %w", e.HashedName, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("catalog: commit: %w", err)
	}
	return nil
}

// Entries returns the entries saved under runID in insertion order.
func (s *Store) Entries(ctx context.Context, runID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT original_name, hashed_name, downloaded_at, link, note
		FROM mappings WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("catalog: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var at string
		if err := rows.Scan(&e.OriginalName, &e.HashedName, &at, &e.Link, &e.Note); err != nil {
			return nil, fmt.Errorf("catalog: scan: %w", err)
		}
		if e.DownloadedAt, err = time.Parse(time.RFC3339, at); err != nil {
			return nil, fmt.Errorf("catalog: parse time %q: %w", at, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Run summarizes one batch saved in the catalog.
type Run struct {
	ID      string
	Entries int
	First   time.Time
	Last    time.Time
}

// Runs lists saved runs, most recent first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, COUNT(*), MIN(downloaded_at), MAX(downloaded_at)
		FROM mappings GROUP BY run_id ORDER BY MAX(id) DESC`)
	if err != nil {
		return nil, fmt.Errorf("catalog: query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var first, last string
		if err := rows.Scan(&r.ID, &r.Entries, &first, &last); err != nil {
			return nil, fmt.Errorf("catalog: scan run: %w", err)
		}
		if r.First, err = time.Parse(time.RFC3339, first); err != nil {
			return nil, fmt.Errorf("catalog: parse time %q: %w", first, err)
		}
		if r.Last, err = time.Parse(time.RFC3339, last); err != nil {
			return nil, fmt.Errorf("catalog: parse time %q: %w", last, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
