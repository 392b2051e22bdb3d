// Package sqlite implements a SQLite-backed runsummary.Repository using
// database/sql. It is the default local backend: no server to run, a
// single file on disk.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"pwdedup/internal/runsummary"
)

const createTable = `
CREATE TABLE IF NOT EXISTS pwdedup_runs (
	run_id      TEXT PRIMARY KEY,
	inputs      TEXT NOT NULL,
	output_path TEXT NOT NULL,
	slab_bytes  INTEGER NOT NULL,
	size_hint   INTEGER NOT NULL,
	workers     INTEGER NOT NULL,
	distinct_n  INTEGER NOT NULL,
	duplicate_n INTEGER NOT NULL,
	elapsed_sec REAL NOT NULL,
	finished_at TEXT NOT NULL
);`

// Repository is a SQLite-backed implementation of runsummary.Repository.
type Repository struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite database at dsn and ensures
// the summary table exists.
func Open(ctx context.Context, dsn string) (*Repository, func(), error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, nil, fmt.Errorf("runsummary/sqlite: DSN must not be empty")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("runsummary/sqlite: open: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("runsummary/sqlite: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, createTable); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("runsummary/sqlite: create table: %w", err)
	}

	closeFn := func() { db.Close() }
	return &Repository{db: db}, closeFn, nil
}

// Save implements runsummary.Repository.
func (r *Repository) Save(ctx context.Context, s runsummary.Summary) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pwdedup_runs
			(run_id, inputs, output_path, slab_bytes, size_hint, workers, distinct_n, duplicate_n, elapsed_sec, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.RunID, strings.Join(s.Inputs, ","), s.OutputPath, s.SlabBytes, s.SizeHint, s.Workers,
		s.Distinct, s.Duplicates, s.ElapsedSec, s.FinishedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("runsummary/sqlite: insert: %w", err)
	}
	return nil
}
