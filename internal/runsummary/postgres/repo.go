// Package postgres implements a Postgres-backed runsummary.Repository
// using pgx v5, for teams that already centralize batch-job telemetry in a
// shared Postgres instance rather than scattering local SQLite files.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"pwdedup/internal/runsummary"
)

const createTable = `
CREATE TABLE IF NOT EXISTS pwdedup_runs (
	run_id      text PRIMARY KEY,
	inputs      text NOT NULL,
	output_path text NOT NULL,
	slab_bytes  bigint NOT NULL,
	size_hint   bigint NOT NULL,
	workers     integer NOT NULL,
	distinct_n  bigint NOT NULL,
	duplicate_n bigint NOT NULL,
	elapsed_sec double precision NOT NULL,
	finished_at timestamptz NOT NULL
);`

// Repository is a Postgres-backed implementation of runsummary.Repository.
type Repository struct {
	pool *pgxpool.Pool
}

// Open connects to dsn and ensures the summary table exists.
func Open(ctx context.Context, dsn string) (*Repository, func(), error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("runsummary/postgres: connect: %w", err)
	}
	if _, err := pool.Exec(ctx, createTable); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("runsummary/postgres: create table: %w", err)
	}
	return &Repository{pool: pool}, pool.Close, nil
}

// Save implements runsummary.Repository.
func (r *Repository) Save(ctx context.Context, s runsummary.Summary) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO pwdedup_runs
			(run_id, inputs, output_path, slab_bytes, size_hint, workers, distinct_n, duplicate_n, elapsed_sec, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.RunID, strings.Join(s.Inputs, ","), s.OutputPath, s.SlabBytes, s.SizeHint, s.Workers,
		s.Distinct, s.Duplicates, s.ElapsedSec, s.FinishedAt)
	if err != nil {
		return fmt.Errorf("runsummary/postgres: insert: %w", err)
	}
	return nil
}
