// Package mssql implements a SQL Server-backed runsummary.Repository using
// database/sql and the Microsoft go-mssqldb driver, for deployments that
// standardize on SQL Server for operational telemetry.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/microsoft/go-mssqldb"

	"pwdedup/internal/runsummary"
)

const createTable = `
IF NOT EXISTS (SELECT * FROM sysobjects WHERE name='pwdedup_runs' AND xtype='U')
CREATE TABLE pwdedup_runs (
	run_id      NVARCHAR(64) PRIMARY KEY,
	inputs      NVARCHAR(MAX) NOT NULL,
	output_path NVARCHAR(MAX) NOT NULL,
	slab_bytes  BIGINT NOT NULL,
	size_hint   BIGINT NOT NULL,
	workers     INT NOT NULL,
	distinct_n  BIGINT NOT NULL,
	duplicate_n BIGINT NOT NULL,
	elapsed_sec FLOAT NOT NULL,
	finished_at DATETIME2 NOT NULL
);`

// Repository is a SQL Server-backed implementation of runsummary.Repository.
type Repository struct {
	db *sql.DB
}

// Open connects to dsn and ensures the summary table exists.
func Open(ctx context.Context, dsn string) (*Repository, func(), error) {
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("runsummary/mssql: open: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("runsummary/mssql: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, createTable); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("runsummary/mssql: create table: %w", err)
	}
	return &Repository{db: db}, func() { db.Close() }, nil
}

// Save implements runsummary.Repository.
func (r *Repository) Save(ctx context.Context, s runsummary.Summary) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pwdedup_runs
			(run_id, inputs, output_path, slab_bytes, size_hint, workers, distinct_n, duplicate_n, elapsed_sec, finished_at)
		VALUES (@p1, @p2, @p3, @p4, @p5, @p6, @p7, @p8, @p9, @p10)`,
		s.RunID, strings.Join(s.Inputs, ","), s.OutputPath, s.SlabBytes, s.SizeHint, s.Workers,
		s.Distinct, s.Duplicates, s.ElapsedSec, s.FinishedAt)
	if err != nil {
		return fmt.Errorf("runsummary/mssql: insert: %w", err)
	}
	return nil
}
