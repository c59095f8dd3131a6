// Package db persists run history to Postgres. It is optional: the
// pipeline runs fully without a database, and recording failures never
// fail a run.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps the Postgres connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pool against the given URL and verifies the
// connection.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Pool returns the underlying pool for advanced queries.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
    version    INTEGER PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS runs (
    id          BIGSERIAL PRIMARY KEY,
    started_at  TIMESTAMPTZ NOT NULL,
    ended_at    TIMESTAMPTZ NOT NULL,
    duration_s  DOUBLE PRECISION NOT NULL,
    iterations  INTEGER NOT NULL,
    converged   BOOLEAN NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);

CREATE TABLE IF NOT EXISTS run_iterations (
    id          BIGSERIAL PRIMARY KEY,
    run_id      BIGINT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    iteration   INTEGER NOT NULL,
    duration_s  DOUBLE PRECISION NOT NULL,
    outcome     TEXT NOT NULL CHECK(outcome IN ('pass','gate_fail','verify_fail')),
    verification TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_iterations_run ON run_iterations(run_id, iteration);

CREATE TABLE IF NOT EXISTS run_gates (
    id           BIGSERIAL PRIMARY KEY,
    iteration_id BIGINT NOT NULL REFERENCES run_iterations(id) ON DELETE CASCADE,
    name         TEXT NOT NULL,
    status       TEXT NOT NULL CHECK(status IN ('pass','fail','skipped','blocked')),
    output       TEXT,
    duration_s   DOUBLE PRECISION NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_gates_name ON run_gates(name);
`

// Migrate applies the database schema.
func (s *Store) Migrate(ctx context.Context) error {
	var count int
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM schema_version WHERE version = 1").Scan(&count)
	if err == nil && count > 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, schemaV1); err != nil {
		return fmt.Errorf("apply schema v1: %w", err)
	}
	if _, err := tx.Exec(ctx, "INSERT INTO schema_version (version) VALUES (1)"); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit(ctx)
}
