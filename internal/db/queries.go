package db

import (
	"context"
	"fmt"
	"time"

	"github.com/lucasnoah/devloop/internal/domain"
)

// RunRecord represents a row in the runs table.
type RunRecord struct {
	ID         int64
	StartedAt  time.Time
	EndedAt    time.Time
	DurationS  float64
	Iterations int
	Converged  bool
}

// IterationRecord represents a row in the run_iterations table.
type IterationRecord struct {
	ID           int64
	RunID        int64
	Iteration    int
	DurationS    float64
	Outcome      string
	Verification string
}

// GateRecord represents a row in the run_gates table.
type GateRecord struct {
	ID          int64
	IterationID int64
	Name        string
	Status      string
	Output      string
	DurationS   float64
}

// RecordRun inserts a finalized run with its iterations and gate
// results in one transaction.
func (s *Store) RecordRun(ctx context.Context, m *domain.PipelineMetrics) error {
	startedAt, err := time.Parse(time.RFC3339, m.StartedAt)
	if err != nil {
		return fmt.Errorf("parse started_at: %w", err)
	}
	endedAt, err := time.Parse(time.RFC3339, m.EndedAt)
	if err != nil {
		return fmt.Errorf("parse ended_at: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var runID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO runs (started_at, ended_at, duration_s, iterations, converged)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		startedAt, endedAt, m.TotalDurationS, m.TotalIterations, m.Converged,
	).Scan(&runID)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, iter := range m.Iterations {
		var iterID int64
		err = tx.QueryRow(ctx,
			`INSERT INTO run_iterations (run_id, iteration, duration_s, outcome, verification)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			runID, iter.Iteration, iter.DurationS, string(iter.Outcome), string(iter.VerificationStatus),
		).Scan(&iterID)
		if err != nil {
			return fmt.Errorf("insert iteration %d: %w", iter.Iteration, err)
		}

		for _, g := range iter.GateResults {
			if _, err := tx.Exec(ctx,
				`INSERT INTO run_gates (iteration_id, name, status, output, duration_s)
				 VALUES ($1, $2, $3, $4, $5)`,
				iterID, g.Name, string(g.Status), g.Output, g.DurationS,
			); err != nil {
				return fmt.Errorf("insert gate %s: %w", g.Name, err)
			}
		}
	}

	return tx.Commit(ctx)
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, started_at, ended_at, duration_s, iterations, converged
		 FROM runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.EndedAt, &r.DurationS, &r.Iterations, &r.Converged); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ListIterations returns the iterations of a run in order.
func (s *Store) ListIterations(ctx context.Context, runID int64) ([]IterationRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, iteration, duration_s, outcome, verification
		 FROM run_iterations WHERE run_id = $1 ORDER BY iteration`, runID)
	if err != nil {
		return nil, fmt.Errorf("list iterations: %w", err)
	}
	defer rows.Close()

	var iters []IterationRecord
	for rows.Next() {
		var it IterationRecord
		if err := rows.Scan(&it.ID, &it.RunID, &it.Iteration, &it.DurationS, &it.Outcome, &it.Verification); err != nil {
			return nil, fmt.Errorf("scan iteration: %w", err)
		}
		iters = append(iters, it)
	}
	return iters, rows.Err()
}

// ListGateRecords returns all gate results recorded across the most
// recent runs, up to limit runs back.
func (s *Store) ListGateRecords(ctx context.Context, limit int) ([]GateRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT g.id, g.iteration_id, g.name, g.status, COALESCE(g.output, ''), g.duration_s
		FROM run_gates g
		JOIN run_iterations i ON g.iteration_id = i.id
		WHERE i.run_id IN (SELECT id FROM runs ORDER BY started_at DESC LIMIT $1)
		ORDER BY g.id`, limit)
	if err != nil {
		return nil, fmt.Errorf("list gate records: %w", err)
	}
	defer rows.Close()

	var gs []GateRecord
	for rows.Next() {
		var g GateRecord
		if err := rows.Scan(&g.ID, &g.IterationID, &g.Name, &g.Status, &g.Output, &g.DurationS); err != nil {
			return nil, fmt.Errorf("scan gate record: %w", err)
		}
		gs = append(gs, g)
	}
	return gs, rows.Err()
}
