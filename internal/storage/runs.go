package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/abanklabs/crewflow/internal/model"
)

// SaveRun upserts a run's full state snapshot. Indexed columns are
// duplicated out of the snapshot so runs can be listed and filtered without
// decoding JSONB.
func (db *DB) SaveRun(ctx context.Context, run model.WorkflowRun) error {
	snapshot, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("storage: marshal run snapshot: %w", err)
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO workflow_runs (id, workflow, status, failure_reason, failed_stage, current_stage, snapshot, started_at, completed_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		 ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			failure_reason = EXCLUDED.failure_reason,
			failed_stage = EXCLUDED.failed_stage,
			current_stage = EXCLUDED.current_stage,
			snapshot = EXCLUDED.snapshot,
			completed_at = EXCLUDED.completed_at,
			updated_at = now()`,
		run.ID, run.Workflow, string(run.Status), string(run.FailureReason), run.FailedStage,
		run.CurrentStage, snapshot, run.StartedAt, run.CompletedAt, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: save run: %w", err)
	}
	return nil
}

// GetRun retrieves a run snapshot by ID.
func (db *DB) GetRun(ctx context.Context, id uuid.UUID) (model.WorkflowRun, error) {
	var snapshot []byte
	err := db.pool.QueryRow(ctx,
		`SELECT snapshot FROM workflow_runs WHERE id = $1`, id,
	).Scan(&snapshot)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.WorkflowRun{}, ErrNotFound
		}
		return model.WorkflowRun{}, fmt.Errorf("storage: get run: %w", err)
	}
	return decodeRun(snapshot)
}

// ListRuns returns run snapshots ordered most recent first.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]model.WorkflowRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx,
		`SELECT snapshot FROM workflow_runs ORDER BY created_at DESC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list runs: %w", err)
	}
	defer rows.Close()
	return scanRuns(rows)
}

// ListRunsByStatus returns run snapshots in the given status, oldest first.
// Used at startup to re-register unfinished runs with the engine.
func (db *DB) ListRunsByStatus(ctx context.Context, status model.RunStatus, limit int) ([]model.WorkflowRun, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := db.pool.Query(ctx,
		`SELECT snapshot FROM workflow_runs WHERE status = $1 ORDER BY created_at ASC LIMIT $2`,
		string(status), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list runs by status: %w", err)
	}
	defer rows.Close()
	return scanRuns(rows)
}

// ListStalledApprovals returns runs that have been awaiting approval since
// before the cutoff, oldest first.
func (db *DB) ListStalledApprovals(ctx context.Context, cutoff time.Time, limit int) ([]model.WorkflowRun, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.pool.Query(ctx,
		`SELECT snapshot FROM workflow_runs
		 WHERE status = $1 AND (snapshot->>'pending_since')::timestamptz < $2
		 ORDER BY (snapshot->>'pending_since')::timestamptz ASC
		 LIMIT $3`,
		string(model.RunStatusAwaitingApproval), cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list stalled approvals: %w", err)
	}
	defer rows.Close()
	return scanRuns(rows)
}

func scanRuns(rows pgx.Rows) ([]model.WorkflowRun, error) {
	var runs []model.WorkflowRun
	for rows.Next() {
		var snapshot []byte
		if err := rows.Scan(&snapshot); err != nil {
			return nil, fmt.Errorf("storage: scan run: %w", err)
		}
		run, err := decodeRun(snapshot)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func decodeRun(snapshot []byte) (model.WorkflowRun, error) {
	var run model.WorkflowRun
	if err := json.Unmarshal(snapshot, &run); err != nil {
		return model.WorkflowRun{}, fmt.Errorf("storage: decode run snapshot: %w", err)
	}
	return run, nil
}
