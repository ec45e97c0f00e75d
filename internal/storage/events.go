package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/abanklabs/crewflow/internal/model"
)

// InsertEvent appends one event to a run's event log.
func (db *DB) InsertEvent(ctx context.Context, event model.WorkflowEvent) error {
	payload := event.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO workflow_events (id, run_id, event_type, stage_name, agent_role, occurred_at, payload)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.ID, event.RunID, string(event.EventType), event.StageName,
		string(event.AgentRole), event.OccurredAt, payload,
	)
	if err != nil {
		return fmt.Errorf("storage: insert event: %w", err)
	}
	return nil
}

// ListEventsByRun returns a run's events in occurrence order.
func (db *DB) ListEventsByRun(ctx context.Context, runID uuid.UUID, limit int) ([]model.WorkflowEvent, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := db.pool.Query(ctx,
		`SELECT id, run_id, event_type, stage_name, agent_role, occurred_at, payload
		 FROM workflow_events WHERE run_id = $1
		 ORDER BY occurred_at ASC, id ASC
		 LIMIT $2`,
		runID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list events: %w", err)
	}
	defer rows.Close()

	var events []model.WorkflowEvent
	for rows.Next() {
		var e model.WorkflowEvent
		if err := rows.Scan(
			&e.ID, &e.RunID, &e.EventType, &e.StageName,
			&e.AgentRole, &e.OccurredAt, &e.Payload,
		); err != nil {
			return nil, fmt.Errorf("storage: scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
