package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/abanklabs/crewflow/internal/model"
	"github.com/abanklabs/crewflow/internal/workflow"
)

// RunStore adapts DB to the engine's store interface, wrapping writes with
// conflict retry.
type RunStore struct {
	db *DB
}

var _ workflow.Store = (*RunStore)(nil)

// NewRunStore creates a store backed by the given DB.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db}
}

// SaveRun persists a run snapshot.
func (s *RunStore) SaveRun(ctx context.Context, run model.WorkflowRun) error {
	return withConflictRetry(ctx, func() error {
		return s.db.SaveRun(ctx, run)
	})
}

// GetRun loads a run snapshot.
func (s *RunStore) GetRun(ctx context.Context, id uuid.UUID) (model.WorkflowRun, error) {
	run, err := s.db.GetRun(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return model.WorkflowRun{}, workflow.ErrRunNotFound
	}
	return run, err
}

// ListRuns returns run snapshots, most recent first.
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]model.WorkflowRun, error) {
	return s.db.ListRuns(ctx, limit)
}

// EventLog adapts DB to the engine's event sink interface, appending every
// emitted event to the workflow_events table.
type EventLog struct {
	db *DB
}

var _ workflow.EventSink = (*EventLog)(nil)

// NewEventLog creates an event sink backed by the given DB.
func NewEventLog(db *DB) *EventLog {
	return &EventLog{db: db}
}

// OnEvent appends the event to the log.
func (l *EventLog) OnEvent(ctx context.Context, event model.WorkflowEvent) error {
	return withConflictRetry(ctx, func() error {
		return l.db.InsertEvent(ctx, event)
	})
}
