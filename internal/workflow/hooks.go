package workflow

import (
	"context"
	"log/slog"

	"github.com/abanklabs/crewflow/internal/model"
)

// EventSink receives workflow lifecycle events emitted by the runner.
//
// Sinks are called synchronously on the run's thread of control, in emission
// order. Implementations that do slow work (network calls, batched writes)
// must hand off internally; failures are logged and never fail the run.
type EventSink interface {
	OnEvent(ctx context.Context, event model.WorkflowEvent) error
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(ctx context.Context, event model.WorkflowEvent) error

// OnEvent calls f.
func (f EventSinkFunc) OnEvent(ctx context.Context, event model.WorkflowEvent) error {
	return f(ctx, event)
}

// MultiSink fans one event out to several sinks. A failing sink does not
// stop delivery to the others.
type MultiSink struct {
	sinks  []EventSink
	logger *slog.Logger
}

// NewMultiSink composes sinks into one. Nil entries are skipped.
func NewMultiSink(logger *slog.Logger, sinks ...EventSink) *MultiSink {
	m := &MultiSink{logger: logger}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// OnEvent delivers the event to every sink.
func (m *MultiSink) OnEvent(ctx context.Context, event model.WorkflowEvent) error {
	for _, s := range m.sinks {
		if err := s.OnEvent(ctx, event); err != nil {
			m.logger.Warn("event sink failed", "event_type", event.EventType, "run_id", event.RunID, "error", err)
		}
	}
	return nil
}

// SlogSink logs every event with structured fields.
type SlogSink struct {
	Logger *slog.Logger
}

// OnEvent logs the event at info level.
func (s SlogSink) OnEvent(_ context.Context, event model.WorkflowEvent) error {
	attrs := []any{
		"run_id", event.RunID,
		"event_type", event.EventType,
	}
	if event.StageName != "" {
		attrs = append(attrs, "stage", event.StageName)
	}
	if event.AgentRole != "" {
		attrs = append(attrs, "agent_role", event.AgentRole)
	}
	s.Logger.Info("workflow event", attrs...)
	return nil
}
