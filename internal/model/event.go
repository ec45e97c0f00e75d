package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the category of a workflow event.
type EventType string

const (
	// Run lifecycle events.
	EventRunStarted   EventType = "RunStarted"
	EventRunCompleted EventType = "RunCompleted"
	EventRunFailed    EventType = "RunFailed"
	EventRunCancelled EventType = "RunCancelled"

	// Stage events.
	EventStageStarted   EventType = "StageStarted"
	EventStageCompleted EventType = "StageCompleted"
	EventStageRetried   EventType = "StageRetried"

	// Approval gate events.
	EventApprovalRequested EventType = "ApprovalRequested"
	EventApprovalResolved  EventType = "ApprovalResolved"
)

// WorkflowEvent is an append-only record in the event log. Never mutated.
type WorkflowEvent struct {
	ID         uuid.UUID      `json:"id"`
	RunID      uuid.UUID      `json:"run_id"`
	EventType  EventType      `json:"event_type"`
	StageName  string         `json:"stage_name,omitempty"`
	AgentRole  AgentRole      `json:"agent_role,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// NewWorkflowEvent stamps an event with an ID and occurrence time.
func NewWorkflowEvent(runID uuid.UUID, eventType EventType, stageName string, role AgentRole, payload map[string]any) WorkflowEvent {
	return WorkflowEvent{
		ID:         uuid.New(),
		RunID:      runID,
		EventType:  eventType,
		StageName:  stageName,
		AgentRole:  role,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// StageRetriedPayload is the payload for StageRetried events.
type StageRetriedPayload struct {
	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"max_attempts"`
	Error       string `json:"error"`
	BackoffMs   int64  `json:"backoff_ms"`
}

// RunFailedPayload is the payload for RunFailed events.
type RunFailedPayload struct {
	Reason    FailureReason `json:"reason"`
	StageName string        `json:"stage_name,omitempty"`
	Error     string        `json:"error,omitempty"`
}
