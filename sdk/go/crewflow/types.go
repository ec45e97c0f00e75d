package crewflow

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of a workflow run.
type RunStatus string

const (
	RunStatusRunning          RunStatus = "running"
	RunStatusAwaitingApproval RunStatus = "awaiting_approval"
	RunStatusCompleted        RunStatus = "completed"
	RunStatusFailed           RunStatus = "failed"
	RunStatusCancelled        RunStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// ApprovalStatus is the state of a human approval request.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalModified ApprovalStatus = "modified"
)

// Stage describes one unit of work in a workflow.
type Stage struct {
	Name             string   `json:"name"`
	AgentRole        string   `json:"agent_role"`
	RequiredContext  []string `json:"required_context,omitempty"`
	RequiresApproval bool     `json:"requires_approval,omitempty"`
	Description      string   `json:"description,omitempty"`
}

// Workflow is one entry in the server's workflow catalog.
type Workflow struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Stages      []Stage `json:"stages"`
}

// ApprovalRequest is an outstanding human decision on a gated stage.
type ApprovalRequest struct {
	ID             uuid.UUID      `json:"id"`
	RunID          uuid.UUID      `json:"run_id"`
	StageName      string         `json:"stage_name"`
	ProposedAction string         `json:"proposed_action"`
	Status         ApprovalStatus `json:"status"`
	DecidedBy      string         `json:"decided_by,omitempty"`
	DecidedAt      *time.Time     `json:"decided_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Run is the full state of one workflow execution.
type Run struct {
	ID              uuid.UUID                 `json:"id"`
	Workflow        string                    `json:"workflow"`
	Stages          []Stage                   `json:"stages"`
	CurrentStage    int                       `json:"current_stage"`
	Status          RunStatus                 `json:"status"`
	FailureReason   string                    `json:"failure_reason,omitempty"`
	FailedStage     string                    `json:"failed_stage,omitempty"`
	Context         map[string]map[string]any `json:"context"`
	PendingApproval *ApprovalRequest          `json:"pending_approval,omitempty"`
	PendingSince    *time.Time                `json:"pending_since,omitempty"`
	StartedAt       time.Time                 `json:"started_at"`
	CompletedAt     *time.Time                `json:"completed_at,omitempty"`
	CreatedAt       time.Time                 `json:"created_at"`
}

// RunSummary is the compact listing view of a run.
type RunSummary struct {
	ID              uuid.UUID        `json:"id"`
	Workflow        string           `json:"workflow"`
	Status          RunStatus        `json:"status"`
	CurrentStage    int              `json:"current_stage"`
	StageCount      int              `json:"stage_count"`
	FailureReason   string           `json:"failure_reason,omitempty"`
	FailedStage     string           `json:"failed_stage,omitempty"`
	PendingApproval *ApprovalRequest `json:"pending_approval,omitempty"`
	PendingSince    *time.Time       `json:"pending_since,omitempty"`
	StartedAt       time.Time        `json:"started_at"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
}

// Event is one entry in a run's event log.
type Event struct {
	ID         uuid.UUID      `json:"id"`
	RunID      uuid.UUID      `json:"run_id"`
	EventType  string         `json:"event_type"`
	StageName  string         `json:"stage_name,omitempty"`
	AgentRole  string         `json:"agent_role,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// Decision resolves an approval gate. Replacement is consulted only when
// Status is ApprovalModified.
type Decision struct {
	Status      ApprovalStatus `json:"decision"`
	DecidedBy   string         `json:"decided_by,omitempty"`
	Replacement map[string]any `json:"replacement,omitempty"`
}
