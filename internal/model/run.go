// Package model defines the core domain types for Crewflow.
//
// Types are persisted as JSONB snapshots and carried on API and event
// payloads. They use strong typing (UUIDs, time.Time, enums) and avoid
// interface{} wherever possible.
package model

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the lifecycle state of a workflow run.
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

// FailureReason is the machine-readable cause carried by a failed run.
type FailureReason string

const (
	ReasonApprovalDenied   FailureReason = "approval_denied"
	ReasonRetriesExhausted FailureReason = "retries_exhausted"
	ReasonPermanentFailure FailureReason = "permanent_failure"
	ReasonMissingContext   FailureReason = "missing_context"
	ReasonDuplicateKey     FailureReason = "duplicate_key"
)

// ContextKeyInput is the reserved context key holding the run's initial input.
const ContextKeyInput = "input"

// WorkflowRun is one execution instance of a workflow. The stage sequence is
// fixed at creation; CurrentStage only advances forward; once the status is
// terminal the run is never mutated again.
type WorkflowRun struct {
	ID           uuid.UUID            `json:"id"`
	Workflow     string               `json:"workflow"`
	Stages       []StageDescriptor    `json:"stages"`
	CurrentStage int                  `json:"current_stage"`
	Status       RunStatus            `json:"status"`

	// Failure attribution. Set only when Status is failed.
	FailureReason FailureReason `json:"failure_reason,omitempty"`
	FailedStage   string        `json:"failed_stage,omitempty"`

	// Accumulated stage outputs, keyed by stage name. Append-only.
	Context map[string]map[string]any `json:"context"`

	// Outstanding approval, non-nil only while awaiting_approval.
	PendingApproval *ApprovalRequest `json:"pending_approval,omitempty"`
	PendingSince    *time.Time       `json:"pending_since,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Clone returns a deep copy so callers can hand out snapshots without
// exposing the run's live maps.
func (r WorkflowRun) Clone() WorkflowRun {
	out := r
	out.Stages = make([]StageDescriptor, len(r.Stages))
	for i, s := range r.Stages {
		out.Stages[i] = s.Clone()
	}
	if r.Context != nil {
		out.Context = make(map[string]map[string]any, len(r.Context))
		for name, payload := range r.Context {
			entry := make(map[string]any, len(payload))
			for k, v := range payload {
				entry[k] = v
			}
			out.Context[name] = entry
		}
	}
	if r.PendingApproval != nil {
		approval := *r.PendingApproval
		out.PendingApproval = &approval
	}
	if r.PendingSince != nil {
		since := *r.PendingSince
		out.PendingSince = &since
	}
	if r.CompletedAt != nil {
		at := *r.CompletedAt
		out.CompletedAt = &at
	}
	return out
}

// RunSummary is the read-only inspection view returned by status queries.
type RunSummary struct {
	ID              uuid.UUID        `json:"id"`
	Workflow        string           `json:"workflow"`
	Status          RunStatus        `json:"status"`
	CurrentStage    int              `json:"current_stage"`
	StageCount      int              `json:"stage_count"`
	FailureReason   FailureReason    `json:"failure_reason,omitempty"`
	FailedStage     string           `json:"failed_stage,omitempty"`
	PendingApproval *ApprovalRequest `json:"pending_approval,omitempty"`
	PendingSince    *time.Time       `json:"pending_since,omitempty"`
	StartedAt       time.Time        `json:"started_at"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
}

// Summary builds the inspection view from a run snapshot.
func (r WorkflowRun) Summary() RunSummary {
	return RunSummary{
		ID:              r.ID,
		Workflow:        r.Workflow,
		Status:          r.Status,
		CurrentStage:    r.CurrentStage,
		StageCount:      len(r.Stages),
		FailureReason:   r.FailureReason,
		FailedStage:     r.FailedStage,
		PendingApproval: r.PendingApproval,
		PendingSince:    r.PendingSince,
		StartedAt:       r.StartedAt,
		CompletedAt:     r.CompletedAt,
	}
}
