package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ApprovalStatus is the state of a human approval request.
// Pending is the only non-terminal state; the first transition is final.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalModified ApprovalStatus = "modified"
)

// ErrAlreadyResolved is returned when a decision is submitted against an
// approval request that has already left the pending state.
var ErrAlreadyResolved = errors.New("model: approval request already resolved")

// ApprovalRequest is created when a gated stage is about to run and resolved
// exactly once by an external actor. It is discarded after resolution; the
// decision's effect lives on in the run, not in the context.
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

// NewApprovalRequest builds a pending request for a gated stage.
func NewApprovalRequest(runID uuid.UUID, stageName, proposedAction string) *ApprovalRequest {
	return &ApprovalRequest{
		ID:             uuid.New(),
		RunID:          runID,
		StageName:      stageName,
		ProposedAction: proposedAction,
		Status:         ApprovalPending,
		CreatedAt:      time.Now().UTC(),
	}
}

// Resolve applies the terminal transition. Resolving a non-pending request
// fails with ErrAlreadyResolved and leaves the request unchanged.
func (a *ApprovalRequest) Resolve(status ApprovalStatus, decidedBy string) error {
	if a.Status != ApprovalPending {
		return ErrAlreadyResolved
	}
	if status == ApprovalPending {
		return errors.New("model: cannot resolve an approval to pending")
	}
	now := time.Now().UTC()
	a.Status = status
	a.DecidedBy = decidedBy
	a.DecidedAt = &now
	return nil
}

// ApprovalDecision is the external actor's answer to an approval request.
// Replacement is consulted only when Status is modified: it is written into
// the context in place of invoking the agent.
type ApprovalDecision struct {
	Status      ApprovalStatus `json:"status"`
	DecidedBy   string         `json:"decided_by,omitempty"`
	Replacement map[string]any `json:"replacement,omitempty"`
}

// Validate checks that the decision names a legal terminal status and that a
// modified decision carries its replacement payload.
func (d ApprovalDecision) Validate() error {
	switch d.Status {
	case ApprovalApproved, ApprovalRejected:
		return nil
	case ApprovalModified:
		if len(d.Replacement) == 0 {
			return errors.New("model: modified decision requires a replacement payload")
		}
		return nil
	default:
		return errors.New("model: decision status must be approved, rejected, or modified")
	}
}
