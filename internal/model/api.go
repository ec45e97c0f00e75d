package model

import (
	"fmt"
	"time"
)

// Field length limits for run inputs and approval decisions. These keep
// caller-controlled payloads from filling JSONB columns with garbage.
const (
	MaxWorkflowNameLen = 100
	MaxInputKeyLen     = 200
	MaxDecidedByLen    = 200
)

// StartRunRequest is the body for starting a workflow run.
type StartRunRequest struct {
	Input map[string]any `json:"input"`
}

// Validate checks per-field limits on a start request.
func (r StartRunRequest) Validate() error {
	for k := range r.Input {
		if len(k) > MaxInputKeyLen {
			return fmt.Errorf("input key exceeds maximum length of %d characters", MaxInputKeyLen)
		}
	}
	return nil
}

// SubmitDecisionRequest is the body for resolving an approval gate.
type SubmitDecisionRequest struct {
	Decision    ApprovalStatus `json:"decision"`
	DecidedBy   string         `json:"decided_by,omitempty"`
	Replacement map[string]any `json:"replacement,omitempty"`
}

// Validate checks the decision body before it reaches the runner.
func (r SubmitDecisionRequest) Validate() error {
	if len(r.DecidedBy) > MaxDecidedByLen {
		return fmt.Errorf("decided_by exceeds maximum length of %d characters", MaxDecidedByLen)
	}
	return ApprovalDecision{Status: r.Decision, Replacement: r.Replacement}.Validate()
}

// APIResponse is the standard success envelope.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta carries request tracing info on every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail is the error payload inside APIError.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Standard error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInvalidState  = "INVALID_STATE"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
)
