// Package notify delivers human-facing notifications for workflow events,
// primarily approval requests that need a person's decision.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/abanklabs/crewflow/internal/model"
)

// Notifier delivers workflow notifications to a human channel.
type Notifier interface {
	// NotifyEvent is called for run events worth a human's attention.
	NotifyEvent(ctx context.Context, event model.WorkflowEvent) error

	// RemindApproval nudges about an approval that has been pending too
	// long.
	RemindApproval(ctx context.Context, run model.WorkflowRun) error
}

// NoopNotifier discards all notifications. Used when no channel is
// configured.
type NoopNotifier struct{}

// NotifyEvent discards the event.
func (NoopNotifier) NotifyEvent(context.Context, model.WorkflowEvent) error { return nil }

// RemindApproval discards the reminder.
func (NoopNotifier) RemindApproval(context.Context, model.WorkflowRun) error { return nil }

// FormatEvent renders a notification message for an event, or "" when the
// event is not human-relevant.
func FormatEvent(event model.WorkflowEvent) string {
	switch event.EventType {
	case model.EventApprovalRequested:
		action, _ := event.Payload["proposed_action"].(string)
		return fmt.Sprintf(
			"Approval needed\nRun: %s\nStage: %s\nProposed: %s\n\nResolve with approved, rejected, or modified.",
			event.RunID, event.StageName, action,
		)
	case model.EventRunCompleted:
		return fmt.Sprintf("Workflow run %s completed.", event.RunID)
	case model.EventRunFailed:
		reason, _ := event.Payload["reason"].(string)
		return fmt.Sprintf("Workflow run %s failed at stage %s (%s).", event.RunID, event.StageName, reason)
	default:
		return ""
	}
}

// FormatReminder renders a stalled-approval reminder message.
func FormatReminder(run model.WorkflowRun) string {
	stage := ""
	if run.PendingApproval != nil {
		stage = run.PendingApproval.StageName
	}
	waiting := ""
	if run.PendingSince != nil {
		waiting = time.Since(*run.PendingSince).Round(time.Minute).String()
	}
	return fmt.Sprintf(
		"Reminder: run %s is still awaiting approval at stage %s (pending %s).",
		run.ID, stage, waiting,
	)
}
