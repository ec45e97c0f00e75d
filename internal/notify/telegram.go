package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-telegram/bot"

	"github.com/abanklabs/crewflow/internal/model"
	"github.com/abanklabs/crewflow/internal/workflow"
)

// TelegramNotifier sends workflow notifications to a Telegram chat.
type TelegramNotifier struct {
	bot    *bot.Bot
	chatID int64
	logger *slog.Logger
}

var _ Notifier = (*TelegramNotifier)(nil)

// NewTelegramNotifier creates a notifier for the given bot token and chat.
func NewTelegramNotifier(token string, chatID int64, logger *slog.Logger) (*TelegramNotifier, error) {
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("notify: create telegram bot: %w", err)
	}
	return &TelegramNotifier{bot: b, chatID: chatID, logger: logger}, nil
}

// NotifyEvent sends human-relevant events to the chat.
func (n *TelegramNotifier) NotifyEvent(ctx context.Context, event model.WorkflowEvent) error {
	text := FormatEvent(event)
	if text == "" {
		return nil
	}
	return n.send(ctx, text)
}

// RemindApproval sends a stalled-approval reminder to the chat.
func (n *TelegramNotifier) RemindApproval(ctx context.Context, run model.WorkflowRun) error {
	return n.send(ctx, FormatReminder(run))
}

func (n *TelegramNotifier) send(ctx context.Context, text string) error {
	_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: n.chatID,
		Text:   text,
	})
	if err != nil {
		return fmt.Errorf("notify: send telegram message: %w", err)
	}
	return nil
}

// Sink adapts a Notifier into an engine event sink. Delivery failures are
// logged, never propagated: a down notification channel must not fail runs.
type Sink struct {
	notifier Notifier
	logger   *slog.Logger
}

var _ workflow.EventSink = (*Sink)(nil)

// NewSink wraps a notifier for event sink use.
func NewSink(notifier Notifier, logger *slog.Logger) *Sink {
	return &Sink{notifier: notifier, logger: logger}
}

// OnEvent forwards the event to the notifier.
func (s *Sink) OnEvent(ctx context.Context, event model.WorkflowEvent) error {
	if err := s.notifier.NotifyEvent(ctx, event); err != nil {
		s.logger.Warn("notification delivery failed", "event_type", event.EventType, "run_id", event.RunID, "error", err)
	}
	return nil
}
