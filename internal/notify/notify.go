// Package notify delivers appointment status messages to patients. Delivery is
// always best effort: callers hand a message off and never wait for the SMS.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/LoickBck/MediciNet/internal/appointment"
)

var (
	ErrDeliveryFailed   = errors.New("notification delivery failed")
	ErrQueueFull        = errors.New("notification queue is full")
	ErrDispatcherClosed = errors.New("notification dispatcher is closed")
)

// Message is the unit handed between the API process and the SMS relay.
type Message struct {
	ID              string    `json:"id"`
	RecipientUserID string    `json:"recipient_user_id"`
	Text            string    `json:"text"`
	// DedupeKey is appointment.NotificationKey of the state being reported.
	DedupeKey       string    `json:"dedupe_key,omitempty"`
	QueuedAt        time.Time `json:"queued_at"`
}

var _ appointment.Notifier = (*Dispatcher)(nil)

// Sender is a delivery backend used by the Dispatcher workers.
type Sender interface {
	Deliver(ctx context.Context, msg Message) error
}

// LogSender writes messages to the log instead of delivering them. Used in
// development when no queue is configured.
type LogSender struct {
	log zerolog.Logger
}

func NewLogSender(log zerolog.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Deliver(_ context.Context, msg Message) error {
	s.log.Info().
		Str("message_id", msg.ID).
		Str("user_id", msg.RecipientUserID).
		Str("text", msg.Text).
		Msg("sms (not sent)")
	return nil
}
