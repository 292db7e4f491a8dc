package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/LoickBck/MediciNet/internal/appointment"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaPublisher_InsertEvent(t *testing.T) {
	w := &fakeWriter{}
	p := NewPublisher(w)

	apptID := uuid.New()
	at := time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)
	err := p.InsertEvent(context.Background(), appointment.EventLog{
		EventType:     appointment.EventAppointmentCancelled,
		AppointmentID: &apptID,
		Payload:       []byte(`{"cancellation_reason":"sick"}`),
		CreatedAt:     at,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != apptID.String() {
		t.Errorf("key = %s, want appointment id", msg.Key)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != appointment.EventAppointmentCancelled {
		t.Errorf("headers = %v", msg.Headers)
	}

	var env envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.ID == uuid.Nil {
		t.Error("expected generated event id")
	}
	if env.EventType != appointment.EventAppointmentCancelled || !env.CreatedAt.Equal(at) {
		t.Errorf("envelope = %+v", env)
	}
	if string(env.Payload) != `{"cancellation_reason":"sick"}` {
		t.Errorf("payload = %s", env.Payload)
	}
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	p := NewPublisher(&fakeWriter{err: errors.New("broker unavailable")})

	err := p.InsertEvent(context.Background(), appointment.EventLog{EventType: appointment.EventAppointmentCreated})
	if err == nil {
		t.Fatal("expected error")
	}
}
