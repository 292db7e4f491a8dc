// Package events publishes appointment lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/LoickBck/MediciNet/internal/appointment"
)

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type envelope struct {
	ID            uuid.UUID       `json:"id"`
	EventType     string          `json:"event_type"`
	AppointmentID *uuid.UUID      `json:"appointment_id,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// KafkaPublisher implements appointment.EventRecorder on a Kafka topic.
// Events of one appointment share a key and so keep their order.
type KafkaPublisher struct {
	w     MessageWriter
	newID func() uuid.UUID
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return NewPublisher(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	})
}

func NewPublisher(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{w: w, newID: uuid.New}
}

func (p *KafkaPublisher) InsertEvent(ctx context.Context, ev appointment.EventLog) error {
	if ev.ID == uuid.Nil {
		ev.ID = p.newID()
	}

	value, err := json.Marshal(envelope{
		ID:            ev.ID,
		EventType:     ev.EventType,
		AppointmentID: ev.AppointmentID,
		Payload:       json.RawMessage(ev.Payload),
		CreatedAt:     ev.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	var key []byte
	if ev.AppointmentID != nil {
		key = []byte(ev.AppointmentID.String())
	}

	err = p.w.WriteMessages(ctx, kafka.Message{
		Key:   key,
		Value: value,
		Time:  ev.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.EventType)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", ev.EventType, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}
