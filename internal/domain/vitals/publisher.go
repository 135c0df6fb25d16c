package vitals

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// EventAlertCreated is the event-type header on published alerts.
const EventAlertCreated = "health_alert.created"

// AlertPublisher fans alerts out to downstream consumers after they are
// stored. Publication is best effort; the stored alert is the record.
type AlertPublisher interface {
	Publish(ctx context.Context, submissionID uuid.UUID, alerts []Alert) error
	Close() error
}

// NopPublisher discards alerts. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, uuid.UUID, []Alert) error { return nil }
func (NopPublisher) Close() error                                     { return nil }

// AlertEvent is the message value written for each alert.
type AlertEvent struct {
	EventID      uuid.UUID `json:"eventId"`
	Type         string    `json:"type"`
	SubmissionID uuid.UUID `json:"submissionId"`
	Alert        Alert     `json:"alert"`
	Timestamp    time.Time `json:"timestamp"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaAlertPublisher writes one message per alert, keyed by patient so a
// patient's alerts stay ordered within a partition.
type KafkaAlertPublisher struct {
	writer messageWriter
	now    func() time.Time
}

func NewKafkaAlertPublisher(brokers []string, topic string) *KafkaAlertPublisher {
	return &KafkaAlertPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
		now: time.Now,
	}
}

func (p *KafkaAlertPublisher) Publish(ctx context.Context, submissionID uuid.UUID, alerts []Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(alerts))
	for _, a := range alerts {
		value, err := json.Marshal(AlertEvent{
			EventID:      uuid.New(),
			Type:         EventAlertCreated,
			SubmissionID: submissionID,
			Alert:        a,
			Timestamp:    p.now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("marshal alert event: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(a.PatientID.String()),
			Value: value,
			Headers: []kafka.Header{
				{Key: "event-type", Value: []byte(EventAlertCreated)},
				{Key: "severity", Value: []byte(a.Severity)},
			},
		})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d alerts: %w", len(msgs), err)
	}
	return nil
}

func (p *KafkaAlertPublisher) Close() error {
	return p.writer.Close()
}
