package vitals

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestKafkaAlertPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaAlertPublisher{writer: w, now: func() time.Time { return testNow }}
	_, alerts := evaluate(t, `{"bloodPressure":"170/110","heartRate":45}`)
	submission := uuid.New()

	if err := p.Publish(context.Background(), submission, alerts); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(w.msgs) != 2 {
		t.Fatalf("wrote %d messages, want 2", len(w.msgs))
	}
	for i, m := range w.msgs {
		if string(m.Key) != alerts[i].PatientID.String() {
			t.Errorf("[%d] key = %s, want patient id", i, m.Key)
		}
		if header(m, "event-type") != EventAlertCreated {
			t.Errorf("[%d] event-type = %q", i, header(m, "event-type"))
		}
		if header(m, "severity") != string(alerts[i].Severity) {
			t.Errorf("[%d] severity header = %q", i, header(m, "severity"))
		}
		var ev AlertEvent
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			t.Fatalf("[%d] decode: %v", i, err)
		}
		if ev.SubmissionID != submission || ev.Alert.ID != alerts[i].ID || ev.Type != EventAlertCreated {
			t.Errorf("[%d] event = %+v", i, ev)
		}
		if !ev.Timestamp.Equal(testNow) {
			t.Errorf("[%d] timestamp = %v", i, ev.Timestamp)
		}
	}
}

func TestKafkaAlertPublisher_NoAlerts(t *testing.T) {
	w := &fakeWriter{err: errors.New("should not be called")}
	p := &KafkaAlertPublisher{writer: w, now: time.Now}
	if err := p.Publish(context.Background(), uuid.New(), nil); err != nil {
		t.Errorf("empty publish: %v", err)
	}
}

func TestKafkaAlertPublisher_WriteError(t *testing.T) {
	w := &fakeWriter{err: kafka.LeaderNotAvailable}
	p := &KafkaAlertPublisher{writer: w, now: time.Now}
	_, alerts := evaluate(t, `{"heartRate":45}`)

	err := p.Publish(context.Background(), uuid.New(), alerts)
	if !errors.Is(err, kafka.LeaderNotAvailable) {
		t.Errorf("expected wrapped writer error, got %v", err)
	}
	if err := p.Close(); err != nil || !w.closed {
		t.Errorf("Close: %v closed=%v", err, w.closed)
	}
}

func TestNewKafkaAlertPublisher(t *testing.T) {
	p := NewKafkaAlertPublisher([]string{"localhost:9092"}, "health-alerts")
	w, ok := p.writer.(*kafka.Writer)
	if !ok {
		t.Fatalf("writer = %T", p.writer)
	}
	if w.Topic != "health-alerts" || w.RequiredAcks != kafka.RequireAll {
		t.Errorf("writer = %+v", w)
	}
	if _, ok := w.Balancer.(*kafka.Hash); !ok {
		t.Errorf("balancer = %T, want *kafka.Hash", w.Balancer)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
