package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/pulsefeed/pulsefeed/internal/event"
)

func TestBuildMessage(t *testing.T) {
	ev := &event.MetricEvent{
		SubjectID:  "user-42",
		MetricType: "session_minutes",
		Value:      17.5,
		Timestamp:  time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC),
		Metadata:   map[string]string{"device": "ios"},
	}

	msg, err := buildMessage(ev)
	if err != nil {
		t.Fatalf("buildMessage() error = %v", err)
	}

	if string(msg.Key) != "user-42" {
		t.Errorf("message key = %q, want subject_id %q", msg.Key, "user-42")
	}

	var header string
	for _, h := range msg.Headers {
		if h.Key == "metric_type" {
			header = string(h.Value)
		}
	}
	if header != "session_minutes" {
		t.Errorf("metric_type header = %q, want %q", header, "session_minutes")
	}

	var decoded event.MetricEvent
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("message value is not valid JSON: %v", err)
	}
	if decoded.SubjectID != ev.SubjectID || decoded.Value != ev.Value {
		t.Errorf("decoded event = %+v, want %+v", decoded, ev)
	}
	if decoded.Metadata["device"] != "ios" {
		t.Errorf("metadata lost in encoding: %+v", decoded.Metadata)
	}
}

func TestNewProducer_Validation(t *testing.T) {
	if _, err := NewProducer("", "metrics.events"); err == nil {
		t.Error("NewProducer() with empty brokers should fail")
	}
	if _, err := NewProducer("localhost:9092", ""); err == nil {
		t.Error("NewProducer() with empty topic should fail")
	}
}

func TestNewConsumer_Validation(t *testing.T) {
	if _, err := NewConsumer("localhost:9092", "metrics.events", ""); err == nil {
		t.Error("NewConsumer() with empty group should fail")
	}
}
