// Package event defines the metric event model flowing through the pipeline
// and the channel keys used for targeted fan-out delivery.
package event

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrValidation marks events rejected at the ingestion boundary.
// Callers can detect it with errors.Is.
var ErrValidation = errors.New("invalid metric event")

// MetricEvent is one behavioral metric sample for a subject.
// Immutable once created; duplicates are tolerated downstream because the
// writer dedupes on the natural key.
type MetricEvent struct {
	SubjectID  string            `json:"subject_id"`
	MetricType string            `json:"metric_type"`
	Value      float64           `json:"value"`
	Timestamp  time.Time         `json:"timestamp"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Key is the natural dedup key of a metric event.
type Key struct {
	SubjectID  string
	MetricType string
	Timestamp  time.Time
}

// Key returns the natural key (subject, metric, timestamp).
func (e *MetricEvent) Key() Key {
	return Key{
		SubjectID:  e.SubjectID,
		MetricType: e.MetricType,
		Timestamp:  e.Timestamp.UTC(),
	}
}

// Validate checks basic schema requirements. Events failing validation never
// enter the queue.
func (e *MetricEvent) Validate() error {
	if e.SubjectID == "" {
		return fmt.Errorf("%w: subject_id is required", ErrValidation)
	}
	if e.MetricType == "" {
		return fmt.Errorf("%w: metric_type is required", ErrValidation)
	}
	if math.IsNaN(e.Value) || math.IsInf(e.Value, 0) {
		return fmt.Errorf("%w: value must be finite", ErrValidation)
	}
	return nil
}

// AlertKind distinguishes trigger and resolve notifications.
type AlertKind string

const (
	AlertTriggered AlertKind = "triggered"
	AlertResolved  AlertKind = "resolved"
)

// AlertEvent is emitted by the alert evaluator on a state transition and
// fanned out by the notification dispatcher. Severity and Channels come from
// the rule that transitioned.
type AlertEvent struct {
	Kind       AlertKind `json:"kind"`
	RuleName   string    `json:"name"`
	Severity   string    `json:"severity"`
	SubjectID  string    `json:"subject_id"`
	MetricType string    `json:"metric_type"`
	Value      float64   `json:"value"`
	Threshold  float64   `json:"threshold"`
	Timestamp  time.Time `json:"timestamp"`
	Channels   []string  `json:"-"`
}

// SubjectChannel is the channel carrying every metric update for a subject.
func SubjectChannel(subjectID string) string {
	return "metrics:" + subjectID
}

// MetricChannel is the channel carrying updates for one metric of a subject.
func MetricChannel(subjectID, metricType string) string {
	return "metrics:" + subjectID + ":" + metricType
}

// AlertChannel is the channel carrying alert notifications for a subject.
func AlertChannel(subjectID string) string {
	return "alerts:" + subjectID
}
