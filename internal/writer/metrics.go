package writer

import "time"

// MetricsRecorder defines the operational metrics needed by the batch writer.
// This interface allows for dependency injection and testing with fakes.
type MetricsRecorder interface {
	RecordPersisted(count int, latency time.Duration)
	RecordPublished()
	RecordError()
	IncrementCustom(name string)
}

// NoOpMetrics is a null-object implementation of MetricsRecorder.
type NoOpMetrics struct{}

// Compile-time check that NoOpMetrics implements MetricsRecorder.
var _ MetricsRecorder = (*NoOpMetrics)(nil)

// RecordPersisted does nothing.
func (n *NoOpMetrics) RecordPersisted(_ int, _ time.Duration) {}

// RecordPublished does nothing.
func (n *NoOpMetrics) RecordPublished() {}

// RecordError does nothing.
func (n *NoOpMetrics) RecordError() {}

// IncrementCustom does nothing.
func (n *NoOpMetrics) IncrementCustom(_ string) {}
