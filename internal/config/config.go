// Package config provides configuration parsing and validation for the
// pulsefeed process.
package config

import (
	"fmt"
	"time"
)

// Config holds all configuration parameters for the pipeline.
type Config struct {
	// Transport and storage
	KafkaBrokers    string
	EventsTopic     string
	ConsumerGroupID string
	PostgresDSN     string
	RedisAddr       string

	// HTTP surface
	ListenAddr string
	JWTSecret  string

	// Ingestion rate limit (per subject, per window)
	IngestRateLimit  int
	IngestRateWindow time.Duration

	// Batch writer
	BatchSize    int
	BatchWindow  time.Duration
	DrainTimeout time.Duration

	// Gateway
	HeartbeatInterval time.Duration

	// Alerting
	SweepInterval time.Duration
	AlertEmailFrom string
	AlertEmailTo   string // comma-separated recipients
	ResendAPIKey   string
	AWSRegion      string
	WebhookURL     string

	LogLevel string
}

// Validate checks that all required configuration fields are set and have
// valid values. Returns an error if validation fails, nil otherwise.
func (c *Config) Validate() error {
	if c.KafkaBrokers == "" {
		return fmt.Errorf("kafka-brokers cannot be empty")
	}
	if c.EventsTopic == "" {
		return fmt.Errorf("events-topic cannot be empty")
	}
	if c.ConsumerGroupID == "" {
		return fmt.Errorf("consumer-group-id cannot be empty")
	}
	if c.PostgresDSN == "" {
		return fmt.Errorf("postgres-dsn cannot be empty")
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("redis-addr cannot be empty")
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("listen-addr cannot be empty")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt-secret cannot be empty")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be positive")
	}
	if c.BatchWindow <= 0 {
		return fmt.Errorf("batch-window must be positive")
	}
	if c.DrainTimeout <= 0 {
		return fmt.Errorf("drain-timeout must be positive")
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat-interval must be positive")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep-interval must be positive")
	}
	if c.IngestRateLimit <= 0 {
		return fmt.Errorf("ingest-rate-limit must be positive")
	}
	return nil
}
