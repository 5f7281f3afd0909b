// Package metrics provides operational metrics collection and reporting for
// the pipeline. Counters are written to Redis periodically so an operator (or
// the HTTP API) can read a live snapshot of the process.
package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// ProcessName identifies this process in Redis metrics keys.
	ProcessName = "pulsefeed"
	// KeyPrefix is the Redis key prefix for process metrics.
	KeyPrefix = "pulsefeed:metrics:"
	// TTL is how long a metrics snapshot stays in Redis if not refreshed.
	TTL = 2 * time.Minute
	// DefaultReportInterval is the default interval for writing metrics to Redis.
	DefaultReportInterval = 30 * time.Second
)

// Snapshot holds a point-in-time view of pipeline metrics.
type Snapshot struct {
	Process     string    `json:"process"`
	StartedAt   time.Time `json:"started_at"`
	LastUpdated time.Time `json:"last_updated"`
	Status      string    `json:"status"` // "healthy" or "unhealthy"

	// Counters (monotonically increasing since start)
	EventsIngested   uint64 `json:"events_ingested"`
	EventsPersisted  uint64 `json:"events_persisted"`
	EventsPublished  uint64 `json:"events_published"`
	ProcessingErrors uint64 `json:"processing_errors"`

	// Rate over the last report interval
	EventsPerSecond float64 `json:"events_per_second"`

	// All-time average flush latency in nanoseconds
	AvgFlushLatencyNs float64 `json:"avg_flush_latency_ns"`

	// Component-specific counters (flexible map)
	CustomCounters map[string]uint64 `json:"custom_counters,omitempty"`
}

// Collector collects and reports metrics for the pipeline process.
type Collector struct {
	process        string
	redis          *redis.Client
	startedAt      time.Time
	reportInterval time.Duration

	eventsIngested   atomic.Uint64
	eventsPersisted  atomic.Uint64
	eventsPublished  atomic.Uint64
	processingErrors atomic.Uint64

	lastReportTime     time.Time
	lastPersistedCount uint64

	totalLatencyNs atomic.Uint64
	latencyCount   atomic.Uint64

	customMu       sync.RWMutex
	customCounters map[string]*atomic.Uint64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewCollector creates a new metrics collector. The Redis client may be nil,
// in which case snapshots are kept in memory only.
func NewCollector(process string, redisClient *redis.Client) *Collector {
	return &Collector{
		process:        process,
		redis:          redisClient,
		startedAt:      time.Now().UTC(),
		reportInterval: DefaultReportInterval,
		lastReportTime: time.Now().UTC(),
		customCounters: make(map[string]*atomic.Uint64),
		stopCh:         make(chan struct{}),
	}
}

// SetReportInterval sets the interval for writing metrics to Redis.
func (c *Collector) SetReportInterval(interval time.Duration) {
	c.reportInterval = interval
}

// Start begins the periodic metrics reporting to Redis.
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.reportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				c.writeSnapshot(context.Background()) // Final write
				return
			case <-c.stopCh:
				c.writeSnapshot(context.Background()) // Final write
				return
			case <-ticker.C:
				c.writeSnapshot(ctx)
			}
		}
	}()
}

// Stop stops the metrics reporting.
func (c *Collector) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

// RecordIngested increments the ingested events counter.
func (c *Collector) RecordIngested() {
	c.eventsIngested.Add(1)
}

// RecordPersisted adds to the persisted events counter and tracks flush latency.
func (c *Collector) RecordPersisted(count int, latency time.Duration) {
	c.eventsPersisted.Add(uint64(count))
	c.totalLatencyNs.Add(uint64(latency.Nanoseconds()))
	c.latencyCount.Add(1)
}

// RecordPublished increments the published events counter.
func (c *Collector) RecordPublished() {
	c.eventsPublished.Add(1)
}

// RecordError increments the processing errors counter.
func (c *Collector) RecordError() {
	c.processingErrors.Add(1)
}

// IncrementCustom increments a named component counter.
func (c *Collector) IncrementCustom(name string) {
	c.AddCustom(name, 1)
}

// AddCustom adds a value to a named component counter.
func (c *Collector) AddCustom(name string, value uint64) {
	c.customMu.RLock()
	counter, exists := c.customCounters[name]
	c.customMu.RUnlock()

	if !exists {
		c.customMu.Lock()
		// Double-check after acquiring write lock
		if counter, exists = c.customCounters[name]; !exists {
			counter = &atomic.Uint64{}
			c.customCounters[name] = counter
		}
		c.customMu.Unlock()
	}
	counter.Add(value)
}

// GetSnapshot returns current metrics without writing to Redis.
func (c *Collector) GetSnapshot() *Snapshot {
	now := time.Now().UTC()
	persisted := c.eventsPersisted.Load()

	elapsed := now.Sub(c.lastReportTime).Seconds()
	var rate float64
	if elapsed > 0 {
		rate = float64(persisted-c.lastPersistedCount) / elapsed
	}

	var avgLatencyNs float64
	latencyCount := c.latencyCount.Load()
	if latencyCount > 0 {
		avgLatencyNs = float64(c.totalLatencyNs.Load()) / float64(latencyCount)
	}

	c.customMu.RLock()
	customCounters := make(map[string]uint64, len(c.customCounters))
	for name, counter := range c.customCounters {
		customCounters[name] = counter.Load()
	}
	c.customMu.RUnlock()

	return &Snapshot{
		Process:           c.process,
		StartedAt:         c.startedAt,
		LastUpdated:       now,
		Status:            "healthy",
		EventsIngested:    c.eventsIngested.Load(),
		EventsPersisted:   persisted,
		EventsPublished:   c.eventsPublished.Load(),
		ProcessingErrors:  c.processingErrors.Load(),
		EventsPerSecond:   rate,
		AvgFlushLatencyNs: avgLatencyNs,
		CustomCounters:    customCounters,
	}
}

// writeSnapshot writes current metrics to Redis.
func (c *Collector) writeSnapshot(ctx context.Context) {
	if c.redis == nil {
		return
	}

	snapshot := c.GetSnapshot()

	c.lastReportTime = snapshot.LastUpdated
	c.lastPersistedCount = snapshot.EventsPersisted

	data, err := json.Marshal(snapshot)
	if err != nil {
		slog.Error("Failed to marshal metrics", "process", c.process, "error", err)
		return
	}

	key := KeyPrefix + c.process
	if err := c.redis.Set(ctx, key, data, TTL).Err(); err != nil {
		slog.Error("Failed to write metrics to Redis", "process", c.process, "error", err)
		return
	}

	slog.Debug("Metrics written to Redis", "process", c.process, "key", key)
}

// Reader reads metrics snapshots from Redis.
type Reader struct {
	redis *redis.Client
}

// NewReader creates a new metrics reader.
func NewReader(redisClient *redis.Client) *Reader {
	return &Reader{redis: redisClient}
}

// GetSnapshot retrieves the metrics snapshot for a process.
func (r *Reader) GetSnapshot(ctx context.Context, process string) (*Snapshot, error) {
	key := KeyPrefix + process
	data, err := r.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("no metrics found for process: %s", process)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read metrics: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
	}

	// Stale snapshots mean the reporter stopped refreshing
	if time.Since(snapshot.LastUpdated) > TTL {
		snapshot.Status = "unhealthy"
	}

	return &snapshot, nil
}
