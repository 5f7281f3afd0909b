// Package storage provides the time-series store boundary. The pipeline only
// relies on two operations: an idempotent batch write and a windowed
// aggregate query; schema design beyond that is the storage engine's concern.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/pulsefeed/pulsefeed/internal/event"
)

// ErrNoData is returned by aggregate queries when the window contains no rows.
var ErrNoData = errors.New("no data in window")

// Store wraps a database connection and provides metric persistence.
type Store struct {
	conn *sql.DB
}

// NewStore opens a connection to the storage engine using the provided DSN.
func NewStore(dsn string) (*Store, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Successfully connected to PostgreSQL database")

	return &Store{conn: conn}, nil
}

// NewStoreWithConn wraps an existing connection. Used by tests.
func NewStoreWithConn(conn *sql.DB) *Store {
	return &Store{conn: conn}
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.conn != nil {
		slog.Info("Closing database connection")
		return s.conn.Close()
	}
	return nil
}

// Ping reports storage reachability, used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

// marshalMetadata serializes event metadata for JSONB storage.
// Nil or empty metadata becomes NULL in the database.
func marshalMetadata(metadata map[string]string) (sql.NullString, error) {
	var metadataJSON sql.NullString
	if len(metadata) > 0 {
		jsonBytes, err := json.Marshal(metadata)
		if err != nil {
			return sql.NullString{}, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadataJSON = sql.NullString{
			String: string(jsonBytes),
			Valid:  true,
		}
	}
	return metadataJSON, nil
}

// WriteBatch writes a batch of metric events in a single multi-row insert.
// The insert dedupes on the natural key (subject_id, metric_type, ts) with
// ON CONFLICT DO NOTHING, so retried or duplicated deliveries never
// double-count. Returns the number of rows actually written.
func (s *Store) WriteBatch(ctx context.Context, events []event.MetricEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	placeholders := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*5)
	for i, ev := range events {
		base := i * 5
		placeholders = append(placeholders, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5))

		metadataJSON, err := marshalMetadata(ev.Metadata)
		if err != nil {
			return 0, err
		}
		args = append(args, ev.SubjectID, ev.MetricType, ev.Value, ev.Timestamp.UTC(), metadataJSON)
	}

	query := `
		INSERT INTO metric_events (subject_id, metric_type, value, ts, metadata)
		VALUES ` + strings.Join(placeholders, ", ") + `
		ON CONFLICT (subject_id, metric_type, ts) DO NOTHING
	`

	result, err := s.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to write metric batch: %w", err)
	}

	written, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}

	if int(written) < len(events) {
		slog.Debug("Batch contained duplicate events, deduplicated on write",
			"batch_size", len(events),
			"written", written,
		)
	}

	return int(written), nil
}

// QueryAggregate returns the average value of a metric for a subject over the
// trailing window. Returns ErrNoData when the window is empty.
func (s *Store) QueryAggregate(ctx context.Context, subjectID, metricType string, window time.Duration) (float64, error) {
	query := `
		SELECT AVG(value)
		FROM metric_events
		WHERE subject_id = $1 AND metric_type = $2 AND ts > NOW() - $3::interval
	`

	var avg sql.NullFloat64
	err := s.conn.QueryRowContext(ctx, query, subjectID, metricType, window.String()).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("failed to query aggregate: %w", err)
	}
	if !avg.Valid {
		return 0, fmt.Errorf("%w: subject=%s metric=%s window=%s", ErrNoData, subjectID, metricType, window)
	}

	return avg.Float64, nil
}

// QueryRange returns the events for a subject/metric within the trailing
// window, newest first.
func (s *Store) QueryRange(ctx context.Context, subjectID, metricType string, window time.Duration) ([]event.MetricEvent, error) {
	query := `
		SELECT subject_id, metric_type, value, ts, metadata
		FROM metric_events
		WHERE subject_id = $1 AND metric_type = $2 AND ts > NOW() - $3::interval
		ORDER BY ts DESC
	`

	rows, err := s.conn.QueryContext(ctx, query, subjectID, metricType, window.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query metric range: %w", err)
	}
	defer rows.Close()

	var events []event.MetricEvent
	for rows.Next() {
		var ev event.MetricEvent
		var metadataJSON sql.NullString
		if err := rows.Scan(&ev.SubjectID, &ev.MetricType, &ev.Value, &ev.Timestamp, &metadataJSON); err != nil {
			return nil, fmt.Errorf("failed to scan metric row: %w", err)
		}
		if metadataJSON.Valid {
			if err := json.Unmarshal([]byte(metadataJSON.String), &ev.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate metric rows: %w", err)
	}

	return events, nil
}
