// Package router provides the HTTP surface of the pipeline: event ingestion,
// the websocket upgrade endpoint, and operational metrics.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pulsefeed/pulsefeed/internal/auth"
	"github.com/pulsefeed/pulsefeed/internal/event"
	"github.com/pulsefeed/pulsefeed/internal/gateway"
	"github.com/pulsefeed/pulsefeed/internal/queue"
	"github.com/pulsefeed/pulsefeed/pkg/metrics"
)

const maxIngestBody = 1 << 20 // 1 MB

// Enqueuer pushes validated events onto the durable queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, ev *event.MetricEvent) error
}

// SessionRegistry is the slice of the gateway the HTTP layer needs.
type SessionRegistry interface {
	Connect(conn gateway.ClientConn, claims *auth.Claims) (string, error)
	HandleInbound(sessionID string, raw []byte)
	Pong(sessionID string)
	Disconnect(sessionID string)
}

// Handlers wraps dependencies for HTTP handlers.
type Handlers struct {
	enqueuer  Enqueuer
	limiter   RateLimiter
	verifier  auth.Verifier
	registry  SessionRegistry
	reader    *metrics.Reader
	collector *metrics.Collector
	upgrader  websocket.Upgrader
}

// NewHandlers creates a new handlers instance.
func NewHandlers(enqueuer Enqueuer, limiter RateLimiter, verifier auth.Verifier, registry SessionRegistry, reader *metrics.Reader, collector *metrics.Collector) *Handlers {
	return &Handlers{
		enqueuer:  enqueuer,
		limiter:   limiter,
		verifier:  verifier,
		registry:  registry,
		reader:    reader,
		collector: collector,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// IngestEvent accepts one metric event and enqueues it.
// POST /ingest/event
func (h *Handlers) IngestEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var ev event.MetricEvent
	body := http.MaxBytesReader(w, r.Body, maxIngestBody)
	if err := json.NewDecoder(body).Decode(&ev); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if err := ev.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if !h.limiter.Allow(ctx, ev.SubjectID) {
		http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	if err := h.enqueuer.Enqueue(ctx, &ev); err != nil {
		if errors.Is(err, queue.ErrQueueFull) {
			slog.Warn("Event queue full, rejecting ingest",
				"subject_id", ev.SubjectID,
				"metric_type", ev.MetricType,
			)
			http.Error(w, "Queue full, retry later", http.StatusTooManyRequests)
			return
		}
		slog.Error("Failed to enqueue event",
			"subject_id", ev.SubjectID,
			"metric_type", ev.MetricType,
			"error", err,
		)
		http.Error(w, "Failed to enqueue event", http.StatusInternalServerError)
		return
	}

	if h.collector != nil {
		h.collector.RecordIngested()
	}
	w.WriteHeader(http.StatusAccepted)
}

// ServeWS authenticates and upgrades a streaming connection.
// GET /ws
func (h *Handlers) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Websocket upgrade failed", "error", err)
		return
	}
	ws := gateway.NewWSConn(conn)

	claims, err := h.verifier.Verify(r.Context(), token)
	if err != nil {
		slog.Warn("Websocket authentication failed", "error", err)
		_ = ws.Close(gateway.CloseAuthFailure, "authentication failed")
		return
	}

	sessionID, err := h.registry.Connect(ws, claims)
	if err != nil {
		slog.Error("Failed to register session", "subject_id", claims.SubjectID, "error", err)
		_ = ws.Close(gateway.CloseAuthFailure, "session rejected")
		return
	}

	go h.readLoop(sessionID, conn)
}

// readLoop pumps inbound frames into the registry until the peer goes away.
func (h *Handlers) readLoop(sessionID string, conn *websocket.Conn) {
	conn.SetPongHandler(func(string) error {
		h.registry.Pong(sessionID)
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			h.registry.Disconnect(sessionID)
			return
		}
		h.registry.HandleInbound(sessionID, raw)
	}
}

// ServiceMetrics returns operational metrics for this process from Redis.
// GET /api/v1/service/metrics
func (h *Handlers) ServiceMetrics(w http.ResponseWriter, r *http.Request) {
	if h.reader == nil {
		http.Error(w, "Metrics reader not available", http.StatusInternalServerError)
		return
	}

	snapshot, err := h.reader.GetSnapshot(r.Context(), metrics.ProcessName)
	if err != nil {
		slog.Error("Failed to get service metrics", "error", err)
		http.Error(w, "Failed to retrieve service metrics", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snapshot); err != nil {
		slog.Error("Failed to encode metrics response", "error", err)
	}
}

// bearerToken extracts the credential from the Authorization header or the
// token query parameter. Browser websocket clients cannot set headers, so the
// query parameter form is accepted too.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
