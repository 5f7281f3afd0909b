package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pulsefeed/pulsefeed/internal/auth"
	"github.com/pulsefeed/pulsefeed/internal/event"
)

var (
	// ErrUnknownSession is returned for operations on a closed or unknown session.
	ErrUnknownSession = errors.New("unknown session")
	// ErrUnknownChannel is returned for channel keys that parse to no known class.
	ErrUnknownChannel = errors.New("unknown channel")
	// ErrChannelNotAllowed is returned when a tier does not permit a channel.
	ErrChannelNotAllowed = errors.New("channel not allowed")
	// ErrTierCapExceeded is returned when a subscribe would exceed the tier cap.
	ErrTierCapExceeded = errors.New("subscription cap exceeded")
)

// Config holds registry tuning parameters.
type Config struct {
	HeartbeatInterval time.Duration
	MissedProbeLimit  int // Probes a session may miss before termination
	TierLimits        map[Tier]TierLimits
}

// DefaultConfig returns the default registry configuration.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 30 * time.Second,
		MissedProbeLimit:  2,
		TierLimits:        DefaultTierLimits(),
	}
}

// Registry owns the set of live client sessions and their subscriptions.
// No other component reads or writes connection state directly.
type Registry struct {
	cfg Config
	now func() time.Time

	mu        sync.RWMutex
	sessions  map[string]*session
	byChannel map[string]map[string]*session // channel -> session id -> session

	// Serializes outbound frames per connection across the publish,
	// heartbeat, and inbound-response paths.
	sendMu sync.Map // session id -> *sync.Mutex
}

// NewRegistry creates a connection registry.
func NewRegistry(cfg Config) *Registry {
	if cfg.TierLimits == nil {
		cfg.TierLimits = DefaultTierLimits()
	}
	if cfg.MissedProbeLimit <= 0 {
		cfg.MissedProbeLimit = 2
	}
	return &Registry{
		cfg:       cfg,
		now:       time.Now,
		sessions:  make(map[string]*session),
		byChannel: make(map[string]map[string]*session),
	}
}

// Connect registers an authenticated connection and returns its session ID.
// Credential verification happens before this call; a connection that never
// authenticates never reaches the registry.
func (r *Registry) Connect(conn ClientConn, claims *auth.Claims) (string, error) {
	if claims == nil || claims.SubjectID == "" {
		return "", fmt.Errorf("claims with subject_id are required")
	}

	tier := ParseTier(claims.Tier)
	limits, ok := r.cfg.TierLimits[tier]
	if !ok {
		limits = r.cfg.TierLimits[TierFree]
	}

	s := &session{
		id:         uuid.NewString(),
		subjectID:  claims.SubjectID,
		tier:       tier,
		limits:     limits,
		conn:       conn,
		state:      stateActive,
		subscribed: make(map[string]struct{}),
		lastAck:    r.now(),
		rate:       newRateWindow(limits.InboundPerWindow, limits.RateWindow),
	}

	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()

	slog.Info("Session connected",
		"session_id", s.id,
		"subject_id", s.subjectID,
		"tier", s.tier,
	)

	return s.id, nil
}

// Subscribe adds channels to a session. All-or-nothing: if any channel is not
// permitted or the post-subscribe set would exceed the tier cap, no channel is
// added and the subscribed set is unchanged. Re-subscribing to an
// already-subscribed channel is a no-op success.
func (r *Registry) Subscribe(sessionID string, channels []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok || s.state != stateActive {
		return fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}

	// Collect only genuinely new channels; duplicates are no-ops.
	newChannels := make([]string, 0, len(channels))
	seen := make(map[string]struct{}, len(channels))
	for _, ch := range channels {
		if _, dup := seen[ch]; dup {
			continue
		}
		seen[ch] = struct{}{}
		if _, already := s.subscribed[ch]; already {
			continue
		}
		if err := channelPermitted(s.tier, s.subjectID, ch); err != nil {
			return err
		}
		newChannels = append(newChannels, ch)
	}

	if len(s.subscribed)+len(newChannels) > s.limits.SubscriptionCap {
		return fmt.Errorf("%w: tier %s allows %d channels",
			ErrTierCapExceeded, s.tier, s.limits.SubscriptionCap)
	}

	for _, ch := range newChannels {
		s.subscribed[ch] = struct{}{}
		if r.byChannel[ch] == nil {
			r.byChannel[ch] = make(map[string]*session)
		}
		r.byChannel[ch][s.id] = s
	}

	slog.Debug("Session subscribed",
		"session_id", s.id,
		"subject_id", s.subjectID,
		"channels", newChannels,
	)

	return nil
}

// Unsubscribe removes channels from a session. Idempotent, always succeeds
// for a live session.
func (r *Registry) Unsubscribe(sessionID string, channels []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}

	for _, ch := range channels {
		delete(s.subscribed, ch)
		r.dropFromChannelLocked(ch, s.id)
	}
}

// SubscribedChannels returns the session's current subscriptions.
func (r *Registry) SubscribedChannels(sessionID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}
	channels := make([]string, 0, len(s.subscribed))
	for ch := range s.subscribed {
		channels = append(channels, ch)
	}
	return channels
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Publish delivers a message to every session subscribed to the channel.
// Delivery is best-effort: a send failure terminates only the failing session
// and does not affect delivery to others.
func (r *Registry) Publish(channel string, msg ServerMessage) {
	r.mu.RLock()
	subscribers := make([]*session, 0, len(r.byChannel[channel]))
	for _, s := range r.byChannel[channel] {
		subscribers = append(subscribers, s)
	}
	r.mu.RUnlock()

	for _, s := range subscribers {
		if err := r.send(s, msg); err != nil {
			slog.Warn("Send failed, terminating session",
				"session_id", s.id,
				"subject_id", s.subjectID,
				"channel", channel,
				"error", err,
			)
			r.terminate(s.id, CloseHeartbeatTimeout, "send failed")
		}
	}
}

// OnMetricUpdate implements bus.Sink: each persisted event is pushed to the
// subject feed and the per-metric channel.
func (r *Registry) OnMetricUpdate(ev event.MetricEvent) {
	for _, channel := range []string{
		event.SubjectChannel(ev.SubjectID),
		event.MetricChannel(ev.SubjectID, ev.MetricType),
	} {
		r.Publish(channel, ServerMessage{
			Type:    MessageMetricsUpdate,
			Channel: channel,
			Data:    ev,
		})
	}
}

// HandleInbound processes one client message. Every inbound frame counts
// against the session's rate window and refreshes its liveness.
func (r *Registry) HandleInbound(sessionID string, raw []byte) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if !ok || s.state != stateActive {
		r.mu.Unlock()
		return
	}

	now := r.now()
	s.lastAck = now
	if !s.rate.allow(now) {
		r.mu.Unlock()
		slog.Warn("Session exceeded rate limit, terminating",
			"session_id", s.id,
			"subject_id", s.subjectID,
			"limit", s.limits.InboundPerWindow,
			"window", s.limits.RateWindow,
		)
		r.terminate(sessionID, CloseRateLimited, "rate limit exceeded")
		return
	}
	r.mu.Unlock()

	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		r.sendError(s, "malformed message")
		return
	}

	switch msg.Type {
	case MessageSubscribe:
		if err := r.Subscribe(sessionID, msg.Channels); err != nil {
			r.sendError(s, err.Error())
			return
		}
		r.confirmSubscriptions(s, sessionID)
	case MessageUnsubscribe:
		r.Unsubscribe(sessionID, msg.Channels)
		r.confirmSubscriptions(s, sessionID)
	case MessagePing:
		if err := r.send(s, ServerMessage{Type: MessagePong, Timestamp: msg.Timestamp}); err != nil {
			r.terminate(sessionID, CloseHeartbeatTimeout, "send failed")
		}
	default:
		r.sendError(s, fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

// Pong refreshes session liveness from a websocket pong control frame.
func (r *Registry) Pong(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[sessionID]; ok {
		s.lastAck = r.now()
	}
}

// Disconnect releases a session after a client-initiated close. No close
// frame is sent; the peer is already gone.
func (r *Registry) Disconnect(sessionID string) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return
	}
	r.removeLocked(s)
	r.mu.Unlock()

	slog.Info("Session disconnected",
		"session_id", s.id,
		"subject_id", s.subjectID,
	)
}

// RunHeartbeat probes every session at the configured interval and terminates
// sessions that miss too many probes. This bounds the cost of half-open
// sockets.
func (r *Registry) RunHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweepHeartbeats()
		}
	}
}

// sweepHeartbeats runs one probe round.
func (r *Registry) sweepHeartbeats() {
	timeout := time.Duration(r.cfg.MissedProbeLimit) * r.cfg.HeartbeatInterval

	r.mu.RLock()
	stale := make([]*session, 0)
	live := make([]*session, 0, len(r.sessions))
	now := r.now()
	for _, s := range r.sessions {
		if now.Sub(s.lastAck) > timeout {
			stale = append(stale, s)
		} else {
			live = append(live, s)
		}
	}
	r.mu.RUnlock()

	for _, s := range stale {
		slog.Warn("Session missed heartbeat probes, terminating",
			"session_id", s.id,
			"subject_id", s.subjectID,
			"last_ack", s.lastAck,
		)
		r.terminate(s.id, CloseHeartbeatTimeout, "heartbeat timeout")
	}

	for _, s := range live {
		if err := s.conn.Ping(); err != nil {
			slog.Warn("Heartbeat probe failed, terminating session",
				"session_id", s.id,
				"subject_id", s.subjectID,
				"error", err,
			)
			r.terminate(s.id, CloseHeartbeatTimeout, "heartbeat probe failed")
		}
	}
}

// Shutdown closes every session with the server-shutdown code so clients can
// reconnect rather than treat the close as an error.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	all := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.Unlock()

	for _, s := range all {
		r.terminate(s.id, CloseServerShutdown, "server shutting down")
	}

	slog.Info("All sessions closed for shutdown", "count", len(all))
}

// terminate forcibly closes one session and releases all its state
// (subscriptions, rate window, metadata) atomically.
func (r *Registry) terminate(sessionID string, code int, reason string) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return
	}
	s.state = stateClosing
	r.removeLocked(s)
	r.mu.Unlock()

	if err := s.conn.Close(code, reason); err != nil {
		slog.Debug("Error closing connection",
			"session_id", s.id,
			"error", err,
		)
	}

	slog.Info("Session terminated",
		"session_id", s.id,
		"subject_id", s.subjectID,
		"close_code", code,
		"reason", reason,
	)
}

// removeLocked drops a session from all registry maps. Caller holds the lock.
func (r *Registry) removeLocked(s *session) {
	for ch := range s.subscribed {
		r.dropFromChannelLocked(ch, s.id)
	}
	s.subscribed = nil
	s.state = stateClosed
	delete(r.sessions, s.id)
	r.sendMu.Delete(s.id)
}

// dropFromChannelLocked removes a session from a channel index entry.
func (r *Registry) dropFromChannelLocked(channel, sessionID string) {
	subs, ok := r.byChannel[channel]
	if !ok {
		return
	}
	delete(subs, sessionID)
	if len(subs) == 0 {
		delete(r.byChannel, channel)
	}
}

// send writes one frame to a session, serialized per connection.
func (r *Registry) send(s *session, msg ServerMessage) error {
	muIface, _ := r.sendMu.LoadOrStore(s.id, &sync.Mutex{})
	mu := muIface.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()
	return s.conn.WriteJSON(msg)
}

// sendError reports a per-request failure over the open connection.
// The connection stays open; only delivery failures terminate it.
func (r *Registry) sendError(s *session, message string) {
	if err := r.send(s, ServerMessage{Type: MessageError, Message: message}); err != nil {
		r.terminate(s.id, CloseHeartbeatTimeout, "send failed")
	}
}

// confirmSubscriptions acknowledges the current subscription set.
func (r *Registry) confirmSubscriptions(s *session, sessionID string) {
	channels := r.SubscribedChannels(sessionID)
	if channels == nil {
		channels = []string{}
	}
	if err := r.send(s, ServerMessage{Type: MessageSubscriptionConfirmed, Channels: channels}); err != nil {
		r.terminate(sessionID, CloseHeartbeatTimeout, "send failed")
	}
}
