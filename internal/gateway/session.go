package gateway

import (
	"time"
)

// sessionState tracks the connection lifecycle.
type sessionState int

const (
	stateActive sessionState = iota
	stateClosing
	stateClosed
)

// session is one live client connection. Owned exclusively by the Registry;
// all mutation goes through registry operations under the registry lock.
type session struct {
	id         string
	subjectID  string
	tier       Tier
	limits     TierLimits
	conn       ClientConn
	state      sessionState
	subscribed map[string]struct{}
	lastAck    time.Time
	rate       *rateWindow
}

// rateWindow counts inbound messages over a sliding window.
type rateWindow struct {
	window time.Duration
	limit  int
	hits   []time.Time
}

func newRateWindow(limit int, window time.Duration) *rateWindow {
	return &rateWindow{window: window, limit: limit}
}

// allow records one inbound message and reports whether the session is still
// within its limit. Expired hits are pruned on every call.
func (r *rateWindow) allow(now time.Time) bool {
	if r.limit <= 0 {
		return true
	}

	cutoff := now.Add(-r.window)
	kept := r.hits[:0]
	for _, t := range r.hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	r.hits = append(kept, now)

	return len(r.hits) <= r.limit
}
