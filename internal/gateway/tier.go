// Package gateway provides the connection registry for the streaming
// boundary: live client sessions, their tier-bounded subscriptions, heartbeat
// liveness, and per-session rate limits.
package gateway

import (
	"fmt"
	"strings"
	"time"
)

// Tier is the access level of a connection. It bounds how many channels a
// session may subscribe to, which channel classes it may use, and how many
// inbound messages it may send per window.
type Tier string

// The closed set of tiers. Unknown tier claims fall back to TierFree.
const (
	TierFree     Tier = "free"
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"
)

// TierLimits bounds a tier's resource usage. The specific numbers are product
// tuning values and therefore configuration inputs, not invariants.
type TierLimits struct {
	SubscriptionCap  int           // Maximum concurrent channel subscriptions
	InboundPerWindow int           // Maximum inbound messages per rate window
	RateWindow       time.Duration // Sliding rate-limit window
}

// DefaultTierLimits returns the default tier limit table.
func DefaultTierLimits() map[Tier]TierLimits {
	return map[Tier]TierLimits{
		TierFree:     {SubscriptionCap: 2, InboundPerWindow: 30, RateWindow: time.Minute},
		TierStandard: {SubscriptionCap: 8, InboundPerWindow: 120, RateWindow: time.Minute},
		TierPremium:  {SubscriptionCap: 32, InboundPerWindow: 600, RateWindow: time.Minute},
	}
}

// ParseTier maps a tier claim to a known tier, defaulting to free.
func ParseTier(s string) Tier {
	switch Tier(strings.ToLower(s)) {
	case TierStandard:
		return TierStandard
	case TierPremium:
		return TierPremium
	default:
		return TierFree
	}
}

// channelClass identifies which family a channel key belongs to.
type channelClass int

const (
	classUnknown channelClass = iota
	classSubjectMetrics      // metrics:<subject>
	classMetric              // metrics:<subject>:<metric>
	classAlerts              // alerts:<subject>
)

// classifyChannel parses a channel key and returns its class and subject.
func classifyChannel(channel string) (channelClass, string) {
	parts := strings.Split(channel, ":")
	switch {
	case len(parts) == 2 && parts[0] == "metrics" && parts[1] != "":
		return classSubjectMetrics, parts[1]
	case len(parts) == 3 && parts[0] == "metrics" && parts[1] != "" && parts[2] != "":
		return classMetric, parts[1]
	case len(parts) == 2 && parts[0] == "alerts" && parts[1] != "":
		return classAlerts, parts[1]
	default:
		return classUnknown, ""
	}
}

// channelPermitted reports whether a session owned by subjectID on the given
// tier may subscribe to the channel. Sessions only ever see their own
// subject's channels; tiers gate channel classes on top of that.
func channelPermitted(tier Tier, subjectID, channel string) error {
	class, owner := classifyChannel(channel)
	if class == classUnknown {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}
	if owner != subjectID {
		return fmt.Errorf("%w: %q belongs to another subject", ErrChannelNotAllowed, channel)
	}

	switch class {
	case classSubjectMetrics:
		return nil // Every tier may follow its own subject feed
	case classMetric:
		if tier == TierFree {
			return fmt.Errorf("%w: per-metric channels require standard tier", ErrChannelNotAllowed)
		}
		return nil
	case classAlerts:
		if tier != TierPremium {
			return fmt.Errorf("%w: alert channels require premium tier", ErrChannelNotAllowed)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}
}
