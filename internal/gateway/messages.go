package gateway

// Close codes sent when the registry terminates a connection. Each cause has
// a distinct code so clients can apply different reconnect strategies.
const (
	CloseAuthFailure      = 4001
	CloseHeartbeatTimeout = 4002
	CloseServerShutdown   = 4003
	CloseRateLimited      = 4008
)

// Client-to-server message types.
const (
	MessageSubscribe   = "subscribe"
	MessageUnsubscribe = "unsubscribe"
	MessagePing        = "ping"
)

// Server-to-client message types.
const (
	MessageSubscriptionConfirmed = "subscription_confirmed"
	MessageError                 = "error"
	MessageMetricsUpdate         = "metrics_update"
	MessageAlertTriggered        = "alert_triggered"
	MessageAlertResolved         = "alert_resolved"
	MessagePong                  = "pong"
)

// ClientMessage is the inbound wire shape.
type ClientMessage struct {
	Type      string   `json:"type"`
	Channels  []string `json:"channels,omitempty"`
	Timestamp int64    `json:"timestamp,omitempty"` // epoch millis, echoed on pong
}

// ServerMessage is the outbound wire shape. Fields are populated per type.
type ServerMessage struct {
	Type      string      `json:"type"`
	Channel   string      `json:"channel,omitempty"`
	Channels  []string    `json:"channels,omitempty"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp,omitempty"`
}
