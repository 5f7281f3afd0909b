package gateway

import (
	"encoding/json"
	"sync"
)

// FakeConn is an in-memory ClientConn that records everything written to it.
type FakeConn struct {
	mu       sync.Mutex
	Messages []ServerMessage
	Pings    int
	Closed   bool
	CloseCode   int
	CloseReason string

	WriteErr error
	PingErr  error
}

func NewFakeConn() *FakeConn {
	return &FakeConn{}
}

func (c *FakeConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.WriteErr != nil {
		return c.WriteErr
	}
	// Round-trip through JSON so recorded messages match the wire shape.
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var msg ServerMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return err
	}
	c.Messages = append(c.Messages, msg)
	return nil
}

func (c *FakeConn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.PingErr != nil {
		return c.PingErr
	}
	c.Pings++
	return nil
}

func (c *FakeConn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
	c.CloseCode = code
	c.CloseReason = reason
	return nil
}

// Sent returns a copy of the recorded messages.
func (c *FakeConn) Sent() []ServerMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ServerMessage, len(c.Messages))
	copy(out, c.Messages)
	return out
}

// SentOfType filters recorded messages by type.
func (c *FakeConn) SentOfType(msgType string) []ServerMessage {
	var out []ServerMessage
	for _, m := range c.Sent() {
		if m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}
