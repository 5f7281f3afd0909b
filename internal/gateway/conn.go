package gateway

import (
	"time"

	"github.com/gorilla/websocket"
)

// ClientConn abstracts one streaming client connection. The registry only
// needs to push JSON frames, probe liveness, and close with a code.
type ClientConn interface {
	WriteJSON(v interface{}) error
	Ping() error
	Close(code int, reason string) error
}

const writeWait = 10 * time.Second

// WSConn adapts a gorilla websocket connection to ClientConn.
// Writes are serialized by the registry, which holds the session lock.
type WSConn struct {
	conn *websocket.Conn
}

// NewWSConn wraps a websocket connection.
func NewWSConn(conn *websocket.Conn) *WSConn {
	return &WSConn{conn: conn}
}

// WriteJSON writes a JSON frame with a bounded deadline.
func (c *WSConn) WriteJSON(v interface{}) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

// Ping sends a websocket ping control frame.
func (c *WSConn) Ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Close sends a close frame with the given code and closes the connection.
func (c *WSConn) Close(code int, reason string) error {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	return c.conn.Close()
}

// Raw returns the underlying connection for read-loop wiring.
func (c *WSConn) Raw() *websocket.Conn {
	return c.conn
}
