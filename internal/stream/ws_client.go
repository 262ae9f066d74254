package stream

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsCloseTimeout = time.Second
)

// WSClient writes stream frames as websocket text messages.
type WSClient struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	closed atomic.Bool
}

// NewWSClient wraps an upgraded connection.
func NewWSClient(conn *websocket.Conn) *WSClient {
	return &WSClient{conn: conn}
}

// Send writes payload as one text frame.
func (c *WSClient) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return errSubscriberClosed
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		if c.closed.CompareAndSwap(false, true) {
			_ = c.conn.Close()
		}
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// Close sends a normal-closure frame and closes the socket. It does not wait
// for an in-flight Send; gorilla allows WriteControl and Close concurrently
// with writers.
func (c *WSClient) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsCloseTimeout))
	_ = c.conn.Close()
}
