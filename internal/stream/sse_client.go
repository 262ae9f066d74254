package stream

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// errSubscriberClosed is returned by Send after Close or a failed write.
var errSubscriberClosed = errors.New("subscriber closed")

var (
	sseDataPrefix = []byte("data: ")
	sseFrameEnd   = []byte("\n\n")
)

// SSEClient writes stream frames as Server-Sent Events. Each frame is a
// single "data:" line followed by a blank line and is flushed immediately.
type SSEClient struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
	buf     []byte
	closed  bool
	sent    uint64
}

// NewSSEClient wraps a response writer that has already sent its headers.
func NewSSEClient(w io.Writer, flusher http.Flusher) *SSEClient {
	return &SSEClient{w: w, flusher: flusher}
}

// Send writes payload as one event.
func (c *SSEClient) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errSubscriberClosed
	}
	c.buf = append(c.buf[:0], sseDataPrefix...)
	c.buf = append(c.buf, payload...)
	c.buf = append(c.buf, sseFrameEnd...)
	if _, err := c.w.Write(c.buf); err != nil {
		c.closed = true
		return fmt.Errorf("sse write: %w", err)
	}
	if c.flusher != nil {
		c.flusher.Flush()
	}
	c.sent++
	return nil
}

// Sent returns the number of frames written.
func (c *SSEClient) Sent() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent
}

// Close stops further writes. The handler owning the response ends the
// HTTP exchange.
func (c *SSEClient) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}
