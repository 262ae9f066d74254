package stream

import (
	"context"
	"sync"
	"time"

	"github.com/splax/livelog/internal/domain"
)

// Subscriber abstracts a streaming transport (SSE response, websocket).
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Connection is a registered subscriber. Frames are queued by the hub and
// written by the single goroutine running serve, which also owns the ping
// ticker.
type Connection struct {
	id          uint64
	remoteAddr  string
	scope       string
	connectedAt time.Time
	sub         Subscriber
	queue       chan []byte
	done        chan struct{}
	closeOnce   sync.Once
}

func newConnection(sub Subscriber, remoteAddr, scope string, queueSize int, now time.Time) *Connection {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Connection{
		remoteAddr:  remoteAddr,
		scope:       scope,
		connectedAt: now,
		sub:         sub,
		queue:       make(chan []byte, queueSize),
		done:        make(chan struct{}),
	}
}

// ID returns the registry-assigned identifier.
func (c *Connection) ID() uint64 { return c.id }

// RemoteAddr returns the address the connection was opened from.
func (c *Connection) RemoteAddr() string { return c.remoteAddr }

// Scope returns the session token the connection is restricted to, if any.
func (c *Connection) Scope() string { return c.scope }

// ConnectedAt returns when the connection was admitted.
func (c *Connection) ConnectedAt() time.Time { return c.connectedAt }

// accepts reports whether an event tagged with sessionToken is visible here.
// Unscoped connections see everything.
func (c *Connection) accepts(sessionToken string) bool {
	return c.scope == "" || c.scope == sessionToken
}

// enqueue never blocks. A false result means the connection is closed or its
// queue is full, and the caller must treat it as a failed write.
func (c *Connection) enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.queue <- payload:
		return true
	default:
		return false
	}
}

func (c *Connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.sub.Close()
	})
}

// serve writes queued frames and pings until ctx ends, the connection is
// closed, or a write fails.
func (c *Connection) serve(ctx context.Context, pingInterval time.Duration, ping []byte) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		case payload := <-c.queue:
			if err := c.sub.Send(payload); err != nil {
				return &domain.TransportWriteError{ConnectionID: c.id, Err: err}
			}
		case <-ticker.C:
			if err := c.sub.Send(ping); err != nil {
				return &domain.TransportWriteError{ConnectionID: c.id, Err: err}
			}
		}
	}
}
