package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/splax/livelog/internal/domain"
)

const (
	defaultPingInterval  = 30 * time.Second
	defaultMaxPerAddress = 3
	defaultQueueSize     = 256
)

// ErrHubClosed is returned when subscribing to a hub that has shut down.
var ErrHubClosed = errors.New("stream hub closed")

// Options tunes hub behaviour. Zero values select the defaults.
type Options struct {
	PingInterval  time.Duration
	MaxPerAddress int
	QueueSize     int
}

// Stats is a point-in-time view of hub activity.
type Stats struct {
	Clients  int
	Buffered int
	Evicted  uint64
	Reaped   uint64
}

// Hub fans error events out to registered connections. Events reported while
// nobody is connected go to the offline buffer and are replayed once, to the
// next subscriber whose scope admits them.
type Hub struct {
	mu       sync.Mutex
	registry *Registry
	buffer   *OfflineBuffer
	logger   *slog.Logger
	opts     Options
	ping     []byte
	now      func() time.Time
	closed   bool

	evicted atomic.Uint64
	reaped  atomic.Uint64
}

// NewHub wires a hub around the given registry and offline buffer.
func NewHub(registry *Registry, buffer *OfflineBuffer, logger *slog.Logger, opts Options) *Hub {
	if registry == nil {
		registry = NewRegistry()
	}
	if buffer == nil {
		buffer = NewOfflineBuffer(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}
	if opts.MaxPerAddress == 0 {
		opts.MaxPerAddress = defaultMaxPerAddress
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	ping, _ := Encode(PingMessage{})
	return &Hub{
		registry: registry,
		buffer:   buffer,
		logger:   logger.With("component", "stream_hub"),
		opts:     opts,
		ping:     ping,
		now:      time.Now,
	}
}

// Subscribe admits sub and streams to it until ctx is cancelled, the
// connection is evicted, or a write fails. The connection is always removed
// from the registry before Subscribe returns.
func (h *Hub) Subscribe(ctx context.Context, sub Subscriber, remoteAddr, scope string) error {
	conn, err := h.admit(sub, remoteAddr, scope)
	if err != nil {
		return err
	}
	err = conn.serve(ctx, h.opts.PingInterval, h.ping)
	if err != nil {
		h.reaped.Add(1)
		h.logger.Warn("subscriber reaped", "connection_id", conn.id, "remote_addr", conn.remoteAddr, "error", err)
	}
	h.release(conn)
	return err
}

// Broadcast delivers event to every connection whose scope accepts it, or
// buffers it when nobody is connected.
func (h *Hub) Broadcast(event domain.ErrorEvent) {
	payload, err := Encode(ErrorMessage{Error: event})
	if err != nil {
		h.logger.Error("encode error message failed", "error", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	if h.registry.Len() == 0 {
		h.buffer.Push(event)
		return
	}
	h.fanoutLocked(payload, func(c *Connection) bool { return c.accepts(event.SessionToken) })
}

// AnnounceClientCount pushes the current subscriber count to everyone.
func (h *Hub) AnnounceClientCount() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.announceLocked()
}

// ClientCount returns the number of live connections.
func (h *Hub) ClientCount() int {
	return h.registry.Len()
}

// BufferedCount returns the number of events waiting for a subscriber.
func (h *Hub) BufferedCount() int {
	return h.buffer.Len()
}

// Stats reports counters for status endpoints and metrics.
func (h *Hub) Stats() Stats {
	return Stats{
		Clients:  h.registry.Len(),
		Buffered: h.buffer.Len(),
		Evicted:  h.evicted.Load(),
		Reaped:   h.reaped.Load(),
	}
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	h.registry.ForEach(func(c *Connection) {
		h.registry.Unregister(c.id)
		c.close()
	})
	h.logger.Info("stream hub closed")
}

func (h *Hub) admit(sub Subscriber, remoteAddr, scope string) (*Connection, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}

	if limit := h.opts.MaxPerAddress; limit > 0 {
		excess := h.registry.CountByAddress(remoteAddr) - (limit - 1)
		for _, old := range h.registry.OldestByAddress(remoteAddr, excess) {
			h.registry.Unregister(old.id)
			old.close()
			h.evicted.Add(1)
			h.logger.Info("subscriber evicted", "connection_id", old.id, "remote_addr", remoteAddr, "limit", limit)
		}
	}

	// Buffered events go to the first subscriber allowed to see them. Events
	// outside a scoped subscriber's session stay buffered for a later one.
	replay := h.buffer.Take(func(event domain.ErrorEvent) bool {
		return scope == "" || scope == event.SessionToken
	})
	conn := newConnection(sub, remoteAddr, scope, h.opts.QueueSize+len(replay), h.now().UTC())
	h.registry.Register(conn)
	for _, event := range replay {
		payload, err := Encode(ErrorMessage{Error: event})
		if err != nil {
			h.logger.Error("encode buffered error failed", "error", err)
			continue
		}
		conn.enqueue(payload)
	}
	h.logger.Info("subscriber connected", "connection_id", conn.id, "remote_addr", remoteAddr, "replayed", len(replay), "total_clients", h.registry.Len())
	h.announceLocked()
	return conn, nil
}

func (h *Hub) release(conn *Connection) {
	conn.close()
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.registry.Unregister(conn.id) {
		return
	}
	h.logger.Info("subscriber disconnected", "connection_id", conn.id, "total_clients", h.registry.Len())
	if !h.closed {
		h.announceLocked()
	}
}

func (h *Hub) announceLocked() {
	payload, err := Encode(ClientCountMessage{Count: h.registry.Len()})
	if err != nil {
		h.logger.Error("encode client count failed", "error", err)
		return
	}
	h.fanoutLocked(payload, nil)
}

// fanoutLocked enqueues payload on every matching connection. Connections
// that cannot take it are removed and the new count is announced.
func (h *Hub) fanoutLocked(payload []byte, match func(*Connection) bool) {
	var failed []*Connection
	h.registry.ForEach(func(c *Connection) {
		if match != nil && !match(c) {
			return
		}
		if !c.enqueue(payload) {
			failed = append(failed, c)
		}
	})
	if len(failed) == 0 {
		return
	}
	for _, c := range failed {
		if h.registry.Unregister(c.id) {
			h.reaped.Add(1)
			h.logger.Warn("subscriber dropped", "connection_id", c.id, "remote_addr", c.remoteAddr, "reason", "queue unavailable")
		}
		c.close()
	}
	h.announceLocked()
}
