package stream

import (
	"sort"
	"sync"
)

// Registry tracks live subscriber connections keyed by a monotonically
// increasing id.
type Registry struct {
	mu     sync.RWMutex
	nextID uint64
	conns  map[uint64]*Connection
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[uint64]*Connection)}
}

// Register assigns the next id to conn, stores it and returns the id.
func (r *Registry) Register(conn *Connection) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	conn.id = r.nextID
	r.conns[conn.id] = conn
	return conn.id
}

// Unregister removes the connection with the given id. It reports whether an
// entry was removed; unknown ids are a no-op.
func (r *Registry) Unregister(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[id]; !ok {
		return false
	}
	delete(r.conns, id)
	return true
}

// ForEach calls fn for every live connection in registration order. It
// iterates over a snapshot, so fn may unregister connections.
func (r *Registry) ForEach(fn func(*Connection)) {
	for _, conn := range r.snapshot() {
		fn(conn)
	}
}

// CountByAddress counts live connections opened from address.
func (r *Registry) CountByAddress(address string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, conn := range r.conns {
		if conn.remoteAddr == address {
			count++
		}
	}
	return count
}

// OldestByAddress returns up to n connections from address, oldest first.
func (r *Registry) OldestByAddress(address string, n int) []*Connection {
	if n <= 0 {
		return nil
	}
	var matches []*Connection
	for _, conn := range r.snapshot() {
		if conn.remoteAddr != address {
			continue
		}
		matches = append(matches, conn)
		if len(matches) == n {
			break
		}
	}
	return matches
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Registry) snapshot() []*Connection {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	r.mu.RUnlock()
	sort.Slice(conns, func(i, j int) bool { return conns[i].id < conns[j].id })
	return conns
}

func (r *Registry) nextIDSnapshot() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nextID
}
