package stream

import (
	"sync"

	"github.com/splax/livelog/internal/domain"
)

// OfflineBuffer holds error events reported while nobody is subscribed.
// When limit is positive only the newest limit events are kept.
type OfflineBuffer struct {
	mu      sync.Mutex
	events  []domain.ErrorEvent
	limit   int
	dropped uint64
}

// NewOfflineBuffer creates a buffer capped at limit events (0 = unbounded).
func NewOfflineBuffer(limit int) *OfflineBuffer {
	return &OfflineBuffer{limit: limit}
}

// Push appends an event, discarding the oldest one when the cap is reached.
func (b *OfflineBuffer) Push(event domain.ErrorEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	if b.limit > 0 && len(b.events) > b.limit {
		over := len(b.events) - b.limit
		b.dropped += uint64(over)
		b.events = append([]domain.ErrorEvent(nil), b.events[over:]...)
	}
}

// Drain returns every buffered event in arrival order and empties the buffer.
func (b *OfflineBuffer) Drain() []domain.ErrorEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	events := b.events
	b.events = nil
	return events
}

// Take removes and returns, in arrival order, the events match accepts. The
// rest stay buffered in their original order.
func (b *OfflineBuffer) Take(match func(domain.ErrorEvent) bool) []domain.ErrorEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var taken, kept []domain.ErrorEvent
	for _, event := range b.events {
		if match(event) {
			taken = append(taken, event)
		} else {
			kept = append(kept, event)
		}
	}
	b.events = kept
	return taken
}

// Len returns the number of buffered events.
func (b *OfflineBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Dropped returns how many events were discarded because of the cap.
func (b *OfflineBuffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
