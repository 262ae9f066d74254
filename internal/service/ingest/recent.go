package ingest

import (
	"sync"

	"github.com/splax/livelog/internal/domain"
)

// recentList keeps the newest accepted events in memory, newest last.
type recentList struct {
	mu     sync.RWMutex
	events []domain.ErrorEvent
	limit  int
}

func newRecentList(limit int) *recentList {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	return &recentList{limit: limit}
}

func (r *recentList) add(events ...domain.ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	if over := len(r.events) - r.limit; over > 0 {
		r.events = append([]domain.ErrorEvent(nil), r.events[over:]...)
	}
}

func (r *recentList) last(n int) []domain.ErrorEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n <= 0 || n > len(r.events) {
		n = len(r.events)
	}
	out := make([]domain.ErrorEvent, n)
	copy(out, r.events[len(r.events)-n:])
	return out
}

func (r *recentList) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.events)
}
