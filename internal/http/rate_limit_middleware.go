package httpx

import (
	"net/http"
	"strings"
	"sync"
	"time"
)

const rateLimiterSweepInterval = 5 * time.Minute

// RateLimiter counts attempts per key in fixed windows.
type RateLimiter interface {
	Allow(key string, limit int, window time.Duration) rateDecision
	Close()
}

type rateDecision struct {
	allowed   bool
	count     int
	windowEnd time.Time
}

type memoryRateLimiter struct {
	mu      sync.Mutex
	entries map[string]rateState
	now     func() time.Time
	stopCh  chan struct{}
	once    sync.Once
}

type rateState struct {
	count       int
	windowStart time.Time
	window      time.Duration
}

// NewMemoryRateLimiter returns an in-process limiter with a background sweep.
func NewMemoryRateLimiter() RateLimiter {
	rl := newMemoryRateLimiter(time.Now)
	go rl.sweepLoop()
	return rl
}

func newMemoryRateLimiter(now func() time.Time) *memoryRateLimiter {
	return &memoryRateLimiter{
		entries: make(map[string]rateState),
		now:     now,
		stopCh:  make(chan struct{}),
	}
}

// Allow resets the window once more than window has elapsed since it began,
// then counts the attempt. Rejected attempts are counted too, so a client
// that keeps retrying stays blocked until the window runs out.
func (rl *memoryRateLimiter) Allow(key string, limit int, window time.Duration) rateDecision {
	if limit <= 0 {
		return rateDecision{allowed: true}
	}
	if window <= 0 {
		window = time.Minute
	}
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	state, ok := rl.entries[key]
	if !ok || now.Sub(state.windowStart) > window {
		state = rateState{windowStart: now, window: window}
	}
	state.count++
	rl.entries[key] = state
	return rateDecision{
		allowed:   state.count <= limit,
		count:     state.count,
		windowEnd: state.windowStart.Add(window),
	}
}

func (rl *memoryRateLimiter) sweepLoop() {
	ticker := time.NewTicker(rateLimiterSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.cleanup(rl.now())
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *memoryRateLimiter) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, state := range rl.entries {
		if now.Sub(state.windowStart) > state.window {
			delete(rl.entries, key)
		}
	}
}

func (rl *memoryRateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.entries)
}

func (rl *memoryRateLimiter) Close() {
	rl.once.Do(func() {
		close(rl.stopCh)
	})
}

func (r *Router) withRateLimit(route string, limit int, window time.Duration, keyFn func(*http.Request) string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if limit <= 0 || r.limiter == nil {
			next(w, req)
			return
		}
		key := keyFn(req)
		decision := r.limiter.Allow(key, limit, window)
		r.applyRateHeaders(w, limit, decision)
		if !decision.allowed {
			r.recordRateLimitHit(route, rateMetricKey(key))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, req)
	}
}

// withStreamLimit guards stream endpoints. A rejected attempt never reaches
// the hub, so no connection is registered.
func (r *Router) withStreamLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		limit := r.opts.StreamRateLimit
		if limit <= 0 || r.limiter == nil {
			next(w, req)
			return
		}
		key := streamKey(req)
		decision := r.limiter.Allow(key, limit, r.opts.StreamRateWindow)
		r.applyRateHeaders(w, limit, decision)
		if !decision.allowed {
			r.recordRateLimitHit(req.URL.Path, rateMetricKey(key))
			r.logger.Warn("stream connection rate limited", "ip", clientIP(req), "count", decision.count, "limit", limit)
			writeError(w, http.StatusTooManyRequests, streamRateLimitMessage)
			return
		}
		next(w, req)
	}
}

func streamKey(req *http.Request) string {
	return "stream:" + clientIP(req)
}

func ingestKey(req *http.Request) string {
	return "ingest:" + clientIP(req)
}

func sessionKey(req *http.Request) string {
	return "session:" + clientIP(req)
}

// rateMetricKey keeps only the key's prefix so client addresses never become
// label values.
func rateMetricKey(key string) string {
	if idx := strings.IndexRune(key, ':'); idx > 0 {
		return key[:idx]
	}
	return key
}
