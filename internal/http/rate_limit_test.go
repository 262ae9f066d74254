package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
)

func TestMemoryRateLimiterCountsRejectedAttempts(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := newMemoryRateLimiter(func() time.Time { return now })

	for i := 1; i <= 20; i++ {
		if d := rl.Allow("stream:1.2.3.4", 20, time.Minute); !d.allowed {
			t.Fatalf("attempt %d should be allowed", i)
		}
	}
	for i := 21; i <= 23; i++ {
		d := rl.Allow("stream:1.2.3.4", 20, time.Minute)
		if d.allowed {
			t.Fatalf("attempt %d should be rejected", i)
		}
		if d.count != i {
			t.Fatalf("expected rejected attempts to count, got %d at attempt %d", d.count, i)
		}
	}
	if d := rl.Allow("stream:5.6.7.8", 20, time.Minute); !d.allowed || d.count != 1 {
		t.Fatalf("keys must be independent, got %+v", d)
	}

	now = now.Add(time.Minute)
	if d := rl.Allow("stream:1.2.3.4", 20, time.Minute); d.allowed {
		t.Fatal("window boundary is exclusive; expected still rejected at exactly 60s")
	}
	now = now.Add(time.Millisecond)
	d := rl.Allow("stream:1.2.3.4", 20, time.Minute)
	if !d.allowed || d.count != 1 {
		t.Fatalf("expected fresh window after expiry, got %+v", d)
	}
	if !d.windowEnd.Equal(now.Add(time.Minute)) {
		t.Fatalf("unexpected window end %s", d.windowEnd)
	}
}

func TestMemoryRateLimiterCleanup(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := newMemoryRateLimiter(func() time.Time { return now })
	rl.Allow("a", 5, time.Minute)
	rl.Allow("b", 5, time.Hour)
	rl.cleanup(now.Add(2 * time.Minute))
	if rl.size() != 1 {
		t.Fatalf("expected only the long window to survive, got %d entries", rl.size())
	}
}

func TestMemoryRateLimiterDisabledLimit(t *testing.T) {
	rl := newMemoryRateLimiter(time.Now)
	if d := rl.Allow("k", 0, time.Minute); !d.allowed {
		t.Fatal("non-positive limit disables limiting")
	}
}

func TestRedisRateLimiterFailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	rl := newRedisRateLimiter(client, discardLogger())
	defer rl.Close()
	if d := rl.Allow("stream:1.2.3.4", 1, time.Minute); !d.allowed {
		t.Fatal("expected redis errors to fail open")
	}
}

func TestWithRateLimitKeysByRoutePrefixAndClient(t *testing.T) {
	env := setupRouter(t)
	env.limiter.allowFn = func(key string, limit int, window time.Duration) rateDecision {
		return rateDecision{allowed: key != "session:198.51.100.7", count: 2, windowEnd: time.Now().Add(window)}
	}
	next := func(w http.ResponseWriter, req *http.Request) { w.WriteHeader(http.StatusNoContent) }
	handler := env.router.withRateLimit("/api/sessions", 5, time.Minute, sessionKey, next)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	rr := httptest.NewRecorder()
	handler(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected pass-through, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	req.RemoteAddr = "198.51.100.7:4242"
	rr = httptest.NewRecorder()
	handler(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}

	calls := env.limiter.callsWithPrefix("session:")
	if len(calls) != 2 || calls[0].key != "session:203.0.113.9" || calls[1].key != "session:198.51.100.7" {
		t.Fatalf("unexpected limiter keys: %+v", calls)
	}
	if calls[0].limit != 5 || calls[0].window != time.Minute {
		t.Fatalf("unexpected limit arguments: %+v", calls[0])
	}
}
