package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/splax/livelog/internal/stream"
)

func TestNewNormalisesBaseURL(t *testing.T) {
	cli, err := New(" localhost:9000/ ")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if cli.BaseURL() != "http://localhost:9000" {
		t.Fatalf("unexpected base url %q", cli.BaseURL())
	}
	def, _ := New("")
	if def.BaseURL() != defaultBaseURL {
		t.Fatalf("expected default base url, got %q", def.BaseURL())
	}
}

func TestReportPostsPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/error" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if payload["message"] != "boom" || payload["line"] != float64(12) {
			t.Errorf("unexpected payload %+v", payload)
		}
		if _, ok := payload["stack"]; ok {
			t.Errorf("expected empty stack to be omitted")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","id":"evt-1"}`))
	}))
	defer srv.Close()

	cli, _ := New(srv.URL)
	ack, err := cli.Report(context.Background(), Report{Message: "boom", Line: 12})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if ack.ID != "evt-1" || ack.Status != "ok" {
		t.Fatalf("unexpected ack %+v", ack)
	}
}

func TestAPIErrorCarriesServerMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"message is required"}`))
	}))
	defer srv.Close()

	cli, _ := New(srv.URL)
	_, err := cli.Report(context.Background(), Report{})
	var apiErr APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Message != "message is required" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
}

func TestRecentAddsLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "5" {
			t.Errorf("expected limit=5, got %q", r.URL.RawQuery)
		}
		w.Write([]byte(`[{"id":"a","message":"one","type":"error"}]`))
	}))
	defer srv.Close()

	cli, _ := New(srv.URL)
	events, err := cli.Recent(context.Background(), 5)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != 1 || events[0].ID != "a" {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestJoinSessionEscapesToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.EscapedPath() != "/api/sessions/abc%20def/join" {
			t.Errorf("unexpected path %q", r.URL.EscapedPath())
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "hunter2" {
			t.Errorf("unexpected password %q", body["password"])
		}
		w.Write([]byte(`{"token":"abc def","name":"demo","access":"jwt","expiresAt":"2026-01-01T00:00:00Z"}`))
	}))
	defer srv.Close()

	cli, _ := New(srv.URL)
	joined, err := cli.JoinSession(context.Background(), "abc def", "hunter2")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if joined.Access != "jwt" || joined.ExpiresAt.Year() != 2026 {
		t.Fatalf("unexpected join response %+v", joined)
	}
}

func TestStreamDeliversFramesAndSkipsPings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("session") != "s1" {
			t.Errorf("expected session scope, got %q", r.URL.RawQuery)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("expected bearer access token, got %q", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"client-count\",\"count\":1}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"ping\"}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"error\",\"error\":{\"id\":\"e1\",\"message\":\"boom\",\"type\":\"error\"}}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	cli, _ := New(srv.URL)
	var got []stream.Message
	err := cli.Stream(context.Background(), StreamOptions{Session: "s1", Access: "tok"}, func(msg stream.Message) error {
		got = append(got, msg)
		if len(got) == 2 {
			return ErrStopStream
		}
		return nil
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if count, ok := got[0].(stream.ClientCountMessage); !ok || count.Count != 1 {
		t.Fatalf("expected client count first, got %#v", got[0])
	}
	if errMsg, ok := got[1].(stream.ErrorMessage); !ok || errMsg.Error.ID != "e1" {
		t.Fatalf("expected error frame second, got %#v", got[1])
	}
}

func TestStreamReconnectsAfterDrop(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := attempts.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "data: {\"type\":\"client-count\",\"count\":%d}\n\n", n)
	}))
	defer srv.Close()

	cli, _ := New(srv.URL, WithReconnectDelay(10*time.Millisecond))
	var drops atomic.Int32
	opts := StreamOptions{OnDisconnect: func(error) { drops.Add(1) }}
	err := cli.Stream(context.Background(), opts, func(msg stream.Message) error {
		if count := msg.(stream.ClientCountMessage); count.Count >= 3 {
			return ErrStopStream
		}
		return nil
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if attempts.Load() != 3 {
		t.Fatalf("expected 3 connection attempts, got %d", attempts.Load())
	}
	if drops.Load() != 2 {
		t.Fatalf("expected 2 disconnects, got %d", drops.Load())
	}
}

func TestStreamStopsOnUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"access denied"}`))
	}))
	defer srv.Close()

	cli, _ := New(srv.URL, WithReconnectDelay(time.Millisecond))
	err := cli.Stream(context.Background(), StreamOptions{Session: "s1"}, func(stream.Message) error { return nil })
	var apiErr APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized api error, got %v", err)
	}
}

func TestStreamReturnsOnContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cli, _ := New(srv.URL, WithReconnectDelay(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- cli.Stream(ctx, StreamOptions{}, func(stream.Message) error { return nil })
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil on cancel, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("stream did not return after cancel")
	}
}
