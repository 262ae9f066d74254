package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/splax/livelog/internal/domain"
)

// startTestNATS starts an embedded NATS server and returns its client URL.
func startTestNATS(t *testing.T) string {
	t.Helper()
	opts := &natsserver.Options{Host: "127.0.0.1", Port: -1}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("starting embedded NATS: %v", err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	return srv.ClientURL()
}

func TestNATSPublisherPublishesErrorEvents(t *testing.T) {
	url := startTestNATS(t)

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connecting subscriber: %v", err)
	}
	defer nc.Close()
	msgs := make(chan *nats.Msg, 4)
	if _, err := nc.ChanSubscribe("livelog.test.>", msgs); err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	if err := nc.Flush(); err != nil {
		t.Fatalf("flushing subscription: %v", err)
	}

	pub, err := NewNATSPublisher(url, "livelog.test.errors", nil)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	event := domain.ErrorEvent{ID: "evt-1", Type: "error", Message: "boom", SessionToken: "sess"}
	if err := pub.PublishError(context.Background(), event); err != nil {
		t.Fatalf("publishing: %v", err)
	}

	select {
	case msg := <-msgs:
		if msg.Subject != "livelog.test.errors" {
			t.Fatalf("unexpected subject %q", msg.Subject)
		}
		if got := msg.Header.Get("Livelog-Event-Id"); got != "evt-1" {
			t.Fatalf("unexpected event id header %q", got)
		}
		if got := msg.Header.Get("Livelog-Session"); got != "sess" {
			t.Fatalf("unexpected session header %q", got)
		}
		var decoded domain.ErrorEvent
		if err := json.Unmarshal(msg.Data, &decoded); err != nil {
			t.Fatalf("decoding payload: %v", err)
		}
		if decoded.Message != "boom" {
			t.Fatalf("unexpected payload %+v", decoded)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

func TestNATSPublisherDefaultsSubject(t *testing.T) {
	url := startTestNATS(t)
	pub, err := NewNATSPublisher(url, "", nil)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()
	if pub.Subject() != DefaultSubject {
		t.Fatalf("expected default subject, got %q", pub.Subject())
	}
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	if err := p.PublishError(context.Background(), domain.ErrorEvent{}); err != nil {
		t.Fatalf("noop publish: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("noop close: %v", err)
	}
}
