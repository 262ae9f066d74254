package stream

import (
	"testing"

	"github.com/splax/livelog/internal/domain"
)

func TestOfflineBufferDrainKeepsOrderAndEmpties(t *testing.T) {
	buf := NewOfflineBuffer(0)
	for _, msg := range []string{"a", "b", "c"} {
		buf.Push(domain.ErrorEvent{Message: msg})
	}
	drained := buf.Drain()
	if len(drained) != 3 {
		t.Fatalf("expected 3 events, got %d", len(drained))
	}
	for i, want := range []string{"a", "b", "c"} {
		if drained[i].Message != want {
			t.Fatalf("event %d: expected %q, got %q", i, want, drained[i].Message)
		}
	}
	if buf.Len() != 0 {
		t.Fatalf("expected empty buffer after drain, got %d", buf.Len())
	}
	if again := buf.Drain(); len(again) != 0 {
		t.Fatalf("expected second drain to be empty, got %d", len(again))
	}
}

func TestOfflineBufferCapDropsOldest(t *testing.T) {
	buf := NewOfflineBuffer(2)
	for _, msg := range []string{"a", "b", "c", "d"} {
		buf.Push(domain.ErrorEvent{Message: msg})
	}
	drained := buf.Drain()
	if len(drained) != 2 || drained[0].Message != "c" || drained[1].Message != "d" {
		t.Fatalf("expected newest two events, got %+v", drained)
	}
	if buf.Dropped() != 2 {
		t.Fatalf("expected 2 dropped events, got %d", buf.Dropped())
	}
}

func TestOfflineBufferTakeLeavesUnmatchedInOrder(t *testing.T) {
	buf := NewOfflineBuffer(0)
	for _, ev := range []domain.ErrorEvent{
		{Message: "a", SessionToken: "s1"},
		{Message: "b"},
		{Message: "c", SessionToken: "s1"},
		{Message: "d", SessionToken: "s2"},
	} {
		buf.Push(ev)
	}
	taken := buf.Take(func(ev domain.ErrorEvent) bool { return ev.SessionToken == "s1" })
	if len(taken) != 2 || taken[0].Message != "a" || taken[1].Message != "c" {
		t.Fatalf("unexpected taken events %+v", taken)
	}
	rest := buf.Drain()
	if len(rest) != 2 || rest[0].Message != "b" || rest[1].Message != "d" {
		t.Fatalf("unexpected remaining events %+v", rest)
	}
}
