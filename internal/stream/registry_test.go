package stream

import (
	"testing"
	"time"
)

func newTestConnection(addr string) *Connection {
	return newConnection(newTestSubscriber(), addr, "", 4, time.Now())
}

func TestRegistryAssignsMonotonicIDs(t *testing.T) {
	reg := NewRegistry()
	first := reg.Register(newTestConnection("10.0.0.1"))
	second := reg.Register(newTestConnection("10.0.0.1"))
	reg.Unregister(second)
	third := reg.Register(newTestConnection("10.0.0.2"))
	if !(first < second && second < third) {
		t.Fatalf("expected increasing ids, got %d %d %d", first, second, third)
	}
	if reg.Len() != 2 {
		t.Fatalf("expected 2 live connections, got %d", reg.Len())
	}
}

func TestRegistryUnregisterIsIdempotent(t *testing.T) {
	reg := NewRegistry()
	id := reg.Register(newTestConnection("10.0.0.1"))
	if !reg.Unregister(id) {
		t.Fatal("expected first unregister to remove the entry")
	}
	if reg.Unregister(id) {
		t.Fatal("expected second unregister to be a no-op")
	}
	if reg.Unregister(999) {
		t.Fatal("expected unknown id to be a no-op")
	}
}

func TestRegistryForEachToleratesRemoval(t *testing.T) {
	reg := NewRegistry()
	for i := 0; i < 4; i++ {
		reg.Register(newTestConnection("10.0.0.1"))
	}
	visited := 0
	reg.ForEach(func(c *Connection) {
		visited++
		reg.Unregister(c.ID())
	})
	if visited != 4 {
		t.Fatalf("expected 4 visits, got %d", visited)
	}
	if reg.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", reg.Len())
	}
}

func TestRegistryAddressQueries(t *testing.T) {
	reg := NewRegistry()
	a1 := reg.Register(newTestConnection("10.0.0.1"))
	reg.Register(newTestConnection("10.0.0.2"))
	a2 := reg.Register(newTestConnection("10.0.0.1"))
	reg.Register(newTestConnection("10.0.0.1"))

	if got := reg.CountByAddress("10.0.0.1"); got != 3 {
		t.Fatalf("expected 3 connections for 10.0.0.1, got %d", got)
	}
	if got := reg.CountByAddress("10.0.0.9"); got != 0 {
		t.Fatalf("expected 0 connections for unknown address, got %d", got)
	}
	oldest := reg.OldestByAddress("10.0.0.1", 2)
	if len(oldest) != 2 || oldest[0].ID() != a1 || oldest[1].ID() != a2 {
		t.Fatalf("unexpected oldest connections: %+v", oldest)
	}
	if got := reg.OldestByAddress("10.0.0.1", 0); got != nil {
		t.Fatalf("expected nil for n=0, got %v", got)
	}
}
