package engine

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestEventBus_Subscribe_Publish(t *testing.T) {
	bus := NewEventBus()
	var received []Event
	var mu sync.Mutex
	bus.Subscribe(func(e Event) {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
	})
	bus.Publish(Event{ID: "ev-1", Type: EventNodeStarted, Timestamp: time.Now()})
	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("received: got %d, want 1", len(received))
	}
	if received[0].ID != "ev-1" {
		t.Errorf("event ID: got %q, want ev-1", received[0].ID)
	}
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus()
	var count int
	unsubscribe := bus.Subscribe(func(e Event) { count++ })
	bus.Publish(Event{ID: "ev-1"})
	unsubscribe()
	bus.Publish(Event{ID: "ev-2"})
	if count != 1 {
		t.Errorf("count: got %d, want 1", count)
	}
}

func TestEventBus_MultipleSubscribers(t *testing.T) {
	bus := NewEventBus()
	var count1, count2 int
	var mu sync.Mutex
	bus.Subscribe(func(e Event) { mu.Lock(); count1++; mu.Unlock() })
	bus.Subscribe(func(e Event) { mu.Lock(); count2++; mu.Unlock() })
	bus.Publish(Event{ID: "ev-1", Type: EventNodeStarted, Timestamp: time.Now()})
	mu.Lock()
	defer mu.Unlock()
	if count1 != 1 || count2 != 1 {
		t.Errorf("counts: got %d/%d, want 1/1", count1, count2)
	}
}

func TestEventBus_ChannelFiltersByExecution(t *testing.T) {
	bus := NewEventBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := bus.Channel(ctx, "exec-2", 10)
	bus.Publish(Event{ID: "ev-1", ExecutionID: "exec-1"})
	bus.Publish(Event{ID: "ev-2", ExecutionID: "exec-2"})
	select {
	case ev := <-ch:
		if ev.ID != "ev-2" {
			t.Errorf("event ID: got %q, want ev-2", ev.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestEventBus_ChannelClosesOnCancel(t *testing.T) {
	bus := NewEventBus()
	ctx, cancel := context.WithCancel(context.Background())
	ch := bus.Channel(ctx, "", 1)
	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
	bus.Publish(Event{ID: "late"})
}
