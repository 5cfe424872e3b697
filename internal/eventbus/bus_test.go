package eventbus

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// TestBasicPublishSubscribe verifies basic functionality.
func TestBasicPublishSubscribe(t *testing.T) {
	bus := New()
	defer bus.Close()

	events, err := bus.Subscribe("test", 10)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	ev := NewEvent(TypeSessionReady, SeverityInfo, 3, map[string]any{"width": 1920})
	if got := bus.Publish(ev); got != 1 {
		t.Errorf("Expected 1 delivery, got %d", got)
	}

	select {
	case received := <-events:
		if received.Type != TypeSessionReady {
			t.Errorf("Expected type %q, got %q", TypeSessionReady, received.Type)
		}
		if received.Session != 3 {
			t.Errorf("Expected session 3, got %d", received.Session)
		}
		if received.ID == "" {
			t.Error("Expected non-empty event id")
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout waiting for event")
	}
}

// TestNonBlockingPublish verifies Publish never blocks on a full subscriber.
func TestNonBlockingPublish(t *testing.T) {
	bus := New()
	defer bus.Close()

	events, err := bus.Subscribe("slow", 1)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	done := make(chan bool)
	go func() {
		bus.Publish(NewEvent(TypeStreamStarted, SeverityInfo, 1, nil)) // Fills the buffer
		bus.Publish(NewEvent(TypeStreamStopped, SeverityInfo, 1, nil)) // Should drop
		done <- true
	}()

	select {
	case <-done:
		// Publish completed without blocking
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Publish blocked (should be non-blocking)")
	}

	received := <-events
	if received.Type != TypeStreamStarted {
		t.Errorf("Expected first event %q, got %q", TypeStreamStarted, received.Type)
	}

	stats := bus.Stats()
	sub := stats.Subscribers["slow"]
	if sub.Sent != 1 {
		t.Errorf("Expected 1 sent, got %d", sub.Sent)
	}
	if sub.Dropped != 1 {
		t.Errorf("Expected 1 dropped, got %d", sub.Dropped)
	}
}

// TestStatsConservation verifies sent + dropped accounts for every publish.
func TestStatsConservation(t *testing.T) {
	bus := New()
	defer bus.Close()

	if _, err := bus.Subscribe("wide", 10); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if _, err := bus.Subscribe("narrow", 1); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		bus.Publish(NewEvent(TypeControlsApplied, SeverityInfo, 1, nil))
	}

	stats := bus.Stats()
	if stats.TotalPublished != 5 {
		t.Errorf("Expected 5 published, got %d", stats.TotalPublished)
	}

	expected := stats.TotalPublished * uint64(len(stats.Subscribers))
	actual := stats.TotalSent + stats.TotalDropped
	if actual != expected {
		t.Errorf("Conservation violated: %d sent + %d dropped != %d published × %d subscribers",
			stats.TotalSent, stats.TotalDropped, stats.TotalPublished, len(stats.Subscribers))
	}

	if stats.Subscribers["wide"].Sent != 5 {
		t.Errorf("Expected wide subscriber to receive 5, got %d", stats.Subscribers["wide"].Sent)
	}
}

// TestSubscribeErrors verifies id and buffer validation.
func TestSubscribeErrors(t *testing.T) {
	bus := New()
	defer bus.Close()

	if _, err := bus.Subscribe("dup", 1); err != nil {
		t.Fatalf("First Subscribe failed: %v", err)
	}
	if _, err := bus.Subscribe("dup", 1); !errors.Is(err, ErrSubscriberExists) {
		t.Errorf("Expected ErrSubscriberExists, got %v", err)
	}
	if _, err := bus.Subscribe("zero", 0); err == nil {
		t.Error("Expected error for zero buffer")
	}
	if err := bus.Unsubscribe("missing"); !errors.Is(err, ErrSubscriberNotFound) {
		t.Errorf("Expected ErrSubscriberNotFound, got %v", err)
	}
}

// TestUnsubscribeClosesChannel verifies the bus closes channels it owns.
func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := New()
	defer bus.Close()

	events, err := bus.Subscribe("observer", 1)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := bus.Unsubscribe("observer"); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}

	select {
	case _, open := <-events:
		if open {
			t.Error("Expected closed channel after Unsubscribe")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Channel not closed after Unsubscribe")
	}
}

// TestCloseSemantics verifies behavior of a closed bus.
func TestCloseSemantics(t *testing.T) {
	bus := New()

	events, err := bus.Subscribe("observer", 1)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := bus.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Errorf("Second Close should be idempotent, got %v", err)
	}

	if _, open := <-events; open {
		t.Error("Expected subscriber channel closed after Close")
	}

	if got := bus.Publish(NewEvent(TypeError, SeverityError, 1, nil)); got != 0 {
		t.Errorf("Expected 0 deliveries after Close, got %d", got)
	}
	if _, err := bus.Subscribe("late", 1); !errors.Is(err, ErrBusClosed) {
		t.Errorf("Expected ErrBusClosed, got %v", err)
	}
	if err := bus.Unsubscribe("observer"); !errors.Is(err, ErrBusClosed) {
		t.Errorf("Expected ErrBusClosed, got %v", err)
	}
}

// TestConcurrentPublish verifies Publish is safe under contention.
func TestConcurrentPublish(t *testing.T) {
	bus := New()
	defer bus.Close()

	if _, err := bus.Subscribe("sink", 1024); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				bus.Publish(NewEvent(TypeWarning, SeverityWarning, 1, nil))
			}
		}()
	}
	wg.Wait()

	stats := bus.Stats()
	if stats.TotalPublished != 800 {
		t.Errorf("Expected 800 published, got %d", stats.TotalPublished)
	}
	if stats.TotalSent+stats.TotalDropped != 800 {
		t.Errorf("Expected sent+dropped == 800, got %d", stats.TotalSent+stats.TotalDropped)
	}
}
