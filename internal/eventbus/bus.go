// Package eventbus provides non-blocking delivery of session events to
// multiple observers.
//
// Bus implements a fan-out pattern where events published to the bus are
// distributed to all registered subscribers over Go channels. If a
// subscriber's channel is full, the event is dropped for that subscriber
// rather than queued, so a slow observer can never stall the capture path.
//
// # Basic Usage
//
//	bus := eventbus.New()
//	defer bus.Close()
//
//	events, _ := bus.Subscribe("emitter", 16)
//	go func() {
//	    for ev := range events {
//	        fmt.Println(ev.Type, ev.Fields)
//	    }
//	}()
//
//	bus.Publish(eventbus.NewEvent(eventbus.TypeSessionReady, eventbus.SeverityInfo, gen, nil))
//
// # Thread Safety
//
// All methods are safe for concurrent use. Multiple goroutines can call
// Publish simultaneously, and Subscribe/Unsubscribe can be called while
// publishing.
package eventbus

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Type identifies what happened.
type Type string

const (
	TypeSessionOpened    Type = "session.opened"
	TypeSessionReady     Type = "session.ready"
	TypeSessionClosed    Type = "session.closed"
	TypeStreamStarted    Type = "stream.started"
	TypeStreamStopped    Type = "stream.stopped"
	TypeControlsApplied  Type = "controls.applied"
	TypeControlsRejected Type = "controls.rejected"
	TypeWBChanged        Type = "wb.changed"
	TypeStillSaved       Type = "still.saved"
	TypeStillFailed      Type = "still.failed"
	TypePipelineDegraded Type = "pipeline.degraded"
	TypeWarning          Type = "warning"
	TypeError            Type = "error"
)

// Severity classifies an event for downstream filtering.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

var (
	// ErrSubscriberExists is returned when Subscribe is called with a duplicate id.
	ErrSubscriberExists = errors.New("subscriber id already exists")

	// ErrSubscriberNotFound is returned when Unsubscribe is called with unknown id.
	ErrSubscriberNotFound = errors.New("subscriber id not found")

	// ErrBusClosed is returned when operations are attempted on a closed bus.
	ErrBusClosed = errors.New("bus is closed")
)

// Event is a single observation published on the bus.
type Event struct {
	// ID uniquely identifies the event for log correlation.
	ID string `json:"id"`

	// Type identifies what happened.
	Type Type `json:"type"`

	// Severity classifies the event.
	Severity Severity `json:"severity"`

	// Session is the session generation the event was produced under.
	Session uint64 `json:"session"`

	// At is when the event was produced.
	At time.Time `json:"at"`

	// Fields carries event-specific detail.
	Fields map[string]any `json:"fields,omitempty"`
}

// NewEvent builds an Event with a fresh id and the current time.
func NewEvent(t Type, sev Severity, session uint64, fields map[string]any) Event {
	return Event{
		ID:       uuid.NewString(),
		Type:     t,
		Severity: sev,
		Session:  session,
		At:       time.Now(),
		Fields:   fields,
	}
}

// Bus distributes events to multiple subscribers with drop policy.
type Bus interface {
	// Subscribe registers an observer and returns its receive channel.
	// The bus owns the channel and closes it on Unsubscribe or Close.
	// Returns an error if id already exists or if the bus is closed.
	Subscribe(id string, buffer int) (<-chan Event, error)

	// Unsubscribe removes a subscriber by id and closes its channel.
	Unsubscribe(id string) error

	// Publish sends the event to all subscribers (non-blocking) and
	// reports how many received it. Events published after Close are
	// discarded and reported as zero deliveries.
	Publish(ev Event) int

	// Stats returns current bus statistics snapshot.
	Stats() Stats

	// Close stops the bus and closes all subscriber channels.
	// Close is idempotent.
	Close() error
}

// Stats contains global and per-subscriber metrics.
type Stats struct {
	// TotalPublished is the number of Publish calls.
	TotalPublished uint64

	// TotalSent is the sum of events sent to all subscribers.
	TotalSent uint64

	// TotalDropped is the sum of events dropped across all subscribers.
	TotalDropped uint64

	// Subscribers contains per-subscriber breakdown.
	Subscribers map[string]SubscriberStats
}

// SubscriberStats tracks metrics for a single subscriber.
type SubscriberStats struct {
	Sent    uint64
	Dropped uint64
}

// subscriberState holds the channel plus internal atomic counters.
type subscriberState struct {
	ch      chan Event
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// bus is the concrete implementation of Bus.
type bus struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriberState
	closed      bool

	// Global counter (atomic, no lock needed in Publish)
	totalPublished atomic.Uint64
}

// New creates an event bus.
func New() Bus {
	return &bus{
		subscribers: make(map[string]*subscriberState),
	}
}

// Subscribe registers an observer and returns its receive channel.
func (b *bus) Subscribe(id string, buffer int) (<-chan Event, error) {
	if buffer < 1 {
		return nil, errors.New("subscriber buffer must be at least 1")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}

	if _, exists := b.subscribers[id]; exists {
		return nil, ErrSubscriberExists
	}

	sub := &subscriberState{ch: make(chan Event, buffer)}
	b.subscribers[id] = sub

	return sub.ch, nil
}

// Unsubscribe removes a subscriber by id and closes its channel.
func (b *bus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}

	sub, exists := b.subscribers[id]
	if !exists {
		return ErrSubscriberNotFound
	}

	delete(b.subscribers, id)
	close(sub.ch)

	return nil
}

// Publish sends the event to all subscribers (non-blocking).
//
// For each subscriber:
//   - If its channel has space: the event is sent, Sent counter incremented
//   - If its channel is full: the event is dropped, Dropped counter incremented
//
// This method never blocks, even if all subscribers are slow.
func (b *bus) Publish(ev Event) int {
	b.totalPublished.Add(1)

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0
	}

	delivered := 0
	for _, sub := range b.subscribers {
		select {
		case sub.ch <- ev:
			sub.sent.Add(1)
			delivered++
		default:
			// Channel full - drop for this subscriber
			sub.dropped.Add(1)
		}
	}

	return delivered
}

// Stats returns current bus statistics snapshot.
//
// The returned Stats is a snapshot at the time of the call. Concurrent
// Publish operations may increment counters after Stats returns.
func (b *bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := Stats{
		TotalPublished: b.totalPublished.Load(),
		Subscribers:    make(map[string]SubscriberStats),
	}

	var totalSent, totalDropped uint64

	for id, sub := range b.subscribers {
		sent := sub.sent.Load()
		dropped := sub.dropped.Load()

		totalSent += sent
		totalDropped += dropped

		result.Subscribers[id] = SubscriberStats{
			Sent:    sent,
			Dropped: dropped,
		}
	}

	result.TotalSent = totalSent
	result.TotalDropped = totalDropped

	return result
}

// Close stops the bus and closes all subscriber channels.
//
// After Close:
//   - Subscribe/Unsubscribe return ErrBusClosed
//   - Publish discards events and returns 0
//   - Stats continues to work (returns final snapshot of zero subscribers)
func (b *bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil // Already closed, idempotent
	}

	b.closed = true

	for id, sub := range b.subscribers {
		close(sub.ch)
		delete(b.subscribers, id)
	}

	return nil
}
