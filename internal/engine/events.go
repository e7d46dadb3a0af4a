// ABOUTME: Typed engine events delivered to presentation-layer subscribers
// ABOUTME: Subscribe/unsubscribe with snapshot delivery outside the lock

package engine

import (
	"slices"
	"sync"
)

// EventKind identifies what happened.
type EventKind int

const (
	EventRefreshed EventKind = iota
	EventAdded
	EventRemoved
	EventFailed
	EventUpdateAllFinished
	EventLocatorChanged
)

// String returns the human-readable name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventRefreshed:
		return "refreshed"
	case EventAdded:
		return "added"
	case EventRemoved:
		return "removed"
	case EventFailed:
		return "failed"
	case EventUpdateAllFinished:
		return "update-all-finished"
	case EventLocatorChanged:
		return "locator-changed"
	default:
		return "unknown"
	}
}

// Event describes a state change observable by the presentation layer.
type Event struct {
	Kind EventKind
	// Target is the identifier or locator the event concerns, if any.
	Target string
	Err    error
	// Updated and Failed count packages for EventUpdateAllFinished.
	Updated int
	Failed  int
}

// Handler receives engine events.
type Handler func(Event)

type bus struct {
	mu       sync.RWMutex
	handlers map[int]Handler
	nextID   int
}

func newBus() *bus {
	return &bus{handlers: make(map[int]Handler)}
}

func (b *bus) subscribe(h Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = h
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}
}

// publish calls every handler synchronously in subscription order.
func (b *bus) publish(ev Event) {
	b.mu.RLock()
	ids := make([]int, 0, len(b.handlers))
	for id := range b.handlers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	snapshot := make([]Handler, len(ids))
	for i, id := range ids {
		snapshot[i] = b.handlers[id]
	}
	b.mu.RUnlock()

	for _, h := range snapshot {
		h(ev)
	}
}
