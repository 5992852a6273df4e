package service

import "sync"

// Event reports activity in a map session or a change to a layer style.
type Event struct {
	Resource string // "sessions" or "styles"
	Action   string // e.g. "created", "closed", "selected", "saved", "updated"
	ID       string // session id or style category
	Detail   string `json:",omitempty"`
}

// EventBus fans session and style events out to the live streams.
type EventBus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[chan Event]struct{})}
}

// Publish sends e to every subscriber. Slow subscribers miss it.
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// full buffer
		}
	}
}

// Subscribe returns a buffered channel of session and style events.
func (b *EventBus) Subscribe() chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *EventBus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
	close(ch)
}

// Subscribers is the number of live subscriptions.
func (b *EventBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// DefaultBus serves streams whose handler was built without a bus.
var DefaultBus = NewEventBus()
