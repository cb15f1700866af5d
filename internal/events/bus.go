// Package events is an in-process pub/sub bus for call lifecycle changes.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types published by the call queue.
const (
	CallStarted  = "call.started"
	CallUpdated  = "call.updated"
	CallRouted   = "call.routed"
	CallsCleared = "calls.cleared"
)

// Event is one lifecycle notification. Data carries the call snapshot.
type Event struct {
	ID     string    `json:"id"`
	Type   string    `json:"type"`
	CallID string    `json:"callId,omitempty"`
	Time   time.Time `json:"time"`
	Data   any       `json:"data,omitempty"`
}

// New stamps an event with a fresh id and the current time.
func New(typ, callID string, data any) Event {
	return Event{ID: uuid.NewString(), Type: typ, CallID: callID, Time: time.Now().UTC(), Data: data}
}

// Bus fans events out to subscribers. Slow subscribers miss events rather
// than block publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
	size int
}

// NewBus creates a bus whose subscriber channels hold size events.
func NewBus(size int) *Bus {
	if size <= 0 {
		size = 16
	}
	return &Bus{subs: make(map[chan Event]struct{}), size: size}
}

// Subscribe returns a channel of future events and a func that detaches it.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, b.size)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers ev to every subscriber with room in its buffer.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers reports the number of attached subscribers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
