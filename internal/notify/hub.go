// Package notify carries "accounts changed" notifications from the vault to
// whatever is presenting the account list, so the presentation layer can
// redraw without the vault knowing it exists.
package notify

import (
	"sync"
	"time"
)

// Kind says what kind of change happened.
type Kind string

const (
	KindAdded    Kind = "added"
	KindUpdated  Kind = "updated"
	KindSwitched Kind = "switched"
	KindRemoved  Kind = "removed"
	KindMigrated Kind = "migrated"
	KindProfile  Kind = "profile"
	// KindExternal is emitted when another process changed the store.
	KindExternal Kind = "external"
)

// Event is a rebuild notification.
type Event struct {
	Kind     Kind      `json:"kind"`
	Username string    `json:"username,omitempty"`
	At       time.Time `json:"at"`
}

// Publisher accepts events. *Hub implements it.
type Publisher interface {
	Publish(Event)
}

// Hub fans events out to subscribers. Publishing never blocks: a subscriber
// whose buffer is full misses the event, which is harmless because every
// event means the same thing ("redraw").
type Hub struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
	now  func() time.Time
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan Event), now: time.Now}
}

// Subscribe registers a subscriber with the given buffer size. The returned
// cancel func unregisters it and closes the channel; it is safe to call more
// than once.
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers e to every subscriber that has room for it.
func (h *Hub) Publish(e Event) {
	if h == nil {
		return
	}
	if e.At.IsZero() {
		e.At = h.now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribers reports how many subscribers are registered.
func (h *Hub) Subscribers() int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
