package coordinator

import (
	"sync"
	"time"
)

// EventType names a signal sent to observers of a tab
type EventType string

const (
	EventShowIndicator EventType = "show_indicator"
	EventHideIndicator EventType = "hide_indicator"
	EventOpenPanel     EventType = "open_panel"
	EventCloseOverlay  EventType = "close_overlay"
)

// Event is a signal for one tab
type Event struct {
	Type  EventType `json:"type"`
	TabID int       `json:"tabId"`
	At    time.Time `json:"at"`
}

// Hub fans events out to subscribers. Slow subscribers miss events rather
// than blocking the publisher.
type Hub struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{subs: map[chan Event]struct{}{}}
}

// Subscribe returns a channel of future events and a function that
// unsubscribes and closes it
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, max(buffer, 1))
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers e to every subscriber with room in its buffer
func (h *Hub) Publish(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
