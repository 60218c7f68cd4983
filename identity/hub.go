package identity

import (
	"sync"

	"github.com/rs/zerolog/log"
)

const subscriberBuffer = 16

// Hub fans events out to subscribers. Providers embed it to implement
// Subscribe. A subscriber that stops draining loses events rather than
// blocking the publisher, except SignedOut, which evicts the oldest buffered
// event so it is always delivered.
type Hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
	closed bool
}

func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	if h.subs == nil {
		h.subs = make(map[int]chan Event)
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if sub, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub)
			}
		})
	}
}

// Publish delivers evt to every current subscriber.
func (h *Hub) Publish(evt Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- evt:
		default:
			if evt.Type != SignedOut {
				log.Warn().Str("event", evt.Type.String()).Msg("Identity subscriber is not draining, dropping event")
				continue
			}
			evictAndSend(ch, evt)
		}
	}
}

// evictAndSend makes room in a full channel. Only Publish sends, under h.mu,
// so a freed slot stays free until the send below.
func evictAndSend(ch chan Event, evt Event) {
	for {
		select {
		case ch <- evt:
			return
		default:
		}
		select {
		case dropped := <-ch:
			log.Warn().Str("event", dropped.Type.String()).Msg("Identity subscriber is not draining, evicting event for sign-out")
		default:
		}
	}
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
