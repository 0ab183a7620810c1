// Package realtime fans database row changes out to subscribers.
package realtime

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"typerush/internal/model"
)

// DefaultBuffer is the per-subscriber event buffer.
const DefaultBuffer = 32

// Filter selects the events a subscriber receives. Empty fields match all.
type Filter struct {
	Tables []string
	UserID string
	// Broadcast lists tables whose events reach the subscriber regardless of
	// UserID, e.g. users for leaderboard refreshes.
	Broadcast []string
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// Match reports whether ev passes the filter.
func (f Filter) Match(ev model.ChangeEvent) bool {
	if len(f.Tables) > 0 && !contains(f.Tables, ev.Table) {
		return false
	}
	if f.UserID == "" || contains(f.Broadcast, ev.Table) {
		return true
	}
	return ev.OwnerID() == f.UserID
}

// Subscription is one subscriber's view of the hub. Close must be called to
// release it; it is safe to call more than once.
type Subscription struct {
	id      uint64
	hub     *Hub
	filter  Filter
	events  chan model.ChangeEvent
	once    sync.Once
	dropped atomic.Uint64
}

// Events returns the channel of matching events. It is closed when the
// subscription or the hub is closed.
func (s *Subscription) Events() <-chan model.ChangeEvent {
	return s.events
}

// Dropped reports how many events were discarded because the buffer was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close unsubscribes and closes the events channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s.id)
		close(s.events)
	})
}

// Hub delivers published change events to matching subscriptions.
// Publishing never blocks: a subscriber that falls behind loses events.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID atomic.Uint64
	closed bool
	buffer int
}

// NewHub creates an empty hub.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{subs: make(map[uint64]*Subscription), buffer: buffer}
}

// Subscribe registers a new subscription. Subscribing to a closed hub returns
// a subscription whose channel is already closed.
func (h *Hub) Subscribe(filter Filter) *Subscription {
	sub := &Subscription{
		id:     h.nextID.Add(1),
		hub:    h,
		filter: filter,
		events: make(chan model.ChangeEvent, h.buffer),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.once.Do(func() { close(sub.events) })
		return sub
	}
	h.subs[sub.id] = sub
	h.mu.Unlock()

	log.Debug().Uint64("subscription", sub.id).Str("user_id", filter.UserID).Msg("Realtime subscriber added")
	return sub
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

// Publish delivers ev to every matching subscription.
func (h *Hub) Publish(ev model.ChangeEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if !sub.filter.Match(ev) {
			continue
		}
		select {
		case sub.events <- ev:
		default:
			if sub.dropped.Add(1) == 1 {
				log.Warn().Uint64("subscription", sub.id).Msg("Realtime subscriber is slow, dropping events")
			}
		}
	}
}

// Len reports the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close closes every subscription. Further publishes are no-ops.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := make([]*Subscription, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
}
