package playback

import (
	"sync"
	"time"

	"github.com/llehouerou/ripple/internal/player"
)

var _ player.Observer = (*Hub)(nil)

// Hub fans player notifications out to subscriptions. Pass it as the
// player's observer and to New.
type Hub struct {
	mu     sync.RWMutex
	subs   []*Subscription
	closed bool
}

// NewHub creates a hub with no subscribers.
func NewHub() *Hub {
	return &Hub{}
}

// Subscribe registers a subscription. After Close it returns a subscription
// whose Done channel is already closed.
func (h *Hub) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub := newSubscription()
	if h.closed {
		sub.close()
		return sub
	}
	h.subs = append(h.subs, sub)
	return sub
}

// Close signals Done to every subscriber. It is idempotent.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, sub := range h.subs {
		sub.close()
	}
	h.subs = nil
}

func (h *Hub) each(fn func(*Subscription)) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		fn(sub)
	}
}

// StateChanged implements player.Observer.
func (h *Hub) StateChanged(prev, cur player.State) {
	e := StateChange{Previous: fromPlayer(prev), Current: fromPlayer(cur)}
	if e.Previous == e.Current {
		return
	}
	h.each(func(s *Subscription) { send(s.stateCh, e) })
}

// Buffering implements player.Observer.
func (h *Hub) Buffering(active bool) {
	h.each(func(s *Subscription) { send(s.bufferingCh, BufferingChange{Active: active}) })
}

// Position implements player.Observer.
func (h *Hub) Position(pos, duration time.Duration) {
	h.each(func(s *Subscription) { send(s.positionCh, PositionChange{Position: pos, Duration: duration}) })
}

func (h *Hub) itemChanged(e ItemChange) {
	h.each(func(s *Subscription) { send(s.itemCh, e) })
}

func (h *Hub) finished(e FinishedEvent) {
	h.each(func(s *Subscription) { send(s.finishedCh, e) })
}

func (h *Hub) failed(e ErrorEvent) {
	h.each(func(s *Subscription) { send(s.errorCh, e) })
}
