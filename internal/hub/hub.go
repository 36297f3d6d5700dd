// Package hub implements the event fan-out described in spec.md §4.6: a
// subscriber registry with per-subscriber bounded outbound queues,
// broadcast and per-channel delivery, and liveness dropping of slow
// subscribers. It is grounded on the teacher's tomb.v2-supervised
// goroutine style (internal/worker.go's WorkerPool, internal/net/server.go's
// sessionHandler) but replaces the teacher's "callback list into the
// engine" shape (spec.md §9) with a channel the kernel writes to and the
// hub drains on its own goroutine, so a slow subscriber never holds the
// kernel lock.
package hub

import (
	"sync"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

// EventType names the four broadcast event kinds plus the order-book
// snapshot channel event (spec.md §4.6/§6).
type EventType string

const (
	TradeEvent       EventType = "trade"
	OrderEvent       EventType = "order"
	PositionEvent    EventType = "position"
	LiquidationEvent EventType = "liquidation"
	OrderBookEvent   EventType = "orderbook"
)

// subscriberBufferSize is the bounded outbound queue capacity named in
// spec.md §4.6.
const subscriberBufferSize = 256

// Event is the wire envelope spec.md §6 "Event stream" describes.
type Event struct {
	Type        EventType `json:"type"`
	Channel     string    `json:"channel,omitempty"`
	Data        any       `json:"data"`
	TimestampMS int64     `json:"timestamp_ms"`
}

// broadcastTypes are delivered to every subscriber regardless of channel
// subscription (spec.md §6).
var broadcastTypes = map[EventType]bool{
	TradeEvent:       true,
	PositionEvent:    true,
	LiquidationEvent: true,
}

// Subscriber is one registered outbound consumer: an order-update stream
// plus whatever channels it has opted into (e.g. "orderbook:R.index").
type Subscriber struct {
	id      uint64
	outbox  chan Event
	mu      sync.Mutex
	wants   map[string]bool
	closed  bool
}

// Events returns the subscriber's receive side. The transport adapter
// (out of scope here) reads from this to push events to its client.
func (s *Subscriber) Events() <-chan Event {
	return s.outbox
}

// Subscribe opts the subscriber into a channel (e.g. "orderbook:R.index").
func (s *Subscriber) Subscribe(channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wants[channel] = true
}

// Unsubscribe opts the subscriber out of a channel.
func (s *Subscriber) Unsubscribe(channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.wants, channel)
}

func (s *Subscriber) wantsChannel(channel string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wants[channel]
}

// Hub is the subscriber registry and fan-out dispatcher (spec.md §4.6).
type Hub struct {
	mu          sync.RWMutex
	subscribers map[uint64]*Subscriber
	nextID      uint64

	incoming chan Event
	t        *tomb.Tomb
}

// New constructs a Hub. Run must be called (typically under a tomb) to
// start the dispatcher goroutine that drains Emit into subscriber outboxes.
func New() *Hub {
	return &Hub{
		subscribers: make(map[uint64]*Subscriber),
		incoming:    make(chan Event, 1024),
	}
}

// Run drains the kernel's event channel and fans out to subscribers until
// t dies, matching the teacher's tomb-supervised dispatcher shape.
func (h *Hub) Run(t *tomb.Tomb) error {
	h.t = t
	for {
		select {
		case <-t.Dying():
			return nil
		case ev := <-h.incoming:
			h.dispatch(ev)
		}
	}
}

// Emit hands an event to the dispatcher. It never blocks the caller (the
// kernel) beyond the capacity of the internal queue, and never calls back
// into the kernel, satisfying spec.md §5's "no cross-lock wait
// dependencies" rule.
func (h *Hub) Emit(ev Event) {
	select {
	case h.incoming <- ev:
	default:
		log.Warn().Str("type", string(ev.Type)).Msg("hub: incoming queue full, dropping event")
	}
}

// Register adds a new subscriber and returns it.
func (h *Hub) Register() *Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	sub := &Subscriber{
		id:     h.nextID,
		outbox: make(chan Event, subscriberBufferSize),
		wants:  make(map[string]bool),
	}
	h.subscribers[sub.id] = sub
	return sub
}

// Unregister removes a subscriber and closes its outbox.
func (h *Hub) Unregister(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unregisterLocked(sub)
}

func (h *Hub) unregisterLocked(sub *Subscriber) {
	if _, ok := h.subscribers[sub.id]; !ok {
		return
	}
	delete(h.subscribers, sub.id)
	sub.mu.Lock()
	if !sub.closed {
		close(sub.outbox)
		sub.closed = true
	}
	sub.mu.Unlock()
}

// Broadcast delivers ev to every subscriber, dropping any whose buffer is
// full (spec.md §4.6).
func (h *Hub) Broadcast(ev Event) {
	h.dispatchTo(func(*Subscriber) bool { return true }, ev)
}

// BroadcastChannel delivers ev only to subscribers of channel.
func (h *Hub) BroadcastChannel(channel string, ev Event) {
	ev.Channel = channel
	h.dispatchTo(func(s *Subscriber) bool { return s.wantsChannel(channel) }, ev)
}

func (h *Hub) dispatch(ev Event) {
	if ev.Channel != "" {
		h.BroadcastChannel(ev.Channel, ev)
		return
	}
	h.Broadcast(ev)
}

func (h *Hub) dispatchTo(match func(*Subscriber) bool, ev Event) {
	h.mu.RLock()
	targets := make([]*Subscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		if broadcastTypes[ev.Type] || match(sub) {
			targets = append(targets, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range targets {
		select {
		case sub.outbox <- ev:
		default:
			log.Warn().Uint64("subscriberID", sub.id).Msg("hub: subscriber buffer full, dropping subscriber")
			h.Unregister(sub)
		}
	}
}

// Count returns the number of currently registered subscribers, useful for
// diagnostics/tests.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
