// Package hub fans committed booking changes out to every connected subscriber.
//
// Delivery is at-most-once and fire-and-forget: a subscriber whose buffer is full misses the
// event, and nothing is replayed to late joiners. Views catch up by fetching the full log after
// subscribing.
package hub

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/diagnosis/goodvibes-bookings/internal/domain"
	"github.com/diagnosis/goodvibes-bookings/pkg/logger"
	"github.com/diagnosis/goodvibes-bookings/pkg/metrics"
)

type EventType string

const (
	EventBookingAdded     EventType = "booking_added"
	EventBookingCancelled EventType = "booking_cancelled"
)

// Event is the single frame shape on the realtime channel.
type Event struct {
	Type    EventType      `json:"type"`
	Booking domain.Booking `json:"booking"`
	// Origin names the hub instance that committed the change; set only on relayed events.
	Origin string `json:"origin,omitempty"`
}

// Sink receives every locally published event after fan-out, e.g. to reach other processes.
// Sink errors are logged and never reach the publisher.
type Sink interface {
	Forward(ctx context.Context, ev Event) error
}

const DefaultBuffer = 64

type Hub struct {
	mu     sync.Mutex
	subs   map[int64]*Subscriber
	nextID atomic.Int64
	buffer int
	sinks  []Sink
	origin string
	m      *metrics.Metrics
}

func New(buffer int, m *metrics.Metrics) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		subs:   make(map[int64]*Subscriber, 64),
		buffer: buffer,
		origin: uuid.NewString(),
		m:      m,
	}
}

// Origin identifies this hub among peers sharing a sink.
func (h *Hub) Origin() string { return h.origin }

func (h *Hub) AddSink(s Sink) {
	h.mu.Lock()
	h.sinks = append(h.sinks, s)
	h.mu.Unlock()
}

// Subscribe registers a new subscriber. Events published after Subscribe returns are
// delivered to it, buffer permitting.
func (h *Hub) Subscribe() *Subscriber {
	s := &Subscriber{
		id:  h.nextID.Add(1),
		ch:  make(chan Event, h.buffer),
		hub: h,
	}
	h.mu.Lock()
	h.subs[s.id] = s
	n := len(h.subs)
	h.mu.Unlock()
	h.m.HubSubscribers.Set(float64(n))
	return s
}

// Publish delivers ev to every current subscriber, then to sinks. It returns how many
// subscribers accepted the event.
func (h *Hub) Publish(ctx context.Context, ev Event) int {
	delivered := h.fanOut(ctx, ev)

	h.mu.Lock()
	sinks := append([]Sink(nil), h.sinks...)
	h.mu.Unlock()
	for _, s := range sinks {
		if err := s.Forward(ctx, ev); err != nil {
			logger.WarnContext(ctx, "hub sink forward failed", "type", ev.Type, "booking_id", ev.Booking.ID, "error", err)
		}
	}
	return delivered
}

// PublishRelayed fans out an event that another instance committed. It is not forwarded to
// sinks again.
func (h *Hub) PublishRelayed(ctx context.Context, ev Event) int {
	if ev.Origin == h.origin {
		return 0
	}
	return h.fanOut(ctx, ev)
}

func (h *Hub) fanOut(ctx context.Context, ev Event) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for id, s := range h.subs {
		select {
		case s.ch <- ev:
			delivered++
		default:
			h.m.HubEventsDropped.Inc()
			logger.WarnContext(ctx, "subscriber buffer full, event dropped", "subscriber", id, "type", ev.Type, "booking_id", ev.Booking.ID)
		}
	}
	h.m.HubEventsPublished.WithLabelValues(string(ev.Type)).Inc()
	return delivered
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := make([]*Subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()
	for _, s := range subs {
		s.Close()
	}
}

func (h *Hub) remove(s *Subscriber) {
	h.mu.Lock()
	if _, ok := h.subs[s.id]; ok {
		delete(h.subs, s.id)
		close(s.ch)
	}
	n := len(h.subs)
	h.mu.Unlock()
	h.m.HubSubscribers.Set(float64(n))
}

type Subscriber struct {
	id   int64
	ch   chan Event
	hub  *Hub
	once sync.Once
}

func (s *Subscriber) ID() int64 { return s.id }

// C is closed once the subscriber is removed from the hub.
func (s *Subscriber) C() <-chan Event { return s.ch }

func (s *Subscriber) Close() {
	s.once.Do(func() { s.hub.remove(s) })
}
