package hub

import (
	"context"
	"fmt"

	"github.com/diagnosis/goodvibes-bookings/pkg/events"
	"github.com/diagnosis/goodvibes-bookings/pkg/logger"
)

// BusSink forwards local events to an event bus so that peer instances sharing the same
// database can fan them out to their own subscribers.
type BusSink struct {
	bus    events.Publisher
	origin string
}

func NewBusSink(bus events.Publisher, origin string) *BusSink {
	return &BusSink{bus: bus, origin: origin}
}

func subjectFor(t EventType) (string, error) {
	switch t {
	case EventBookingAdded:
		return events.BookingAdded, nil
	case EventBookingCancelled:
		return events.BookingCancelled, nil
	default:
		return "", fmt.Errorf("no subject for event type %q", t)
	}
}

func (s *BusSink) Forward(ctx context.Context, ev Event) error {
	subject, err := subjectFor(ev.Type)
	if err != nil {
		return err
	}
	ev.Origin = s.origin
	return s.bus.Publish(ctx, subject, ev)
}

// Relay subscribes h to events committed by peers. Events that originated at h are ignored.
func Relay(h *Hub, bus events.Subscriber) error {
	return bus.Subscribe(events.BookingAll, func(msg *events.Message) {
		var ev Event
		if err := msg.Decode(&ev); err != nil {
			logger.Warn("dropping undecodable relayed event", "subject", msg.Subject, "error", err)
			return
		}
		if ev.Origin == "" || ev.Origin == h.Origin() {
			return
		}
		h.PublishRelayed(context.Background(), ev)
	})
}
