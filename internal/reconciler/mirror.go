// Package reconciler keeps a client-side mirror of the booking log: a snapshot fetched over
// HTTP, merged with the live event stream, plus the notifications derived from it.
package reconciler

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/diagnosis/goodvibes-bookings/internal/domain"
	"github.com/diagnosis/goodvibes-bookings/internal/hub"
)

// DedupPolicy decides when a new booking repeats an earlier notification.
type DedupPolicy string

const (
	// DedupSlot treats bookings with the same customer, date and start time as one.
	DedupSlot DedupPolicy = "slot"
	DedupID   DedupPolicy = "id"
)

func ParseDedupPolicy(s string) (DedupPolicy, bool) {
	switch DedupPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case DedupSlot, "":
		return DedupSlot, true
	case DedupID:
		return DedupID, true
	default:
		return "", false
	}
}

type Mirror struct {
	mu       sync.Mutex
	bookings []domain.Booking
	index    map[string]int
	notes    []domain.Notification // newest first
	dedup    DedupPolicy
	catalog  *domain.Catalog
	now      func() time.Time
}

type Option func(*Mirror)

func WithClock(now func() time.Time) Option { return func(m *Mirror) { m.now = now } }

func NewMirror(catalog *domain.Catalog, dedup DedupPolicy, opts ...Option) *Mirror {
	m := &Mirror{
		index:   map[string]int{},
		dedup:   dedup,
		catalog: catalog,
		now:     time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Bootstrap replaces the local collection with snapshot. Notifications are kept; history in a
// snapshot never produces new ones.
func (m *Mirror) Bootstrap(snapshot []domain.Booking) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings = make([]domain.Booking, 0, len(snapshot))
	m.index = make(map[string]int, len(snapshot))
	for _, b := range snapshot {
		if _, dup := m.index[b.ID]; dup {
			continue
		}
		m.index[b.ID] = len(m.bookings)
		m.bookings = append(m.bookings, b)
	}
}

// Merge applies one live event. applied is false when the event changed nothing, e.g. a
// booking_added for an id the mirror already holds. note is set when the event produced a
// notification.
func (m *Mirror) Merge(ev hub.Event) (applied bool, note *domain.Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := ev.Booking
	i, known := m.index[b.ID]
	switch ev.Type {
	case hub.EventBookingAdded:
		if known {
			return false, nil
		}
		m.insert(b)
		if b.Type == domain.TypeBooking && b.IsActive() && !m.seen(b) {
			return true, m.notify(domain.NotifyBookingReceived, b)
		}
		return true, nil

	case hub.EventBookingCancelled:
		if !known {
			b.Status = domain.BookingCancelled
			m.insert(b)
			return true, nil
		}
		cur, changed := m.bookings[i].Cancel()
		if !changed {
			return false, nil
		}
		m.bookings[i] = cur
		if cur.Type == domain.TypeBooking {
			return true, m.notify(domain.NotifyBookingCancelled, cur)
		}
		return true, nil
	}
	return false, nil
}

func (m *Mirror) insert(b domain.Booking) {
	m.index[b.ID] = len(m.bookings)
	m.bookings = append(m.bookings, b)
}

func (m *Mirror) seen(b domain.Booking) bool {
	for _, n := range m.notes {
		if n.Kind != domain.NotifyBookingReceived {
			continue
		}
		switch m.dedup {
		case DedupID:
			if n.BookingID == b.ID {
				return true
			}
		default:
			if n.Details.CustomerName == b.CustomerName && n.Details.Date == b.Date && n.Details.Time == b.StartTime {
				return true
			}
		}
	}
	return false
}

func (m *Mirror) notify(kind domain.NotificationKind, b domain.Booking) *domain.Notification {
	serviceName := b.ServiceIDOr("")
	if svc, ok := m.catalog.Lookup(serviceName); ok {
		serviceName = svc.Name
	}
	msg := "New booking: " + b.CustomerName + " at " + b.StartTime
	if kind == domain.NotifyBookingCancelled {
		msg = "Booking cancelled: " + b.CustomerName + " at " + b.StartTime
	}
	n := domain.Notification{
		ID:        uuid.NewString(),
		BookingID: b.ID,
		Kind:      kind,
		Message:   msg,
		Details: domain.NotificationDetails{
			CustomerName:  b.CustomerName,
			CustomerEmail: b.CustomerEmail,
			ServiceName:   serviceName,
			Date:          b.Date,
			Time:          b.StartTime,
			Price:         b.Price,
		},
		Timestamp: m.now(),
	}
	m.notes = append([]domain.Notification{n}, m.notes...)
	return &n
}

// Bookings returns a copy of the mirrored collection in arrival order.
func (m *Mirror) Bookings() []domain.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Booking, len(m.bookings))
	copy(out, m.bookings)
	return out
}

// Notifications returns a copy, newest first.
func (m *Mirror) Notifications() []domain.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Notification, len(m.notes))
	copy(out, m.notes)
	return out
}

func (m *Mirror) UnreadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, note := range m.notes {
		if !note.Read {
			n++
		}
	}
	return n
}

func (m *Mirror) MarkAllRead() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.notes {
		m.notes[i].Read = true
	}
}
