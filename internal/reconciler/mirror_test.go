package reconciler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagnosis/goodvibes-bookings/internal/domain"
	"github.com/diagnosis/goodvibes-bookings/internal/hub"
	"github.com/diagnosis/goodvibes-bookings/internal/reconciler"
)

func sid(s string) *string { return &s }

func bk(id, name, date, start string) domain.Booking {
	return domain.Booking{
		ID: id, CustomerName: name, ServiceID: sid("1"), Date: date, StartTime: start, EndTime: "23:00",
		Status: domain.BookingActive, Type: domain.TypeBooking, Price: 35,
	}
}

func addedEv(b domain.Booking) hub.Event { return hub.Event{Type: hub.EventBookingAdded, Booking: b} }

func TestBootstrapReplacesWholesale(t *testing.T) {
	m := reconciler.NewMirror(domain.DefaultCatalog(), reconciler.DedupSlot)
	m.Bootstrap([]domain.Booking{bk("a", "A", "2024-05-01", "09:00")})
	m.Bootstrap([]domain.Booking{bk("b", "B", "2024-05-01", "10:00"), bk("c", "C", "2024-05-01", "11:00")})

	got := m.Bookings()
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Empty(t, m.Notifications(), "snapshots never notify")
}

func TestMergeIgnoresKnownIDs(t *testing.T) {
	m := reconciler.NewMirror(domain.DefaultCatalog(), reconciler.DedupSlot)
	m.Bootstrap([]domain.Booking{bk("a", "A", "2024-05-01", "09:00")})

	applied, note := m.Merge(addedEv(bk("a", "A", "2024-05-01", "09:00")))
	assert.False(t, applied)
	assert.Nil(t, note)

	applied, note = m.Merge(addedEv(bk("b", "Sam", "2024-05-01", "14:30")))
	assert.True(t, applied)
	require.NotNil(t, note)
	assert.Equal(t, "New booking: Sam at 14:30", note.Message)
	assert.Equal(t, "Standard Haircut", note.Details.ServiceName)
	assert.Len(t, m.Bookings(), 2)
}

func TestMergeCancel(t *testing.T) {
	m := reconciler.NewMirror(domain.DefaultCatalog(), reconciler.DedupSlot)
	m.Bootstrap([]domain.Booking{bk("a", "A", "2024-05-01", "09:00")})

	b := bk("a", "A", "2024-05-01", "09:00")
	b.Status = domain.BookingCancelled
	applied, note := m.Merge(hub.Event{Type: hub.EventBookingCancelled, Booking: b})
	assert.True(t, applied)
	require.NotNil(t, note)
	assert.Equal(t, domain.NotifyBookingCancelled, note.Kind)
	assert.Equal(t, domain.BookingCancelled, m.Bookings()[0].Status)

	applied, _ = m.Merge(hub.Event{Type: hub.EventBookingCancelled, Booking: b})
	assert.False(t, applied, "repeat cancels change nothing")

	unknown := bk("z", "Z", "2024-05-01", "12:00")
	applied, note = m.Merge(hub.Event{Type: hub.EventBookingCancelled, Booking: unknown})
	assert.True(t, applied)
	assert.Nil(t, note)
	assert.Equal(t, domain.BookingCancelled, m.Bookings()[1].Status)
}

func TestBlocksDoNotNotify(t *testing.T) {
	m := reconciler.NewMirror(domain.DefaultCatalog(), reconciler.DedupSlot)
	block := domain.Booking{ID: "blk", CustomerName: "Blocked", Date: "2024-05-01", StartTime: "12:00", EndTime: "13:00",
		Status: domain.BookingActive, Type: domain.TypeBlock}
	applied, note := m.Merge(addedEv(block))
	assert.True(t, applied)
	assert.Nil(t, note)
}

func TestNotificationDedupPolicies(t *testing.T) {
	first := bk("1", "Sam", "2024-05-01", "14:30")
	sameSlot := bk("2", "Sam", "2024-05-01", "14:30")

	slot := reconciler.NewMirror(domain.DefaultCatalog(), reconciler.DedupSlot)
	_, n1 := slot.Merge(addedEv(first))
	_, n2 := slot.Merge(addedEv(sameSlot))
	assert.NotNil(t, n1)
	assert.Nil(t, n2, "same customer, date and start time is one notification")
	assert.Len(t, slot.Bookings(), 2, "the record itself is still merged")

	byID := reconciler.NewMirror(domain.DefaultCatalog(), reconciler.DedupID)
	_, n1 = byID.Merge(addedEv(first))
	_, n2 = byID.Merge(addedEv(sameSlot))
	assert.NotNil(t, n1)
	assert.NotNil(t, n2)
	assert.Len(t, byID.Notifications(), 2)
}

func TestUnreadAndMarkAllRead(t *testing.T) {
	m := reconciler.NewMirror(domain.DefaultCatalog(), reconciler.DedupSlot)
	m.Merge(addedEv(bk("1", "A", "2024-05-01", "09:00")))
	m.Merge(addedEv(bk("2", "B", "2024-05-01", "10:00")))
	assert.Equal(t, 2, m.UnreadCount())
	assert.Equal(t, "2", m.Notifications()[0].BookingID, "newest first")

	m.MarkAllRead()
	assert.Equal(t, 0, m.UnreadCount())
}

func TestParseDedupPolicy(t *testing.T) {
	p, ok := reconciler.ParseDedupPolicy("")
	assert.True(t, ok)
	assert.Equal(t, reconciler.DedupSlot, p)
	p, ok = reconciler.ParseDedupPolicy("ID")
	assert.True(t, ok)
	assert.Equal(t, reconciler.DedupID, p)
	_, ok = reconciler.ParseDedupPolicy("nope")
	assert.False(t, ok)
}
