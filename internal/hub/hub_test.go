package hub_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagnosis/goodvibes-bookings/internal/domain"
	"github.com/diagnosis/goodvibes-bookings/internal/hub"
	"github.com/diagnosis/goodvibes-bookings/pkg/events"
	"github.com/diagnosis/goodvibes-bookings/pkg/metrics"
)

func newHub(buffer int) *hub.Hub {
	return hub.New(buffer, metrics.New(prometheus.NewRegistry()))
}

func added(id string) hub.Event {
	return hub.Event{Type: hub.EventBookingAdded, Booking: domain.Booking{ID: id, Status: domain.BookingActive}}
}

func TestPublishReachesEverySubscriberOnce(t *testing.T) {
	h := newHub(4)
	a, b := h.Subscribe(), h.Subscribe()
	defer a.Close()
	defer b.Close()

	n := h.Publish(context.Background(), added("x"))
	assert.Equal(t, 2, n)
	for _, s := range []*hub.Subscriber{a, b} {
		ev := <-s.C()
		assert.Equal(t, "x", ev.Booking.ID)
		select {
		case extra := <-s.C():
			t.Fatalf("unexpected second event %+v", extra)
		default:
		}
	}
}

func TestNoReplayForLateSubscribers(t *testing.T) {
	h := newHub(4)
	h.Publish(context.Background(), added("early"))
	late := h.Subscribe()
	defer late.Close()
	select {
	case ev := <-late.C():
		t.Fatalf("late subscriber got %+v", ev)
	default:
	}
}

func TestFullBufferDropsInsteadOfBlocking(t *testing.T) {
	h := newHub(1)
	slow := h.Subscribe()
	defer slow.Close()

	assert.Equal(t, 1, h.Publish(context.Background(), added("1")))
	assert.Equal(t, 0, h.Publish(context.Background(), added("2")), "publish must not block on a full subscriber")
	assert.Equal(t, "1", (<-slow.C()).Booking.ID)
}

func TestCloseRemovesSubscriber(t *testing.T) {
	h := newHub(1)
	s := h.Subscribe()
	assert.Equal(t, 1, h.Len())
	s.Close()
	s.Close()
	assert.Equal(t, 0, h.Len())
	_, ok := <-s.C()
	assert.False(t, ok)
	assert.Equal(t, 0, h.Publish(context.Background(), added("x")))
}

type recordingBus struct {
	mu       sync.Mutex
	subjects []string
	payloads []interface{}
	handler  func(*events.Message)
}

func (b *recordingBus) Publish(_ context.Context, subject string, data interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subjects = append(b.subjects, subject)
	b.payloads = append(b.payloads, data)
	return nil
}

func (b *recordingBus) Subscribe(_ string, handler func(*events.Message)) error {
	b.handler = handler
	return nil
}

func (b *recordingBus) Close() error { return nil }

func TestBusSinkAndRelay(t *testing.T) {
	bus := &recordingBus{}
	local := newHub(4)
	local.AddSink(hub.NewBusSink(bus, local.Origin()))

	local.Publish(context.Background(), hub.Event{Type: hub.EventBookingCancelled, Booking: domain.Booking{ID: "c"}})
	require.Equal(t, []string{events.BookingCancelled}, bus.subjects)
	assert.Equal(t, local.Origin(), bus.payloads[0].(hub.Event).Origin)

	peer := newHub(4)
	require.NoError(t, hub.Relay(peer, bus))
	sub := peer.Subscribe()
	defer sub.Close()

	bus.handler(&events.Message{Subject: events.BookingAdded, Data: []byte(`{"type":"booking_added","booking":{"id":"r"},"origin":"other"}`)})
	ev := <-sub.C()
	assert.Equal(t, "r", ev.Booking.ID)

	bus.handler(&events.Message{Subject: events.BookingAdded, Data: []byte(`{"type":"booking_added","booking":{"id":"own"},"origin":"` + peer.Origin() + `"}`)})
	bus.handler(&events.Message{Subject: events.BookingAdded, Data: []byte(`not json`)})
	select {
	case ev := <-sub.C():
		t.Fatalf("own or malformed event relayed: %+v", ev)
	default:
	}
}

func TestServeStreamsEvents(t *testing.T) {
	h := newHub(4)
	srv := httptest.NewServer(hub.Serve(h))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	wc, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer wc.Close()

	require.Eventually(t, func() bool { return h.Len() == 1 }, time.Second, 10*time.Millisecond)
	h.Publish(context.Background(), added("live"))

	wc.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev hub.Event
	require.NoError(t, wc.ReadJSON(&ev))
	assert.Equal(t, hub.EventBookingAdded, ev.Type)
	assert.Equal(t, "live", ev.Booking.ID)

	wc.Close()
	require.Eventually(t, func() bool { return h.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}
