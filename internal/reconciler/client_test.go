package reconciler_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagnosis/goodvibes-bookings/internal/domain"
	"github.com/diagnosis/goodvibes-bookings/internal/hub"
	"github.com/diagnosis/goodvibes-bookings/internal/reconciler"
)

// streamServer serves snapshot on /bookings and writes frames on /ws, then closes normally.
func streamServer(t *testing.T, snapshot []domain.Booking, frames []hub.Event) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/bookings", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snapshot)
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for _, ev := range frames {
			if err := c.WriteJSON(ev); err != nil {
				return
			}
		}
		_ = c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		// wait for the client's close reply
		c.SetReadDeadline(time.Now().Add(2 * time.Second))
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func runClient(t *testing.T, srv *httptest.Server, m *reconciler.Mirror) ([]domain.Notification, error) {
	t.Helper()
	c, err := reconciler.NewClient(srv.URL, m)
	require.NoError(t, err)
	var notes []domain.Notification
	c.OnNotify = func(n domain.Notification) { notes = append(notes, n) }

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = c.Run(ctx)
	return notes, err
}

func TestRunMergesEveryFrameBeforeNormalClose(t *testing.T) {
	const n = 20
	frames := make([]hub.Event, 0, n)
	for i := 0; i < n; i++ {
		frames = append(frames, addedEv(bk(fmt.Sprintf("b%02d", i), "Sam", "2024-05-01", fmt.Sprintf("%02d:00", i%24))))
	}
	srv := streamServer(t, []domain.Booking{}, frames)
	m := reconciler.NewMirror(domain.DefaultCatalog(), reconciler.DedupID)

	notes, err := runClient(t, srv, m)
	require.NoError(t, err)
	assert.Len(t, m.Bookings(), n)
	assert.Len(t, notes, n)
}

func TestRunBookingCoveredBySnapshotDoesNotNotify(t *testing.T) {
	x := bk("x", "Sam", "2024-05-01", "14:30")
	srv := streamServer(t, []domain.Booking{x}, []hub.Event{addedEv(x)})
	m := reconciler.NewMirror(domain.DefaultCatalog(), reconciler.DedupSlot)

	notes, err := runClient(t, srv, m)
	require.NoError(t, err)
	require.Len(t, m.Bookings(), 1)
	assert.Equal(t, "x", m.Bookings()[0].ID)
	assert.Empty(t, notes)
	assert.Empty(t, m.Notifications())
}
