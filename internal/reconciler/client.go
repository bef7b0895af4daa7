package reconciler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/diagnosis/goodvibes-bookings/internal/domain"
	"github.com/diagnosis/goodvibes-bookings/internal/hub"
	"github.com/diagnosis/goodvibes-bookings/pkg/logger"
)

// Client syncs a Mirror with a running booking server. It subscribes to the event stream
// before fetching the snapshot; events that arrive in between are merged afterwards and
// deduplicated by id.
type Client struct {
	base   *url.URL
	mirror *Mirror
	*websocket.Dialer
	HTTP *http.Client
	// OnNotify is called for every notification the stream produces, outside the mirror lock.
	OnNotify func(domain.Notification)

	ready chan struct{}
}

func NewClient(baseURL string, mirror *Mirror) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	return &Client{
		base:   u,
		mirror: mirror,
		Dialer: websocket.DefaultDialer,
		HTTP:   &http.Client{Timeout: 10 * time.Second},
		ready:  make(chan struct{}),
	}, nil
}

// Ready is closed once the snapshot has been applied.
func (c *Client) Ready() <-chan struct{} { return c.ready }

func (c *Client) wsURL() string {
	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += "/ws"
	return u.String()
}

// Run blocks until ctx is cancelled or the stream fails.
func (c *Client) Run(ctx context.Context) error {
	wc, _, err := c.DialContext(ctx, c.wsURL(), nil)
	if err != nil {
		return fmt.Errorf("dial event stream: %w", err)
	}
	defer wc.Close()

	// The reader closes events after its last frame; readErr is only read once events is drained.
	events := make(chan hub.Event, 256)
	var readErr error
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(events)
		for {
			var ev hub.Event
			if err := wc.ReadJSON(&ev); err != nil {
				readErr = err
				return
			}
			select {
			case events <- ev:
			case <-done:
				return
			}
		}
	}()

	snapshot, err := c.fetch(ctx)
	if err != nil {
		return err
	}
	c.mirror.Bootstrap(snapshot)
	close(c.ready)
	logger.InfoContext(ctx, "mirror bootstrapped", "bookings", len(snapshot))

	for {
		select {
		case <-ctx.Done():
			wc.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				if websocket.IsCloseError(readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return nil
				}
				return fmt.Errorf("read event stream: %w", readErr)
			}
			applied, note := c.mirror.Merge(ev)
			logger.DebugContext(ctx, "event merged", "type", ev.Type, "booking_id", ev.Booking.ID, "applied", applied)
			if note != nil && c.OnNotify != nil {
				c.OnNotify(*note)
			}
		}
	}
}

func (c *Client) fetch(ctx context.Context) ([]domain.Booking, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.String()+"/bookings", nil)
	if err != nil {
		return nil, err
	}
	res, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch bookings: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch bookings: unexpected status %d", res.StatusCode)
	}
	var out []domain.Booking
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode bookings: %w", err)
	}
	return out, nil
}
