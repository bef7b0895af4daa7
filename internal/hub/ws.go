package hub

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/diagnosis/goodvibes-bookings/pkg/logger"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingEvery    = (pongTimeout * 9) / 10
	readLimit    = 1 << 10
)

// Serve upgrades the request to a websocket and streams hub events to it as JSON frames. The
// subscription is registered before the handshake completes, so a client that fetches the
// snapshot after connecting cannot miss a change committed in between.
func Serve(h *Hub) http.HandlerFunc {
	upgr := &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		// widgets are embedded on third-party pages and bookings are public
		CheckOrigin: func(*http.Request) bool { return true },
	}
	return func(w http.ResponseWriter, r *http.Request) {
		sub := h.Subscribe()
		defer sub.Close()
		ctx := context.WithValue(r.Context(), logger.ClientIDKey, sub.ID())

		wc, err := upgr.Upgrade(w, r, nil)
		if err != nil {
			logger.WarnContext(ctx, "hub ws upgrade failed", "error", err)
			return
		}
		logger.InfoContext(ctx, "realtime subscriber connected", "subscriber", sub.ID(), "remote_addr", r.RemoteAddr)

		done := make(chan struct{})
		go func() {
			defer close(done)
			write(context.WithoutCancel(ctx), wc, sub)
		}()
		read(wc)
		sub.Close()
		<-done
		logger.InfoContext(ctx, "realtime subscriber disconnected", "subscriber", sub.ID())
	}
}

// read drains control frames until the client goes away. Clients never send data frames.
func read(wc *websocket.Conn) {
	wc.SetReadLimit(readLimit)
	wc.SetReadDeadline(time.Now().Add(pongTimeout))
	wc.SetPongHandler(func(string) error {
		return wc.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	for {
		if _, _, err := wc.NextReader(); err != nil {
			return
		}
	}
}

func write(ctx context.Context, wc *websocket.Conn, sub *Subscriber) {
	t := time.NewTicker(pingEvery)
	defer t.Stop()
	defer wc.Close()
	for {
		select {
		case ev, ok := <-sub.C():
			if !ok {
				wc.SetWriteDeadline(time.Now().Add(writeTimeout))
				wc.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			wc.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := wc.WriteJSON(ev); err != nil {
				logger.DebugContext(ctx, "hub ws write failed", "subscriber", sub.ID(), "error", err)
				return
			}
		case <-t.C:
			wc.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := wc.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
