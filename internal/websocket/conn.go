package websocket

import (
	"context"
	"errors"
	"net/http"
	"time"

	ws "github.com/coder/websocket"
)

const (
	sendBuffer   = 16
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// view is one connected feed consumer.
type view struct {
	send chan []byte
}

func newView() *view {
	return &view{send: make(chan []byte, sendBuffer)}
}

func (v *view) enqueue(data []byte) bool {
	select {
	case v.send <- data:
		return true
	default:
		return false
	}
}

// ServeHTTP upgrades the request and streams feed messages until the view
// goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{
		InsecureSkipVerify: true, // the client API only listens for the local user
	})
	if err != nil {
		h.logger.Warn("accept", "error", err)
		return
	}
	defer conn.CloseNow()

	v := newView()
	h.attach(v)
	defer h.detach(v)

	// Views never send. CloseRead answers pings and cancels ctx once the
	// peer closes.
	ctx := conn.CloseRead(r.Context())
	if err := v.stream(ctx, conn); err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Debug("view disconnected", "error", err)
	}
}

func (v *view) stream(ctx context.Context, conn *ws.Conn) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-v.send:
			if !ok {
				return nil
			}
			if err := withTimeout(ctx, func(ctx context.Context) error {
				return conn.Write(ctx, ws.MessageText, data)
			}); err != nil {
				return err
			}
		case <-ticker.C:
			if err := withTimeout(ctx, conn.Ping); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func withTimeout(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return fn(ctx)
}
