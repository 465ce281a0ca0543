// Package wsfeed pushes a venue's change events to terminals over
// WebSocket. Handler is the server side; Client is the terminal side and
// satisfies feed.Subscriber.
package wsfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mmynk/tableside/internal/feed"
	"github.com/mmynk/tableside/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// VenueFunc resolves the venue a request may subscribe to. Returning an
// error rejects the upgrade with 401.
type VenueFunc func(r *http.Request) (string, error)

// Handler upgrades requests and streams the venue's events as JSON text
// messages until either side goes away.
type Handler struct {
	sub      feed.Subscriber
	venueOf  VenueFunc
	upgrader websocket.Upgrader
}

// NewHandler creates a Handler streaming from sub.
func NewHandler(sub feed.Subscriber, venueOf VenueFunc) *Handler {
	return &Handler{
		sub:     sub,
		venueOf: venueOf,
		upgrader: websocket.Upgrader{
			// Terminals are not browsers; origin is not meaningful.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	venueID, err := h.venueOf(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	if requested := r.URL.Query().Get("venue_id"); requested != "" && requested != venueID {
		http.Error(w, "venue mismatch", http.StatusForbidden)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Subscribe before upgrading so the terminal never misses an event
	// published between its snapshot and the first frame.
	events, err := h.sub.Subscribe(ctx, venueID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Feed upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	slog.Info("Feed connected", "venue_id", venueID, "remote", r.RemoteAddr)
	defer slog.Info("Feed disconnected", "venue_id", venueID, "remote", r.RemoteAddr)

	// Reader: handles pongs and notices the client going away.
	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
			return
		case ev, ok := <-events:
			if !ok {
				// Dropped by the bus; the terminal must resubscribe.
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "resubscribe"), time.Now().Add(writeWait))
				return
			}
			if ev.VenueID != venueID {
				slog.Warn("Feed event for another venue dropped", "venue_id", venueID, "event_venue_id", ev.VenueID)
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				slog.Warn("Feed write failed", "venue_id", venueID, "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Client subscribes to a server's /feed endpoint.
type Client struct {
	// URL is the ws:// or wss:// address of the feed endpoint.
	URL string

	// Header is sent with the handshake, typically Authorization.
	Header http.Header

	Dialer *websocket.Dialer
}

var _ feed.Subscriber = (*Client)(nil)

// Subscribe dials the feed and decodes events until ctx is done or the
// connection drops.
func (c *Client) Subscribe(ctx context.Context, venueID string) (<-chan feed.Event, error) {
	u, err := url.Parse(c.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid feed url: %w", err)
	}
	q := u.Query()
	q.Set("venue_id", venueID)
	u.RawQuery = q.Encode()

	dialer := c.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), c.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("feed handshake failed with %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("%w: failed to dial feed: %v", models.ErrUnavailable, err)
	}

	out := make(chan feed.Event, feed.DefaultBuffer)
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var ev feed.Event
			if err := json.Unmarshal(data, &ev); err != nil {
				slog.Error("Dropping malformed feed frame", "error", err)
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
