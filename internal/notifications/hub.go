package notifications

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"nokoroa/internal/events"
	"nokoroa/internal/observability"

	"github.com/gofiber/websocket/v2"
)

// DefaultMaxConns bounds concurrent feed subscribers per instance.
const DefaultMaxConns = 10000

// ErrHubFull is returned by Register when the connection limit is reached.
var ErrHubFull = errors.New("feed connection limit reached")

// ErrHubClosed is returned by Register after Shutdown.
var ErrHubClosed = errors.New("feed hub is shut down")

// FeedHub fans public post events out to connected WebSocket clients.
type FeedHub struct {
	mu       sync.RWMutex
	clients  map[*Client]struct{}
	maxConns int
	closed   bool
}

// NewFeedHub creates a hub accepting up to maxConns clients (DefaultMaxConns
// when not positive).
func NewFeedHub(maxConns int) *FeedHub {
	if maxConns <= 0 {
		maxConns = DefaultMaxConns
	}
	return &FeedHub{
		clients:  make(map[*Client]struct{}),
		maxConns: maxConns,
	}
}

// Register adds a connection. conn may be nil in tests.
func (h *FeedHub) Register(userID uint, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}
	if len(h.clients) >= h.maxConns {
		return nil, ErrHubFull
	}

	client := newClient(h, conn, userID)
	h.clients[client] = struct{}{}
	observability.FeedConnections.Inc()
	return client, nil
}

// Unregister removes a client and closes its send channel. Safe to call twice.
func (h *FeedHub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.outbox)
	observability.FeedConnections.Dec()
}

// Len reports the number of connected clients.
func (h *FeedHub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends payload to every client without blocking on slow ones.
func (h *FeedHub) Broadcast(payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.TrySend(payload)
	}
}

// Deliver forwards an encoded post event. Private posts and undecodable
// payloads are not broadcast.
func (h *FeedHub) Deliver(payload string) {
	e, err := events.Decode([]byte(payload))
	if err != nil {
		slog.Warn("dropping malformed feed payload", slog.String("error", err.Error()))
		return
	}
	if !e.IsPublic {
		return
	}
	h.Broadcast([]byte(payload))
}

// StartWiring subscribes the hub to the shared post-event channel.
func (h *FeedHub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartFeedSubscriber(ctx, h.Deliver)
}

// Shutdown closes every connection and refuses new ones.
func (h *FeedHub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for client := range h.clients {
		if client.conn != nil {
			if err := client.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down")); err != nil {
				slog.Debug("feed close frame failed", slog.String("error", err.Error()))
			}
			_ = client.conn.Close()
		}
		close(client.outbox)
		delete(h.clients, client)
		observability.FeedConnections.Dec()
	}
	return nil
}
