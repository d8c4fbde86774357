package notifications

import (
	"log/slog"
	"sync/atomic"
	"time"

	"nokoroa/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10

	// Subscribers only send control frames.
	maxInboundBytes = 512

	outboxSize = 64
)

// lagNotice tells a subscriber that events were dropped and it should
// re-fetch the first page.
var lagNotice = []byte(`{"type":"events_dropped","payload":{"reason":"buffer_full"}}`)

// Client is one feed subscriber. conn is nil when the hub is driven without
// a socket.
type Client struct {
	hub    *FeedHub
	conn   *websocket.Conn
	outbox chan []byte
	lagged atomic.Bool

	// UserID is 0 for anonymous subscribers.
	UserID uint
}

func newClient(hub *FeedHub, conn *websocket.Conn, userID uint) *Client {
	return &Client{hub: hub, conn: conn, UserID: userID, outbox: make(chan []byte, outboxSize)}
}

// Serve streams queued events to the socket until the peer leaves or the hub
// closes the client. It blocks for the life of the connection.
func (c *Client) Serve() {
	go c.writeLoop()
	c.readLoop()
}

func (c *Client) readLoop() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxInboundBytes)
	extend := func(string) error { return c.conn.SetReadDeadline(time.Now().Add(pongWait)) }
	_ = extend("")
	c.conn.SetPongHandler(extend)

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Debug("feed subscriber gone", slog.Uint64("user_id", uint64(c.UserID)), slog.String("error", err.Error()))
			}
			return
		}
	}
}

func (c *Client) writeLoop() {
	ping := time.NewTicker(pingInterval)
	defer func() {
		ping.Stop()
		_ = c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case msg, open := <-c.outbox:
			if !open {
				_ = write(websocket.CloseMessage, nil)
				return
			}
			if err := write(websocket.TextMessage, msg); err != nil {
				return
			}
			if c.lagged.Swap(false) {
				if err := write(websocket.TextMessage, lagNotice); err != nil {
					return
				}
			}
		case <-ping.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// TrySend queues an event without blocking. A full outbox drops the event and
// flags the subscriber so the writer follows up with lagNotice.
func (c *Client) TrySend(msg []byte) {
	defer func() {
		// outbox already closed by Unregister
		if recover() != nil {
			observability.FeedBackpressureDrops.Inc()
		}
	}()

	select {
	case c.outbox <- msg:
	default:
		c.lagged.Store(true)
		observability.FeedBackpressureDrops.Inc()
	}
}
