package server

import (
	"errors"
	"log/slog"

	"nokoroa/internal/featureflags"
	"nokoroa/internal/middleware"
	"nokoroa/internal/models"
	"nokoroa/internal/notifications"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// FeedUpgrade admits WebSocket upgrades to the realtime feed when the feed
// is enabled for the caller and a hub is running.
func (s *Server) FeedUpgrade() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, _ := middleware.CurrentUserID(c)
		if s.feedHub == nil || !s.featureFlags.Enabled(featureflags.RealtimeFeed, userID) {
			return models.RespondWithError(c, fiber.StatusNotFound,
				models.NewNotFoundError("Feed", "realtime"))
		}
		if !websocket.IsWebSocketUpgrade(c) {
			return models.RespondWithError(c, fiber.StatusUpgradeRequired,
				errors.New("websocket upgrade required"))
		}
		return c.Next()
	}
}

// WebSocketFeedHandler streams public post events to the client.
// @Summary Realtime post feed
// @Description WebSocket stream of post_created, post_updated and post_deleted events for public posts
// @Tags feed
// @Router /ws/feed [get]
func (s *Server) WebSocketFeedHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		userID, _ := conn.Locals("userID").(uint)

		client, err := s.feedHub.Register(userID, conn)
		if err != nil {
			if errors.Is(err, notifications.ErrHubFull) {
				slog.Warn("feed connection rejected", slog.String("reason", err.Error()))
			}
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
			_ = conn.Close()
			return
		}

		client.Serve()
	})
}
