package api

import (
	"github.com/gofiber/contrib/v3/websocket"
	"github.com/gofiber/fiber/v3"

	"github.com/ecto-chat/ecto-server/internal/gateway"
)

// GatewayHandler upgrades HTTP requests to the realtime sockets: /ws for the
// full session gateway and /notify for the lightweight notification feed.
// Both sockets authenticate in-band after the upgrade.
type GatewayHandler struct {
	sessions *gateway.Handler
	notify   *gateway.NotifyHub
}

// NewGatewayHandler creates a new websocket upgrade handler.
func NewGatewayHandler(sessions *gateway.Handler, notify *gateway.NotifyHub) *GatewayHandler {
	return &GatewayHandler{sessions: sessions, notify: notify}
}

// Upgrade rejects plain HTTP requests on websocket routes.
func (h *GatewayHandler) Upgrade(c fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Gateway handles GET /ws.
func (h *GatewayHandler) Gateway(c fiber.Ctx) error {
	return websocket.New(func(conn *websocket.Conn) {
		h.sessions.ServeWS(conn.Conn)
	})(c)
}

// Notify handles GET /notify.
func (h *GatewayHandler) Notify(c fiber.Ctx) error {
	return websocket.New(func(conn *websocket.Conn) {
		h.notify.ServeWS(conn.Conn)
	})(c)
}
