package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/ecto-chat/ecto-server/internal/httputil"
	"github.com/ecto-chat/ecto-server/internal/store"
)

// HealthHandler serves the liveness probe.
type HealthHandler struct {
	db *store.DB
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(db *store.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// Health handles GET /health. Reports degraded with 503 when the database
// does not answer within three seconds.
func (h *HealthHandler) Health(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c, 3*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		return httputil.SuccessStatus(c, fiber.StatusServiceUnavailable, fiber.Map{
			"status":   "degraded",
			"database": err.Error(),
		})
	}
	return httputil.Success(c, fiber.Map{"status": "ok"})
}
