// Package api implements the HTTP surface: REST handlers under /api/v1,
// file upload and serving endpoints, the public webhook endpoint, and the
// WebSocket upgrade routes for the gateway and notify sockets.
package api

import (
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/ecto-chat/ecto-server/internal/httputil"
	"github.com/ecto-chat/ecto-server/internal/wire"
)

// currentUser extracts the authenticated user id placed in locals by the
// auth middleware. The bool is false on routes that skipped authentication.
func currentUser(c fiber.Ctx) (uuid.UUID, bool) {
	userID, ok := c.Locals("userID").(uuid.UUID)
	return userID, ok
}

// mustUser is currentUser plus the standard 401 response.
func mustUser(c fiber.Ctx) (uuid.UUID, error) {
	userID, ok := currentUser(c)
	if !ok {
		return uuid.Nil, httputil.Fail(c, fiber.StatusUnauthorized, wire.Unauthorized, "Missing user identity")
	}
	return userID, nil
}

// parseParamID parses a UUID route parameter, failing with a validation
// error on malformed input.
func parseParamID(c fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid "+name+" format")
	}
	return id, nil
}

func internalError(c fiber.Ctx) error {
	return httputil.Fail(c, fiber.StatusInternalServerError, wire.Internal, "An internal error occurred")
}

func forbidden(c fiber.Ctx) error {
	return httputil.Fail(c, fiber.StatusForbidden, wire.Forbidden, "Insufficient permissions")
}
