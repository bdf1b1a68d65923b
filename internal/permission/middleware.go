package permission

import (
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/ecto-chat/ecto-server/internal/httputil"
	"github.com/ecto-chat/ecto-server/internal/wire"
)

// RequireChannel returns middleware that checks whether the authenticated
// user holds the given bit in the channel named by the "channelID" route
// parameter.
func RequireChannel(svc *Service, perm Permission) fiber.Handler {
	return func(c fiber.Ctx) error {
		userID, ok := c.Locals("userID").(uuid.UUID)
		if !ok {
			return httputil.Fail(c, fiber.StatusUnauthorized, wire.Unauthorized, "Authentication required")
		}

		channelID, err := uuid.Parse(c.Params("channelID"))
		if err != nil {
			return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid channel ID format")
		}

		allowed, err := svc.HasChannelPermission(c, userID, channelID, perm)
		if err != nil {
			return httputil.Fail(c, fiber.StatusInternalServerError, wire.Internal, "Failed to check permissions")
		}
		if !allowed {
			return httputil.Fail(c, fiber.StatusForbidden, wire.Forbidden, "Insufficient permissions")
		}

		return c.Next()
	}
}

// RequireServer returns middleware that checks a server-level bit for the
// authenticated user.
func RequireServer(svc *Service, perm Permission) fiber.Handler {
	return func(c fiber.Ctx) error {
		userID, ok := c.Locals("userID").(uuid.UUID)
		if !ok {
			return httputil.Fail(c, fiber.StatusUnauthorized, wire.Unauthorized, "Authentication required")
		}

		allowed, err := svc.HasServerPermission(c, userID, perm)
		if err != nil {
			return httputil.Fail(c, fiber.StatusInternalServerError, wire.Internal, "Failed to check permissions")
		}
		if !allowed {
			return httputil.Fail(c, fiber.StatusForbidden, wire.Forbidden, "Insufficient permissions")
		}

		return c.Next()
	}
}
