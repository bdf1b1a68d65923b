package member

import (
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/ecto-chat/ecto-server/internal/httputil"
	"github.com/ecto-chat/ecto-server/internal/wire"
)

// RequireMember returns Fiber middleware that blocks users without a
// membership row. Must be placed after RequireAuth so that c.Locals("userID")
// is populated.
func RequireMember(members Repository) fiber.Handler {
	return func(c fiber.Ctx) error {
		userID, ok := c.Locals("userID").(uuid.UUID)
		if !ok {
			return httputil.Fail(c, fiber.StatusUnauthorized, wire.Unauthorized, "Authentication required")
		}
		exists, err := members.Exists(c, userID)
		if err != nil {
			return httputil.Fail(c, fiber.StatusInternalServerError, wire.Internal, "An internal error occurred")
		}
		if !exists {
			return httputil.Fail(c, fiber.StatusForbidden, wire.NotAMember, "Server membership is required")
		}
		return c.Next()
	}
}
