package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/ecto-chat/ecto-server/internal/httputil"
	"github.com/ecto-chat/ecto-server/internal/wire"
)

// Verifier authenticates a bearer token. Implemented by *Service.
type Verifier interface {
	VerifyToken(ctx context.Context, token string) (*Identity, error)
}

// RequireAuth returns Fiber middleware that authenticates the Authorization
// header and stores the user id in c.Locals("userID") and the identity type
// in c.Locals("identityType").
func RequireAuth(verifier Verifier) fiber.Handler {
	return func(c fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return httputil.Fail(c, fiber.StatusUnauthorized, wire.Unauthorized, "Missing authorization header")
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			return httputil.Fail(c, fiber.StatusUnauthorized, wire.Unauthorized, "Invalid authorization format")
		}

		identity, err := verifier.VerifyToken(c, token)
		if err != nil {
			message := "Invalid token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				message = "Token has expired"
			}
			return httputil.Fail(c, fiber.StatusUnauthorized, wire.Unauthorized, message)
		}

		c.Locals("userID", identity.UserID)
		c.Locals("identityType", identity.IdentityType)
		return c.Next()
	}
}
