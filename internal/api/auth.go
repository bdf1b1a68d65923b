package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/ecto-chat/ecto-server/internal/auth"
	"github.com/ecto-chat/ecto-server/internal/httputil"
	"github.com/ecto-chat/ecto-server/internal/user"
	"github.com/ecto-chat/ecto-server/internal/wire"
)

// AuthHandler serves local account registration and login.
type AuthHandler struct {
	auth *auth.Service
	log  zerolog.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(authSvc *auth.Service, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{auth: authSvc, log: logger}
}

// Register handles POST /api/v1/auth/register.
func (h *AuthHandler) Register(c fiber.Ctx) error {
	var req wire.RegisterRequest
	if err := c.Bind().Body(&req); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid request body")
	}

	result, err := h.auth.Register(c, auth.RegisterRequest{
		Username:    req.Username,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrLocalAccountsDisabled):
			return httputil.Fail(c, fiber.StatusForbidden, wire.Forbidden, "Local accounts are disabled on this server")
		case errors.Is(err, user.ErrUsernameTaken):
			return httputil.Fail(c, fiber.StatusConflict, wire.Validation, "Username is already taken")
		case errors.Is(err, auth.ErrUsernameLength),
			errors.Is(err, auth.ErrUsernameInvalidChars),
			errors.Is(err, auth.ErrPasswordTooShort),
			errors.Is(err, auth.ErrPasswordTooLong),
			errors.Is(err, user.ErrDisplayNameLength):
			return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, err.Error())
		}
		h.log.Error().Err(err).Str("handler", "auth").Msg("register failed")
		return internalError(c)
	}

	return httputil.SuccessStatus(c, fiber.StatusCreated, fiber.Map{
		"user":  result.User.Profile(),
		"token": result.Token,
	})
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(c fiber.Ctx) error {
	var req wire.LoginRequest
	if err := c.Bind().Body(&req); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid request body")
	}

	result, err := h.auth.Login(c, auth.LoginRequest{Username: req.Username, Password: req.Password})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrLocalAccountsDisabled):
			return httputil.Fail(c, fiber.StatusForbidden, wire.Forbidden, "Local accounts are disabled on this server")
		case errors.Is(err, auth.ErrInvalidCredentials):
			return httputil.Fail(c, fiber.StatusUnauthorized, wire.Unauthorized, "Invalid username or password")
		}
		h.log.Error().Err(err).Str("handler", "auth").Msg("login failed")
		return internalError(c)
	}

	return httputil.Success(c, fiber.Map{
		"user":  result.User.Profile(),
		"token": result.Token,
	})
}
