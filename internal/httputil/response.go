package httputil

import (
	"github.com/gofiber/fiber/v3"

	"github.com/ecto-chat/ecto-server/internal/wire"
)

// SuccessResponse wraps successful API responses.
type SuccessResponse struct {
	Data any `json:"data"`
}

// ErrorResponse is the flat error envelope every failed request returns.
type ErrorResponse struct {
	Error string    `json:"ecto_error"`
	Code  wire.Code `json:"ecto_code"`
}

// Success sends a 200 JSON response with the given data.
func Success(c fiber.Ctx, data any) error {
	return c.JSON(SuccessResponse{Data: data})
}

// SuccessStatus sends a JSON response with a custom status code.
func SuccessStatus(c fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(SuccessResponse{Data: data})
}

// Fail sends a JSON error response with the given status, ecto code, and message.
func Fail(c fiber.Ctx, status int, code wire.Code, message string) error {
	return c.Status(status).JSON(ErrorResponse{Error: message, Code: code})
}
