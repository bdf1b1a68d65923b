package httputil

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
)

// RequestLogger returns middleware that logs one line per request through
// logger. Register it after the requestid middleware so the request ID is in
// Locals by the time the line is written.
func RequestLogger(logger zerolog.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		var event *zerolog.Event
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		default:
			event = logger.Info()
		}

		if rid, ok := c.Locals("requestid").(string); ok && rid != "" {
			event.Str("request_id", rid)
		}

		// "µs" renders badly in some terminals, log "us" instead.
		latency := strings.ReplaceAll(time.Since(start).String(), "µ", "u")

		event.
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Str("latency", latency).
			Str("ip", c.IP()).
			Msg("request")

		return err
	}
}
