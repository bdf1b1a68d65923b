package httputil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/rs/zerolog"
)

func TestRequestLoggerLevels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		want   string
	}{
		{200, "info"},
		{201, "info"},
		{301, "info"},
		{400, "warn"},
		{404, "warn"},
		{500, "error"},
		{503, "error"},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			app := fiber.New()
			app.Use(RequestLogger(zerolog.New(&buf)))
			app.Get("/t", func(c fiber.Ctx) error {
				return c.SendStatus(tt.status)
			})

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/t", nil))
			if err != nil {
				t.Fatalf("app.Test() error = %v", err)
			}
			_ = resp.Body.Close()

			var entry map[string]any
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("parse log entry: %v\nraw: %s", err, buf.String())
			}
			if got := entry["level"]; got != tt.want {
				t.Errorf("level = %q, want %q", got, tt.want)
			}
			for _, field := range []string{"method", "path", "status", "latency", "ip"} {
				if _, ok := entry[field]; !ok {
					t.Errorf("log entry missing field %q", field)
				}
			}
		})
	}
}

func TestRequestLoggerRequestID(t *testing.T) {
	t.Parallel()

	run := func(t *testing.T, withRequestID bool) map[string]any {
		t.Helper()
		var buf bytes.Buffer
		app := fiber.New()
		if withRequestID {
			app.Use(requestid.New())
		}
		app.Use(RequestLogger(zerolog.New(&buf)))
		app.Get("/t", func(c fiber.Ctx) error {
			return c.SendStatus(http.StatusOK)
		})

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/t", nil))
		if err != nil {
			t.Fatalf("app.Test() error = %v", err)
		}
		_ = resp.Body.Close()

		var entry map[string]any
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("parse log entry: %v", err)
		}
		return entry
	}

	t.Run("with requestid middleware", func(t *testing.T) {
		t.Parallel()
		entry := run(t, true)
		if rid, ok := entry["request_id"].(string); !ok || rid == "" {
			t.Errorf("request_id = %v, want non-empty string", entry["request_id"])
		}
	})

	t.Run("without requestid middleware", func(t *testing.T) {
		t.Parallel()
		entry := run(t, false)
		if _, ok := entry["request_id"]; ok {
			t.Error("request_id present, want absent")
		}
	})
}
