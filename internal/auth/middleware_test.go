package auth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/ecto-chat/ecto-server/internal/wire"
)

func authApp(svc *Service) *fiber.App {
	app := fiber.New()
	app.Use(RequireAuth(svc))
	app.Get("/test", func(c fiber.Ctx) error {
		id, ok := c.Locals("userID").(uuid.UUID)
		if !ok {
			return c.Status(http.StatusInternalServerError).SendString("userID not found in locals")
		}
		identityType, _ := c.Locals("identityType").(string)
		return c.SendString(id.String() + " " + identityType)
	})
	return app
}

func decodeEnvelope(t *testing.T, resp *http.Response) (string, int) {
	t.Helper()
	var body struct {
		Error string `json:"ecto_error"`
		Code  int    `json:"ecto_code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body.Error, body.Code
}

func TestRequireAuthNoHeader(t *testing.T) {
	t.Parallel()
	app := authApp(newTestService(newFakeUsers(), nil))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
	if _, code := decodeEnvelope(t, resp); code != int(wire.Unauthorized) {
		t.Errorf("ecto_code = %d, want %d", code, wire.Unauthorized)
	}
}

func TestRequireAuthBadFormat(t *testing.T) {
	t.Parallel()
	app := authApp(newTestService(newFakeUsers(), nil))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

func TestRequireAuthValid(t *testing.T) {
	t.Parallel()
	svc := newTestService(newFakeUsers(), nil)
	app := authApp(svc)

	userID := uuid.New()
	token, err := svc.IssueToken(context.Background(), userID, wire.IdentityLocal)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	want := userID.String() + " " + wire.IdentityLocal
	if string(body) != want {
		t.Errorf("body = %q, want %q", string(body), want)
	}
}

func TestRequireAuthExpiredToken(t *testing.T) {
	t.Parallel()
	svc := newTestService(newFakeUsers(), nil)
	app := authApp(svc)

	token, err := NewAccessToken(uuid.New(), wire.IdentityLocal, nil, testConfig().JWTSecret, -1*time.Second)
	if err != nil {
		t.Fatalf("NewAccessToken() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
	if message, _ := decodeEnvelope(t, resp); message != "Token has expired" {
		t.Errorf("ecto_error = %q, want %q", message, "Token has expired")
	}
}

func TestRequireAuthWrongSignature(t *testing.T) {
	t.Parallel()
	app := authApp(newTestService(newFakeUsers(), nil))

	token, err := NewAccessToken(uuid.New(), wire.IdentityLocal, nil, "a-completely-different-secret-key", 15*time.Minute)
	if err != nil {
		t.Fatalf("NewAccessToken() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}
