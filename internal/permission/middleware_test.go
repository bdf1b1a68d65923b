package permission

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

func middlewareApp(svc *Service, userID *uuid.UUID, perm Permission) *fiber.App {
	app := fiber.New()
	app.Use(func(c fiber.Ctx) error {
		if userID != nil {
			c.Locals("userID", *userID)
		}
		return c.Next()
	})
	app.Get("/channels/:channelID/test", RequireChannel(svc, perm), func(c fiber.Ctx) error {
		return c.SendStatus(http.StatusOK)
	})
	app.Get("/server/test", RequireServer(svc, perm), func(c fiber.Ctx) error {
		return c.SendStatus(http.StatusOK)
	})
	return app
}

func TestRequireChannelAllowed(t *testing.T) {
	userID := uuid.New()
	channelID := uuid.New()

	st := newFakeStore()
	st.members[userID] = true
	st.channels[channelID] = nil
	st.roles = []RoleEntry{{ID: uuid.New(), Permissions: ReadMessages, IsDefault: true}}
	svc := newTestService(st)

	app := middlewareApp(svc, &userID, ReadMessages)
	req := httptest.NewRequest(http.MethodGet, "/channels/"+channelID.String()+"/test", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestRequireChannelDenied(t *testing.T) {
	userID := uuid.New()
	channelID := uuid.New()

	st := newFakeStore()
	st.members[userID] = true
	st.channels[channelID] = nil
	st.roles = []RoleEntry{{ID: uuid.New(), Permissions: ReadMessages, IsDefault: true}}
	svc := newTestService(st)

	app := middlewareApp(svc, &userID, ManageRoles)
	req := httptest.NewRequest(http.MethodGet, "/channels/"+channelID.String()+"/test", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}

	var body struct {
		Error string `json:"ecto_error"`
		Code  int    `json:"ecto_code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Code != 5001 {
		t.Errorf("ecto_code = %d, want 5001", body.Code)
	}
}

func TestRequireChannelMissingUser(t *testing.T) {
	st := newFakeStore()
	svc := newTestService(st)

	app := middlewareApp(svc, nil, ReadMessages)
	req := httptest.NewRequest(http.MethodGet, "/channels/"+uuid.NewString()+"/test", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

func TestRequireChannelBadID(t *testing.T) {
	userID := uuid.New()

	st := newFakeStore()
	svc := newTestService(st)

	app := middlewareApp(svc, &userID, ReadMessages)
	req := httptest.NewRequest(http.MethodGet, "/channels/not-a-uuid/test", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestRequireServerOwner(t *testing.T) {
	ownerID := uuid.New()

	st := newFakeStore()
	st.owner = &ownerID
	svc := newTestService(st)

	app := middlewareApp(svc, &ownerID, ManageServer)
	req := httptest.NewRequest(http.MethodGet, "/server/test", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestRequireServerNonMember(t *testing.T) {
	userID := uuid.New()

	st := newFakeStore()
	svc := newTestService(st)

	app := middlewareApp(svc, &userID, ManageServer)
	req := httptest.NewRequest(http.MethodGet, "/server/test", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}
}
