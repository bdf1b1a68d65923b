package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// newCentralServer returns a fake platform that accepts exactly one token and
// counts how many verification requests it receives.
func newCentralServer(t *testing.T, validToken string, userID uuid.UUID, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/verify-token" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		hits.Add(1)

		var req struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		if req.Token != validToken {
			json.NewEncoder(w).Encode(map[string]any{"valid": false})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"valid":        true,
			"user_id":      userID.String(),
			"tag":          "spectre#0042",
			"display_name": "Spectre",
			"avatar_url":   "https://central.example/avatars/spectre.png",
		})
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestCentralVerifyValidToken(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	var hits atomic.Int64
	srv := newCentralServer(t, "good-token", userID, &hits)

	v := NewCentralVerifier(srv.URL, zerolog.Nop())
	identity, err := v.Verify(context.Background(), "good-token")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	if identity.UserID != userID {
		t.Errorf("UserID = %v, want %v", identity.UserID, userID)
	}
	if identity.Username != "spectre" || identity.Discriminator != "0042" {
		t.Errorf("tag parsed as %q#%q, want %q#%q", identity.Username, identity.Discriminator, "spectre", "0042")
	}
	if identity.DisplayName != "Spectre" {
		t.Errorf("DisplayName = %q, want %q", identity.DisplayName, "Spectre")
	}
}

func TestCentralVerifyCachesPositives(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := newCentralServer(t, "good-token", uuid.New(), &hits)

	v := NewCentralVerifier(srv.URL, zerolog.Nop())
	for range 3 {
		if _, err := v.Verify(context.Background(), "good-token"); err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
	}

	if got := hits.Load(); got != 1 {
		t.Errorf("platform contacted %d times, want 1 (positive results are cached)", got)
	}
}

func TestCentralVerifyCacheExpiry(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := newCentralServer(t, "good-token", uuid.New(), &hits)

	v := NewCentralVerifier(srv.URL, zerolog.Nop())
	now := time.Now()
	v.now = func() time.Time { return now }

	if _, err := v.Verify(context.Background(), "good-token"); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	now = now.Add(centralCacheTTL + time.Second)
	if _, err := v.Verify(context.Background(), "good-token"); err != nil {
		t.Fatalf("Verify() after expiry error = %v", err)
	}

	if got := hits.Load(); got != 2 {
		t.Errorf("platform contacted %d times, want 2 after cache expiry", got)
	}
}

func TestCentralVerifyInvalidTokenNotCached(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := newCentralServer(t, "good-token", uuid.New(), &hits)

	v := NewCentralVerifier(srv.URL, zerolog.Nop())
	for range 2 {
		_, err := v.Verify(context.Background(), "bad-token")
		if !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("Verify() error = %v, want ErrInvalidToken", err)
		}
	}

	if got := hits.Load(); got != 2 {
		t.Errorf("platform contacted %d times, want 2 (negatives are not cached)", got)
	}
}

func TestCentralVerifyPlatformError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	v := NewCentralVerifier(srv.URL, zerolog.Nop())
	_, err := v.Verify(context.Background(), "any-token")
	if err == nil {
		t.Fatal("Verify() against failing platform should return error")
	}
	if errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify() error = ErrInvalidToken, want a transport error for status 500")
	}
}

func TestCentralVerifyUnreachable(t *testing.T) {
	t.Parallel()

	// Port 1 is essentially never listening.
	v := NewCentralVerifier("http://127.0.0.1:1", zerolog.Nop())
	_, err := v.Verify(context.Background(), "any-token")
	if err == nil {
		t.Fatal("Verify() against unreachable platform should return error")
	}
}
