package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ecto-chat/ecto-server/internal/user"
)

// centralCacheTTL bounds how long a verified central token is trusted without
// asking the platform again.
const centralCacheTTL = 5 * time.Minute

// centralTimeout caps a single verify-token round trip.
const centralTimeout = 5 * time.Second

// CentralIdentity is the platform's answer for a valid token.
type CentralIdentity struct {
	UserID        uuid.UUID
	Username      string
	Discriminator string
	DisplayName   string
	AvatarURL     string
}

// CachedProfile converts the identity to a cached profile row.
func (ci *CentralIdentity) CachedProfile() user.CachedProfile {
	return user.CachedProfile{
		UserID:        ci.UserID,
		Username:      ci.Username,
		Discriminator: ci.Discriminator,
		DisplayName:   ci.DisplayName,
		AvatarURL:     ci.AvatarURL,
	}
}

// CentralVerifier validates bearer tokens against the central platform's
// verify-token endpoint, caching positive answers. Negative answers are never
// cached; a token that just became valid should not stay rejected.
type CentralVerifier struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger

	mu    sync.Mutex
	cache map[string]centralCacheEntry

	// now is stubbed in tests to drive cache expiry.
	now func() time.Time
}

type centralCacheEntry struct {
	identity CentralIdentity
	expires  time.Time
}

// NewCentralVerifier creates a verifier for the platform at the given base
// URL.
func NewCentralVerifier(baseURL string, logger zerolog.Logger) *CentralVerifier {
	return &CentralVerifier{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: centralTimeout},
		log:     logger,
		cache:   make(map[string]centralCacheEntry),
		now:     time.Now,
	}
}

// Verify checks a token with the platform. Rejected tokens return
// ErrInvalidToken; transport failures are returned as distinct errors so
// callers can log an unreachable platform apart from a plain rejection.
func (v *CentralVerifier) Verify(ctx context.Context, token string) (*CentralIdentity, error) {
	if identity, ok := v.cached(token); ok {
		return identity, nil
	}

	body, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return nil, fmt.Errorf("encode verify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/api/verify-token", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("contact central platform: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("central platform returned status %d", resp.StatusCode)
	}

	var payload struct {
		Valid       bool   `json:"valid"`
		UserID      string `json:"user_id"`
		Tag         string `json:"tag"`
		DisplayName string `json:"display_name"`
		AvatarURL   string `json:"avatar_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode verify response: %w", err)
	}

	if !payload.Valid {
		return nil, ErrInvalidToken
	}

	userID, err := uuid.Parse(payload.UserID)
	if err != nil {
		return nil, fmt.Errorf("central platform returned invalid user id %q: %w", payload.UserID, err)
	}

	username, discriminator, _ := strings.Cut(payload.Tag, "#")
	identity := CentralIdentity{
		UserID:        userID,
		Username:      username,
		Discriminator: discriminator,
		DisplayName:   payload.DisplayName,
		AvatarURL:     payload.AvatarURL,
	}

	v.store(token, identity)
	return &identity, nil
}

func (v *CentralVerifier) cached(token string) (*CentralIdentity, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	entry, ok := v.cache[token]
	if !ok {
		return nil, false
	}
	if v.now().After(entry.expires) {
		delete(v.cache, token)
		return nil, false
	}
	identity := entry.identity
	return &identity, true
}

func (v *CentralVerifier) store(token string, identity CentralIdentity) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cache[token] = centralCacheEntry{identity: identity, expires: v.now().Add(centralCacheTTL)}
}
