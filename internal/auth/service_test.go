package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ecto-chat/ecto-server/internal/config"
	"github.com/ecto-chat/ecto-server/internal/user"
	"github.com/ecto-chat/ecto-server/internal/wire"
)

// fakeUsers is an in-memory user.Repository.
type fakeUsers struct {
	mu       sync.Mutex
	byID     map[uuid.UUID]*user.LocalCredentials
	byName   map[string]*user.LocalCredentials
	upserted []user.CachedProfile
	rehashed map[uuid.UUID]string
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		byID:     make(map[uuid.UUID]*user.LocalCredentials),
		byName:   make(map[string]*user.LocalCredentials),
		rehashed: make(map[uuid.UUID]string),
	}
}

func (f *fakeUsers) CreateLocal(_ context.Context, params user.CreateLocalParams) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.byName[params.Username]; exists {
		return uuid.Nil, user.ErrUsernameTaken
	}
	creds := &user.LocalCredentials{
		LocalUser: user.LocalUser{
			ID:          uuid.New(),
			Username:    params.Username,
			DisplayName: params.DisplayName,
			CreatedAt:   time.Now().UTC(),
		},
		PasswordHash: params.PasswordHash,
	}
	f.byID[creds.ID] = creds
	f.byName[creds.Username] = creds
	return creds.ID, nil
}

func (f *fakeUsers) GetLocalByID(_ context.Context, id uuid.UUID) (*user.LocalUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	creds, ok := f.byID[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	u := creds.LocalUser
	return &u, nil
}

func (f *fakeUsers) GetLocalByUsername(_ context.Context, username string) (*user.LocalCredentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	creds, ok := f.byName[username]
	if !ok {
		return nil, user.ErrNotFound
	}
	c := *creds
	return &c, nil
}

func (f *fakeUsers) UpdateLocalPasswordHash(_ context.Context, userID uuid.UUID, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	creds, ok := f.byID[userID]
	if !ok {
		return user.ErrNotFound
	}
	creds.PasswordHash = hash
	f.rehashed[userID] = hash
	return nil
}

func (f *fakeUsers) UpdateLocalProfile(_ context.Context, userID uuid.UUID, params user.UpdateLocalProfileParams) (*user.LocalUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	creds, ok := f.byID[userID]
	if !ok {
		return nil, user.ErrNotFound
	}
	if params.DisplayName != nil {
		creds.DisplayName = *params.DisplayName
	}
	if params.AvatarURL != nil {
		creds.AvatarURL = *params.AvatarURL
	}
	u := creds.LocalUser
	return &u, nil
}

func (f *fakeUsers) UpsertCachedProfile(_ context.Context, profile user.CachedProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, profile)
	return nil
}

func (f *fakeUsers) GetProfile(ctx context.Context, id uuid.UUID) (*wire.Profile, error) {
	u, err := f.GetLocalByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p := u.Profile()
	return &p, nil
}

func (f *fakeUsers) GetProfiles(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]wire.Profile, error) {
	out := make(map[uuid.UUID]wire.Profile, len(ids))
	for _, id := range ids {
		if p, err := f.GetProfile(ctx, id); err == nil {
			out[id] = *p
		}
	}
	return out, nil
}

// fakeVersions serves a single member's token_version.
type fakeVersions struct {
	version  int
	isMember bool
	err      error
}

func (f *fakeVersions) TokenVersion(context.Context, uuid.UUID) (int, bool, error) {
	return f.version, f.isMember, f.err
}

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:          "test-secret-key-at-least-32-chars!",
		JWTAccessTTL:       2 * time.Hour,
		AllowLocalAccounts: true,
		Argon2Memory:       1024,
		Argon2Iterations:   1,
		Argon2Parallelism:  1,
	}
}

func newTestService(users *fakeUsers, versions TokenVersions) *Service {
	return NewService(users, nil, versions, testConfig(), zerolog.Nop())
}

func TestRegisterSuccess(t *testing.T) {
	t.Parallel()
	svc := newTestService(newFakeUsers(), nil)

	result, err := svc.Register(context.Background(), RegisterRequest{
		Username: "Ghost",
		Password: "password123",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if result.User.Username != "ghost" {
		t.Errorf("Username = %q, want lowercased %q", result.User.Username, "ghost")
	}

	identity, err := svc.VerifyToken(context.Background(), result.Token)
	if err != nil {
		t.Fatalf("VerifyToken() on fresh registration token error = %v", err)
	}
	if identity.UserID != result.User.ID {
		t.Errorf("UserID = %v, want %v", identity.UserID, result.User.ID)
	}
	if identity.IdentityType != wire.IdentityLocal {
		t.Errorf("IdentityType = %q, want %q", identity.IdentityType, wire.IdentityLocal)
	}
}

func TestRegisterDisabled(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.AllowLocalAccounts = false
	svc := NewService(newFakeUsers(), nil, nil, cfg, zerolog.Nop())

	_, err := svc.Register(context.Background(), RegisterRequest{Username: "ghost", Password: "password123"})
	if !errors.Is(err, ErrLocalAccountsDisabled) {
		t.Errorf("Register() error = %v, want ErrLocalAccountsDisabled", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	t.Parallel()
	svc := newTestService(newFakeUsers(), nil)

	tests := []struct {
		name    string
		req     RegisterRequest
		wantErr error
	}{
		{"short username", RegisterRequest{Username: "x", Password: "password123"}, ErrUsernameLength},
		{"bad username chars", RegisterRequest{Username: "bad name", Password: "password123"}, ErrUsernameInvalidChars},
		{"short password", RegisterRequest{Username: "ghost", Password: "short"}, ErrPasswordTooShort},
		{"long display name", RegisterRequest{Username: "ghost", Password: "password123", DisplayName: strings.Repeat("x", 40)}, user.ErrDisplayNameLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := svc.Register(context.Background(), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Register() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRegisterUsernameTaken(t *testing.T) {
	t.Parallel()
	svc := newTestService(newFakeUsers(), nil)

	if _, err := svc.Register(context.Background(), RegisterRequest{Username: "ghost", Password: "password123"}); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}

	_, err := svc.Register(context.Background(), RegisterRequest{Username: "GHOST", Password: "password456"})
	if !errors.Is(err, user.ErrUsernameTaken) {
		t.Errorf("second Register() error = %v, want ErrUsernameTaken", err)
	}
}

func TestLoginSuccess(t *testing.T) {
	t.Parallel()
	svc := newTestService(newFakeUsers(), nil)

	reg, err := svc.Register(context.Background(), RegisterRequest{Username: "ghost", Password: "password123"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	result, err := svc.Login(context.Background(), LoginRequest{Username: "GHOST", Password: "password123"})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if result.User.ID != reg.User.ID {
		t.Errorf("Login() user = %v, want %v", result.User.ID, reg.User.ID)
	}
	if result.Token == "" {
		t.Error("Login() returned empty token")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	t.Parallel()
	svc := newTestService(newFakeUsers(), nil)

	if _, err := svc.Register(context.Background(), RegisterRequest{Username: "ghost", Password: "password123"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	_, err := svc.Login(context.Background(), LoginRequest{Username: "ghost", Password: "wrong-password"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Login() error = %v, want ErrInvalidCredentials", err)
	}
}

func TestLoginUnknownUser(t *testing.T) {
	t.Parallel()
	svc := newTestService(newFakeUsers(), nil)

	_, err := svc.Login(context.Background(), LoginRequest{Username: "nobody", Password: "password123"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Login() error = %v, want ErrInvalidCredentials", err)
	}
}

func TestLoginRotatesOutdatedHash(t *testing.T) {
	t.Parallel()
	users := newFakeUsers()
	svc := newTestService(users, nil)

	// Seed an account whose hash was generated with different cost parameters.
	oldHash, err := HashPassword("password123", 2048, 2, 1)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	userID, err := users.CreateLocal(context.Background(), user.CreateLocalParams{
		Username:     "ghost",
		PasswordHash: oldHash,
	})
	if err != nil {
		t.Fatalf("CreateLocal() error = %v", err)
	}

	if _, err := svc.Login(context.Background(), LoginRequest{Username: "ghost", Password: "password123"}); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	newHash, rotated := users.rehashed[userID]
	if !rotated {
		t.Fatal("Login() did not rotate an outdated password hash")
	}
	if newHash == oldHash {
		t.Error("rotated hash equals the old hash")
	}
	if match, _ := VerifyPassword("password123", newHash); !match {
		t.Error("rotated hash does not verify the original password")
	}
}

func TestIssueTokenEmbedsMemberVersion(t *testing.T) {
	t.Parallel()
	svc := newTestService(newFakeUsers(), &fakeVersions{version: 5, isMember: true})

	token, err := svc.IssueToken(context.Background(), uuid.New(), wire.IdentityGlobal)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	claims, err := ValidateAccessToken(token, testConfig().JWTSecret)
	if err != nil {
		t.Fatalf("ValidateAccessToken() error = %v", err)
	}
	if claims.TokenVersion == nil || *claims.TokenVersion != 5 {
		t.Errorf("TokenVersion = %v, want 5", claims.TokenVersion)
	}
}

func TestIssueTokenNonMemberOmitsVersion(t *testing.T) {
	t.Parallel()
	svc := newTestService(newFakeUsers(), &fakeVersions{isMember: false})

	token, err := svc.IssueToken(context.Background(), uuid.New(), wire.IdentityGlobal)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	claims, err := ValidateAccessToken(token, testConfig().JWTSecret)
	if err != nil {
		t.Fatalf("ValidateAccessToken() error = %v", err)
	}
	if claims.TokenVersion != nil {
		t.Errorf("TokenVersion = %v, want nil for non-member", claims.TokenVersion)
	}
}

func TestVerifyTokenVersionMismatch(t *testing.T) {
	t.Parallel()
	versions := &fakeVersions{version: 2, isMember: true}
	svc := newTestService(newFakeUsers(), versions)

	token, err := svc.IssueToken(context.Background(), uuid.New(), wire.IdentityGlobal)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	// Token still carries version 2; a kick or ban has since bumped the row.
	versions.version = 3
	_, err = svc.VerifyToken(context.Background(), token)
	if !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("VerifyToken() error = %v, want ErrTokenRevoked", err)
	}
}

func TestVerifyTokenVersionMatch(t *testing.T) {
	t.Parallel()
	versions := &fakeVersions{version: 2, isMember: true}
	svc := newTestService(newFakeUsers(), versions)

	token, err := svc.IssueToken(context.Background(), uuid.New(), wire.IdentityGlobal)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	if _, err := svc.VerifyToken(context.Background(), token); err != nil {
		t.Errorf("VerifyToken() error = %v, want nil for matching version", err)
	}
}

func TestVerifyTokenExpired(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.JWTAccessTTL = -1 * time.Second
	svc := NewService(newFakeUsers(), nil, nil, cfg, zerolog.Nop())

	token, err := svc.IssueToken(context.Background(), uuid.New(), wire.IdentityLocal)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	_, err = svc.VerifyToken(context.Background(), token)
	if !errors.Is(err, jwt.ErrTokenExpired) {
		t.Errorf("VerifyToken() error = %v, want token expired", err)
	}
}

func TestVerifyTokenCentralFallback(t *testing.T) {
	t.Parallel()

	centralUser := uuid.New()
	var hits atomic.Int64
	srv := newCentralServer(t, "central-token", centralUser, &hits)

	users := newFakeUsers()
	svc := NewService(users, NewCentralVerifier(srv.URL, zerolog.Nop()), nil, testConfig(), zerolog.Nop())

	identity, err := svc.VerifyToken(context.Background(), "central-token")
	if err != nil {
		t.Fatalf("VerifyToken() error = %v", err)
	}
	if identity.UserID != centralUser {
		t.Errorf("UserID = %v, want %v", identity.UserID, centralUser)
	}
	if identity.IdentityType != wire.IdentityGlobal {
		t.Errorf("IdentityType = %q, want %q", identity.IdentityType, wire.IdentityGlobal)
	}

	if len(users.upserted) != 1 {
		t.Fatalf("cached profile upserts = %d, want 1", len(users.upserted))
	}
	if got := users.upserted[0]; got.Username != "spectre" || got.Discriminator != "0042" {
		t.Errorf("upserted profile = %+v, want spectre#0042", got)
	}
}

func TestVerifyTokenCentralRejects(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := newCentralServer(t, "central-token", uuid.New(), &hits)

	svc := NewService(newFakeUsers(), NewCentralVerifier(srv.URL, zerolog.Nop()), nil, testConfig(), zerolog.Nop())

	_, err := svc.VerifyToken(context.Background(), "garbage")
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("VerifyToken() error = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyTokenNoCentralConfigured(t *testing.T) {
	t.Parallel()
	svc := newTestService(newFakeUsers(), nil)

	_, err := svc.VerifyToken(context.Background(), "garbage")
	if err == nil {
		t.Fatal("VerifyToken() with garbage token and no central platform should return error")
	}
}
