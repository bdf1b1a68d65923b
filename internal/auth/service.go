// Package auth owns every way a request can prove who it is: server-issued
// JWTs, central platform tokens, and local username/password credentials. The
// HTTP middleware and the gateway identify handshake both authenticate
// through Service.VerifyToken so the two paths cannot drift apart.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ecto-chat/ecto-server/internal/config"
	"github.com/ecto-chat/ecto-server/internal/user"
	"github.com/ecto-chat/ecto-server/internal/wire"
)

// TokenVersions reports the stored token_version for a member. Implemented by
// the member repository. Non-members skip the version check; rejecting them
// is the membership layer's job, not the token layer's.
type TokenVersions interface {
	TokenVersion(ctx context.Context, userID uuid.UUID) (version int, isMember bool, err error)
}

// Identity is the authenticated principal attached to a request or gateway
// session.
type Identity struct {
	UserID       uuid.UUID
	IdentityType string
}

// Service implements authentication business logic, keeping HTTP handlers
// and the gateway handshake thin.
type Service struct {
	users    user.Repository
	central  *CentralVerifier // nil when no central platform is configured
	versions TokenVersions    // nil skips token_version checks
	config   *config.Config
	log      zerolog.Logger
	// dummyHash keeps login timing constant when a username is not found,
	// preventing username enumeration via response-time analysis.
	dummyHash string
}

// NewService creates a new authentication service. central and versions may
// be nil; the corresponding checks are skipped.
func NewService(users user.Repository, central *CentralVerifier, versions TokenVersions, cfg *config.Config, logger zerolog.Logger) *Service {
	// Generate a dummy hash at startup so VerifyPassword always runs against a
	// real Argon2id hash even when the user does not exist.
	dummy, err := HashPassword("ecto-dummy-password", cfg.Argon2Memory, cfg.Argon2Iterations, cfg.Argon2Parallelism)
	if err != nil {
		// This should never fail with valid config; fall back to a static hash
		// so the service can still start.
		dummy = "$argon2id$v=19$m=65536,t=3,p=2$c2FsdHNhbHRzYWx0$placeholder"
	}
	return &Service{
		users:     users,
		central:   central,
		versions:  versions,
		config:    cfg,
		log:       logger,
		dummyHash: dummy,
	}
}

// RegisterRequest is the input for Service.Register.
type RegisterRequest struct {
	Username    string
	Password    string
	DisplayName string
}

// LoginRequest is the input for Service.Login.
type LoginRequest struct {
	Username string
	Password string
}

// AuthResult is the output for Register and Login.
type AuthResult struct {
	User  user.LocalUser
	Token string
}

// Register validates inputs, creates a local account, and returns a fresh
// token. Usernames are lowercased before validation and storage.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	if !s.config.AllowLocalAccounts {
		return nil, ErrLocalAccountsDisabled
	}

	username := strings.ToLower(strings.TrimSpace(req.Username))
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := ValidatePassword(req.Password); err != nil {
		return nil, err
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName != "" {
		if err := user.ValidateDisplayName(&displayName); err != nil {
			return nil, err
		}
	}

	hash, err := HashPassword(req.Password, s.config.Argon2Memory, s.config.Argon2Iterations, s.config.Argon2Parallelism)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	userID, err := s.users.CreateLocal(ctx, user.CreateLocalParams{
		Username:     username,
		PasswordHash: hash,
		DisplayName:  displayName,
	})
	if err != nil {
		return nil, err // user.ErrUsernameTaken passes through
	}

	s.log.Debug().Str("user_id", userID.String()).Msg("Local account registered")

	token, err := s.IssueToken(ctx, userID, wire.IdentityLocal)
	if err != nil {
		return nil, err
	}

	u, err := s.users.GetLocalByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load created account: %w", err)
	}

	return &AuthResult{User: *u, Token: token}, nil
}

// Login verifies local credentials and returns a fresh token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	if !s.config.AllowLocalAccounts {
		return nil, ErrLocalAccountsDisabled
	}

	username := strings.ToLower(strings.TrimSpace(req.Username))

	creds, err := s.users.GetLocalByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			// Hash against a dummy value so "user not found" takes as long as
			// "wrong password"; otherwise usernames can be probed by timing.
			_, _ = VerifyPassword(req.Password, s.dummyHash)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get local user: %w", err)
	}

	match, err := VerifyPassword(req.Password, creds.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !match {
		return nil, ErrInvalidCredentials
	}

	// Lazy hash rotation: rehash with current parameters if the stored hash
	// was generated with older settings.
	if NeedsRehash(creds.PasswordHash, s.config.Argon2Memory, s.config.Argon2Iterations, s.config.Argon2Parallelism) {
		if newHash, hashErr := HashPassword(req.Password, s.config.Argon2Memory, s.config.Argon2Iterations, s.config.Argon2Parallelism); hashErr == nil {
			if updateErr := s.users.UpdateLocalPasswordHash(ctx, creds.ID, newHash); updateErr != nil {
				s.log.Warn().Err(updateErr).Str("user_id", creds.ID.String()).Msg("Failed to rotate password hash")
			} else {
				s.log.Debug().Str("user_id", creds.ID.String()).Msg("Password hash rotated to current parameters")
			}
		}
	}

	token, err := s.IssueToken(ctx, creds.ID, wire.IdentityLocal)
	if err != nil {
		return nil, err
	}

	return &AuthResult{User: creds.LocalUser, Token: token}, nil
}

// IssueToken mints an access token for the given user, embedding the member
// row's current token_version when one exists.
func (s *Service) IssueToken(ctx context.Context, userID uuid.UUID, identityType string) (string, error) {
	var tokenVersion *int
	if s.versions != nil {
		version, isMember, err := s.versions.TokenVersion(ctx, userID)
		if err != nil {
			return "", fmt.Errorf("load token version: %w", err)
		}
		if isMember {
			tokenVersion = &version
		}
	}

	token, err := NewAccessToken(userID, identityType, tokenVersion, s.config.JWTSecret, s.config.JWTAccessTTL)
	if err != nil {
		return "", fmt.Errorf("create access token: %w", err)
	}
	return token, nil
}

// VerifyToken authenticates a bearer token. Server-issued JWTs are tried
// first; when the token is not ours and a central platform is configured,
// the platform is asked instead. Central identities refresh the cached
// profile store as a side effect, so profile data stays current without a
// dedicated sync job.
func (s *Service) VerifyToken(ctx context.Context, token string) (*Identity, error) {
	claims, jwtErr := ValidateAccessToken(token, s.config.JWTSecret)
	if jwtErr == nil {
		return s.identityFromClaims(ctx, claims)
	}

	// An expired token carrying our signature is definitely ours; the client
	// must re-authenticate rather than have the central platform consulted.
	if errors.Is(jwtErr, jwt.ErrTokenExpired) {
		return nil, jwtErr
	}

	if s.central == nil {
		return nil, jwtErr
	}

	identity, err := s.central.Verify(ctx, token)
	if err != nil {
		if !errors.Is(err, ErrInvalidToken) {
			s.log.Warn().Err(err).Msg("Central token verification failed")
		}
		return nil, ErrInvalidToken
	}

	if upsertErr := s.users.UpsertCachedProfile(ctx, identity.CachedProfile()); upsertErr != nil {
		s.log.Warn().Err(upsertErr).Str("user_id", identity.UserID.String()).Msg("Failed to refresh cached profile")
	}

	return &Identity{UserID: identity.UserID, IdentityType: wire.IdentityGlobal}, nil
}

func (s *Service) identityFromClaims(ctx context.Context, claims *AccessClaims) (*Identity, error) {
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrInvalidToken
	}

	if claims.TokenVersion != nil && s.versions != nil {
		version, isMember, err := s.versions.TokenVersion(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("load token version: %w", err)
		}
		if isMember && version != *claims.TokenVersion {
			return nil, ErrTokenRevoked
		}
	}

	identityType := claims.IdentityType
	if identityType == "" {
		identityType = wire.IdentityGlobal
	}

	return &Identity{UserID: userID, IdentityType: identityType}, nil
}
