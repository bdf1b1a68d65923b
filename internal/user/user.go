// Package user holds the two identity stores behind every profile shown in
// the app: local_users for accounts created on this server, and
// cached_profiles for identities resolved through the central platform.
// Everything that renders an author (messages, members, bans, DMs) goes
// through Repository.GetProfiles rather than joining either table itself.
package user

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ecto-chat/ecto-server/internal/wire"
)

// Sentinel errors for the user package.
var (
	ErrNotFound          = errors.New("user not found")
	ErrUsernameTaken     = errors.New("username already taken")
	ErrDisplayNameLength = errors.New("display name must be between 1 and 32 characters")
)

// LocalUser is an account created on this server, as opposed to a central
// identity that only exists here as a cached profile.
type LocalUser struct {
	ID          uuid.UUID
	Username    string
	DisplayName string
	AvatarURL   string
	CreatedAt   time.Time
}

// Profile converts the local user to the shared profile shape. Local accounts
// have no discriminator; the username alone is unique on this server.
func (u *LocalUser) Profile() wire.Profile {
	return wire.Profile{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
	}
}

// LocalCredentials extends LocalUser with the password hash. Only the
// login-path repository method returns this type; everything else returns
// *LocalUser so the hash cannot leak into response building.
type LocalCredentials struct {
	LocalUser
	PasswordHash string
}

// CachedProfile is a snapshot of a centrally verified identity, refreshed on
// every successful token verification.
type CachedProfile struct {
	UserID        uuid.UUID
	Username      string
	Discriminator string
	DisplayName   string
	AvatarURL     string
	FetchedAt     time.Time
}

// Profile converts the cached row to the shared profile shape.
func (p *CachedProfile) Profile() wire.Profile {
	return wire.Profile{
		ID:            p.UserID,
		Username:      p.Username,
		Discriminator: p.Discriminator,
		DisplayName:   p.DisplayName,
		AvatarURL:     p.AvatarURL,
	}
}

// CreateLocalParams groups the inputs for creating a local account.
type CreateLocalParams struct {
	Username     string
	PasswordHash string
	DisplayName  string
}

// UpdateLocalProfileParams groups the optional fields for updating a local
// account's profile. Nil fields are left unchanged.
type UpdateLocalProfileParams struct {
	DisplayName *string
	AvatarURL   *string
}

// NormalizeDisplayName trims surrounding whitespace from the pointed-to
// value. Nil values are left untouched.
func NormalizeDisplayName(name *string) {
	if name == nil {
		return
	}
	*name = strings.TrimSpace(*name)
}

// ValidateDisplayName checks that a non-nil display name is between 1 and 32
// Unicode characters.
func ValidateDisplayName(name *string) error {
	if name == nil {
		return nil
	}
	if n := utf8.RuneCountInString(*name); n < 1 || n > 32 {
		return ErrDisplayNameLength
	}
	return nil
}

// Repository defines the data-access contract for local accounts and cached
// central profiles.
type Repository interface {
	CreateLocal(ctx context.Context, params CreateLocalParams) (uuid.UUID, error)
	GetLocalByID(ctx context.Context, id uuid.UUID) (*LocalUser, error)
	GetLocalByUsername(ctx context.Context, username string) (*LocalCredentials, error)
	UpdateLocalPasswordHash(ctx context.Context, userID uuid.UUID, hash string) error
	UpdateLocalProfile(ctx context.Context, userID uuid.UUID, params UpdateLocalProfileParams) (*LocalUser, error)
	UpsertCachedProfile(ctx context.Context, profile CachedProfile) error
	GetProfile(ctx context.Context, id uuid.UUID) (*wire.Profile, error)
	GetProfiles(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]wire.Profile, error)
}
