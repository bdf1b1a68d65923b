// Package member tracks who belongs to the server: the membership rows
// themselves, per-member role assignments, and bans. Moderation flows (kick,
// ban) compose repository writes with audit records inside one transaction at
// the handler layer.
package member

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ecto-chat/ecto-server/internal/store"
	"github.com/ecto-chat/ecto-server/internal/wire"
)

// Sentinel errors for the member package.
var (
	ErrNotFound       = errors.New("member not found")
	ErrBanNotFound    = errors.New("ban not found")
	ErrNicknameLength = errors.New("nickname must be at most 32 characters")
	ErrAlreadyMember  = errors.New("user is already a member")
	ErrAlreadyBanned  = errors.New("user is already banned")
	ErrBanned         = errors.New("user is banned from this server")
	ErrDefaultRole    = errors.New("the default role cannot be manually assigned or removed")
)

// Pagination defaults for member listings.
const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// Member holds the raw fields of a membership row.
type Member struct {
	UserID       uuid.UUID
	IdentityType string
	Nickname     string
	AllowDms     bool
	TokenVersion int
	JoinedAt     time.Time
}

// MemberWithProfile combines membership fields with the user's public profile
// and role assignments. The profile side comes from local_users or
// cached_profiles depending on the member's identity type.
type MemberWithProfile struct {
	Member
	Username      string
	Discriminator string
	DisplayName   string
	AvatarURL     string
	RoleIDs       []uuid.UUID
}

// ToModel converts the internal member type to the wire response type.
func (m *MemberWithProfile) ToModel() wire.Member {
	roleIDs := m.RoleIDs
	if roleIDs == nil {
		roleIDs = []uuid.UUID{}
	}
	return wire.Member{
		UserID:       m.UserID,
		IdentityType: m.IdentityType,
		Nickname:     m.Nickname,
		AllowDms:     m.AllowDms,
		RoleIDs:      roleIDs,
		Profile: &wire.Profile{
			ID:            m.UserID,
			Username:      m.Username,
			Discriminator: m.Discriminator,
			DisplayName:   m.DisplayName,
			AvatarURL:     m.AvatarURL,
		},
		JoinedAt: m.JoinedAt,
	}
}

// BanRecord holds a ban row joined with the banned user's public profile.
type BanRecord struct {
	UserID        uuid.UUID
	Username      string
	Discriminator string
	DisplayName   string
	AvatarURL     string
	BannedBy      uuid.UUID
	Reason        string
	CreatedAt     time.Time
}

// ToModel converts the internal ban record to the wire response type.
func (b *BanRecord) ToModel() wire.Ban {
	return wire.Ban{
		UserID:   b.UserID,
		BannedBy: b.BannedBy,
		Reason:   b.Reason,
		Profile: &wire.Profile{
			ID:            b.UserID,
			Username:      b.Username,
			Discriminator: b.Discriminator,
			DisplayName:   b.DisplayName,
			AvatarURL:     b.AvatarURL,
		},
		CreatedAt: b.CreatedAt,
	}
}

// CreateParams groups the fields for inserting a membership row.
type CreateParams struct {
	UserID       uuid.UUID
	IdentityType string
	Nickname     string
}

// BanParams groups the fields for inserting a ban row.
type BanParams struct {
	UserID   uuid.UUID
	BannedBy uuid.UUID
	Reason   string
}

// ValidateNickname checks that a nickname is at most 32 runes after trimming
// whitespace. A nil pointer means "no change"; an empty or all-whitespace
// value clears the nickname. On success the pointed-to value is replaced with
// the trimmed result.
func ValidateNickname(nickname *string) error {
	if nickname == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*nickname)
	if utf8.RuneCountInString(trimmed) > 32 {
		return ErrNicknameLength
	}
	*nickname = trimmed
	return nil
}

// ClampLimit constrains a requested page size to [1, MaxLimit], defaulting to
// DefaultLimit when the input is zero or negative.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Repository defines the data-access contract for member operations.
type Repository interface {
	// Listing
	List(ctx context.Context, after *uuid.UUID, limit int) ([]MemberWithProfile, error)
	Get(ctx context.Context, userID uuid.UUID) (*MemberWithProfile, error)
	GetRow(ctx context.Context, userID uuid.UUID) (*Member, error)
	Exists(ctx context.Context, userID uuid.UUID) (bool, error)
	Count(ctx context.Context) (int, error)
	// TokenVersion returns the member's current token version, or
	// isMember=false when no membership row exists.
	TokenVersion(ctx context.Context, userID uuid.UUID) (version int, isMember bool, err error)

	// Mutation. Writes that moderation flows compose with audit records take
	// a Querier so they can run on the caller's transaction.
	Create(ctx context.Context, q store.Querier, params CreateParams) error
	Delete(ctx context.Context, q store.Querier, userID uuid.UUID) error
	UpdateNickname(ctx context.Context, userID uuid.UUID, nickname string) (*MemberWithProfile, error)
	SetAllowDms(ctx context.Context, userID uuid.UUID, allow bool) error
	BumpTokenVersion(ctx context.Context, q store.Querier, userID uuid.UUID) error

	// Bans
	Ban(ctx context.Context, q store.Querier, params BanParams) error
	Unban(ctx context.Context, userID uuid.UUID) error
	ListBans(ctx context.Context) ([]BanRecord, error)
	IsBanned(ctx context.Context, userID uuid.UUID) (bool, error)

	// Roles
	ReplaceRoles(ctx context.Context, q store.Querier, userID uuid.UUID, roleIDs []uuid.UUID) error
	RoleIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)

	// Mention expansion
	UserIDs(ctx context.Context) ([]uuid.UUID, error)
	UserIDsWithRoles(ctx context.Context, roleIDs []uuid.UUID) ([]uuid.UUID, error)
}
