// Package invite manages join codes: 8-character base62 strings generated
// from a CSPRNG, with optional use caps, expiry, and revocation.
package invite

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ecto-chat/ecto-server/internal/wire"
)

// Sentinel errors for the invite package.
var (
	ErrNotFound       = errors.New("invite not found")
	ErrExpired        = errors.New("invite has expired")
	ErrMaxUsesReached = errors.New("invite has reached its maximum number of uses")
	ErrRevoked        = errors.New("invite has been revoked")
	ErrCodeExhausted  = errors.New("failed to generate unique invite code")
	ErrInvalidMaxUses = errors.New("max uses must be non-negative")
	ErrInvalidMaxAge  = errors.New("max age seconds must be non-negative")
)

// Invite holds the fields read from the invites table. MaxUses zero means
// unlimited.
type Invite struct {
	ID        uuid.UUID
	Code      string
	CreatorID uuid.UUID
	MaxUses   int
	UseCount  int
	ExpiresAt *time.Time
	Revoked   bool
	CreatedAt time.Time
}

// Usable reports whether the invite can still be consumed: not revoked, not
// expired, and under its use cap.
func (inv *Invite) Usable() bool {
	if inv.Revoked {
		return false
	}
	if inv.ExpiresAt != nil && time.Now().After(*inv.ExpiresAt) {
		return false
	}
	if inv.MaxUses > 0 && inv.UseCount >= inv.MaxUses {
		return false
	}
	return true
}

// ToModel converts the invite to its wire shape.
func (inv *Invite) ToModel() wire.Invite {
	return wire.Invite{
		ID:        inv.ID,
		Code:      inv.Code,
		CreatorID: inv.CreatorID,
		MaxUses:   inv.MaxUses,
		UseCount:  inv.UseCount,
		ExpiresAt: inv.ExpiresAt,
		Revoked:   inv.Revoked,
		CreatedAt: inv.CreatedAt,
	}
}

// CreateParams groups the inputs for creating a new invite.
type CreateParams struct {
	MaxUses       int
	MaxAgeSeconds int
}

// ValidateCreate checks invite creation inputs.
func ValidateCreate(params CreateParams) error {
	if params.MaxUses < 0 {
		return ErrInvalidMaxUses
	}
	if params.MaxAgeSeconds < 0 {
		return ErrInvalidMaxAge
	}
	return nil
}

// Repository defines the data-access contract for invite operations.
type Repository interface {
	Create(ctx context.Context, creatorID uuid.UUID, params CreateParams) (*Invite, error)
	GetByCode(ctx context.Context, code string) (*Invite, error)
	List(ctx context.Context) ([]Invite, error)
	Revoke(ctx context.Context, id uuid.UUID) (*Invite, error)

	// Use atomically consumes one use of a valid invite. Revoked, expired and
	// exhausted invites fail with the matching sentinel.
	Use(ctx context.Context, code string) (*Invite, error)
}
