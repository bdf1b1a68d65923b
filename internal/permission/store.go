package permission

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrUnknownChannel is returned when a context is requested for a channel
// that does not exist.
var ErrUnknownChannel = errors.New("unknown channel")

// ErrUnknownItem is returned when a shared-item chain is requested for a
// folder or file that does not exist.
var ErrUnknownItem = errors.New("unknown shared item")

// ErrOverrideNotFound is returned when deleting an override that does not
// exist.
var ErrOverrideNotFound = errors.New("permission override not found")

// Scope identifies which override table a read or write addresses.
type Scope string

const (
	ScopeCategory Scope = "category"
	ScopeChannel  Scope = "channel"
)

// SharedItemType distinguishes folder and file nodes in the shared drive.
type SharedItemType string

const (
	SharedFolder SharedItemType = "folder"
	SharedFile   SharedItemType = "file"
)

// SharedRef addresses one node of a shared-item chain.
type SharedRef struct {
	Type SharedItemType
	ID   uuid.UUID
}

// RoleEntry pairs a role with its server-level bits.
type RoleEntry struct {
	ID          uuid.UUID
	Permissions Permission
	IsDefault   bool
}

// Store provides the reads the engine needs. All methods are scoped to the
// process's single server row.
type Store interface {
	// Owner returns the server's admin_user_id, or nil when unset.
	Owner(ctx context.Context) (*uuid.UUID, error)
	// IsMember reports whether the user has a member row.
	IsMember(ctx context.Context, userID uuid.UUID) (bool, error)
	// RolesForMember returns the default role plus every role assigned to
	// the member, with their permission bits.
	RolesForMember(ctx context.Context, userID uuid.UUID) ([]RoleEntry, error)
	// AllRoles returns every role on the server.
	AllRoles(ctx context.Context) ([]RoleEntry, error)
	// MemberRoleIDs returns the IDs of roles assigned to the member.
	MemberRoleIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	// ChannelCategories maps each requested channel to its category, nil for
	// uncategorized. Channels that do not exist are absent from the result.
	ChannelCategories(ctx context.Context, channelIDs []uuid.UUID) (map[uuid.UUID]*uuid.UUID, error)
	// ChannelOverrides returns the override rows of the given channels,
	// grouped by channel.
	ChannelOverrides(ctx context.Context, channelIDs []uuid.UUID) (map[uuid.UUID][]Override, error)
	// CategoryOverrides returns the override rows of the given categories,
	// grouped by category.
	CategoryOverrides(ctx context.Context, categoryIDs []uuid.UUID) (map[uuid.UUID][]Override, error)
	// SharedChain returns the ancestor chain of a shared item ordered from
	// the root-most folder down to the item itself.
	SharedChain(ctx context.Context, itemType SharedItemType, itemID uuid.UUID) ([]SharedRef, error)
	// SharedOverrides returns the override rows of the given chain nodes.
	SharedOverrides(ctx context.Context, refs []SharedRef) (map[SharedRef][]Override, error)
}
