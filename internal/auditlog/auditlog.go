// Package auditlog records moderation and configuration actions in an
// append-only trail. Entries are written inside the transaction of the
// mutation they describe so a committed action is never missing its record.
package auditlog

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ecto-chat/ecto-server/internal/store"
	"github.com/ecto-chat/ecto-server/internal/wire"
)

// Audit action names.
const (
	ActionMemberKick    = "member.kick"
	ActionMemberBan     = "member.ban"
	ActionMemberUnban   = "member.unban"
	ActionMessageDelete = "message.delete"

	ActionChannelCreate = "channel.create"
	ActionChannelUpdate = "channel.update"
	ActionChannelDelete = "channel.delete"

	ActionCategoryCreate = "category.create"
	ActionCategoryDelete = "category.delete"

	ActionRoleCreate = "role.create"
	ActionRoleUpdate = "role.update"
	ActionRoleDelete = "role.delete"

	ActionWebhookCreate = "webhook.create"
	ActionWebhookDelete = "webhook.delete"

	ActionInviteCreate = "invite.create"
	ActionInviteRevoke = "invite.revoke"

	ActionServerUpdate = "server.update"
	ActionConfigUpdate = "config.update"

	ActionFolderDelete = "shared.folder_delete"
	ActionPageUpdate   = "page.update"
)

// Pagination defaults.
const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// Entry is one audit record.
type Entry struct {
	ID         uuid.UUID
	ActorID    uuid.UUID
	Action     string
	TargetType string
	TargetID   *uuid.UUID
	Details    map[string]any
	CreatedAt  time.Time
}

// ToModel converts the entry to its wire shape.
func (e *Entry) ToModel() wire.AuditEntry {
	return wire.AuditEntry{
		ID:         e.ID,
		ActorID:    e.ActorID,
		Action:     e.Action,
		TargetType: e.TargetType,
		TargetID:   e.TargetID,
		Details:    e.Details,
		CreatedAt:  e.CreatedAt,
	}
}

// Record groups the inputs for appending an entry.
type Record struct {
	ActorID    uuid.UUID
	Action     string
	TargetType string
	TargetID   *uuid.UUID
	Details    map[string]any
}

// ListOptions narrows an audit listing. Before is a keyset cursor on id.
type ListOptions struct {
	ActorID *uuid.UUID
	Action  string
	Before  *uuid.UUID
	Limit   int
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

// Repository defines the data-access contract for the audit trail. Append
// takes a Querier so entries land in the mutation's transaction.
type Repository interface {
	Append(ctx context.Context, q store.Querier, rec Record) error
	List(ctx context.Context, opts ListOptions) ([]Entry, error)
}
