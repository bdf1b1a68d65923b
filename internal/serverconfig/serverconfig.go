// Package serverconfig holds the per-server tunables row. Exactly one row
// exists, created by first-run bootstrap alongside the server itself.
package serverconfig

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ecto-chat/ecto-server/internal/store"
	"github.com/ecto-chat/ecto-server/internal/wire"
)

// Sentinel errors for the serverconfig package.
var (
	ErrNotFound    = errors.New("server config not found")
	ErrUploadSize  = errors.New("max upload size must be positive")
	ErrStorageSize = errors.New("max shared storage size must be positive")
)

// Config holds the tunables read from the database.
type Config struct {
	ServerID              uuid.UUID
	MaxUploadSizeBytes    int64
	MaxSharedStorageBytes int64
	AllowLocalAccounts    bool
	RequireInvite         bool
	AllowMemberDms        bool
	ShowSystemMessages    bool
}

// ToModel converts the internal config to the wire response type.
func (cfg *Config) ToModel() wire.ServerConfig {
	return wire.ServerConfig{
		MaxUploadSizeBytes:    cfg.MaxUploadSizeBytes,
		MaxSharedStorageBytes: cfg.MaxSharedStorageBytes,
		AllowLocalAccounts:    cfg.AllowLocalAccounts,
		RequireInvite:         cfg.RequireInvite,
		AllowMemberDms:        cfg.AllowMemberDms,
		ShowSystemMessages:    cfg.ShowSystemMessages,
	}
}

// UpdateParams groups the optional fields for updating the config row. Nil
// pointer fields indicate "no change" (PATCH semantics).
type UpdateParams struct {
	MaxUploadSizeBytes    *int64
	MaxSharedStorageBytes *int64
	AllowLocalAccounts    *bool
	RequireInvite         *bool
	AllowMemberDms        *bool
	ShowSystemMessages    *bool
}

// Validate rejects size fields that would make every upload fail.
func (p UpdateParams) Validate() error {
	if p.MaxUploadSizeBytes != nil && *p.MaxUploadSizeBytes < 1 {
		return ErrUploadSize
	}
	if p.MaxSharedStorageBytes != nil && *p.MaxSharedStorageBytes < 1 {
		return ErrStorageSize
	}
	return nil
}

// Repository defines the data access contract for server config operations.
type Repository interface {
	Get(ctx context.Context) (*Config, error)
	Update(ctx context.Context, params UpdateParams) (*Config, error)
	// Create seeds the config row. It takes a Querier so bootstrap can run it
	// inside the same transaction that creates the server row.
	Create(ctx context.Context, q store.Querier, cfg *Config) error
}
