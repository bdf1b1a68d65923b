package serverconfig

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ecto-chat/ecto-server/internal/store"
)

const selectColumns = `server_id, max_upload_size_bytes, max_shared_storage_bytes,
	allow_local_accounts, require_invite, allow_member_dms, show_system_messages`

// SQLRepository implements Repository on the shared store handle.
type SQLRepository struct {
	db  *store.DB
	log zerolog.Logger
}

// NewSQLRepository creates a new SQL-backed server config repository.
func NewSQLRepository(db *store.DB, logger zerolog.Logger) *SQLRepository {
	return &SQLRepository{db: db, log: logger}
}

// Get returns the single config row.
func (r *SQLRepository) Get(ctx context.Context) (*Config, error) {
	cfg, err := scanConfig(r.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM server_config LIMIT 1`))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query server config: %w", err)
	}
	return cfg, nil
}

// Update applies the non-nil fields in params to the config row and returns
// the updated config. Nil pointer fields are left unchanged via COALESCE.
func (r *SQLRepository) Update(ctx context.Context, params UpdateParams) (*Config, error) {
	if params.MaxUploadSizeBytes == nil && params.MaxSharedStorageBytes == nil &&
		params.AllowLocalAccounts == nil && params.RequireInvite == nil &&
		params.AllowMemberDms == nil && params.ShowSystemMessages == nil {
		return r.Get(ctx)
	}

	res, err := r.db.ExecContext(ctx, `UPDATE server_config SET
		max_upload_size_bytes    = COALESCE(?, max_upload_size_bytes),
		max_shared_storage_bytes = COALESCE(?, max_shared_storage_bytes),
		allow_local_accounts     = COALESCE(?, allow_local_accounts),
		require_invite           = COALESCE(?, require_invite),
		allow_member_dms         = COALESCE(?, allow_member_dms),
		show_system_messages     = COALESCE(?, show_system_messages)`,
		params.MaxUploadSizeBytes, params.MaxSharedStorageBytes,
		params.AllowLocalAccounts, params.RequireInvite,
		params.AllowMemberDms, params.ShowSystemMessages,
	)
	if err != nil {
		return nil, fmt.Errorf("update server config: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	return r.Get(ctx)
}

// Create seeds the config row inside the caller's transaction.
func (r *SQLRepository) Create(ctx context.Context, q store.Querier, cfg *Config) error {
	_, err := q.ExecContext(ctx, `INSERT INTO server_config
		(server_id, max_upload_size_bytes, max_shared_storage_bytes,
		 allow_local_accounts, require_invite, allow_member_dms, show_system_messages)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		cfg.ServerID, cfg.MaxUploadSizeBytes, cfg.MaxSharedStorageBytes,
		cfg.AllowLocalAccounts, cfg.RequireInvite, cfg.AllowMemberDms, cfg.ShowSystemMessages,
	)
	if err != nil {
		return fmt.Errorf("insert server config: %w", err)
	}
	return nil
}

func scanConfig(row *sql.Row) (*Config, error) {
	var cfg Config
	err := row.Scan(
		&cfg.ServerID, &cfg.MaxUploadSizeBytes, &cfg.MaxSharedStorageBytes,
		&cfg.AllowLocalAccounts, &cfg.RequireInvite, &cfg.AllowMemberDms, &cfg.ShowSystemMessages,
	)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}
