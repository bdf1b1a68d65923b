// Package bootstrap seeds a fresh database on first run: the server row,
// its config defaults, the @everyone role, and a starter category with a
// #general channel, all inside one transaction. Ownership is not assigned
// here; the first member to join is promoted by the join flow.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ecto-chat/ecto-server/internal/config"
	"github.com/ecto-chat/ecto-server/internal/permission"
	"github.com/ecto-chat/ecto-server/internal/store"
	"github.com/ecto-chat/ecto-server/internal/wire"
)

// EnsureServer returns the ID of the single server row, seeding the database
// when none exists yet.
func EnsureServer(ctx context.Context, db *store.DB, cfg *config.Config, logger zerolog.Logger) (uuid.UUID, error) {
	var id uuid.UUID
	err := db.QueryRowContext(ctx, "SELECT id FROM servers LIMIT 1").Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("check first run: %w", err)
	}

	id = store.NewID()
	logger.Info().Str("server_id", id.String()).Msg("first run, seeding database")
	if err := seed(ctx, db, cfg, id); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func seed(ctx context.Context, db *store.DB, cfg *config.Config, serverID uuid.UUID) error {
	now := time.Now().UTC()
	return db.WithTx(ctx, func(q store.Querier) error {
		if _, err := q.ExecContext(ctx,
			`INSERT INTO servers (id, name, description, icon_url, banner_url, admin_user_id, setup_done, created_at)
			 VALUES (?, ?, '', '', '', NULL, FALSE, ?)`,
			serverID, cfg.ServerName, now); err != nil {
			return fmt.Errorf("insert server: %w", err)
		}

		if _, err := q.ExecContext(ctx,
			`INSERT INTO server_config
			 (server_id, max_upload_size_bytes, max_shared_storage_bytes,
			  allow_local_accounts, require_invite, allow_member_dms, show_system_messages)
			 VALUES (?, ?, ?, ?, FALSE, TRUE, TRUE)`,
			serverID, cfg.MaxUploadSizeBytes, cfg.StorageQuotaBytes, cfg.AllowLocalAccounts); err != nil {
			return fmt.Errorf("insert server config: %w", err)
		}

		if _, err := q.ExecContext(ctx,
			`INSERT INTO roles (id, server_id, name, color, permissions, position, is_default, created_at)
			 VALUES (?, ?, '@everyone', '', ?, 0, TRUE, ?)`,
			store.NewID(), serverID, int64(permission.DefaultEveryonePermissions), now); err != nil {
			return fmt.Errorf("insert default role: %w", err)
		}

		categoryID := store.NewID()
		if _, err := q.ExecContext(ctx,
			`INSERT INTO categories (id, server_id, name, position, created_at)
			 VALUES (?, ?, 'Text Channels', 0, ?)`,
			categoryID, serverID, now); err != nil {
			return fmt.Errorf("insert starter category: %w", err)
		}

		if _, err := q.ExecContext(ctx,
			`INSERT INTO channels (id, server_id, category_id, name, type, topic, position, slowmode_seconds, nsfw, created_at)
			 VALUES (?, ?, ?, 'general', ?, '', 0, 0, FALSE, ?)`,
			store.NewID(), serverID, categoryID, wire.ChannelTypeText, now); err != nil {
			return fmt.Errorf("insert starter channel: %w", err)
		}

		return nil
	})
}
