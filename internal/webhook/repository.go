package webhook

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ecto-chat/ecto-server/internal/store"
)

const selectColumns = "id, channel_id, creator_id, name, avatar_url, token_digest, created_at"

// SQLRepository implements Repository on the shared store handle.
type SQLRepository struct {
	db  *store.DB
	log zerolog.Logger
}

// NewSQLRepository creates a new SQL-backed webhook repository.
func NewSQLRepository(db *store.DB, logger zerolog.Logger) *SQLRepository {
	return &SQLRepository{db: db, log: logger}
}

// Create inserts a webhook row. The caller generates the token and passes its
// digest.
func (r *SQLRepository) Create(ctx context.Context, params CreateParams) (*Webhook, error) {
	w := Webhook{
		ID:          store.NewID(),
		ChannelID:   params.ChannelID,
		CreatorID:   params.CreatorID,
		Name:        params.Name,
		AvatarURL:   params.AvatarURL,
		TokenDigest: params.TokenDigest,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO webhooks (id, channel_id, creator_id, name, avatar_url, token_digest, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.ChannelID, w.CreatorID, w.Name, w.AvatarURL, w.TokenDigest, w.CreatedAt)
	if err != nil {
		if store.IsForeignKeyViolation(err) {
			return nil, ErrChannelGone
		}
		return nil, fmt.Errorf("insert webhook: %w", err)
	}
	return &w, nil
}

// GetByID returns a single webhook.
func (r *SQLRepository) GetByID(ctx context.Context, id uuid.UUID) (*Webhook, error) {
	var w Webhook
	err := r.db.QueryRowContext(ctx,
		"SELECT "+selectColumns+" FROM webhooks WHERE id = ?", id).
		Scan(&w.ID, &w.ChannelID, &w.CreatorID, &w.Name, &w.AvatarURL, &w.TokenDigest, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query webhook: %w", err)
	}
	return &w, nil
}

// List returns all webhooks, oldest first.
func (r *SQLRepository) List(ctx context.Context) ([]Webhook, error) {
	return r.list(ctx, "SELECT "+selectColumns+" FROM webhooks ORDER BY id")
}

// ListByChannel returns the webhooks targeting one channel, oldest first.
func (r *SQLRepository) ListByChannel(ctx context.Context, channelID uuid.UUID) ([]Webhook, error) {
	return r.list(ctx,
		"SELECT "+selectColumns+" FROM webhooks WHERE channel_id = ? ORDER BY id", channelID)
}

func (r *SQLRepository) list(ctx context.Context, query string, args ...any) ([]Webhook, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query webhooks: %w", err)
	}
	defer rows.Close()

	var webhooks []Webhook
	for rows.Next() {
		var w Webhook
		if err := rows.Scan(&w.ID, &w.ChannelID, &w.CreatorID, &w.Name, &w.AvatarURL, &w.TokenDigest, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}
		webhooks = append(webhooks, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate webhooks: %w", err)
	}
	return webhooks, nil
}

// Delete removes a webhook. Returns ErrNotFound if no matching row exists.
func (r *SQLRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM webhooks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetTokenDigest replaces the stored digest, invalidating the old token.
func (r *SQLRepository) SetTokenDigest(ctx context.Context, id uuid.UUID, digest string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE webhooks SET token_digest = ? WHERE id = ?", digest, id)
	if err != nil {
		return fmt.Errorf("update webhook digest: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
