package readstate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ecto-chat/ecto-server/internal/store"
)

// SQLRepository implements Repository on the shared store handle.
type SQLRepository struct {
	db  *store.DB
	log zerolog.Logger
}

// NewSQLRepository creates a new SQL-backed read-state repository.
func NewSQLRepository(db *store.DB, logger zerolog.Logger) *SQLRepository {
	return &SQLRepository{db: db, log: logger}
}

// List returns all read states for a user.
func (r *SQLRepository) List(ctx context.Context, userID uuid.UUID) ([]ReadState, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, channel_id, last_read_message_id, mention_count, updated_at
		 FROM read_states WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("query read states: %w", err)
	}
	defer rows.Close()

	var states []ReadState
	for rows.Next() {
		var (
			rs     ReadState
			lastID uuid.NullUUID
		)
		if err := rows.Scan(&rs.UserID, &rs.ChannelID, &lastID, &rs.MentionCount, &rs.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan read state: %w", err)
		}
		if lastID.Valid {
			rs.LastReadMessageID = &lastID.UUID
		}
		states = append(states, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate read states: %w", err)
	}
	return states, nil
}

// MarkRead upserts the user's position in a channel and resets the mention
// counter. A nil messageID marks the channel read without moving the cursor
// forward on an existing row.
func (r *SQLRepository) MarkRead(ctx context.Context, userID, channelID uuid.UUID, messageID *uuid.UUID) (*ReadState, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM channels WHERE id = ?)", channelID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check channel: %w", err)
	}
	if !exists {
		return nil, ErrChannelNotFound
	}

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO read_states (user_id, channel_id, last_read_message_id, mention_count, updated_at)
		 VALUES (?, ?, ?, 0, ?)
		 ON CONFLICT (user_id, channel_id) DO UPDATE SET
		     last_read_message_id = COALESCE(excluded.last_read_message_id, read_states.last_read_message_id),
		     mention_count        = 0,
		     updated_at           = excluded.updated_at`,
		userID, channelID, messageID, now)
	if err != nil {
		return nil, fmt.Errorf("upsert read state: %w", err)
	}

	rs := ReadState{UserID: userID, ChannelID: channelID, UpdatedAt: now}
	var lastID uuid.NullUUID
	err = r.db.QueryRowContext(ctx,
		`SELECT last_read_message_id FROM read_states WHERE user_id = ? AND channel_id = ?`,
		userID, channelID).Scan(&lastID)
	if err != nil {
		return nil, fmt.Errorf("query read state: %w", err)
	}
	if lastID.Valid {
		rs.LastReadMessageID = &lastID.UUID
	}
	return &rs, nil
}

// IncrementMention bumps the user's mention counter for a channel on the
// caller's transaction, creating the row when missing, and returns the new
// count.
func (r *SQLRepository) IncrementMention(ctx context.Context, q store.Querier, userID, channelID uuid.UUID) (int, error) {
	_, err := q.ExecContext(ctx,
		`INSERT INTO read_states (user_id, channel_id, mention_count, updated_at)
		 VALUES (?, ?, 1, ?)
		 ON CONFLICT (user_id, channel_id) DO UPDATE SET
		     mention_count = read_states.mention_count + 1,
		     updated_at    = excluded.updated_at`,
		userID, channelID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("increment mention count: %w", err)
	}

	var count int
	err = q.QueryRowContext(ctx,
		"SELECT mention_count FROM read_states WHERE user_id = ? AND channel_id = ?",
		userID, channelID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("query mention count: %w", err)
	}
	return count, nil
}

// DeleteForUser removes all of a user's read states on the caller's
// transaction. Part of the kick/ban cleanup.
func (r *SQLRepository) DeleteForUser(ctx context.Context, q store.Querier, userID uuid.UUID) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM read_states WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("delete read states: %w", err)
	}
	return nil
}

// AddActivity appends a notification feed entry on the caller's transaction.
func (r *SQLRepository) AddActivity(ctx context.Context, q store.Querier, params ActivityParams) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO activity_items (id, user_id, type, channel_id, message_id, actor_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		store.NewID(), params.UserID, params.Type, params.ChannelID, params.MessageID, params.ActorID,
		time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert activity item: %w", err)
	}
	return nil
}

// ListActivity returns the user's newest feed entries, most recent first.
func (r *SQLRepository) ListActivity(ctx context.Context, userID uuid.UUID) ([]ActivityItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, type, channel_id, message_id, actor_id, created_at
		 FROM activity_items WHERE user_id = ?
		 ORDER BY id DESC LIMIT ?`, userID, ActivityLimit)
	if err != nil {
		return nil, fmt.Errorf("query activity items: %w", err)
	}
	defer rows.Close()

	var items []ActivityItem
	for rows.Next() {
		var (
			item      ActivityItem
			channelID uuid.NullUUID
			messageID uuid.NullUUID
			actorID   uuid.NullUUID
		)
		if err := rows.Scan(&item.ID, &item.UserID, &item.Type, &channelID, &messageID, &actorID, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity item: %w", err)
		}
		if channelID.Valid {
			item.ChannelID = &channelID.UUID
		}
		if messageID.Valid {
			item.MessageID = &messageID.UUID
		}
		if actorID.Valid {
			item.ActorID = &actorID.UUID
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity items: %w", err)
	}
	return items, nil
}
