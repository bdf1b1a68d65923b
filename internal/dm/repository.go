package dm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ecto-chat/ecto-server/internal/store"
	"github.com/ecto-chat/ecto-server/internal/wire"
)

// SQLRepository implements Repository on the shared store handle.
type SQLRepository struct {
	db       *store.DB
	serverID uuid.UUID
	log      zerolog.Logger
}

// NewSQLRepository creates a new SQL-backed DM repository.
func NewSQLRepository(db *store.DB, serverID uuid.UUID, logger zerolog.Logger) *SQLRepository {
	return &SQLRepository{db: db, serverID: serverID, log: logger}
}

const conversationColumns = "id, user_a, user_b, last_message_at, created_at"

// scanConversation reads one conversationColumns row. last_message_at is
// NULL until the first message lands.
func scanConversation(scan func(dest ...any) error) (*Conversation, error) {
	var (
		c      Conversation
		lastAt sql.NullTime
	)
	if err := scan(&c.ID, &c.UserA, &c.UserB, &lastAt, &c.CreatedAt); err != nil {
		return nil, err
	}
	if lastAt.Valid {
		t := lastAt.Time
		c.LastMessageAt = &t
	}
	return &c, nil
}

// Open finds or creates the conversation between two users. The insert races
// benignly: a unique violation means the peer opened it first, so the
// follow-up read wins either way.
func (r *SQLRepository) Open(ctx context.Context, a, b uuid.UUID) (*Conversation, error) {
	if a == b {
		return nil, ErrSelfDm
	}
	userA, userB := CanonicalPair(a, b)

	conv, err := r.getByPair(ctx, userA, userB)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO dm_conversations (id, server_id, user_a, user_b, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		store.NewID(), r.serverID, userA, userB, time.Now().UTC())
	if err != nil && !store.IsUniqueViolation(err) {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	return r.getByPair(ctx, userA, userB)
}

func (r *SQLRepository) getByPair(ctx context.Context, userA, userB uuid.UUID) (*Conversation, error) {
	conv, err := scanConversation(r.db.QueryRowContext(ctx,
		"SELECT "+conversationColumns+" FROM dm_conversations WHERE user_a = ? AND user_b = ?",
		userA, userB).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query conversation by pair: %w", err)
	}
	return conv, nil
}

// GetConversation returns a conversation by id.
func (r *SQLRepository) GetConversation(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	conv, err := scanConversation(r.db.QueryRowContext(ctx,
		"SELECT "+conversationColumns+" FROM dm_conversations WHERE id = ?", id).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	return conv, nil
}

// ListConversations returns the user's conversations, most recent activity
// first. The unread count is the number of peer messages newer than the
// viewer's read cursor.
func (r *SQLRepository) ListConversations(ctx context.Context, userID uuid.UUID) ([]Conversation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.id, c.user_a, c.user_b, c.last_message_at, c.created_at,
		        (SELECT COUNT(*) FROM dm_messages dm
		         WHERE dm.conversation_id = c.id
		           AND dm.deleted = FALSE
		           AND dm.author_id <> ?
		           AND (rs.last_read_message_id IS NULL OR dm.id > rs.last_read_message_id)
		        ) AS unread
		 FROM dm_conversations c
		 LEFT JOIN dm_read_states rs ON rs.conversation_id = c.id AND rs.user_id = ?
		 WHERE c.user_a = ? OR c.user_b = ?
		 ORDER BY COALESCE(c.last_message_at, c.created_at) DESC, c.id DESC`,
		userID, userID, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var conversations []Conversation
	for rows.Next() {
		var (
			c      Conversation
			lastAt sql.NullTime
		)
		if err := rows.Scan(&c.ID, &c.UserA, &c.UserB, &lastAt, &c.CreatedAt, &c.UnreadCount); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		if lastAt.Valid {
			t := lastAt.Time
			c.LastMessageAt = &t
		}
		conversations = append(conversations, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return conversations, nil
}

const messageColumns = "id, conversation_id, author_id, content, edited_at, created_at"

// History returns non-deleted messages in a conversation, newest first, with
// keyset pagination on id.
func (r *SQLRepository) History(ctx context.Context, conversationID uuid.UUID, opts HistoryOptions) ([]Message, error) {
	limit := ClampLimit(opts.Limit)

	var (
		rows *sql.Rows
		err  error
	)
	if opts.Before == nil {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+messageColumns+` FROM dm_messages
			 WHERE conversation_id = ? AND deleted = FALSE
			 ORDER BY id DESC LIMIT ?`, conversationID, limit)
	} else {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+messageColumns+` FROM dm_messages
			 WHERE conversation_id = ? AND deleted = FALSE AND id < ?
			 ORDER BY id DESC LIMIT ?`, conversationID, *opts.Before, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query dm messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		if err := scanMessage(rows.Scan, &msg); err != nil {
			return nil, fmt.Errorf("scan dm message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dm messages: %w", err)
	}

	if err := r.attachExtras(ctx, messages, opts.ViewerID); err != nil {
		return nil, err
	}
	return messages, nil
}

// GetMessage returns a single non-deleted message with its aggregates.
func (r *SQLRepository) GetMessage(ctx context.Context, id, viewerID uuid.UUID) (*Message, error) {
	var msg Message
	err := scanMessage(r.db.QueryRowContext(ctx,
		"SELECT "+messageColumns+" FROM dm_messages WHERE id = ? AND deleted = FALSE", id).Scan, &msg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("query dm message: %w", err)
	}

	messages := []Message{msg}
	if err := r.attachExtras(ctx, messages, viewerID); err != nil {
		return nil, err
	}
	return &messages[0], nil
}

// CreateMessage inserts a DM, binds any pending attachments, and advances the
// conversation's last_message_at, all in one transaction.
func (r *SQLRepository) CreateMessage(ctx context.Context, params CreateMessageParams) (*Message, error) {
	id := store.NewID()
	now := time.Now().UTC()
	err := r.db.WithTx(ctx, func(q store.Querier) error {
		if _, err := q.ExecContext(ctx,
			`INSERT INTO dm_messages (id, conversation_id, author_id, content, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			id, params.ConversationID, params.AuthorID, params.Content, now,
		); err != nil {
			if store.IsForeignKeyViolation(err) {
				return ErrNotFound
			}
			return fmt.Errorf("insert dm message: %w", err)
		}

		if _, err := q.ExecContext(ctx,
			"UPDATE dm_conversations SET last_message_at = ? WHERE id = ?",
			now, params.ConversationID,
		); err != nil {
			return fmt.Errorf("touch conversation: %w", err)
		}

		if len(params.AttachmentIDs) == 0 {
			return nil
		}
		args := []any{id}
		for _, attID := range params.AttachmentIDs {
			args = append(args, attID)
		}
		args = append(args, params.AuthorID)
		if _, err := q.ExecContext(ctx,
			`UPDATE attachments SET dm_message_id = ?
			 WHERE id IN (`+placeholders(len(params.AttachmentIDs))+`)
			   AND uploader_id = ? AND message_id IS NULL AND dm_message_id IS NULL`,
			args...,
		); err != nil {
			return fmt.Errorf("bind dm attachments: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetMessage(ctx, id, params.AuthorID)
}

// UpdateMessage sets new content on a non-deleted message and stamps
// edited_at. Authorship is checked by the caller against a prior read.
func (r *SQLRepository) UpdateMessage(ctx context.Context, id uuid.UUID, content string, viewerID uuid.UUID) (*Message, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE dm_messages SET content = ?, edited_at = ? WHERE id = ? AND deleted = FALSE",
		content, time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("update dm message: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrMessageNotFound
	}
	return r.GetMessage(ctx, id, viewerID)
}

// SoftDeleteMessage marks a DM deleted, hiding it from all reads.
func (r *SQLRepository) SoftDeleteMessage(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE dm_messages SET deleted = TRUE WHERE id = ? AND deleted = FALSE", id)
	if err != nil {
		return fmt.Errorf("soft delete dm message: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// AddReaction records one user's reaction. The primary key makes repeated
// adds a no-op. Returns the emoji's resulting count.
func (r *SQLRepository) AddReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) (int, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM dm_messages WHERE id = ? AND deleted = FALSE)", messageID).Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("check dm message: %w", err)
	}
	if !exists {
		return 0, ErrMessageNotFound
	}

	_, err = r.db.ExecContext(ctx,
		"INSERT INTO dm_message_reactions (message_id, user_id, emoji, created_at) VALUES (?, ?, ?, ?)",
		messageID, userID, emoji, time.Now().UTC())
	if err != nil && !store.IsUniqueViolation(err) {
		return 0, fmt.Errorf("insert dm reaction: %w", err)
	}
	return r.reactionCount(ctx, messageID, emoji)
}

// RemoveReaction deletes one user's reaction and returns the emoji's
// remaining count. Removing an absent reaction is a no-op.
func (r *SQLRepository) RemoveReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) (int, error) {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM dm_message_reactions WHERE message_id = ? AND user_id = ? AND emoji = ?",
		messageID, userID, emoji)
	if err != nil {
		return 0, fmt.Errorf("delete dm reaction: %w", err)
	}
	return r.reactionCount(ctx, messageID, emoji)
}

func (r *SQLRepository) reactionCount(ctx context.Context, messageID uuid.UUID, emoji string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM dm_message_reactions WHERE message_id = ? AND emoji = ?",
		messageID, emoji).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count dm reactions: %w", err)
	}
	return count, nil
}

// MarkRead upserts the viewer's read cursor for a conversation. A nil
// messageID keeps an existing cursor in place.
func (r *SQLRepository) MarkRead(ctx context.Context, userID, conversationID uuid.UUID, messageID *uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO dm_read_states (user_id, conversation_id, last_read_message_id, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id, conversation_id) DO UPDATE SET
		     last_read_message_id = COALESCE(excluded.last_read_message_id, dm_read_states.last_read_message_id),
		     updated_at           = excluded.updated_at`,
		userID, conversationID, messageID, time.Now().UTC())
	if err != nil {
		if store.IsForeignKeyViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("upsert dm read state: %w", err)
	}
	return nil
}

// DeleteReadStatesForUser removes all of a user's DM read states on the
// caller's transaction. Part of the kick/ban cleanup.
func (r *SQLRepository) DeleteReadStatesForUser(ctx context.Context, q store.Querier, userID uuid.UUID) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM dm_read_states WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("delete dm read states: %w", err)
	}
	return nil
}

// attachExtras loads attachments and reaction groups for a page of DMs with
// one IN query per aggregate.
func (r *SQLRepository) attachExtras(ctx context.Context, messages []Message, viewerID uuid.UUID) error {
	if len(messages) == 0 {
		return nil
	}
	ids := make([]any, len(messages))
	index := make(map[uuid.UUID]int, len(messages))
	for i := range messages {
		ids[i] = messages[i].ID
		index[messages[i].ID] = i
	}
	in := placeholders(len(ids))

	rows, err := r.db.QueryContext(ctx,
		`SELECT dm_message_id, id, filename, url, content_type, size_bytes
		 FROM attachments
		 WHERE dm_message_id IN (`+in+`)
		 ORDER BY id`, ids...)
	if err != nil {
		return fmt.Errorf("query dm attachments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			msgID uuid.UUID
			att   wire.Attachment
		)
		if err := rows.Scan(&msgID, &att.ID, &att.Filename, &att.URL, &att.ContentType, &att.SizeBytes); err != nil {
			return fmt.Errorf("scan dm attachment: %w", err)
		}
		if i, ok := index[msgID]; ok {
			messages[i].Attachments = append(messages[i].Attachments, att)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate dm attachments: %w", err)
	}

	args := append([]any{viewerID}, ids...)
	rows, err = r.db.QueryContext(ctx,
		`SELECT message_id, emoji, COUNT(*),
		        MAX(CASE WHEN user_id = ? THEN 1 ELSE 0 END)
		 FROM dm_message_reactions
		 WHERE message_id IN (`+in+`)
		 GROUP BY message_id, emoji
		 ORDER BY message_id, MIN(created_at)`, args...)
	if err != nil {
		return fmt.Errorf("query dm reactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			msgID uuid.UUID
			group wire.ReactionGroup
			me    int
		)
		if err := rows.Scan(&msgID, &group.Emoji, &group.Count, &me); err != nil {
			return fmt.Errorf("scan dm reaction group: %w", err)
		}
		group.Me = me == 1
		if i, ok := index[msgID]; ok {
			messages[i].Reactions = append(messages[i].Reactions, group)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate dm reactions: %w", err)
	}
	return nil
}

// scanMessage scans a DM row via the given scan function so both sql.Row and
// sql.Rows work.
func scanMessage(scan func(...any) error, msg *Message) error {
	var editedAt sql.NullTime
	err := scan(&msg.ID, &msg.ConversationID, &msg.AuthorID, &msg.Content, &editedAt, &msg.CreatedAt)
	if err != nil {
		return err
	}
	if editedAt.Valid {
		t := editedAt.Time
		msg.EditedAt = &t
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
