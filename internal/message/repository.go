package message

import (
	"context"
	"database/sql"
	"encoding/json"
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
	db  *store.DB
	log zerolog.Logger
}

// NewSQLRepository creates a new SQL-backed message repository.
func NewSQLRepository(db *store.DB, logger zerolog.Logger) *SQLRepository {
	return &SQLRepository{db: db, log: logger}
}

// messageQuery is the shared SELECT for message reads. Messages carry no
// identity type, so the author profile joins both identity tables and takes
// whichever resolves; webhook messages resolve neither and keep empty
// profile columns.
const messageQuery = `SELECT m.id, m.channel_id, m.author_id, m.content, m.type, m.reply_to,
       m.pinned, m.mention_everyone, m.mention_roles, m.mention_users, m.webhook_id,
       m.edited_at, m.created_at,
       COALESCE(lu.username, cp.username, '')         AS username,
       COALESCE(cp.discriminator, '')                 AS discriminator,
       COALESCE(lu.display_name, cp.display_name, '') AS display_name,
       COALESCE(lu.avatar_url, cp.avatar_url, '')     AS avatar_url
FROM messages m
LEFT JOIN local_users lu ON lu.id = m.author_id
LEFT JOIN cached_profiles cp ON cp.user_id = m.author_id`

// Create inserts a message and binds any pending attachments to it. A reply
// target must exist in the same channel and not be deleted.
func (r *SQLRepository) Create(ctx context.Context, params CreateParams) (*Message, error) {
	mentionRoles, err := encodeIDs(params.MentionRoles)
	if err != nil {
		return nil, err
	}
	mentionUsers, err := encodeIDs(params.MentionUsers)
	if err != nil {
		return nil, err
	}

	id := store.NewID()
	err = r.db.WithTx(ctx, func(q store.Querier) error {
		if params.ReplyTo != nil {
			var exists bool
			err := q.QueryRowContext(ctx,
				"SELECT EXISTS(SELECT 1 FROM messages WHERE id = ? AND channel_id = ? AND deleted = FALSE)",
				*params.ReplyTo, params.ChannelID,
			).Scan(&exists)
			if err != nil {
				return fmt.Errorf("check reply target: %w", err)
			}
			if !exists {
				return ErrReplyNotFound
			}
		}

		if _, err := q.ExecContext(ctx,
			`INSERT INTO messages (id, channel_id, author_id, content, type, reply_to,
    mention_everyone, mention_roles, mention_users, webhook_id, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, params.ChannelID, params.AuthorID, params.Content, params.Type, params.ReplyTo,
			params.MentionEveryone, mentionRoles, mentionUsers, params.WebhookID, time.Now().UTC(),
		); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}

		if len(params.AttachmentIDs) == 0 {
			return nil
		}
		// Only the author's own unbound uploads attach; anything else in the
		// list is silently skipped.
		args := []any{id}
		for _, attID := range params.AttachmentIDs {
			args = append(args, attID)
		}
		args = append(args, params.AuthorID)
		if _, err := q.ExecContext(ctx,
			`UPDATE attachments SET message_id = ?
WHERE id IN (`+placeholders(len(params.AttachmentIDs))+`)
  AND uploader_id = ? AND message_id IS NULL AND dm_message_id IS NULL`,
			args...,
		); err != nil {
			return fmt.Errorf("bind attachments: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id, params.AuthorID)
}

// GetByID returns a single non-deleted message with its aggregates.
func (r *SQLRepository) GetByID(ctx context.Context, id, viewerID uuid.UUID) (*Message, error) {
	row := r.db.QueryRowContext(ctx, messageQuery+`
WHERE m.id = ? AND m.deleted = FALSE`, id)

	var msg Message
	if err := scanMessage(row.Scan, &msg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query message by id: %w", err)
	}

	messages := []Message{msg}
	if err := r.attachExtras(ctx, messages, viewerID); err != nil {
		return nil, err
	}
	return &messages[0], nil
}

// List returns non-deleted messages in a channel, newest first. Message IDs
// are time-ordered, so all three cursor modes compare on the id alone.
func (r *SQLRepository) List(ctx context.Context, channelID uuid.UUID, opts ListOptions) ([]Message, error) {
	limit := ClampLimit(opts.Limit)

	filter := "m.channel_id = ? AND m.deleted = FALSE"
	if opts.PinnedOnly {
		filter += " AND m.pinned = TRUE"
	}

	var (
		messages []Message
		err      error
	)
	switch {
	case opts.Around != nil:
		messages, err = r.listAround(ctx, filter, channelID, *opts.Around, limit)
	case opts.After != nil:
		messages, err = r.listPage(ctx, filter+" AND m.id > ?", "m.id ASC", channelID, *opts.After, limit)
		reverse(messages)
	case opts.Before != nil:
		messages, err = r.listPage(ctx, filter+" AND m.id < ?", "m.id DESC", channelID, *opts.Before, limit)
	default:
		messages, err = r.listPage(ctx, filter, "m.id DESC", channelID, limit)
	}
	if err != nil {
		return nil, err
	}

	if err := r.attachExtras(ctx, messages, opts.ViewerID); err != nil {
		return nil, err
	}
	return messages, nil
}

// listAround builds a window centred on one message. The anchor itself
// counts toward the window when it still exists.
func (r *SQLRepository) listAround(ctx context.Context, filter string, channelID, around uuid.UUID, limit int) ([]Message, error) {
	half := limit / 2
	newer, err := r.listPage(ctx, filter+" AND m.id >= ?", "m.id ASC", channelID, around, limit-half)
	if err != nil {
		return nil, err
	}
	reverse(newer)

	older, err := r.listPage(ctx, filter+" AND m.id < ?", "m.id DESC", channelID, around, half)
	if err != nil {
		return nil, err
	}
	return append(newer, older...), nil
}

// listPage runs one SELECT page. The trailing argument is always the limit.
func (r *SQLRepository) listPage(ctx context.Context, filter, order string, args ...any) ([]Message, error) {
	rows, err := r.db.QueryContext(ctx,
		messageQuery+"\nWHERE "+filter+"\nORDER BY "+order+"\nLIMIT ?", args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		if err := scanMessage(rows.Scan, &msg); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// Update sets new content on a non-deleted message and stamps edited_at.
// Authorship is checked by the caller against a prior read.
func (r *SQLRepository) Update(ctx context.Context, id uuid.UUID, content string, viewerID uuid.UUID) (*Message, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE messages SET content = ?, edited_at = ? WHERE id = ? AND deleted = FALSE",
		content, time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("update message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update message rows: %w", err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id, viewerID)
}

// SoftDelete marks a message deleted, hiding it from all reads. Returns
// ErrNotFound when the message does not exist or is already deleted.
func (r *SQLRepository) SoftDelete(ctx context.Context, q store.Querier, id uuid.UUID) error {
	res, err := q.ExecContext(ctx,
		"UPDATE messages SET deleted = TRUE WHERE id = ? AND deleted = FALSE", id)
	if err != nil {
		return fmt.Errorf("soft delete message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("soft delete message rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDeleteByAuthorSince soft-deletes the author's messages created after
// the cutoff, returning the affected ids grouped by channel so the caller
// can emit bulk-delete events.
func (r *SQLRepository) SoftDeleteByAuthorSince(ctx context.Context, q store.Querier, authorID uuid.UUID, since time.Time) (map[uuid.UUID][]uuid.UUID, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, channel_id FROM messages
		 WHERE author_id = ? AND created_at >= ? AND deleted = FALSE`,
		authorID, since)
	if err != nil {
		return nil, fmt.Errorf("query recent messages: %w", err)
	}
	defer rows.Close()

	byChannel := make(map[uuid.UUID][]uuid.UUID)
	var all []uuid.UUID
	for rows.Next() {
		var id, channelID uuid.UUID
		if err := rows.Scan(&id, &channelID); err != nil {
			return nil, fmt.Errorf("scan recent message: %w", err)
		}
		byChannel[channelID] = append(byChannel[channelID], id)
		all = append(all, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent messages: %w", err)
	}
	if len(all) == 0 {
		return byChannel, nil
	}

	args := make([]any, len(all))
	for i, id := range all {
		args[i] = id
	}
	if _, err := q.ExecContext(ctx,
		"UPDATE messages SET deleted = TRUE WHERE id IN ("+placeholders(len(args))+")",
		args...); err != nil {
		return nil, fmt.Errorf("soft delete recent messages: %w", err)
	}
	return byChannel, nil
}

// SetPinned toggles the pinned flag on a non-deleted message.
func (r *SQLRepository) SetPinned(ctx context.Context, id uuid.UUID, pinned bool) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE messages SET pinned = ? WHERE id = ? AND deleted = FALSE", pinned, id)
	if err != nil {
		return fmt.Errorf("set message pinned: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set message pinned rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// LastAuthoredAt returns when the author last posted a non-deleted regular
// message in the channel, or nil when they never have. System messages do
// not count toward slowmode.
func (r *SQLRepository) LastAuthoredAt(ctx context.Context, channelID, authorID uuid.UUID) (*time.Time, error) {
	var last time.Time
	err := r.db.QueryRowContext(ctx,
		`SELECT created_at FROM messages
WHERE channel_id = ? AND author_id = ? AND deleted = FALSE AND type = ?
ORDER BY id DESC
LIMIT 1`,
		channelID, authorID, wire.MessageTypeDefault).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query last authored message: %w", err)
	}
	return &last, nil
}

// AddReaction records one user's reaction. The primary key makes repeated
// adds a no-op. Returns the emoji's resulting count.
func (r *SQLRepository) AddReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) (int, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM messages WHERE id = ? AND deleted = FALSE)", messageID).Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("check message: %w", err)
	}
	if !exists {
		return 0, ErrNotFound
	}

	_, err = r.db.ExecContext(ctx,
		"INSERT INTO reactions (message_id, user_id, emoji, created_at) VALUES (?, ?, ?, ?)",
		messageID, userID, emoji, time.Now().UTC())
	if err != nil && !store.IsUniqueViolation(err) {
		return 0, fmt.Errorf("insert reaction: %w", err)
	}
	return r.reactionCount(ctx, messageID, emoji)
}

// RemoveReaction deletes one user's reaction and returns the emoji's
// remaining count. Removing an absent reaction is a no-op.
func (r *SQLRepository) RemoveReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) (int, error) {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM reactions WHERE message_id = ? AND user_id = ? AND emoji = ?",
		messageID, userID, emoji)
	if err != nil {
		return 0, fmt.Errorf("delete reaction: %w", err)
	}
	return r.reactionCount(ctx, messageID, emoji)
}

func (r *SQLRepository) reactionCount(ctx context.Context, messageID uuid.UUID, emoji string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM reactions WHERE message_id = ? AND emoji = ?",
		messageID, emoji).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count reactions: %w", err)
	}
	return count, nil
}

// Search matches message content, best match first on Postgres via the
// generated tsvector column, newest first on SQLite via LIKE.
func (r *SQLRepository) Search(ctx context.Context, params SearchParams) ([]Message, error) {
	limit := ClampLimit(params.Limit)

	filter := "m.deleted = FALSE"
	var args []any
	if params.ChannelID != nil {
		filter += " AND m.channel_id = ?"
		args = append(args, *params.ChannelID)
	}
	if params.AuthorID != nil {
		filter += " AND m.author_id = ?"
		args = append(args, *params.AuthorID)
	}

	var query string
	if r.db.Dialect() == store.DialectPostgres {
		filter += " AND m.content_tsv @@ plainto_tsquery('english', ?)"
		args = append(args, params.Query)
		query = messageQuery + "\nWHERE " + filter +
			"\nORDER BY ts_rank(m.content_tsv, plainto_tsquery('english', ?)) DESC, m.id DESC\nLIMIT ?"
		args = append(args, params.Query, limit)
	} else {
		filter += " AND m.content LIKE ?"
		args = append(args, "%"+params.Query+"%")
		query = messageQuery + "\nWHERE " + filter + "\nORDER BY m.id DESC\nLIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		if err := scanMessage(rows.Scan, &msg); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	if err := r.attachExtras(ctx, messages, params.ViewerID); err != nil {
		return nil, err
	}
	return messages, nil
}

// attachExtras loads attachments and reaction groups for a page of messages
// with one IN query per aggregate.
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
		`SELECT message_id, id, filename, url, content_type, size_bytes
FROM attachments
WHERE message_id IN (`+in+`)
ORDER BY id`, ids...)
	if err != nil {
		return fmt.Errorf("query attachments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			msgID uuid.UUID
			att   Attachment
		)
		if err := rows.Scan(&msgID, &att.ID, &att.Filename, &att.URL, &att.ContentType, &att.SizeBytes); err != nil {
			return fmt.Errorf("scan attachment: %w", err)
		}
		if i, ok := index[msgID]; ok {
			messages[i].Attachments = append(messages[i].Attachments, att)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate attachments: %w", err)
	}

	args := append([]any{viewerID}, ids...)
	rows, err = r.db.QueryContext(ctx,
		`SELECT message_id, emoji, COUNT(*),
       MAX(CASE WHEN user_id = ? THEN 1 ELSE 0 END)
FROM reactions
WHERE message_id IN (`+in+`)
GROUP BY message_id, emoji
ORDER BY message_id, MIN(created_at)`, args...)
	if err != nil {
		return fmt.Errorf("query reactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			msgID uuid.UUID
			group ReactionGroup
			me    int
		)
		if err := rows.Scan(&msgID, &group.Emoji, &group.Count, &me); err != nil {
			return fmt.Errorf("scan reaction group: %w", err)
		}
		group.Me = me == 1
		if i, ok := index[msgID]; ok {
			messages[i].Reactions = append(messages[i].Reactions, group)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate reactions: %w", err)
	}
	return nil
}

// scanMessage scans a message row via the given scan function so both
// sql.Row and sql.Rows work.
func scanMessage(scan func(...any) error, msg *Message) error {
	var (
		replyTo   uuid.NullUUID
		webhookID uuid.NullUUID
		editedAt  sql.NullTime
		roles     string
		users     string
	)
	err := scan(
		&msg.ID, &msg.ChannelID, &msg.AuthorID, &msg.Content, &msg.Type, &replyTo,
		&msg.Pinned, &msg.MentionEveryone, &roles, &users, &webhookID,
		&editedAt, &msg.CreatedAt,
		&msg.AuthorUsername, &msg.AuthorDiscriminator, &msg.AuthorDisplayName, &msg.AuthorAvatarURL,
	)
	if err != nil {
		return err
	}
	if replyTo.Valid {
		msg.ReplyTo = &replyTo.UUID
	}
	if webhookID.Valid {
		msg.WebhookID = &webhookID.UUID
	}
	if editedAt.Valid {
		t := editedAt.Time
		msg.EditedAt = &t
	}
	if msg.MentionRoles, err = decodeIDs(roles); err != nil {
		return err
	}
	if msg.MentionUsers, err = decodeIDs(users); err != nil {
		return err
	}
	return nil
}

// encodeIDs serialises a uuid list to the JSON text column format.
func encodeIDs(ids []uuid.UUID) (string, error) {
	if len(ids) == 0 {
		return "[]", nil
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("encode id list: %w", err)
	}
	return string(raw), nil
}

func decodeIDs(raw string) ([]uuid.UUID, error) {
	if raw == "" || raw == "[]" {
		return nil, nil
	}
	var ids []uuid.UUID
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("decode id list: %w", err)
	}
	return ids, nil
}

func reverse(messages []Message) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
