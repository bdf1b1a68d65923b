package attachment

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

const selectColumns = "id, message_id, dm_message_id, uploader_id, channel_id, filename, url, content_type, size_bytes, created_at"

// SQLRepository implements Repository on the shared store handle.
type SQLRepository struct {
	db  *store.DB
	log zerolog.Logger
}

// NewSQLRepository creates a new SQL-backed attachment repository.
func NewSQLRepository(db *store.DB, logger zerolog.Logger) *SQLRepository {
	return &SQLRepository{db: db, log: logger}
}

// Create inserts a pending attachment row with both message columns NULL.
func (r *SQLRepository) Create(ctx context.Context, params CreateParams) (*Attachment, error) {
	att := Attachment{
		ID:          store.NewID(),
		UploaderID:  params.UploaderID,
		ChannelID:   params.ChannelID,
		Filename:    params.Filename,
		URL:         params.URL,
		ContentType: params.ContentType,
		SizeBytes:   params.SizeBytes,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO attachments (id, uploader_id, channel_id, filename, url, content_type, size_bytes, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		att.ID, att.UploaderID, att.ChannelID, att.Filename, att.URL, att.ContentType, att.SizeBytes, att.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert attachment: %w", err)
	}
	return &att, nil
}

// GetByID returns a single attachment by ID.
func (r *SQLRepository) GetByID(ctx context.Context, id uuid.UUID) (*Attachment, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+selectColumns+" FROM attachments WHERE id = ?", id)

	var (
		att         Attachment
		messageID   uuid.NullUUID
		dmMessageID uuid.NullUUID
		channelID   uuid.NullUUID
	)
	err := row.Scan(
		&att.ID, &messageID, &dmMessageID, &att.UploaderID, &channelID,
		&att.Filename, &att.URL, &att.ContentType, &att.SizeBytes, &att.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query attachment by id: %w", err)
	}
	if messageID.Valid {
		att.MessageID = &messageID.UUID
	}
	if dmMessageID.Valid {
		att.DmMessageID = &dmMessageID.UUID
	}
	if channelID.Valid {
		att.ChannelID = &channelID.UUID
	}
	return &att, nil
}

// TotalBytes sums the stored size of all attachment rows.
func (r *SQLRepository) TotalBytes(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(size_bytes), 0) FROM attachments").Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum attachment bytes: %w", err)
	}
	return total, nil
}

// PurgeOrphans deletes pending rows older than the threshold and returns
// their URLs for file cleanup.
func (r *SQLRepository) PurgeOrphans(ctx context.Context, olderThan time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`DELETE FROM attachments
WHERE message_id IS NULL AND dm_message_id IS NULL AND created_at < ?
RETURNING url`, olderThan)
	if err != nil {
		return nil, fmt.Errorf("purge orphan attachments: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("scan orphan url: %w", err)
		}
		urls = append(urls, url)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orphan urls: %w", err)
	}
	return urls, nil
}
