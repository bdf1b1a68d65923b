// Package attachment tracks uploaded files. An upload inserts a pending row
// with both message columns NULL; sending a message (or DM) claims the row
// by setting the matching column. Pending rows that are never claimed get
// swept by the orphan purge.
package attachment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ecto-chat/ecto-server/internal/wire"
)

// ErrNotFound is returned when an attachment does not exist.
var ErrNotFound = errors.New("attachment not found")

// Attachment holds one uploaded file row. At most one of MessageID and
// DmMessageID is set; both NULL means the upload is still pending.
type Attachment struct {
	ID          uuid.UUID
	MessageID   *uuid.UUID
	DmMessageID *uuid.UUID
	UploaderID  uuid.UUID
	ChannelID   *uuid.UUID
	Filename    string
	URL         string
	ContentType string
	SizeBytes   int64
	CreatedAt   time.Time
}

// ToModel converts the attachment to its wire shape.
func (a *Attachment) ToModel() wire.Attachment {
	return wire.Attachment{
		ID:          a.ID,
		Filename:    a.Filename,
		URL:         a.URL,
		ContentType: a.ContentType,
		SizeBytes:   a.SizeBytes,
	}
}

// CreateParams groups the inputs for inserting a pending attachment.
// ChannelID is set for channel uploads and nil for DM uploads.
type CreateParams struct {
	UploaderID  uuid.UUID
	ChannelID   *uuid.UUID
	Filename    string
	URL         string
	ContentType string
	SizeBytes   int64
}

// Repository defines the data-access contract for attachment rows. Claiming
// a pending row for a message lives with the message repositories so the
// claim shares the message insert transaction.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (*Attachment, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Attachment, error)

	// TotalBytes sums the stored size of all attachment rows. Feeds the
	// shared storage quota together with the shared-file total.
	TotalBytes(ctx context.Context) (int64, error)

	// PurgeOrphans deletes pending rows older than the given threshold and
	// returns their URLs so the caller can remove the stored files.
	PurgeOrphans(ctx context.Context, olderThan time.Time) ([]string, error)
}
