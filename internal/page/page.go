// Package page stores the wiki content of page channels. Updates use
// optimistic concurrency: the client echoes the version it edited and the
// write succeeds only when that version is still current, snapshotting the
// pre-update state as a revision.
package page

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/ecto-chat/ecto-server/internal/wire"
)

// Sentinel errors for the page package.
var (
	ErrVersionConflict  = errors.New("page was modified by someone else")
	ErrContentTooLong   = errors.New("page content exceeds the maximum length")
	ErrRevisionNotFound = errors.New("page revision not found")
)

// MaxContentLength caps page content in runes.
const MaxContentLength = 100_000

// sanitizer strips scripts and event handlers from user-authored markup
// while keeping the formatting tags pages rely on.
var sanitizer = bluemonday.UGCPolicy()

// Page is the current content of one page channel. Version zero means the
// page has never been edited.
type Page struct {
	ChannelID uuid.UUID
	Content   string
	BannerURL string
	Version   int
	EditedBy  *uuid.UUID
	EditedAt  *time.Time
}

// ToModel converts the page to its wire shape.
func (p *Page) ToModel() wire.Page {
	return wire.Page{
		ChannelID: p.ChannelID,
		Content:   p.Content,
		BannerURL: p.BannerURL,
		Version:   p.Version,
		EditedBy:  p.EditedBy,
		EditedAt:  p.EditedAt,
	}
}

// Revision is a pre-edit snapshot.
type Revision struct {
	ID        uuid.UUID
	ChannelID uuid.UUID
	Content   string
	Version   int
	EditedBy  uuid.UUID
	CreatedAt time.Time
}

// ToModel converts the revision to its wire shape.
func (rev *Revision) ToModel() wire.PageRevision {
	return wire.PageRevision{
		ID:        rev.ID,
		ChannelID: rev.ChannelID,
		Content:   rev.Content,
		Version:   rev.Version,
		EditedBy:  rev.EditedBy,
		CreatedAt: rev.CreatedAt,
	}
}

// UpdateParams groups the inputs for a page update. Version is the version
// the editor based their change on. A nil BannerURL leaves the banner as is.
type UpdateParams struct {
	Content   string
	Version   int
	BannerURL *string
	EditorID  uuid.UUID
}

// ValidateContent sanitises page markup and checks the length bound.
func ValidateContent(content string) (string, error) {
	cleaned := strings.TrimSpace(sanitizer.Sanitize(content))
	if utf8.RuneCountInString(cleaned) > MaxContentLength {
		return "", ErrContentTooLong
	}
	return cleaned, nil
}

// Repository defines the data-access contract for page content.
type Repository interface {
	// Get returns the page for a channel. A channel that was never edited
	// yields an empty page at version zero.
	Get(ctx context.Context, channelID uuid.UUID) (*Page, error)

	// Update applies an optimistic-concurrency write: it fails with
	// ErrVersionConflict unless params.Version matches the stored version,
	// and records the pre-update state as a revision.
	Update(ctx context.Context, channelID uuid.UUID, params UpdateParams) (*Page, error)

	ListRevisions(ctx context.Context, channelID uuid.UUID, limit int) ([]Revision, error)
	GetRevision(ctx context.Context, id uuid.UUID) (*Revision, error)
}
