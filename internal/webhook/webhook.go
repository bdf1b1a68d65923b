// Package webhook manages inbound message hooks. Tokens are random secrets
// handed out once at create/regenerate time; only their HMAC digests are
// stored, so execution verifies the presented token against the digest.
package webhook

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ecto-chat/ecto-server/internal/wire"
)

// Sentinel errors for the webhook package.
var (
	ErrNotFound      = errors.New("webhook not found")
	ErrInvalidToken  = errors.New("webhook token mismatch")
	ErrNameLength    = errors.New("webhook name must be between 1 and 80 characters")
	ErrChannelGone   = errors.New("channel not found")
	ErrNotTextTarget = errors.New("webhooks can only target text channels")
)

// TokenBytes is the webhook secret length before hex encoding.
const TokenBytes = 32

// Webhook holds one hook row. Token is only populated on create and
// regenerate, when the plaintext secret exists.
type Webhook struct {
	ID          uuid.UUID
	ChannelID   uuid.UUID
	CreatorID   uuid.UUID
	Name        string
	AvatarURL   string
	TokenDigest string
	Token       string
	CreatedAt   time.Time
}

// ToModel converts the webhook to its wire shape. The digest never leaves the
// package.
func (w *Webhook) ToModel() wire.Webhook {
	return wire.Webhook{
		ID:        w.ID,
		ChannelID: w.ChannelID,
		Name:      w.Name,
		AvatarURL: w.AvatarURL,
		Token:     w.Token,
		CreatorID: w.CreatorID,
		CreatedAt: w.CreatedAt,
	}
}

// CreateParams groups the inputs for creating a webhook.
type CreateParams struct {
	ChannelID   uuid.UUID
	CreatorID   uuid.UUID
	Name        string
	AvatarURL   string
	TokenDigest string
}

// ValidateName trims and bounds a webhook name.
func ValidateName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if n := utf8.RuneCountInString(trimmed); n < 1 || n > 80 {
		return "", ErrNameLength
	}
	return trimmed, nil
}

// Repository defines the data-access contract for webhook rows.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (*Webhook, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Webhook, error)
	List(ctx context.Context) ([]Webhook, error)
	ListByChannel(ctx context.Context, channelID uuid.UUID) ([]Webhook, error)
	Delete(ctx context.Context, id uuid.UUID) error
	SetTokenDigest(ctx context.Context, id uuid.UUID, digest string) error
}
