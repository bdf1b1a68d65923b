// Package channel manages the server's text, voice and page channels.
package channel

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ecto-chat/ecto-server/internal/wire"
)

// validTypes is the set of allowed channel types.
var validTypes = map[string]bool{
	wire.ChannelTypeText:  true,
	wire.ChannelTypeVoice: true,
	wire.ChannelTypePage:  true,
}

// Sentinel errors for the channel package.
var (
	ErrNotFound           = errors.New("channel not found")
	ErrMaxChannelsReached = errors.New("maximum number of channels reached")
	ErrNameLength         = errors.New("channel name must be between 1 and 100 characters")
	ErrInvalidType        = errors.New("invalid channel type")
	ErrTopicLength        = errors.New("channel topic must be 1024 characters or fewer")
	ErrInvalidSlowmode    = errors.New("slowmode seconds must be between 0 and 21600")
	ErrInvalidPosition    = errors.New("position must be non-negative")
	ErrCategoryNotFound   = errors.New("category not found")
)

// MaxChannels caps how many channels a server can hold.
const MaxChannels = 500

// Channel holds the fields read from the database.
type Channel struct {
	ID              uuid.UUID
	CategoryID      *uuid.UUID
	Name            string
	Type            string
	Topic           string
	Position        int
	SlowmodeSeconds int
	NSFW            bool
	CreatedAt       time.Time
}

// ToModel converts the internal channel to the wire response type. The
// caller's resolved permission mask is attached separately where a read
// requires it.
func (ch *Channel) ToModel() wire.Channel {
	return wire.Channel{
		ID:              ch.ID,
		Name:            ch.Name,
		Type:            ch.Type,
		CategoryID:      ch.CategoryID,
		Topic:           ch.Topic,
		Position:        ch.Position,
		SlowmodeSeconds: ch.SlowmodeSeconds,
		NSFW:            ch.NSFW,
	}
}

// IsPage reports whether this is a page channel, which holds a single
// editable document instead of a message stream.
func (ch *Channel) IsPage() bool { return ch.Type == wire.ChannelTypePage }

// IsVoice reports whether this is a voice channel.
func (ch *Channel) IsVoice() bool { return ch.Type == wire.ChannelTypeVoice }

// CreateParams groups the inputs for creating a new channel.
type CreateParams struct {
	Name            string
	Type            string
	CategoryID      *uuid.UUID
	Topic           string
	SlowmodeSeconds int
	NSFW            bool
}

// UpdateParams groups the optional fields for updating a channel.
// SetCategoryNull distinguishes "no change" (nil CategoryID with
// SetCategoryNull false) from "remove from category" (SetCategoryNull true).
type UpdateParams struct {
	Name            *string
	CategoryID      *uuid.UUID
	SetCategoryNull bool
	Topic           *string
	Position        *int
	SlowmodeSeconds *int
	NSFW            *bool
}

// PositionUpdate pairs a channel with its new position for reorder
// operations. A reorder may move a channel between categories at the same
// time.
type PositionUpdate struct {
	ID         uuid.UUID  `json:"id"`
	Position   int        `json:"position"`
	CategoryID *uuid.UUID `json:"category_id,omitempty"`
}

// ValidateName checks that a non-nil name is between 1 and 100 runes after
// trimming whitespace. A nil pointer means "no change". On success the
// pointed-to value is replaced with the trimmed result.
func ValidateName(name *string) error {
	if name == nil {
		return nil
	}
	trimmed, err := ValidateNameRequired(*name)
	if err != nil {
		return err
	}
	*name = trimmed
	return nil
}

// ValidateNameRequired validates and trims a name that must be present. It
// returns the trimmed result on success.
func ValidateNameRequired(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if utf8.RuneCountInString(trimmed) < 1 || utf8.RuneCountInString(trimmed) > 100 {
		return "", ErrNameLength
	}
	return trimmed, nil
}

// ValidateType checks that the channel type is one of the allowed values.
func ValidateType(t string) error {
	if !validTypes[t] {
		return ErrInvalidType
	}
	return nil
}

// ValidateTopic checks that a non-nil topic is 1024 runes or fewer.
func ValidateTopic(topic *string) error {
	if topic == nil {
		return nil
	}
	if utf8.RuneCountInString(*topic) > 1024 {
		return ErrTopicLength
	}
	return nil
}

// ValidateSlowmode checks that a non-nil slowmode value is between 0 and
// 21600 seconds (6 hours).
func ValidateSlowmode(seconds *int) error {
	if seconds == nil {
		return nil
	}
	if *seconds < 0 || *seconds > 21600 {
		return ErrInvalidSlowmode
	}
	return nil
}

// ValidatePosition checks that a non-nil position is non-negative.
func ValidatePosition(pos *int) error {
	if pos == nil {
		return nil
	}
	if *pos < 0 {
		return ErrInvalidPosition
	}
	return nil
}

// Repository defines the data-access contract for channel operations.
type Repository interface {
	List(ctx context.Context) ([]Channel, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Channel, error)
	Create(ctx context.Context, params CreateParams) (*Channel, error)
	Update(ctx context.Context, id uuid.UUID, params UpdateParams) (*Channel, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Reorder(ctx context.Context, positions []PositionUpdate) error
}
