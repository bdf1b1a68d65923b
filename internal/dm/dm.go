// Package dm implements per-server direct messages: two-party conversations
// stored as canonical pairs, their message streams, reactions, and per-user
// read positions.
package dm

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ecto-chat/ecto-server/internal/store"
	"github.com/ecto-chat/ecto-server/internal/wire"
)

// Sentinel errors for the dm package.
var (
	ErrNotFound        = errors.New("conversation not found")
	ErrMessageNotFound = errors.New("dm message not found")
	ErrNotParticipant  = errors.New("you are not a participant of this conversation")
	ErrNotAuthor       = errors.New("you can only modify your own messages")
	ErrSelfDm          = errors.New("cannot open a conversation with yourself")
	ErrEmptyMessage    = errors.New("message needs content or at least one attachment")
)

// Pagination defaults shared with channel messages.
const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// Conversation is one two-party thread. UnreadCount is resolved per viewer on
// list reads.
type Conversation struct {
	ID            uuid.UUID
	UserA         uuid.UUID
	UserB         uuid.UUID
	LastMessageAt *time.Time
	UnreadCount   int
	CreatedAt     time.Time
}

// ToModel converts the conversation to its wire shape.
func (c *Conversation) ToModel() wire.DmConversation {
	return wire.DmConversation{
		ID:            c.ID,
		UserA:         c.UserA,
		UserB:         c.UserB,
		LastMessageAt: c.LastMessageAt,
		UnreadCount:   c.UnreadCount,
		CreatedAt:     c.CreatedAt,
	}
}

// Peer returns the other participant from the given user's point of view.
func (c *Conversation) Peer(userID uuid.UUID) uuid.UUID {
	if c.UserA == userID {
		return c.UserB
	}
	return c.UserA
}

// HasParticipant reports whether the user is one of the two parties.
func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	return c.UserA == userID || c.UserB == userID
}

// Message is one DM with its aggregates.
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	AuthorID       uuid.UUID
	Content        string
	EditedAt       *time.Time
	CreatedAt      time.Time

	Attachments []wire.Attachment
	Reactions   []wire.ReactionGroup
}

// ToModel converts the message to its wire shape. Slice fields are always
// non-nil so they encode as [] rather than null.
func (m *Message) ToModel() wire.DmMessage {
	msg := wire.DmMessage{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		AuthorID:       m.AuthorID,
		Content:        m.Content,
		Attachments:    m.Attachments,
		Reactions:      m.Reactions,
		EditedAt:       m.EditedAt,
		CreatedAt:      m.CreatedAt,
	}
	if msg.Attachments == nil {
		msg.Attachments = []wire.Attachment{}
	}
	if msg.Reactions == nil {
		msg.Reactions = []wire.ReactionGroup{}
	}
	return msg
}

// CanonicalPair orders two participant ids lexicographically so every
// conversation between the same users maps to one row.
func CanonicalPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if a.String() > b.String() {
		return b, a
	}
	return a, b
}

// CreateMessageParams groups the inputs for inserting a DM.
type CreateMessageParams struct {
	ConversationID uuid.UUID
	AuthorID       uuid.UUID
	Content        string
	AttachmentIDs  []uuid.UUID
}

// HistoryOptions narrows a conversation history read.
type HistoryOptions struct {
	Before   *uuid.UUID
	Limit    int
	ViewerID uuid.UUID
}

// ClampLimit constrains a requested page size to [1, MaxLimit], defaulting to
// DefaultLimit when the input is zero or negative.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Repository defines the data-access contract for DM operations.
// DeleteReadStatesForUser takes a Querier so kick cleanup shares its
// transaction.
type Repository interface {
	// Open finds or creates the conversation between two users.
	Open(ctx context.Context, a, b uuid.UUID) (*Conversation, error)
	GetConversation(ctx context.Context, id uuid.UUID) (*Conversation, error)

	// ListConversations returns the user's conversations, most recent
	// activity first, with per-viewer unread counts resolved.
	ListConversations(ctx context.Context, userID uuid.UUID) ([]Conversation, error)

	History(ctx context.Context, conversationID uuid.UUID, opts HistoryOptions) ([]Message, error)
	GetMessage(ctx context.Context, id, viewerID uuid.UUID) (*Message, error)
	CreateMessage(ctx context.Context, params CreateMessageParams) (*Message, error)
	UpdateMessage(ctx context.Context, id uuid.UUID, content string, viewerID uuid.UUID) (*Message, error)
	SoftDeleteMessage(ctx context.Context, id uuid.UUID) error
	AddReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) (count int, err error)
	RemoveReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) (count int, err error)
	MarkRead(ctx context.Context, userID, conversationID uuid.UUID, messageID *uuid.UUID) error
	DeleteReadStatesForUser(ctx context.Context, q store.Querier, userID uuid.UUID) error
}
