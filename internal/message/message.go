// Package message implements channel messages: creation with reply targets
// and mention parsing, keyset-paginated history, pins, reactions, soft
// deletion, and content search.
package message

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ecto-chat/ecto-server/internal/store"
	"github.com/ecto-chat/ecto-server/internal/wire"
)

// Sentinel errors for the message package.
var (
	ErrNotFound       = errors.New("message not found")
	ErrContentTooLong = errors.New("message content exceeds the maximum length")
	ErrEmptyMessage   = errors.New("message needs content or at least one attachment")
	ErrReplyNotFound  = errors.New("reply target message not found")
	ErrNotAuthor      = errors.New("you can only modify your own messages")
	ErrInvalidEmoji   = errors.New("emoji must be between 1 and 64 characters")
)

// Content and pagination bounds.
const (
	MaxContentLength = 4000
	MaxEmojiLength   = 64
	DefaultLimit     = 50
	MaxLimit         = 100
)

// Message holds one message row plus the aggregates a read carries: the
// author profile and the message's attachments and reaction groups.
type Message struct {
	ID              uuid.UUID
	ChannelID       uuid.UUID
	AuthorID        uuid.UUID
	Content         string
	Type            int
	ReplyTo         *uuid.UUID
	Pinned          bool
	MentionEveryone bool
	MentionRoles    []uuid.UUID
	MentionUsers    []uuid.UUID
	WebhookID       *uuid.UUID
	EditedAt        *time.Time
	CreatedAt       time.Time

	// Author profile resolved from the identity tables. Empty username means
	// no profile row exists, e.g. webhook-authored messages.
	AuthorUsername      string
	AuthorDiscriminator string
	AuthorDisplayName   string
	AuthorAvatarURL     string

	Attachments []Attachment
	Reactions   []ReactionGroup
}

// Attachment is the file subset carried on a message read.
type Attachment struct {
	ID          uuid.UUID
	Filename    string
	URL         string
	ContentType string
	SizeBytes   int64
}

// ReactionGroup is one emoji's aggregate on a message.
type ReactionGroup struct {
	Emoji string
	Count int
	Me    bool
}

// ToModel converts the message to its wire shape. Slice fields are always
// non-nil so they encode as [] rather than null.
func (m *Message) ToModel() wire.Message {
	msg := wire.Message{
		ID:              m.ID,
		ChannelID:       m.ChannelID,
		AuthorID:        m.AuthorID,
		Content:         m.Content,
		Type:            m.Type,
		ReplyTo:         m.ReplyTo,
		Pinned:          m.Pinned,
		MentionEveryone: m.MentionEveryone,
		MentionRoles:    m.MentionRoles,
		MentionUsers:    m.MentionUsers,
		WebhookID:       m.WebhookID,
		Attachments:     make([]wire.Attachment, 0, len(m.Attachments)),
		Reactions:       make([]wire.ReactionGroup, 0, len(m.Reactions)),
		EditedAt:        m.EditedAt,
		CreatedAt:       m.CreatedAt,
	}
	if msg.MentionRoles == nil {
		msg.MentionRoles = []uuid.UUID{}
	}
	if msg.MentionUsers == nil {
		msg.MentionUsers = []uuid.UUID{}
	}
	if m.AuthorUsername != "" {
		msg.Author = &wire.Profile{
			ID:            m.AuthorID,
			Username:      m.AuthorUsername,
			Discriminator: m.AuthorDiscriminator,
			DisplayName:   m.AuthorDisplayName,
			AvatarURL:     m.AuthorAvatarURL,
		}
	}
	for _, a := range m.Attachments {
		msg.Attachments = append(msg.Attachments, wire.Attachment{
			ID:          a.ID,
			Filename:    a.Filename,
			URL:         a.URL,
			ContentType: a.ContentType,
			SizeBytes:   a.SizeBytes,
		})
	}
	for _, g := range m.Reactions {
		msg.Reactions = append(msg.Reactions, wire.ReactionGroup{
			Emoji: g.Emoji,
			Count: g.Count,
			Me:    g.Me,
		})
	}
	return msg
}

// CreateParams groups the inputs for inserting a message. Mention fields are
// the parse result after permission gating; AttachmentIDs are pending uploads
// to bind to the new message.
type CreateParams struct {
	ChannelID       uuid.UUID
	AuthorID        uuid.UUID
	Content         string
	Type            int
	ReplyTo         *uuid.UUID
	MentionEveryone bool
	MentionRoles    []uuid.UUID
	MentionUsers    []uuid.UUID
	WebhookID       *uuid.UUID
	AttachmentIDs   []uuid.UUID
}

// ListOptions narrows a channel history read. At most one of Before, After,
// or Around should be set; Around centres the window on the referenced
// message. ViewerID drives the per-viewer reaction flag.
type ListOptions struct {
	Before     *uuid.UUID
	After      *uuid.UUID
	Around     *uuid.UUID
	PinnedOnly bool
	Limit      int
	ViewerID   uuid.UUID
}

// SearchParams narrows a content search.
type SearchParams struct {
	Query     string
	ChannelID *uuid.UUID
	AuthorID  *uuid.UUID
	Limit     int
	ViewerID  uuid.UUID
}

// ValidateContent trims content and checks it against the given maximum rune
// count. Empty content is allowed here; whether a message may be empty
// depends on its attachments and is checked by the caller.
func ValidateContent(content string, maxLength int) (string, error) {
	trimmed := strings.TrimSpace(content)
	if utf8.RuneCountInString(trimmed) > maxLength {
		return "", ErrContentTooLong
	}
	return trimmed, nil
}

// ValidateEmoji checks a reaction emoji, returning it trimmed.
func ValidateEmoji(emoji string) (string, error) {
	trimmed := strings.TrimSpace(emoji)
	if trimmed == "" || utf8.RuneCountInString(trimmed) > MaxEmojiLength {
		return "", ErrInvalidEmoji
	}
	return trimmed, nil
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

// Mention tokens follow the client markup: <@id> for users, <@&id> for
// roles, <#id> for channels, plus the literal @everyone.
var (
	userMentionPattern    = regexp.MustCompile(`<@([0-9a-fA-F-]{36})>`)
	roleMentionPattern    = regexp.MustCompile(`<@&([0-9a-fA-F-]{36})>`)
	channelMentionPattern = regexp.MustCompile(`<#([0-9a-fA-F-]{36})>`)
)

// Mentions is the parse result for one message body. Whether role and
// everyone mentions are honoured is a permission decision made by the caller.
type Mentions struct {
	Everyone   bool
	UserIDs    []uuid.UUID
	RoleIDs    []uuid.UUID
	ChannelIDs []uuid.UUID
}

// ParseMentions extracts mention tokens from content. Tokens that do not
// parse as UUIDs are ignored and duplicates collapse to their first
// occurrence.
func ParseMentions(content string) Mentions {
	return Mentions{
		Everyone:   strings.Contains(content, "@everyone"),
		UserIDs:    extractIDs(userMentionPattern, content),
		RoleIDs:    extractIDs(roleMentionPattern, content),
		ChannelIDs: extractIDs(channelMentionPattern, content),
	}
}

func extractIDs(pattern *regexp.Regexp, content string) []uuid.UUID {
	matches := pattern.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[uuid.UUID]struct{}, len(matches))
	var ids []uuid.UUID
	for _, match := range matches {
		id, err := uuid.Parse(match[1])
		if err != nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// Repository defines the data-access contract for message operations.
// SoftDelete takes a Querier so moderator deletions can join the audit record
// in one transaction.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (*Message, error)
	GetByID(ctx context.Context, id, viewerID uuid.UUID) (*Message, error)
	List(ctx context.Context, channelID uuid.UUID, opts ListOptions) ([]Message, error)
	Update(ctx context.Context, id uuid.UUID, content string, viewerID uuid.UUID) (*Message, error)
	SoftDelete(ctx context.Context, q store.Querier, id uuid.UUID) error
	SoftDeleteByAuthorSince(ctx context.Context, q store.Querier, authorID uuid.UUID, since time.Time) (map[uuid.UUID][]uuid.UUID, error)
	SetPinned(ctx context.Context, id uuid.UUID, pinned bool) error
	LastAuthoredAt(ctx context.Context, channelID, authorID uuid.UUID) (*time.Time, error)
	AddReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) (count int, err error)
	RemoveReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) (count int, err error)
	Search(ctx context.Context, params SearchParams) ([]Message, error)
}
