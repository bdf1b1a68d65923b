// Package readstate tracks per-user read positions and mention counters for
// channels, plus the activity feed that mirrors mention notifications.
package readstate

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ecto-chat/ecto-server/internal/store"
	"github.com/ecto-chat/ecto-server/internal/wire"
)

// ErrChannelNotFound is returned when marking read against a channel that
// does not exist.
var ErrChannelNotFound = errors.New("channel not found")

// Activity feed entry types.
const (
	ActivityMention = "mention"
	ActivityReply   = "reply"
)

// ActivityLimit is the fixed page size of the activity feed.
const ActivityLimit = 50

// ReadState is one user's position in one channel.
type ReadState struct {
	UserID            uuid.UUID
	ChannelID         uuid.UUID
	LastReadMessageID *uuid.UUID
	MentionCount      int
	UpdatedAt         time.Time
}

// ToModel converts the read state to its wire shape.
func (rs *ReadState) ToModel() wire.ReadState {
	return wire.ReadState{
		ChannelID:         rs.ChannelID,
		LastReadMessageID: rs.LastReadMessageID,
		MentionCount:      rs.MentionCount,
	}
}

// ActivityItem is one entry of a user's notification feed.
type ActivityItem struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Type      string
	ChannelID *uuid.UUID
	MessageID *uuid.UUID
	ActorID   *uuid.UUID
	CreatedAt time.Time
}

// ToModel converts the activity item to its wire shape.
func (a *ActivityItem) ToModel() wire.ActivityItem {
	return wire.ActivityItem{
		ID:        a.ID,
		Type:      a.Type,
		ChannelID: a.ChannelID,
		MessageID: a.MessageID,
		ActorID:   a.ActorID,
		CreatedAt: a.CreatedAt,
	}
}

// ActivityParams groups the inputs for appending an activity entry.
type ActivityParams struct {
	UserID    uuid.UUID
	Type      string
	ChannelID *uuid.UUID
	MessageID *uuid.UUID
	ActorID   *uuid.UUID
}

// Repository defines the data-access contract for read states and the
// activity feed. IncrementMention and AddActivity take a Querier so the
// mention side effects of a message send share its transaction; DeleteForUser
// joins the kick/ban cleanup transaction.
type Repository interface {
	List(ctx context.Context, userID uuid.UUID) ([]ReadState, error)
	MarkRead(ctx context.Context, userID, channelID uuid.UUID, messageID *uuid.UUID) (*ReadState, error)
	IncrementMention(ctx context.Context, q store.Querier, userID, channelID uuid.UUID) (count int, err error)
	DeleteForUser(ctx context.Context, q store.Querier, userID uuid.UUID) error
	AddActivity(ctx context.Context, q store.Querier, params ActivityParams) error
	ListActivity(ctx context.Context, userID uuid.UUID) ([]ActivityItem, error)
}
