package wire

import (
	"time"

	"github.com/google/uuid"
)

// Channel types.
const (
	ChannelTypeText  = "text"
	ChannelTypeVoice = "voice"
	ChannelTypePage  = "page"
)

// Message types. MessageTypeDefault is a plain user message; system messages
// use the remaining values.
const (
	MessageTypeDefault  = 0
	MessageTypePinAdded = 1
)

// Identity types carried in tokens and member rows.
const (
	IdentityGlobal = "global"
	IdentityLocal  = "local"
)

// Presence statuses.
const (
	StatusOnline    = "online"
	StatusIdle      = "idle"
	StatusDND       = "dnd"
	StatusInvisible = "invisible"
	StatusOffline   = "offline"
)

// Override target types.
const (
	TargetRole   = "role"
	TargetMember = "member"
)

// Shared item types for the shared-file permission chain.
const (
	SharedItemFolder = "folder"
	SharedItemFile   = "file"
)

// Server is the tenant root object.
type Server struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	IconURL     string     `json:"icon_url,omitempty"`
	BannerURL   string     `json:"banner_url,omitempty"`
	AdminUserID *uuid.UUID `json:"admin_user_id,omitempty"`
	SetupDone   bool       `json:"setup_done"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ServerConfig carries the per-server tunables.
type ServerConfig struct {
	MaxUploadSizeBytes    int64 `json:"max_upload_size_bytes"`
	MaxSharedStorageBytes int64 `json:"max_shared_storage_bytes"`
	AllowLocalAccounts    bool  `json:"allow_local_accounts"`
	RequireInvite         bool  `json:"require_invite"`
	AllowMemberDms        bool  `json:"allow_member_dms"`
	ShowSystemMessages    bool  `json:"show_system_messages"`
}

// Profile is the user-facing identity attached to members, messages and DMs.
type Profile struct {
	ID            uuid.UUID `json:"id"`
	Username      string    `json:"username"`
	Discriminator string    `json:"discriminator,omitempty"`
	DisplayName   string    `json:"display_name,omitempty"`
	AvatarURL     string    `json:"avatar_url,omitempty"`
}

// Member is a user's participation in the server.
type Member struct {
	UserID       uuid.UUID   `json:"user_id"`
	IdentityType string      `json:"identity_type"`
	Nickname     string      `json:"nickname,omitempty"`
	AllowDms     bool        `json:"allow_dms"`
	RoleIDs      []uuid.UUID `json:"role_ids"`
	Profile      *Profile    `json:"profile,omitempty"`
	JoinedAt     time.Time   `json:"joined_at"`
}

// Role is a named permission bundle.
type Role struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Color       string    `json:"color,omitempty"`
	Permissions uint64    `json:"permissions"`
	Position    int       `json:"position"`
	IsDefault   bool      `json:"is_default"`
}

// Category groups channels.
type Category struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Position int       `json:"position"`
}

// Channel is a text, voice or page channel. MyPermissions is populated on
// reads that resolve the caller's effective mask (system.ready, channel list).
type Channel struct {
	ID              uuid.UUID  `json:"id"`
	Name            string     `json:"name"`
	Type            string     `json:"type"`
	CategoryID      *uuid.UUID `json:"category_id,omitempty"`
	Topic           string     `json:"topic,omitempty"`
	Position        int        `json:"position"`
	SlowmodeSeconds int        `json:"slowmode_seconds"`
	NSFW            bool       `json:"nsfw"`
	MyPermissions   *uint64    `json:"my_permissions,omitempty"`
}

// PermissionOverride is one allow/deny pair for a role or member target.
type PermissionOverride struct {
	TargetType string    `json:"target_type"`
	TargetID   uuid.UUID `json:"target_id"`
	Allow      uint64    `json:"allow"`
	Deny       uint64    `json:"deny"`
}

// Attachment is an uploaded file bound (or about to be bound) to a message.
type Attachment struct {
	ID          uuid.UUID `json:"id"`
	Filename    string    `json:"filename"`
	URL         string    `json:"url"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
}

// ReactionGroup aggregates one emoji on one message.
type ReactionGroup struct {
	Emoji string `json:"emoji"`
	Count int    `json:"count"`
	Me    bool   `json:"me"`
}

// Message is the canonical message view.
type Message struct {
	ID              uuid.UUID       `json:"id"`
	ChannelID       uuid.UUID       `json:"channel_id"`
	AuthorID        uuid.UUID       `json:"author_id"`
	Author          *Profile        `json:"author,omitempty"`
	Content         string          `json:"content"`
	Type            int             `json:"type"`
	ReplyTo         *uuid.UUID      `json:"reply_to,omitempty"`
	Pinned          bool            `json:"pinned"`
	MentionEveryone bool            `json:"mention_everyone"`
	MentionRoles    []uuid.UUID     `json:"mention_roles"`
	MentionUsers    []uuid.UUID     `json:"mention_users"`
	WebhookID       *uuid.UUID      `json:"webhook_id,omitempty"`
	Attachments     []Attachment    `json:"attachments"`
	Reactions       []ReactionGroup `json:"reactions"`
	EditedAt        *time.Time      `json:"edited_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// ReadState tracks one user's read position in one channel.
type ReadState struct {
	ChannelID         uuid.UUID  `json:"channel_id"`
	LastReadMessageID *uuid.UUID `json:"last_read_message_id,omitempty"`
	MentionCount      int        `json:"mention_count"`
}

// Presence is a user's realtime status.
type Presence struct {
	UserID     uuid.UUID `json:"user_id"`
	Status     string    `json:"status"`
	CustomText string    `json:"custom_text,omitempty"`
}

// VoiceState is a user's voice-channel membership with mute flags. Removed is
// set on the final state_update when the user leaves.
type VoiceState struct {
	UserID    uuid.UUID  `json:"user_id"`
	ChannelID uuid.UUID  `json:"channel_id"`
	SelfMute  bool       `json:"self_mute"`
	SelfDeaf  bool       `json:"self_deaf"`
	JoinedAt  time.Time  `json:"joined_at"`
	Removed   bool       `json:"_removed,omitempty"`
	SessionID *uuid.UUID `json:"-"`
}

// Invite is a join code.
type Invite struct {
	ID        uuid.UUID  `json:"id"`
	Code      string     `json:"code"`
	CreatorID uuid.UUID  `json:"creator_id"`
	MaxUses   int        `json:"max_uses"`
	UseCount  int        `json:"use_count"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Revoked   bool       `json:"revoked"`
	CreatedAt time.Time  `json:"created_at"`
}

// Ban records a banned user.
type Ban struct {
	UserID    uuid.UUID `json:"user_id"`
	BannedBy  uuid.UUID `json:"banned_by"`
	Reason    string    `json:"reason,omitempty"`
	Profile   *Profile  `json:"profile,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DmConversation is a per-server direct-message thread between two members.
type DmConversation struct {
	ID            uuid.UUID  `json:"id"`
	UserA         uuid.UUID  `json:"user_a"`
	UserB         uuid.UUID  `json:"user_b"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	UnreadCount   int        `json:"unread_count"`
	CreatedAt     time.Time  `json:"created_at"`
}

// DmMessage is one message inside a DM conversation.
type DmMessage struct {
	ID             uuid.UUID       `json:"id"`
	ConversationID uuid.UUID       `json:"conversation_id"`
	AuthorID       uuid.UUID       `json:"author_id"`
	Content        string          `json:"content"`
	Attachments    []Attachment    `json:"attachments"`
	Reactions      []ReactionGroup `json:"reactions"`
	EditedAt       *time.Time      `json:"edited_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Webhook is an inbound message hook. Token is only present in create and
// regenerate responses; it is never listed.
type Webhook struct {
	ID        uuid.UUID `json:"id"`
	ChannelID uuid.UUID `json:"channel_id"`
	Name      string    `json:"name"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	Token     string    `json:"token,omitempty"`
	CreatorID uuid.UUID `json:"creator_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Page is the wiki content of a page channel.
type Page struct {
	ChannelID uuid.UUID  `json:"channel_id"`
	Content   string     `json:"content"`
	BannerURL string     `json:"banner_url,omitempty"`
	Version   int        `json:"version"`
	EditedBy  *uuid.UUID `json:"edited_by,omitempty"`
	EditedAt  *time.Time `json:"edited_at,omitempty"`
}

// PageRevision is a pre-edit snapshot of a page.
type PageRevision struct {
	ID        uuid.UUID `json:"id"`
	ChannelID uuid.UUID `json:"channel_id"`
	Content   string    `json:"content"`
	Version   int       `json:"version"`
	EditedBy  uuid.UUID `json:"edited_by"`
	CreatedAt time.Time `json:"created_at"`
}

// SharedFolder is one node of the shared-file tree.
type SharedFolder struct {
	ID            uuid.UUID  `json:"id"`
	ParentID      *uuid.UUID `json:"parent_id,omitempty"`
	Name          string     `json:"name"`
	CreatedBy     uuid.UUID  `json:"created_by"`
	CreatedAt     time.Time  `json:"created_at"`
	MyPermissions *uint64    `json:"my_permissions,omitempty"`
}

// SharedFile is a file in the shared store, optionally inside a folder.
type SharedFile struct {
	ID          uuid.UUID  `json:"id"`
	FolderID    *uuid.UUID `json:"folder_id,omitempty"`
	Filename    string     `json:"filename"`
	URL         string     `json:"url"`
	ContentType string     `json:"content_type"`
	SizeBytes   int64      `json:"size_bytes"`
	UploadedBy  uuid.UUID  `json:"uploaded_by"`
	CreatedAt   time.Time  `json:"created_at"`
}

// AuditEntry is one append-only audit record. Details is free-form JSON.
type AuditEntry struct {
	ID         uuid.UUID      `json:"id"`
	ActorID    uuid.UUID      `json:"actor_id"`
	Action     string         `json:"action"`
	TargetType string         `json:"target_type,omitempty"`
	TargetID   *uuid.UUID     `json:"target_id,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// ActivityItem is one entry of a user's notification feed.
type ActivityItem struct {
	ID        uuid.UUID  `json:"id"`
	Type      string     `json:"type"`
	ChannelID *uuid.UUID `json:"channel_id,omitempty"`
	MessageID *uuid.UUID `json:"message_id,omitempty"`
	ActorID   *uuid.UUID `json:"actor_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Ready is the bootstrap snapshot pushed after a successful identify.
type Ready struct {
	Server      Server       `json:"server"`
	Config      ServerConfig `json:"config"`
	Channels    []Channel    `json:"channels"`
	Categories  []Category   `json:"categories"`
	Roles       []Role       `json:"roles"`
	Members     []Member     `json:"members"`
	ReadStates  []ReadState  `json:"read_states"`
	Presences   []Presence   `json:"presences"`
	VoiceStates []VoiceState `json:"voice_states"`
}
