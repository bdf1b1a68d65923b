package wire

import "github.com/google/uuid"

// Request bodies for the HTTP API. Pointer fields distinguish "absent" from
// zero values on partial updates.

type RegisterRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type JoinRequest struct {
	InviteCode string `json:"invite_code,omitempty"`
	Nickname   string `json:"nickname,omitempty"`
}

type UpdateServerRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type UpdateServerConfigRequest struct {
	MaxUploadSizeBytes    *int64 `json:"max_upload_size_bytes,omitempty"`
	MaxSharedStorageBytes *int64 `json:"max_shared_storage_bytes,omitempty"`
	AllowLocalAccounts    *bool  `json:"allow_local_accounts,omitempty"`
	RequireInvite         *bool  `json:"require_invite,omitempty"`
	AllowMemberDms        *bool  `json:"allow_member_dms,omitempty"`
	ShowSystemMessages    *bool  `json:"show_system_messages,omitempty"`
}

type CreateChannelRequest struct {
	Name            string     `json:"name"`
	Type            string     `json:"type"`
	CategoryID      *uuid.UUID `json:"category_id,omitempty"`
	Topic           string     `json:"topic,omitempty"`
	SlowmodeSeconds int        `json:"slowmode_seconds,omitempty"`
	NSFW            bool       `json:"nsfw,omitempty"`
}

type UpdateChannelRequest struct {
	Name            *string    `json:"name,omitempty"`
	Topic           *string    `json:"topic,omitempty"`
	CategoryID      *uuid.UUID `json:"category_id,omitempty"`
	ClearCategory   bool       `json:"clear_category,omitempty"`
	SlowmodeSeconds *int       `json:"slowmode_seconds,omitempty"`
	NSFW            *bool      `json:"nsfw,omitempty"`
}

type CreateCategoryRequest struct {
	Name string `json:"name"`
}

type UpdateCategoryRequest struct {
	Name *string `json:"name,omitempty"`
}

// ReorderItem pairs an id with its new position.
type ReorderItem struct {
	ID       uuid.UUID `json:"id"`
	Position int       `json:"position"`
}

type ReorderRequest struct {
	Items []ReorderItem `json:"items"`
}

type SendMessageRequest struct {
	Content       string      `json:"content,omitempty"`
	ReplyTo       *uuid.UUID  `json:"reply_to,omitempty"`
	AttachmentIDs []uuid.UUID `json:"attachment_ids,omitempty"`
}

type UpdateMessageRequest struct {
	Content string `json:"content"`
}

type PinMessageRequest struct {
	Pinned bool `json:"pinned"`
}

type ReactionRequest struct {
	Emoji string `json:"emoji"`
}

type CreateRoleRequest struct {
	Name        string `json:"name"`
	Color       string `json:"color,omitempty"`
	Permissions uint64 `json:"permissions,omitempty"`
	Position    *int   `json:"position,omitempty"`
}

type UpdateRoleRequest struct {
	Name        *string `json:"name,omitempty"`
	Color       *string `json:"color,omitempty"`
	Permissions *uint64 `json:"permissions,omitempty"`
	Position    *int    `json:"position,omitempty"`
}

type UpdateMemberRequest struct {
	Nickname *string `json:"nickname,omitempty"`
	AllowDms *bool   `json:"allow_dms,omitempty"`
}

type UpdateMemberRolesRequest struct {
	RoleIDs []uuid.UUID `json:"role_ids"`
}

type KickRequest struct {
	Reason string `json:"reason,omitempty"`
}

// BanRequest optionally soft-deletes the target's recent messages;
// DeleteMessages accepts "1h", "24h" or "7d".
type BanRequest struct {
	Reason         string `json:"reason,omitempty"`
	DeleteMessages string `json:"delete_messages,omitempty"`
}

type CreateInviteRequest struct {
	MaxUses          int   `json:"max_uses,omitempty"`
	ExpiresInSeconds int64 `json:"expires_in_seconds,omitempty"`
}

type SetOverrideRequest struct {
	TargetType string `json:"target_type"`
	Allow      uint64 `json:"allow"`
	Deny       uint64 `json:"deny"`
}

type MarkReadRequest struct {
	MessageID uuid.UUID `json:"message_id"`
}

type OpenDmRequest struct {
	UserID uuid.UUID `json:"user_id"`
}

type SendDmRequest struct {
	Content       string      `json:"content,omitempty"`
	AttachmentIDs []uuid.UUID `json:"attachment_ids,omitempty"`
}

type CreateWebhookRequest struct {
	ChannelID uuid.UUID `json:"channel_id"`
	Name      string    `json:"name"`
	AvatarURL string    `json:"avatar_url,omitempty"`
}

// ExecuteWebhookRequest is the unauthenticated webhook body. Username and
// AvatarURL override the display identity of the produced message.
type ExecuteWebhookRequest struct {
	Content   string `json:"content"`
	Username  string `json:"username,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

type UpdatePageRequest struct {
	Content   string  `json:"content"`
	Version   int     `json:"version"`
	BannerURL *string `json:"banner_url,omitempty"`
}

type RevertPageRequest struct {
	RevisionID uuid.UUID `json:"revision_id"`
	Version    int       `json:"version"`
}

type CreateFolderRequest struct {
	Name     string     `json:"name"`
	ParentID *uuid.UUID `json:"parent_id,omitempty"`
}

type RenameFolderRequest struct {
	Name string `json:"name"`
}

type MoveSharedFileRequest struct {
	FolderID *uuid.UUID `json:"folder_id,omitempty"`
}
