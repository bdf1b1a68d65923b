// Package wire defines the protocol vocabulary shared by the HTTP API and the
// WebSocket gateway: the numeric ecto_code error taxonomy, event names, and the
// JSON models exchanged with clients. Nothing in here touches I/O.
package wire

// Code is a numeric error identifier carried in the ecto_code field of every
// error envelope. Codes are grouped by domain: 1xxx auth/validation, 2xxx
// server/membership/invites, 3xxx channels/categories/pages, 4xxx messages,
// 5xxx roles/permissions, 6xxx direct messages, 7xxx webhooks/files, 8xxx
// voice, 9xxx internal.
type Code int

const (
	Unauthorized Code = 1000
	Validation   Code = 1001

	ServerNotFound Code = 2000
	NotAMember     Code = 2002
	Banned         Code = 2003
	InvalidInvite  Code = 2004

	ChannelNotFound  Code = 3000
	InvalidContent   Code = 3001
	WrongChannelType Code = 3002
	VersionConflict  Code = 3003
	Slowmode         Code = 3004
	CategoryNotFound Code = 3005

	MessageNotFound Code = 4000

	RoleNotFound       Code = 5000
	Forbidden          Code = 5001
	OverrideNotFound   Code = 5002
	HierarchyViolation Code = 5004

	DmNotFound           Code = 6001
	DmRecipientNotMember Code = 6002
	DmsDisabled          Code = 6003
	DmNotParticipant     Code = 6004
	DmMessageNotFound    Code = 6005

	WebhookNotFound      Code = 7000
	AttachmentNotFound   Code = 7001
	StorageQuotaExceeded Code = 7002
	FileTooLarge         Code = 7003
	FolderNotFound       Code = 7004
	SharedFileNotFound   Code = 7005

	VoiceError          Code = 8000
	NotInVoice          Code = 8001
	VoiceChannelFull    Code = 8002
	VoiceObjectNotFound Code = 8003

	Internal Code = 9000
)
