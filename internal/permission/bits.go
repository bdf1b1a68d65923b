// Package permission implements the 64-bit permission engine: role unions,
// category and channel override layers, shared-item folder chains, and the
// in-process cache that fronts all of it.
package permission

// Permission is a 64-bit permission bitmask. Each named constant is one bit.
type Permission uint64

const (
	Administrator Permission = 1 << iota
	ManageServer
	ManageChannels
	ManageRoles
	ManageMessages
	ReadMessages
	SendMessages
	AttachFiles
	AddReactions
	MentionEveryone
	CreateInvites
	KickMembers
	BanMembers
	MuteMembers
	DeafenMembers
	ViewAuditLog
	ManageWebhooks
	EditPages
	ConnectVoice
	SpeakVoice
	UseVoiceActivity
	UseVideo
	ScreenShare
	BrowseFiles
	UploadSharedFiles
	ManageFiles

	permissionCount = iota
)

// AllPermissions is the union of every defined bit. Owners and administrators
// resolve to this mask. Undefined high bits stay clear so serialized masks
// survive JSON number round trips.
const AllPermissions = Permission(1<<permissionCount) - 1

// Has reports whether every bit in perm is set in p.
func (p Permission) Has(perm Permission) bool { return p&perm == perm }

// Add returns p with the bits in perm set.
func (p Permission) Add(perm Permission) Permission { return p | perm }

// Remove returns p with the bits in perm cleared.
func (p Permission) Remove(perm Permission) Permission { return p &^ perm }

// DefaultEveryonePermissions is the mask granted to the auto-created default
// role when a server is initialized.
const DefaultEveryonePermissions = ReadMessages | SendMessages | AttachFiles |
	AddReactions | CreateInvites | ConnectVoice | SpeakVoice | UseVoiceActivity |
	UseVideo | ScreenShare | BrowseFiles | UploadSharedFiles
