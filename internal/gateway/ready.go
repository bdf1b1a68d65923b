package gateway

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ecto-chat/ecto-server/internal/permission"
	"github.com/ecto-chat/ecto-server/internal/wire"
)

// readyMemberCap bounds the member list in the ready snapshot; larger
// rosters page through the REST API.
const readyMemberCap = 1000

// assembleReady builds the bootstrap snapshot: server and config, the
// channels the caller can read (each carrying the caller's effective mask),
// the categories those channels make visible, roles, members, read states,
// presences, and voice states.
func (h *Handler) assembleReady(ctx context.Context, userID uuid.UUID) (*wire.Ready, error) {
	srv, err := h.deps.Server.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("get server: %w", err)
	}
	cfg, err := h.deps.ServerCfg.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("get server config: %w", err)
	}

	allChannels, err := h.deps.Channels.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	channelIDs := make([]uuid.UUID, len(allChannels))
	for i := range allChannels {
		channelIDs[i] = allChannels[i].ID
	}
	masks, err := h.deps.Perms.ChannelMasks(ctx, userID, channelIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve channel masks: %w", err)
	}

	visibleChannels := make([]wire.Channel, 0, len(allChannels))
	visibleCategories := make(map[uuid.UUID]struct{})
	for i := range allChannels {
		mask := masks[allChannels[i].ID]
		if !mask.Has(permission.ReadMessages) {
			continue
		}
		m := allChannels[i].ToModel()
		bits := uint64(mask)
		m.MyPermissions = &bits
		visibleChannels = append(visibleChannels, m)
		if allChannels[i].CategoryID != nil {
			visibleCategories[*allChannels[i].CategoryID] = struct{}{}
		}
	}

	canManage, err := h.deps.Perms.HasServerPermission(ctx, userID, permission.ManageChannels)
	if err != nil {
		return nil, fmt.Errorf("resolve manage channels: %w", err)
	}
	allCategories, err := h.deps.Categories.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	categories := make([]wire.Category, 0, len(allCategories))
	for i := range allCategories {
		if _, visible := visibleCategories[allCategories[i].ID]; visible || canManage {
			categories = append(categories, allCategories[i].ToModel())
		}
	}

	roles, err := h.deps.Roles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	roleModels := make([]wire.Role, len(roles))
	for i := range roles {
		roleModels[i] = roles[i].ToModel()
	}

	members, err := h.deps.Members.List(ctx, nil, readyMemberCap)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	memberModels := make([]wire.Member, len(members))
	for i := range members {
		memberModels[i] = members[i].ToModel()
	}

	readStates, err := h.deps.ReadStates.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list read states: %w", err)
	}
	readStateModels := make([]wire.ReadState, len(readStates))
	for i := range readStates {
		readStateModels[i] = readStates[i].ToModel()
	}

	return &wire.Ready{
		Server:      srv.ToModel(),
		Config:      cfg.ToModel(),
		Channels:    visibleChannels,
		Categories:  categories,
		Roles:       roleModels,
		Members:     memberModels,
		ReadStates:  readStateModels,
		Presences:   h.deps.Presence.Snapshot(),
		VoiceStates: h.deps.VoiceStates.Snapshot(),
	}, nil
}
