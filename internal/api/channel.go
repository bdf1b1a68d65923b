package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ecto-chat/ecto-server/internal/channel"
	"github.com/ecto-chat/ecto-server/internal/gateway"
	"github.com/ecto-chat/ecto-server/internal/httputil"
	"github.com/ecto-chat/ecto-server/internal/permission"
	"github.com/ecto-chat/ecto-server/internal/store"
	"github.com/ecto-chat/ecto-server/internal/wire"
)

// ChannelHandler serves channel CRUD, reordering, and permission override
// endpoints.
type ChannelHandler struct {
	channels   channel.Repository
	perms      *permission.Service
	overrides  *permission.SQLStore
	invalidate *permission.Invalidator
	dispatcher *gateway.Dispatcher
	db         *store.DB
	log        zerolog.Logger
}

// NewChannelHandler creates a new channel handler.
func NewChannelHandler(
	channels channel.Repository,
	perms *permission.Service,
	overrides *permission.SQLStore,
	invalidate *permission.Invalidator,
	dispatcher *gateway.Dispatcher,
	db *store.DB,
	logger zerolog.Logger,
) *ChannelHandler {
	return &ChannelHandler{
		channels:   channels,
		perms:      perms,
		overrides:  overrides,
		invalidate: invalidate,
		dispatcher: dispatcher,
		db:         db,
		log:        logger,
	}
}

// List handles GET /api/v1/channels. Only channels the caller can read are
// returned, each carrying the caller's effective mask.
func (h *ChannelHandler) List(c fiber.Ctx) error {
	userID, err := mustUser(c)
	if err != nil {
		return err
	}

	channels, err := h.channels.List(c)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "channel").Msg("list channels failed")
		return internalError(c)
	}

	ids := make([]uuid.UUID, len(channels))
	for i := range channels {
		ids[i] = channels[i].ID
	}
	masks, err := h.perms.ChannelMasks(c, userID, ids)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "channel").Msg("resolve channel masks failed")
		return internalError(c)
	}

	visible := make([]wire.Channel, 0, len(channels))
	for i := range channels {
		mask := masks[channels[i].ID]
		if !mask.Has(permission.ReadMessages) {
			continue
		}
		model := channels[i].ToModel()
		perms := uint64(mask)
		model.MyPermissions = &perms
		visible = append(visible, model)
	}
	return httputil.Success(c, visible)
}

// Get handles GET /api/v1/channels/:channelID.
func (h *ChannelHandler) Get(c fiber.Ctx) error {
	ch, err := h.loadChannel(c)
	if err != nil {
		return err
	}
	return httputil.Success(c, ch.ToModel())
}

// Create handles POST /api/v1/channels. Requires MANAGE_CHANNELS.
func (h *ChannelHandler) Create(c fiber.Ctx) error {
	var req wire.CreateChannelRequest
	if err := c.Bind().Body(&req); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid request body")
	}

	ch, err := h.channels.Create(c, channel.CreateParams{
		Name:            req.Name,
		Type:            req.Type,
		CategoryID:      req.CategoryID,
		Topic:           req.Topic,
		SlowmodeSeconds: req.SlowmodeSeconds,
		NSFW:            req.NSFW,
	})
	if err != nil {
		switch {
		case errors.Is(err, channel.ErrNameLength), errors.Is(err, channel.ErrInvalidType):
			return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, err.Error())
		case errors.Is(err, channel.ErrMaxChannelsReached):
			return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Maximum number of channels reached")
		}
		h.log.Error().Err(err).Str("handler", "channel").Msg("create channel failed")
		return internalError(c)
	}

	h.dispatcher.ToServer(wire.EventChannelCreate, ch.ToModel())
	return httputil.SuccessStatus(c, fiber.StatusCreated, ch.ToModel())
}

// Update handles PATCH /api/v1/channels/:channelID. Requires MANAGE_CHANNELS.
func (h *ChannelHandler) Update(c fiber.Ctx) error {
	channelID, err := parseParamID(c, "channelID")
	if err != nil {
		return err
	}

	var req wire.UpdateChannelRequest
	if err := c.Bind().Body(&req); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid request body")
	}

	ch, err := h.channels.Update(c, channelID, channel.UpdateParams{
		Name:            req.Name,
		CategoryID:      req.CategoryID,
		SetCategoryNull: req.ClearCategory,
		Topic:           req.Topic,
		SlowmodeSeconds: req.SlowmodeSeconds,
		NSFW:            req.NSFW,
	})
	if err != nil {
		switch {
		case errors.Is(err, channel.ErrNotFound):
			return httputil.Fail(c, fiber.StatusNotFound, wire.ChannelNotFound, "Channel not found")
		case errors.Is(err, channel.ErrNameLength):
			return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, err.Error())
		}
		h.log.Error().Err(err).Str("handler", "channel").Msg("update channel failed")
		return internalError(c)
	}

	h.invalidate.Channel(channelID)
	h.dispatcher.ToServer(wire.EventChannelUpdate, ch.ToModel())
	return httputil.Success(c, ch.ToModel())
}

// Delete handles DELETE /api/v1/channels/:channelID. Requires MANAGE_CHANNELS.
func (h *ChannelHandler) Delete(c fiber.Ctx) error {
	channelID, err := parseParamID(c, "channelID")
	if err != nil {
		return err
	}

	if err := h.channels.Delete(c, channelID); err != nil {
		if errors.Is(err, channel.ErrNotFound) {
			return httputil.Fail(c, fiber.StatusNotFound, wire.ChannelNotFound, "Channel not found")
		}
		h.log.Error().Err(err).Str("handler", "channel").Msg("delete channel failed")
		return internalError(c)
	}

	h.invalidate.Channel(channelID)
	h.dispatcher.ToServer(wire.EventChannelDelete, fiber.Map{"id": channelID})
	return httputil.Success(c, fiber.Map{"deleted": true})
}

// Reorder handles PUT /api/v1/channels/reorder. Requires MANAGE_CHANNELS.
func (h *ChannelHandler) Reorder(c fiber.Ctx) error {
	var req struct {
		Items []channel.PositionUpdate `json:"items"`
	}
	if err := c.Bind().Body(&req); err != nil || len(req.Items) == 0 {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid request body")
	}

	if err := h.channels.Reorder(c, req.Items); err != nil {
		h.log.Error().Err(err).Str("handler", "channel").Msg("reorder channels failed")
		return internalError(c)
	}

	h.invalidate.All()
	h.dispatcher.ToServer(wire.EventChannelReorder, fiber.Map{"items": req.Items})
	return httputil.Success(c, fiber.Map{"reordered": true})
}

// SetOverride handles PUT /api/v1/channels/:channelID/overrides/:targetID.
// Requires MANAGE_ROLES.
func (h *ChannelHandler) SetOverride(c fiber.Ctx) error {
	return h.writeOverride(c, true)
}

// DeleteOverride handles DELETE /api/v1/channels/:channelID/overrides/:targetID.
// Requires MANAGE_ROLES.
func (h *ChannelHandler) DeleteOverride(c fiber.Ctx) error {
	return h.writeOverride(c, false)
}

func (h *ChannelHandler) writeOverride(c fiber.Ctx, set bool) error {
	channelID, err := parseParamID(c, "channelID")
	if err != nil {
		return err
	}
	targetID, err := parseParamID(c, "targetID")
	if err != nil {
		return err
	}

	var req wire.SetOverrideRequest
	if set {
		if err := c.Bind().Body(&req); err != nil {
			return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid request body")
		}
	}
	targetType, err := parseTargetType(req.TargetType, c.Query("target_type"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "target_type must be role or member")
	}

	if _, err := h.channels.GetByID(c, channelID); err != nil {
		if errors.Is(err, channel.ErrNotFound) {
			return httputil.Fail(c, fiber.StatusNotFound, wire.ChannelNotFound, "Channel not found")
		}
		h.log.Error().Err(err).Str("handler", "channel").Msg("get channel failed")
		return internalError(c)
	}

	if set {
		err = h.overrides.SetOverride(c, h.db, permission.ScopeChannel, channelID, targetType, targetID,
			permission.Permission(req.Allow), permission.Permission(req.Deny))
	} else {
		err = h.overrides.DeleteOverride(c, h.db, permission.ScopeChannel, channelID, targetType, targetID)
	}
	if err != nil {
		if errors.Is(err, permission.ErrOverrideNotFound) {
			return httputil.Fail(c, fiber.StatusNotFound, wire.OverrideNotFound, "Override not found")
		}
		h.log.Error().Err(err).Str("handler", "channel").Msg("write override failed")
		return internalError(c)
	}

	h.invalidate.Channel(channelID)
	ch, err := h.channels.GetByID(c, channelID)
	if err != nil {
		return internalError(c)
	}
	h.dispatcher.ToServer(wire.EventChannelUpdate, ch.ToModel())
	return httputil.Success(c, ch.ToModel())
}

func (h *ChannelHandler) loadChannel(c fiber.Ctx) (*channel.Channel, error) {
	channelID, err := parseParamID(c, "channelID")
	if err != nil {
		return nil, err
	}
	ch, err := h.channels.GetByID(c, channelID)
	if err != nil {
		if errors.Is(err, channel.ErrNotFound) {
			return nil, httputil.Fail(c, fiber.StatusNotFound, wire.ChannelNotFound, "Channel not found")
		}
		h.log.Error().Err(err).Str("handler", "channel").Msg("get channel failed")
		return nil, internalError(c)
	}
	return ch, nil
}

// parseTargetType accepts the override target type from the body, falling
// back to a query parameter for bodyless DELETE requests.
func parseTargetType(body, query string) (permission.TargetType, error) {
	raw := body
	if raw == "" {
		raw = query
	}
	switch permission.TargetType(raw) {
	case permission.TargetRole:
		return permission.TargetRole, nil
	case permission.TargetMember:
		return permission.TargetMember, nil
	}
	return "", errors.New("invalid target type")
}
