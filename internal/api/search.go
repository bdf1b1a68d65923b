package api

import (
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ecto-chat/ecto-server/internal/channel"
	"github.com/ecto-chat/ecto-server/internal/httputil"
	"github.com/ecto-chat/ecto-server/internal/message"
	"github.com/ecto-chat/ecto-server/internal/permission"
	"github.com/ecto-chat/ecto-server/internal/wire"
)

// SearchHandler serves full-text message search scoped to the channels the
// caller can read.
type SearchHandler struct {
	messages message.Repository
	channels channel.Repository
	perms    *permission.Service
	log      zerolog.Logger
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(
	messages message.Repository,
	channels channel.Repository,
	perms *permission.Service,
	logger zerolog.Logger,
) *SearchHandler {
	return &SearchHandler{messages: messages, channels: channels, perms: perms, log: logger}
}

// Messages handles GET /api/v1/search/messages with q, channel_id, author_id
// and limit query parameters.
func (h *SearchHandler) Messages(c fiber.Ctx) error {
	userID, err := mustUser(c)
	if err != nil {
		return err
	}

	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Search query is required")
	}

	params := message.SearchParams{
		Query:    query,
		Limit:    message.ClampLimit(fiber.Query[int](c, "limit", message.DefaultLimit)),
		ViewerID: userID,
	}
	if raw := c.Query("channel_id"); raw != "" {
		id, parseErr := uuid.Parse(raw)
		if parseErr != nil {
			return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid channel_id format")
		}
		params.ChannelID = &id
	}
	if raw := c.Query("author_id"); raw != "" {
		id, parseErr := uuid.Parse(raw)
		if parseErr != nil {
			return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid author_id format")
		}
		params.AuthorID = &id
	}

	readable, err := h.readableChannels(c, userID)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "search").Msg("resolve channel permissions failed")
		return internalError(c)
	}
	if params.ChannelID != nil && !readable[*params.ChannelID] {
		return httputil.Fail(c, fiber.StatusForbidden, wire.Forbidden, "Missing permission: READ_MESSAGES")
	}

	results, err := h.messages.Search(c, params)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "search").Msg("search messages failed")
		return internalError(c)
	}

	models := make([]wire.Message, 0, len(results))
	for i := range results {
		if !readable[results[i].ChannelID] {
			continue
		}
		models = append(models, results[i].ToModel())
	}
	return httputil.Success(c, models)
}

// readableChannels resolves the set of channel IDs the user holds
// READ_MESSAGES in.
func (h *SearchHandler) readableChannels(c fiber.Ctx, userID uuid.UUID) (map[uuid.UUID]bool, error) {
	channels, err := h.channels.List(c)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(channels))
	for i := range channels {
		ids[i] = channels[i].ID
	}
	masks, err := h.perms.ChannelMasks(c, userID, ids)
	if err != nil {
		return nil, err
	}
	readable := make(map[uuid.UUID]bool, len(masks))
	for id, mask := range masks {
		if mask.Has(permission.ReadMessages) {
			readable[id] = true
		}
	}
	return readable, nil
}
