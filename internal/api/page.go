package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/ecto-chat/ecto-server/internal/channel"
	"github.com/ecto-chat/ecto-server/internal/gateway"
	"github.com/ecto-chat/ecto-server/internal/httputil"
	"github.com/ecto-chat/ecto-server/internal/page"
	"github.com/ecto-chat/ecto-server/internal/wire"
)

// PageHandler serves wiki content for page channels. Writes use optimistic
// concurrency keyed on the page version.
type PageHandler struct {
	pages      page.Repository
	channels   channel.Repository
	dispatcher *gateway.Dispatcher
	log        zerolog.Logger
}

// NewPageHandler creates a new page handler.
func NewPageHandler(
	pages page.Repository,
	channels channel.Repository,
	dispatcher *gateway.Dispatcher,
	logger zerolog.Logger,
) *PageHandler {
	return &PageHandler{pages: pages, channels: channels, dispatcher: dispatcher, log: logger}
}

// Get handles GET /api/v1/channels/:channelID/page.
func (h *PageHandler) Get(c fiber.Ctx) error {
	ch, err := h.pageChannel(c)
	if err != nil {
		return err
	}

	pg, err := h.pages.Get(c, ch.ID)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "page").Msg("get page failed")
		return internalError(c)
	}
	return httputil.Success(c, pg.ToModel())
}

// Update handles PUT /api/v1/channels/:channelID/page. Requires EDIT_PAGES.
// A stale version fails with 409 so the editor can merge and retry.
func (h *PageHandler) Update(c fiber.Ctx) error {
	userID, err := mustUser(c)
	if err != nil {
		return err
	}
	ch, err := h.pageChannel(c)
	if err != nil {
		return err
	}

	var req wire.UpdatePageRequest
	if err := c.Bind().Body(&req); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid request body")
	}
	content, err := page.ValidateContent(req.Content)
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, err.Error())
	}

	pg, err := h.pages.Update(c, ch.ID, page.UpdateParams{
		Content:   content,
		Version:   req.Version,
		BannerURL: req.BannerURL,
		EditorID:  userID,
	})
	if err != nil {
		if errors.Is(err, page.ErrVersionConflict) {
			return httputil.Fail(c, fiber.StatusConflict, wire.VersionConflict, "Page was modified by someone else")
		}
		h.log.Error().Err(err).Str("handler", "page").Msg("update page failed")
		return internalError(c)
	}

	h.dispatcher.ToChannel(ch.ID, wire.EventPageUpdate, pg.ToModel())
	return httputil.Success(c, pg.ToModel())
}

// Revisions handles GET /api/v1/channels/:channelID/page/revisions.
func (h *PageHandler) Revisions(c fiber.Ctx) error {
	ch, err := h.pageChannel(c)
	if err != nil {
		return err
	}

	revs, err := h.pages.ListRevisions(c, ch.ID, fiber.Query[int](c, "limit", 50))
	if err != nil {
		h.log.Error().Err(err).Str("handler", "page").Msg("list revisions failed")
		return internalError(c)
	}

	models := make([]wire.PageRevision, len(revs))
	for i := range revs {
		models[i] = revs[i].ToModel()
	}
	return httputil.Success(c, models)
}

// Revert handles POST /api/v1/channels/:channelID/page/revert. Requires
// EDIT_PAGES. Reverting writes the revision content as a fresh edit, so the
// abandoned state stays in history.
func (h *PageHandler) Revert(c fiber.Ctx) error {
	userID, err := mustUser(c)
	if err != nil {
		return err
	}
	ch, err := h.pageChannel(c)
	if err != nil {
		return err
	}

	var req wire.RevertPageRequest
	if err := c.Bind().Body(&req); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid request body")
	}

	rev, err := h.pages.GetRevision(c, req.RevisionID)
	if err != nil {
		if errors.Is(err, page.ErrRevisionNotFound) {
			return httputil.Fail(c, fiber.StatusNotFound, wire.Validation, "Revision not found")
		}
		h.log.Error().Err(err).Str("handler", "page").Msg("get revision failed")
		return internalError(c)
	}
	if rev.ChannelID != ch.ID {
		return httputil.Fail(c, fiber.StatusNotFound, wire.Validation, "Revision not found")
	}

	pg, err := h.pages.Update(c, ch.ID, page.UpdateParams{
		Content:  rev.Content,
		Version:  req.Version,
		EditorID: userID,
	})
	if err != nil {
		if errors.Is(err, page.ErrVersionConflict) {
			return httputil.Fail(c, fiber.StatusConflict, wire.VersionConflict, "Page was modified by someone else")
		}
		h.log.Error().Err(err).Str("handler", "page").Msg("revert page failed")
		return internalError(c)
	}

	h.dispatcher.ToChannel(ch.ID, wire.EventPageUpdate, pg.ToModel())
	return httputil.Success(c, pg.ToModel())
}

// pageChannel loads the route channel and rejects non-page types.
func (h *PageHandler) pageChannel(c fiber.Ctx) (*channel.Channel, error) {
	channelID, err := parseParamID(c, "channelID")
	if err != nil {
		return nil, err
	}
	ch, err := h.channels.GetByID(c, channelID)
	if err != nil {
		if errors.Is(err, channel.ErrNotFound) {
			return nil, httputil.Fail(c, fiber.StatusNotFound, wire.ChannelNotFound, "Channel not found")
		}
		h.log.Error().Err(err).Str("handler", "page").Msg("get channel failed")
		return nil, internalError(c)
	}
	if !ch.IsPage() {
		return nil, httputil.Fail(c, fiber.StatusBadRequest, wire.WrongChannelType, "Not a page channel")
	}
	return ch, nil
}
