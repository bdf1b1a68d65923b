package api

import (
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ecto-chat/ecto-server/internal/httputil"
	"github.com/ecto-chat/ecto-server/internal/readstate"
	"github.com/ecto-chat/ecto-server/internal/wire"
)

// ReadStateHandler serves per-user read markers and the activity feed.
type ReadStateHandler struct {
	readstates readstate.Repository
	log        zerolog.Logger
}

// NewReadStateHandler creates a new read state handler.
func NewReadStateHandler(readstates readstate.Repository, logger zerolog.Logger) *ReadStateHandler {
	return &ReadStateHandler{readstates: readstates, log: logger}
}

// List handles GET /api/v1/read-states.
func (h *ReadStateHandler) List(c fiber.Ctx) error {
	userID, err := mustUser(c)
	if err != nil {
		return err
	}

	states, err := h.readstates.List(c, userID)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "readstate").Msg("list read states failed")
		return internalError(c)
	}

	models := make([]wire.ReadState, len(states))
	for i := range states {
		models[i] = states[i].ToModel()
	}
	return httputil.Success(c, models)
}

// MarkRead handles PUT /api/v1/read-states/:channelID. Marking read resets
// the channel's mention count.
func (h *ReadStateHandler) MarkRead(c fiber.Ctx) error {
	userID, err := mustUser(c)
	if err != nil {
		return err
	}
	channelID, err := parseParamID(c, "channelID")
	if err != nil {
		return err
	}

	var req wire.MarkReadRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().Body(&req); err != nil {
			return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid request body")
		}
	}
	var messageID *uuid.UUID
	if req.MessageID != uuid.Nil {
		messageID = &req.MessageID
	}

	state, err := h.readstates.MarkRead(c, userID, channelID, messageID)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "readstate").Msg("mark read failed")
		return internalError(c)
	}
	return httputil.Success(c, state.ToModel())
}

// Activity handles GET /api/v1/read-states/activity, the per-user mention
// and notification feed, newest first.
func (h *ReadStateHandler) Activity(c fiber.Ctx) error {
	userID, err := mustUser(c)
	if err != nil {
		return err
	}

	items, err := h.readstates.ListActivity(c, userID)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "readstate").Msg("list activity failed")
		return internalError(c)
	}

	models := make([]wire.ActivityItem, len(items))
	for i := range items {
		models[i] = items[i].ToModel()
	}
	return httputil.Success(c, models)
}
