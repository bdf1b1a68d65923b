package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ecto-chat/ecto-server/internal/dm"
	"github.com/ecto-chat/ecto-server/internal/gateway"
	"github.com/ecto-chat/ecto-server/internal/httputil"
	"github.com/ecto-chat/ecto-server/internal/member"
	"github.com/ecto-chat/ecto-server/internal/message"
	"github.com/ecto-chat/ecto-server/internal/serverconfig"
	"github.com/ecto-chat/ecto-server/internal/wire"
)

// DmHandler serves server-scoped direct message endpoints.
type DmHandler struct {
	dms        dm.Repository
	members    member.Repository
	config     serverconfig.Repository
	dispatcher *gateway.Dispatcher
	notify     *gateway.NotifyHub
	log        zerolog.Logger
}

// NewDmHandler creates a new DM handler.
func NewDmHandler(
	dms dm.Repository,
	members member.Repository,
	config serverconfig.Repository,
	dispatcher *gateway.Dispatcher,
	notify *gateway.NotifyHub,
	logger zerolog.Logger,
) *DmHandler {
	return &DmHandler{
		dms:        dms,
		members:    members,
		config:     config,
		dispatcher: dispatcher,
		notify:     notify,
		log:        logger,
	}
}

// Open handles POST /api/v1/dms. Finds or creates the conversation with the
// given member.
func (h *DmHandler) Open(c fiber.Ctx) error {
	userID, err := mustUser(c)
	if err != nil {
		return err
	}

	var req wire.OpenDmRequest
	if err := c.Bind().Body(&req); err != nil || req.UserID == uuid.Nil {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid request body")
	}

	if err := h.checkRecipient(c, req.UserID); err != nil {
		return err
	}

	conv, err := h.dms.Open(c, userID, req.UserID)
	if err != nil {
		if errors.Is(err, dm.ErrSelfDm) {
			return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, err.Error())
		}
		h.log.Error().Err(err).Str("handler", "dm").Msg("open conversation failed")
		return internalError(c)
	}
	return httputil.Success(c, conv.ToModel())
}

// List handles GET /api/v1/dms, most recent activity first.
func (h *DmHandler) List(c fiber.Ctx) error {
	userID, err := mustUser(c)
	if err != nil {
		return err
	}

	conversations, err := h.dms.ListConversations(c, userID)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "dm").Msg("list conversations failed")
		return internalError(c)
	}

	models := make([]wire.DmConversation, len(conversations))
	for i := range conversations {
		models[i] = conversations[i].ToModel()
	}
	return httputil.Success(c, models)
}

// History handles GET /api/v1/dms/:conversationID/messages.
func (h *DmHandler) History(c fiber.Ctx) error {
	userID, conv, err := h.participantConversation(c)
	if err != nil {
		return err
	}

	opts := dm.HistoryOptions{
		Limit:    message.ClampLimit(fiber.Query[int](c, "limit")),
		ViewerID: userID,
	}
	if raw := c.Query("before"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid before cursor")
		}
		opts.Before = &id
	}

	messages, err := h.dms.History(c, conv.ID, opts)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "dm").Msg("list history failed")
		return internalError(c)
	}

	models := make([]wire.DmMessage, len(messages))
	for i := range messages {
		models[i] = messages[i].ToModel()
	}
	return httputil.Success(c, models)
}

// Send handles POST /api/v1/dms/:conversationID/messages.
func (h *DmHandler) Send(c fiber.Ctx) error {
	userID, conv, err := h.participantConversation(c)
	if err != nil {
		return err
	}

	var req wire.SendDmRequest
	if err := c.Bind().Body(&req); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid request body")
	}
	if req.Content == "" && len(req.AttachmentIDs) == 0 {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.InvalidContent, "Message must have content or attachments")
	}

	content := req.Content
	if content != "" {
		content, err = message.ValidateContent(content, maxMessageLength)
		if err != nil {
			return httputil.Fail(c, fiber.StatusBadRequest, wire.InvalidContent, err.Error())
		}
	}

	peer := conv.Peer(userID)
	if err := h.checkRecipient(c, peer); err != nil {
		return err
	}

	msg, err := h.dms.CreateMessage(c, dm.CreateMessageParams{
		ConversationID: conv.ID,
		AuthorID:       userID,
		Content:        content,
		AttachmentIDs:  req.AttachmentIDs,
	})
	if err != nil {
		if errors.Is(err, dm.ErrEmptyMessage) {
			return httputil.Fail(c, fiber.StatusBadRequest, wire.InvalidContent, err.Error())
		}
		h.log.Error().Err(err).Str("handler", "dm").Msg("create message failed")
		return internalError(c)
	}

	model := msg.ToModel()
	h.dispatcher.ToUser(userID, wire.EventDmMessage, model)
	h.dispatcher.ToUser(peer, wire.EventDmMessage, model)
	h.notify.ToUser(peer, conv.ID, wire.NotifyDm)
	return httputil.SuccessStatus(c, fiber.StatusCreated, model)
}

// Update handles PATCH /api/v1/dms/:conversationID/messages/:messageID.
func (h *DmHandler) Update(c fiber.Ctx) error {
	userID, conv, err := h.participantConversation(c)
	if err != nil {
		return err
	}
	messageID, err := parseParamID(c, "messageID")
	if err != nil {
		return err
	}

	var req wire.UpdateMessageRequest
	if err := c.Bind().Body(&req); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid request body")
	}
	content, err := message.ValidateContent(req.Content, maxMessageLength)
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.InvalidContent, err.Error())
	}

	existing, err := h.dms.GetMessage(c, messageID, userID)
	if err != nil {
		return h.messageError(c, err)
	}
	if existing.AuthorID != userID {
		return forbidden(c)
	}

	msg, err := h.dms.UpdateMessage(c, messageID, content, userID)
	if err != nil {
		return h.messageError(c, err)
	}

	model := msg.ToModel()
	h.dispatcher.ToUser(conv.UserA, wire.EventDmMessageUpdate, model)
	h.dispatcher.ToUser(conv.UserB, wire.EventDmMessageUpdate, model)
	return httputil.Success(c, model)
}

// Delete handles DELETE /api/v1/dms/:conversationID/messages/:messageID.
func (h *DmHandler) Delete(c fiber.Ctx) error {
	userID, conv, err := h.participantConversation(c)
	if err != nil {
		return err
	}
	messageID, err := parseParamID(c, "messageID")
	if err != nil {
		return err
	}

	existing, err := h.dms.GetMessage(c, messageID, userID)
	if err != nil {
		return h.messageError(c, err)
	}
	if existing.AuthorID != userID {
		return forbidden(c)
	}

	if err := h.dms.SoftDeleteMessage(c, messageID); err != nil {
		return h.messageError(c, err)
	}

	payload := fiber.Map{"conversation_id": conv.ID, "id": messageID}
	h.dispatcher.ToUser(conv.UserA, wire.EventDmMessageDelete, payload)
	h.dispatcher.ToUser(conv.UserB, wire.EventDmMessageDelete, payload)
	return httputil.Success(c, fiber.Map{"deleted": true})
}

// React handles PUT /api/v1/dms/:conversationID/messages/:messageID/reactions.
func (h *DmHandler) React(c fiber.Ctx) error {
	return h.writeReaction(c, "add")
}

// Unreact handles DELETE /api/v1/dms/:conversationID/messages/:messageID/reactions.
func (h *DmHandler) Unreact(c fiber.Ctx) error {
	return h.writeReaction(c, "remove")
}

func (h *DmHandler) writeReaction(c fiber.Ctx, action string) error {
	userID, conv, err := h.participantConversation(c)
	if err != nil {
		return err
	}
	messageID, err := parseParamID(c, "messageID")
	if err != nil {
		return err
	}

	var req wire.ReactionRequest
	if err := c.Bind().Body(&req); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid request body")
	}
	emoji, err := message.ValidateEmoji(req.Emoji)
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, err.Error())
	}

	var count int
	if action == "add" {
		count, err = h.dms.AddReaction(c, messageID, userID, emoji)
	} else {
		count, err = h.dms.RemoveReaction(c, messageID, userID, emoji)
	}
	if err != nil {
		return h.messageError(c, err)
	}

	payload := wire.ReactionUpdatePayload{
		MessageID: messageID,
		Emoji:     emoji,
		UserID:    userID,
		Action:    action,
		Count:     count,
	}
	h.dispatcher.ToUser(conv.UserA, wire.EventDmReactionUpdate, payload)
	h.dispatcher.ToUser(conv.UserB, wire.EventDmReactionUpdate, payload)
	return httputil.Success(c, payload)
}

// MarkRead handles PUT /api/v1/dms/:conversationID/read.
func (h *DmHandler) MarkRead(c fiber.Ctx) error {
	userID, conv, err := h.participantConversation(c)
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

	if err := h.dms.MarkRead(c, userID, conv.ID, messageID); err != nil {
		h.log.Error().Err(err).Str("handler", "dm").Msg("mark read failed")
		return internalError(c)
	}
	return httputil.Success(c, fiber.Map{"read": true})
}

// participantConversation loads the conversation named by the route and
// verifies the caller is one of its two parties.
func (h *DmHandler) participantConversation(c fiber.Ctx) (uuid.UUID, *dm.Conversation, error) {
	userID, err := mustUser(c)
	if err != nil {
		return uuid.Nil, nil, err
	}
	conversationID, err := parseParamID(c, "conversationID")
	if err != nil {
		return uuid.Nil, nil, err
	}

	conv, err := h.dms.GetConversation(c, conversationID)
	if err != nil {
		if errors.Is(err, dm.ErrNotFound) {
			return uuid.Nil, nil, httputil.Fail(c, fiber.StatusNotFound, wire.DmNotFound, "Conversation not found")
		}
		h.log.Error().Err(err).Str("handler", "dm").Msg("get conversation failed")
		return uuid.Nil, nil, internalError(c)
	}
	if !conv.HasParticipant(userID) {
		return uuid.Nil, nil, httputil.Fail(c, fiber.StatusForbidden, wire.DmNotParticipant, "You are not a participant of this conversation")
	}
	return userID, conv, nil
}

// checkRecipient enforces the DM gate: server-wide DMs enabled, recipient
// still a member, and recipient accepting DMs.
func (h *DmHandler) checkRecipient(c fiber.Ctx, recipientID uuid.UUID) error {
	cfg, err := h.config.Get(c)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "dm").Msg("get config failed")
		return internalError(c)
	}
	if !cfg.AllowMemberDms {
		return httputil.Fail(c, fiber.StatusForbidden, wire.DmsDisabled, "Direct messages are disabled on this server")
	}

	row, err := h.members.GetRow(c, recipientID)
	if err != nil {
		if errors.Is(err, member.ErrNotFound) {
			return httputil.Fail(c, fiber.StatusBadRequest, wire.DmRecipientNotMember, "Recipient is not a member of this server")
		}
		h.log.Error().Err(err).Str("handler", "dm").Msg("get recipient failed")
		return internalError(c)
	}
	if !row.AllowDms {
		return httputil.Fail(c, fiber.StatusForbidden, wire.DmsDisabled, "Recipient does not accept direct messages")
	}
	return nil
}

func (h *DmHandler) messageError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, dm.ErrMessageNotFound):
		return httputil.Fail(c, fiber.StatusNotFound, wire.DmMessageNotFound, "Message not found")
	case errors.Is(err, dm.ErrNotAuthor):
		return forbidden(c)
	}
	h.log.Error().Err(err).Str("handler", "dm").Msg("dm message operation failed")
	return internalError(c)
}
