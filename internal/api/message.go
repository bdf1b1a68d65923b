package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ecto-chat/ecto-server/internal/auditlog"
	"github.com/ecto-chat/ecto-server/internal/channel"
	"github.com/ecto-chat/ecto-server/internal/gateway"
	"github.com/ecto-chat/ecto-server/internal/httputil"
	"github.com/ecto-chat/ecto-server/internal/member"
	"github.com/ecto-chat/ecto-server/internal/message"
	"github.com/ecto-chat/ecto-server/internal/permission"
	"github.com/ecto-chat/ecto-server/internal/readstate"
	"github.com/ecto-chat/ecto-server/internal/serverconfig"
	"github.com/ecto-chat/ecto-server/internal/store"
	"github.com/ecto-chat/ecto-server/internal/wire"
)

const maxMessageLength = 4000

// MessageHandler serves message endpoints: history, send, edit, delete,
// pins, and reactions.
type MessageHandler struct {
	messages   message.Repository
	channels   channel.Repository
	members    member.Repository
	readstates readstate.Repository
	config     serverconfig.Repository
	audit      auditlog.Repository
	perms      *permission.Service
	dispatcher *gateway.Dispatcher
	notify     *gateway.NotifyHub
	db         *store.DB
	log        zerolog.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(
	messages message.Repository,
	channels channel.Repository,
	members member.Repository,
	readstates readstate.Repository,
	config serverconfig.Repository,
	audit auditlog.Repository,
	perms *permission.Service,
	dispatcher *gateway.Dispatcher,
	notify *gateway.NotifyHub,
	db *store.DB,
	logger zerolog.Logger,
) *MessageHandler {
	return &MessageHandler{
		messages:   messages,
		channels:   channels,
		members:    members,
		readstates: readstates,
		config:     config,
		audit:      audit,
		perms:      perms,
		dispatcher: dispatcher,
		notify:     notify,
		db:         db,
		log:        logger,
	}
}

// List handles GET /api/v1/channels/:channelID/messages. Supports before,
// after, around, and limit query parameters. Requires READ_MESSAGES.
func (h *MessageHandler) List(c fiber.Ctx) error {
	userID, err := mustUser(c)
	if err != nil {
		return err
	}
	channelID, err := parseParamID(c, "channelID")
	if err != nil {
		return err
	}

	opts := message.ListOptions{
		Limit:    message.ClampLimit(fiber.Query[int](c, "limit")),
		ViewerID: userID,
	}
	for _, q := range []struct {
		name string
		dst  **uuid.UUID
	}{
		{"before", &opts.Before},
		{"after", &opts.After},
		{"around", &opts.Around},
	} {
		if raw := c.Query(q.name); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid "+q.name+" cursor")
			}
			*q.dst = &id
		}
	}

	messages, err := h.messages.List(c, channelID, opts)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "message").Msg("list messages failed")
		return internalError(c)
	}

	models := make([]wire.Message, len(messages))
	for i := range messages {
		models[i] = messages[i].ToModel()
	}
	return httputil.Success(c, models)
}

// Send handles POST /api/v1/channels/:channelID/messages. Requires
// SEND_MESSAGES, plus ATTACH_FILES when attachments are included.
func (h *MessageHandler) Send(c fiber.Ctx) error {
	userID, err := mustUser(c)
	if err != nil {
		return err
	}
	channelID, err := parseParamID(c, "channelID")
	if err != nil {
		return err
	}

	var req wire.SendMessageRequest
	if err := c.Bind().Body(&req); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid request body")
	}
	if req.Content == "" && len(req.AttachmentIDs) == 0 {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.InvalidContent, "Message must have content or attachments")
	}

	ch, err := h.channels.GetByID(c, channelID)
	if err != nil {
		if errors.Is(err, channel.ErrNotFound) {
			return httputil.Fail(c, fiber.StatusNotFound, wire.ChannelNotFound, "Channel not found")
		}
		h.log.Error().Err(err).Str("handler", "message").Msg("get channel failed")
		return internalError(c)
	}
	if ch.IsPage() {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.WrongChannelType, "Page channels do not accept messages")
	}

	mask, err := h.perms.Resolve(c, userID, channelID)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "message").Msg("resolve permissions failed")
		return internalError(c)
	}
	if len(req.AttachmentIDs) > 0 && !mask.Has(permission.AttachFiles) {
		return forbidden(c)
	}

	content := req.Content
	if content != "" {
		content, err = message.ValidateContent(content, maxMessageLength)
		if err != nil {
			return httputil.Fail(c, fiber.StatusBadRequest, wire.InvalidContent, err.Error())
		}
	}

	if retryAfter, limited := h.slowmodeRemaining(c, ch, userID, mask); limited {
		c.Set("Retry-After", fmt.Sprintf("%d", int(retryAfter.Seconds())+1))
		return httputil.Fail(c, fiber.StatusTooManyRequests, wire.Slowmode, "You are sending messages too quickly")
	}

	mentions := message.ParseMentions(content)
	if !mask.Has(permission.MentionEveryone) {
		mentions.Everyone = false
		mentions.RoleIDs = nil
	}

	msg, err := h.messages.Create(c, message.CreateParams{
		ChannelID:       channelID,
		AuthorID:        userID,
		Content:         content,
		Type:            wire.MessageTypeDefault,
		ReplyTo:         req.ReplyTo,
		MentionEveryone: mentions.Everyone,
		MentionRoles:    mentions.RoleIDs,
		MentionUsers:    mentions.UserIDs,
		AttachmentIDs:   req.AttachmentIDs,
	})
	if err != nil {
		h.log.Error().Err(err).Str("handler", "message").Msg("create message failed")
		return internalError(c)
	}

	h.fanOutMentions(c, msg, mentions)
	h.dispatcher.ToChannel(channelID, wire.EventMessageCreate, msg.ToModel())
	h.notify.Broadcast(userID, channelID, wire.NotifyMessage)

	return httputil.SuccessStatus(c, fiber.StatusCreated, msg.ToModel())
}

// slowmodeRemaining reports whether the author must still wait before
// posting. Members who can manage messages or channels are exempt.
func (h *MessageHandler) slowmodeRemaining(c fiber.Ctx, ch *channel.Channel, userID uuid.UUID, mask permission.Permission) (time.Duration, bool) {
	if ch.SlowmodeSeconds <= 0 {
		return 0, false
	}
	if mask.Has(permission.ManageMessages) || mask.Has(permission.ManageChannels) {
		return 0, false
	}

	last, err := h.messages.LastAuthoredAt(c, ch.ID, userID)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "message").Msg("slowmode lookup failed")
		return 0, false
	}
	if last == nil {
		return 0, false
	}

	window := time.Duration(ch.SlowmodeSeconds) * time.Second
	elapsed := time.Since(*last)
	if elapsed >= window {
		return 0, false
	}
	return window - elapsed, true
}

// fanOutMentions expands the mention set to user ids, bumps their mention
// counters, records activity, and pushes mention events. Fan-out failures
// are logged, not surfaced: the message is already committed.
func (h *MessageHandler) fanOutMentions(c fiber.Ctx, msg *message.Message, mentions message.Mentions) {
	targets := make(map[uuid.UUID]struct{}, len(mentions.UserIDs))
	for _, id := range mentions.UserIDs {
		targets[id] = struct{}{}
	}
	if mentions.Everyone {
		all, err := h.members.UserIDs(c)
		if err != nil {
			h.log.Error().Err(err).Str("handler", "message").Msg("expand everyone mention failed")
		}
		for _, id := range all {
			targets[id] = struct{}{}
		}
	} else if len(mentions.RoleIDs) > 0 {
		holders, err := h.members.UserIDsWithRoles(c, mentions.RoleIDs)
		if err != nil {
			h.log.Error().Err(err).Str("handler", "message").Msg("expand role mentions failed")
		}
		for _, id := range holders {
			targets[id] = struct{}{}
		}
	}
	delete(targets, msg.AuthorID)
	if len(targets) == 0 {
		return
	}

	for target := range targets {
		if exists, err := h.members.Exists(c, target); err != nil || !exists {
			continue
		}

		var count int
		err := h.db.WithTx(c, func(q store.Querier) error {
			var err error
			count, err = h.readstates.IncrementMention(c, q, target, msg.ChannelID)
			if err != nil {
				return err
			}
			return h.readstates.AddActivity(c, q, readstate.ActivityParams{
				UserID:    target,
				Type:      "mention",
				ChannelID: &msg.ChannelID,
				MessageID: &msg.ID,
				ActorID:   &msg.AuthorID,
			})
		})
		if err != nil {
			h.log.Error().Err(err).Str("handler", "message").Msg("record mention failed")
			continue
		}

		h.dispatcher.ToUser(target, wire.EventMentionCreate, wire.MentionCreatePayload{
			ChannelID:    msg.ChannelID,
			MessageID:    msg.ID,
			AuthorID:     msg.AuthorID,
			MentionCount: count,
		})
		h.notify.ToUser(target, msg.ChannelID, wire.NotifyMention)
	}
}

// Get handles GET /api/v1/channels/:channelID/messages/:messageID.
func (h *MessageHandler) Get(c fiber.Ctx) error {
	userID, err := mustUser(c)
	if err != nil {
		return err
	}
	messageID, err := parseParamID(c, "messageID")
	if err != nil {
		return err
	}

	msg, err := h.messages.GetByID(c, messageID, userID)
	if err != nil {
		if errors.Is(err, message.ErrNotFound) {
			return httputil.Fail(c, fiber.StatusNotFound, wire.MessageNotFound, "Message not found")
		}
		h.log.Error().Err(err).Str("handler", "message").Msg("get message failed")
		return internalError(c)
	}
	return httputil.Success(c, msg.ToModel())
}

// Update handles PATCH /api/v1/channels/:channelID/messages/:messageID.
// Only the author may edit.
func (h *MessageHandler) Update(c fiber.Ctx) error {
	userID, err := mustUser(c)
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

	existing, err := h.messages.GetByID(c, messageID, userID)
	if err != nil {
		if errors.Is(err, message.ErrNotFound) {
			return httputil.Fail(c, fiber.StatusNotFound, wire.MessageNotFound, "Message not found")
		}
		h.log.Error().Err(err).Str("handler", "message").Msg("get message failed")
		return internalError(c)
	}
	if existing.AuthorID != userID {
		return forbidden(c)
	}

	msg, err := h.messages.Update(c, messageID, content, userID)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "message").Msg("update message failed")
		return internalError(c)
	}

	h.dispatcher.ToChannel(msg.ChannelID, wire.EventMessageUpdate, msg.ToModel())
	return httputil.Success(c, msg.ToModel())
}

// Delete handles DELETE /api/v1/channels/:channelID/messages/:messageID.
// The author may always delete; moderators need MANAGE_MESSAGES and the
// action is audit-logged.
func (h *MessageHandler) Delete(c fiber.Ctx) error {
	userID, err := mustUser(c)
	if err != nil {
		return err
	}
	messageID, err := parseParamID(c, "messageID")
	if err != nil {
		return err
	}

	existing, err := h.messages.GetByID(c, messageID, userID)
	if err != nil {
		if errors.Is(err, message.ErrNotFound) {
			return httputil.Fail(c, fiber.StatusNotFound, wire.MessageNotFound, "Message not found")
		}
		h.log.Error().Err(err).Str("handler", "message").Msg("get message failed")
		return internalError(c)
	}

	moderation := existing.AuthorID != userID
	if moderation {
		allowed, err := h.perms.HasChannelPermission(c, userID, existing.ChannelID, permission.ManageMessages)
		if err != nil {
			h.log.Error().Err(err).Str("handler", "message").Msg("permission check failed")
			return internalError(c)
		}
		if !allowed {
			return forbidden(c)
		}
	}

	err = h.db.WithTx(c, func(q store.Querier) error {
		if err := h.messages.SoftDelete(c, q, messageID); err != nil {
			return err
		}
		if moderation {
			return h.audit.Append(c, q, auditlog.Record{
				ActorID:    userID,
				Action:     "message.delete",
				TargetType: "message",
				TargetID:   &messageID,
				Details:    map[string]any{"channel_id": existing.ChannelID, "author_id": existing.AuthorID},
			})
		}
		return nil
	})
	if err != nil {
		h.log.Error().Err(err).Str("handler", "message").Msg("delete message failed")
		return internalError(c)
	}

	h.dispatcher.ToChannel(existing.ChannelID, wire.EventMessageDelete, fiber.Map{
		"channel_id": existing.ChannelID,
		"id":         messageID,
	})
	return httputil.Success(c, fiber.Map{"deleted": true})
}

// Pin handles PUT /api/v1/channels/:channelID/messages/:messageID/pin.
// Requires MANAGE_MESSAGES. Pinning may emit a system message unless the
// server config suppresses them.
func (h *MessageHandler) Pin(c fiber.Ctx) error {
	userID, err := mustUser(c)
	if err != nil {
		return err
	}
	channelID, err := parseParamID(c, "channelID")
	if err != nil {
		return err
	}
	messageID, err := parseParamID(c, "messageID")
	if err != nil {
		return err
	}

	var req wire.PinMessageRequest
	if err := c.Bind().Body(&req); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid request body")
	}

	if err := h.messages.SetPinned(c, messageID, req.Pinned); err != nil {
		if errors.Is(err, message.ErrNotFound) {
			return httputil.Fail(c, fiber.StatusNotFound, wire.MessageNotFound, "Message not found")
		}
		h.log.Error().Err(err).Str("handler", "message").Msg("set pinned failed")
		return internalError(c)
	}

	msg, err := h.messages.GetByID(c, messageID, userID)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "message").Msg("reload pinned message failed")
		return internalError(c)
	}
	h.dispatcher.ToChannel(channelID, wire.EventMessageUpdate, msg.ToModel())

	if req.Pinned {
		if cfg, err := h.config.Get(c); err == nil && cfg.ShowSystemMessages {
			system, err := h.messages.Create(c, message.CreateParams{
				ChannelID: channelID,
				AuthorID:  userID,
				Type:      wire.MessageTypePinAdded,
				ReplyTo:   &messageID,
			})
			if err != nil {
				h.log.Error().Err(err).Str("handler", "message").Msg("create pin system message failed")
			} else {
				h.dispatcher.ToChannel(channelID, wire.EventMessageCreate, system.ToModel())
			}
		}
	}

	return httputil.Success(c, msg.ToModel())
}

// Pins handles GET /api/v1/channels/:channelID/pins.
func (h *MessageHandler) Pins(c fiber.Ctx) error {
	userID, err := mustUser(c)
	if err != nil {
		return err
	}
	channelID, err := parseParamID(c, "channelID")
	if err != nil {
		return err
	}

	messages, err := h.messages.List(c, channelID, message.ListOptions{
		PinnedOnly: true,
		Limit:      message.ClampLimit(0),
		ViewerID:   userID,
	})
	if err != nil {
		h.log.Error().Err(err).Str("handler", "message").Msg("list pins failed")
		return internalError(c)
	}

	models := make([]wire.Message, len(messages))
	for i := range messages {
		models[i] = messages[i].ToModel()
	}
	return httputil.Success(c, models)
}

// React handles PUT /api/v1/channels/:channelID/messages/:messageID/reactions.
// Requires ADD_REACTIONS. Adding an existing reaction is a no-op.
func (h *MessageHandler) React(c fiber.Ctx) error {
	return h.writeReaction(c, "add")
}

// Unreact handles DELETE /api/v1/channels/:channelID/messages/:messageID/reactions.
func (h *MessageHandler) Unreact(c fiber.Ctx) error {
	return h.writeReaction(c, "remove")
}

func (h *MessageHandler) writeReaction(c fiber.Ctx, action string) error {
	userID, err := mustUser(c)
	if err != nil {
		return err
	}
	channelID, err := parseParamID(c, "channelID")
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
		count, err = h.messages.AddReaction(c, messageID, userID, emoji)
	} else {
		count, err = h.messages.RemoveReaction(c, messageID, userID, emoji)
	}
	if err != nil {
		if errors.Is(err, message.ErrNotFound) {
			return httputil.Fail(c, fiber.StatusNotFound, wire.MessageNotFound, "Message not found")
		}
		h.log.Error().Err(err).Str("handler", "message").Msg("write reaction failed")
		return internalError(c)
	}

	payload := wire.ReactionUpdatePayload{
		ChannelID: channelID,
		MessageID: messageID,
		Emoji:     emoji,
		UserID:    userID,
		Action:    action,
		Count:     count,
	}
	h.dispatcher.ToChannel(channelID, wire.EventMessageReactionUpdate, payload)
	return httputil.Success(c, payload)
}
