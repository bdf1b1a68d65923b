package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ecto-chat/ecto-server/internal/auth"
	"github.com/ecto-chat/ecto-server/internal/channel"
	"github.com/ecto-chat/ecto-server/internal/gateway"
	"github.com/ecto-chat/ecto-server/internal/httputil"
	"github.com/ecto-chat/ecto-server/internal/message"
	"github.com/ecto-chat/ecto-server/internal/webhook"
	"github.com/ecto-chat/ecto-server/internal/wire"
)

// WebhookHandler serves webhook management plus the unauthenticated execute
// endpoint. Execution authenticates by webhook ID and token alone; the token
// is verified against its stored HMAC digest.
type WebhookHandler struct {
	webhooks   webhook.Repository
	channels   channel.Repository
	messages   message.Repository
	dispatcher *gateway.Dispatcher
	notify     *gateway.NotifyHub
	secret     string
	log        zerolog.Logger
}

// NewWebhookHandler creates a new webhook handler. secret is the server
// signing key used to digest webhook tokens.
func NewWebhookHandler(
	webhooks webhook.Repository,
	channels channel.Repository,
	messages message.Repository,
	dispatcher *gateway.Dispatcher,
	notify *gateway.NotifyHub,
	secret string,
	logger zerolog.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		webhooks:   webhooks,
		channels:   channels,
		messages:   messages,
		dispatcher: dispatcher,
		notify:     notify,
		secret:     secret,
		log:        logger,
	}
}

// List handles GET /api/v1/webhooks. Requires MANAGE_WEBHOOKS. Accepts an
// optional channel_id filter.
func (h *WebhookHandler) List(c fiber.Ctx) error {
	var (
		hooks []webhook.Webhook
		err   error
	)
	if raw := c.Query("channel_id"); raw != "" {
		channelID, parseErr := uuid.Parse(raw)
		if parseErr != nil {
			return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid channel_id format")
		}
		hooks, err = h.webhooks.ListByChannel(c, channelID)
	} else {
		hooks, err = h.webhooks.List(c)
	}
	if err != nil {
		h.log.Error().Err(err).Str("handler", "webhook").Msg("list webhooks failed")
		return internalError(c)
	}

	models := make([]wire.Webhook, len(hooks))
	for i := range hooks {
		models[i] = hooks[i].ToModel()
	}
	return httputil.Success(c, models)
}

// Create handles POST /api/v1/webhooks. Requires MANAGE_WEBHOOKS. The
// response is the only place the plaintext token ever appears.
func (h *WebhookHandler) Create(c fiber.Ctx) error {
	userID, err := mustUser(c)
	if err != nil {
		return err
	}

	var req wire.CreateWebhookRequest
	if err := c.Bind().Body(&req); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid request body")
	}
	name, err := webhook.ValidateName(req.Name)
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, err.Error())
	}

	ch, err := h.channels.GetByID(c, req.ChannelID)
	if err != nil {
		if errors.Is(err, channel.ErrNotFound) {
			return httputil.Fail(c, fiber.StatusNotFound, wire.ChannelNotFound, "Channel not found")
		}
		h.log.Error().Err(err).Str("handler", "webhook").Msg("get channel failed")
		return internalError(c)
	}
	if ch.Type != wire.ChannelTypeText {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.WrongChannelType, "Webhooks can only target text channels")
	}

	token, err := auth.NewSecretToken(webhook.TokenBytes)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "webhook").Msg("generate token failed")
		return internalError(c)
	}

	hook, err := h.webhooks.Create(c, webhook.CreateParams{
		ChannelID:   req.ChannelID,
		CreatorID:   userID,
		Name:        name,
		AvatarURL:   req.AvatarURL,
		TokenDigest: auth.DigestToken(token, h.secret),
	})
	if err != nil {
		h.log.Error().Err(err).Str("handler", "webhook").Msg("create webhook failed")
		return internalError(c)
	}
	hook.Token = token
	return httputil.SuccessStatus(c, fiber.StatusCreated, hook.ToModel())
}

// Delete handles DELETE /api/v1/webhooks/:webhookID. Requires MANAGE_WEBHOOKS.
func (h *WebhookHandler) Delete(c fiber.Ctx) error {
	webhookID, err := parseParamID(c, "webhookID")
	if err != nil {
		return err
	}

	if err := h.webhooks.Delete(c, webhookID); err != nil {
		if errors.Is(err, webhook.ErrNotFound) {
			return httputil.Fail(c, fiber.StatusNotFound, wire.WebhookNotFound, "Webhook not found")
		}
		h.log.Error().Err(err).Str("handler", "webhook").Msg("delete webhook failed")
		return internalError(c)
	}
	return httputil.Success(c, fiber.Map{"deleted": true})
}

// Regenerate handles POST /api/v1/webhooks/:webhookID/regenerate. Requires
// MANAGE_WEBHOOKS. The old token stops working immediately.
func (h *WebhookHandler) Regenerate(c fiber.Ctx) error {
	webhookID, err := parseParamID(c, "webhookID")
	if err != nil {
		return err
	}

	hook, err := h.webhooks.GetByID(c, webhookID)
	if err != nil {
		if errors.Is(err, webhook.ErrNotFound) {
			return httputil.Fail(c, fiber.StatusNotFound, wire.WebhookNotFound, "Webhook not found")
		}
		h.log.Error().Err(err).Str("handler", "webhook").Msg("get webhook failed")
		return internalError(c)
	}

	token, err := auth.NewSecretToken(webhook.TokenBytes)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "webhook").Msg("generate token failed")
		return internalError(c)
	}
	if err := h.webhooks.SetTokenDigest(c, webhookID, auth.DigestToken(token, h.secret)); err != nil {
		h.log.Error().Err(err).Str("handler", "webhook").Msg("rotate token failed")
		return internalError(c)
	}
	hook.Token = token
	return httputil.Success(c, hook.ToModel())
}

// Execute handles POST /api/v1/webhooks/:webhookID/:token, the public inbound
// endpoint. No session auth; possession of the token is the credential.
func (h *WebhookHandler) Execute(c fiber.Ctx) error {
	webhookID, err := parseParamID(c, "webhookID")
	if err != nil {
		return err
	}
	token := c.Params("token")

	hook, err := h.webhooks.GetByID(c, webhookID)
	if err != nil {
		if errors.Is(err, webhook.ErrNotFound) {
			return httputil.Fail(c, fiber.StatusNotFound, wire.WebhookNotFound, "Webhook not found")
		}
		h.log.Error().Err(err).Str("handler", "webhook").Msg("get webhook failed")
		return internalError(c)
	}
	if !auth.VerifyTokenDigest(token, h.secret, hook.TokenDigest) {
		// Same response as an unknown ID so probing cannot distinguish the two.
		return httputil.Fail(c, fiber.StatusNotFound, wire.WebhookNotFound, "Webhook not found")
	}

	var req wire.ExecuteWebhookRequest
	if err := c.Bind().Body(&req); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid request body")
	}
	content, err := message.ValidateContent(req.Content, maxMessageLength)
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.InvalidContent, err.Error())
	}

	ch, err := h.channels.GetByID(c, hook.ChannelID)
	if err != nil {
		if errors.Is(err, channel.ErrNotFound) {
			return httputil.Fail(c, fiber.StatusNotFound, wire.ChannelNotFound, "Webhook channel no longer exists")
		}
		h.log.Error().Err(err).Str("handler", "webhook").Msg("get channel failed")
		return internalError(c)
	}

	msg, err := h.messages.Create(c, message.CreateParams{
		ChannelID: ch.ID,
		AuthorID:  hook.CreatorID,
		Content:   content,
		Type:      wire.MessageTypeDefault,
		WebhookID: &hook.ID,
	})
	if err != nil {
		h.log.Error().Err(err).Str("handler", "webhook").Msg("create message failed")
		return internalError(c)
	}

	model := msg.ToModel()
	// Execute requests may override the display identity for this message.
	name := hook.Name
	if req.Username != "" {
		name = req.Username
	}
	avatar := hook.AvatarURL
	if req.AvatarURL != "" {
		avatar = req.AvatarURL
	}
	model.Author = &wire.Profile{
		ID:          hook.CreatorID,
		Username:    name,
		DisplayName: name,
		AvatarURL:   avatar,
	}

	h.dispatcher.ToChannel(ch.ID, wire.EventMessageCreate, model)
	h.notify.Broadcast(hook.CreatorID, ch.ID, wire.NotifyMessage)
	return httputil.SuccessStatus(c, fiber.StatusCreated, model)
}
