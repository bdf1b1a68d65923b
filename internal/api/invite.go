package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/ecto-chat/ecto-server/internal/httputil"
	"github.com/ecto-chat/ecto-server/internal/invite"
	"github.com/ecto-chat/ecto-server/internal/member"
	"github.com/ecto-chat/ecto-server/internal/permission"
	"github.com/ecto-chat/ecto-server/internal/server"
	"github.com/ecto-chat/ecto-server/internal/wire"
)

// InviteHandler serves invite management plus the unauthenticated invite
// info endpoint used by join screens.
type InviteHandler struct {
	invites invite.Repository
	server  server.Repository
	members member.Repository
	perms   *permission.Service
	log     zerolog.Logger
}

// NewInviteHandler creates a new invite handler.
func NewInviteHandler(
	invites invite.Repository,
	serverRepo server.Repository,
	members member.Repository,
	perms *permission.Service,
	logger zerolog.Logger,
) *InviteHandler {
	return &InviteHandler{invites: invites, server: serverRepo, members: members, perms: perms, log: logger}
}

// List handles GET /api/v1/invites. Requires MANAGE_SERVER.
func (h *InviteHandler) List(c fiber.Ctx) error {
	invites, err := h.invites.List(c)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "invite").Msg("list invites failed")
		return internalError(c)
	}

	models := make([]wire.Invite, len(invites))
	for i := range invites {
		models[i] = invites[i].ToModel()
	}
	return httputil.Success(c, models)
}

// Create handles POST /api/v1/invites. Requires CREATE_INVITES.
func (h *InviteHandler) Create(c fiber.Ctx) error {
	userID, err := mustUser(c)
	if err != nil {
		return err
	}

	var req wire.CreateInviteRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().Body(&req); err != nil {
			return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid request body")
		}
	}

	inv, err := h.invites.Create(c, userID, invite.CreateParams{
		MaxUses:       req.MaxUses,
		MaxAgeSeconds: int(req.ExpiresInSeconds),
	})
	if err != nil {
		if errors.Is(err, invite.ErrInvalidMaxUses) {
			return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, err.Error())
		}
		h.log.Error().Err(err).Str("handler", "invite").Msg("create invite failed")
		return internalError(c)
	}
	return httputil.SuccessStatus(c, fiber.StatusCreated, inv.ToModel())
}

// Revoke handles DELETE /api/v1/invites/:inviteID. The creator may revoke
// their own invites; anyone else needs MANAGE_SERVER.
func (h *InviteHandler) Revoke(c fiber.Ctx) error {
	userID, err := mustUser(c)
	if err != nil {
		return err
	}
	inviteID, err := parseParamID(c, "inviteID")
	if err != nil {
		return err
	}

	invites, err := h.invites.List(c)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "invite").Msg("list invites failed")
		return internalError(c)
	}
	var target *invite.Invite
	for i := range invites {
		if invites[i].ID == inviteID {
			target = &invites[i]
			break
		}
	}
	if target == nil {
		return httputil.Fail(c, fiber.StatusNotFound, wire.InvalidInvite, "Invite not found")
	}

	if target.CreatorID != userID {
		allowed, err := h.perms.HasServerPermission(c, userID, permission.ManageServer)
		if err != nil {
			h.log.Error().Err(err).Str("handler", "invite").Msg("permission check failed")
			return internalError(c)
		}
		if !allowed {
			return forbidden(c)
		}
	}

	inv, err := h.invites.Revoke(c, inviteID)
	if err != nil {
		if errors.Is(err, invite.ErrNotFound) {
			return httputil.Fail(c, fiber.StatusNotFound, wire.InvalidInvite, "Invite not found")
		}
		h.log.Error().Err(err).Str("handler", "invite").Msg("revoke invite failed")
		return internalError(c)
	}
	return httputil.Success(c, inv.ToModel())
}

// Info handles GET /api/v1/invites/:code/info, the public endpoint a join
// screen calls before authentication. It leaks only coarse server facts.
func (h *InviteHandler) Info(c fiber.Ctx) error {
	code := c.Params("code")

	inv, err := h.invites.GetByCode(c, code)
	if err != nil {
		if errors.Is(err, invite.ErrNotFound) {
			return httputil.Fail(c, fiber.StatusNotFound, wire.InvalidInvite, "Invite not found")
		}
		h.log.Error().Err(err).Str("handler", "invite").Msg("get invite failed")
		return internalError(c)
	}
	if !inv.Usable() {
		return httputil.Fail(c, fiber.StatusGone, wire.InvalidInvite, "Invite is no longer valid")
	}

	srv, err := h.server.Get(c)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "invite").Msg("get server failed")
		return internalError(c)
	}
	count, err := h.members.Count(c)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "invite").Msg("member count failed")
		return internalError(c)
	}

	return httputil.Success(c, fiber.Map{
		"server_name":        srv.Name,
		"server_description": srv.Description,
		"server_icon_url":    srv.IconURL,
		"member_count":       count,
	})
}
