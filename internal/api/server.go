package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/ecto-chat/ecto-server/internal/auditlog"
	"github.com/ecto-chat/ecto-server/internal/gateway"
	"github.com/ecto-chat/ecto-server/internal/httputil"
	"github.com/ecto-chat/ecto-server/internal/invite"
	"github.com/ecto-chat/ecto-server/internal/member"
	"github.com/ecto-chat/ecto-server/internal/permission"
	"github.com/ecto-chat/ecto-server/internal/server"
	"github.com/ecto-chat/ecto-server/internal/serverconfig"
	"github.com/ecto-chat/ecto-server/internal/store"
	"github.com/ecto-chat/ecto-server/internal/wire"
)

// ServerHandler serves the single-server endpoints: metadata, config, and
// membership join/leave.
type ServerHandler struct {
	server     server.Repository
	config     serverconfig.Repository
	members    member.Repository
	invites    invite.Repository
	audit      auditlog.Repository
	perms      *permission.Invalidator
	dispatcher *gateway.Dispatcher
	db         *store.DB
	log        zerolog.Logger
}

// NewServerHandler creates a new server handler.
func NewServerHandler(
	serverRepo server.Repository,
	configRepo serverconfig.Repository,
	members member.Repository,
	invites invite.Repository,
	audit auditlog.Repository,
	perms *permission.Invalidator,
	dispatcher *gateway.Dispatcher,
	db *store.DB,
	logger zerolog.Logger,
) *ServerHandler {
	return &ServerHandler{
		server:     serverRepo,
		config:     configRepo,
		members:    members,
		invites:    invites,
		audit:      audit,
		perms:      perms,
		dispatcher: dispatcher,
		db:         db,
		log:        logger,
	}
}

// GetServer handles GET /api/v1/server.
func (h *ServerHandler) GetServer(c fiber.Ctx) error {
	srv, err := h.server.Get(c)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "server").Msg("get server failed")
		return internalError(c)
	}
	return httputil.Success(c, srv.ToModel())
}

// UpdateServer handles PATCH /api/v1/server. Requires MANAGE_SERVER.
func (h *ServerHandler) UpdateServer(c fiber.Ctx) error {
	var req wire.UpdateServerRequest
	if err := c.Bind().Body(&req); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid request body")
	}

	srv, err := h.server.Update(c, server.UpdateParams{Name: req.Name, Description: req.Description})
	if err != nil {
		if errors.Is(err, server.ErrNameLength) || errors.Is(err, server.ErrDescriptionLength) {
			return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, err.Error())
		}
		h.log.Error().Err(err).Str("handler", "server").Msg("update server failed")
		return internalError(c)
	}

	if actorID, ok := currentUser(c); ok {
		if err := h.audit.Append(c, h.db, auditlog.Record{ActorID: actorID, Action: "server.update"}); err != nil {
			h.log.Error().Err(err).Str("handler", "server").Msg("audit append failed")
		}
	}

	h.dispatcher.ToServer(wire.EventServerUpdate, srv.ToModel())
	return httputil.Success(c, srv.ToModel())
}

// GetConfig handles GET /api/v1/server/config. Requires MANAGE_SERVER.
func (h *ServerHandler) GetConfig(c fiber.Ctx) error {
	cfg, err := h.config.Get(c)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "server").Msg("get config failed")
		return internalError(c)
	}
	return httputil.Success(c, cfg.ToModel())
}

// UpdateConfig handles PATCH /api/v1/server/config. Requires MANAGE_SERVER.
func (h *ServerHandler) UpdateConfig(c fiber.Ctx) error {
	var req wire.UpdateServerConfigRequest
	if err := c.Bind().Body(&req); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid request body")
	}

	cfg, err := h.config.Update(c, serverconfig.UpdateParams{
		MaxUploadSizeBytes:    req.MaxUploadSizeBytes,
		MaxSharedStorageBytes: req.MaxSharedStorageBytes,
		AllowLocalAccounts:    req.AllowLocalAccounts,
		RequireInvite:         req.RequireInvite,
		AllowMemberDms:        req.AllowMemberDms,
		ShowSystemMessages:    req.ShowSystemMessages,
	})
	if err != nil {
		if errors.Is(err, serverconfig.ErrUploadSize) || errors.Is(err, serverconfig.ErrStorageSize) {
			return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, err.Error())
		}
		h.log.Error().Err(err).Str("handler", "server").Msg("update config failed")
		return internalError(c)
	}

	if actorID, ok := currentUser(c); ok {
		if err := h.audit.Append(c, h.db, auditlog.Record{ActorID: actorID, Action: "server.config_update"}); err != nil {
			h.log.Error().Err(err).Str("handler", "server").Msg("audit append failed")
		}
	}

	h.dispatcher.ToServer(wire.EventConfigUpdate, cfg.ToModel())
	return httputil.Success(c, cfg.ToModel())
}

// Join handles POST /api/v1/server/join. The first member to join becomes
// the server owner.
func (h *ServerHandler) Join(c fiber.Ctx) error {
	userID, err := mustUser(c)
	if err != nil {
		return err
	}
	identityType, _ := c.Locals("identityType").(string)

	var req wire.JoinRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().Body(&req); err != nil {
			return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid request body")
		}
	}

	banned, err := h.members.IsBanned(c, userID)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "server").Msg("ban check failed")
		return internalError(c)
	}
	if banned {
		return httputil.Fail(c, fiber.StatusForbidden, wire.Banned, "You are banned from this server")
	}

	if exists, err := h.members.Exists(c, userID); err != nil {
		h.log.Error().Err(err).Str("handler", "server").Msg("member check failed")
		return internalError(c)
	} else if exists {
		m, err := h.members.Get(c, userID)
		if err != nil {
			return internalError(c)
		}
		return httputil.Success(c, m.ToModel())
	}

	cfg, err := h.config.Get(c)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "server").Msg("get config failed")
		return internalError(c)
	}
	if cfg.RequireInvite {
		if req.InviteCode == "" {
			return httputil.Fail(c, fiber.StatusForbidden, wire.InvalidInvite, "An invite is required to join this server")
		}
		if _, err := h.invites.Use(c, req.InviteCode); err != nil {
			switch {
			case errors.Is(err, invite.ErrNotFound),
				errors.Is(err, invite.ErrExpired),
				errors.Is(err, invite.ErrRevoked),
				errors.Is(err, invite.ErrMaxUsesReached):
				return httputil.Fail(c, fiber.StatusForbidden, wire.InvalidInvite, "Invite is invalid or has expired")
			}
			h.log.Error().Err(err).Str("handler", "server").Msg("invite use failed")
			return internalError(c)
		}
	}

	count, err := h.members.Count(c)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "server").Msg("member count failed")
		return internalError(c)
	}

	err = h.db.WithTx(c, func(q store.Querier) error {
		if err := h.members.Create(c, q, member.CreateParams{
			UserID:       userID,
			IdentityType: identityType,
			Nickname:     req.Nickname,
		}); err != nil {
			return err
		}
		if count == 0 {
			return h.server.SetOwner(c, q, userID)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, member.ErrAlreadyMember) {
			m, getErr := h.members.Get(c, userID)
			if getErr != nil {
				return internalError(c)
			}
			return httputil.Success(c, m.ToModel())
		}
		h.log.Error().Err(err).Str("handler", "server").Msg("join failed")
		return internalError(c)
	}

	h.perms.User(userID)

	m, err := h.members.Get(c, userID)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "server").Msg("load joined member failed")
		return internalError(c)
	}

	h.dispatcher.ToServer(wire.EventMemberJoin, m.ToModel())
	return httputil.SuccessStatus(c, fiber.StatusCreated, m.ToModel())
}

// Leave handles POST /api/v1/server/leave. The owner cannot leave.
func (h *ServerHandler) Leave(c fiber.Ctx) error {
	userID, err := mustUser(c)
	if err != nil {
		return err
	}

	srv, err := h.server.Get(c)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "server").Msg("get server failed")
		return internalError(c)
	}
	if srv.AdminUserID != nil && *srv.AdminUserID == userID {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "The server owner cannot leave")
	}

	err = h.db.WithTx(c, func(q store.Querier) error {
		return h.members.Delete(c, q, userID)
	})
	if err != nil {
		if errors.Is(err, member.ErrNotFound) {
			return httputil.Fail(c, fiber.StatusNotFound, wire.NotAMember, "You are not a member of this server")
		}
		h.log.Error().Err(err).Str("handler", "server").Msg("leave failed")
		return internalError(c)
	}

	h.perms.User(userID)
	h.dispatcher.ToServer(wire.EventMemberLeave, fiber.Map{"user_id": userID})
	return httputil.Success(c, fiber.Map{"left": true})
}
