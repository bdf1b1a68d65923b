package api

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ecto-chat/ecto-server/internal/auditlog"
	"github.com/ecto-chat/ecto-server/internal/dm"
	"github.com/ecto-chat/ecto-server/internal/gateway"
	"github.com/ecto-chat/ecto-server/internal/httputil"
	"github.com/ecto-chat/ecto-server/internal/member"
	"github.com/ecto-chat/ecto-server/internal/message"
	"github.com/ecto-chat/ecto-server/internal/permission"
	"github.com/ecto-chat/ecto-server/internal/readstate"
	"github.com/ecto-chat/ecto-server/internal/role"
	"github.com/ecto-chat/ecto-server/internal/server"
	"github.com/ecto-chat/ecto-server/internal/store"
	"github.com/ecto-chat/ecto-server/internal/wire"
)

const defaultMemberPage = 100

// MemberHandler serves member listing, profile updates, role assignment,
// and the kick/ban moderation flows.
type MemberHandler struct {
	members    member.Repository
	roles      role.Repository
	server     server.Repository
	messages   message.Repository
	readstates readstate.Repository
	dms        dm.Repository
	audit      auditlog.Repository
	perms      *permission.Service
	invalidate *permission.Invalidator
	dispatcher *gateway.Dispatcher
	sessions   *gateway.Handler
	db         *store.DB
	log        zerolog.Logger
}

// NewMemberHandler creates a new member handler.
func NewMemberHandler(
	members member.Repository,
	roles role.Repository,
	serverRepo server.Repository,
	messages message.Repository,
	readstates readstate.Repository,
	dms dm.Repository,
	audit auditlog.Repository,
	perms *permission.Service,
	invalidate *permission.Invalidator,
	dispatcher *gateway.Dispatcher,
	sessions *gateway.Handler,
	db *store.DB,
	logger zerolog.Logger,
) *MemberHandler {
	return &MemberHandler{
		members:    members,
		roles:      roles,
		server:     serverRepo,
		messages:   messages,
		readstates: readstates,
		dms:        dms,
		audit:      audit,
		perms:      perms,
		invalidate: invalidate,
		dispatcher: dispatcher,
		sessions:   sessions,
		db:         db,
		log:        logger,
	}
}

// List handles GET /api/v1/members. Cursor pagination via the after query
// parameter.
func (h *MemberHandler) List(c fiber.Ctx) error {
	var after *uuid.UUID
	if raw := c.Query("after"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid after cursor")
		}
		after = &id
	}
	limit := fiber.Query[int](c, "limit", defaultMemberPage)
	if limit <= 0 || limit > 1000 {
		limit = defaultMemberPage
	}

	members, err := h.members.List(c, after, limit)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "member").Msg("list members failed")
		return internalError(c)
	}

	models := make([]wire.Member, len(members))
	for i := range members {
		models[i] = members[i].ToModel()
	}
	return httputil.Success(c, models)
}

// Get handles GET /api/v1/members/:userID.
func (h *MemberHandler) Get(c fiber.Ctx) error {
	targetID, err := parseParamID(c, "userID")
	if err != nil {
		return err
	}

	m, err := h.members.Get(c, targetID)
	if err != nil {
		if errors.Is(err, member.ErrNotFound) {
			return httputil.Fail(c, fiber.StatusNotFound, wire.NotAMember, "Member not found")
		}
		h.log.Error().Err(err).Str("handler", "member").Msg("get member failed")
		return internalError(c)
	}
	return httputil.Success(c, m.ToModel())
}

// Update handles PATCH /api/v1/members/:userID. Members update their own
// nickname and DM preference; changing another member's nickname requires
// MANAGE_ROLES.
func (h *MemberHandler) Update(c fiber.Ctx) error {
	userID, err := mustUser(c)
	if err != nil {
		return err
	}
	targetID, err := parseParamID(c, "userID")
	if err != nil {
		return err
	}

	var req wire.UpdateMemberRequest
	if err := c.Bind().Body(&req); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid request body")
	}

	if targetID != userID {
		allowed, err := h.perms.HasServerPermission(c, userID, permission.ManageRoles)
		if err != nil {
			h.log.Error().Err(err).Str("handler", "member").Msg("permission check failed")
			return internalError(c)
		}
		if !allowed {
			return forbidden(c)
		}
		if req.AllowDms != nil {
			return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "allow_dms can only be changed by the member")
		}
	}

	if req.AllowDms != nil {
		if err := h.members.SetAllowDms(c, targetID, *req.AllowDms); err != nil {
			h.log.Error().Err(err).Str("handler", "member").Msg("set allow_dms failed")
			return internalError(c)
		}
	}

	var m *member.MemberWithProfile
	if req.Nickname != nil {
		m, err = h.members.UpdateNickname(c, targetID, *req.Nickname)
	} else {
		m, err = h.members.Get(c, targetID)
	}
	if err != nil {
		switch {
		case errors.Is(err, member.ErrNotFound):
			return httputil.Fail(c, fiber.StatusNotFound, wire.NotAMember, "Member not found")
		case errors.Is(err, member.ErrNicknameLength):
			return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, err.Error())
		}
		h.log.Error().Err(err).Str("handler", "member").Msg("update member failed")
		return internalError(c)
	}

	h.dispatcher.ToServer(wire.EventMemberUpdate, m.ToModel())
	return httputil.Success(c, m.ToModel())
}

// UpdateRoles handles PUT /api/v1/members/:userID/roles. Requires
// MANAGE_ROLES and role hierarchy over the target.
func (h *MemberHandler) UpdateRoles(c fiber.Ctx) error {
	userID, err := mustUser(c)
	if err != nil {
		return err
	}
	targetID, err := parseParamID(c, "userID")
	if err != nil {
		return err
	}

	var req wire.UpdateMemberRolesRequest
	if err := c.Bind().Body(&req); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid request body")
	}

	if ok, err := h.outranks(c, userID, targetID); err != nil {
		h.log.Error().Err(err).Str("handler", "member").Msg("hierarchy check failed")
		return internalError(c)
	} else if !ok {
		return httputil.Fail(c, fiber.StatusForbidden, wire.HierarchyViolation, "Your highest role must outrank the target's")
	}

	err = h.db.WithTx(c, func(q store.Querier) error {
		if err := h.members.ReplaceRoles(c, q, targetID, req.RoleIDs); err != nil {
			return err
		}
		return h.audit.Append(c, q, auditlog.Record{
			ActorID:    userID,
			Action:     "member.roles_update",
			TargetType: "member",
			TargetID:   &targetID,
		})
	})
	if err != nil {
		switch {
		case errors.Is(err, member.ErrNotFound):
			return httputil.Fail(c, fiber.StatusNotFound, wire.NotAMember, "Member not found")
		case errors.Is(err, role.ErrNotFound):
			return httputil.Fail(c, fiber.StatusBadRequest, wire.RoleNotFound, "One or more roles do not exist")
		case errors.Is(err, member.ErrDefaultRole):
			return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, err.Error())
		}
		h.log.Error().Err(err).Str("handler", "member").Msg("replace roles failed")
		return internalError(c)
	}

	h.invalidate.User(targetID)

	m, err := h.members.Get(c, targetID)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "member").Msg("reload member failed")
		return internalError(c)
	}
	h.dispatcher.ToServer(wire.EventMemberUpdate, m.ToModel())
	return httputil.Success(c, m.ToModel())
}

// Kick handles POST /api/v1/members/:userID/kick. Requires KICK_MEMBERS and
// hierarchy. The target's read and DM state is cleaned inside the same
// transaction that removes the member row.
func (h *MemberHandler) Kick(c fiber.Ctx) error {
	userID, err := mustUser(c)
	if err != nil {
		return err
	}
	targetID, err := parseParamID(c, "userID")
	if err != nil {
		return err
	}
	if targetID == userID {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Use leave instead of kicking yourself")
	}

	var req wire.KickRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().Body(&req); err != nil {
			return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid request body")
		}
	}

	if ok, err := h.outranks(c, userID, targetID); err != nil {
		h.log.Error().Err(err).Str("handler", "member").Msg("hierarchy check failed")
		return internalError(c)
	} else if !ok {
		return httputil.Fail(c, fiber.StatusForbidden, wire.HierarchyViolation, "Your highest role must outrank the target's")
	}

	err = h.db.WithTx(c, func(q store.Querier) error {
		if err := h.readstates.DeleteForUser(c, q, targetID); err != nil {
			return err
		}
		if err := h.dms.DeleteReadStatesForUser(c, q, targetID); err != nil {
			return err
		}
		if err := h.members.Delete(c, q, targetID); err != nil {
			return err
		}
		return h.audit.Append(c, q, auditlog.Record{
			ActorID:    userID,
			Action:     "member.kick",
			TargetType: "member",
			TargetID:   &targetID,
			Details:    map[string]any{"reason": req.Reason},
		})
	})
	if err != nil {
		if errors.Is(err, member.ErrNotFound) {
			return httputil.Fail(c, fiber.StatusNotFound, wire.NotAMember, "Member not found")
		}
		h.log.Error().Err(err).Str("handler", "member").Msg("kick failed")
		return internalError(c)
	}

	h.invalidate.User(targetID)
	h.dispatcher.ToServer(wire.EventMemberLeave, fiber.Map{"user_id": targetID, "kicked": true})
	h.sessions.CloseUser(targetID, "Kicked")
	return httputil.Success(c, fiber.Map{"kicked": true})
}

// Ban handles POST /api/v1/members/:userID/ban (and POST /api/v1/bans).
// Requires BAN_MEMBERS and hierarchy. delete_messages optionally soft
// deletes the target's recent messages in the same transaction.
func (h *MemberHandler) Ban(c fiber.Ctx) error {
	userID, err := mustUser(c)
	if err != nil {
		return err
	}
	targetID, err := parseParamID(c, "userID")
	if err != nil {
		return err
	}
	if targetID == userID {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "You cannot ban yourself")
	}

	var req wire.BanRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().Body(&req); err != nil {
			return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid request body")
		}
	}
	cutoff, err := deleteMessagesCutoff(req.DeleteMessages)
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "delete_messages must be 1h, 24h, or 7d")
	}

	if ok, err := h.outranks(c, userID, targetID); err != nil {
		h.log.Error().Err(err).Str("handler", "member").Msg("hierarchy check failed")
		return internalError(c)
	} else if !ok {
		return httputil.Fail(c, fiber.StatusForbidden, wire.HierarchyViolation, "Your highest role must outrank the target's")
	}

	var deleted map[uuid.UUID][]uuid.UUID
	err = h.db.WithTx(c, func(q store.Querier) error {
		if err := h.members.Ban(c, q, member.BanParams{
			UserID:   targetID,
			BannedBy: userID,
			Reason:   req.Reason,
		}); err != nil {
			return err
		}
		if err := h.readstates.DeleteForUser(c, q, targetID); err != nil {
			return err
		}
		if err := h.dms.DeleteReadStatesForUser(c, q, targetID); err != nil {
			return err
		}
		if err := h.members.Delete(c, q, targetID); err != nil && !errors.Is(err, member.ErrNotFound) {
			return err
		}
		if cutoff != nil {
			var err error
			deleted, err = h.messages.SoftDeleteByAuthorSince(c, q, targetID, *cutoff)
			if err != nil {
				return err
			}
		}
		return h.audit.Append(c, q, auditlog.Record{
			ActorID:    userID,
			Action:     "member.ban",
			TargetType: "member",
			TargetID:   &targetID,
			Details:    map[string]any{"reason": req.Reason, "delete_messages": req.DeleteMessages},
		})
	})
	if err != nil {
		h.log.Error().Err(err).Str("handler", "member").Msg("ban failed")
		return internalError(c)
	}

	h.invalidate.User(targetID)
	h.dispatcher.ToServer(wire.EventMemberLeave, fiber.Map{"user_id": targetID, "banned": true})
	for channelID, ids := range deleted {
		h.dispatcher.ToChannel(channelID, wire.EventMessageBulkDelete, wire.BulkDeletePayload{
			ChannelID:  channelID,
			MessageIDs: ids,
		})
	}
	h.sessions.CloseUser(targetID, "Banned")
	return httputil.Success(c, fiber.Map{"banned": true})
}

// Unban handles DELETE /api/v1/bans/:userID. Requires BAN_MEMBERS.
func (h *MemberHandler) Unban(c fiber.Ctx) error {
	userID, err := mustUser(c)
	if err != nil {
		return err
	}
	targetID, err := parseParamID(c, "userID")
	if err != nil {
		return err
	}

	if err := h.members.Unban(c, targetID); err != nil {
		if errors.Is(err, member.ErrBanNotFound) {
			return httputil.Fail(c, fiber.StatusNotFound, wire.NotAMember, "User is not banned")
		}
		h.log.Error().Err(err).Str("handler", "member").Msg("unban failed")
		return internalError(c)
	}

	if err := h.audit.Append(c, h.db, auditlog.Record{
		ActorID:    userID,
		Action:     "member.unban",
		TargetType: "member",
		TargetID:   &targetID,
	}); err != nil {
		h.log.Error().Err(err).Str("handler", "member").Msg("audit append failed")
	}
	return httputil.Success(c, fiber.Map{"unbanned": true})
}

// ListBans handles GET /api/v1/bans. Requires BAN_MEMBERS.
func (h *MemberHandler) ListBans(c fiber.Ctx) error {
	bans, err := h.members.ListBans(c)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "member").Msg("list bans failed")
		return internalError(c)
	}

	models := make([]wire.Ban, len(bans))
	for i := range bans {
		models[i] = bans[i].ToModel()
	}
	return httputil.Success(c, models)
}

// outranks reports whether the actor's highest role position strictly
// exceeds the target's. The owner outranks everyone and cannot be outranked.
func (h *MemberHandler) outranks(c fiber.Ctx, actorID, targetID uuid.UUID) (bool, error) {
	srv, err := h.server.Get(c)
	if err != nil {
		return false, err
	}
	if srv.AdminUserID != nil {
		if *srv.AdminUserID == actorID {
			return true, nil
		}
		if *srv.AdminUserID == targetID {
			return false, nil
		}
	}

	actorPos, err := h.roles.HighestPosition(c, actorID)
	if err != nil {
		return false, err
	}
	targetPos, err := h.roles.HighestPosition(c, targetID)
	if err != nil {
		return false, err
	}
	return actorPos > targetPos, nil
}

// deleteMessagesCutoff translates the ban request's delete_messages window
// into an absolute cutoff. Empty means no deletion.
func deleteMessagesCutoff(window string) (*time.Time, error) {
	var d time.Duration
	switch window {
	case "":
		return nil, nil
	case "1h":
		d = time.Hour
	case "24h":
		d = 24 * time.Hour
	case "7d":
		d = 7 * 24 * time.Hour
	default:
		return nil, errors.New("invalid delete_messages window")
	}
	cutoff := time.Now().UTC().Add(-d)
	return &cutoff, nil
}
