package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/ecto-chat/ecto-server/internal/gateway"
	"github.com/ecto-chat/ecto-server/internal/httputil"
	"github.com/ecto-chat/ecto-server/internal/permission"
	"github.com/ecto-chat/ecto-server/internal/role"
	"github.com/ecto-chat/ecto-server/internal/wire"
)

// RoleHandler serves role CRUD and reordering. All mutating routes require
// MANAGE_ROLES.
type RoleHandler struct {
	roles      role.Repository
	invalidate *permission.Invalidator
	dispatcher *gateway.Dispatcher
	log        zerolog.Logger
}

// NewRoleHandler creates a new role handler.
func NewRoleHandler(roles role.Repository, invalidate *permission.Invalidator, dispatcher *gateway.Dispatcher, logger zerolog.Logger) *RoleHandler {
	return &RoleHandler{roles: roles, invalidate: invalidate, dispatcher: dispatcher, log: logger}
}

// List handles GET /api/v1/roles.
func (h *RoleHandler) List(c fiber.Ctx) error {
	roles, err := h.roles.List(c)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "role").Msg("list roles failed")
		return internalError(c)
	}

	models := make([]wire.Role, len(roles))
	for i := range roles {
		models[i] = roles[i].ToModel()
	}
	return httputil.Success(c, models)
}

// Create handles POST /api/v1/roles.
func (h *RoleHandler) Create(c fiber.Ctx) error {
	var req wire.CreateRoleRequest
	if err := c.Bind().Body(&req); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid request body")
	}

	r, err := h.roles.Create(c, role.CreateParams{
		Name:        req.Name,
		Color:       req.Color,
		Permissions: req.Permissions,
	})
	if err != nil {
		switch {
		case errors.Is(err, role.ErrNameLength), errors.Is(err, role.ErrInvalidPermissions),
			errors.Is(err, role.ErrInvalidColor):
			return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, err.Error())
		case errors.Is(err, role.ErrMaxRolesReached):
			return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Maximum number of roles reached")
		}
		h.log.Error().Err(err).Str("handler", "role").Msg("create role failed")
		return internalError(c)
	}

	h.dispatcher.ToServer(wire.EventRoleCreate, r.ToModel())
	return httputil.SuccessStatus(c, fiber.StatusCreated, r.ToModel())
}

// Update handles PATCH /api/v1/roles/:roleID. The default role can be
// renamed and permission-edited like any other.
func (h *RoleHandler) Update(c fiber.Ctx) error {
	roleID, err := parseParamID(c, "roleID")
	if err != nil {
		return err
	}

	var req wire.UpdateRoleRequest
	if err := c.Bind().Body(&req); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid request body")
	}
	if req.Position != nil && *req.Position < 0 {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Position must be non-negative")
	}

	r, err := h.roles.Update(c, roleID, role.UpdateParams{
		Name:        req.Name,
		Color:       req.Color,
		Permissions: req.Permissions,
		Position:    req.Position,
	})
	if err != nil {
		switch {
		case errors.Is(err, role.ErrNotFound):
			return httputil.Fail(c, fiber.StatusNotFound, wire.RoleNotFound, "Role not found")
		case errors.Is(err, role.ErrNameLength), errors.Is(err, role.ErrInvalidPermissions),
			errors.Is(err, role.ErrInvalidColor), errors.Is(err, role.ErrInvalidPosition):
			return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, err.Error())
		}
		h.log.Error().Err(err).Str("handler", "role").Msg("update role failed")
		return internalError(c)
	}

	h.invalidate.All()
	h.dispatcher.ToServer(wire.EventRoleUpdate, r.ToModel())
	return httputil.Success(c, r.ToModel())
}

// Delete handles DELETE /api/v1/roles/:roleID. Deleting the default role is
// forbidden.
func (h *RoleHandler) Delete(c fiber.Ctx) error {
	roleID, err := parseParamID(c, "roleID")
	if err != nil {
		return err
	}

	if err := h.roles.Delete(c, roleID); err != nil {
		switch {
		case errors.Is(err, role.ErrNotFound):
			return httputil.Fail(c, fiber.StatusNotFound, wire.RoleNotFound, "Role not found")
		case errors.Is(err, role.ErrDefaultImmutable):
			return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "The default role cannot be deleted")
		}
		h.log.Error().Err(err).Str("handler", "role").Msg("delete role failed")
		return internalError(c)
	}

	h.invalidate.All()
	h.dispatcher.ToServer(wire.EventRoleDelete, fiber.Map{"id": roleID})
	return httputil.Success(c, fiber.Map{"deleted": true})
}

// Reorder handles PUT /api/v1/roles/reorder.
func (h *RoleHandler) Reorder(c fiber.Ctx) error {
	var req struct {
		Items []role.PositionUpdate `json:"items"`
	}
	if err := c.Bind().Body(&req); err != nil || len(req.Items) == 0 {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid request body")
	}
	for _, item := range req.Items {
		if item.Position < 0 {
			return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Position must be non-negative")
		}
	}

	if err := h.roles.Reorder(c, req.Items); err != nil {
		h.log.Error().Err(err).Str("handler", "role").Msg("reorder roles failed")
		return internalError(c)
	}

	h.invalidate.All()
	h.dispatcher.ToServer(wire.EventRoleReorder, fiber.Map{"items": req.Items})
	return httputil.Success(c, fiber.Map{"reordered": true})
}
