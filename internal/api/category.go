package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/ecto-chat/ecto-server/internal/category"
	"github.com/ecto-chat/ecto-server/internal/gateway"
	"github.com/ecto-chat/ecto-server/internal/httputil"
	"github.com/ecto-chat/ecto-server/internal/permission"
	"github.com/ecto-chat/ecto-server/internal/store"
	"github.com/ecto-chat/ecto-server/internal/wire"
)

// CategoryHandler serves category CRUD, reordering, and override endpoints.
type CategoryHandler struct {
	categories category.Repository
	overrides  *permission.SQLStore
	invalidate *permission.Invalidator
	dispatcher *gateway.Dispatcher
	db         *store.DB
	log        zerolog.Logger
}

// NewCategoryHandler creates a new category handler.
func NewCategoryHandler(
	categories category.Repository,
	overrides *permission.SQLStore,
	invalidate *permission.Invalidator,
	dispatcher *gateway.Dispatcher,
	db *store.DB,
	logger zerolog.Logger,
) *CategoryHandler {
	return &CategoryHandler{
		categories: categories,
		overrides:  overrides,
		invalidate: invalidate,
		dispatcher: dispatcher,
		db:         db,
		log:        logger,
	}
}

// List handles GET /api/v1/categories.
func (h *CategoryHandler) List(c fiber.Ctx) error {
	categories, err := h.categories.List(c)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "category").Msg("list categories failed")
		return internalError(c)
	}

	models := make([]wire.Category, len(categories))
	for i := range categories {
		models[i] = categories[i].ToModel()
	}
	return httputil.Success(c, models)
}

// Create handles POST /api/v1/categories. Requires MANAGE_CHANNELS.
func (h *CategoryHandler) Create(c fiber.Ctx) error {
	var req wire.CreateCategoryRequest
	if err := c.Bind().Body(&req); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid request body")
	}

	cat, err := h.categories.Create(c, category.CreateParams{Name: req.Name})
	if err != nil {
		switch {
		case errors.Is(err, category.ErrNameLength):
			return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, err.Error())
		case errors.Is(err, category.ErrMaxCategoriesReached):
			return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Maximum number of categories reached")
		}
		h.log.Error().Err(err).Str("handler", "category").Msg("create category failed")
		return internalError(c)
	}

	h.dispatcher.ToServer(wire.EventCategoryCreate, cat.ToModel())
	return httputil.SuccessStatus(c, fiber.StatusCreated, cat.ToModel())
}

// Update handles PATCH /api/v1/categories/:categoryID. Requires MANAGE_CHANNELS.
func (h *CategoryHandler) Update(c fiber.Ctx) error {
	categoryID, err := parseParamID(c, "categoryID")
	if err != nil {
		return err
	}

	var req wire.UpdateCategoryRequest
	if err := c.Bind().Body(&req); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid request body")
	}

	cat, err := h.categories.Update(c, categoryID, category.UpdateParams{Name: req.Name})
	if err != nil {
		switch {
		case errors.Is(err, category.ErrNotFound):
			return httputil.Fail(c, fiber.StatusNotFound, wire.CategoryNotFound, "Category not found")
		case errors.Is(err, category.ErrNameLength):
			return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, err.Error())
		}
		h.log.Error().Err(err).Str("handler", "category").Msg("update category failed")
		return internalError(c)
	}

	h.dispatcher.ToServer(wire.EventCategoryUpdate, cat.ToModel())
	return httputil.Success(c, cat.ToModel())
}

// Delete handles DELETE /api/v1/categories/:categoryID. Requires
// MANAGE_CHANNELS. Channels in the category become uncategorized.
func (h *CategoryHandler) Delete(c fiber.Ctx) error {
	categoryID, err := parseParamID(c, "categoryID")
	if err != nil {
		return err
	}

	if err := h.categories.Delete(c, categoryID); err != nil {
		if errors.Is(err, category.ErrNotFound) {
			return httputil.Fail(c, fiber.StatusNotFound, wire.CategoryNotFound, "Category not found")
		}
		h.log.Error().Err(err).Str("handler", "category").Msg("delete category failed")
		return internalError(c)
	}

	h.invalidate.All()
	h.dispatcher.ToServer(wire.EventCategoryDelete, fiber.Map{"id": categoryID})
	return httputil.Success(c, fiber.Map{"deleted": true})
}

// Reorder handles PUT /api/v1/categories/reorder. Requires MANAGE_CHANNELS.
func (h *CategoryHandler) Reorder(c fiber.Ctx) error {
	var req struct {
		Items []category.PositionUpdate `json:"items"`
	}
	if err := c.Bind().Body(&req); err != nil || len(req.Items) == 0 {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid request body")
	}

	if err := h.categories.Reorder(c, req.Items); err != nil {
		h.log.Error().Err(err).Str("handler", "category").Msg("reorder categories failed")
		return internalError(c)
	}

	h.dispatcher.ToServer(wire.EventCategoryReorder, fiber.Map{"items": req.Items})
	return httputil.Success(c, fiber.Map{"reordered": true})
}

// SetOverride handles PUT /api/v1/categories/:categoryID/overrides/:targetID.
// Requires MANAGE_ROLES.
func (h *CategoryHandler) SetOverride(c fiber.Ctx) error {
	return h.writeOverride(c, true)
}

// DeleteOverride handles DELETE /api/v1/categories/:categoryID/overrides/:targetID.
// Requires MANAGE_ROLES.
func (h *CategoryHandler) DeleteOverride(c fiber.Ctx) error {
	return h.writeOverride(c, false)
}

func (h *CategoryHandler) writeOverride(c fiber.Ctx, set bool) error {
	categoryID, err := parseParamID(c, "categoryID")
	if err != nil {
		return err
	}
	targetID, err := parseParamID(c, "targetID")
	if err != nil {
		return err
	}

	var req wire.SetOverrideRequest
	if set {
		if err := c.Bind().Body(&req); err != nil {
			return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid request body")
		}
	}
	targetType, err := parseTargetType(req.TargetType, c.Query("target_type"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "target_type must be role or member")
	}

	cat, err := h.categories.GetByID(c, categoryID)
	if err != nil {
		if errors.Is(err, category.ErrNotFound) {
			return httputil.Fail(c, fiber.StatusNotFound, wire.CategoryNotFound, "Category not found")
		}
		h.log.Error().Err(err).Str("handler", "category").Msg("get category failed")
		return internalError(c)
	}

	if set {
		err = h.overrides.SetOverride(c, h.db, permission.ScopeCategory, categoryID, targetType, targetID,
			permission.Permission(req.Allow), permission.Permission(req.Deny))
	} else {
		err = h.overrides.DeleteOverride(c, h.db, permission.ScopeCategory, categoryID, targetType, targetID)
	}
	if err != nil {
		if errors.Is(err, permission.ErrOverrideNotFound) {
			return httputil.Fail(c, fiber.StatusNotFound, wire.OverrideNotFound, "Override not found")
		}
		h.log.Error().Err(err).Str("handler", "category").Msg("write override failed")
		return internalError(c)
	}

	h.invalidate.All()
	h.dispatcher.ToServer(wire.EventCategoryUpdate, cat.ToModel())
	return httputil.Success(c, cat.ToModel())
}
