package api

import (
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ecto-chat/ecto-server/internal/auditlog"
	"github.com/ecto-chat/ecto-server/internal/httputil"
	"github.com/ecto-chat/ecto-server/internal/wire"
)

// AuditLogHandler serves the moderation audit log. Requires VIEW_AUDIT_LOG.
type AuditLogHandler struct {
	audit auditlog.Repository
	log   zerolog.Logger
}

// NewAuditLogHandler creates a new audit log handler.
func NewAuditLogHandler(audit auditlog.Repository, logger zerolog.Logger) *AuditLogHandler {
	return &AuditLogHandler{audit: audit, log: logger}
}

// List handles GET /api/v1/auditlog. Filterable by actor_id and action,
// paginated with a before cursor.
func (h *AuditLogHandler) List(c fiber.Ctx) error {
	opts := auditlog.ListOptions{
		Action: c.Query("action"),
		Limit:  fiber.Query[int](c, "limit", 50),
	}
	if raw := c.Query("actor_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid actor_id format")
		}
		opts.ActorID = &id
	}
	if raw := c.Query("before"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid before cursor")
		}
		opts.Before = &id
	}

	entries, err := h.audit.List(c, opts)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "auditlog").Msg("list audit entries failed")
		return internalError(c)
	}

	models := make([]wire.AuditEntry, len(entries))
	for i := range entries {
		models[i] = entries[i].ToModel()
	}
	return httputil.Success(c, models)
}
