// Package server owns the single tenant row: identity fields shown on the
// invite screen, the owner reference, and the setup flag flipped by first-run
// initialisation.
package server

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ecto-chat/ecto-server/internal/store"
	"github.com/ecto-chat/ecto-server/internal/wire"
)

// Sentinel errors for the server package.
var (
	ErrNotFound          = errors.New("server not found")
	ErrNameLength        = errors.New("name must be between 1 and 100 characters")
	ErrDescriptionLength = errors.New("description must be 1024 characters or fewer")
)

// Server holds the tenant row read from the database.
type Server struct {
	ID          uuid.UUID
	Name        string
	Description string
	IconURL     string
	BannerURL   string
	AdminUserID *uuid.UUID
	SetupDone   bool
	CreatedAt   time.Time
}

// ToModel converts the internal struct to the wire response type. Handlers
// and the gateway ready snapshot both call this rather than maintaining their
// own copies.
func (s *Server) ToModel() wire.Server {
	return wire.Server{
		ID:          s.ID,
		Name:        s.Name,
		Description: s.Description,
		IconURL:     s.IconURL,
		BannerURL:   s.BannerURL,
		AdminUserID: s.AdminUserID,
		SetupDone:   s.SetupDone,
		CreatedAt:   s.CreatedAt,
	}
}

// UpdateParams groups the optional fields for updating the server row.
type UpdateParams struct {
	Name        *string
	Description *string
	IconURL     *string
	BannerURL   *string
}

// ValidateName checks that a non-nil name is between 1 and 100 characters
// (runes) after trimming whitespace. A nil pointer means "no change"; a
// non-nil pointer is always validated. On success the pointed-to value is
// replaced with the trimmed result.
func ValidateName(name *string) error {
	if name == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*name)
	if utf8.RuneCountInString(trimmed) < 1 || utf8.RuneCountInString(trimmed) > 100 {
		return ErrNameLength
	}
	*name = trimmed
	return nil
}

// ValidateDescription checks that a non-nil description is 1024 characters
// (runes) or fewer. A pointer to an empty string means "clear the
// description."
func ValidateDescription(desc *string) error {
	if desc == nil {
		return nil
	}
	if utf8.RuneCountInString(*desc) > 1024 {
		return ErrDescriptionLength
	}
	return nil
}

// Repository defines the data-access contract for the server row.
type Repository interface {
	Get(ctx context.Context) (*Server, error)
	Update(ctx context.Context, params UpdateParams) (*Server, error)
	// SetOwner assigns the owner inside a caller-managed transaction; the
	// first member to join is promoted this way.
	SetOwner(ctx context.Context, q store.Querier, userID uuid.UUID) error
}
