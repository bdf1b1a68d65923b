// Package role manages the server's named permission bundles. Hierarchy runs
// on position: a higher position outranks a lower one, and the default role
// sits at the bottom where every member inherits it.
package role

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ecto-chat/ecto-server/internal/permission"
	"github.com/ecto-chat/ecto-server/internal/wire"
)

// Sentinel errors for the role package.
var (
	ErrNotFound           = errors.New("role not found")
	ErrNameLength         = errors.New("role name must be between 1 and 100 characters")
	ErrInvalidPosition    = errors.New("position must be non-negative")
	ErrInvalidPermissions = errors.New("permissions bitfield contains invalid bits")
	ErrInvalidColor       = errors.New("color must be a #rrggbb hex value")
	ErrMaxRolesReached    = errors.New("maximum number of roles reached")
	ErrDefaultImmutable   = errors.New("the default role cannot be deleted")
)

// MaxRoles caps how many roles a server can hold.
const MaxRoles = 250

var colorRegex = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Role holds the fields read from the database.
type Role struct {
	ID          uuid.UUID
	Name        string
	Color       string
	Permissions uint64
	Position    int
	IsDefault   bool
	CreatedAt   time.Time
}

// ToModel converts the internal role struct to the wire response type.
func (r *Role) ToModel() wire.Role {
	return wire.Role{
		ID:          r.ID,
		Name:        r.Name,
		Color:       r.Color,
		Permissions: r.Permissions,
		Position:    r.Position,
		IsDefault:   r.IsDefault,
	}
}

// CreateParams groups the inputs for creating a new role.
type CreateParams struct {
	Name        string
	Color       string
	Permissions uint64
}

// UpdateParams groups the optional fields for updating a role. Nil pointer
// fields indicate "no change" (PATCH semantics).
type UpdateParams struct {
	Name        *string
	Color       *string
	Permissions *uint64
	Position    *int
}

// PositionUpdate pairs a role with its new position for reorder operations.
type PositionUpdate struct {
	ID       uuid.UUID `json:"id"`
	Position int       `json:"position"`
}

// ValidateNameRequired validates and trims a name that must be present. It
// returns the trimmed result on success.
func ValidateNameRequired(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if utf8.RuneCountInString(trimmed) < 1 || utf8.RuneCountInString(trimmed) > 100 {
		return "", ErrNameLength
	}
	return trimmed, nil
}

// ValidateName checks that a non-nil name is between 1 and 100 runes after
// trimming whitespace. A nil pointer means "no change". On success the
// pointed-to value is replaced with the trimmed result.
func ValidateName(name *string) error {
	if name == nil {
		return nil
	}
	trimmed, err := ValidateNameRequired(*name)
	if err != nil {
		return err
	}
	*name = trimmed
	return nil
}

// ValidatePosition checks that a non-nil position is non-negative.
func ValidatePosition(pos *int) error {
	if pos == nil {
		return nil
	}
	if *pos < 0 {
		return ErrInvalidPosition
	}
	return nil
}

// ValidatePermissions checks that a non-nil permissions bitfield contains
// only defined permission bits.
func ValidatePermissions(perms *uint64) error {
	if perms == nil {
		return nil
	}
	if *perms&^uint64(permission.AllPermissions) != 0 {
		return ErrInvalidPermissions
	}
	return nil
}

// ValidateColor checks that a non-nil color is empty (no color) or a #rrggbb
// hex value.
func ValidateColor(color *string) error {
	if color == nil {
		return nil
	}
	if *color != "" && !colorRegex.MatchString(*color) {
		return ErrInvalidColor
	}
	return nil
}

// Repository defines the data-access contract for role operations.
type Repository interface {
	List(ctx context.Context) ([]Role, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Role, error)
	GetDefault(ctx context.Context) (*Role, error)
	Create(ctx context.Context, params CreateParams) (*Role, error)
	Update(ctx context.Context, id uuid.UUID, params UpdateParams) (*Role, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Reorder(ctx context.Context, positions []PositionUpdate) error
	// HighestPosition returns the highest position among the user's assigned
	// roles, or -1 when the user holds none.
	HighestPosition(ctx context.Context, userID uuid.UUID) (int, error)
}
