// Package category manages the groupings channels are organized under.
package category

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ecto-chat/ecto-server/internal/wire"
)

// Sentinel errors for the category package.
var (
	ErrNotFound             = errors.New("category not found")
	ErrNameLength           = errors.New("category name must be between 1 and 100 characters")
	ErrInvalidPosition      = errors.New("position must be non-negative")
	ErrMaxCategoriesReached = errors.New("maximum number of categories reached")
)

// MaxCategories caps how many categories a server can hold.
const MaxCategories = 100

// Category holds the fields read from the database.
type Category struct {
	ID        uuid.UUID
	Name      string
	Position  int
	CreatedAt time.Time
}

// ToModel converts the internal category to the wire response type.
func (c *Category) ToModel() wire.Category {
	return wire.Category{
		ID:       c.ID,
		Name:     c.Name,
		Position: c.Position,
	}
}

// CreateParams groups the inputs for creating a new category.
type CreateParams struct {
	Name string
}

// UpdateParams groups the optional fields for updating a category. Nil
// pointer fields indicate "no change" (PATCH semantics).
type UpdateParams struct {
	Name     *string
	Position *int
}

// PositionUpdate pairs a category with its new position for reorder
// operations.
type PositionUpdate struct {
	ID       uuid.UUID `json:"id"`
	Position int       `json:"position"`
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

// ValidateNameRequired validates and trims a name that must be present. It
// returns the trimmed result on success.
func ValidateNameRequired(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if utf8.RuneCountInString(trimmed) < 1 || utf8.RuneCountInString(trimmed) > 100 {
		return "", ErrNameLength
	}
	return trimmed, nil
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

// Repository defines the data-access contract for category operations.
type Repository interface {
	List(ctx context.Context) ([]Category, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Category, error)
	Create(ctx context.Context, params CreateParams) (*Category, error)
	Update(ctx context.Context, id uuid.UUID, params UpdateParams) (*Category, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Reorder(ctx context.Context, positions []PositionUpdate) error
}
