package category

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ecto-chat/ecto-server/internal/store"
)

const selectColumns = "id, name, position, created_at"

// SQLRepository implements Repository on the shared store handle.
type SQLRepository struct {
	db       *store.DB
	serverID uuid.UUID
	log      zerolog.Logger
}

// NewSQLRepository creates a new SQL-backed category repository.
func NewSQLRepository(db *store.DB, serverID uuid.UUID, logger zerolog.Logger) *SQLRepository {
	return &SQLRepository{db: db, serverID: serverID, log: logger}
}

// List returns all categories ordered by position.
func (r *SQLRepository) List(ctx context.Context) ([]Category, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+selectColumns+" FROM categories ORDER BY position, id")
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Position, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return categories, nil
}

// GetByID returns the category matching the given ID.
func (r *SQLRepository) GetByID(ctx context.Context, id uuid.UUID) (*Category, error) {
	var c Category
	err := r.db.QueryRowContext(ctx,
		"SELECT "+selectColumns+" FROM categories WHERE id = ?", id).
		Scan(&c.ID, &c.Name, &c.Position, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query category by id: %w", err)
	}
	return &c, nil
}

// Create inserts a new category inside a transaction that enforces the
// maximum count and auto-assigns the next position.
func (r *SQLRepository) Create(ctx context.Context, params CreateParams) (*Category, error) {
	id := store.NewID()
	err := r.db.WithTx(ctx, func(q store.Querier) error {
		var count int
		if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM categories").Scan(&count); err != nil {
			return fmt.Errorf("count categories: %w", err)
		}
		if count >= MaxCategories {
			return ErrMaxCategoriesReached
		}

		_, err := q.ExecContext(ctx,
			`INSERT INTO categories (id, server_id, name, position, created_at)
			 VALUES (?, ?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM categories), ?)`,
			id, r.serverID, params.Name, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("insert category: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// Update applies the non-nil fields in params to the category row and returns
// the updated category.
func (r *SQLRepository) Update(ctx context.Context, id uuid.UUID, params UpdateParams) (*Category, error) {
	var (
		setClauses []string
		args       []any
	)
	if params.Name != nil {
		setClauses = append(setClauses, "name = ?")
		args = append(args, *params.Name)
	}
	if params.Position != nil {
		setClauses = append(setClauses, "position = ?")
		args = append(args, *params.Position)
	}
	if len(setClauses) == 0 {
		return r.GetByID(ctx, id)
	}

	args = append(args, id)
	res, err := r.db.ExecContext(ctx,
		"UPDATE categories SET "+strings.Join(setClauses, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("update category: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

// Delete removes the category. Channels under it fall back to uncategorized
// via the ON DELETE SET NULL constraint.
func (r *SQLRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM categories WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Reorder writes the given positions in one transaction. Unknown category IDs
// abort the whole batch.
func (r *SQLRepository) Reorder(ctx context.Context, positions []PositionUpdate) error {
	if len(positions) == 0 {
		return nil
	}
	return r.db.WithTx(ctx, func(q store.Querier) error {
		for _, p := range positions {
			res, err := q.ExecContext(ctx,
				"UPDATE categories SET position = ? WHERE id = ?", p.Position, p.ID)
			if err != nil {
				return fmt.Errorf("reorder category %s: %w", p.ID, err)
			}
			if n, err := res.RowsAffected(); err == nil && n == 0 {
				return ErrNotFound
			}
		}
		return nil
	})
}
