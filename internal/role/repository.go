package role

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

// selectColumns lists the columns returned by queries that produce a *Role.
// Every method that scans into a Role must select these columns in this exact
// order. See scanRole.
const selectColumns = "id, name, color, permissions, position, is_default, created_at"

// SQLRepository implements Repository on the shared store handle.
type SQLRepository struct {
	db       *store.DB
	serverID uuid.UUID
	log      zerolog.Logger
}

// NewSQLRepository creates a new SQL-backed role repository.
func NewSQLRepository(db *store.DB, serverID uuid.UUID, logger zerolog.Logger) *SQLRepository {
	return &SQLRepository{db: db, serverID: serverID, log: logger}
}

// List returns all roles ordered by position descending, so the highest rank
// comes first.
func (r *SQLRepository) List(ctx context.Context) ([]Role, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+selectColumns+" FROM roles ORDER BY position DESC, id")
	if err != nil {
		return nil, fmt.Errorf("query roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows.Scan)
		if err != nil {
			return nil, err
		}
		roles = append(roles, *role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}
	return roles, nil
}

// GetByID returns the role matching the given ID.
func (r *SQLRepository) GetByID(ctx context.Context, id uuid.UUID) (*Role, error) {
	role, err := scanRole(r.db.QueryRowContext(ctx,
		"SELECT "+selectColumns+" FROM roles WHERE id = ?", id).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query role by id: %w", err)
	}
	return role, nil
}

// GetDefault returns the server's default role.
func (r *SQLRepository) GetDefault(ctx context.Context) (*Role, error) {
	role, err := scanRole(r.db.QueryRowContext(ctx,
		"SELECT "+selectColumns+" FROM roles WHERE is_default LIMIT 1").Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query default role: %w", err)
	}
	return role, nil
}

// Create inserts a new role inside a transaction that enforces the maximum
// count and auto-assigns the next position above the current top.
func (r *SQLRepository) Create(ctx context.Context, params CreateParams) (*Role, error) {
	id := store.NewID()
	err := r.db.WithTx(ctx, func(q store.Querier) error {
		var count int
		if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM roles").Scan(&count); err != nil {
			return fmt.Errorf("count roles: %w", err)
		}
		if count >= MaxRoles {
			return ErrMaxRolesReached
		}

		_, err := q.ExecContext(ctx,
			`INSERT INTO roles (id, server_id, name, color, permissions, position, created_at)
			 VALUES (?, ?, ?, ?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM roles), ?)`,
			id, r.serverID, params.Name, params.Color, params.Permissions, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("insert role: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// Update applies the non-nil fields in params to the role row and returns the
// updated role.
//
// Safety: the query is built dynamically, but every SET clause is a hardcoded
// string literal. All values flow through placeholder binding.
func (r *SQLRepository) Update(ctx context.Context, id uuid.UUID, params UpdateParams) (*Role, error) {
	var (
		setClauses []string
		args       []any
	)
	if params.Name != nil {
		setClauses = append(setClauses, "name = ?")
		args = append(args, *params.Name)
	}
	if params.Color != nil {
		setClauses = append(setClauses, "color = ?")
		args = append(args, *params.Color)
	}
	if params.Permissions != nil {
		setClauses = append(setClauses, "permissions = ?")
		args = append(args, *params.Permissions)
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
		"UPDATE roles SET "+strings.Join(setClauses, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("update role: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

// Delete removes the role with the given ID. The default role cannot be
// deleted.
func (r *SQLRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM roles WHERE id = ? AND NOT is_default", id)
	if err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete role rows affected: %w", err)
	}
	if n == 0 {
		// Distinguish "not found" from "default role is immutable".
		var isDefault bool
		err := r.db.QueryRowContext(ctx,
			"SELECT is_default FROM roles WHERE id = ?", id).Scan(&isDefault)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("check role existence: %w", err)
		}
		return ErrDefaultImmutable
	}
	return nil
}

// Reorder writes the given positions in one transaction. Unknown role IDs
// abort the whole batch.
func (r *SQLRepository) Reorder(ctx context.Context, positions []PositionUpdate) error {
	if len(positions) == 0 {
		return nil
	}
	return r.db.WithTx(ctx, func(q store.Querier) error {
		for _, p := range positions {
			res, err := q.ExecContext(ctx,
				"UPDATE roles SET position = ? WHERE id = ?", p.Position, p.ID)
			if err != nil {
				return fmt.Errorf("reorder role %s: %w", p.ID, err)
			}
			if n, err := res.RowsAffected(); err == nil && n == 0 {
				return ErrNotFound
			}
		}
		return nil
	})
}

// HighestPosition returns the highest position among the user's assigned
// roles (higher position = higher rank). Every member holds the default role,
// so members resolve at least its position; -1 means the user holds no roles
// at all.
func (r *SQLRepository) HighestPosition(ctx context.Context, userID uuid.UUID) (int, error) {
	var pos *int
	err := r.db.QueryRowContext(ctx,
		`SELECT MAX(r.position) FROM roles r
		 JOIN member_roles mr ON r.id = mr.role_id
		 WHERE mr.user_id = ?`, userID).Scan(&pos)
	if err != nil {
		return 0, fmt.Errorf("query highest role position: %w", err)
	}
	if pos == nil {
		return -1, nil
	}
	return *pos, nil
}

// scanRole scans a single row into a *Role. The row must contain the columns
// listed in selectColumns.
func scanRole(scan func(...any) error) (*Role, error) {
	var role Role
	err := scan(
		&role.ID, &role.Name, &role.Color, &role.Permissions,
		&role.Position, &role.IsDefault, &role.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &role, nil
}
