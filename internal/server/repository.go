package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ecto-chat/ecto-server/internal/store"
)

const selectColumns = "id, name, description, icon_url, banner_url, admin_user_id, setup_done, created_at"

// SQLRepository implements Repository on the shared store handle.
type SQLRepository struct {
	db  *store.DB
	log zerolog.Logger
}

// NewSQLRepository creates a new SQL-backed server repository.
func NewSQLRepository(db *store.DB, logger zerolog.Logger) *SQLRepository {
	return &SQLRepository{db: db, log: logger}
}

// Get returns the tenant row. The process serves exactly one server, so no
// key is needed.
func (r *SQLRepository) Get(ctx context.Context) (*Server, error) {
	s, err := scanServer(r.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM servers LIMIT 1`))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query server: %w", err)
	}
	return s, nil
}

// Update applies the non-nil fields in params and returns the updated row.
// Nil pointer fields are left unchanged via COALESCE.
func (r *SQLRepository) Update(ctx context.Context, params UpdateParams) (*Server, error) {
	// No fields to update; return the current row without issuing an UPDATE.
	if params.Name == nil && params.Description == nil && params.IconURL == nil && params.BannerURL == nil {
		return r.Get(ctx)
	}

	_, err := r.db.ExecContext(ctx,
		`UPDATE servers SET
		   name        = COALESCE(?, name),
		   description = COALESCE(?, description),
		   icon_url    = COALESCE(?, icon_url),
		   banner_url  = COALESCE(?, banner_url)`,
		params.Name, params.Description, params.IconURL, params.BannerURL,
	)
	if err != nil {
		return nil, fmt.Errorf("update server: %w", err)
	}
	return r.Get(ctx)
}

// SetOwner assigns the owner within the caller's transaction.
func (r *SQLRepository) SetOwner(ctx context.Context, q store.Querier, userID uuid.UUID) error {
	res, err := q.ExecContext(ctx, `UPDATE servers SET admin_user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("set server owner: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanServer(row *sql.Row) (*Server, error) {
	var (
		s       Server
		adminID uuid.NullUUID
	)
	err := row.Scan(
		&s.ID, &s.Name, &s.Description, &s.IconURL, &s.BannerURL,
		&adminID, &s.SetupDone, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if adminID.Valid {
		s.AdminUserID = &adminID.UUID
	}
	return &s, nil
}
