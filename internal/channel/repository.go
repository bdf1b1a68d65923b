package channel

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

// selectColumns lists the columns returned by queries that produce a
// *Channel. Every method that scans into a Channel must select these columns
// in this exact order. See scanChannel.
const selectColumns = "id, category_id, name, type, topic, position, slowmode_seconds, nsfw, created_at"

// SQLRepository implements Repository on the shared store handle.
type SQLRepository struct {
	db       *store.DB
	serverID uuid.UUID
	log      zerolog.Logger
}

// NewSQLRepository creates a new SQL-backed channel repository.
func NewSQLRepository(db *store.DB, serverID uuid.UUID, logger zerolog.Logger) *SQLRepository {
	return &SQLRepository{db: db, serverID: serverID, log: logger}
}

// List returns all channels ordered by position.
func (r *SQLRepository) List(ctx context.Context) ([]Channel, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+selectColumns+" FROM channels ORDER BY position, id")
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer rows.Close()

	var channels []Channel
	for rows.Next() {
		ch, err := scanChannel(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		channels = append(channels, *ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channels: %w", err)
	}
	return channels, nil
}

// GetByID returns the channel matching the given ID.
func (r *SQLRepository) GetByID(ctx context.Context, id uuid.UUID) (*Channel, error) {
	ch, err := scanChannel(r.db.QueryRowContext(ctx,
		"SELECT "+selectColumns+" FROM channels WHERE id = ?", id).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query channel by id: %w", err)
	}
	return ch, nil
}

// Create inserts a new channel inside a transaction that enforces the
// maximum count, validates the category reference, and auto-assigns the next
// position.
func (r *SQLRepository) Create(ctx context.Context, params CreateParams) (*Channel, error) {
	id := store.NewID()
	err := r.db.WithTx(ctx, func(q store.Querier) error {
		var count int
		if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM channels").Scan(&count); err != nil {
			return fmt.Errorf("count channels: %w", err)
		}
		if count >= MaxChannels {
			return ErrMaxChannelsReached
		}

		if params.CategoryID != nil {
			var exists bool
			err := q.QueryRowContext(ctx,
				"SELECT EXISTS(SELECT 1 FROM categories WHERE id = ?)", *params.CategoryID).Scan(&exists)
			if err != nil {
				return fmt.Errorf("check category exists: %w", err)
			}
			if !exists {
				return ErrCategoryNotFound
			}
		}

		_, err := q.ExecContext(ctx,
			`INSERT INTO channels (id, server_id, category_id, name, type, topic, slowmode_seconds, nsfw, position, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM channels), ?)`,
			id, r.serverID, params.CategoryID, params.Name, params.Type,
			params.Topic, params.SlowmodeSeconds, params.NSFW, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("insert channel: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// Update applies the non-nil fields in params to the channel row and returns
// the updated channel.
func (r *SQLRepository) Update(ctx context.Context, id uuid.UUID, params UpdateParams) (*Channel, error) {
	var (
		setClauses []string
		args       []any
	)
	if params.Name != nil {
		setClauses = append(setClauses, "name = ?")
		args = append(args, *params.Name)
	}
	if params.SetCategoryNull {
		setClauses = append(setClauses, "category_id = NULL")
	} else if params.CategoryID != nil {
		var exists bool
		err := r.db.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM categories WHERE id = ?)", *params.CategoryID).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("check category exists: %w", err)
		}
		if !exists {
			return nil, ErrCategoryNotFound
		}
		setClauses = append(setClauses, "category_id = ?")
		args = append(args, *params.CategoryID)
	}
	if params.Topic != nil {
		setClauses = append(setClauses, "topic = ?")
		args = append(args, *params.Topic)
	}
	if params.Position != nil {
		setClauses = append(setClauses, "position = ?")
		args = append(args, *params.Position)
	}
	if params.SlowmodeSeconds != nil {
		setClauses = append(setClauses, "slowmode_seconds = ?")
		args = append(args, *params.SlowmodeSeconds)
	}
	if params.NSFW != nil {
		setClauses = append(setClauses, "nsfw = ?")
		args = append(args, *params.NSFW)
	}
	if len(setClauses) == 0 {
		return r.GetByID(ctx, id)
	}

	args = append(args, id)
	res, err := r.db.ExecContext(ctx,
		"UPDATE channels SET "+strings.Join(setClauses, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("update channel: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

// Delete removes the channel. Messages, overrides and read states cascade
// via foreign keys.
func (r *SQLRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM channels WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Reorder writes the given positions in one transaction, optionally moving
// channels between categories. Unknown channel IDs abort the whole batch.
func (r *SQLRepository) Reorder(ctx context.Context, positions []PositionUpdate) error {
	if len(positions) == 0 {
		return nil
	}
	return r.db.WithTx(ctx, func(q store.Querier) error {
		for _, p := range positions {
			var (
				res sql.Result
				err error
			)
			if p.CategoryID != nil {
				res, err = q.ExecContext(ctx,
					"UPDATE channels SET position = ?, category_id = ? WHERE id = ?",
					p.Position, *p.CategoryID, p.ID)
			} else {
				res, err = q.ExecContext(ctx,
					"UPDATE channels SET position = ? WHERE id = ?", p.Position, p.ID)
			}
			if err != nil {
				return fmt.Errorf("reorder channel %s: %w", p.ID, err)
			}
			if n, err := res.RowsAffected(); err == nil && n == 0 {
				return ErrNotFound
			}
		}
		return nil
	})
}

// scanChannel scans a single row into a *Channel. The row must contain the
// columns listed in selectColumns.
func scanChannel(scan func(...any) error) (*Channel, error) {
	var (
		ch         Channel
		categoryID uuid.NullUUID
	)
	err := scan(
		&ch.ID, &categoryID, &ch.Name, &ch.Type, &ch.Topic,
		&ch.Position, &ch.SlowmodeSeconds, &ch.NSFW, &ch.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if categoryID.Valid {
		ch.CategoryID = &categoryID.UUID
	}
	return &ch, nil
}
