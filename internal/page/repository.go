package page

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ecto-chat/ecto-server/internal/store"
)

// SQLRepository implements Repository on the shared store handle.
type SQLRepository struct {
	db  *store.DB
	log zerolog.Logger
}

// NewSQLRepository creates a new SQL-backed page repository.
func NewSQLRepository(db *store.DB, logger zerolog.Logger) *SQLRepository {
	return &SQLRepository{db: db, log: logger}
}

// Get returns the page for a channel, or an empty version-zero page when no
// row exists yet.
func (r *SQLRepository) Get(ctx context.Context, channelID uuid.UUID) (*Page, error) {
	p, err := r.get(ctx, r.db, channelID)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *SQLRepository) get(ctx context.Context, q store.Querier, channelID uuid.UUID) (*Page, error) {
	var (
		p        Page
		editedBy uuid.NullUUID
		editedAt sql.NullTime
	)
	err := q.QueryRowContext(ctx,
		`SELECT channel_id, content, banner_url, version, edited_by, edited_at
		 FROM page_contents WHERE channel_id = ?`, channelID).
		Scan(&p.ChannelID, &p.Content, &p.BannerURL, &p.Version, &editedBy, &editedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &Page{ChannelID: channelID}, nil
		}
		return nil, fmt.Errorf("query page: %w", err)
	}
	if editedBy.Valid {
		p.EditedBy = &editedBy.UUID
	}
	if editedAt.Valid {
		t := editedAt.Time
		p.EditedAt = &t
	}
	return &p, nil
}

// Update applies the optimistic-concurrency write in one transaction: check
// the version, snapshot the pre-update state as a revision, then bump. A
// first edit (version zero, no row) inserts the row and skips the snapshot.
func (r *SQLRepository) Update(ctx context.Context, channelID uuid.UUID, params UpdateParams) (*Page, error) {
	now := time.Now().UTC()
	err := r.db.WithTx(ctx, func(q store.Querier) error {
		current, err := r.get(ctx, q, channelID)
		if err != nil {
			return err
		}
		if current.Version != params.Version {
			return ErrVersionConflict
		}

		banner := current.BannerURL
		if params.BannerURL != nil {
			banner = *params.BannerURL
		}

		// Snapshot the pre-update state. The first edit snapshots the empty
		// version-zero page so the revision chain has no gaps.
		_, err = q.ExecContext(ctx,
			`INSERT INTO page_revisions (id, channel_id, content, version, edited_by, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			store.NewID(), channelID, current.Content, current.Version, params.EditorID, now)
		if err != nil {
			return fmt.Errorf("insert page revision: %w", err)
		}

		if current.EditedAt == nil && current.Version == 0 {
			_, err := q.ExecContext(ctx,
				`INSERT INTO page_contents (channel_id, content, banner_url, version, edited_by, edited_at)
				 VALUES (?, ?, ?, 1, ?, ?)
				 ON CONFLICT (channel_id) DO UPDATE SET
				     content    = excluded.content,
				     banner_url = excluded.banner_url,
				     version    = 1,
				     edited_by  = excluded.edited_by,
				     edited_at  = excluded.edited_at
				 WHERE page_contents.version = 0`,
				channelID, params.Content, banner, params.EditorID, now)
			if err != nil {
				return fmt.Errorf("insert page: %w", err)
			}
			return nil
		}

		res, err := q.ExecContext(ctx,
			`UPDATE page_contents
			 SET content = ?, banner_url = ?, version = version + 1, edited_by = ?, edited_at = ?
			 WHERE channel_id = ? AND version = ?`,
			params.Content, banner, params.EditorID, now, channelID, params.Version)
		if err != nil {
			return fmt.Errorf("update page: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			// The version moved between our read and write.
			return ErrVersionConflict
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, channelID)
}

// ListRevisions returns a channel's snapshots, newest version first.
func (r *SQLRepository) ListRevisions(ctx context.Context, channelID uuid.UUID, limit int) ([]Revision, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, channel_id, content, version, edited_by, created_at
		 FROM page_revisions WHERE channel_id = ?
		 ORDER BY version DESC LIMIT ?`, channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("query page revisions: %w", err)
	}
	defer rows.Close()

	var revisions []Revision
	for rows.Next() {
		var rev Revision
		if err := rows.Scan(&rev.ID, &rev.ChannelID, &rev.Content, &rev.Version, &rev.EditedBy, &rev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan page revision: %w", err)
		}
		revisions = append(revisions, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate page revisions: %w", err)
	}
	return revisions, nil
}

// GetRevision returns a single snapshot.
func (r *SQLRepository) GetRevision(ctx context.Context, id uuid.UUID) (*Revision, error) {
	var rev Revision
	err := r.db.QueryRowContext(ctx,
		`SELECT id, channel_id, content, version, edited_by, created_at
		 FROM page_revisions WHERE id = ?`, id).
		Scan(&rev.ID, &rev.ChannelID, &rev.Content, &rev.Version, &rev.EditedBy, &rev.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRevisionNotFound
		}
		return nil, fmt.Errorf("query page revision: %w", err)
	}
	return &rev, nil
}
