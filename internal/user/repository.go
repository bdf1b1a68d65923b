package user

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
	"github.com/ecto-chat/ecto-server/internal/wire"
)

// selectLocalColumns lists the columns returned by queries that produce a
// *LocalUser. Every method that scans into a LocalUser must select these
// columns in this exact order.
const selectLocalColumns = `id, username, display_name, avatar_url, created_at`

// SQLRepository implements Repository on the shared store handle. It works
// unchanged on both database dialects.
type SQLRepository struct {
	db  *store.DB
	log zerolog.Logger
}

// NewSQLRepository creates a new SQL-backed user repository.
func NewSQLRepository(db *store.DB, logger zerolog.Logger) *SQLRepository {
	return &SQLRepository{db: db, log: logger}
}

func scanLocalUser(row *sql.Row) (*LocalUser, error) {
	var u LocalUser
	err := row.Scan(&u.ID, &u.Username, &u.DisplayName, &u.AvatarURL, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateLocal inserts a new local account and returns its id.
func (r *SQLRepository) CreateLocal(ctx context.Context, params CreateLocalParams) (uuid.UUID, error) {
	id := store.NewID()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO local_users (id, username, password_hash, display_name, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		id, params.Username, params.PasswordHash, params.DisplayName, time.Now().UTC(),
	)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return uuid.Nil, ErrUsernameTaken
		}
		return uuid.Nil, fmt.Errorf("insert local user: %w", err)
	}
	return id, nil
}

// GetLocalByID returns the local account matching the given id.
func (r *SQLRepository) GetLocalByID(ctx context.Context, id uuid.UUID) (*LocalUser, error) {
	u, err := scanLocalUser(r.db.QueryRowContext(ctx,
		`SELECT `+selectLocalColumns+` FROM local_users WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query local user by id: %w", err)
	}
	return u, nil
}

// GetLocalByUsername returns the local account with credentials matching the
// given username. This is the only method that returns the password hash,
// since it serves the login path.
func (r *SQLRepository) GetLocalByUsername(ctx context.Context, username string) (*LocalCredentials, error) {
	var c LocalCredentials
	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, display_name, avatar_url, created_at
		 FROM local_users WHERE username = ?`, username,
	).Scan(&c.ID, &c.Username, &c.PasswordHash, &c.DisplayName, &c.AvatarURL, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query local user by username: %w", err)
	}
	return &c, nil
}

// UpdateLocalPasswordHash replaces the stored password hash for a local
// account.
func (r *SQLRepository) UpdateLocalPasswordHash(ctx context.Context, userID uuid.UUID, hash string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE local_users SET password_hash = ? WHERE id = ?`, hash, userID)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateLocalProfile applies the non-nil fields and returns the updated
// account.
func (r *SQLRepository) UpdateLocalProfile(ctx context.Context, userID uuid.UUID, params UpdateLocalProfileParams) (*LocalUser, error) {
	sets := make([]string, 0, 2)
	args := make([]any, 0, 3)
	if params.DisplayName != nil {
		sets = append(sets, "display_name = ?")
		args = append(args, *params.DisplayName)
	}
	if params.AvatarURL != nil {
		sets = append(sets, "avatar_url = ?")
		args = append(args, *params.AvatarURL)
	}
	if len(sets) == 0 {
		return r.GetLocalByID(ctx, userID)
	}
	args = append(args, userID)

	res, err := r.db.ExecContext(ctx,
		`UPDATE local_users SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("update local profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return r.GetLocalByID(ctx, userID)
}

// UpsertCachedProfile inserts or refreshes the cached copy of a centrally
// verified identity.
func (r *SQLRepository) UpsertCachedProfile(ctx context.Context, profile CachedProfile) error {
	fetchedAt := profile.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO cached_profiles (user_id, username, discriminator, display_name, avatar_url, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
		   username = excluded.username,
		   discriminator = excluded.discriminator,
		   display_name = excluded.display_name,
		   avatar_url = excluded.avatar_url,
		   fetched_at = excluded.fetched_at`,
		profile.UserID, profile.Username, profile.Discriminator,
		profile.DisplayName, profile.AvatarURL, fetchedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert cached profile: %w", err)
	}
	return nil
}

// GetProfile resolves a single user id to a profile, preferring the local
// account when one exists.
func (r *SQLRepository) GetProfile(ctx context.Context, id uuid.UUID) (*wire.Profile, error) {
	profiles, err := r.GetProfiles(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	p, ok := profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

// GetProfiles resolves a set of user ids from both identity stores in one
// round trip. Unknown ids are simply absent from the result; callers decide
// whether that is an error.
func (r *SQLRepository) GetProfiles(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]wire.Profile, error) {
	profiles := make(map[uuid.UUID]wire.Profile, len(ids))
	if len(ids) == 0 {
		return profiles, nil
	}

	in := placeholders(len(ids))
	args := make([]any, 0, 2*len(ids))
	for range 2 {
		for _, id := range ids {
			args = append(args, id)
		}
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, username, '' AS discriminator, display_name, avatar_url, 1 AS is_local
		   FROM local_users WHERE id IN (`+in+`)
		 UNION ALL
		 SELECT user_id, username, discriminator, display_name, avatar_url, 0 AS is_local
		   FROM cached_profiles WHERE user_id IN (`+in+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p wire.Profile
		var isLocal int
		if err := rows.Scan(&p.ID, &p.Username, &p.Discriminator, &p.DisplayName, &p.AvatarURL, &isLocal); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		// A local account shadows any stale cached row with the same id.
		if _, ok := profiles[p.ID]; !ok || isLocal == 1 {
			profiles[p.ID] = p
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return profiles, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
