package member

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

// SQLRepository implements Repository on the shared store handle. The server
// ID is fixed at construction because the process serves exactly one server;
// reads skip the filter, writes need it for the composite keys.
type SQLRepository struct {
	db       *store.DB
	serverID uuid.UUID
	log      zerolog.Logger
}

// NewSQLRepository creates a new SQL-backed member repository.
func NewSQLRepository(db *store.DB, serverID uuid.UUID, logger zerolog.Logger) *SQLRepository {
	return &SQLRepository{db: db, serverID: serverID, log: logger}
}

// memberQuery is the shared SELECT used by List and Get. The member's
// identity type routes the profile join: local members resolve against
// local_users, global members against cached_profiles.
const memberQuery = `SELECT m.user_id, m.identity_type, m.nickname, m.allow_dms, m.token_version, m.joined_at,
       COALESCE(lu.username, cp.username, '')         AS username,
       COALESCE(cp.discriminator, '')                 AS discriminator,
       COALESCE(lu.display_name, cp.display_name, '') AS display_name,
       COALESCE(lu.avatar_url, cp.avatar_url, '')     AS avatar_url
FROM members m
LEFT JOIN local_users lu ON lu.id = m.user_id AND m.identity_type = '` + wire.IdentityLocal + `'
LEFT JOIN cached_profiles cp ON cp.user_id = m.user_id AND m.identity_type = '` + wire.IdentityGlobal + `'`

// List returns members ordered by (joined_at, user_id) using keyset
// pagination. The cursor is the user_id from the last item on the previous
// page.
func (r *SQLRepository) List(ctx context.Context, after *uuid.UUID, limit int) ([]MemberWithProfile, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if after == nil {
		rows, err = r.db.QueryContext(ctx, memberQuery+`
ORDER BY m.joined_at, m.user_id
LIMIT ?`, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, memberQuery+`
WHERE (m.joined_at, m.user_id) > (
    SELECT m2.joined_at, m2.user_id FROM members m2 WHERE m2.user_id = ?
)
ORDER BY m.joined_at, m.user_id
LIMIT ?`, *after, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var members []MemberWithProfile
	for rows.Next() {
		var m MemberWithProfile
		if err := scanMemberWithProfile(rows.Scan, &m); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	if err := r.attachRoles(ctx, members); err != nil {
		return nil, err
	}
	return members, nil
}

// Get returns a single member with profile and role assignments.
func (r *SQLRepository) Get(ctx context.Context, userID uuid.UUID) (*MemberWithProfile, error) {
	row := r.db.QueryRowContext(ctx, memberQuery+`
WHERE m.user_id = ?`, userID)

	var m MemberWithProfile
	if err := scanMemberWithProfile(row.Scan, &m); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query member: %w", err)
	}
	members := []MemberWithProfile{m}
	if err := r.attachRoles(ctx, members); err != nil {
		return nil, err
	}
	return &members[0], nil
}

// GetRow returns the raw membership row without profile or roles.
func (r *SQLRepository) GetRow(ctx context.Context, userID uuid.UUID) (*Member, error) {
	var m Member
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, identity_type, nickname, allow_dms, token_version, joined_at
		 FROM members WHERE user_id = ?`, userID).
		Scan(&m.UserID, &m.IdentityType, &m.Nickname, &m.AllowDms, &m.TokenVersion, &m.JoinedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query member row: %w", err)
	}
	return &m, nil
}

// Exists reports whether the user has a membership row.
func (r *SQLRepository) Exists(ctx context.Context, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM members WHERE user_id = ?)", userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return exists, nil
}

// Count returns the number of members on the server.
func (r *SQLRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM members").Scan(&n); err != nil {
		return 0, fmt.Errorf("count members: %w", err)
	}
	return n, nil
}

// TokenVersion returns the member's current token version. A missing
// membership row is not an error: tokens of non-members skip the version
// check and fail membership later.
func (r *SQLRepository) TokenVersion(ctx context.Context, userID uuid.UUID) (int, bool, error) {
	var version int
	err := r.db.QueryRowContext(ctx,
		"SELECT token_version FROM members WHERE user_id = ?", userID).Scan(&version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("query token version: %w", err)
	}
	return version, true, nil
}

// Create inserts a membership row and assigns the default role on the
// caller's transaction. Returns ErrAlreadyMember if the user already has a
// membership record.
func (r *SQLRepository) Create(ctx context.Context, q store.Querier, params CreateParams) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO members (server_id, user_id, identity_type, nickname, joined_at)
		 VALUES (?, ?, ?, ?, ?)`,
		r.serverID, params.UserID, params.IdentityType, params.Nickname, time.Now().UTC())
	if err != nil {
		if store.IsUniqueViolation(err) {
			return ErrAlreadyMember
		}
		return fmt.Errorf("insert member: %w", err)
	}

	_, err = q.ExecContext(ctx,
		`INSERT INTO member_roles (server_id, user_id, role_id)
		 SELECT ?, ?, id FROM roles WHERE is_default`,
		r.serverID, params.UserID)
	if err != nil {
		return fmt.Errorf("assign default role: %w", err)
	}
	return nil
}

// Delete removes a membership row on the caller's transaction. The
// member_roles rows cascade automatically.
func (r *SQLRepository) Delete(ctx context.Context, q store.Querier, userID uuid.UUID) error {
	res, err := q.ExecContext(ctx, "DELETE FROM members WHERE user_id = ?", userID)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateNickname sets or clears a member's nickname and returns the updated
// profile. An empty string clears.
func (r *SQLRepository) UpdateNickname(ctx context.Context, userID uuid.UUID, nickname string) (*MemberWithProfile, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE members SET nickname = ? WHERE user_id = ?", nickname, userID)
	if err != nil {
		return nil, fmt.Errorf("update nickname: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	return r.Get(ctx, userID)
}

// SetAllowDms toggles whether other members may open DMs with this member.
func (r *SQLRepository) SetAllowDms(ctx context.Context, userID uuid.UUID, allow bool) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE members SET allow_dms = ? WHERE user_id = ?", allow, userID)
	if err != nil {
		return fmt.Errorf("update allow_dms: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// BumpTokenVersion increments the member's token version, invalidating every
// token minted with the old value.
func (r *SQLRepository) BumpTokenVersion(ctx context.Context, q store.Querier, userID uuid.UUID) error {
	res, err := q.ExecContext(ctx,
		"UPDATE members SET token_version = token_version + 1 WHERE user_id = ?", userID)
	if err != nil {
		return fmt.Errorf("bump token version: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Ban inserts a ban record on the caller's transaction. Removing the
// membership row stays with the caller so kick cleanup and the audit record
// land in the same transaction. Returns ErrAlreadyBanned if a ban already
// exists for the user.
func (r *SQLRepository) Ban(ctx context.Context, q store.Querier, params BanParams) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO bans (server_id, user_id, banned_by, reason, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		r.serverID, params.UserID, params.BannedBy, params.Reason, time.Now().UTC())
	if err != nil {
		if store.IsUniqueViolation(err) {
			return ErrAlreadyBanned
		}
		return fmt.Errorf("insert ban: %w", err)
	}
	return nil
}

// Unban removes a ban record. Returns ErrBanNotFound if no ban exists.
func (r *SQLRepository) Unban(ctx context.Context, userID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM bans WHERE user_id = ?", userID)
	if err != nil {
		return fmt.Errorf("delete ban: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrBanNotFound
	}
	return nil
}

// ListBans returns all ban records joined with the banned user's public
// profile, ordered by creation time descending. Banned users have no
// membership row, so the identity routing falls back to whichever profile
// source still has them.
func (r *SQLRepository) ListBans(ctx context.Context) ([]BanRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT b.user_id, b.banned_by, b.reason, b.created_at,
		        COALESCE(lu.username, cp.username, '')         AS username,
		        COALESCE(cp.discriminator, '')                 AS discriminator,
		        COALESCE(lu.display_name, cp.display_name, '') AS display_name,
		        COALESCE(lu.avatar_url, cp.avatar_url, '')     AS avatar_url
		 FROM bans b
		 LEFT JOIN local_users lu ON lu.id = b.user_id
		 LEFT JOIN cached_profiles cp ON cp.user_id = b.user_id
		 ORDER BY b.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query bans: %w", err)
	}
	defer rows.Close()

	var bans []BanRecord
	for rows.Next() {
		var b BanRecord
		if err := rows.Scan(&b.UserID, &b.BannedBy, &b.Reason, &b.CreatedAt,
			&b.Username, &b.Discriminator, &b.DisplayName, &b.AvatarURL); err != nil {
			return nil, fmt.Errorf("scan ban: %w", err)
		}
		bans = append(bans, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bans: %w", err)
	}
	return bans, nil
}

// IsBanned checks whether a ban record exists for the given user.
func (r *SQLRepository) IsBanned(ctx context.Context, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM bans WHERE user_id = ?)", userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check ban: %w", err)
	}
	return exists, nil
}

// ReplaceRoles replaces the member's role assignments with the given set on
// the caller's transaction. The caller is responsible for including the
// default role in the set.
func (r *SQLRepository) ReplaceRoles(ctx context.Context, q store.Querier, userID uuid.UUID, roleIDs []uuid.UUID) error {
	_, err := q.ExecContext(ctx, "DELETE FROM member_roles WHERE user_id = ?", userID)
	if err != nil {
		return fmt.Errorf("clear member roles: %w", err)
	}
	for _, roleID := range roleIDs {
		_, err := q.ExecContext(ctx,
			"INSERT INTO member_roles (server_id, user_id, role_id) VALUES (?, ?, ?)",
			r.serverID, userID, roleID)
		if err != nil {
			if store.IsUniqueViolation(err) {
				continue
			}
			return fmt.Errorf("assign role: %w", err)
		}
	}
	return nil
}

// RoleIDs returns the member's role assignments.
func (r *SQLRepository) RoleIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT role_id FROM member_roles WHERE user_id = ?", userID)
	if err != nil {
		return nil, fmt.Errorf("query member role ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan role id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate role ids: %w", err)
	}
	return ids, nil
}

// UserIDs returns every member's user id.
func (r *SQLRepository) UserIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT user_id FROM members WHERE server_id = ?", r.serverID)
	if err != nil {
		return nil, fmt.Errorf("query member ids: %w", err)
	}
	defer rows.Close()
	return collectUserIDs(rows)
}

// UserIDsWithRoles returns the distinct user ids holding any of the given
// roles. Used to expand role mentions into notification targets.
func (r *SQLRepository) UserIDsWithRoles(ctx context.Context, roleIDs []uuid.UUID) ([]uuid.UUID, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	args := make([]any, len(roleIDs))
	for i, id := range roleIDs {
		args[i] = id
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT DISTINCT user_id FROM member_roles WHERE role_id IN ("+placeholders(len(args))+")",
		args...)
	if err != nil {
		return nil, fmt.Errorf("query role members: %w", err)
	}
	defer rows.Close()
	return collectUserIDs(rows)
}

func collectUserIDs(rows *sql.Rows) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user ids: %w", err)
	}
	return ids, nil
}

// attachRoles loads role assignments for the given members in one query and
// stitches them onto the slice in place.
func (r *SQLRepository) attachRoles(ctx context.Context, members []MemberWithProfile) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]any, len(members))
	index := make(map[uuid.UUID]int, len(members))
	for i := range members {
		args[i] = members[i].UserID
		index[members[i].UserID] = i
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT user_id, role_id FROM member_roles WHERE user_id IN ("+placeholders(len(args))+")",
		args...)
	if err != nil {
		return fmt.Errorf("query member roles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID, roleID uuid.UUID
		if err := rows.Scan(&userID, &roleID); err != nil {
			return fmt.Errorf("scan member role: %w", err)
		}
		if i, ok := index[userID]; ok {
			members[i].RoleIDs = append(members[i].RoleIDs, roleID)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate member roles: %w", err)
	}
	return nil
}

// scanMemberWithProfile scans a member row via the given scan function so
// both sql.Row and sql.Rows work.
func scanMemberWithProfile(scan func(...any) error, m *MemberWithProfile) error {
	return scan(
		&m.UserID, &m.IdentityType, &m.Nickname, &m.AllowDms, &m.TokenVersion, &m.JoinedAt,
		&m.Username, &m.Discriminator, &m.DisplayName, &m.AvatarURL,
	)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
