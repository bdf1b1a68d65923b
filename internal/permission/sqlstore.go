package permission

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ecto-chat/ecto-server/internal/store"
)

// SQLStore implements Store against either database backend.
type SQLStore struct {
	db *store.DB
}

// NewSQLStore creates a database-backed permission store.
func NewSQLStore(db *store.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Owner returns the server's admin_user_id, or nil when unset.
func (s *SQLStore) Owner(ctx context.Context) (*uuid.UUID, error) {
	var owner *uuid.UUID
	err := s.db.QueryRowContext(ctx, "SELECT admin_user_id FROM servers LIMIT 1").Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query server owner: %w", err)
	}
	return owner, nil
}

// IsMember reports whether the user has a member row.
func (s *SQLStore) IsMember(ctx context.Context, userID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM members WHERE user_id = ?)",
		userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return exists, nil
}

// RolesForMember returns the default role plus every role assigned to the
// member.
func (s *SQLStore) RolesForMember(ctx context.Context, userID uuid.UUID) ([]RoleEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.permissions, r.is_default FROM roles r
		JOIN member_roles mr ON mr.role_id = r.id
		WHERE mr.user_id = ?
		UNION
		SELECT r.id, r.permissions, r.is_default FROM roles r
		WHERE r.is_default
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query member roles: %w", err)
	}
	defer rows.Close()
	return scanRoleEntries(rows)
}

// AllRoles returns every role on the server.
func (s *SQLStore) AllRoles(ctx context.Context) ([]RoleEntry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, permissions, is_default FROM roles")
	if err != nil {
		return nil, fmt.Errorf("query roles: %w", err)
	}
	defer rows.Close()
	return scanRoleEntries(rows)
}

func scanRoleEntries(rows *sql.Rows) ([]RoleEntry, error) {
	var entries []RoleEntry
	for rows.Next() {
		var e RoleEntry
		var bits int64
		if err := rows.Scan(&e.ID, &bits, &e.IsDefault); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		e.Permissions = Permission(bits)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MemberRoleIDs returns the IDs of roles assigned to the member.
func (s *SQLStore) MemberRoleIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT role_id FROM member_roles WHERE user_id = ?",
		userID,
	)
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
	return ids, rows.Err()
}

// ChannelCategories maps each requested channel to its category.
func (s *SQLStore) ChannelCategories(ctx context.Context, channelIDs []uuid.UUID) (map[uuid.UUID]*uuid.UUID, error) {
	result := make(map[uuid.UUID]*uuid.UUID, len(channelIDs))
	if len(channelIDs) == 0 {
		return result, nil
	}

	query := "SELECT id, category_id FROM channels WHERE id IN (" + placeholders(len(channelIDs)) + ")"
	rows, err := s.db.QueryContext(ctx, query, idArgs(channelIDs)...)
	if err != nil {
		return nil, fmt.Errorf("query channel categories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		var categoryID *uuid.UUID
		if err := rows.Scan(&id, &categoryID); err != nil {
			return nil, fmt.Errorf("scan channel category: %w", err)
		}
		result[id] = categoryID
	}
	return result, rows.Err()
}

// ChannelOverrides returns the override rows of the given channels.
func (s *SQLStore) ChannelOverrides(ctx context.Context, channelIDs []uuid.UUID) (map[uuid.UUID][]Override, error) {
	return s.scopedOverrides(ctx, "channel_permission_overrides", "channel_id", channelIDs)
}

// CategoryOverrides returns the override rows of the given categories.
func (s *SQLStore) CategoryOverrides(ctx context.Context, categoryIDs []uuid.UUID) (map[uuid.UUID][]Override, error) {
	return s.scopedOverrides(ctx, "category_permission_overrides", "category_id", categoryIDs)
}

func (s *SQLStore) scopedOverrides(ctx context.Context, table, column string, ids []uuid.UUID) (map[uuid.UUID][]Override, error) {
	result := make(map[uuid.UUID][]Override, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query := "SELECT " + column + ", target_type, target_id, allow, deny FROM " + table +
		" WHERE " + column + " IN (" + placeholders(len(ids)) + ")"
	rows, err := s.db.QueryContext(ctx, query, idArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var scopeID uuid.UUID
		o, err := scanOverride(rows, &scopeID)
		if err != nil {
			return nil, err
		}
		result[scopeID] = append(result[scopeID], o)
	}
	return result, rows.Err()
}

func scanOverride(rows *sql.Rows, extra ...any) (Override, error) {
	var o Override
	var targetType string
	var allow, deny int64
	dest := append(extra, &targetType, &o.TargetID, &allow, &deny)
	if err := rows.Scan(dest...); err != nil {
		return Override{}, fmt.Errorf("scan override: %w", err)
	}
	o.TargetType = TargetType(targetType)
	o.Allow = Permission(allow)
	o.Deny = Permission(deny)
	return o, nil
}

// SharedChain returns the ancestor chain of a shared item, root-most folder
// first, ending with the item itself.
func (s *SQLStore) SharedChain(ctx context.Context, itemType SharedItemType, itemID uuid.UUID) ([]SharedRef, error) {
	folderID := itemID
	var chain []SharedRef

	if itemType == SharedFile {
		var parent *uuid.UUID
		err := s.db.QueryRowContext(ctx,
			"SELECT folder_id FROM shared_files WHERE id = ?",
			itemID,
		).Scan(&parent)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUnknownItem
		}
		if err != nil {
			return nil, fmt.Errorf("query shared file: %w", err)
		}
		if parent == nil {
			return []SharedRef{{Type: SharedFile, ID: itemID}}, nil
		}
		folderID = *parent
	}

	rows, err := s.db.QueryContext(ctx, `
		WITH RECURSIVE chain(id, parent_id, depth) AS (
			SELECT id, parent_id, 0 FROM shared_folders WHERE id = ?
			UNION ALL
			SELECT f.id, f.parent_id, c.depth + 1
			FROM shared_folders f
			JOIN chain c ON f.id = c.parent_id
		)
		SELECT id FROM chain ORDER BY depth DESC
	`, folderID)
	if err != nil {
		return nil, fmt.Errorf("query folder chain: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan folder chain: %w", err)
		}
		chain = append(chain, SharedRef{Type: SharedFolder, ID: id})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return nil, ErrUnknownItem
	}

	if itemType == SharedFile {
		chain = append(chain, SharedRef{Type: SharedFile, ID: itemID})
	}
	return chain, nil
}

// SharedOverrides returns the override rows of the given chain nodes.
func (s *SQLStore) SharedOverrides(ctx context.Context, refs []SharedRef) (map[SharedRef][]Override, error) {
	result := make(map[SharedRef][]Override, len(refs))
	if len(refs) == 0 {
		return result, nil
	}

	var sb strings.Builder
	args := make([]any, 0, len(refs)*2)
	for i, ref := range refs {
		if i > 0 {
			sb.WriteString(" OR ")
		}
		sb.WriteString("(item_type = ? AND item_id = ?)")
		args = append(args, string(ref.Type), ref.ID)
	}

	query := "SELECT item_type, item_id, target_type, target_id, allow, deny " +
		"FROM shared_item_permission_overrides WHERE " + sb.String()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query shared overrides: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var itemType string
		var itemID uuid.UUID
		o, err := scanOverride(rows, &itemType, &itemID)
		if err != nil {
			return nil, err
		}
		ref := SharedRef{Type: SharedItemType(itemType), ID: itemID}
		result[ref] = append(result[ref], o)
	}
	return result, rows.Err()
}

// SetOverride upserts a category or channel override row.
func (s *SQLStore) SetOverride(ctx context.Context, q store.Querier, scope Scope, scopeID uuid.UUID, targetType TargetType, targetID uuid.UUID, allow, deny Permission) error {
	table, column, err := scopeTable(scope)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx,
		"INSERT INTO "+table+" ("+column+", target_type, target_id, allow, deny) VALUES (?, ?, ?, ?, ?)"+
			" ON CONFLICT ("+column+", target_type, target_id) DO UPDATE SET allow = excluded.allow, deny = excluded.deny",
		scopeID, string(targetType), targetID, int64(allow), int64(deny),
	)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", table, err)
	}
	return nil
}

// DeleteOverride removes a category or channel override row.
func (s *SQLStore) DeleteOverride(ctx context.Context, q store.Querier, scope Scope, scopeID uuid.UUID, targetType TargetType, targetID uuid.UUID) error {
	table, column, err := scopeTable(scope)
	if err != nil {
		return err
	}
	res, err := q.ExecContext(ctx,
		"DELETE FROM "+table+" WHERE "+column+" = ? AND target_type = ? AND target_id = ?",
		scopeID, string(targetType), targetID,
	)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrOverrideNotFound
	}
	return nil
}

// SetSharedOverride upserts a shared-item override row.
func (s *SQLStore) SetSharedOverride(ctx context.Context, q store.Querier, itemType SharedItemType, itemID uuid.UUID, targetType TargetType, targetID uuid.UUID, allow, deny Permission) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO shared_item_permission_overrides (item_type, item_id, target_type, target_id, allow, deny)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (item_type, item_id, target_type, target_id)
		DO UPDATE SET allow = excluded.allow, deny = excluded.deny
	`, string(itemType), itemID, string(targetType), targetID, int64(allow), int64(deny))
	if err != nil {
		return fmt.Errorf("upsert shared override: %w", err)
	}
	return nil
}

// DeleteSharedOverride removes a shared-item override row.
func (s *SQLStore) DeleteSharedOverride(ctx context.Context, q store.Querier, itemType SharedItemType, itemID uuid.UUID, targetType TargetType, targetID uuid.UUID) error {
	res, err := q.ExecContext(ctx,
		"DELETE FROM shared_item_permission_overrides WHERE item_type = ? AND item_id = ? AND target_type = ? AND target_id = ?",
		string(itemType), itemID, string(targetType), targetID,
	)
	if err != nil {
		return fmt.Errorf("delete shared override: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrOverrideNotFound
	}
	return nil
}

func scopeTable(scope Scope) (table, column string, err error) {
	switch scope {
	case ScopeCategory:
		return "category_permission_overrides", "category_id", nil
	case ScopeChannel:
		return "channel_permission_overrides", "channel_id", nil
	}
	return "", "", fmt.Errorf("unknown override scope %q", scope)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func idArgs(ids []uuid.UUID) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
