package shared

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

// SQLRepository implements Repository on the shared store handle.
type SQLRepository struct {
	db       *store.DB
	serverID uuid.UUID
	log      zerolog.Logger
}

// NewSQLRepository creates a new SQL-backed shared-store repository.
func NewSQLRepository(db *store.DB, serverID uuid.UUID, logger zerolog.Logger) *SQLRepository {
	return &SQLRepository{db: db, serverID: serverID, log: logger}
}

const folderColumns = "id, parent_id, name, created_by, created_at"

// CreateFolder inserts a folder. The parent must exist; new folders have no
// children, so the tree stays acyclic by construction.
func (r *SQLRepository) CreateFolder(ctx context.Context, params CreateFolderParams) (*Folder, error) {
	f := Folder{
		ID:        store.NewID(),
		ParentID:  params.ParentID,
		Name:      params.Name,
		CreatedBy: params.CreatedBy,
		CreatedAt: time.Now().UTC(),
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO shared_folders (id, server_id, parent_id, name, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		f.ID, r.serverID, f.ParentID, f.Name, f.CreatedBy, f.CreatedAt)
	if err != nil {
		if store.IsForeignKeyViolation(err) {
			return nil, ErrFolderNotFound
		}
		return nil, fmt.Errorf("insert shared folder: %w", err)
	}
	return &f, nil
}

// GetFolder returns a single folder.
func (r *SQLRepository) GetFolder(ctx context.Context, id uuid.UUID) (*Folder, error) {
	f, err := scanFolder(r.db.QueryRowContext(ctx,
		"SELECT "+folderColumns+" FROM shared_folders WHERE id = ?", id).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFolderNotFound
		}
		return nil, fmt.Errorf("query shared folder: %w", err)
	}
	return f, nil
}

// ListFolders returns the children of a folder, or the roots when parentID is
// nil, ordered by name.
func (r *SQLRepository) ListFolders(ctx context.Context, parentID *uuid.UUID) ([]Folder, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if parentID == nil {
		rows, err = r.db.QueryContext(ctx,
			"SELECT "+folderColumns+" FROM shared_folders WHERE parent_id IS NULL ORDER BY name, id")
	} else {
		rows, err = r.db.QueryContext(ctx,
			"SELECT "+folderColumns+" FROM shared_folders WHERE parent_id = ? ORDER BY name, id", *parentID)
	}
	if err != nil {
		return nil, fmt.Errorf("query shared folders: %w", err)
	}
	defer rows.Close()

	var folders []Folder
	for rows.Next() {
		f, err := scanFolder(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan shared folder: %w", err)
		}
		folders = append(folders, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shared folders: %w", err)
	}
	return folders, nil
}

// RenameFolder sets a new name and returns the updated folder.
func (r *SQLRepository) RenameFolder(ctx context.Context, id uuid.UUID, name string) (*Folder, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE shared_folders SET name = ? WHERE id = ?", name, id)
	if err != nil {
		return nil, fmt.Errorf("rename shared folder: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrFolderNotFound
	}
	return r.GetFolder(ctx, id)
}

// descendantFoldersCTE selects the folder's subtree including itself.
const descendantFoldersCTE = `WITH RECURSIVE descendants(id) AS (
    SELECT id FROM shared_folders WHERE id = ?
    UNION ALL
    SELECT f.id FROM shared_folders f JOIN descendants d ON f.parent_id = d.id
)`

// DeleteFolder removes the folder's whole subtree in one transaction. The
// folder and file rows cascade off the root delete; override rows have no
// foreign key and are cleaned explicitly.
func (r *SQLRepository) DeleteFolder(ctx context.Context, id uuid.UUID) ([]string, error) {
	var urls []string
	err := r.db.WithTx(ctx, func(q store.Querier) error {
		folderIDs, err := collectIDs(ctx, q, descendantFoldersCTE+" SELECT id FROM descendants", id)
		if err != nil {
			return fmt.Errorf("collect descendant folders: %w", err)
		}
		if len(folderIDs) == 0 {
			return ErrFolderNotFound
		}

		in := placeholders(len(folderIDs))
		args := idArgs(folderIDs)

		rows, err := q.QueryContext(ctx,
			"SELECT id, url FROM shared_files WHERE folder_id IN ("+in+")", args...)
		if err != nil {
			return fmt.Errorf("collect descendant files: %w", err)
		}
		var fileIDs []uuid.UUID
		for rows.Next() {
			var (
				fileID uuid.UUID
				url    string
			)
			if err := rows.Scan(&fileID, &url); err != nil {
				rows.Close()
				return fmt.Errorf("scan descendant file: %w", err)
			}
			fileIDs = append(fileIDs, fileID)
			urls = append(urls, url)
		}
		if err := rows.Close(); err != nil {
			return fmt.Errorf("close descendant files: %w", err)
		}

		if _, err := q.ExecContext(ctx,
			"DELETE FROM shared_item_permission_overrides WHERE item_type = ? AND item_id IN ("+in+")",
			append([]any{wire.SharedItemFolder}, args...)...); err != nil {
			return fmt.Errorf("delete folder overrides: %w", err)
		}
		if len(fileIDs) > 0 {
			if _, err := q.ExecContext(ctx,
				"DELETE FROM shared_item_permission_overrides WHERE item_type = ? AND item_id IN ("+placeholders(len(fileIDs))+")",
				append([]any{wire.SharedItemFile}, idArgs(fileIDs)...)...); err != nil {
				return fmt.Errorf("delete file overrides: %w", err)
			}
		}

		// Deleting the root cascades through parent_id and folder_id.
		if _, err := q.ExecContext(ctx, "DELETE FROM shared_folders WHERE id = ?", id); err != nil {
			return fmt.Errorf("delete shared folder: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return urls, nil
}

const fileColumns = "id, folder_id, filename, url, content_type, size_bytes, uploaded_by, created_at"

// CreateFile records an uploaded file.
func (r *SQLRepository) CreateFile(ctx context.Context, params CreateFileParams) (*File, error) {
	f := File{
		ID:          store.NewID(),
		FolderID:    params.FolderID,
		Filename:    params.Filename,
		URL:         params.URL,
		ContentType: params.ContentType,
		SizeBytes:   params.SizeBytes,
		UploadedBy:  params.UploadedBy,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO shared_files (id, server_id, folder_id, filename, url, content_type, size_bytes, uploaded_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, r.serverID, f.FolderID, f.Filename, f.URL, f.ContentType, f.SizeBytes, f.UploadedBy, f.CreatedAt)
	if err != nil {
		if store.IsForeignKeyViolation(err) {
			return nil, ErrFolderNotFound
		}
		return nil, fmt.Errorf("insert shared file: %w", err)
	}
	return &f, nil
}

// GetFile returns a single file.
func (r *SQLRepository) GetFile(ctx context.Context, id uuid.UUID) (*File, error) {
	f, err := scanFile(r.db.QueryRowContext(ctx,
		"SELECT "+fileColumns+" FROM shared_files WHERE id = ?", id).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("query shared file: %w", err)
	}
	return f, nil
}

// ListFiles returns the files in a folder, or at the root when folderID is
// nil, ordered by filename.
func (r *SQLRepository) ListFiles(ctx context.Context, folderID *uuid.UUID) ([]File, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if folderID == nil {
		rows, err = r.db.QueryContext(ctx,
			"SELECT "+fileColumns+" FROM shared_files WHERE folder_id IS NULL ORDER BY filename, id")
	} else {
		rows, err = r.db.QueryContext(ctx,
			"SELECT "+fileColumns+" FROM shared_files WHERE folder_id = ? ORDER BY filename, id", *folderID)
	}
	if err != nil {
		return nil, fmt.Errorf("query shared files: %w", err)
	}
	defer rows.Close()

	var files []File
	for rows.Next() {
		f, err := scanFile(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan shared file: %w", err)
		}
		files = append(files, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shared files: %w", err)
	}
	return files, nil
}

// MoveFile re-parents a file. A nil folderID moves it to the root.
func (r *SQLRepository) MoveFile(ctx context.Context, id uuid.UUID, folderID *uuid.UUID) (*File, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE shared_files SET folder_id = ? WHERE id = ?", folderID, id)
	if err != nil {
		if store.IsForeignKeyViolation(err) {
			return nil, ErrFolderNotFound
		}
		return nil, fmt.Errorf("move shared file: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrFileNotFound
	}
	return r.GetFile(ctx, id)
}

// DeleteFile removes a file row together with its overrides and returns its
// URL for disk cleanup.
func (r *SQLRepository) DeleteFile(ctx context.Context, id uuid.UUID) (string, error) {
	var url string
	err := r.db.WithTx(ctx, func(q store.Querier) error {
		err := q.QueryRowContext(ctx,
			"SELECT url FROM shared_files WHERE id = ?", id).Scan(&url)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrFileNotFound
			}
			return fmt.Errorf("query shared file url: %w", err)
		}
		if _, err := q.ExecContext(ctx,
			"DELETE FROM shared_item_permission_overrides WHERE item_type = ? AND item_id = ?",
			wire.SharedItemFile, id); err != nil {
			return fmt.Errorf("delete file overrides: %w", err)
		}
		if _, err := q.ExecContext(ctx, "DELETE FROM shared_files WHERE id = ?", id); err != nil {
			return fmt.Errorf("delete shared file: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return url, nil
}

// TotalBytes sums the stored size of all shared files.
func (r *SQLRepository) TotalBytes(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(size_bytes), 0) FROM shared_files").Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum shared file bytes: %w", err)
	}
	return total, nil
}

// SetOverride upserts one allow/deny pair on a folder or file.
func (r *SQLRepository) SetOverride(ctx context.Context, o Override) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO shared_item_permission_overrides (item_type, item_id, target_type, target_id, allow, deny)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (item_type, item_id, target_type, target_id) DO UPDATE SET
		     allow = excluded.allow,
		     deny  = excluded.deny`,
		o.ItemType, o.ItemID, o.TargetType, o.TargetID, int64(o.Allow), int64(o.Deny))
	if err != nil {
		return fmt.Errorf("upsert shared override: %w", err)
	}
	return nil
}

// DeleteOverride removes one override pair.
func (r *SQLRepository) DeleteOverride(ctx context.Context, itemType string, itemID uuid.UUID, targetType string, targetID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM shared_item_permission_overrides
		 WHERE item_type = ? AND item_id = ? AND target_type = ? AND target_id = ?`,
		itemType, itemID, targetType, targetID)
	if err != nil {
		return fmt.Errorf("delete shared override: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrFileNotFound
	}
	return nil
}

// ListOverrides returns the overrides attached to one item.
func (r *SQLRepository) ListOverrides(ctx context.Context, itemType string, itemID uuid.UUID) ([]Override, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT item_type, item_id, target_type, target_id, allow, deny
		 FROM shared_item_permission_overrides
		 WHERE item_type = ? AND item_id = ?`, itemType, itemID)
	if err != nil {
		return nil, fmt.Errorf("query shared overrides: %w", err)
	}
	defer rows.Close()

	var overrides []Override
	for rows.Next() {
		var (
			o           Override
			allow, deny int64
		)
		if err := rows.Scan(&o.ItemType, &o.ItemID, &o.TargetType, &o.TargetID, &allow, &deny); err != nil {
			return nil, fmt.Errorf("scan shared override: %w", err)
		}
		o.Allow, o.Deny = uint64(allow), uint64(deny)
		overrides = append(overrides, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shared overrides: %w", err)
	}
	return overrides, nil
}

func scanFolder(scan func(...any) error) (*Folder, error) {
	var (
		f        Folder
		parentID uuid.NullUUID
	)
	if err := scan(&f.ID, &parentID, &f.Name, &f.CreatedBy, &f.CreatedAt); err != nil {
		return nil, err
	}
	if parentID.Valid {
		f.ParentID = &parentID.UUID
	}
	return &f, nil
}

func scanFile(scan func(...any) error) (*File, error) {
	var (
		f        File
		folderID uuid.NullUUID
	)
	if err := scan(&f.ID, &folderID, &f.Filename, &f.URL, &f.ContentType, &f.SizeBytes, &f.UploadedBy, &f.CreatedAt); err != nil {
		return nil, err
	}
	if folderID.Valid {
		f.FolderID = &folderID.UUID
	}
	return &f, nil
}

func collectIDs(ctx context.Context, q store.Querier, query string, args ...any) ([]uuid.UUID, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func idArgs(ids []uuid.UUID) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
