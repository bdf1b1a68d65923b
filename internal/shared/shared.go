// Package shared manages the server's shared file store: a tree of folders,
// the files inside them, and the per-item permission overrides that gate
// browsing, uploading, and managing along the ancestor chain.
package shared

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ecto-chat/ecto-server/internal/wire"
)

// Sentinel errors for the shared package.
var (
	ErrFolderNotFound = errors.New("shared folder not found")
	ErrFileNotFound   = errors.New("shared file not found")
	ErrNameLength     = errors.New("folder name must be between 1 and 100 characters")
	ErrFolderCycle    = errors.New("folder cannot be moved into its own subtree")
)

// Folder is one node of the shared-file tree.
type Folder struct {
	ID        uuid.UUID
	ParentID  *uuid.UUID
	Name      string
	CreatedBy uuid.UUID
	CreatedAt time.Time
}

// ToModel converts the folder to its wire shape. The caller's resolved mask
// is attached separately where a read requires it.
func (f *Folder) ToModel() wire.SharedFolder {
	return wire.SharedFolder{
		ID:        f.ID,
		ParentID:  f.ParentID,
		Name:      f.Name,
		CreatedBy: f.CreatedBy,
		CreatedAt: f.CreatedAt,
	}
}

// File is one stored file, optionally inside a folder.
type File struct {
	ID          uuid.UUID
	FolderID    *uuid.UUID
	Filename    string
	URL         string
	ContentType string
	SizeBytes   int64
	UploadedBy  uuid.UUID
	CreatedAt   time.Time
}

// ToModel converts the file to its wire shape.
func (f *File) ToModel() wire.SharedFile {
	return wire.SharedFile{
		ID:          f.ID,
		FolderID:    f.FolderID,
		Filename:    f.Filename,
		URL:         f.URL,
		ContentType: f.ContentType,
		SizeBytes:   f.SizeBytes,
		UploadedBy:  f.UploadedBy,
		CreatedAt:   f.CreatedAt,
	}
}

// CreateFolderParams groups the inputs for creating a folder.
type CreateFolderParams struct {
	ParentID  *uuid.UUID
	Name      string
	CreatedBy uuid.UUID
}

// CreateFileParams groups the inputs for recording an uploaded file.
type CreateFileParams struct {
	FolderID    *uuid.UUID
	Filename    string
	URL         string
	ContentType string
	SizeBytes   int64
	UploadedBy  uuid.UUID
}

// Override is one allow/deny pair on a folder or file.
type Override struct {
	ItemType   string
	ItemID     uuid.UUID
	TargetType string
	TargetID   uuid.UUID
	Allow      uint64
	Deny       uint64
}

// ToModel converts the override to its wire shape.
func (o *Override) ToModel() wire.PermissionOverride {
	return wire.PermissionOverride{
		TargetType: o.TargetType,
		TargetID:   o.TargetID,
		Allow:      o.Allow,
		Deny:       o.Deny,
	}
}

// ValidateName trims and bounds a folder name.
func ValidateName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if n := utf8.RuneCountInString(trimmed); n < 1 || n > 100 {
		return "", ErrNameLength
	}
	return trimmed, nil
}

// Repository defines the data-access contract for the shared store.
type Repository interface {
	CreateFolder(ctx context.Context, params CreateFolderParams) (*Folder, error)
	GetFolder(ctx context.Context, id uuid.UUID) (*Folder, error)
	ListFolders(ctx context.Context, parentID *uuid.UUID) ([]Folder, error)
	RenameFolder(ctx context.Context, id uuid.UUID, name string) (*Folder, error)

	// DeleteFolder removes the folder, every descendant folder and file, and
	// their override rows, returning the URLs of all removed files so the
	// caller can release the stored bytes.
	DeleteFolder(ctx context.Context, id uuid.UUID) (urls []string, err error)

	CreateFile(ctx context.Context, params CreateFileParams) (*File, error)
	GetFile(ctx context.Context, id uuid.UUID) (*File, error)
	ListFiles(ctx context.Context, folderID *uuid.UUID) ([]File, error)
	MoveFile(ctx context.Context, id uuid.UUID, folderID *uuid.UUID) (*File, error)
	DeleteFile(ctx context.Context, id uuid.UUID) (url string, err error)

	// TotalBytes sums all stored file sizes. Feeds the storage quota together
	// with the attachment total.
	TotalBytes(ctx context.Context) (int64, error)

	SetOverride(ctx context.Context, o Override) error
	DeleteOverride(ctx context.Context, itemType string, itemID uuid.UUID, targetType string, targetID uuid.UUID) error
	ListOverrides(ctx context.Context, itemType string, itemID uuid.UUID) ([]Override, error)
}
