package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ecto-chat/ecto-server/internal/httputil"
	"github.com/ecto-chat/ecto-server/internal/media"
	"github.com/ecto-chat/ecto-server/internal/permission"
	"github.com/ecto-chat/ecto-server/internal/shared"
	"github.com/ecto-chat/ecto-server/internal/wire"
)

// HubHandler serves the shared file hub: the folder tree, the files inside
// it, and per-item permission overrides. Access is resolved along the
// folder ancestor chain, so an override on a folder covers its subtree.
type HubHandler struct {
	shared     shared.Repository
	storage    media.StorageProvider
	perms      *permission.Service
	invalidate *permission.Invalidator
	log        zerolog.Logger
}

// NewHubHandler creates a new shared hub handler.
func NewHubHandler(
	sharedRepo shared.Repository,
	storage media.StorageProvider,
	perms *permission.Service,
	invalidate *permission.Invalidator,
	logger zerolog.Logger,
) *HubHandler {
	return &HubHandler{
		shared:     sharedRepo,
		storage:    storage,
		perms:      perms,
		invalidate: invalidate,
		log:        logger,
	}
}

// ListFolders handles GET /api/v1/hub/folders. An optional parent_id query
// parameter scopes the listing to one folder; absent means the hub root.
// Folders the caller cannot browse are omitted.
func (h *HubHandler) ListFolders(c fiber.Ctx) error {
	userID, err := mustUser(c)
	if err != nil {
		return err
	}
	parentID, err := h.parentParam(c, userID, permission.BrowseFiles)
	if err != nil {
		return err
	}

	folders, err := h.shared.ListFolders(c, parentID)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "hub").Msg("list folders failed")
		return internalError(c)
	}

	models := make([]wire.SharedFolder, 0, len(folders))
	for i := range folders {
		mask, err := h.perms.ResolveSharedItem(c, userID, permission.SharedFolder, folders[i].ID)
		if err != nil {
			h.log.Error().Err(err).Str("handler", "hub").Msg("resolve folder permissions failed")
			return internalError(c)
		}
		if !mask.Has(permission.BrowseFiles) {
			continue
		}
		models = append(models, folders[i].ToModel())
	}
	return httputil.Success(c, models)
}

// CreateFolder handles POST /api/v1/hub/folders. Requires MANAGE_FILES on
// the parent folder, or server-wide for root folders.
func (h *HubHandler) CreateFolder(c fiber.Ctx) error {
	userID, err := mustUser(c)
	if err != nil {
		return err
	}

	var req wire.CreateFolderRequest
	if err := c.Bind().Body(&req); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid request body")
	}
	name, err := shared.ValidateName(req.Name)
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, err.Error())
	}

	if req.ParentID != nil {
		if _, err := h.shared.GetFolder(c, *req.ParentID); err != nil {
			if errors.Is(err, shared.ErrFolderNotFound) {
				return httputil.Fail(c, fiber.StatusNotFound, wire.FolderNotFound, "Parent folder not found")
			}
			h.log.Error().Err(err).Str("handler", "hub").Msg("get parent folder failed")
			return internalError(c)
		}
	}
	if err := h.requireItemOrServer(c, userID, permission.SharedFolder, req.ParentID, permission.ManageFiles); err != nil {
		return err
	}

	folder, err := h.shared.CreateFolder(c, shared.CreateFolderParams{
		ParentID:  req.ParentID,
		Name:      name,
		CreatedBy: userID,
	})
	if err != nil {
		h.log.Error().Err(err).Str("handler", "hub").Msg("create folder failed")
		return internalError(c)
	}
	return httputil.SuccessStatus(c, fiber.StatusCreated, folder.ToModel())
}

// RenameFolder handles PATCH /api/v1/hub/folders/:folderID. Requires
// MANAGE_FILES on the folder.
func (h *HubHandler) RenameFolder(c fiber.Ctx) error {
	userID, err := mustUser(c)
	if err != nil {
		return err
	}
	folderID, err := parseParamID(c, "folderID")
	if err != nil {
		return err
	}

	var req wire.RenameFolderRequest
	if err := c.Bind().Body(&req); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid request body")
	}
	name, err := shared.ValidateName(req.Name)
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, err.Error())
	}

	if err := h.requireItem(c, userID, permission.SharedFolder, folderID, permission.ManageFiles); err != nil {
		return err
	}

	folder, err := h.shared.RenameFolder(c, folderID, name)
	if err != nil {
		if errors.Is(err, shared.ErrFolderNotFound) {
			return httputil.Fail(c, fiber.StatusNotFound, wire.FolderNotFound, "Folder not found")
		}
		h.log.Error().Err(err).Str("handler", "hub").Msg("rename folder failed")
		return internalError(c)
	}
	return httputil.Success(c, folder.ToModel())
}

// DeleteFolder handles DELETE /api/v1/hub/folders/:folderID. Requires
// MANAGE_FILES on the folder. The whole subtree and its stored bytes go.
func (h *HubHandler) DeleteFolder(c fiber.Ctx) error {
	userID, err := mustUser(c)
	if err != nil {
		return err
	}
	folderID, err := parseParamID(c, "folderID")
	if err != nil {
		return err
	}

	if err := h.requireItem(c, userID, permission.SharedFolder, folderID, permission.ManageFiles); err != nil {
		return err
	}

	urls, err := h.shared.DeleteFolder(c, folderID)
	if err != nil {
		if errors.Is(err, shared.ErrFolderNotFound) {
			return httputil.Fail(c, fiber.StatusNotFound, wire.FolderNotFound, "Folder not found")
		}
		h.log.Error().Err(err).Str("handler", "hub").Msg("delete folder failed")
		return internalError(c)
	}
	h.releaseStored(c, urls)
	h.invalidate.All()
	return httputil.Success(c, fiber.Map{"deleted": true})
}

// ListFiles handles GET /api/v1/hub/files. An optional folder_id query
// parameter scopes the listing; absent means the hub root.
func (h *HubHandler) ListFiles(c fiber.Ctx) error {
	userID, err := mustUser(c)
	if err != nil {
		return err
	}
	folderID, err := h.parentParam(c, userID, permission.BrowseFiles)
	if err != nil {
		return err
	}
	if folderID != nil {
		if err := h.requireItem(c, userID, permission.SharedFolder, *folderID, permission.BrowseFiles); err != nil {
			return err
		}
	}

	files, err := h.shared.ListFiles(c, folderID)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "hub").Msg("list files failed")
		return internalError(c)
	}

	models := make([]wire.SharedFile, 0, len(files))
	for i := range files {
		mask, err := h.perms.ResolveSharedItem(c, userID, permission.SharedFile, files[i].ID)
		if err != nil {
			h.log.Error().Err(err).Str("handler", "hub").Msg("resolve file permissions failed")
			return internalError(c)
		}
		if !mask.Has(permission.BrowseFiles) {
			continue
		}
		models = append(models, files[i].ToModel())
	}
	return httputil.Success(c, models)
}

// MoveFile handles PATCH /api/v1/hub/files/:fileID. Requires MANAGE_FILES on
// the file and on the destination folder.
func (h *HubHandler) MoveFile(c fiber.Ctx) error {
	userID, err := mustUser(c)
	if err != nil {
		return err
	}
	fileID, err := parseParamID(c, "fileID")
	if err != nil {
		return err
	}

	var req wire.MoveSharedFileRequest
	if err := c.Bind().Body(&req); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid request body")
	}

	if err := h.requireItem(c, userID, permission.SharedFile, fileID, permission.ManageFiles); err != nil {
		return err
	}
	if req.FolderID != nil {
		if _, err := h.shared.GetFolder(c, *req.FolderID); err != nil {
			if errors.Is(err, shared.ErrFolderNotFound) {
				return httputil.Fail(c, fiber.StatusNotFound, wire.FolderNotFound, "Destination folder not found")
			}
			h.log.Error().Err(err).Str("handler", "hub").Msg("get destination folder failed")
			return internalError(c)
		}
	}
	if err := h.requireItemOrServer(c, userID, permission.SharedFolder, req.FolderID, permission.ManageFiles); err != nil {
		return err
	}

	file, err := h.shared.MoveFile(c, fileID, req.FolderID)
	if err != nil {
		if errors.Is(err, shared.ErrFileNotFound) {
			return httputil.Fail(c, fiber.StatusNotFound, wire.SharedFileNotFound, "File not found")
		}
		h.log.Error().Err(err).Str("handler", "hub").Msg("move file failed")
		return internalError(c)
	}
	h.invalidate.All()
	return httputil.Success(c, file.ToModel())
}

// DeleteFile handles DELETE /api/v1/hub/files/:fileID. The uploader may
// remove their own file; anyone else needs MANAGE_FILES.
func (h *HubHandler) DeleteFile(c fiber.Ctx) error {
	userID, err := mustUser(c)
	if err != nil {
		return err
	}
	fileID, err := parseParamID(c, "fileID")
	if err != nil {
		return err
	}

	file, err := h.shared.GetFile(c, fileID)
	if err != nil {
		if errors.Is(err, shared.ErrFileNotFound) {
			return httputil.Fail(c, fiber.StatusNotFound, wire.SharedFileNotFound, "File not found")
		}
		h.log.Error().Err(err).Str("handler", "hub").Msg("get file failed")
		return internalError(c)
	}
	if file.UploadedBy != userID {
		if err := h.requireItem(c, userID, permission.SharedFile, fileID, permission.ManageFiles); err != nil {
			return err
		}
	}

	url, err := h.shared.DeleteFile(c, fileID)
	if err != nil {
		if errors.Is(err, shared.ErrFileNotFound) {
			return httputil.Fail(c, fiber.StatusNotFound, wire.SharedFileNotFound, "File not found")
		}
		h.log.Error().Err(err).Str("handler", "hub").Msg("delete file failed")
		return internalError(c)
	}
	h.releaseStored(c, []string{url})
	return httputil.Success(c, fiber.Map{"deleted": true})
}

// ListOverrides handles GET /api/v1/hub/:itemType/:itemID/overrides.
// Requires MANAGE_FILES on the item.
func (h *HubHandler) ListOverrides(c fiber.Ctx) error {
	userID, err := mustUser(c)
	if err != nil {
		return err
	}
	itemType, itemID, err := h.itemParams(c)
	if err != nil {
		return err
	}
	if err := h.requireItem(c, userID, itemType, itemID, permission.ManageFiles); err != nil {
		return err
	}

	overrides, err := h.shared.ListOverrides(c, string(itemType), itemID)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "hub").Msg("list overrides failed")
		return internalError(c)
	}

	models := make([]wire.PermissionOverride, len(overrides))
	for i := range overrides {
		models[i] = overrides[i].ToModel()
	}
	return httputil.Success(c, models)
}

// SetOverride handles PUT /api/v1/hub/:itemType/:itemID/overrides/:targetID.
// Requires MANAGE_FILES on the item.
func (h *HubHandler) SetOverride(c fiber.Ctx) error {
	return h.writeOverride(c, true)
}

// DeleteOverride handles DELETE /api/v1/hub/:itemType/:itemID/overrides/:targetID.
func (h *HubHandler) DeleteOverride(c fiber.Ctx) error {
	return h.writeOverride(c, false)
}

func (h *HubHandler) writeOverride(c fiber.Ctx, set bool) error {
	userID, err := mustUser(c)
	if err != nil {
		return err
	}
	itemType, itemID, err := h.itemParams(c)
	if err != nil {
		return err
	}
	targetID, err := parseParamID(c, "targetID")
	if err != nil {
		return err
	}
	if err := h.requireItem(c, userID, itemType, itemID, permission.ManageFiles); err != nil {
		return err
	}

	var req wire.SetOverrideRequest
	if set {
		if err := c.Bind().Body(&req); err != nil {
			return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid request body")
		}
	}
	targetType, err := parseTargetType(req.TargetType, c.Query("target_type"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "target_type must be role or member")
	}

	if set {
		err = h.shared.SetOverride(c, shared.Override{
			ItemType:   string(itemType),
			ItemID:     itemID,
			TargetType: string(targetType),
			TargetID:   targetID,
			Allow:      req.Allow,
			Deny:       req.Deny,
		})
	} else {
		err = h.shared.DeleteOverride(c, string(itemType), itemID, string(targetType), targetID)
	}
	if err != nil {
		if errors.Is(err, permission.ErrOverrideNotFound) {
			return httputil.Fail(c, fiber.StatusNotFound, wire.OverrideNotFound, "Override not found")
		}
		h.log.Error().Err(err).Str("handler", "hub").Msg("write override failed")
		return internalError(c)
	}

	h.invalidate.All()
	return httputil.Success(c, fiber.Map{"updated": true})
}

// requireItem enforces a permission on one shared item, resolved along its
// ancestor chain.
func (h *HubHandler) requireItem(c fiber.Ctx, userID uuid.UUID, itemType permission.SharedItemType, itemID uuid.UUID, perm permission.Permission) error {
	mask, err := h.perms.ResolveSharedItem(c, userID, itemType, itemID)
	if err != nil {
		if errors.Is(err, permission.ErrUnknownItem) {
			code := wire.FolderNotFound
			if itemType == permission.SharedFile {
				code = wire.SharedFileNotFound
			}
			return httputil.Fail(c, fiber.StatusNotFound, code, "Item not found")
		}
		h.log.Error().Err(err).Str("handler", "hub").Msg("resolve item permissions failed")
		return internalError(c)
	}
	if !mask.Has(perm) {
		return forbidden(c)
	}
	return nil
}

// requireItemOrServer enforces a permission on a folder, falling back to the
// server-wide mask when the folder is nil (the hub root).
func (h *HubHandler) requireItemOrServer(c fiber.Ctx, userID uuid.UUID, itemType permission.SharedItemType, itemID *uuid.UUID, perm permission.Permission) error {
	if itemID != nil {
		return h.requireItem(c, userID, itemType, *itemID, perm)
	}
	allowed, err := h.perms.HasServerPermission(c, userID, perm)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "hub").Msg("server permission check failed")
		return internalError(c)
	}
	if !allowed {
		return forbidden(c)
	}
	return nil
}

// parentParam reads an optional parent_id/folder_id query parameter. Root
// listings are gated by the server-wide permission.
func (h *HubHandler) parentParam(c fiber.Ctx, userID uuid.UUID, perm permission.Permission) (*uuid.UUID, error) {
	raw := c.Query("parent_id")
	if raw == "" {
		raw = c.Query("folder_id")
	}
	if raw == "" {
		allowed, err := h.perms.HasServerPermission(c, userID, perm)
		if err != nil {
			h.log.Error().Err(err).Str("handler", "hub").Msg("server permission check failed")
			return nil, internalError(c)
		}
		if !allowed {
			return nil, forbidden(c)
		}
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid folder id format")
	}
	return &id, nil
}

// itemParams reads the :itemType/:itemID route pair.
func (h *HubHandler) itemParams(c fiber.Ctx) (permission.SharedItemType, uuid.UUID, error) {
	var itemType permission.SharedItemType
	switch c.Params("itemType") {
	case "folders":
		itemType = permission.SharedFolder
	case "files":
		itemType = permission.SharedFile
	default:
		return "", uuid.Nil, httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Item type must be folders or files")
	}
	itemID, err := parseParamID(c, "itemID")
	if err != nil {
		return "", uuid.Nil, err
	}
	return itemType, itemID, nil
}

// releaseStored deletes stored objects by their public URLs, logging rather
// than failing the request when the backing store misbehaves.
func (h *HubHandler) releaseStored(c fiber.Ctx, urls []string) {
	for _, url := range urls {
		key := media.KeyFromURL(url)
		if key == "" {
			continue
		}
		if err := h.storage.Delete(c, key); err != nil {
			h.log.Warn().Err(err).Str("key", key).Msg("release stored file failed")
		}
	}
}
