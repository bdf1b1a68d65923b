package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ecto-chat/ecto-server/internal/attachment"
	"github.com/ecto-chat/ecto-server/internal/gateway"
	"github.com/ecto-chat/ecto-server/internal/httputil"
	"github.com/ecto-chat/ecto-server/internal/media"
	"github.com/ecto-chat/ecto-server/internal/permission"
	"github.com/ecto-chat/ecto-server/internal/server"
	"github.com/ecto-chat/ecto-server/internal/serverconfig"
	"github.com/ecto-chat/ecto-server/internal/shared"
	"github.com/ecto-chat/ecto-server/internal/store"
	"github.com/ecto-chat/ecto-server/internal/wire"
)

// FileHandler serves uploads and file bytes. Attachment and DM uploads insert
// pending rows later claimed by a message; shared uploads land in the hub;
// icon and banner uploads are re-encoded before storage.
type FileHandler struct {
	attachments attachment.Repository
	shared      shared.Repository
	server      server.Repository
	config      serverconfig.Repository
	storage     media.StorageProvider
	quota       *media.Quota
	perms       *permission.Service
	dispatcher  *gateway.Dispatcher

	// maxUploadFallback applies when the server config carries no per-file cap.
	maxUploadFallback int64
	log               zerolog.Logger
}

// NewFileHandler creates a new file handler.
func NewFileHandler(
	attachments attachment.Repository,
	sharedRepo shared.Repository,
	serverRepo server.Repository,
	configRepo serverconfig.Repository,
	storage media.StorageProvider,
	quota *media.Quota,
	perms *permission.Service,
	dispatcher *gateway.Dispatcher,
	maxUploadFallback int64,
	logger zerolog.Logger,
) *FileHandler {
	return &FileHandler{
		attachments:       attachments,
		shared:            sharedRepo,
		server:            serverRepo,
		config:            configRepo,
		storage:           storage,
		quota:             quota,
		perms:             perms,
		dispatcher:        dispatcher,
		maxUploadFallback: maxUploadFallback,
		log:               logger,
	}
}

// Upload handles POST /api/v1/upload, a multipart form with a file part and
// a channel_id field. Requires ATTACH_FILES in that channel. The returned
// attachment is pending until a message claims it.
func (h *FileHandler) Upload(c fiber.Ctx) error {
	userID, err := mustUser(c)
	if err != nil {
		return err
	}
	channelID, err := uuid.Parse(c.FormValue("channel_id"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid channel_id format")
	}

	allowed, err := h.perms.HasChannelPermission(c, userID, channelID, permission.AttachFiles)
	if err != nil {
		if errors.Is(err, permission.ErrUnknownChannel) {
			return httputil.Fail(c, fiber.StatusNotFound, wire.ChannelNotFound, "Channel not found")
		}
		h.log.Error().Err(err).Str("handler", "files").Msg("permission check failed")
		return internalError(c)
	}
	if !allowed {
		return forbidden(c)
	}

	header, err := c.FormFile("file")
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Missing file part")
	}
	contentType, err := h.checkUpload(c, header)
	if err != nil {
		return err
	}

	srv, err := h.server.Get(c)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "files").Msg("get server failed")
		return internalError(c)
	}

	key := media.AttachmentKey(srv.ID, channelID, store.NewID(), header.Filename)
	if err := h.store(c, key, header); err != nil {
		return err
	}

	att, err := h.attachments.Create(c, attachment.CreateParams{
		UploaderID:  userID,
		ChannelID:   &channelID,
		Filename:    media.SanitizeFilename(header.Filename),
		URL:         h.storage.URL(key),
		ContentType: contentType,
		SizeBytes:   header.Size,
	})
	if err != nil {
		h.log.Error().Err(err).Str("handler", "files").Msg("create attachment failed")
		return internalError(c)
	}
	return httputil.SuccessStatus(c, fiber.StatusCreated, att.ToModel())
}

// UploadDm handles POST /api/v1/dm/upload. Any authenticated member may
// attach files to their DMs.
func (h *FileHandler) UploadDm(c fiber.Ctx) error {
	userID, err := mustUser(c)
	if err != nil {
		return err
	}

	header, err := c.FormFile("file")
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Missing file part")
	}
	contentType, err := h.checkUpload(c, header)
	if err != nil {
		return err
	}

	srv, err := h.server.Get(c)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "files").Msg("get server failed")
		return internalError(c)
	}

	key := media.DmAttachmentKey(srv.ID, store.NewID(), header.Filename)
	if err := h.store(c, key, header); err != nil {
		return err
	}

	att, err := h.attachments.Create(c, attachment.CreateParams{
		UploaderID:  userID,
		Filename:    media.SanitizeFilename(header.Filename),
		URL:         h.storage.URL(key),
		ContentType: contentType,
		SizeBytes:   header.Size,
	})
	if err != nil {
		h.log.Error().Err(err).Str("handler", "files").Msg("create attachment failed")
		return internalError(c)
	}
	return httputil.SuccessStatus(c, fiber.StatusCreated, att.ToModel())
}

// UploadShared handles POST /api/v1/shared/upload with an optional folder_id
// field. Requires UPLOAD_SHARED_FILES on the target folder, or server-wide
// for the hub root.
func (h *FileHandler) UploadShared(c fiber.Ctx) error {
	userID, err := mustUser(c)
	if err != nil {
		return err
	}

	var folderID *uuid.UUID
	if raw := c.FormValue("folder_id"); raw != "" {
		id, parseErr := uuid.Parse(raw)
		if parseErr != nil {
			return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Invalid folder_id format")
		}
		if _, err := h.shared.GetFolder(c, id); err != nil {
			if errors.Is(err, shared.ErrFolderNotFound) {
				return httputil.Fail(c, fiber.StatusNotFound, wire.FolderNotFound, "Folder not found")
			}
			h.log.Error().Err(err).Str("handler", "files").Msg("get folder failed")
			return internalError(c)
		}
		folderID = &id
	}

	if err := h.requireSharedUpload(c, userID, folderID); err != nil {
		return err
	}

	header, err := c.FormFile("file")
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Missing file part")
	}
	contentType, err := h.checkUpload(c, header)
	if err != nil {
		return err
	}

	srv, err := h.server.Get(c)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "files").Msg("get server failed")
		return internalError(c)
	}

	key := media.SharedFileKey(srv.ID, folderID, store.NewID(), header.Filename)
	if err := h.store(c, key, header); err != nil {
		return err
	}

	file, err := h.shared.CreateFile(c, shared.CreateFileParams{
		FolderID:    folderID,
		Filename:    media.SanitizeFilename(header.Filename),
		URL:         h.storage.URL(key),
		ContentType: contentType,
		SizeBytes:   header.Size,
		UploadedBy:  userID,
	})
	if err != nil {
		h.log.Error().Err(err).Str("handler", "files").Msg("create shared file failed")
		return internalError(c)
	}
	return httputil.SuccessStatus(c, fiber.StatusCreated, file.ToModel())
}

// UploadIcon handles POST /api/v1/upload/icon. Requires MANAGE_SERVER. The
// image is re-encoded and fitted before storage and the server row updates.
func (h *FileHandler) UploadIcon(c fiber.Ctx) error {
	return h.uploadServerImage(c, "icon")
}

// UploadBanner handles POST /api/v1/upload/banner. Requires MANAGE_SERVER.
func (h *FileHandler) UploadBanner(c fiber.Ctx) error {
	return h.uploadServerImage(c, "banner")
}

// UploadPageBanner handles POST /api/v1/upload/page-banner. Requires
// EDIT_PAGES at route level. The caller applies the returned URL through a
// page update.
func (h *FileHandler) UploadPageBanner(c fiber.Ctx) error {
	if _, err := mustUser(c); err != nil {
		return err
	}

	header, err := c.FormFile("file")
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Missing file part")
	}
	img, err := h.processImage(c, header, media.ProcessBanner)
	if err != nil {
		return err
	}

	srv, err := h.server.Get(c)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "files").Msg("get server failed")
		return internalError(c)
	}

	key := media.PageBannerKey(srv.ID, store.NewID().String()+img.Ext)
	if err := h.storage.Put(c, key, bytes.NewReader(img.Data)); err != nil {
		h.log.Error().Err(err).Str("handler", "files").Msg("store page banner failed")
		return internalError(c)
	}
	return httputil.SuccessStatus(c, fiber.StatusCreated, fiber.Map{"url": h.storage.URL(key)})
}

// Serve handles GET /files/*, streaming stored bytes with inline disposition
// and a day of cache.
func (h *FileHandler) Serve(c fiber.Ctx) error {
	key := c.Params("*")
	if key == "" {
		return httputil.Fail(c, fiber.StatusNotFound, wire.AttachmentNotFound, "File not found")
	}

	rc, err := h.storage.Get(c, key)
	if err != nil {
		if errors.Is(err, media.ErrStorageKeyNotFound) {
			return httputil.Fail(c, fiber.StatusNotFound, wire.AttachmentNotFound, "File not found")
		}
		h.log.Error().Err(err).Str("handler", "files").Msg("open stored file failed")
		return internalError(c)
	}

	c.Set(fiber.HeaderContentDisposition, "inline")
	c.Set(fiber.HeaderCacheControl, "public, max-age=86400")
	return c.SendStream(rc)
}

// uploadServerImage re-encodes a multipart image and writes it through to
// the server row.
func (h *FileHandler) uploadServerImage(c fiber.Ctx, kind string) error {
	if _, err := mustUser(c); err != nil {
		return err
	}

	header, err := c.FormFile("file")
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Missing file part")
	}

	process := media.ProcessBanner
	if kind == "icon" {
		process = media.ProcessIcon
	}
	img, err := h.processImage(c, header, process)
	if err != nil {
		return err
	}

	srv, err := h.server.Get(c)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "files").Msg("get server failed")
		return internalError(c)
	}

	filename := store.NewID().String() + img.Ext
	var key string
	if kind == "icon" {
		key = media.IconKey(srv.ID, filename)
	} else {
		key = media.BannerKey(srv.ID, filename)
	}
	if err := h.storage.Put(c, key, bytes.NewReader(img.Data)); err != nil {
		h.log.Error().Err(err).Str("handler", "files").Msg("store image failed")
		return internalError(c)
	}

	url := h.storage.URL(key)
	params := server.UpdateParams{}
	if kind == "icon" {
		params.IconURL = &url
	} else {
		params.BannerURL = &url
	}
	updated, err := h.server.Update(c, params)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "files").Msg("update server failed")
		return internalError(c)
	}

	h.dispatcher.ToAll(wire.EventServerUpdate, updated.ToModel())
	return httputil.Success(c, updated.ToModel())
}

// processImage reads and re-encodes an uploaded image part.
func (h *FileHandler) processImage(c fiber.Ctx, header *multipart.FileHeader, process func([]byte) (*media.ProcessedImage, error)) (*media.ProcessedImage, error) {
	data, err := readPart(header)
	if err != nil {
		h.log.Error().Err(err).Str("handler", "files").Msg("read upload failed")
		return nil, internalError(c)
	}
	img, err := process(data)
	if err != nil {
		switch {
		case errors.Is(err, media.ErrFileTooLarge):
			return nil, httputil.Fail(c, fiber.StatusRequestEntityTooLarge, wire.FileTooLarge, err.Error())
		case errors.Is(err, media.ErrNotAnImage):
			return nil, httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, err.Error())
		}
		h.log.Error().Err(err).Str("handler", "files").Msg("process image failed")
		return nil, internalError(c)
	}
	return img, nil
}

// checkUpload validates content type, the per-file cap, and the non-image
// storage quota. Returns the normalised content type.
func (h *FileHandler) checkUpload(c fiber.Ctx, header *multipart.FileHeader) (string, error) {
	contentType := header.Header.Get(fiber.HeaderContentType)
	if !media.IsAllowedContentType(contentType) {
		return "", httputil.Fail(c, fiber.StatusBadRequest, wire.Validation, "Content type is not allowed")
	}

	maxSize := h.maxUploadFallback
	if cfg, err := h.config.Get(c); err == nil && cfg.MaxUploadSizeBytes > 0 {
		maxSize = cfg.MaxUploadSizeBytes
	}
	if maxSize > 0 && header.Size > maxSize {
		return "", httputil.Fail(c, fiber.StatusRequestEntityTooLarge, wire.FileTooLarge,
			fmt.Sprintf("File exceeds the maximum upload size of %d bytes", maxSize))
	}

	// Images are exempt from the shared storage quota; everything else counts.
	if !media.IsImageContentType(contentType) {
		if err := h.quota.Check(c, header.Size); err != nil {
			if errors.Is(err, media.ErrQuotaExceeded) {
				return "", httputil.Fail(c, fiber.StatusInsufficientStorage, wire.StorageQuotaExceeded, "Storage quota exceeded")
			}
			h.log.Error().Err(err).Str("handler", "files").Msg("quota check failed")
			return "", internalError(c)
		}
	}
	return contentType, nil
}

// store streams a multipart part into the storage backend.
func (h *FileHandler) store(c fiber.Ctx, key string, header *multipart.FileHeader) error {
	f, err := header.Open()
	if err != nil {
		h.log.Error().Err(err).Str("handler", "files").Msg("open upload failed")
		return internalError(c)
	}
	defer f.Close()

	if err := h.storage.Put(c, key, f); err != nil {
		h.log.Error().Err(err).Str("handler", "files").Msg("store upload failed")
		return internalError(c)
	}
	return nil
}

// requireSharedUpload enforces UPLOAD_SHARED_FILES on a folder or, for the
// hub root, server-wide.
func (h *FileHandler) requireSharedUpload(c fiber.Ctx, userID uuid.UUID, folderID *uuid.UUID) error {
	var (
		allowed bool
		err     error
	)
	if folderID != nil {
		var mask permission.Permission
		mask, err = h.perms.ResolveSharedItem(c, userID, permission.SharedFolder, *folderID)
		allowed = mask.Has(permission.UploadSharedFiles)
	} else {
		allowed, err = h.perms.HasServerPermission(c, userID, permission.UploadSharedFiles)
	}
	if err != nil {
		h.log.Error().Err(err).Str("handler", "files").Msg("permission check failed")
		return internalError(c)
	}
	if !allowed {
		return forbidden(c)
	}
	return nil
}

// readPart reads a whole multipart part into memory. Only used for images,
// which are capped well below the general upload limit.
func readPart(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
