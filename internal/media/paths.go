package media

import (
	"path"
	"strings"

	"github.com/google/uuid"
)

// Storage keys are forward-slash paths relative to the storage root. The
// layout groups everything under the server ID so a single community's
// files can be backed up or wiped as one subtree.

// AttachmentKey builds the storage key for a channel message attachment.
func AttachmentKey(serverID, channelID, attachmentID uuid.UUID, filename string) string {
	return path.Join(serverID.String(), channelID.String(), attachmentID.String(), SanitizeFilename(filename))
}

// DmAttachmentKey builds the storage key for a server DM attachment.
func DmAttachmentKey(serverID, attachmentID uuid.UUID, filename string) string {
	return path.Join(serverID.String(), "dm", attachmentID.String(), SanitizeFilename(filename))
}

// SharedFileKey builds the storage key for a shared hub file. Files at the
// top level of the hub use "root" in place of a folder ID.
func SharedFileKey(serverID uuid.UUID, folderID *uuid.UUID, fileID uuid.UUID, filename string) string {
	folder := "root"
	if folderID != nil {
		folder = folderID.String()
	}
	return path.Join(serverID.String(), "shared", folder, fileID.String(), SanitizeFilename(filename))
}

// IconKey builds the storage key for the server icon.
func IconKey(serverID uuid.UUID, filename string) string {
	return path.Join(serverID.String(), "icons", SanitizeFilename(filename))
}

// BannerKey builds the storage key for the server banner.
func BannerKey(serverID uuid.UUID, filename string) string {
	return path.Join(serverID.String(), "banners", SanitizeFilename(filename))
}

// PageBannerKey builds the storage key for a page banner image.
func PageBannerKey(serverID uuid.UUID, filename string) string {
	return path.Join(serverID.String(), "page-banners", SanitizeFilename(filename))
}

// KeyFromURL recovers the storage key from a public media URL. Returns the
// empty string when the URL does not point at the media mount.
func KeyFromURL(url string) string {
	const mount = "/media/"
	i := strings.Index(url, mount)
	if i == -1 {
		return ""
	}
	return url[i+len(mount):]
}

// SanitizeFilename strips directory components and characters that are
// unsafe in storage keys or Content-Disposition headers. Empty results fall
// back to "file".
func SanitizeFilename(filename string) string {
	filename = strings.ReplaceAll(filename, "\\", "/")
	filename = path.Base(filename)

	var b strings.Builder
	b.Grow(len(filename))
	for _, r := range filename {
		switch {
		case r < 0x20 || r == 0x7f:
			// control characters
		case strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}

	out := strings.Trim(b.String(), ". ")
	if out == "" || out == "." || out == ".." {
		return "file"
	}
	if len(out) > 255 {
		out = out[:255]
	}
	return out
}
