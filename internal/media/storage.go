package media

import (
	"context"
	"errors"
	"io"
	"strings"
)

// Sentinel errors for storage operations.
var (
	ErrUnsupportedContentType = errors.New("content type is not allowed")
	ErrFileTooLarge           = errors.New("file exceeds the maximum upload size")
	ErrStorageKeyNotFound     = errors.New("storage key not found")
)

// StorageProvider abstracts blob storage so handlers do not care whether files
// live on local disk or in an S3-compatible bucket.
type StorageProvider interface {
	// Put writes the contents of r under key, creating any parent path as
	// needed. The caller closes r.
	Put(ctx context.Context, key string, r io.Reader) error

	// Get opens the blob at key for reading. The caller must close the
	// returned ReadCloser. Returns ErrStorageKeyNotFound for unknown keys.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the blob at key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error

	// URL returns the public URL for key.
	URL(key string) string
}

// acceptedUploads lists the MIME types uploads may carry. Anything executable
// or script-like is deliberately absent.
var acceptedUploads = map[string]bool{
	// Raster and vector images.
	"image/jpeg":    true,
	"image/png":     true,
	"image/gif":     true,
	"image/webp":    true,
	"image/avif":    true,
	"image/bmp":     true,
	"image/tiff":    true,
	"image/svg+xml": true,

	// Video and audio.
	"video/mp4":       true,
	"video/webm":      true,
	"video/ogg":       true,
	"video/quicktime": true,
	"audio/mpeg":      true,
	"audio/ogg":       true,
	"audio/wav":       true,
	"audio/webm":      true,
	"audio/flac":      true,
	"audio/aac":       true,
	"audio/x-m4a":     true,

	// Documents.
	"application/pdf":  true,
	"text/plain":       true,
	"text/markdown":    true,
	"text/csv":         true,
	"application/json": true,
	"application/xml":  true,
	"application/rtf":  true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
	"application/vnd.oasis.opendocument.text":                                   true,
	"application/vnd.oasis.opendocument.spreadsheet":                            true,
	"application/vnd.oasis.opendocument.presentation":                           true,

	// Archives.
	"application/zip":              true,
	"application/gzip":             true,
	"application/x-tar":            true,
	"application/x-7z-compressed":  true,
	"application/x-rar-compressed": true,
}

// rasterImages lists the MIME types the image pipeline can decode. SVG is
// excluded: resizing a vector format to a raster thumbnail loses the point.
var rasterImages = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
	"image/bmp":  true,
	"image/tiff": true,
}

// IsAllowedContentType reports whether contentType is accepted for upload.
func IsAllowedContentType(contentType string) bool {
	return acceptedUploads[canonicalMIME(contentType)]
}

// IsImageContentType reports whether contentType can go through the image
// processing pipeline.
func IsImageContentType(contentType string) bool {
	return rasterImages[canonicalMIME(contentType)]
}

// canonicalMIME lowercases a MIME type and drops parameters such as charset.
func canonicalMIME(ct string) string {
	if i := strings.IndexByte(ct, ';'); i != -1 {
		ct = ct[:i]
	}
	return strings.TrimSpace(strings.ToLower(ct))
}
