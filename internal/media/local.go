package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage keeps blobs on the local filesystem under a single base
// directory. Every operation goes through an os.Root handle, so a hostile key
// cannot escape the base directory through traversal or symlinks.
type LocalStorage struct {
	root    *os.Root
	baseURL string
}

// NewLocalStorage opens basePath (which must already exist) as the storage
// root. Public URLs are formed from baseURL plus the media mount and key.
func NewLocalStorage(basePath, baseURL string) (*LocalStorage, error) {
	root, err := os.OpenRoot(basePath)
	if err != nil {
		return nil, fmt.Errorf("open storage root %s: %w", basePath, err)
	}
	return &LocalStorage{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// Close releases the root directory handle.
func (s *LocalStorage) Close() error {
	return s.root.Close()
}

// Put streams r into the file at key. A failed write never leaves a partial
// file behind: the entry is removed again on any copy or close error.
func (s *LocalStorage) Put(_ context.Context, key string, r io.Reader) error {
	if dir := filepath.Dir(key); dir != "." {
		if err := s.root.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create storage directory: %w", err)
		}
	}

	f, err := s.root.Create(key)
	if err != nil {
		return fmt.Errorf("create storage file: %w", err)
	}
	_, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		_ = s.root.Remove(key)
		if copyErr != nil {
			return fmt.Errorf("write storage file: %w", copyErr)
		}
		return fmt.Errorf("close storage file: %w", closeErr)
	}
	return nil
}

// Get opens the file at key. Returns ErrStorageKeyNotFound when absent.
func (s *LocalStorage) Get(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := s.root.Open(key)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrStorageKeyNotFound
		}
		return nil, fmt.Errorf("open storage file: %w", err)
	}
	return f, nil
}

// Delete removes the file at key, ignoring files that are already gone.
func (s *LocalStorage) Delete(_ context.Context, key string) error {
	if err := s.root.Remove(key); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete storage file: %w", err)
	}
	return nil
}

// URL returns the public URL for key.
func (s *LocalStorage) URL(key string) string {
	return s.baseURL + "/media/" + key
}
