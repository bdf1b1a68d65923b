package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func openLocal(t *testing.T, dir, baseURL string) *LocalStorage {
	t.Helper()
	store, err := NewLocalStorage(dir, baseURL)
	if err != nil {
		t.Fatalf("NewLocalStorage() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestLocalStorageRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openLocal(t, t.TempDir(), "http://localhost:8080")

	want := []byte("round trip payload")
	if err := store.Put(ctx, "attachments/a/file.txt", bytes.NewReader(want)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	rc, err := store.Get(ctx, "attachments/a/file.txt")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer func() { _ = rc.Close() }()

	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Get() = %q, want %q", got, want)
	}
}

func TestLocalStorageGetMissing(t *testing.T) {
	t.Parallel()
	store := openLocal(t, t.TempDir(), "http://localhost:8080")

	if _, err := store.Get(context.Background(), "no/such/key"); !errors.Is(err, ErrStorageKeyNotFound) {
		t.Errorf("Get() error = %v, want ErrStorageKeyNotFound", err)
	}
}

func TestLocalStorageDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	store := openLocal(t, dir, "http://localhost:8080")

	if err := store.Put(ctx, "gone.txt", bytes.NewReader([]byte("x"))); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := store.Delete(ctx, "gone.txt"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "gone.txt")); !os.IsNotExist(err) {
		t.Error("file still exists after Delete()")
	}

	// A second delete of the same key is a no-op, not an error.
	if err := store.Delete(ctx, "gone.txt"); err != nil {
		t.Errorf("Delete() of missing key error = %v, want nil", err)
	}
}

func TestLocalStorageURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		baseURL string
		key     string
		want    string
	}{
		{"http://localhost:8080", "attachments/abc.jpg", "http://localhost:8080/media/attachments/abc.jpg"},
		{"http://localhost:8080/", "attachments/abc.jpg", "http://localhost:8080/media/attachments/abc.jpg"},
		{"https://files.example.com", "shared/def.pdf", "https://files.example.com/media/shared/def.pdf"},
	}
	for _, tt := range tests {
		store := openLocal(t, t.TempDir(), tt.baseURL)
		if got := store.URL(tt.key); got != tt.want {
			t.Errorf("URL(%q) with base %q = %q, want %q", tt.key, tt.baseURL, got, tt.want)
		}
	}
}

func TestLocalStorageTraversalBlocked(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openLocal(t, t.TempDir(), "http://localhost:8080")

	for _, key := range []string{"../escape.txt", "../../etc/passwd"} {
		if err := store.Put(ctx, key, bytes.NewReader([]byte("x"))); err == nil {
			t.Errorf("Put(%q) error = nil, want traversal rejected", key)
		}
		if _, err := store.Get(ctx, key); err == nil {
			t.Errorf("Get(%q) error = nil, want traversal rejected", key)
		}
		if err := store.Delete(ctx, key); err == nil {
			t.Errorf("Delete(%q) error = nil, want traversal rejected", key)
		}
	}
}

func TestLocalStoragePutCreatesNestedDirs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	store := openLocal(t, dir, "http://localhost:8080")

	key := "a/b/c/deep.txt"
	if err := store.Put(ctx, key, bytes.NewReader([]byte("deep"))); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, key)); err != nil {
		t.Errorf("nested file not found: %v", err)
	}
}
