package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// BlobStore persists uploaded file content under an opaque stored name.
type BlobStore interface {
	Save(storedName string, content []byte) error
}

// LocalStore writes blobs to a directory on local disk, created on demand.
type LocalStore struct {
	dir string
}

// NewLocalStore constructs a LocalStore rooted at dir.
func NewLocalStore(dir string) (*LocalStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create directory: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

// Save implements BlobStore.
func (s *LocalStore) Save(storedName string, content []byte) error {
	return os.WriteFile(filepath.Join(s.dir, storedName), content, 0o644)
}
