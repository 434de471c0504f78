package pantry

import (
	"fmt"
	"os"
	"path/filepath"
)

// Storage defines the interface for frame snapshot storage. The frame
// a barcode was decoded from is kept alongside the scan record.
type Storage interface {
	// Save saves a snapshot and returns its path
	Save(filename string, data []byte) (string, error)

	// Get retrieves a snapshot by path
	Get(path string) ([]byte, error)

	// Delete removes a snapshot
	Delete(path string) error
}

// LocalStorage implements the Storage interface on the local filesystem.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new LocalStorage instance, creating the
// directory when missing.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating snapshot directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// Save writes a snapshot to disk.
func (l *LocalStorage) Save(filename string, data []byte) (string, error) {
	path := filepath.Join(l.basePath, filename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing snapshot: %w", err)
	}
	return filename, nil
}

// Get reads a snapshot from disk.
func (l *LocalStorage) Get(path string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(l.basePath, path))
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	return data, nil
}

// Delete removes a snapshot from disk.
func (l *LocalStorage) Delete(path string) error {
	if err := os.Remove(filepath.Join(l.basePath, path)); err != nil {
		return fmt.Errorf("deleting snapshot: %w", err)
	}
	return nil
}
