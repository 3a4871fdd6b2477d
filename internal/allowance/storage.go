package allowance

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// StorageKey is the fixed key the wallet record is kept under. One wallet per device.
const StorageKey = "allowance_wallet"

// ErrNotFound is returned by Storage.Get when nothing is stored under the key.
var ErrNotFound = errors.New("not found")

// Storage is the device-local key/value store holding the sealed wallet record.
type Storage interface {
	Get(key string) ([]byte, error)
	Put(key string, data []byte) error
}

var validKey = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)

// FileStorage keeps one JSON file per key under Dir.
type FileStorage struct {
	Dir string
}

// NewFileStorage creates the directory (0700) if needed.
func NewFileStorage(dir string) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FileStorage{Dir: dir}, nil
}

func (s *FileStorage) path(key string) (string, error) {
	if !validKey.MatchString(key) {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(s.Dir, key+".json"), nil
}

// Get reads the file for key.
func (s *FileStorage) Get(key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if len(data) == 0 {
		return nil, ErrNotFound
	}
	return data, nil
}

// Put replaces the file for key atomically: data goes to a temp file in the same
// directory which is then renamed over the target. Files are created 0600.
func (s *FileStorage) Put(key string, data []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.Dir, "."+key+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", key, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}

// MemoryStorage is an in-process Storage, for tests and embedding.
type MemoryStorage struct {
	data map[string][]byte
	// PutErr, when set, is returned by every Put.
	PutErr error
}

// NewMemoryStorage returns an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make(map[string][]byte)}
}

func (m *MemoryStorage) Get(key string) ([]byte, error) {
	d, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), d...), nil
}

func (m *MemoryStorage) Put(key string, data []byte) error {
	if m.PutErr != nil {
		return m.PutErr
	}
	m.data[key] = append([]byte(nil), data...)
	return nil
}
