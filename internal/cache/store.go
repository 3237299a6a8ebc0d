package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrNoStore is returned by a [Store] when nothing has been persisted under a name yet.
var ErrNoStore = errors.New("no persisted cache")

// Store persists opaque cache blobs by name.
type Store interface {
	Load(name string) ([]byte, error)
	Save(name string, data []byte) error
	Delete(name string) error
}

// FileStore keeps each cache in <root>/<name>.msgpack.gz.
type FileStore struct {
	root string
}

// NewFileStore creates a [FileStore] rooted at dir. An empty dir uses [DefaultDir].
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	return &FileStore{root: dir}, nil
}

// DefaultDir returns the per-user cache location, e.g. ~/.cache/mixtape.
func DefaultDir() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user cache directory: %w", err)
	}
	return filepath.Join(dir, "mixtape"), nil
}

// Path returns the file backing the named cache.
func (s *FileStore) Path(name string) string {
	return filepath.Join(s.root, name+".msgpack.gz")
}

// Root returns the directory holding every cache file.
func (s *FileStore) Root() string {
	return s.root
}

func (s *FileStore) Load(name string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoStore
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}
	return data, nil
}

// Save writes the blob to a temporary file in the same directory and renames it into place,
// so a crash mid-write never leaves a truncated cache behind.
func (s *FileStore) Save(name string, data []byte) error {
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.root, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.Path(name)); err != nil {
		return fmt.Errorf("failed to replace cache file: %w", err)
	}
	return nil
}

func (s *FileStore) Delete(name string) error {
	if err := os.Remove(s.Path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove cache file: %w", err)
	}
	return nil
}
