package filestore

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	interrors "github.com/jrsteele09/go-dashboard-client/internal/errors"
	"github.com/jrsteele09/go-dashboard-client/storage"
)

var _ storage.Store = (*Store)(nil)

const fileSuffix = ".json"

// Store keeps one file per key inside a profile directory. Writes go to a temp
// file that is renamed over the target, so readers never see a partial value.
type Store struct {
	dir  string
	lock sync.RWMutex
}

// New creates dir (and parents) if needed.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("[filestore New] dir is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("[filestore New] create %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) Get(key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}

	s.lock.RLock()
	defer s.lock.RUnlock()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("[filestore Get] %s: %w", key, err)
	}
	return data, nil
}

func (s *Store) Set(key string, value []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("[filestore Set] %s: %w", key, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return fmt.Errorf("[filestore Set] write %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("[filestore Set] sync %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("[filestore Set] close %s: %w", key, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("[filestore Set] rename %s: %w", key, err)
	}
	return nil
}

func (s *Store) Remove(key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("[filestore Remove] %s: %w", key, err)
	}
	return nil
}

func (s *Store) path(key string) (string, error) {
	if key == "" {
		return "", interrors.ErrInvalidKey
	}
	return filepath.Join(s.dir, url.PathEscape(key)+fileSuffix), nil
}
