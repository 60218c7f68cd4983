package memstore

import (
	"sync"

	"github.com/jrsteele09/go-dashboard-client/storage"
)

var _ storage.Store = (*Store)(nil)

// Store is an in-memory storage.Store. Values are copied on the way in and out.
type Store struct {
	values map[string][]byte
	lock   sync.RWMutex
}

func New() *Store {
	return &Store{
		values: make(map[string][]byte),
	}
}

func (s *Store) Get(key string) ([]byte, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	v, ok := s.values[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *Store) Set(key string, value []byte) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.values[key] = append([]byte(nil), value...)
	return nil
}

func (s *Store) Remove(key string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	delete(s.values, key)
	return nil
}

// Keys lists the stored keys, in no particular order.
func (s *Store) Keys() []string {
	s.lock.RLock()
	defer s.lock.RUnlock()

	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	return keys
}
