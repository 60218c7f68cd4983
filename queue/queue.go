// Package queue provides a bounded, newest-first list persisted as a JSON
// array under one storage key.
package queue

import (
	"encoding/json"
	"sync"

	interrors "github.com/jrsteele09/go-dashboard-client/internal/errors"
	"github.com/jrsteele09/go-dashboard-client/storage"
	"github.com/rs/zerolog/log"
)

// Queue keeps at most capacity items, newest first. The stored list is read
// once; after that the in-memory copy is authoritative and every change is
// written through. Storage failures are logged and never returned.
type Queue[T any] struct {
	store    storage.Store
	key      string
	capacity int
	keyFn    func(T) string

	mu     sync.Mutex
	items  []T
	loaded bool
}

// New creates a queue persisted under key. keyFn identifies items for Remove.
// A capacity below one means unbounded.
func New[T any](store storage.Store, key string, capacity int, keyFn func(T) string) *Queue[T] {
	return &Queue[T]{
		store:    store,
		key:      key,
		capacity: capacity,
		keyFn:    keyFn,
	}
}

// Items returns a copy of the queue, newest first.
func (q *Queue[T]) Items() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.loadLocked()
	return append([]T{}, q.items...)
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.loadLocked()
	return len(q.items)
}

// Push prepends item and returns whatever fell off the end.
func (q *Queue[T]) Push(item T) (evicted []T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.loadLocked()

	q.items = append([]T{item}, q.items...)
	evicted = q.trimLocked()
	q.persistLocked()
	return evicted
}

// Remove deletes the item whose key matches. Removing an absent key is a
// no-op and reports false.
func (q *Queue[T]) Remove(key string) bool {
	return q.RemoveFunc(func(item T) bool { return q.keyFn(item) == key }) > 0
}

// RemoveFunc deletes every item pred matches and returns how many it removed.
func (q *Queue[T]) RemoveFunc(pred func(T) bool) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.loadLocked()

	kept := q.items[:0:0]
	for _, item := range q.items {
		if !pred(item) {
			kept = append(kept, item)
		}
	}
	removed := len(q.items) - len(kept)
	if removed == 0 {
		return 0
	}
	q.items = kept
	q.persistLocked()
	return removed
}

// Replace swaps the whole queue for items, newest first, trimmed to capacity.
func (q *Queue[T]) Replace(items []T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.loaded = true
	q.items = append([]T{}, items...)
	q.trimLocked()
	q.persistLocked()
}

func (q *Queue[T]) trimLocked() []T {
	if q.capacity < 1 || len(q.items) <= q.capacity {
		return nil
	}
	evicted := append([]T{}, q.items[q.capacity:]...)
	q.items = q.items[:q.capacity:q.capacity]
	return evicted
}

func (q *Queue[T]) loadLocked() {
	if q.loaded {
		return
	}
	q.loaded = true
	q.items = []T{}
	if q.store == nil {
		return
	}

	data, err := q.store.Get(q.key)
	if interrors.Is(err, storage.ErrNotFound) {
		return
	}
	if err != nil {
		log.Warn().Err(err).Str("key", q.key).Msg("Queue storage unavailable, starting empty")
		return
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		log.Warn().Err(err).Str("key", q.key).Msg("Discarding unreadable queue")
		return
	}
	q.items = items
	if q.items == nil {
		q.items = []T{}
	}
	q.trimLocked()
}

func (q *Queue[T]) persistLocked() {
	if q.store == nil {
		return
	}
	data, err := json.Marshal(q.items)
	if err == nil {
		err = q.store.Set(q.key, data)
	}
	if err != nil {
		log.Warn().Err(err).Str("key", q.key).Msg("Failed to persist queue, continuing in memory")
	}
}
