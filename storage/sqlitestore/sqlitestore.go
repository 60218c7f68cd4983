package sqlitestore

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	interrors "github.com/jrsteele09/go-dashboard-client/internal/errors"
	"github.com/jrsteele09/go-dashboard-client/storage"

	_ "modernc.org/sqlite"
)

var _ storage.Store = (*Store)(nil)

const kvSchema = `
CREATE TABLE IF NOT EXISTS kv (
	key TEXT PRIMARY KEY,
	value BLOB NOT NULL,
	updated_at TEXT NOT NULL
);
`

// Store persists key/value pairs in a single SQLite table.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database file at path. Use ":memory:" for a
// throwaway database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite store open %s: %w", path, err)
	}
	// one connection keeps ":memory:" databases shared and serialises writers
	db.SetMaxOpenConns(1)

	s, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New creates a store over an existing database connection.
func New(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("sqlite store: db is nil")
	}
	if _, err := db.Exec(kvSchema); err != nil {
		return nil, fmt.Errorf("sqlite store create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Get(key string) ([]byte, error) {
	if key == "" {
		return nil, interrors.ErrInvalidKey
	}
	var value []byte
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite store get %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) Set(key string, value []byte) error {
	if key == "" {
		return interrors.ErrInvalidKey
	}
	if value == nil {
		value = []byte{}
	}
	_, err := s.db.Exec(`
INSERT INTO kv (key, value, updated_at)
VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key,
		value,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("sqlite store set %s: %w", key, err)
	}
	return nil
}

func (s *Store) Remove(key string) error {
	if key == "" {
		return interrors.ErrInvalidKey
	}
	if _, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("sqlite store remove %s: %w", key, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
