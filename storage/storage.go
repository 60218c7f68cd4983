// Package storage defines the durable key/value contract the client persists
// its local state through. It plays the role browser local storage plays for a
// web client: small values under fixed keys, synchronous access.
package storage

import (
	interrors "github.com/jrsteele09/go-dashboard-client/internal/errors"
)

// ErrNotFound is returned by Get when the key has never been set or was removed.
var ErrNotFound = interrors.ErrNotFound

// Store persists opaque values under string keys.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound
	Get(key string) ([]byte, error)

	// Set replaces the value stored under key
	Set(key string, value []byte) error

	// Remove deletes key. Removing a missing key is not an error
	Remove(key string) error
}
