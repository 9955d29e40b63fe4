package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("storage: key not found")

// Store is the persistence layer for ledger and cache blobs. Values are
// opaque byte blobs identified by string keys with no schema versioning;
// callers must treat unreadable blobs as absent, never as fatal.
type Store interface {
	// Get retrieves the blob stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores or overwrites the blob under key.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases resources.
	Close() error
}
