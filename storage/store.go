package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("storage key not found")

// ErrUnavailable wraps backend failures (I/O, network, permissions).
var ErrUnavailable = errors.New("storage unavailable")

// Store is the key-value primitive the session manager persists into.
//
// Implementations must be safe for concurrent use. Delete of a missing key is
// not an error.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Clear removes both session keys. Both deletes are attempted even if the
// first one fails; the first error is returned.
func Clear(ctx context.Context, s Store, keys Keys) error {
	errToken := s.Delete(ctx, keys.Token)
	errProfile := s.Delete(ctx, keys.Profile)
	if errToken != nil {
		return errToken
	}
	return errProfile
}
