// Package kv defines the key-value storage abstraction shared by the
// conversation store and the prompt cache's exact-match index.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key has no value. Callers that
// prefer a miss-as-empty contract should prefer GetOK.
var ErrNotFound = errors.New("kv: key not found")

// Store is a key-value store with per-key expiry. Implementations must be
// safe for concurrent use.
type Store interface {
	// Get returns the raw value for key, or ErrNotFound if absent or
	// expired.
	Get(ctx context.Context, key string) ([]byte, error)
	// GetOK is Get without the sentinel error: ok is false on a miss.
	GetOK(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set stores value under key with the given TTL. A zero TTL means no
	// expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Keys returns all keys currently sharing the given prefix. Used by
	// administrative listing paths; not expected to be called on the hot
	// request path.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
