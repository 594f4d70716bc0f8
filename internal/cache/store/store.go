// Package store provides pluggable key-value backends for the content cache.
package store

import (
	"context"
	"time"
)

// Store is a generic key-value store with optional per-entry TTL.
// The in-memory implementation is the default; the postgres and s3
// implementations are shared across replicas.
type Store interface {
	// Get returns the stored value, or ok=false if the key is absent or
	// its TTL has elapsed.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set stores a value. A ttl of zero means the entry does not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
