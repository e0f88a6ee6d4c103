// Package store defines the ordered key-value storage contract backing
// execution state, plus an in-memory implementation with atomic multi-key
// transactions.
package store

import "context"

// KV exposes read and write access to an ordered keyspace within a
// transaction. Scan visits keys in ascending lexicographic order and stops
// when the callback returns false.
type KV interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
	Delete(key string)
	Scan(prefix string, fn func(key string, value []byte) bool)
}

// Store runs read-only and read-write transactions. Update is atomic: either
// every write in the function commits, or none do.
type Store interface {
	View(ctx context.Context, fn func(KV) error) error
	Update(ctx context.Context, fn func(KV) error) error
}
