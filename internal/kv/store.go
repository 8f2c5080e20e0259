// Package kv provides the key-value stores backing the result cache and the usage counter.
package kv

import (
	"context"
	"time"
)

// MaxKeyLength is the longest key every driver accepts; the SQL table stores keys as VARCHAR(255).
const MaxKeyLength = 255

//go:generate mockgen -source=store.go -destination=../mocks/kv/mock_store.go -package=mock_kv

// Store is an associative store with atomic single-key operations.
// A ttl of zero means the entry never expires.
type Store interface {
	// Get returns the value and whether the key was found and not expired
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Incr increments an integer value, creating it with ttl when absent
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Close() error
}
