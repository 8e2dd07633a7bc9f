// Package cache defines the TTL key-value store the auth core keeps its
// ephemeral state in: sessions, ceremony nonces, rate-limit counters and
// read-through caches of persisted records. Two implementations exist, a
// Redis-backed one for deployment and a ttlcache-backed in-process one for
// tests and single-node development.
package cache

import (
	"context"
	"time"
)

// Store is a TTL key-value store with JSON values, numeric counters and
// string sets. Single-key operations are atomic; multi-step sequences built
// on top of them (check-then-increment, write-then-invalidate) are
// deliberately best-effort.
type Store interface {
	// GetJSON decodes the value at key into dest. The boolean reports
	// whether the key existed; absence is not an error.
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error

	// GetCounter returns the counter value at key, or found=false if absent.
	GetCounter(ctx context.Context, key string) (value int64, found bool, err error)
	// Increment adds one to the counter at key, creating it with the given
	// TTL when absent, and returns the new value.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// AddToSet inserts a member into the string set at key and refreshes
	// the set's TTL.
	AddToSet(ctx context.Context, key, member string, ttl time.Duration) error
	RemoveFromSet(ctx context.Context, key string, members ...string) error
	SetMembers(ctx context.Context, key string) ([]string, error)
}
