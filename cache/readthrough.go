package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/driftbox/authcore/domain"
)

// Lookup is a generic read-through cache: get-or-load-and-cache on read,
// explicit invalidation on write. Every cached record lookup in the core
// (API key by public key, 2FA enabled flag, team membership, team detail)
// goes through one of these instead of hand-rolling the pattern.
//
// A load returning domain.ErrNotFound is passed through uncached, so a
// record created moments later becomes visible immediately. Staleness after
// a missed invalidation is bounded by the entry TTL.
type Lookup[T any] struct {
	store  Store
	prefix string
	ttl    time.Duration
	load   func(ctx context.Context, key string) (T, error)
}

// NewLookup creates a read-through Lookup. prefix namespaces the cache keys;
// load fetches from the system of record on a miss.
func NewLookup[T any](store Store, prefix string, ttl time.Duration, load func(ctx context.Context, key string) (T, error)) *Lookup[T] {
	return &Lookup[T]{store: store, prefix: prefix, ttl: ttl, load: load}
}

func (l *Lookup[T]) cacheKey(key string) string {
	return fmt.Sprintf("%s:%s", l.prefix, HashKey(key))
}

// Get returns the cached value for key, loading and warming the cache on a
// miss. Cache I/O failures degrade to a direct load rather than failing the
// request.
func (l *Lookup[T]) Get(ctx context.Context, key string) (T, error) {
	var cached T
	found, err := l.store.GetJSON(ctx, l.cacheKey(key), &cached)
	if err == nil && found {
		return cached, nil
	}

	loaded, err := l.load(ctx, key)
	if err != nil {
		var zero T
		if errors.Is(err, domain.ErrNotFound) {
			return zero, err
		}
		return zero, fmt.Errorf("lookup %s: %w", l.prefix, err)
	}

	// Warming is best-effort; the loaded value is authoritative either way.
	_ = l.store.SetJSON(ctx, l.cacheKey(key), loaded, l.ttl)
	return loaded, nil
}

// Invalidate drops the cached entry for key. Call it synchronously after
// every mutation of the underlying record.
func (l *Lookup[T]) Invalidate(ctx context.Context, key string) error {
	return l.store.Delete(ctx, l.cacheKey(key))
}
