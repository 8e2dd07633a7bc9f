package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryStore is an in-process Store backed by ttlcache. It mirrors the
// Redis implementation closely enough that services are tested against it
// without a running Redis.
type MemoryStore struct {
	// mu serializes read-modify-write sequences (counters, sets) that
	// Redis performs atomically server-side.
	mu    sync.Mutex
	items *ttlcache.Cache[string, []byte]
}

// NewMemoryStore creates a MemoryStore and starts its expiry janitor.
func NewMemoryStore() *MemoryStore {
	items := ttlcache.New[string, []byte](
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	)
	go items.Start()
	return &MemoryStore{items: items}
}

// Close stops the expiry janitor.
func (m *MemoryStore) Close() {
	m.items.Stop()
}

func (m *MemoryStore) GetJSON(_ context.Context, key string, dest any) (bool, error) {
	item := m.items.Get(key)
	if item == nil {
		return false, nil
	}
	if err := json.Unmarshal(item.Value(), dest); err != nil {
		return false, fmt.Errorf("memory cache: decode %q: %w", key, err)
	}
	return true, nil
}

func (m *MemoryStore) SetJSON(_ context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("memory cache: encode %q: %w", key, err)
	}
	m.items.Set(key, raw, ttl)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		m.items.Delete(key)
	}
	return nil
}

func (m *MemoryStore) GetCounter(_ context.Context, key string) (int64, bool, error) {
	item := m.items.Get(key)
	if item == nil {
		return 0, false, nil
	}
	value, err := strconv.ParseInt(string(item.Value()), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("memory cache: counter %q: %w", key, err)
	}
	return value, true, nil
}

func (m *MemoryStore) Increment(_ context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	value := int64(0)
	remaining := ttl
	if item := m.items.Get(key); item != nil {
		parsed, err := strconv.ParseInt(string(item.Value()), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("memory cache: counter %q: %w", key, err)
		}
		value = parsed
		remaining = time.Until(item.ExpiresAt())
	}
	value++
	m.items.Set(key, []byte(strconv.FormatInt(value, 10)), remaining)
	return value, nil
}

func (m *MemoryStore) AddToSet(_ context.Context, key, member string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	members := m.setMembersLocked(key)
	members[member] = struct{}{}
	return m.storeSetLocked(key, members, ttl)
}

func (m *MemoryStore) RemoveFromSet(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := m.items.Get(key)
	if item == nil {
		return nil
	}
	current := m.setMembersLocked(key)
	for _, member := range members {
		delete(current, member)
	}
	if len(current) == 0 {
		m.items.Delete(key)
		return nil
	}
	return m.storeSetLocked(key, current, time.Until(item.ExpiresAt()))
}

func (m *MemoryStore) SetMembers(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	members := m.setMembersLocked(key)
	out := make([]string, 0, len(members))
	for member := range members {
		out = append(out, member)
	}
	return out, nil
}

func (m *MemoryStore) setMembersLocked(key string) map[string]struct{} {
	members := make(map[string]struct{})
	if item := m.items.Get(key); item != nil {
		// A corrupt set entry is treated as empty rather than poisoning
		// every future write to the key.
		_ = json.Unmarshal(item.Value(), &members)
	}
	return members
}

func (m *MemoryStore) storeSetLocked(key string, members map[string]struct{}, ttl time.Duration) error {
	raw, err := json.Marshal(members)
	if err != nil {
		return fmt.Errorf("memory cache: encode set %q: %w", key, err)
	}
	m.items.Set(key, raw, ttl)
	return nil
}

var _ Store = (*MemoryStore)(nil)
