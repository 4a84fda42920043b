package authz

import (
	"context"
	"strings"
	"sync"
	"time"
)

// PermissionSetStore caches resolved permission sets keyed by
// (tenantID, userID). Final AccessResults are never cached: their context
// varies per call.
type PermissionSetStore interface {
	Get(ctx context.Context, key string) (PermissionSet, bool, error)
	Set(ctx context.Context, key string, set PermissionSet, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteTenant(ctx context.Context, tenantID string) error
}

// setKey builds the cache key for a (tenant, user) pair. The tenant comes
// first so tenant-wide invalidation is a prefix match.
func setKey(tenantID, userID string) string {
	return "perm:" + tenantID + ":" + userID
}

func tenantKeyPrefix(tenantID string) string {
	return "perm:" + tenantID + ":"
}

type memoryEntry struct {
	set       PermissionSet
	expiresAt time.Time
}

// MemoryStore is an in-process PermissionSetStore with lazy TTL expiry,
// checked on read. No background sweeper is required.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get returns the cached set when present and unexpired.
func (s *MemoryStore) Get(ctx context.Context, key string) (PermissionSet, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if s.now().After(entry.expiresAt) {
		s.mu.Lock()
		if current, ok := s.entries[key]; ok && s.now().After(current.expiresAt) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, false, nil
	}
	return entry.set, true, nil
}

// Set stores the set with the given TTL.
func (s *MemoryStore) Set(ctx context.Context, key string, set PermissionSet, ttl time.Duration) error {
	s.mu.Lock()
	s.entries[key] = memoryEntry{set: set, expiresAt: s.now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

// Delete removes a single entry.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// DeleteTenant removes every entry belonging to a tenant.
func (s *MemoryStore) DeleteTenant(ctx context.Context, tenantID string) error {
	prefix := tenantKeyPrefix(tenantID)
	s.mu.Lock()
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			delete(s.entries, key)
		}
	}
	s.mu.Unlock()
	return nil
}
