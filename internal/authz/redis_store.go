package authz

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a PermissionSetStore backed by Redis, for deployments that
// run multiple engine instances against one cache.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get loads and decodes the cached set. A missing key is not an error.
func (s *RedisStore) Get(ctx context.Context, key string) (PermissionSet, bool, error) {
	payload, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var perms []string
	if err := json.Unmarshal(payload, &perms); err != nil {
		return nil, false, err
	}
	set := make(PermissionSet, len(perms))
	for _, perm := range perms {
		set[perm] = struct{}{}
	}
	return set, true, nil
}

// Set encodes the set as a JSON array and stores it with the given TTL.
func (s *RedisStore) Set(ctx context.Context, key string, set PermissionSet, ttl time.Duration) error {
	data, err := json.Marshal(set.Strings())
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, ttl).Err()
}

// Delete removes a single entry.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	err := s.client.Del(ctx, key).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

// DeleteTenant scans for the tenant's keys and removes them.
func (s *RedisStore) DeleteTenant(ctx context.Context, tenantID string) error {
	iter := s.client.Scan(ctx, 0, tenantKeyPrefix(tenantID)+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
	}
	return iter.Err()
}
