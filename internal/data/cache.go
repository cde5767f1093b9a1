// Package data provides data access layer implementations.
package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ShiftGuard/internal/conf"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// Cache key prefixes
const (
	// CacheKeyStatus is the prefix for component status caches: status:{component}
	CacheKeyStatus = "status"
	// CacheKeyAlerts is the prefix for alert listing caches: alerts:{filter}
	CacheKeyAlerts = "alerts"
	// CacheKeySnapshot is the prefix for archived snapshot caches: snapshot:{window}
	CacheKeySnapshot = "snapshot"
)

// Cache TTL durations
const (
	// TTLStatus is the TTL for status caches (5 seconds, near-real-time)
	TTLStatus = 5 * time.Second
	// TTLAlerts is the TTL for alert listing caches (30 seconds)
	TTLAlerts = 30 * time.Second
	// TTLSnapshot is the TTL for archived snapshot caches (5 minutes)
	TTLSnapshot = 5 * time.Minute
)

// ErrCacheNotFound is returned when a cache key does not exist
var ErrCacheNotFound = errors.New("cache: key not found")

// CacheClient is a two-tier cache: an in-process expirable LRU in front
// of Redis. The local tier answers hot reads without a network hop; the
// Redis tier is shared across instances. Either tier may be absent.
// Implementations must be thread-safe and handle serialization.
type CacheClient interface {
	// Get retrieves a value and deserializes it into dest.
	// Returns ErrCacheNotFound if the key exists in neither tier.
	Get(ctx context.Context, key string, dest interface{}) error

	// Set stores a value in both tiers with the specified TTL.
	// The value is serialized to JSON before storage.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Delete removes a key from both tiers.
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists in either tier.
	Exists(ctx context.Context, key string) (bool, error)

	// PurgeLocal drops every entry from the in-process tier and returns
	// how many were dropped. Used by the cache cleanup task.
	PurgeLocal() int
}

// tieredCache implements CacheClient over an expirable LRU and Redis.
type tieredCache struct {
	local  *lru.LRU[string, []byte]
	client *redis.Client
}

// NewCacheClient creates the two-tier cache. A nil Redis client leaves
// only the in-process tier; a zero local size disables the local tier.
func NewCacheClient(c *conf.Data, rdb *redis.Client) CacheClient {
	size := 1024
	ttl := 5 * time.Minute
	if c != nil && c.Cache != nil {
		if c.Cache.Size > 0 {
			size = int(c.Cache.Size)
		}
		if d := c.Cache.Ttl.AsDuration(); d > 0 {
			ttl = d
		}
	}

	var local *lru.LRU[string, []byte]
	if size > 0 {
		local = lru.NewLRU[string, []byte](size, nil, ttl)
	}

	return &tieredCache{
		local:  local,
		client: rdb,
	}
}

// Get checks the local tier first, then Redis. A Redis hit refills the
// local tier.
func (c *tieredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if c.local != nil {
		if data, ok := c.local.Get(key); ok {
			if err := json.Unmarshal(data, dest); err != nil {
				return fmt.Errorf("cache: failed to unmarshal value for key %s: %w", key, err)
			}
			return nil
		}
	}

	if c.client == nil {
		return ErrCacheNotFound
	}

	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheNotFound
		}
		return fmt.Errorf("cache: failed to get key %s: %w", key, err)
	}

	if c.local != nil {
		c.local.Add(key, []byte(val))
	}

	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return fmt.Errorf("cache: failed to unmarshal value for key %s: %w", key, err)
	}

	return nil
}

// Set stores a value in both tiers with the specified TTL.
// The value is serialized to JSON before storage.
func (c *tieredCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: failed to marshal value for key %s: %w", key, err)
	}

	if c.local != nil {
		c.local.Add(key, data)
	}

	if c.client == nil {
		return nil
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("cache: failed to set key %s: %w", key, err)
	}

	return nil
}

// Delete removes a key from both tiers.
func (c *tieredCache) Delete(ctx context.Context, key string) error {
	if c.local != nil {
		c.local.Remove(key)
	}

	if c.client == nil {
		return nil
	}
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cache: failed to delete key %s: %w", key, err)
	}

	return nil
}

// Exists checks if a key exists in either tier.
func (c *tieredCache) Exists(ctx context.Context, key string) (bool, error) {
	if c.local != nil {
		if _, ok := c.local.Get(key); ok {
			return true, nil
		}
	}

	if c.client == nil {
		return false, nil
	}
	count, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("cache: failed to check existence of key %s: %w", key, err)
	}

	return count > 0, nil
}

// PurgeLocal drops the in-process tier.
func (c *tieredCache) PurgeLocal() int {
	if c.local == nil {
		return 0
	}
	n := c.local.Len()
	c.local.Purge()
	return n
}

// BuildCacheKey constructs a cache key with the appropriate prefix.
// Examples:
//   - BuildCacheKey(CacheKeyStatus, "breakers") -> "status:breakers"
//   - BuildCacheKey(CacheKeyAlerts, "unacked") -> "alerts:unacked"
func BuildCacheKey(prefix string, parts ...string) string {
	key := prefix
	for _, part := range parts {
		key += ":" + part
	}
	return key
}
