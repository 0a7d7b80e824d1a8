package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrCacheMiss is the sentinel both cache implementations report for a
// missing or expired key. Aliasing redis.Nil keeps the use case's miss
// handling identical for either backend.
var ErrCacheMiss error = redis.Nil

// Cache abstracts the result cache so the use case can run against redis or
// an in-process map.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

// RedisCache is backed by go-redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache constructs a redis-backed cache adapter.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Set writes a value to redis.
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

// Get retrieves a cached value from redis. Misses surface as redis.Nil.
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// memorySweepInterval bounds how often Set scans for expired entries.
const memorySweepInterval = time.Minute

// MemoryCache is a process-local TTL cache used when no redis address is
// configured. Expired entries are dropped on read and reclaimed in bulk by a
// periodic sweep during writes, so keys that are never read again (the
// common case for prediction records) do not accumulate for the life of the
// process.
type MemoryCache struct {
	mu        sync.Mutex
	entries   map[string]memoryEntry
	nextSweep time.Time
}

// NewMemoryCache constructs an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries:   make(map[string]memoryEntry),
		nextSweep: time.Now().Add(memorySweepInterval),
	}
}

// Set stores a string value with an optional expiration. A zero expiration
// keeps the entry until process exit.
func (c *MemoryCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	str, ok := value.(string)
	if !ok {
		return fmt.Errorf("memory cache: unsupported value type %T", value)
	}

	now := time.Now()
	entry := memoryEntry{value: str}
	if expiration > 0 {
		entry.expiresAt = now.Add(expiration)
	}

	c.mu.Lock()
	if now.After(c.nextSweep) {
		c.sweepLocked(now)
	}
	c.entries[key] = entry
	c.mu.Unlock()
	return nil
}

// sweepLocked drops every expired entry. Callers must hold c.mu.
func (c *MemoryCache) sweepLocked(now time.Time) {
	for key, entry := range c.entries {
		if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
	c.nextSweep = now.Add(memorySweepInterval)
}

// Get returns the stored value or ErrCacheMiss.
func (c *MemoryCache) Get(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return "", ErrCacheMiss
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return "", ErrCacheMiss
	}
	return entry.value, nil
}
