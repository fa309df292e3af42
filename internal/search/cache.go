package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores search snippets by normalised query
type Cache interface {
	Get(ctx context.Context, key string) ([]string, bool, error)
	Set(ctx context.Context, key string, snippets []string, ttl time.Duration) error
}

type cacheEntry struct {
	snippets []string
	expires  time.Time
}

// MemoryCache is a process-local cache with per-entry expiry
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]cacheEntry), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(entry.expires) {
		delete(c.entries, key)
		return nil, false, nil
	}
	return append([]string(nil), entry.snippets...), true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, snippets []string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		snippets: append([]string(nil), snippets...),
		expires:  c.now().Add(ttl),
	}
	return nil
}

// Len returns the number of stored entries, expired ones included
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// RedisCache shares search results between service instances
type RedisCache struct {
	client *redis.Client
	prefix string
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client, prefix: "search:"}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]string, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read search cache: %w", err)
	}

	var snippets []string
	if err := json.Unmarshal(data, &snippets); err != nil {
		return nil, false, fmt.Errorf("failed to decode search cache: %w", err)
	}
	return snippets, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, snippets []string, ttl time.Duration) error {
	data, err := json.Marshal(snippets)
	if err != nil {
		return fmt.Errorf("failed to encode search cache: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write search cache: %w", err)
	}
	return nil
}
