package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

const snapshotIndexKey = "snapshots"

// RedisStore implements Store interface using Redis
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration // Snapshot TTL, zero keeps snapshots forever
}

// NewRedisStore creates a new Redis-backed store
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	// Parse Redis URL
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Create Redis client
	client := redis.NewClient(opt)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStoreWithClient(client, ttl), nil
}

// NewRedisStoreWithClient wraps an existing client
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    ttl,
	}
}

// snapshotKey generates Redis key for a snapshot
func (r *RedisStore) snapshotKey(name string) string {
	return fmt.Sprintf("snapshot:%s", name)
}

// SaveSnapshot stores a snapshot and records its name in the index set
func (r *RedisStore) SaveSnapshot(ctx context.Context, snapshot Snapshot) error {
	if snapshot.SavedAt.IsZero() {
		snapshot.SavedAt = time.Now()
	}

	// Marshal to JSON
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.snapshotKey(snapshot.Name), data, r.ttl)
	pipe.SAdd(ctx, snapshotIndexKey, snapshot.Name)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save snapshot to Redis: %w", err)
	}

	return nil
}

// LoadSnapshot loads a snapshot from Redis
func (r *RedisStore) LoadSnapshot(ctx context.Context, name string) (*Snapshot, error) {
	data, err := r.client.Get(ctx, r.snapshotKey(name)).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot from Redis: %w", err)
	}

	// Parse JSON
	var snapshot Snapshot
	if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot data: %w", err)
	}

	return &snapshot, nil
}

// ListSnapshots returns saved snapshot names, pruning names whose key expired
func (r *RedisStore) ListSnapshots(ctx context.Context) ([]string, error) {
	names, err := r.client.SMembers(ctx, snapshotIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	live := make([]string, 0, len(names))
	for _, name := range names {
		exists, err := r.client.Exists(ctx, r.snapshotKey(name)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to check snapshot existence: %w", err)
		}
		if exists == 0 {
			r.client.SRem(ctx, snapshotIndexKey, name)
			continue
		}
		live = append(live, name)
	}

	sort.Strings(live)
	return live, nil
}

// DeleteSnapshot removes a snapshot from Redis
func (r *RedisStore) DeleteSnapshot(ctx context.Context, name string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.snapshotKey(name))
	pipe.SRem(ctx, snapshotIndexKey, name)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}

	return nil
}

// Client exposes the connection so other components can share it
func (r *RedisStore) Client() *redis.Client {
	return r.client
}

// Close closes the Redis connection
func (r *RedisStore) Close() error {
	return r.client.Close()
}

// Health check - verify Redis connection is alive
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
