package devserver

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// DeviceRegistry remembers which device hashes have verified before.
type DeviceRegistry interface {
	// Observe records hash and reports whether this is its first sighting.
	Observe(ctx context.Context, hash string) (bool, error)
}

// MemoryRegistry keeps seen hashes for the life of the process.
type MemoryRegistry struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{seen: make(map[string]struct{})}
}

func (m *MemoryRegistry) Observe(_ context.Context, hash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.seen[hash]; ok {
		return false, nil
	}
	m.seen[hash] = struct{}{}
	return true, nil
}

// DefaultDevicesKey is the Redis set holding seen device hashes.
const DefaultDevicesKey = "deeplink:dev:devices"

// RedisRegistry keeps seen hashes in a Redis set so restarts and multiple
// server instances agree.
type RedisRegistry struct {
	client *redis.Client
	key    string
}

// NewRedisRegistry uses key on client. An empty key uses DefaultDevicesKey.
func NewRedisRegistry(client *redis.Client, key string) *RedisRegistry {
	if key == "" {
		key = DefaultDevicesKey
	}
	return &RedisRegistry{client: client, key: key}
}

func (r *RedisRegistry) Observe(ctx context.Context, hash string) (bool, error) {
	added, err := r.client.SAdd(ctx, r.key, hash).Result()
	if err != nil {
		return false, fmt.Errorf("redis sadd failed: %w", err)
	}
	return added == 1, nil
}

// Ping checks Redis connectivity.
func (r *RedisRegistry) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
