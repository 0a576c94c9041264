package overlay

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Backend is the key-value store behind the cache overlay. A failed backend
// must degrade to cache misses, never to caller-visible errors, so the
// interface has no error returns; implementations log their own failures.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, keys ...string)
}

// MemoryBackend is a mutex-guarded map with passive expiry: entries are
// checked against their deadline on read, no timer goroutine. Acceptable for
// the low write volume of day listings.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]memoryEntry)}
}

func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		delete(b.entries, key)
		return nil, false
	}
	return e.value, true
}

func (b *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[key] = memoryEntry{value: value, expiresAt: time.Now().Add(ttl)}
}

func (b *MemoryBackend) Delete(_ context.Context, keys ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range keys {
		delete(b.entries, k)
	}
}

// RedisBackend stores snapshots in Redis with a server-side TTL.
type RedisBackend struct {
	client *redis.Client
	logger zerolog.Logger
}

func NewRedisBackend(client *redis.Client, logger zerolog.Logger) *RedisBackend {
	return &RedisBackend{
		client: client,
		logger: logger.With().Str("component", "cache_backend").Logger(),
	}
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := b.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			b.logger.Warn().Err(err).Str("key", key).Msg("cache get failed")
		}
		return nil, false
	}
	return data, true
}

func (b *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := b.client.Set(ctx, key, value, ttl).Err(); err != nil {
		b.logger.Warn().Err(err).Str("key", key).Msg("cache set failed")
	}
}

func (b *RedisBackend) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := b.client.Del(ctx, keys...).Err(); err != nil {
		b.logger.Warn().Err(err).Strs("keys", keys).Msg("cache delete failed")
	}
}
