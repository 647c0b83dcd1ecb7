package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	pkgredis "github.com/tinkerthinkerbytes/ico-guidance-navigator-llm/pkg/redis"
)

// Backend stores encoded entries by key.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Purge(ctx context.Context) error
	Name() string
}

// MemoryBackend is a bounded in-process LRU.
type MemoryBackend struct {
	entries *lru.Cache[string, []byte]
}

func NewMemoryBackend(size int) (*MemoryBackend, error) {
	if size <= 0 {
		size = 1024
	}
	c, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, err
	}
	return &MemoryBackend{entries: c}, nil
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.entries.Get(key)
	return v, ok, nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, value []byte) error {
	m.entries.Add(key, value)
	return nil
}

func (m *MemoryBackend) Purge(context.Context) error {
	m.entries.Purge()
	return nil
}

func (m *MemoryBackend) Len() int { return m.entries.Len() }

func (m *MemoryBackend) Name() string { return "memory" }

// RedisBackend shares entries between navigator instances.
type RedisBackend struct {
	client *pkgredis.Client
	ttl    time.Duration
}

func NewRedisBackend(client *pkgredis.Client, ttl time.Duration) *RedisBackend {
	return &RedisBackend{client: client, ttl: ttl}
}

func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, key)
	if err != nil {
		if pkgredis.IsNilError(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (r *RedisBackend) Set(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, key, value, r.ttl)
}

func (r *RedisBackend) Purge(ctx context.Context) error {
	_, err := r.client.DeletePrefix(ctx, keyPrefix)
	return err
}

func (r *RedisBackend) Name() string { return "redis" }
