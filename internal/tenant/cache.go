package tenant

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores domain -> tenant id resolutions so repeated requests from
// cookie-less clients don't hammer the backend lookup endpoint. Get returns
// "" on a miss.
type Cache interface {
	Get(ctx context.Context, domain string) (string, error)
	Set(ctx context.Context, domain, tenantID string) error
}

// RedisCache implements Cache on Redis under key "tenant:domain:<host>".
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: "tenant:domain:", ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, domain string) (string, error) {
	v, err := c.client.Get(ctx, c.prefix+domain).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", err
	}
	return v, nil
}

func (c *RedisCache) Set(ctx context.Context, domain, tenantID string) error {
	return c.client.Set(ctx, c.prefix+domain, tenantID, c.ttl).Err()
}

// MemoryCache is the redis-less fallback used in dev and tests.
type MemoryCache struct {
	mu    sync.RWMutex
	ttl   time.Duration
	store map[string]memoryEntry
}

type memoryEntry struct {
	id      string
	expires time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl, store: make(map[string]memoryEntry)}
}

func (c *MemoryCache) Get(ctx context.Context, domain string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.store[domain]
	if !ok || time.Now().After(e.expires) {
		return "", nil
	}
	return e.id, nil
}

func (c *MemoryCache) Set(ctx context.Context, domain, tenantID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[domain] = memoryEntry{id: tenantID, expires: time.Now().Add(c.ttl)}
	return nil
}
