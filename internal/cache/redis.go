package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/teemulinna/council/internal/modelclient"
)

// RedisCache is a Cache backed by a shared Redis instance, giving cache
// entries cluster-wide visibility across multiple councild instances.
// Expiry is delegated to Redis's own key TTL rather than tracked locally.
type RedisCache struct {
	rdb       *redis.Client
	keyPrefix string
	hits      int64
	misses    int64
}

// NewRedisClient dials addr (host:port) with an optional password, per the
// connection pattern used to stand up Redis-backed services in this
// project. It pings once to fail fast on a bad address.
func NewRedisClient(ctx context.Context, addr, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// NewRedisCache wraps an already-connected Redis client. keyPrefix
// namespaces cache keys (e.g. "council:cache:") so the response cache can
// share a Redis instance with other subsystems without key collisions.
func NewRedisCache(rdb *redis.Client, keyPrefix string) *RedisCache {
	return &RedisCache{rdb: rdb, keyPrefix: keyPrefix}
}

func (c *RedisCache) redisKey(modelID string, messages []modelclient.Message) string {
	return c.keyPrefix + Key(modelID, messages)
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, modelID string, messages []modelclient.Message) (modelclient.Response, bool, error) {
	raw, err := c.rdb.Get(ctx, c.redisKey(modelID, messages)).Bytes()
	if err == redis.Nil {
		atomic.AddInt64(&c.misses, 1)
		return modelclient.Response{}, false, nil
	}
	if err != nil {
		return modelclient.Response{}, false, fmt.Errorf("get cache entry: %w", err)
	}

	var resp modelclient.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return modelclient.Response{}, false, fmt.Errorf("decode cache entry: %w", err)
	}
	atomic.AddInt64(&c.hits, 1)
	return resp, true, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, modelID string, messages []modelclient.Message, resp modelclient.Response, ttl time.Duration) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := c.rdb.Set(ctx, c.redisKey(modelID, messages), raw, ttl).Err(); err != nil {
		return fmt.Errorf("set cache entry: %w", err)
	}
	return nil
}

// Stats implements Cache.
func (c *RedisCache) Stats() Stats {
	return Stats{
		Hits:   atomic.LoadInt64(&c.hits),
		Misses: atomic.LoadInt64(&c.misses),
	}
}
