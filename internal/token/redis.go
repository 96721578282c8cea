package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/qiaoborui/telegram-search-bot/internal/search"
)

const defaultKeyPrefix = "search:last_query:"

// RedisCache is a SessionCache backed by Redis, for deployments where the
// bot runs more than one replica behind the transport.
type RedisCache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisCache creates a Redis-backed session cache. A zero ttl defaults
// to 30 minutes.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisCache{
		client:    client,
		keyPrefix: defaultKeyPrefix,
		ttl:       ttl,
	}
}

func (c *RedisCache) key(callerID int64) string {
	return fmt.Sprintf("%s%d", c.keyPrefix, callerID)
}

func (c *RedisCache) Put(ctx context.Context, callerID int64, q search.Query) error {
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("marshal query: %w", err)
	}
	if err := c.client.Set(ctx, c.key(callerID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache query: %w", err)
	}
	return nil
}

func (c *RedisCache) Get(ctx context.Context, callerID int64) (search.Query, bool, error) {
	data, err := c.client.Get(ctx, c.key(callerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return search.Query{}, false, nil
	}
	if err != nil {
		return search.Query{}, false, fmt.Errorf("read cached query: %w", err)
	}
	var q search.Query
	if err := json.Unmarshal(data, &q); err != nil {
		return search.Query{}, false, fmt.Errorf("unmarshal cached query: %w", err)
	}
	return q, true, nil
}
