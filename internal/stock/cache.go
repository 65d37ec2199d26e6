package stock

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const stockKeyPrefix = "stock:variant:"

// RedisCache mirrors derived stock into Redis so storefront reads never hit
// the relational store. The store stays authoritative; a cold or lost cache
// only costs a fallthrough query.
type RedisCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{Client: client, TTL: ttl}
}

func (c *RedisCache) SetStock(ctx context.Context, variantID string, qty int) error {
	key := stockKeyPrefix + variantID
	return c.Client.Set(ctx, key, qty, c.TTL).Err()
}

// GetStock returns the cached quantity. The second return is false on a
// cache miss.
func (c *RedisCache) GetStock(ctx context.Context, variantID string) (int, bool, error) {
	key := stockKeyPrefix + variantID
	val, err := c.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	qty, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt stock cache entry for %s: %w", variantID, err)
	}
	return qty, true, nil
}
