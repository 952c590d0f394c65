package data

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// estimateKeyPrefix namespaces estimate entries in Redis.
const estimateKeyPrefix = "tweetvault:estimate:"

// RedisEstimateCache implements the EstimateCache interface using Redis.
// Counts are stored per pair fingerprint with a short TTL so repeated
// estimates for the same filters do not burn source quota.
type RedisEstimateCache struct {
	client redis.UniversalClient
}

// NewRedisEstimateCache creates a new RedisEstimateCache with the given Redis client.
func NewRedisEstimateCache(client redis.UniversalClient) *RedisEstimateCache {
	return &RedisEstimateCache{client: client}
}

// Get retrieves a cached count by key. The second return value reports
// whether the key was present.
func (c *RedisEstimateCache) Get(ctx context.Context, key string) (int, bool, error) {
	if key == "" {
		return 0, false, errors.New("key cannot be empty")
	}

	result, err := c.client.Get(ctx, estimateKeyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("redis get: %w", err)
	}

	count, err := strconv.Atoi(result)
	if err != nil {
		return 0, false, fmt.Errorf("decode cached estimate: %w", err)
	}
	return count, true, nil
}

// Set stores a count with the given key and TTL.
func (c *RedisEstimateCache) Set(ctx context.Context, key string, count int, ttl time.Duration) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}
	if ttl <= 0 {
		ttl = time.Minute
	}

	return c.client.Set(ctx, estimateKeyPrefix+key, strconv.Itoa(count), ttl).Err()
}
