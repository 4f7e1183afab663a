package secretcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "otp"

// RedisCache is the production Cache backend. Expiry is enforced by the
// Redis TTL plus a decode-time guard, so a slot whose TTL elapsed is
// reported absent even when Redis has not reclaimed it yet.
type RedisCache struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisCache wraps client. prefix defaults to "otp" when empty.
func NewRedisCache(client redis.UniversalClient, prefix string) *RedisCache {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisCache{redis: client, prefix: prefix}
}

func (c *RedisCache) key(k Key) string {
	return c.prefix + ":" + string(k.Purpose) + ":" + k.IdentityID
}

func (c *RedisCache) Set(ctx context.Context, key Key, record *Record, ttl time.Duration) error {
	encoded, err := encodeRecord(record)
	if err != nil {
		return err
	}
	if err := c.redis.Set(ctx, c.key(key), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (c *RedisCache) Get(ctx context.Context, key Key) (*Record, error) {
	data, err := c.redis.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	record, err := decodeRecord(data)
	if err != nil {
		// A corrupt slot is unusable; drop it so the caller can regenerate.
		_, _ = c.redis.Del(ctx, c.key(key)).Result()
		return nil, ErrNotFound
	}

	if record.Expired(time.Now()) {
		_, _ = c.redis.Del(ctx, c.key(key)).Result()
		return nil, ErrNotFound
	}
	return record, nil
}

func (c *RedisCache) Remove(ctx context.Context, key Key) error {
	if err := c.redis.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
