package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRevocationCache caches positive revocation lookups keyed by token
// hash, TTL-capped by the entry expiry so cache and ledger age out together.
type RedisRevocationCache struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisRevocationCache(client redis.UniversalClient, prefix string) *RedisRevocationCache {
	if prefix == "" {
		prefix = "revoked_tokens"
	}
	return &RedisRevocationCache{client: client, prefix: prefix}
}

func (c *RedisRevocationCache) Get(ctx context.Context, token string) (bool, error) {
	if c.client == nil {
		return false, nil
	}
	_, err := c.client.Get(ctx, c.key(token)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisRevocationCache) Set(ctx context.Context, token string, ttl time.Duration) error {
	if c.client == nil || ttl <= 0 {
		return nil
	}
	return c.client.Set(ctx, c.key(token), "1", ttl).Err()
}

func (c *RedisRevocationCache) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return c.prefix + ":" + hex.EncodeToString(sum[:])
}
