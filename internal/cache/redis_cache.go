package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "posledger:order:"

type RedisOrderCache struct {
	client    *redis.Client
	keyPrefix string
}

func NewRedisOrderCache(addr string, password string, db int) *RedisOrderCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return NewRedisOrderCacheWithClient(client, "")
}

func NewRedisOrderCacheWithClient(client *redis.Client, keyPrefix string) *RedisOrderCache {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisOrderCache{client: client, keyPrefix: keyPrefix}
}

func (c *RedisOrderCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisOrderCache) Close() error {
	return c.client.Close()
}

func (c *RedisOrderCache) receiptKey(key string) string {
	return c.keyPrefix + "receipt:" + key
}

func (c *RedisOrderCache) claimKey(key string) string {
	return c.keyPrefix + "claim:" + key
}

func (c *RedisOrderCache) Get(ctx context.Context, key string) (*Receipt, bool, error) {
	val, err := c.client.Get(ctx, c.receiptKey(key)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var receipt Receipt
	if err := json.Unmarshal([]byte(val), &receipt); err != nil {
		return nil, false, fmt.Errorf("decode cached receipt: %w", err)
	}
	return &receipt, true, nil
}

// Claim uses SETNX so only one instance proceeds with a given key.
func (c *RedisOrderCache) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, c.claimKey(key), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim idempotency key: %w", err)
	}
	return ok, nil
}

func (c *RedisOrderCache) Set(ctx context.Context, key string, receipt Receipt, ttl time.Duration) error {
	payload, err := json.Marshal(receipt)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.receiptKey(key), payload, ttl).Err()
}

func (c *RedisOrderCache) Release(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.claimKey(key)).Err()
}

var (
	_ OrderCache = NoopOrderCache{}
	_ OrderCache = (*MemoryOrderCache)(nil)
	_ OrderCache = (*RedisOrderCache)(nil)
)
