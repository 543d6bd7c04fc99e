package entity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisRepository stores records as JSON strings in Redis, one value per
// unique key under a configurable key prefix.
type RedisRepository struct {
	client *redis.Client
	prefix string
}

// NewRedisRepository creates a repository backed by the given Redis client.
// Keys are stored as prefix + unique key value.
func NewRedisRepository(client *redis.Client, prefix string) *RedisRepository {
	return &RedisRepository{client: client, prefix: prefix}
}

// Ping verifies connectivity to the Redis server.
func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// FindByKey implements Repository.
func (r *RedisRepository) FindByKey(ctx context.Context, key string) (Record, bool, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var rec Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, false, fmt.Errorf("decode record %q: %w", key, err)
	}
	return rec, true, nil
}

// Upsert implements Repository.
func (r *RedisRepository) Upsert(ctx context.Context, key string, fields Record) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode record %q: %w", key, err)
	}
	if err := r.client.Set(ctx, r.prefix+key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
