package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisKV is a volatile tier shared by the processes of one profile. Every
// key carries a TTL, so the session crypto key disappears on its own once
// the profile has been idle for longer than the TTL.
type RedisKV struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisKV(client *redis.Client, prefix string, ttl time.Duration) *RedisKV {
	return &RedisKV{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get volatile[%s]: %w", key, err)
	}
	return v, nil
}

// Set writes value and restarts its TTL.
func (r *RedisKV) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, r.prefix+key, value, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set volatile[%s]: %w", key, err)
	}
	return nil
}

func (r *RedisKV) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete volatile[%s]: %w", key, err)
	}
	return nil
}

func (r *RedisKV) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), r.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan volatile keys: %w", err)
	}
	return keys, nil
}
