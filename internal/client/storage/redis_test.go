package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisKV(t *testing.T, ttl time.Duration) (*RedisKV, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisKV(client, "profile:test:", ttl), mr
}

func TestRedisKV_SetGetDelete(t *testing.T) {
	kv, mr := newRedisKV(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "__session_key", []byte("abc")))
	assert.True(t, mr.Exists("profile:test:__session_key"))

	v, err := kv.Get(ctx, "__session_key")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), v)

	keys, err := kv.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"__session_key"}, keys)

	require.NoError(t, kv.Delete(ctx, "__session_key"))
	v, err = kv.Get(ctx, "__session_key")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestRedisKV_ExpiresAfterTTL(t *testing.T) {
	kv, mr := newRedisKV(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "k", []byte("v")))
	mr.FastForward(2 * time.Minute)

	v, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestRedisKV_Get_Unavailable(t *testing.T) {
	kv, mr := newRedisKV(t, time.Minute)
	mr.Close()

	_, err := kv.Get(context.Background(), "k")
	require.Error(t, err)
}
