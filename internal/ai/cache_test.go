package ai

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheExpiry(t *testing.T) {
	c := NewCache(time.Minute, nil, nil)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set(context.Background(), "k", Result{Status: StatusOK})
	got, ok := c.Get(context.Background(), "k")
	require.True(t, ok)
	assert.Equal(t, StatusOK, got.Status)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get(context.Background(), "k")
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *RedisRemote) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, NewRedisRemote(rdb, 200*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRedisRemoteRoundTrip(t *testing.T) {
	mr, remote := setupRedis(t)
	ctx := context.Background()

	_, ok := remote.Get(ctx, "missing")
	assert.False(t, ok)

	ins := InsightJSON{InsightSummary: "s"}
	remote.Set(ctx, "k", Result{Status: StatusPartial, Source: SourceLive, Insight: &ins}, time.Minute)
	assert.True(t, mr.Exists(redisKeyPrefix+"k"))
	assert.Equal(t, time.Minute, mr.TTL(redisKeyPrefix+"k"))

	got, ok := remote.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, StatusPartial, got.Status)
	assert.Equal(t, "s", got.Insight.InsightSummary)
}

func TestRedisRemoteFailsOpen(t *testing.T) {
	mr, remote := setupRedis(t)
	require.NoError(t, mr.Set(redisKeyPrefix+"garbage", "not json"))
	_, ok := remote.Get(context.Background(), "garbage")
	assert.False(t, ok)

	mr.Close()
	_, ok = remote.Get(context.Background(), "k")
	assert.False(t, ok)
	remote.Set(context.Background(), "k", Result{Status: StatusOK}, time.Minute)
}

func TestCacheFillsLocalFromRemote(t *testing.T) {
	_, remote := setupRedis(t)
	shared := NewCache(time.Minute, remote, nil)
	shared.Set(context.Background(), "k", Result{Status: StatusOK})

	// a second process sharing the same redis
	other := NewCache(time.Minute, remote, nil)
	got, ok := other.Get(context.Background(), "k")
	require.True(t, ok)
	assert.Equal(t, StatusOK, got.Status)
	assert.Equal(t, 1, other.Len())
}
