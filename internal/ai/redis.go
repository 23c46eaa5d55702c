package ai

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "adreview:ai:"

// RedisRemote is the shared cache tier. Every call is bounded by its own
// timeout and any failure is logged and treated as a miss.
type RedisRemote struct {
	rdb     redis.UniversalClient
	timeout time.Duration
	log     *slog.Logger
}

func NewRedisRemote(rdb redis.UniversalClient, timeout time.Duration, log *slog.Logger) *RedisRemote {
	if log == nil {
		log = slog.Default()
	}
	return &RedisRemote{rdb: rdb, timeout: timeout, log: log}
}

// NewRedisClient parses url (redis://...) and falls back to treating it as host:port.
func NewRedisClient(url, password string) *redis.Client {
	opts, err := redis.ParseURL(url)
	if err != nil {
		opts = &redis.Options{Addr: url}
	}
	if password != "" {
		opts.Password = password
	}
	return redis.NewClient(opts)
}

func (r *RedisRemote) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

func (r *RedisRemote) Get(ctx context.Context, key string) (*Result, bool) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	raw, err := r.rdb.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		r.log.Warn("ai cache remote get failed", slog.String("key", key), slog.String("err", err.Error()))
		return nil, false
	}
	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		r.log.Warn("ai cache remote entry unreadable", slog.String("key", key), slog.String("err", err.Error()))
		return nil, false
	}
	return &res, true
}

func (r *RedisRemote) Set(ctx context.Context, key string, res Result, ttl time.Duration) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	raw, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := r.rdb.Set(ctx, redisKeyPrefix+key, raw, ttl).Err(); err != nil {
		r.log.Warn("ai cache remote set failed", slog.String("key", key), slog.String("err", err.Error()))
	}
}
