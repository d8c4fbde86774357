// Package cache keeps discovery read models (tag and location inventories)
// in Redis. Every helper degrades to a no-op when Redis is absent.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"nokoroa/internal/observability"

	"github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

// client is shared by the cache-aside helpers. nil disables caching.
var client *redis.Client

// errorCounter feeds RedisErrorRate. A miss (redis.Nil) is not an error.
type errorCounter struct{}

func (errorCounter) DialHook(next redis.DialHook) redis.DialHook { return next }

func (errorCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		return countFailure(cmd.Name(), next(ctx, cmd))
	}
}

func (errorCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		return countFailure("pipeline", next(ctx, cmds))
	}
}

func countFailure(op string, err error) error {
	if err != nil && !errors.Is(err, redis.Nil) {
		observability.RedisErrorRate.WithLabelValues(op).Inc()
	}
	return err
}

// redisOptions accepts REDIS_URL as either host:port or a redis:// URL.
func redisOptions(addr string) (*redis.Options, error) {
	if !strings.Contains(addr, "://") {
		return &redis.Options{Addr: addr}, nil
	}
	opts, err := redis.ParseURL(addr)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	return opts, nil
}

// InitRedis connects and installs the shared client. An unparsable address
// or an unreachable server leaves caching off and returns nil.
func InitRedis(addr string) *redis.Client {
	client = nil

	opts, err := redisOptions(addr)
	if err != nil {
		slog.Warn("redis disabled", slog.String("error", err.Error()))
		return nil
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("redis disabled", slog.String("addr", opts.Addr), slog.String("error", err.Error()))
		_ = rdb.Close()
		return nil
	}

	SetClient(rdb)
	slog.Info("redis connected", slog.String("addr", opts.Addr))
	return rdb
}

// SetClient installs rdb as the shared client.
func SetClient(rdb *redis.Client) {
	if rdb != nil {
		rdb.AddHook(errorCounter{})
	}
	client = rdb
}
