package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"nokoroa/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// FailPolicy defines the behavior when the rate limit store (Redis) is unavailable.
type FailPolicy int

const (
	// FailOpen allows the request to proceed if Redis is unavailable.
	FailOpen FailPolicy = iota
	// FailClosed blocks the request (503 Service Unavailable) if Redis is unavailable.
	FailClosed
)

// RateLimitPolicy describes one limited resource.
type RateLimitPolicy struct {
	Name   string
	Limit  int
	Window time.Duration
	OnFail FailPolicy
}

// RateLimiter counts requests per caller in fixed Redis windows.
// Limits are not enforced in the development, test and stress environments.
type RateLimiter struct {
	rdb *redis.Client
	env string
}

// NewRateLimiter returns a limiter backed by rdb.
func NewRateLimiter(rdb *redis.Client, env string) *RateLimiter {
	return &RateLimiter{rdb: rdb, env: env}
}

func (r *RateLimiter) bypassed() bool {
	switch r.env {
	case "", "test", "development", "stress":
		return true
	}
	return false
}

// Allow records one hit for id against resource and reports whether it is
// within limit, plus the hits remaining in the window.
func (r *RateLimiter) Allow(ctx context.Context, resource, id string, limit int, window time.Duration) (bool, int, error) {
	if r.bypassed() {
		return true, limit, nil
	}
	if r.rdb == nil {
		return false, 0, errors.New("redis client is nil")
	}

	key := fmt.Sprintf("rl:%s:%s", resource, id)

	var incr *redis.IntCmd
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		return nil
	})
	if err != nil {
		return false, 0, err
	}

	count := int(incr.Val())
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return count <= limit, remaining, nil
}

// Handler enforces p, keyed by the authenticated user when known and by the
// client IP otherwise.
func (r *RateLimiter) Handler(p RateLimitPolicy) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := "ip:" + c.IP()
		if uid, ok := CurrentUserID(c); ok {
			id = "user:" + strconv.FormatUint(uint64(uid), 10)
		}

		resource := p.Name
		if resource == "" {
			resource = c.Path()
		}

		allowed, remaining, err := r.Allow(c.UserContext(), resource, id, p.Limit, p.Window)
		if err != nil {
			if p.OnFail == FailClosed {
				Logger.WarnContext(c.UserContext(), "rate limit store unavailable, failing closed",
					slog.String("resource", resource),
					slog.String("error", err.Error()),
				)
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"error": "rate limit unavailable",
				})
			}
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(p.Limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !allowed {
			return models.RespondWithError(c, fiber.StatusTooManyRequests, models.ErrRateLimited)
		}
		return c.Next()
	}
}
