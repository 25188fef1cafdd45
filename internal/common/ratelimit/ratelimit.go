// Package ratelimit implements fixed-window request limits.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, scope, key string) (*Decision, error)
}

// Rule bounds a scope to Limit hits per Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// RedisLimiter counts hits per (scope, key, window) with INCR and a TTL.
type RedisLimiter struct {
	client redis.UniversalClient
	rules  map[string]Rule
	prefix string
}

func NewRedisLimiter(client redis.UniversalClient, rules map[string]Rule) *RedisLimiter {
	return &RedisLimiter{client: client, rules: rules, prefix: "ratelimit"}
}

func (l *RedisLimiter) Allow(ctx context.Context, scope, key string) (*Decision, error) {
	rule, ok := l.rules[scope]
	if !ok || rule.Limit <= 0 || rule.Window <= 0 {
		return &Decision{Allowed: true}, nil
	}

	redisKey := fmt.Sprintf("%s:%s:%s", l.prefix, scope, key)
	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to check rate limit: %w", err)
	}

	retry := ttl.Val()
	// first hit of the window, or a key that lost its TTL
	if retry < 0 {
		if err := l.client.PExpire(ctx, redisKey, rule.Window).Err(); err != nil {
			return nil, fmt.Errorf("failed to set rate limit window: %w", err)
		}
		retry = rule.Window
	}

	count := int(incr.Val())
	if count <= rule.Limit {
		return &Decision{Allowed: true, Remaining: rule.Limit - count}, nil
	}

	return &Decision{Allowed: false, RetryAfter: retry}, nil
}

// Noop allows everything. Used when Redis is not configured.
type Noop struct{}

func (Noop) Allow(context.Context, string, string) (*Decision, error) {
	return &Decision{Allowed: true}, nil
}
