package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"barn-economy-backend/internal/common/cache"
	"barn-economy-backend/internal/features/auth/models"
	"barn-economy-backend/internal/features/auth/repository"

	"github.com/redis/go-redis/v9"
)

type sessionCache struct {
	cache *cache.JSONCache
	ttl   time.Duration
}

func NewSessionCache(client redis.UniversalClient, ttl time.Duration) repository.SessionCache {
	return &sessionCache{cache: cache.NewJSONCache(client), ttl: ttl}
}

func sessionKey(tokenHash string) string {
	return fmt.Sprintf("session:%s", tokenHash)
}

func (c *sessionCache) Get(ctx context.Context, tokenHash string) (*models.Session, error) {
	var s models.Session
	if err := c.cache.Get(ctx, sessionKey(tokenHash), &s); err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return nil, repository.ErrSessionNotFound
		}
		return nil, err
	}
	return &s, nil
}

// Set caches a session for the configured TTL, never past its expiry.
func (c *sessionCache) Set(ctx context.Context, s *models.Session) error {
	ttl := c.ttl
	if left := time.Until(s.ExpiresAt); left < ttl {
		ttl = left
	}
	if ttl <= 0 {
		return nil
	}
	return c.cache.Set(ctx, sessionKey(s.TokenHash), s, ttl)
}

func (c *sessionCache) Delete(ctx context.Context, tokenHash string) error {
	return c.cache.Delete(ctx, sessionKey(tokenHash))
}
