package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"barn-economy-backend/internal/common/cache"
	"barn-economy-backend/internal/features/leaderboard/models"

	lru "github.com/hashicorp/golang-lru"
)

const (
	keyPrefix     = "leaderboard:"
	standingsKeys = keyPrefix + "standings:"
	generationKey = keyPrefix + "generation"
)

// Cache holds ranked standings per (game type, period) for a short TTL.
type Cache interface {
	Get(ctx context.Context, gameType, period string) (*models.Standings, bool, error)
	// Generation changes on every InvalidateAll. A loader reads it before
	// aggregating and passes it to Set.
	Generation(ctx context.Context) (uint64, error)
	// Set stores standings computed at generation gen. Standings from an
	// older generation are never returned by Get.
	Set(ctx context.Context, gen uint64, s *models.Standings) error
	// InvalidateAll drops every cached period.
	InvalidateAll(ctx context.Context) error
}

func cacheKey(gameType, period string) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, gameType, period)
}

func generationKeyOf(gen uint64, gameType, period string) string {
	return fmt.Sprintf("%s%d:%s:%s", standingsKeys, gen, gameType, period)
}

// RedisCache shares standings across instances. Entries are keyed by a
// generation counter kept in Redis: once any instance invalidates, a load
// that started earlier writes to a key no instance reads.
type RedisCache struct {
	json *cache.JSONCache
	ttl  time.Duration
}

func NewRedisCache(c *cache.JSONCache, ttl time.Duration) *RedisCache {
	return &RedisCache{json: c, ttl: ttl}
}

func (c *RedisCache) Generation(ctx context.Context) (uint64, error) {
	return c.json.Counter(ctx, generationKey)
}

func (c *RedisCache) Get(ctx context.Context, gameType, period string) (*models.Standings, bool, error) {
	gen, err := c.Generation(ctx)
	if err != nil {
		return nil, false, err
	}
	var s models.Standings
	if err := c.json.Get(ctx, generationKeyOf(gen, gameType, period), &s); err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &s, true, nil
}

func (c *RedisCache) Set(ctx context.Context, gen uint64, s *models.Standings) error {
	return c.json.Set(ctx, generationKeyOf(gen, s.GameType, s.Period), s, c.ttl)
}

func (c *RedisCache) InvalidateAll(ctx context.Context) error {
	if _, err := c.json.Incr(ctx, generationKey); err != nil {
		return err
	}
	return c.json.DeletePattern(ctx, standingsKeys+"*")
}

type cachedStandings struct {
	standings *models.Standings
	expires   time.Time
}

// MemoryCache is a per-process LRU used when Redis is not configured.
type MemoryCache struct {
	cache      *lru.Cache
	ttl        time.Duration
	now        func() time.Time
	mu         sync.Mutex
	generation uint64
}

func NewMemoryCache(size int, ttl time.Duration) (*MemoryCache, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create leaderboard cache: %w", err)
	}
	return &MemoryCache{cache: c, ttl: ttl, now: time.Now}, nil
}

func (c *MemoryCache) Get(_ context.Context, gameType, period string) (*models.Standings, bool, error) {
	key := cacheKey(gameType, period)
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	entry, ok := v.(cachedStandings)
	if !ok || !c.now().Before(entry.expires) {
		c.cache.Remove(key)
		return nil, false, nil
	}
	return entry.standings, true, nil
}

func (c *MemoryCache) Generation(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation, nil
}

func (c *MemoryCache) Set(_ context.Context, gen uint64, s *models.Standings) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return nil
	}
	c.cache.Add(cacheKey(s.GameType, s.Period), cachedStandings{standings: s, expires: c.now().Add(c.ttl)})
	return nil
}

func (c *MemoryCache) InvalidateAll(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.cache.Purge()
	return nil
}
