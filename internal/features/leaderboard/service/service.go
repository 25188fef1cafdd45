package service

import (
	"context"
	"errors"

	"barn-economy-backend/internal/common/logger"
	"barn-economy-backend/internal/features/leaderboard/models"
	"barn-economy-backend/internal/features/leaderboard/repository"
	"barn-economy-backend/internal/features/score/rules"
	"barn-economy-backend/internal/utils/period"

	"golang.org/x/sync/singleflight"
)

var (
	ErrUnknownGameType = errors.New("unknown game type")
	ErrInvalidPeriod   = errors.New("period must be YYYY-MM")
)

type Config struct {
	DefaultGameType string
}

type LeaderboardService struct {
	repo  repository.Repository
	cache Cache
	rules *rules.Set
	clock period.Clock
	cfg   Config

	group singleflight.Group
}

func NewLeaderboardService(repo repository.Repository, cache Cache, set *rules.Set, clock period.Clock, cfg Config) *LeaderboardService {
	return &LeaderboardService{repo: repo, cache: cache, rules: set, clock: clock, cfg: cfg}
}

func (s *LeaderboardService) resolve(gameType, p string) (string, string, rules.Variant, error) {
	if gameType == "" {
		gameType = s.cfg.DefaultGameType
	}
	variant, ok := s.rules.VariantOf(gameType)
	if !ok {
		return "", "", "", ErrUnknownGameType
	}
	if p == "" {
		p = period.Month(s.clock.Now())
	} else if _, err := period.ParseMonth(p); err != nil {
		return "", "", "", ErrInvalidPeriod
	}
	return gameType, p, variant, nil
}

// Standings returns the ranked period, from cache when fresh. Concurrent
// misses for the same key share one aggregation.
func (s *LeaderboardService) Standings(ctx context.Context, gameType, p string) (*models.Standings, error) {
	gameType, p, variant, err := s.resolve(gameType, p)
	if err != nil {
		return nil, err
	}

	if cached, ok, err := s.cache.Get(ctx, gameType, p); err != nil {
		logger.Warn().Err(err).Str("game_type", gameType).Str("period", p).Msg("Leaderboard cache read failed")
	} else if ok {
		return cached, nil
	}

	v, err, _ := s.group.Do(cacheKey(gameType, p), func() (interface{}, error) {
		// shared by every waiter, so not bound to the first caller
		ctx := context.WithoutCancel(ctx)
		gen, genErr := s.cache.Generation(ctx)
		if genErr != nil {
			logger.Warn().Err(genErr).Msg("Leaderboard cache generation unavailable, result not cached")
		}
		aggs, err := s.repo.Aggregate(ctx, gameType, p)
		if err != nil {
			return nil, err
		}
		standings := &models.Standings{
			GameType:   gameType,
			Period:     p,
			Variant:    string(variant),
			Stats:      statsOf(aggs),
			Entries:    Rank(variant, aggs),
			ComputedAt: s.clock.Now(),
		}
		if genErr == nil {
			if err := s.cache.Set(ctx, gen, standings); err != nil {
				logger.Warn().Err(err).Str("game_type", gameType).Str("period", p).Msg("Leaderboard cache write failed")
			}
		}
		return standings, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Standings), nil
}

// Get returns one page of the leaderboard and, for an authenticated
// caller, their own entry.
func (s *LeaderboardService) Get(ctx context.Context, q models.Query) (*models.Leaderboard, error) {
	standings, err := s.Standings(ctx, q.GameType, q.Period)
	if err != nil {
		return nil, err
	}

	total := len(standings.Entries)
	start := q.Offset
	if start > total {
		start = total
	}
	end := start + q.Limit
	if end > total {
		end = total
	}

	out := &models.Leaderboard{
		GameType:   standings.GameType,
		Period:     standings.Period,
		Variant:    standings.Variant,
		Entries:    make([]models.Entry, 0, end-start),
		Pagination: models.Pagination{Limit: q.Limit, Offset: q.Offset, Total: total},
	}
	for _, e := range standings.Entries[start:end] {
		out.Entries = append(out.Entries, e.Entry)
	}
	if q.UserID != "" {
		out.UserRank = findUser(standings, q.UserID)
	}
	if q.Stats {
		stats := standings.Stats
		out.Stats = &stats
	}
	return out, nil
}

// UserRank returns the user's entry in a period, or nil when they have no
// validated score there.
func (s *LeaderboardService) UserRank(ctx context.Context, userID, gameType, p string) (*models.Entry, error) {
	standings, err := s.Standings(ctx, gameType, p)
	if err != nil {
		return nil, err
	}
	return findUser(standings, userID), nil
}

func findUser(s *models.Standings, userID string) *models.Entry {
	for i := range s.Entries {
		if s.Entries[i].UserID == userID {
			e := s.Entries[i].Entry
			return &e
		}
	}
	return nil
}

// Invalidate drops all cached standings. Called after every accepted score.
func (s *LeaderboardService) Invalidate(ctx context.Context) error {
	return s.cache.InvalidateAll(ctx)
}

func (s *LeaderboardService) GameTypes() []string {
	return s.rules.GameTypes()
}
