package service

import (
	"context"
	"fmt"
	"time"

	"barn-economy-backend/internal/common/logger"
	"barn-economy-backend/internal/features/lives/models"
	"barn-economy-backend/internal/features/lives/repository"
	"barn-economy-backend/internal/utils/period"

	"github.com/google/uuid"
)

// LivesService serializes every read-modify-write through the repository's
// row lock and re-derives regeneration on each call.
type LivesService struct {
	repo         repository.Repository
	policy       Policy
	passDuration time.Duration
	clock        period.Clock
}

func NewLivesService(repo repository.Repository, policy Policy, passDuration time.Duration, clock period.Clock) *LivesService {
	return &LivesService{repo: repo, policy: policy, passDuration: passDuration, clock: clock}
}

func (s *LivesService) Policy() Policy {
	return s.policy
}

func (s *LivesService) init(userID string, now time.Time) func() *models.ResourceState {
	return func() *models.ResourceState { return s.policy.NewState(userID, now) }
}

func (s *LivesService) GetStatus(ctx context.Context, userID string) (*models.Status, error) {
	now := s.clock.Now()
	var status *models.Status
	err := s.repo.Mutate(ctx, userID, s.init(userID, now), func(st *models.ResourceState) error {
		s.policy.Derive(st, now)
		status = s.policy.Status(st, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}

// Consume spends a life or attempt to start a game.
func (s *LivesService) Consume(ctx context.Context, userID string) (*models.ConsumeResult, error) {
	now := s.clock.Now()
	var result *models.ConsumeResult
	err := s.repo.Mutate(ctx, userID, s.init(userID, now), func(st *models.ResourceState) error {
		var err error
		result, err = s.policy.Consume(st, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Debug().
		Str("user_id", userID).
		Int("lives_remaining", result.LivesRemaining).
		Bool("free_play", result.FreePlay).
		Msg("Game started")
	return result, nil
}

func (s *LivesService) Grant(ctx context.Context, userID string, amount int) (*models.Status, error) {
	now := s.clock.Now()
	var status *models.Status
	err := s.repo.Mutate(ctx, userID, s.init(userID, now), func(st *models.ResourceState) error {
		if err := s.policy.Grant(st, amount, now); err != nil {
			return err
		}
		status = s.policy.Status(st, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}

func (s *LivesService) GrantPass(ctx context.Context, userID string, d time.Duration) (*models.Status, error) {
	now := s.clock.Now()
	var status *models.Status
	err := s.repo.Mutate(ctx, userID, s.init(userID, now), func(st *models.ResourceState) error {
		if err := s.policy.GrantPass(st, d, now); err != nil {
			return err
		}
		status = s.policy.Status(st, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}

// EndGame clears the active game flag. finished records a completed match
// with the coins it collected.
func (s *LivesService) EndGame(ctx context.Context, userID string, coins int64, finished bool) (*models.Status, error) {
	now := s.clock.Now()
	var status *models.Status
	err := s.repo.Mutate(ctx, userID, s.init(userID, now), func(st *models.ResourceState) error {
		s.policy.EndGame(st, coins, finished, now)
		status = s.policy.Status(st, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}

// ApplyPurchase credits a confirmed payment exactly once per reference.
// Quantity counts lives/attempts, or whole pass durations for a pass.
func (s *LivesService) ApplyPurchase(ctx context.Context, p *models.Purchase) error {
	if !p.Kind.Valid() {
		return fmt.Errorf("unknown purchase kind %q", p.Kind)
	}
	if p.Quantity <= 0 {
		return ErrInvalidAmount
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	now := s.clock.Now()
	return s.repo.ApplyPurchase(ctx, p, s.init(p.UserID, now), func(st *models.ResourceState) error {
		switch p.Kind {
		case models.PurchasePass:
			return s.policy.GrantPass(st, time.Duration(p.Quantity)*s.passDuration, now)
		default:
			return s.policy.Grant(st, p.Quantity, now)
		}
	})
}
