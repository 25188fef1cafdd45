package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"barn-economy-backend/internal/common/logger"
	"barn-economy-backend/internal/common/ratelimit"
	claimmodels "barn-economy-backend/internal/features/claim/models"
	claimservice "barn-economy-backend/internal/features/claim/service"
	"barn-economy-backend/internal/features/streak/models"
	"barn-economy-backend/internal/features/streak/repository"
	"barn-economy-backend/internal/utils/period"

	"github.com/google/uuid"
)

const RateLimitScope = "daily_bonus"

var ErrUserNotFound = repository.ErrUserNotFound

// CooldownError is returned when the last confirmed daily bonus is more
// recent than the cooldown window.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("daily bonus cooldown active for %s", e.Remaining)
}

type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return "daily bonus rate limit exceeded"
}

type Config struct {
	Rewards        Rewards
	CooldownWindow time.Duration
	TokenDecimals  int32
}

type DailyBonusService struct {
	repo    repository.Repository
	ledger  *claimservice.Ledger
	limiter ratelimit.Limiter
	wallets claimservice.WalletResolver
	clock   period.Clock
	cfg     Config
}

func NewDailyBonusService(
	repo repository.Repository,
	ledger *claimservice.Ledger,
	limiter ratelimit.Limiter,
	wallets claimservice.WalletResolver,
	clock period.Clock,
	cfg Config,
) *DailyBonusService {
	if limiter == nil {
		limiter = ratelimit.Noop{}
	}
	return &DailyBonusService{repo: repo, ledger: ledger, limiter: limiter, wallets: wallets, clock: clock, cfg: cfg}
}

// Status reports the streak and what the next claim would pay.
func (s *DailyBonusService) Status(ctx context.Context, userID string) (*models.StreakStatus, error) {
	now := s.clock.Now()
	today := period.Day(now)

	state, err := s.repo.GetState(ctx, userID, today)
	if err != nil {
		return nil, err
	}

	status := &models.StreakStatus{
		StreakCount:   state.StreakCount,
		LastClaimDate: state.LastClaimDate,
		ClaimedToday:  state.ClaimedToday,
	}

	next, err := NextStreakDay(state.LastClaimDate, state.StreakCount, today)
	if errors.Is(err, ErrAlreadyClaimed) || state.ClaimedToday {
		// tomorrow continues the streak
		next = state.StreakCount%CycleLength + 1
		at := period.StartOfNextDay(now)
		status.NextClaimAt = &at
	} else if err != nil {
		return nil, err
	}

	if status.NextClaimAt == nil {
		last, err := s.ledger.LastConfirmedAt(ctx, userID, claimmodels.KindDailyBonus)
		if err != nil {
			return nil, err
		}
		if last != nil && now.Sub(*last) < s.cfg.CooldownWindow {
			at := last.Add(s.cfg.CooldownWindow)
			status.NextClaimAt = &at
		}
	}

	amount := s.cfg.Rewards.ForDay(next)
	status.NextStreakDay = next
	status.NextReward = amount.String()
	status.NextRewardTokens = formatTokens(amount, s.cfg.TokenDecimals)
	return status, nil
}

// checkGates evaluates eligibility in order: today's daily row, the
// cooldown since the last confirmed daily claim, then the rate limit.
func (s *DailyBonusService) checkGates(ctx context.Context, userID string, now time.Time) error {
	state, err := s.repo.GetState(ctx, userID, period.Day(now))
	if err != nil {
		return err
	}
	if state.ClaimedToday {
		return ErrAlreadyClaimed
	}

	last, err := s.ledger.LastConfirmedAt(ctx, userID, claimmodels.KindDailyBonus)
	if err != nil {
		return err
	}
	if last != nil {
		if elapsed := now.Sub(*last); elapsed < s.cfg.CooldownWindow {
			return &CooldownError{Remaining: s.cfg.CooldownWindow - elapsed}
		}
	}

	decision, err := s.limiter.Allow(ctx, RateLimitScope, userID)
	if err != nil {
		// limiter outage must not lock players out
		logger.Warn().Err(err).Str("user_id", userID).Msg("Rate limiter unavailable, allowing daily bonus")
		return nil
	}
	if !decision.Allowed {
		return &RateLimitError{RetryAfter: decision.RetryAfter}
	}
	return nil
}

// record consumes today's eligibility and opens the claim in one store
// transaction.
func (s *DailyBonusService) record(ctx context.Context, userID string, now time.Time, delivery claimmodels.Delivery) (*models.DailyClaim, *claimmodels.ClaimTransaction, error) {
	today := period.Day(now)
	daily, claim, err := s.repo.Claim(ctx, userID, today, func(state *models.State) (*models.DailyClaim, *claimmodels.ClaimTransaction, error) {
		day, err := NextStreakDay(state.LastClaimDate, state.StreakCount, today)
		if err != nil {
			return nil, nil, err
		}
		amount := s.cfg.Rewards.ForDay(day)
		var claim *claimmodels.ClaimTransaction
		if delivery == claimmodels.DeliverySignature {
			claim = s.ledger.PrepareSignature(userID, claimmodels.KindDailyBonus, amount)
		} else {
			claim = s.ledger.Prepare(userID, claimmodels.KindDailyBonus, amount)
		}
		return &models.DailyClaim{
			ID:                 uuid.New().String(),
			UserID:             userID,
			ClaimDate:          today,
			Amount:             amount,
			StreakDay:          day,
			ClaimTransactionID: claim.ID,
			CreatedAt:          now,
		}, claim, nil
	})
	if errors.Is(err, repository.ErrAlreadyClaimed) {
		return nil, nil, ErrAlreadyClaimed
	}
	return daily, claim, err
}

// Claim pays today's streak bonus. Eligibility is consumed even when the
// transfer does not go through; the claim then stays pending.
func (s *DailyBonusService) Claim(ctx context.Context, userID string) (*models.DailyBonusResult, error) {
	now := s.clock.Now()
	if err := s.checkGates(ctx, userID, now); err != nil {
		return nil, err
	}

	wallet, err := s.wallets.WalletAddress(ctx, userID)
	if err != nil {
		return nil, err
	}

	daily, claim, err := s.record(ctx, userID, now, claimmodels.DeliveryTransfer)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("user_id", userID).
		Int("streak_day", daily.StreakDay).
		Str("claim_id", claim.ID).
		Msg("Daily bonus claimed")

	out := s.ledger.Dispatch(ctx, claim, wallet)
	return &models.DailyBonusResult{
		ClaimID:     out.Claim.ID,
		Amount:      out.Claim.Amount.String(),
		TokenAmount: formatTokens(out.Claim.Amount, s.cfg.TokenDecimals),
		StreakDay:   daily.StreakDay,
		Status:      string(out.Claim.Status),
		TxHash:      out.Claim.TxHash,
		RewardError: out.RewardError,
	}, nil
}

// ClaimSignature consumes today's eligibility like Claim but returns a
// signed authorization for the client to redeem on-chain.
func (s *DailyBonusService) ClaimSignature(ctx context.Context, userID string) (*claimmodels.SignatureClaim, error) {
	now := s.clock.Now()
	if !s.ledger.SignerEnabled() {
		return nil, claimservice.ErrSignerNotConfigured
	}
	if err := s.checkGates(ctx, userID, now); err != nil {
		return nil, err
	}

	wallet, err := s.wallets.WalletAddress(ctx, userID)
	if err != nil {
		return nil, err
	}

	daily, claim, err := s.record(ctx, userID, now, claimmodels.DeliverySignature)
	if err != nil {
		return nil, err
	}

	signed, err := s.ledger.Authorize(claim, wallet)
	if err != nil {
		logger.Error().Err(err).Str("claim_id", claim.ID).Msg("Failed to sign daily bonus claim")
		return nil, err
	}
	signed.StreakDay = daily.StreakDay
	return signed, nil
}
