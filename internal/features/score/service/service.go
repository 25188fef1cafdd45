package service

import (
	"context"
	"errors"
	"math/big"
	"time"

	"barn-economy-backend/internal/chain"
	"barn-economy-backend/internal/common/logger"
	"barn-economy-backend/internal/common/ratelimit"
	claimmodels "barn-economy-backend/internal/features/claim/models"
	claimservice "barn-economy-backend/internal/features/claim/service"
	livesmodels "barn-economy-backend/internal/features/lives/models"
	"barn-economy-backend/internal/features/score/models"
	"barn-economy-backend/internal/features/score/repository"
	"barn-economy-backend/internal/features/score/rules"
	"barn-economy-backend/internal/utils/period"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const RateLimitScope = "scores"

var (
	ErrDuplicateSubmission = repository.ErrDuplicateSession
	ErrScoreNotFound       = repository.ErrScoreNotFound
	ErrNotRewardable       = errors.New("score does not qualify for a reward")
)

type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return "score submission rate limit exceeded"
}

// GameEnder closes the player's active game once a score is recorded.
type GameEnder interface {
	EndGame(ctx context.Context, userID string, coins int64, finished bool) (*livesmodels.Status, error)
}

// Invalidator drops cached leaderboard standings.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// RewardPolicy prices a score in token units.
type RewardPolicy struct {
	Enabled bool
	// Delivery is how rewards opened on submit are paid. Signature delivery
	// opens nothing on submit; the client requests an authorization later.
	Delivery claimmodels.Delivery
	PerPoint decimal.Decimal
	Cap      decimal.Decimal
	MinScore int64
	Decimals int32
}

// Amount returns min(score*perPoint, cap) in base units, or nil when the
// score does not earn anything.
func (p RewardPolicy) Amount(score int64) *big.Int {
	if !p.Enabled || score < p.MinScore {
		return nil
	}
	tokens := decimal.NewFromInt(score).Mul(p.PerPoint)
	if p.Cap.IsPositive() && tokens.GreaterThan(p.Cap) {
		tokens = p.Cap
	}
	amount := tokens.Shift(p.Decimals).Truncate(0).BigInt()
	if amount.Sign() <= 0 {
		return nil
	}
	return amount
}

type ScoreService struct {
	repo        repository.Repository
	rules       *rules.Set
	ledger      *claimservice.Ledger
	wallets     claimservice.WalletResolver
	lives       GameEnder
	leaderboard Invalidator
	limiter     ratelimit.Limiter
	clock       period.Clock
	rewards     RewardPolicy
}

type Deps struct {
	Repo        repository.Repository
	Rules       *rules.Set
	Ledger      *claimservice.Ledger
	Wallets     claimservice.WalletResolver
	Lives       GameEnder
	Leaderboard Invalidator
	Limiter     ratelimit.Limiter
	Clock       period.Clock
}

func NewScoreService(deps Deps, rewards RewardPolicy) *ScoreService {
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.Noop{}
	}
	if rewards.Delivery == "" {
		rewards.Delivery = claimmodels.DeliveryTransfer
	}
	return &ScoreService{
		repo:        deps.Repo,
		rules:       deps.Rules,
		ledger:      deps.Ledger,
		wallets:     deps.Wallets,
		lives:       deps.Lives,
		leaderboard: deps.Leaderboard,
		limiter:     deps.Limiter,
		clock:       deps.Clock,
		rewards:     rewards,
	}
}

// Submit validates and records a finished run, then pays its reward. A
// reward that cannot be paid is reported in RewardError and never undoes
// the recorded score.
func (s *ScoreService) Submit(ctx context.Context, userID string, sub *models.Submission) (*models.SubmitResult, error) {
	if sub.Score == nil {
		return nil, ErrMissingScore
	}
	if err := CheckTiming(sub); err != nil {
		return nil, err
	}

	game, ok := s.rules.Get(sub.GameType)
	if !ok {
		return nil, ErrUnknownGameType
	}

	if decision, err := s.limiter.Allow(ctx, RateLimitScope, userID); err != nil {
		logger.Warn().Err(err).Str("user_id", userID).Msg("Rate limiter unavailable, allowing score submission")
	} else if !decision.Allowed {
		return nil, &RateLimitError{RetryAfter: decision.RetryAfter}
	}

	if err := Validate(game, sub); err != nil {
		var rejected *RejectedError
		if errors.As(err, &rejected) {
			ev := logger.Warn().
				Str("user_id", userID).
				Str("game_type", sub.GameType)
			if sub.Score != nil {
				ev = ev.Int64("score", *sub.Score)
			}
			ev.Interface("flags", rejected.Flags).Msg("Score rejected by anti-cheat")
		}
		return nil, err
	}

	now := s.clock.Now()
	score := &models.GameScore{
		ID:                uuid.New().String(),
		UserID:            userID,
		GameType:          sub.GameType,
		Score:             *sub.Score,
		MonthlyProfit:     sub.MonthlyProfit,
		ElapsedMs:         sub.Elapsed().Milliseconds(),
		ValidationData:    sub.ValidationData,
		LeaderboardPeriod: period.Month(now),
		IsValidated:       true,
		GameStartedAt:     sub.GameStartedAt.UTC(),
		GameEndedAt:       sub.GameEndedAt.UTC(),
		CreatedAt:         now,
	}
	if sub.SessionID != "" {
		sid := sub.SessionID
		score.SessionID = &sid
	}
	if d := sub.ValidationData; d != nil && d.Moves != nil {
		moves := d.Moves.Moves
		score.Moves = &moves
	}

	var claim *claimmodels.ClaimTransaction
	if amount := s.rewards.Amount(score.Score); amount != nil && s.rewards.Delivery == claimmodels.DeliveryTransfer {
		claim = s.ledger.Prepare(userID, claimmodels.KindGameReward, amount)
		claim.GameScoreID = &score.ID
	}

	if err := s.repo.Insert(ctx, score, claim); err != nil {
		return nil, err
	}

	logger.Info().
		Str("user_id", userID).
		Str("score_id", score.ID).
		Str("game_type", score.GameType).
		Int64("score", score.Score).
		Str("period", score.LeaderboardPeriod).
		Msg("Score recorded")

	if s.leaderboard != nil {
		if err := s.leaderboard.Invalidate(ctx); err != nil {
			logger.Warn().Err(err).Msg("Failed to invalidate leaderboard cache")
		}
	}
	if s.lives != nil {
		if _, err := s.lives.EndGame(ctx, userID, coinsOf(sub), true); err != nil {
			logger.Warn().Err(err).Str("user_id", userID).Msg("Failed to end active game")
		}
	}

	result := &models.SubmitResult{
		ScoreID:           score.ID,
		Score:             score.Score,
		LeaderboardPeriod: score.LeaderboardPeriod,
	}
	if claim == nil {
		return result, nil
	}

	wallet, err := s.wallets.WalletAddress(ctx, userID)
	if err != nil {
		logger.Error().Err(err).Str("user_id", userID).Msg("Failed to resolve wallet for game reward")
		result.Reward = s.summary(claim)
		result.RewardError = "reward wallet could not be resolved"
		return result, nil
	}

	out := s.ledger.Dispatch(ctx, claim, wallet)
	result.Reward = s.summary(out.Claim)
	result.RewardError = out.RewardError
	return result, nil
}

func coinsOf(sub *models.Submission) int64 {
	if d := sub.ValidationData; d != nil && d.Profit != nil {
		return d.Profit.CoinsCollected
	}
	return sub.MonthlyProfit
}

func (s *ScoreService) summary(c *claimmodels.ClaimTransaction) *models.RewardSummary {
	return &models.RewardSummary{
		ClaimID:     c.ID,
		Amount:      c.Amount.String(),
		TokenAmount: chain.FormatUnits(c.Amount, s.rewards.Decimals),
		Status:      c.Status,
		TxHash:      c.TxHash,
	}
}

// ListMine returns the caller's submissions, newest first.
func (s *ScoreService) ListMine(ctx context.Context, userID string, limit, offset int) (*models.ScoreList, error) {
	scores, total, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	out := &models.ScoreList{Scores: make([]*models.ScoreResponse, 0, len(scores)), Total: total, Limit: limit, Offset: offset}
	for _, sc := range scores {
		out.Scores = append(out.Scores, sc.ToResponse())
	}
	return out, nil
}

// ClaimSignature opens a signature-delivery claim for one of the caller's
// validated, unrewarded scores and signs it.
func (s *ScoreService) ClaimSignature(ctx context.Context, userID, scoreID string) (*claimmodels.SignatureClaim, error) {
	if !s.ledger.SignerEnabled() {
		return nil, claimservice.ErrSignerNotConfigured
	}
	if _, err := uuid.Parse(scoreID); err != nil {
		return nil, ErrScoreNotFound
	}

	score, err := s.repo.GetByID(ctx, scoreID)
	if err != nil {
		return nil, err
	}
	if score.UserID != userID || !score.IsValidated {
		return nil, ErrScoreNotFound
	}

	amount := s.rewards.Amount(score.Score)
	if amount == nil {
		return nil, ErrNotRewardable
	}

	wallet, err := s.wallets.WalletAddress(ctx, userID)
	if err != nil {
		return nil, err
	}

	claim := s.ledger.PrepareSignature(userID, claimmodels.KindGameReward, amount)
	claim.GameScoreID = &score.ID
	if err := s.ledger.Open(ctx, claim); err != nil {
		return nil, err
	}
	return s.ledger.Authorize(claim, wallet)
}
