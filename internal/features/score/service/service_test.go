package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"barn-economy-backend/internal/chain"
	"barn-economy-backend/internal/chain/chaintest"
	"barn-economy-backend/internal/features/claim/claimtest"
	claimmodels "barn-economy-backend/internal/features/claim/models"
	claimservice "barn-economy-backend/internal/features/claim/service"
	livesmodels "barn-economy-backend/internal/features/lives/models"
	"barn-economy-backend/internal/features/score/models"
	"barn-economy-backend/internal/features/score/repository"
	"barn-economy-backend/internal/features/score/rules"
	"barn-economy-backend/internal/utils/period"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	userID = "user-1"
	wallet = "0x1111111111111111111111111111111111111111"
)

type memoryRepo struct {
	mu       sync.Mutex
	claims   *claimtest.Repository
	scores   map[string]*models.GameScore
	sessions map[string]bool
}

func newMemoryRepo(claims *claimtest.Repository) *memoryRepo {
	return &memoryRepo{claims: claims, scores: map[string]*models.GameScore{}, sessions: map[string]bool{}}
}

func (r *memoryRepo) Insert(ctx context.Context, s *models.GameScore, claim *claimmodels.ClaimTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.SessionID != nil {
		key := s.UserID + "|" + *s.SessionID
		if r.sessions[key] {
			return repository.ErrDuplicateSession
		}
		r.sessions[key] = true
	}
	cp := *s
	r.scores[s.ID] = &cp
	if claim != nil {
		return r.claims.Create(ctx, claim)
	}
	return nil
}

func (r *memoryRepo) GetByID(_ context.Context, id string) (*models.GameScore, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.scores[id]
	if !ok {
		return nil, repository.ErrScoreNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memoryRepo) ListByUser(_ context.Context, userID string, limit, offset int) ([]*models.GameScore, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []*models.GameScore
	for _, s := range r.scores {
		if s.UserID == userID {
			all = append(all, s)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

type endedGame struct {
	coins    int64
	finished bool
}

type fakeLives struct {
	mu    sync.Mutex
	ended []endedGame
}

func (l *fakeLives) EndGame(_ context.Context, _ string, coins int64, finished bool) (*livesmodels.Status, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ended = append(l.ended, endedGame{coins, finished})
	return &livesmodels.Status{}, nil
}

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.calls++
	return nil
}

type staticWallets map[string]string

func (w staticWallets) WalletAddress(_ context.Context, id string) (string, error) {
	if addr, ok := w[id]; ok {
		return addr, nil
	}
	return "", errors.New("no wallet")
}

type stubSigner struct{}

func (stubSigner) Sign(auth chain.ClaimAuthorization) (*chain.SignedClaim, error) {
	return &chain.SignedClaim{Signature: "0xsig", Amount: auth.Amount.String(), Nonce: auth.Nonce.String()}, nil
}

type fixture struct {
	clock   *period.FixedClock
	claims  *claimtest.Repository
	repo    *memoryRepo
	gateway *chaintest.Gateway
	ledger  *claimservice.Ledger
	lives   *fakeLives
	cache   *countingInvalidator
	service *ScoreService
}

func newFixture(t *testing.T, rewards RewardPolicy) *fixture {
	t.Helper()
	clock := &period.FixedClock{T: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	claims := claimtest.NewRepository(clock)
	gw := chaintest.New()
	wallets := staticWallets{userID: wallet}
	ledger := claimservice.NewLedger(claims, gw, wallets, clock, claimservice.Config{TransferTimeout: time.Second, TokenDecimals: rewards.Decimals})
	set, err := rules.Default()
	require.NoError(t, err)

	f := &fixture{
		clock:   clock,
		claims:  claims,
		repo:    newMemoryRepo(claims),
		gateway: gw,
		ledger:  ledger,
		lives:   &fakeLives{},
		cache:   &countingInvalidator{},
	}
	f.service = NewScoreService(Deps{
		Repo:        f.repo,
		Rules:       set,
		Ledger:      ledger,
		Wallets:     wallets,
		Lives:       f.lives,
		Leaderboard: f.cache,
		Clock:       clock,
	}, rewards)
	return f
}

func defaultRewards() RewardPolicy {
	return RewardPolicy{
		Enabled:  true,
		PerPoint: decimal.RequireFromString("0.01"),
		Cap:      decimal.RequireFromString("100"),
		MinScore: 100,
		Decimals: 18,
	}
}

func (f *fixture) barnRun(score int64, session string) *models.Submission {
	started := f.clock.Now().Add(-5 * time.Minute)
	return &models.Submission{
		GameType:       "barn",
		Score:          &score,
		MonthlyProfit:  2500,
		SessionID:      session,
		GameStartedAt:  started,
		GameEndedAt:    f.clock.Now(),
		ValidationData: &models.ValidationData{Kind: rules.VariantProfit, Profit: &models.ProfitData{CoinsCollected: 40, Matches: 3}},
	}
}

func TestRewardPolicyAmount(t *testing.T) {
	p := defaultRewards()
	assert.Nil(t, p.Amount(99))
	assert.Equal(t, "1000000000000000000", p.Amount(100).String())
	assert.Equal(t, "12500000000000000000", p.Amount(1250).String())
	// capped at 100 tokens
	assert.Equal(t, "100000000000000000000", p.Amount(50000).String())

	p.Enabled = false
	assert.Nil(t, p.Amount(1000))
}

func TestSubmitRecordsScoreAndPaysReward(t *testing.T) {
	f := newFixture(t, defaultRewards())

	res, err := f.service.Submit(context.Background(), userID, f.barnRun(1250, "run-1"))
	require.NoError(t, err)
	assert.Equal(t, int64(1250), res.Score)
	assert.Equal(t, "2025-03", res.LeaderboardPeriod)
	assert.Empty(t, res.RewardError)
	require.NotNil(t, res.Reward)
	assert.Equal(t, claimmodels.StatusConfirmed, res.Reward.Status)
	assert.Equal(t, "12.5", res.Reward.TokenAmount)

	stored, err := f.repo.GetByID(context.Background(), res.ScoreID)
	require.NoError(t, err)
	assert.True(t, stored.IsValidated)
	assert.Equal(t, int64(5*60*1000), stored.ElapsedMs)

	assert.Equal(t, 1, f.cache.calls)
	require.Len(t, f.lives.ended, 1)
	assert.Equal(t, endedGame{coins: 40, finished: true}, f.lives.ended[0])

	claim, err := f.claims.GetByID(context.Background(), res.Reward.ClaimID)
	require.NoError(t, err)
	require.NotNil(t, claim.GameScoreID)
	assert.Equal(t, res.ScoreID, *claim.GameScoreID)
}

func TestSubmitBelowMinScoreHasNoReward(t *testing.T) {
	f := newFixture(t, defaultRewards())
	res, err := f.service.Submit(context.Background(), userID, f.barnRun(50, ""))
	require.NoError(t, err)
	assert.Nil(t, res.Reward)
	assert.Zero(t, f.gateway.TransferCount())
}

func TestSubmitInvalidTimingBeforeValidation(t *testing.T) {
	f := newFixture(t, defaultRewards())
	sub := f.barnRun(1_000_000_000, "run-1")
	sub.GameEndedAt = sub.GameStartedAt

	_, err := f.service.Submit(context.Background(), userID, sub)
	assert.ErrorIs(t, err, ErrInvalidTiming)

	var rejected *RejectedError
	assert.False(t, errors.As(err, &rejected))
	assert.Zero(t, f.cache.calls)
}

func TestSubmitDuplicateSession(t *testing.T) {
	f := newFixture(t, defaultRewards())
	_, err := f.service.Submit(context.Background(), userID, f.barnRun(500, "run-1"))
	require.NoError(t, err)

	_, err = f.service.Submit(context.Background(), userID, f.barnRun(900, "run-1"))
	assert.ErrorIs(t, err, ErrDuplicateSubmission)

	// other users may reuse a session id
	f.service.wallets = staticWallets{userID: wallet, "user-2": wallet}
	_, err = f.service.Submit(context.Background(), "user-2", f.barnRun(500, "run-1"))
	require.NoError(t, err)

	// submissions without a session id are never deduplicated
	_, err = f.service.Submit(context.Background(), userID, f.barnRun(500, ""))
	require.NoError(t, err)
	_, err = f.service.Submit(context.Background(), userID, f.barnRun(500, ""))
	require.NoError(t, err)
}

func TestSubmitRejectedByAntiCheat(t *testing.T) {
	f := newFixture(t, defaultRewards())
	sub := f.barnRun(100, "run-1")
	sub.GameStartedAt = sub.GameEndedAt.Add(-2 * time.Second)

	_, err := f.service.Submit(context.Background(), userID, sub)
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Contains(t, rejected.Flags, FlagTooFast)

	list, err := f.service.ListMine(context.Background(), userID, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, list.Total)
}

func TestSubmitWithoutScore(t *testing.T) {
	f := newFixture(t, defaultRewards())
	sub := f.barnRun(100, "")
	sub.Score = nil

	_, err := f.service.Submit(context.Background(), userID, sub)
	assert.ErrorIs(t, err, ErrMissingScore)

	list, err := f.service.ListMine(context.Background(), userID, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, list.Total)
}

func TestSubmitUnknownGameType(t *testing.T) {
	f := newFixture(t, defaultRewards())
	sub := f.barnRun(100, "")
	sub.GameType = "chess"
	_, err := f.service.Submit(context.Background(), userID, sub)
	assert.ErrorIs(t, err, ErrUnknownGameType)
}

func TestSubmitWithGatewayDown(t *testing.T) {
	f := newFixture(t, defaultRewards())
	f.gateway.RejectErr = chain.ErrNotBroadcast

	res, err := f.service.Submit(context.Background(), userID, f.barnRun(1250, "run-1"))
	require.NoError(t, err)
	assert.NotEmpty(t, res.RewardError)
	require.NotNil(t, res.Reward)
	assert.Equal(t, claimmodels.StatusPending, res.Reward.Status)

	claim, err := f.claims.GetByID(context.Background(), res.Reward.ClaimID)
	require.NoError(t, err)
	assert.NotEqual(t, claimmodels.StatusConfirmed, claim.Status)

	// the score itself was recorded
	_, err = f.repo.GetByID(context.Background(), res.ScoreID)
	require.NoError(t, err)
}

func TestSubmitWithSignatureDeliveryOpensNoClaim(t *testing.T) {
	rewards := defaultRewards()
	rewards.Delivery = claimmodels.DeliverySignature
	f := newFixture(t, rewards)
	f.ledger.WithSigner(stubSigner{})

	res, err := f.service.Submit(context.Background(), userID, f.barnRun(1250, "run-1"))
	require.NoError(t, err)
	assert.Nil(t, res.Reward)

	signed, err := f.service.ClaimSignature(context.Background(), userID, res.ScoreID)
	require.NoError(t, err)
	assert.Equal(t, "12.5", signed.TokenAmount)
	assert.Equal(t, claimmodels.KindGameReward, signed.ClaimType)

	_, err = f.service.ClaimSignature(context.Background(), userID, res.ScoreID)
	assert.ErrorIs(t, err, claimservice.ErrAlreadyClaimed)

	_, err = f.service.ClaimSignature(context.Background(), "user-2", res.ScoreID)
	assert.ErrorIs(t, err, ErrScoreNotFound)
}

func TestClaimSignatureForAlreadyRewardedScore(t *testing.T) {
	f := newFixture(t, defaultRewards())
	f.ledger.WithSigner(stubSigner{})

	res, err := f.service.Submit(context.Background(), userID, f.barnRun(1250, "run-1"))
	require.NoError(t, err)

	_, err = f.service.ClaimSignature(context.Background(), userID, res.ScoreID)
	assert.ErrorIs(t, err, claimservice.ErrAlreadyClaimed)

	low, err := f.service.Submit(context.Background(), userID, f.barnRun(10, "run-2"))
	require.NoError(t, err)
	_, err = f.service.ClaimSignature(context.Background(), userID, low.ScoreID)
	assert.ErrorIs(t, err, ErrNotRewardable)
}

func TestListMine(t *testing.T) {
	f := newFixture(t, RewardPolicy{})
	for i := 0; i < 3; i++ {
		_, err := f.service.Submit(context.Background(), userID, f.barnRun(int64(100*(i+1)), ""))
		require.NoError(t, err)
		f.clock.Advance(time.Minute)
	}

	list, err := f.service.ListMine(context.Background(), userID, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, list.Total)
	require.Len(t, list.Scores, 2)
	assert.Equal(t, int64(300), list.Scores[0].Score)
}
