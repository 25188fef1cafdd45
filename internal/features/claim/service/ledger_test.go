package service

import (
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	"barn-economy-backend/internal/chain"
	"barn-economy-backend/internal/chain/chaintest"
	"barn-economy-backend/internal/features/claim/claimtest"
	"barn-economy-backend/internal/features/claim/models"
	"barn-economy-backend/internal/utils/period"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	userID = "user-1"
	wallet = "0x1111111111111111111111111111111111111111"
)

type staticWallets map[string]string

func (w staticWallets) WalletAddress(_ context.Context, id string) (string, error) {
	addr, ok := w[id]
	if !ok {
		return "", fmt.Errorf("user %s not found", id)
	}
	return addr, nil
}

type recordingSigner struct {
	last chain.ClaimAuthorization
}

func (s *recordingSigner) Sign(auth chain.ClaimAuthorization) (*chain.SignedClaim, error) {
	s.last = auth
	return &chain.SignedClaim{
		Signature: "0xsig",
		Amount:    auth.Amount.String(),
		Nonce:     auth.Nonce.String(),
		Deadline:  auth.Deadline.Unix(),
	}, nil
}

type fixture struct {
	clock   *period.FixedClock
	repo    *claimtest.Repository
	gateway *chaintest.Gateway
	ledger  *Ledger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &period.FixedClock{T: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	repo := claimtest.NewRepository(clock)
	gw := chaintest.New()
	ledger := NewLedger(repo, gw, staticWallets{userID: wallet}, clock, Config{
		TransferTimeout: time.Second,
		TokenDecimals:   18,
	})
	return &fixture{clock: clock, repo: repo, gateway: gw, ledger: ledger}
}

func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func (f *fixture) open(t *testing.T, kind models.Kind, amount *big.Int) *models.ClaimTransaction {
	t.Helper()
	c := f.ledger.Prepare(userID, kind, amount)
	require.NoError(t, f.ledger.Open(context.Background(), c))
	return c
}

func TestDispatchConfirms(t *testing.T) {
	f := newFixture(t)
	c := f.open(t, models.KindDailyBonus, tokens(10))
	assert.Equal(t, models.StatusPending, c.Status)
	assert.Equal(t, f.gateway.Token, c.TokenAddress)

	out := f.ledger.Dispatch(context.Background(), c, wallet)
	require.NotNil(t, out)
	assert.Empty(t, out.RewardError)
	assert.Equal(t, models.StatusConfirmed, out.Claim.Status)
	require.NotNil(t, out.Claim.TxHash)
	require.NotNil(t, out.Claim.ConfirmedAt)

	require.Len(t, f.gateway.Transfers, 1)
	assert.Equal(t, c.ID, f.gateway.Transfers[0].ClaimID)
	assert.Equal(t, wallet, f.gateway.Transfers[0].To)
	assert.Equal(t, 0, tokens(10).Cmp(f.gateway.Transfers[0].Amount))
}

func TestDispatchWithoutGatewayLeavesPending(t *testing.T) {
	f := newFixture(t)
	f.gateway.Disabled = true

	c := f.open(t, models.KindDailyBonus, tokens(10))
	out := f.ledger.Dispatch(context.Background(), c, wallet)

	assert.True(t, out.Pending())
	assert.Equal(t, reasonNotConfigured, out.RewardError)
	assert.Zero(t, f.gateway.TransferCount())

	stored, err := f.repo.GetByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Equal(t, reasonNotConfigured, *stored.ErrorMessage)
}

func TestDispatchNotBroadcastLeavesPending(t *testing.T) {
	f := newFixture(t)
	f.gateway.RejectErr = fmt.Errorf("%w: nonce: dial tcp: connection refused", chain.ErrNotBroadcast)

	c := f.open(t, models.KindGameReward, tokens(1))
	out := f.ledger.Dispatch(context.Background(), c, wallet)

	assert.True(t, out.Pending())
	assert.Contains(t, out.RewardError, "connection refused")

	stored, err := f.repo.GetByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Nil(t, stored.TxHash)
}

func TestDispatchFailureSettlesFailed(t *testing.T) {
	f := newFixture(t)
	f.gateway.RejectErr = fmt.Errorf("insufficient funds for transfer")

	c := f.open(t, models.KindDailyBonus, tokens(10))
	out := f.ledger.Dispatch(context.Background(), c, wallet)

	assert.Equal(t, models.StatusFailed, out.Claim.Status)
	assert.Equal(t, "insufficient funds for transfer", out.RewardError)
	require.NotNil(t, out.Claim.ErrorMessage)
	assert.Nil(t, out.Claim.ConfirmedAt)
}

func TestDispatchSurvivesCallerCancellation(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	c := f.open(t, models.KindDailyBonus, tokens(10))
	cancel()

	out := f.ledger.Dispatch(ctx, c, wallet)
	assert.Equal(t, models.StatusConfirmed, out.Claim.Status)
}

func TestTimeoutAfterBroadcastKeepsHashAndReconciles(t *testing.T) {
	f := newFixture(t)
	hash := "0x" + fmt.Sprintf("%064x", 77)
	f.gateway.TransferErr = chain.ErrPending
	f.gateway.TransferResult = &chain.TransferResult{TxHash: hash}

	c := f.open(t, models.KindDailyBonus, tokens(10))
	out := f.ledger.Dispatch(context.Background(), c, wallet)
	assert.True(t, out.Pending())
	require.NotNil(t, out.Claim.TxHash)
	assert.Equal(t, hash, *out.Claim.TxHash)

	// receipt not yet available
	stats, err := f.ledger.Reconcile(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Checked)
	assert.Zero(t, stats.Confirmed)

	f.gateway.Lookups[hash] = chaintest.LookupResult{Result: &chain.TransferResult{TxHash: hash, BlockNumber: 42}}
	stats, err = f.ledger.Reconcile(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Confirmed)

	stored, err := f.repo.GetByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, stored.Status)
	require.NotNil(t, stored.BlockNumber)
	assert.Equal(t, uint64(42), *stored.BlockNumber)
	assert.Nil(t, stored.ErrorMessage)

	// only the original broadcast
	assert.Equal(t, 1, f.gateway.TransferCount())
}

func TestReconcileReverted(t *testing.T) {
	f := newFixture(t)
	hash := "0x" + fmt.Sprintf("%064x", 9)
	f.gateway.TransferErr = chain.ErrPending
	f.gateway.TransferResult = &chain.TransferResult{TxHash: hash}
	c := f.open(t, models.KindGameReward, tokens(2))
	f.ledger.Dispatch(context.Background(), c, wallet)

	f.gateway.Lookups[hash] = chaintest.LookupResult{Result: &chain.TransferResult{TxHash: hash, BlockNumber: 7}, Err: chain.ErrReverted}
	stats, err := f.ledger.Reconcile(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)

	stored, err := f.repo.GetByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, stored.Status)
}

func TestSettleIsTerminal(t *testing.T) {
	f := newFixture(t)
	c := f.open(t, models.KindDailyBonus, tokens(10))

	_, err := f.ledger.Settle(context.Background(), c.ID, models.Settlement{Status: models.StatusPending})
	require.Error(t, err)

	settled, err := f.ledger.Settle(context.Background(), c.ID, models.Settlement{Status: models.StatusFailed, Error: "boom"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, settled.Status)

	_, err = f.ledger.Settle(context.Background(), c.ID, models.Settlement{Status: models.StatusConfirmed, TxHash: "0xabc"})
	assert.ErrorIs(t, err, ErrInvalidClaimState)

	_, err = f.ledger.Settle(context.Background(), "missing", models.Settlement{Status: models.StatusConfirmed})
	assert.ErrorIs(t, err, ErrClaimNotFound)
}

func TestRetry(t *testing.T) {
	f := newFixture(t)
	f.gateway.Disabled = true
	c := f.open(t, models.KindDailyBonus, tokens(10))
	f.ledger.Dispatch(context.Background(), c, wallet)

	f.gateway.Disabled = false
	out, err := f.ledger.Retry(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, out.Claim.Status)
	assert.Equal(t, 1, f.gateway.TransferCount())
	assert.Equal(t, 1, f.repo.Attempts(c.ID))

	_, err = f.ledger.Retry(context.Background(), c.ID)
	assert.ErrorIs(t, err, ErrInvalidClaimState)
	assert.Equal(t, 1, f.gateway.TransferCount())
}

func TestRetryWithHashReconcilesInsteadOfPaying(t *testing.T) {
	f := newFixture(t)
	hash := "0x" + fmt.Sprintf("%064x", 5)
	f.gateway.TransferErr = chain.ErrPending
	f.gateway.TransferResult = &chain.TransferResult{TxHash: hash}
	c := f.open(t, models.KindDailyBonus, tokens(10))
	f.ledger.Dispatch(context.Background(), c, wallet)

	f.gateway.TransferErr = nil
	f.gateway.TransferResult = nil
	f.gateway.Lookups[hash] = chaintest.LookupResult{Result: &chain.TransferResult{TxHash: hash, BlockNumber: 3}}

	out, err := f.ledger.Retry(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, out.Claim.Status)
	assert.Equal(t, 1, f.gateway.TransferCount())
}

func TestDispatchLeaseBlocksConcurrentDispatch(t *testing.T) {
	f := newFixture(t)
	c := f.open(t, models.KindDailyBonus, tokens(10))

	acquired, err := f.repo.AcquireDispatch(context.Background(), c.ID, time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	out := f.ledger.Dispatch(context.Background(), c, wallet)
	assert.True(t, out.Pending())
	assert.Equal(t, ErrDispatchInProgress.Error(), out.RewardError)
	assert.Zero(t, f.gateway.TransferCount())
}

func TestSendErrorAfterBroadcastKeepsHash(t *testing.T) {
	f := newFixture(t)
	// the node took the transaction but the acknowledgement was lost
	f.gateway.TransferErr = fmt.Errorf("%w: send: connection reset by peer", chain.ErrUnavailable)

	c := f.open(t, models.KindDailyBonus, tokens(10))
	out := f.ledger.Dispatch(context.Background(), c, wallet)
	assert.True(t, out.Pending())
	assert.Equal(t, reasonAwaiting, out.RewardError)
	require.NotNil(t, out.Claim.TxHash)
	hash := *out.Claim.TxHash

	stored, err := f.repo.GetByID(context.Background(), c.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.TxHash)
	assert.Equal(t, hash, *stored.TxHash)

	f.gateway.TransferErr = nil
	f.clock.Advance(time.Hour)

	out = f.ledger.Dispatch(context.Background(), stored, wallet)
	assert.Equal(t, ErrDispatchInProgress.Error(), out.RewardError)

	out, err = f.ledger.Retry(context.Background(), c.ID)
	require.NoError(t, err)
	assert.True(t, out.Pending())

	f.gateway.Lookups[hash] = chaintest.LookupResult{Result: &chain.TransferResult{TxHash: hash, BlockNumber: 11}}
	out, err = f.ledger.Retry(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, out.Claim.Status)

	assert.Equal(t, 1, f.gateway.BroadcastsFor(c.ID))
	assert.Equal(t, 1, f.repo.Attempts(c.ID))
}

func TestCrashAfterBroadcastIsReconciledNotResent(t *testing.T) {
	f := newFixture(t)
	f.gateway.CrashAfterBroadcast = true

	c := f.open(t, models.KindGameReward, tokens(3))
	assert.Panics(t, func() {
		f.ledger.Dispatch(context.Background(), c, wallet)
	})

	// restarted process: the lease has lapsed and the gateway works again
	f.gateway.CrashAfterBroadcast = false
	f.clock.Advance(time.Hour)

	stored, err := f.repo.GetByID(context.Background(), c.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.TxHash)
	hash := *stored.TxHash

	out, err := f.ledger.Retry(context.Background(), c.ID)
	require.NoError(t, err)
	assert.True(t, out.Pending())
	assert.Equal(t, 1, f.gateway.BroadcastsFor(c.ID))

	f.gateway.Lookups[hash] = chaintest.LookupResult{Result: &chain.TransferResult{TxHash: hash, BlockNumber: 12}}
	stats, err := f.ledger.Reconcile(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Confirmed)
	assert.Equal(t, 1, f.gateway.BroadcastsFor(c.ID))
}

func TestOnlyUnsentTransfersAreDispatchedAgain(t *testing.T) {
	cases := []struct {
		name       string
		reject     error
		transfer   error
		broadcasts int
		hashKept   bool
	}{
		{name: "not broadcast", reject: fmt.Errorf("%w: gas estimation: timeout", chain.ErrNotBroadcast), broadcasts: 1},
		{name: "deadline after broadcast", transfer: context.DeadlineExceeded, broadcasts: 1, hashKept: true},
		{name: "unavailable after broadcast", transfer: chain.ErrUnavailable, broadcasts: 1, hashKept: true},
		{name: "pending", transfer: chain.ErrPending, broadcasts: 1, hashKept: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.gateway.RejectErr = tc.reject
			f.gateway.TransferErr = tc.transfer

			c := f.open(t, models.KindDailyBonus, tokens(1))
			out := f.ledger.Dispatch(context.Background(), c, wallet)
			assert.True(t, out.Pending())

			stored, err := f.repo.GetByID(context.Background(), c.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.hashKept, stored.TxHash != nil)

			f.gateway.RejectErr = nil
			f.gateway.TransferErr = nil
			_, err = f.ledger.Retry(context.Background(), c.ID)
			require.NoError(t, err)
			_, err = f.ledger.Retry(context.Background(), c.ID)
			if tc.hashKept {
				require.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidClaimState)
			}
			assert.Equal(t, tc.broadcasts, f.gateway.BroadcastsFor(c.ID))
		})
	}
}

func TestGetIsOwnerScoped(t *testing.T) {
	f := newFixture(t)
	c := f.open(t, models.KindDailyBonus, tokens(10))

	resp, err := f.ledger.Get(context.Background(), userID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "10", resp.TokenAmount)
	assert.Equal(t, tokens(10).String(), resp.Amount)

	_, err = f.ledger.Get(context.Background(), "someone-else", c.ID)
	assert.ErrorIs(t, err, ErrClaimNotFound)

	_, err = f.ledger.Get(context.Background(), userID, "not-a-uuid")
	assert.ErrorIs(t, err, ErrClaimNotFound)
}

func TestListPaginates(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.open(t, models.KindGameReward, tokens(int64(i+1)))
		f.clock.Advance(time.Minute)
	}

	page, err := f.ledger.List(context.Background(), userID, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Claims, 2)
	assert.Equal(t, "3", page.Claims[0].TokenAmount)

	page, err = f.ledger.List(context.Background(), userID, 2, 2)
	require.NoError(t, err)
	require.Len(t, page.Claims, 1)
	assert.Equal(t, "1", page.Claims[0].TokenAmount)
}

func TestAuthorizeSignatureClaim(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.Authorize(f.ledger.PrepareSignature(userID, models.KindDailyBonus, tokens(10)), wallet)
	assert.ErrorIs(t, err, ErrSignerNotConfigured)

	signer := &recordingSigner{}
	f.ledger.WithSigner(signer)

	c := f.ledger.PrepareSignature(userID, models.KindGameReward, tokens(5))
	require.NoError(t, f.ledger.Open(context.Background(), c))
	assert.Equal(t, models.DeliverySignature, c.Delivery)
	require.NotNil(t, c.SignatureDeadline)
	assert.Equal(t, f.clock.Now().Add(time.Hour), *c.SignatureDeadline)

	signed, err := f.ledger.Authorize(c, wallet)
	require.NoError(t, err)
	assert.Equal(t, c.ID, signed.ClaimID)
	assert.Equal(t, "5", signed.TokenAmount)
	assert.Equal(t, chain.ClaimTypeGameReward, signer.last.ClaimType)

	nonce, err := chain.NonceFromClaimID(c.ID)
	require.NoError(t, err)
	assert.Equal(t, nonce.String(), signed.Nonce)

	// signature claims are never transferred by the server
	out := f.ledger.Dispatch(context.Background(), c, wallet)
	assert.True(t, out.Pending())
	assert.Zero(t, f.gateway.TransferCount())
}
