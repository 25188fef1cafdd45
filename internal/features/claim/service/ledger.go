package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"barn-economy-backend/internal/chain"
	"barn-economy-backend/internal/common/logger"
	"barn-economy-backend/internal/features/claim/models"
	"barn-economy-backend/internal/features/claim/repository"
	"barn-economy-backend/internal/utils/period"

	"github.com/google/uuid"
)

var (
	ErrClaimNotFound       = repository.ErrClaimNotFound
	ErrInvalidClaimState   = repository.ErrInvalidTransition
	ErrAlreadyClaimed      = repository.ErrAlreadyClaimed
	ErrDispatchInProgress  = errors.New("claim dispatch already in progress")
	ErrSignerNotConfigured = errors.New("claim signer not configured")
)

const (
	reasonNotConfigured = "reward gateway not configured"
	reasonAwaiting      = "transfer broadcast, awaiting confirmation"
	reasonSignature     = "claim is redeemed with a signed authorization"
)

// WalletResolver returns a user's payout address.
type WalletResolver interface {
	WalletAddress(ctx context.Context, userID string) (string, error)
}

// Signer issues EIP-712 authorizations for client-executed claims.
type Signer interface {
	Sign(auth chain.ClaimAuthorization) (*chain.SignedClaim, error)
}

type Config struct {
	TransferTimeout time.Duration
	DispatchLease   time.Duration
	TokenDecimals   int32
	SignatureTTL    time.Duration
}

// Ledger owns the claim lifecycle: open pending, dispatch to the gateway,
// settle once into confirmed or failed.
type Ledger struct {
	repo    repository.Repository
	gateway chain.Gateway
	wallets WalletResolver
	signer  Signer
	clock   period.Clock
	cfg     Config
}

func NewLedger(repo repository.Repository, gateway chain.Gateway, wallets WalletResolver, clock period.Clock, cfg Config) *Ledger {
	if gateway == nil {
		gateway = chain.DisabledGateway{}
	}
	if cfg.DispatchLease <= 0 {
		cfg.DispatchLease = cfg.TransferTimeout + 30*time.Second
	}
	if cfg.SignatureTTL <= 0 {
		cfg.SignatureTTL = time.Hour
	}
	return &Ledger{repo: repo, gateway: gateway, wallets: wallets, clock: clock, cfg: cfg}
}

// WithSigner enables gasless claims. A nil signer leaves them disabled.
func (l *Ledger) WithSigner(s Signer) *Ledger {
	l.signer = s
	return l
}

func (l *Ledger) SignerEnabled() bool {
	return l.signer != nil
}

// Outcome is the result of a dispatch. RewardError is empty only when the
// claim was confirmed.
type Outcome struct {
	Claim       *models.ClaimTransaction
	RewardError string
}

func (o *Outcome) Pending() bool {
	return o.Claim.Status == models.StatusPending
}

// Prepare builds a pending claim without persisting it, for callers that
// insert it inside their own transaction.
func (l *Ledger) Prepare(userID string, kind models.Kind, amount *big.Int) *models.ClaimTransaction {
	now := l.clock.Now()
	return &models.ClaimTransaction{
		ID:           uuid.New().String(),
		UserID:       userID,
		Kind:         kind,
		Delivery:     models.DeliveryTransfer,
		Amount:       new(big.Int).Set(amount),
		TokenAddress: l.gateway.TokenAddress(),
		Status:       models.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// PrepareSignature builds a pending claim redeemed by the client with a
// signed authorization instead of a server transfer.
func (l *Ledger) PrepareSignature(userID string, kind models.Kind, amount *big.Int) *models.ClaimTransaction {
	c := l.Prepare(userID, kind, amount)
	c.Delivery = models.DeliverySignature
	deadline := c.CreatedAt.Add(l.cfg.SignatureTTL).Truncate(time.Second)
	c.SignatureDeadline = &deadline
	return c
}

// Authorize signs a persisted signature-delivery claim. The claim id is the
// on-chain nonce so each row is redeemable once.
func (l *Ledger) Authorize(c *models.ClaimTransaction, recipient string) (*models.SignatureClaim, error) {
	if l.signer == nil {
		return nil, ErrSignerNotConfigured
	}
	if c.Delivery != models.DeliverySignature || c.SignatureDeadline == nil {
		return nil, ErrInvalidClaimState
	}
	nonce, err := chain.NonceFromClaimID(c.ID)
	if err != nil {
		return nil, err
	}

	claimType := chain.ClaimTypeDailyBonus
	if c.Kind == models.KindGameReward {
		claimType = chain.ClaimTypeGameReward
	}
	signed, err := l.signer.Sign(chain.ClaimAuthorization{
		Recipient: recipient,
		Amount:    c.Amount,
		Nonce:     nonce,
		Deadline:  *c.SignatureDeadline,
		ClaimType: claimType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign claim: %w", err)
	}
	return &models.SignatureClaim{
		ClaimID:     c.ID,
		ClaimType:   c.Kind,
		TokenAmount: chain.FormatUnits(c.Amount, l.cfg.TokenDecimals),
		SignedClaim: signed,
	}, nil
}

// Open persists a pending claim.
func (l *Ledger) Open(ctx context.Context, c *models.ClaimTransaction) error {
	if !c.Kind.Valid() {
		return fmt.Errorf("invalid claim kind %q", c.Kind)
	}
	if c.Amount == nil || c.Amount.Sign() < 0 {
		return fmt.Errorf("invalid claim amount")
	}
	return l.repo.Create(ctx, c)
}

// Dispatch invokes the gateway for a pending claim and settles it. It never
// returns an error: transfer problems end up in Outcome.RewardError and on
// the claim row. The signed tx hash is stored before broadcast, so only a
// claim the gateway never sent stays open for another dispatch.
func (l *Ledger) Dispatch(ctx context.Context, c *models.ClaimTransaction, recipient string) *Outcome {
	// writes after the transfer must land even if the caller went away
	wctx := context.WithoutCancel(ctx)
	log := logger.With("claim_ledger")

	if c.Delivery != models.DeliveryTransfer {
		return &Outcome{Claim: c, RewardError: reasonSignature}
	}
	if !l.gateway.Enabled() {
		l.markPending(wctx, c, reasonNotConfigured, nil)
		return &Outcome{Claim: c, RewardError: reasonNotConfigured}
	}

	acquired, err := l.repo.AcquireDispatch(wctx, c.ID, l.cfg.DispatchLease)
	if err != nil {
		log.Error().Err(err).Str("claim_id", c.ID).Msg("Failed to acquire dispatch lease")
		return &Outcome{Claim: c, RewardError: "reward transfer could not be started"}
	}
	if !acquired {
		return &Outcome{Claim: c, RewardError: ErrDispatchInProgress.Error()}
	}

	tctx, cancel := context.WithTimeout(wctx, l.cfg.TransferTimeout)
	defer cancel()

	// set once the signed hash is stored; from then on the claim is only
	// resolved by lookup
	var recorded string
	res, err := l.gateway.Transfer(tctx, chain.TransferRequest{
		ClaimID: c.ID,
		To:      recipient,
		Amount:  c.Amount,
		BeforeBroadcast: func(_ context.Context, txHash string) error {
			if err := l.repo.RecordBroadcast(wctx, c.ID, txHash); err != nil {
				return err
			}
			recorded = txHash
			reason := reasonAwaiting
			c.TxHash = &recorded
			c.ErrorMessage = &reason
			return nil
		},
	})
	switch {
	case err == nil:
		return l.settleOutcome(wctx, c, models.Settlement{
			Status:      models.StatusConfirmed,
			TxHash:      res.TxHash,
			BlockNumber: res.BlockNumber,
		})

	case errors.Is(err, chain.ErrReverted):
		s := models.Settlement{Status: models.StatusFailed, Error: err.Error()}
		if res != nil {
			s.TxHash = res.TxHash
			s.BlockNumber = res.BlockNumber
		}
		log.Warn().Err(err).Str("claim_id", c.ID).Msg("Reward transfer reverted")
		return l.settleOutcome(wctx, c, s)

	case recorded != "" || errors.Is(err, chain.ErrPending):
		hash := recorded
		if res != nil && res.TxHash != "" {
			hash = res.TxHash
		}
		if hash == "" {
			// cannot be looked up and must not be sent again
			log.Error().Err(err).Str("claim_id", c.ID).Msg("Gateway reported a broadcast without a hash")
			return l.settleOutcome(wctx, c, models.Settlement{Status: models.StatusFailed, Error: err.Error()})
		}
		if !errors.Is(err, chain.ErrPending) {
			log.Warn().Err(err).Str("claim_id", c.ID).Str("tx_hash", hash).Msg("Transfer error after broadcast, awaiting lookup")
		}
		l.markPending(wctx, c, reasonAwaiting, &hash)
		return &Outcome{Claim: c, RewardError: reasonAwaiting}

	case errors.Is(err, chain.ErrNotBroadcast), errors.Is(err, chain.ErrNotConfigured):
		log.Warn().Err(err).Str("claim_id", c.ID).Msg("Reward transfer not sent, claim left pending")
		l.markPending(wctx, c, err.Error(), nil)
		return &Outcome{Claim: c, RewardError: err.Error()}

	default:
		s := models.Settlement{Status: models.StatusFailed, Error: err.Error()}
		if res != nil {
			s.TxHash = res.TxHash
			s.BlockNumber = res.BlockNumber
		}
		log.Warn().Err(err).Str("claim_id", c.ID).Msg("Reward transfer failed")
		return l.settleOutcome(wctx, c, s)
	}
}

func (l *Ledger) settleOutcome(ctx context.Context, c *models.ClaimTransaction, s models.Settlement) *Outcome {
	settled, err := l.Settle(ctx, c.ID, s)
	if err != nil {
		logger.Error().Err(err).Str("claim_id", c.ID).Str("status", string(s.Status)).Msg("Failed to settle claim")
		if s.TxHash != "" {
			l.markPending(ctx, c, "settlement write failed", &s.TxHash)
		}
		return &Outcome{Claim: c, RewardError: "reward settlement could not be recorded"}
	}

	out := &Outcome{Claim: settled}
	if settled.Status == models.StatusFailed {
		out.RewardError = s.Error
	}
	return out
}

func (l *Ledger) markPending(ctx context.Context, c *models.ClaimTransaction, reason string, txHash *string) {
	if err := l.repo.MarkPending(ctx, c.ID, reason, txHash); err != nil {
		logger.Error().Err(err).Str("claim_id", c.ID).Msg("Failed to record pending reason")
		return
	}
	c.ErrorMessage = &reason
	if txHash != nil {
		c.TxHash = txHash
	}
}

// Settle moves a pending claim to confirmed or failed, exactly once.
func (l *Ledger) Settle(ctx context.Context, id string, s models.Settlement) (*models.ClaimTransaction, error) {
	if !s.Status.Terminal() {
		return nil, fmt.Errorf("settlement status must be terminal, got %q", s.Status)
	}
	c, err := l.repo.Settle(ctx, id, s)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("claim_id", c.ID).
		Str("user_id", c.UserID).
		Str("kind", string(c.Kind)).
		Str("status", string(c.Status)).
		Str("amount", c.Amount.String()).
		Msg("Claim settled")
	return c, nil
}

// Retry re-dispatches a pending transfer claim. Claims that already carry a
// tx hash are reconciled by lookup instead of paying again.
func (l *Ledger) Retry(ctx context.Context, id string) (*Outcome, error) {
	c, err := l.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != models.StatusPending || c.Delivery != models.DeliveryTransfer {
		return nil, ErrInvalidClaimState
	}

	if c.TxHash != nil {
		return l.reconcileOne(ctx, c)
	}

	wallet, err := l.wallets.WalletAddress(ctx, c.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve wallet: %w", err)
	}
	return l.Dispatch(ctx, c, wallet), nil
}

type ReconcileStats struct {
	Checked   int
	Confirmed int
	Failed    int
	Errors    int
}

// Reconcile looks up broadcast transfers that were not confirmed in time.
func (l *Ledger) Reconcile(ctx context.Context, limit int) (*ReconcileStats, error) {
	stats := &ReconcileStats{}
	if !l.gateway.Enabled() {
		return stats, nil
	}

	claims, err := l.repo.ListPendingWithHash(ctx, limit)
	if err != nil {
		return nil, err
	}

	for _, c := range claims {
		stats.Checked++
		out, err := l.reconcileOne(ctx, c)
		if err != nil {
			stats.Errors++
			logger.Warn().Err(err).Str("claim_id", c.ID).Msg("Claim reconciliation failed")
			continue
		}
		switch out.Claim.Status {
		case models.StatusConfirmed:
			stats.Confirmed++
		case models.StatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

func (l *Ledger) reconcileOne(ctx context.Context, c *models.ClaimTransaction) (*Outcome, error) {
	res, err := l.gateway.Lookup(ctx, *c.TxHash)
	switch {
	case err == nil:
		return l.settleOutcome(ctx, c, models.Settlement{Status: models.StatusConfirmed, TxHash: res.TxHash, BlockNumber: res.BlockNumber}), nil
	case errors.Is(err, chain.ErrReverted):
		s := models.Settlement{Status: models.StatusFailed, Error: chain.ErrReverted.Error()}
		if res != nil {
			s.BlockNumber = res.BlockNumber
		}
		return l.settleOutcome(ctx, c, s), nil
	case errors.Is(err, chain.ErrPending):
		return &Outcome{Claim: c, RewardError: reasonAwaiting}, nil
	default:
		return nil, err
	}
}

// Get returns a claim owned by userID. Claims of other users look missing.
func (l *Ledger) Get(ctx context.Context, userID, id string) (*models.ClaimResponse, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrClaimNotFound
	}
	c, err := l.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		return nil, ErrClaimNotFound
	}
	return l.ToResponse(c), nil
}

func (l *Ledger) List(ctx context.Context, userID string, limit, offset int) (*models.ClaimList, error) {
	claims, total, err := l.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	out := &models.ClaimList{Claims: make([]*models.ClaimResponse, 0, len(claims)), Total: total, Limit: limit, Offset: offset}
	for _, c := range claims {
		out.Claims = append(out.Claims, l.ToResponse(c))
	}
	return out, nil
}

// LastConfirmedAt is the confirmation time of the user's latest confirmed
// claim of kind, or nil.
func (l *Ledger) LastConfirmedAt(ctx context.Context, userID string, kind models.Kind) (*time.Time, error) {
	return l.repo.LastConfirmedAt(ctx, userID, kind)
}

func (l *Ledger) TokenDecimals() int32 {
	return l.cfg.TokenDecimals
}

func (l *Ledger) ToResponse(c *models.ClaimTransaction) *models.ClaimResponse {
	return &models.ClaimResponse{
		ID:           c.ID,
		Kind:         c.Kind,
		Delivery:     c.Delivery,
		Status:       c.Status,
		Amount:       c.Amount.String(),
		TokenAmount:  chain.FormatUnits(c.Amount, l.cfg.TokenDecimals),
		TokenAddress: c.TokenAddress,
		TxHash:       c.TxHash,
		BlockNumber:  c.BlockNumber,
		Error:        c.ErrorMessage,
		GameScoreID:  c.GameScoreID,
		CreatedAt:    c.CreatedAt,
		ConfirmedAt:  c.ConfirmedAt,
	}
}
