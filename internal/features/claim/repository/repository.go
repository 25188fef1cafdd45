package repository

import (
	"context"
	"errors"
	"time"

	"barn-economy-backend/internal/features/claim/models"
)

var (
	ErrClaimNotFound     = errors.New("claim not found")
	ErrInvalidTransition = errors.New("claim is not pending")
	// ErrAlreadyClaimed is returned when the eligibility unit (a game score)
	// already has a claim.
	ErrAlreadyClaimed = errors.New("reward already claimed")
)

type Repository interface {
	Create(ctx context.Context, c *models.ClaimTransaction) error
	GetByID(ctx context.Context, id string) (*models.ClaimTransaction, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.ClaimTransaction, int, error)
	LastConfirmedAt(ctx context.Context, userID string, kind models.Kind) (*time.Time, error)

	// AcquireDispatch takes a short lease on a pending claim with no tx hash.
	// It returns false when another dispatch holds the lease or the claim is
	// no longer eligible for a transfer.
	AcquireDispatch(ctx context.Context, id string, lease time.Duration) (bool, error)
	// RecordBroadcast stores the hash of a signed transfer before it is sent.
	// It fails with ErrInvalidTransition unless the claim is pending and has
	// no hash yet, which also stops further AcquireDispatch calls.
	RecordBroadcast(ctx context.Context, id, txHash string) error
	// MarkPending records why a claim is still pending and releases the lease.
	MarkPending(ctx context.Context, id, reason string, txHash *string) error
	// Settle moves a pending claim to a terminal status. ErrInvalidTransition
	// is returned for claims that are already terminal.
	Settle(ctx context.Context, id string, s models.Settlement) (*models.ClaimTransaction, error)
	ListPendingWithHash(ctx context.Context, limit int) ([]*models.ClaimTransaction, error)
}
