package repository

import (
	"context"
	"errors"

	claimmodels "barn-economy-backend/internal/features/claim/models"
	"barn-economy-backend/internal/features/streak/models"
)

var (
	ErrAlreadyClaimed = errors.New("daily bonus already claimed today")
	ErrUserNotFound   = errors.New("user not found")
)

// BuildFunc derives today's claim from the locked streak state. The claim
// transaction it returns is inserted in the same store transaction.
type BuildFunc func(state *models.State) (*models.DailyClaim, *claimmodels.ClaimTransaction, error)

type Repository interface {
	GetState(ctx context.Context, userID, today string) (*models.State, error)
	// Claim locks the user's streak, rejects with ErrAlreadyClaimed when a
	// daily row exists for today, then writes the claim transaction, the
	// daily row and the advanced streak atomically.
	Claim(ctx context.Context, userID, today string, build BuildFunc) (*models.DailyClaim, *claimmodels.ClaimTransaction, error)
}
