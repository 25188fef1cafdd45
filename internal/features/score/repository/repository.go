package repository

import (
	"context"
	"errors"

	claimmodels "barn-economy-backend/internal/features/claim/models"
	"barn-economy-backend/internal/features/score/models"
)

var (
	ErrDuplicateSession = errors.New("session already submitted")
	ErrScoreNotFound    = errors.New("score not found")
)

type Repository interface {
	// Insert stores an accepted score and, when claim is not nil, its reward
	// claim in the same transaction.
	Insert(ctx context.Context, s *models.GameScore, claim *claimmodels.ClaimTransaction) error
	GetByID(ctx context.Context, id string) (*models.GameScore, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.GameScore, int, error)
}
