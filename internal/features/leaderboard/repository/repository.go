package repository

import (
	"context"

	"barn-economy-backend/internal/features/leaderboard/models"
)

type Repository interface {
	// Aggregate sums validated scores per user for one game type and period.
	Aggregate(ctx context.Context, gameType, period string) ([]*models.Aggregate, error)
}
