package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"barn-economy-backend/internal/features/user/models"
	"barn-economy-backend/internal/features/user/repository"
)

type postgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) repository.UserRepository {
	return &postgresRepository{db: db}
}

const selectUser = `
	SELECT id, wallet_address, verification_tier, streak_count, last_streak_claim_date, created_at, updated_at
	FROM users
`

func (r *postgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, selectUser+` WHERE id = $1`, id))
}

func (r *postgresRepository) scanOne(row *sql.Row) (*models.User, error) {
	var (
		user      models.User
		lastClaim sql.NullString
	)
	err := row.Scan(&user.ID, &user.WalletAddress, &user.VerificationTier, &user.StreakCount,
		&lastClaim, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if lastClaim.Valid {
		user.LastStreakClaimDate = &lastClaim.String
	}
	return &user, nil
}
