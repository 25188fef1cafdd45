package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	claimmodels "barn-economy-backend/internal/features/claim/models"
	claimpg "barn-economy-backend/internal/features/claim/repository/postgres"
	"barn-economy-backend/internal/features/streak/models"
	"barn-economy-backend/internal/features/streak/repository"
	"barn-economy-backend/internal/platform/postgres"
)

type postgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) repository.Repository {
	return &postgresRepository{db: db}
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (r *postgresRepository) GetState(ctx context.Context, userID, today string) (*models.State, error) {
	return loadState(ctx, r.db, userID, today, false)
}

func loadState(ctx context.Context, q querier, userID, today string, lock bool) (*models.State, error) {
	query := `
		SELECT u.streak_count, u.last_streak_claim_date,
			EXISTS(SELECT 1 FROM daily_bonus_claims d WHERE d.user_id = u.id AND d.claim_date = $2)
		FROM users u
		WHERE u.id = $1
	`
	if lock {
		query += ` FOR UPDATE OF u`
	}

	var (
		state     = models.State{UserID: userID}
		lastClaim sql.NullString
	)
	err := q.QueryRowContext(ctx, query, userID, today).Scan(&state.StreakCount, &lastClaim, &state.ClaimedToday)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get streak state: %w", err)
	}
	if lastClaim.Valid {
		state.LastClaimDate = &lastClaim.String
	}
	return &state, nil
}

func (r *postgresRepository) Claim(ctx context.Context, userID, today string, build repository.BuildFunc) (*models.DailyClaim, *claimmodels.ClaimTransaction, error) {
	var (
		daily *models.DailyClaim
		claim *claimmodels.ClaimTransaction
	)
	err := postgres.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		state, err := loadState(ctx, tx, userID, today, true)
		if err != nil {
			return err
		}
		if state.ClaimedToday {
			return repository.ErrAlreadyClaimed
		}

		daily, claim, err = build(state)
		if err != nil {
			return err
		}

		if err := claimpg.InsertClaim(ctx, tx, claim); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO daily_bonus_claims (id, user_id, claim_date, amount, streak_day, claim_transaction_id, created_at)
			VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)
		`, daily.ID, daily.UserID, daily.ClaimDate, daily.Amount.String(), daily.StreakDay, daily.ClaimTransactionID, daily.CreatedAt)
		if err != nil {
			if postgres.IsUniqueViolation(err, "daily_bonus_claims_user_date_key") {
				return repository.ErrAlreadyClaimed
			}
			return fmt.Errorf("failed to insert daily bonus claim: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE users
			SET streak_count = $2, last_streak_claim_date = $3, updated_at = NOW()
			WHERE id = $1
		`, userID, daily.StreakDay, daily.ClaimDate)
		if err != nil {
			return fmt.Errorf("failed to advance streak: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return daily, claim, nil
}
