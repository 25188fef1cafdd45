package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"barn-economy-backend/internal/features/lives/models"
	"barn-economy-backend/internal/features/lives/repository"
	"barn-economy-backend/internal/platform/postgres"
)

type postgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) repository.Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Mutate(ctx context.Context, userID string, init func() *models.ResourceState, fn repository.MutateFunc) error {
	return postgres.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		return mutate(ctx, tx, userID, init, fn)
	})
}

func (r *postgresRepository) ApplyPurchase(ctx context.Context, p *models.Purchase, init func() *models.ResourceState, fn repository.MutateFunc) error {
	return postgres.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO payment_references (reference, user_id, kind)
			VALUES ($1, $2, $3)
			ON CONFLICT (reference) DO NOTHING
		`, p.Reference, p.UserID, string(p.Kind))
		if err != nil {
			return fmt.Errorf("failed to record payment reference: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return repository.ErrDuplicatePayment
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO barn_game_purchases (id, user_id, kind, quantity, reference)
			VALUES ($1, $2, $3, $4, $5)
		`, p.ID, p.UserID, string(p.Kind), p.Quantity, p.Reference)
		if err != nil {
			return fmt.Errorf("failed to record purchase: %w", err)
		}

		return mutate(ctx, tx, p.UserID, init, fn)
	})
}

func mutate(ctx context.Context, tx *sql.Tx, userID string, init func() *models.ResourceState, fn repository.MutateFunc) error {
	state, err := lockState(ctx, tx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		fresh := init()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO barn_game_attempts (user_id, lives, last_regenerated_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id) DO NOTHING
		`, userID, fresh.Lives, fresh.LastRegeneratedAt)
		if err != nil {
			return fmt.Errorf("failed to create lives state: %w", err)
		}
		state, err = lockState(ctx, tx, userID)
	}
	if err != nil {
		return fmt.Errorf("failed to load lives state: %w", err)
	}

	before := state.Clone()
	if err := fn(state); err != nil {
		return err
	}
	if state.Equal(before) {
		return nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE barn_game_attempts
		SET lives = $2, last_regenerated_at = $3, has_active_game = $4, last_played_date = $5,
			pass_expires_at = $6, cooldown_ends_at = $7, coins_today = $8, matches_today = $9,
			updated_at = NOW()
		WHERE user_id = $1
	`, userID, state.Lives, state.LastRegeneratedAt, state.HasActiveGame, state.LastPlayedDate,
		state.PassExpiresAt, state.CooldownEndsAt, state.CoinsToday, state.MatchesToday)
	if err != nil {
		return fmt.Errorf("failed to update lives state: %w", err)
	}
	return nil
}

func lockState(ctx context.Context, tx *sql.Tx, userID string) (*models.ResourceState, error) {
	var (
		s          models.ResourceState
		lastPlayed sql.NullString
		passExp    sql.NullTime
		cooldown   sql.NullTime
	)
	err := tx.QueryRowContext(ctx, `
		SELECT user_id, lives, last_regenerated_at, has_active_game, last_played_date,
			pass_expires_at, cooldown_ends_at, coins_today, matches_today
		FROM barn_game_attempts
		WHERE user_id = $1
		FOR UPDATE
	`, userID).Scan(&s.UserID, &s.Lives, &s.LastRegeneratedAt, &s.HasActiveGame, &lastPlayed,
		&passExp, &cooldown, &s.CoinsToday, &s.MatchesToday)
	if err != nil {
		return nil, err
	}
	if lastPlayed.Valid {
		s.LastPlayedDate = &lastPlayed.String
	}
	if passExp.Valid {
		t := passExp.Time
		s.PassExpiresAt = &t
	}
	if cooldown.Valid {
		t := cooldown.Time
		s.CooldownEndsAt = &t
	}
	return &s, nil
}
