package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"barn-economy-backend/internal/features/auth/models"
	"barn-economy-backend/internal/features/auth/repository"
)

type postgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) repository.SessionRepository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) GetByHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	query := `SELECT token_hash, user_id, expires_at FROM sessions WHERE token_hash = $1`

	var s models.Session
	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(&s.TokenHash, &s.UserID, &s.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &s, nil
}

func (r *postgresRepository) Delete(ctx context.Context, tokenHash string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (r *postgresRepository) PruneExpired(ctx context.Context, now time.Time) (*models.PruneResult, error) {
	res := &models.PruneResult{}

	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to prune sessions: %w", err)
	}
	res.Sessions, _ = result.RowsAffected()

	result, err = r.db.ExecContext(ctx, `DELETE FROM siwe_nonces WHERE expires_at <= $1`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to prune nonces: %w", err)
	}
	res.Nonces, _ = result.RowsAffected()

	return res, nil
}
