package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	claimmodels "barn-economy-backend/internal/features/claim/models"
	claimpg "barn-economy-backend/internal/features/claim/repository/postgres"
	"barn-economy-backend/internal/features/score/models"
	"barn-economy-backend/internal/features/score/repository"
	"barn-economy-backend/internal/platform/postgres"
)

type postgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) repository.Repository {
	return &postgresRepository{db: db}
}

const scoreColumns = `
	id, user_id, game_type, score, monthly_profit, session_id, elapsed_ms, moves,
	validation_data, leaderboard_period, is_validated, game_started_at, game_ended_at, created_at
`

func (r *postgresRepository) Insert(ctx context.Context, s *models.GameScore, claim *claimmodels.ClaimTransaction) error {
	data := []byte("{}")
	if s.ValidationData != nil {
		var err error
		if data, err = json.Marshal(s.ValidationData); err != nil {
			return fmt.Errorf("failed to encode validation data: %w", err)
		}
	}

	return postgres.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO game_scores
				(id, user_id, game_type, score, monthly_profit, session_id, elapsed_ms, moves,
				 validation_data, leaderboard_period, is_validated, game_started_at, game_ended_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		`, s.ID, s.UserID, s.GameType, s.Score, s.MonthlyProfit, s.SessionID, s.ElapsedMs, s.Moves,
			data, s.LeaderboardPeriod, s.IsValidated, s.GameStartedAt, s.GameEndedAt, s.CreatedAt)
		if err != nil {
			if postgres.IsUniqueViolation(err, "game_scores_user_session_key") {
				return repository.ErrDuplicateSession
			}
			return fmt.Errorf("failed to insert score: %w", err)
		}

		if claim != nil {
			if err := claimpg.InsertClaim(ctx, tx, claim); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *postgresRepository) GetByID(ctx context.Context, id string) (*models.GameScore, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+scoreColumns+` FROM game_scores WHERE id = $1`, id)
	s, err := scanScore(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrScoreNotFound
	}
	return s, err
}

func (r *postgresRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.GameScore, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM game_scores WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count scores: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+scoreColumns+`
		FROM game_scores
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list scores: %w", err)
	}
	defer rows.Close()

	scores := make([]*models.GameScore, 0, limit)
	for rows.Next() {
		s, err := scanScore(rows)
		if err != nil {
			return nil, 0, err
		}
		scores = append(scores, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate scores: %w", err)
	}
	return scores, total, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanScore(row scanner) (*models.GameScore, error) {
	var (
		s       models.GameScore
		session sql.NullString
		moves   sql.NullInt64
		data    []byte
	)
	err := row.Scan(&s.ID, &s.UserID, &s.GameType, &s.Score, &s.MonthlyProfit, &session, &s.ElapsedMs, &moves,
		&data, &s.LeaderboardPeriod, &s.IsValidated, &s.GameStartedAt, &s.GameEndedAt, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan score: %w", err)
	}
	if session.Valid {
		s.SessionID = &session.String
	}
	if moves.Valid {
		m := int(moves.Int64)
		s.Moves = &m
	}
	if len(data) > 0 && string(data) != "{}" {
		var v models.ValidationData
		if err := json.Unmarshal(data, &v); err == nil {
			s.ValidationData = &v
		}
	}
	return &s, nil
}
