package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"barn-economy-backend/internal/features/leaderboard/models"
	"barn-economy-backend/internal/features/leaderboard/repository"
)

type postgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) repository.Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Aggregate(ctx context.Context, gameType, period string) ([]*models.Aggregate, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT u.id, u.wallet_address,
			COALESCE(SUM(s.monthly_profit), 0),
			COALESCE(SUM(s.score), 0),
			COUNT(*),
			best.moves,
			best.elapsed_ms
		FROM game_scores s
		JOIN users u ON u.id = s.user_id
		LEFT JOIN LATERAL (
			SELECT b.moves, b.elapsed_ms
			FROM game_scores b
			WHERE b.user_id = s.user_id
				AND b.game_type = $1
				AND b.leaderboard_period = $2
				AND b.is_validated
				AND b.moves IS NOT NULL
			ORDER BY b.moves ASC, b.elapsed_ms ASC
			LIMIT 1
		) best ON TRUE
		WHERE s.game_type = $1
			AND s.leaderboard_period = $2
			AND s.is_validated
		GROUP BY u.id, u.wallet_address, best.moves, best.elapsed_ms
	`, gameType, period)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate leaderboard: %w", err)
	}
	defer rows.Close()

	var out []*models.Aggregate
	for rows.Next() {
		var (
			a     models.Aggregate
			moves sql.NullInt64
			best  sql.NullInt64
		)
		if err := rows.Scan(&a.UserID, &a.WalletAddress, &a.MonthlyProfit, &a.TotalScore, &a.GamesPlayed, &moves, &best); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}
		if moves.Valid {
			m := int(moves.Int64)
			a.BestMoves = &m
		}
		if best.Valid {
			t := best.Int64
			a.BestTimeMs = &t
		}
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate leaderboard rows: %w", err)
	}
	return out, nil
}
