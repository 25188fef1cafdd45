package service

import (
	"testing"
	"time"

	"barn-economy-backend/internal/features/score/models"
	"barn-economy-backend/internal/features/score/rules"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	profitGame = rules.Game{
		Variant:           rules.VariantProfit,
		MaxScore:          10000,
		MaxProfit:         50000,
		MinTimeMs:         10_000,
		MaxTimeMs:         600_000,
		MaxScorePerSecond: 100,
	}
	movesGame = rules.Game{
		Variant:           rules.VariantMoves,
		MaxScore:          1000,
		MinTimeMs:         5_000,
		MaxTimeMs:         600_000,
		MaxScorePerSecond: 50,
		MinMoves:          8,
	}
	start = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
)

func submission(score int64, elapsed time.Duration) *models.Submission {
	return &models.Submission{
		GameType:      "barn",
		Score:         &score,
		MonthlyProfit: 100,
		GameStartedAt: start,
		GameEndedAt:   start.Add(elapsed),
	}
}

func flagsOf(t *testing.T, err error) []Flag {
	t.Helper()
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	return rejected.Flags
}

func TestCheckTiming(t *testing.T) {
	assert.NoError(t, CheckTiming(submission(1, time.Second)))
	assert.ErrorIs(t, CheckTiming(submission(1, 0)), ErrInvalidTiming)
	assert.ErrorIs(t, CheckTiming(submission(1, -time.Minute)), ErrInvalidTiming)
}

func TestValidateAccepts(t *testing.T) {
	assert.NoError(t, Validate(profitGame, submission(1200, 2*time.Minute)))

	sub := submission(300, time.Minute)
	sub.ValidationData = &models.ValidationData{Kind: rules.VariantMoves, Moves: &models.MovesData{Moves: 12, ElapsedMs: 60000}}
	assert.NoError(t, Validate(movesGame, sub))

	// small drift between the client timer and the timestamps is tolerated
	sub.ValidationData.Moves.ElapsedMs = 61500
	assert.NoError(t, Validate(movesGame, sub))
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		game rules.Game
		sub  func() *models.Submission
		want []Flag
	}{
		{
			name: "score above max",
			game: profitGame,
			sub:  func() *models.Submission { return submission(20000, 10*time.Minute) },
			want: []Flag{FlagScoreOutOfRange},
		},
		{
			name: "implausibly fast",
			game: profitGame,
			sub:  func() *models.Submission { return submission(10, 3*time.Second) },
			want: []Flag{FlagTooFast},
		},
		{
			name: "too slow",
			game: profitGame,
			sub:  func() *models.Submission { return submission(10, time.Hour) },
			want: []Flag{FlagTooSlow},
		},
		{
			name: "rate ceiling",
			game: profitGame,
			sub:  func() *models.Submission { return submission(9000, 60*time.Second) },
			want: []Flag{FlagRateExceeded},
		},
		{
			name: "profit above max",
			game: profitGame,
			sub: func() *models.Submission {
				s := submission(100, time.Minute)
				s.MonthlyProfit = 60000
				return s
			},
			want: []Flag{FlagProfitOutOfRange},
		},
		{
			name: "fast and greedy collects both flags",
			game: profitGame,
			sub:  func() *models.Submission { return submission(5000, 5*time.Second) },
			want: []Flag{FlagTooFast, FlagRateExceeded},
		},
		{
			name: "moves missing",
			game: movesGame,
			sub:  func() *models.Submission { return submission(100, time.Minute) },
			want: []Flag{FlagMovesMissing},
		},
		{
			name: "moves below minimum",
			game: movesGame,
			sub: func() *models.Submission {
				s := submission(100, time.Minute)
				s.ValidationData = &models.ValidationData{Kind: rules.VariantMoves, Moves: &models.MovesData{Moves: 3}}
				return s
			},
			want: []Flag{FlagMovesBelowMin},
		},
		{
			name: "client timer disagrees with timestamps",
			game: movesGame,
			sub: func() *models.Submission {
				s := submission(100, time.Minute)
				s.ValidationData = &models.ValidationData{Kind: rules.VariantMoves, Moves: &models.MovesData{Moves: 12, ElapsedMs: 15000}}
				return s
			},
			want: []Flag{FlagElapsedMismatch},
		},
		{
			name: "negative client timer",
			game: movesGame,
			sub: func() *models.Submission {
				s := submission(100, time.Minute)
				s.ValidationData = &models.ValidationData{Kind: rules.VariantMoves, Moves: &models.MovesData{Moves: 12, ElapsedMs: -60000}}
				return s
			},
			want: []Flag{FlagElapsedMismatch},
		},
		{
			name: "kind mismatch",
			game: profitGame,
			sub: func() *models.Submission {
				s := submission(100, time.Minute)
				s.ValidationData = &models.ValidationData{Kind: rules.VariantMoves, Moves: &models.MovesData{Moves: 20}}
				return s
			},
			want: []Flag{FlagKindMismatch},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, flagsOf(t, Validate(tt.game, tt.sub())))
		})
	}
}
