package service

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestNextStreakDay(t *testing.T) {
	const today = "2025-03-10"

	tests := []struct {
		name   string
		last   *string
		streak int
		want   int
	}{
		{"first claim", nil, 0, 1},
		{"empty date", strPtr(""), 3, 1},
		{"continues from yesterday", strPtr("2025-03-09"), 3, 4},
		{"day six to jackpot", strPtr("2025-03-09"), 6, 7},
		{"wraps after day seven", strPtr("2025-03-09"), 7, 1},
		{"two days ago breaks", strPtr("2025-03-08"), 4, 1},
		{"future date breaks", strPtr("2025-03-11"), 4, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextStreakDay(tt.last, tt.streak, today)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextStreakDayAcrossMonthBoundary(t *testing.T) {
	got, err := NextStreakDay(strPtr("2025-02-28"), 2, "2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, 3, got)
}

func TestNextStreakDayToday(t *testing.T) {
	_, err := NextStreakDay(strPtr("2025-03-10"), 2, "2025-03-10")
	assert.ErrorIs(t, err, ErrAlreadyClaimed)
}

func TestRewardsForDay(t *testing.T) {
	r := Rewards{Base: big.NewInt(10), JackpotMultiplier: 10}
	for day := 1; day < CycleLength; day++ {
		assert.Equal(t, "10", r.ForDay(day).String(), "day %d", day)
	}
	assert.Equal(t, "100", r.ForDay(7).String())

	// base is not mutated
	assert.Equal(t, "10", r.Base.String())
}
