package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "lives", cfg.Lives.Mode)
	assert.Equal(t, 5, cfg.Lives.MaxLives)
	assert.Equal(t, 6*time.Hour, cfg.Lives.RegenPeriod)
	assert.Equal(t, int64(10), cfg.Streak.JackpotMultiplier)
	assert.Equal(t, 24*time.Hour, cfg.Streak.CooldownWindow)
	assert.Equal(t, 100, cfg.Leaderboard.MaxLimit)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LIVES_MODE", "attempts")
	t.Setenv("LIVES_COOLDOWN", "90m")
	t.Setenv("DB_HOST", "db.internal")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "attempts", cfg.Lives.Mode)
	assert.Equal(t, 90*time.Minute, cfg.Lives.Cooldown)
	assert.Contains(t, cfg.PostgresDSN(), "host=db.internal")
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown mode", "LIVES_MODE", "hearts"},
		{"zero lives", "LIVES_MAX", "0"},
		{"zero multiplier", "STREAK_JACKPOT_MULTIPLIER", "0"},
		{"default above max", "LEADERBOARD_DEFAULT_LIMIT", "500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
