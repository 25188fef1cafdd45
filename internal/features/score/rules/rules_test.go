package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	set, err := Default()
	require.NoError(t, err)
	assert.Equal(t, []string{"barn", "barn_puzzle"}, set.GameTypes())

	barn, ok := set.Get("barn")
	require.True(t, ok)
	assert.Equal(t, VariantProfit, barn.Variant)

	v, ok := set.VariantOf("barn_puzzle")
	require.True(t, ok)
	assert.Equal(t, VariantMoves, v)

	_, ok = set.Get("chess")
	assert.False(t, ok)
}

func TestLoadOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[games.barn]
variant = "profit"
max_score = 10
min_time_ms = 1
max_time_ms = 2
max_score_per_second = 1.5

[games.orchard]
variant = "moves"
max_score = 50
min_time_ms = 0
max_time_ms = 60000
max_score_per_second = 3
min_moves = 2
`), 0o600))

	set, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, set.Games, 3)
	assert.Equal(t, int64(10), set.Games["barn"].MaxScore)
	assert.Equal(t, 2, set.Games["orchard"].MinMoves)
	assert.Contains(t, set.Games, "barn_puzzle")
}

func TestParseRejectsBadRules(t *testing.T) {
	tests := map[string]string{
		"variant":     "[games.x]\nvariant = \"speed\"\nmax_score = 1\nmax_time_ms = 2\nmax_score_per_second = 1",
		"max score":   "[games.x]\nvariant = \"profit\"\nmax_score = 0\nmax_time_ms = 2\nmax_score_per_second = 1",
		"time window": "[games.x]\nvariant = \"profit\"\nmax_score = 1\nmin_time_ms = 5\nmax_time_ms = 5\nmax_score_per_second = 1",
		"rate":        "[games.x]\nvariant = \"profit\"\nmax_score = 1\nmax_time_ms = 2",
		"syntax":      "[games.x\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
