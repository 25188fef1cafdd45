// Package rules loads the per-game anti-cheat bounds. Defaults are embedded;
// an optional TOML file overrides or adds game types.
package rules

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Variant selects how a game is scored and ranked.
type Variant string

const (
	// VariantProfit ranks by monthly profit, then total score.
	VariantProfit Variant = "profit"
	// VariantMoves ranks by fewest moves, then fastest time.
	VariantMoves Variant = "moves"
)

func (v Variant) Valid() bool {
	return v == VariantProfit || v == VariantMoves
}

type Game struct {
	Variant           Variant `toml:"variant"`
	MaxScore          int64   `toml:"max_score"`
	MaxProfit         int64   `toml:"max_profit"`
	MinTimeMs         int64   `toml:"min_time_ms"`
	MaxTimeMs         int64   `toml:"max_time_ms"`
	MaxScorePerSecond float64 `toml:"max_score_per_second"`
	MinMoves          int     `toml:"min_moves"`
}

func (g Game) MinTime() time.Duration { return time.Duration(g.MinTimeMs) * time.Millisecond }
func (g Game) MaxTime() time.Duration { return time.Duration(g.MaxTimeMs) * time.Millisecond }

type Set struct {
	Games map[string]Game `toml:"games"`
}

//go:embed default.toml
var defaultRules []byte

// Default returns the embedded rule set.
func Default() (*Set, error) {
	return Parse(defaultRules)
}

// Load returns the embedded rules with the file at path merged over them.
// An empty path yields the defaults.
func Load(path string) (*Set, error) {
	set, err := Default()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return set, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read game rules: %w", err)
	}
	override, err := Parse(data)
	if err != nil {
		return nil, err
	}
	for name, g := range override.Games {
		set.Games[name] = g
	}
	return set, nil
}

func Parse(data []byte) (*Set, error) {
	var set Set
	if err := toml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to parse game rules: %w", err)
	}
	if set.Games == nil {
		set.Games = map[string]Game{}
	}
	for name, g := range set.Games {
		if err := g.validate(); err != nil {
			return nil, fmt.Errorf("game %q: %w", name, err)
		}
	}
	return &set, nil
}

func (g Game) validate() error {
	if !g.Variant.Valid() {
		return fmt.Errorf("unknown variant %q", g.Variant)
	}
	if g.MaxScore <= 0 {
		return fmt.Errorf("max_score must be positive")
	}
	if g.MinTimeMs < 0 || g.MaxTimeMs <= g.MinTimeMs {
		return fmt.Errorf("time window [%d, %d] is empty", g.MinTimeMs, g.MaxTimeMs)
	}
	if g.MaxScorePerSecond <= 0 {
		return fmt.Errorf("max_score_per_second must be positive")
	}
	return nil
}

func (s *Set) Get(gameType string) (Game, bool) {
	g, ok := s.Games[gameType]
	return g, ok
}

// VariantOf returns the ranking variant of a game type, or false when the
// type is unknown.
func (s *Set) VariantOf(gameType string) (Variant, bool) {
	g, ok := s.Games[gameType]
	return g.Variant, ok
}

func (s *Set) GameTypes() []string {
	out := make([]string, 0, len(s.Games))
	for name := range s.Games {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
