package models

import "time"

// Aggregate is one user's totals for a (game type, period).
type Aggregate struct {
	UserID        string
	WalletAddress string
	MonthlyProfit int64
	TotalScore    int64
	GamesPlayed   int
	BestMoves     *int
	BestTimeMs    *int64
}

// Entry is a public leaderboard row. Wallets are always masked.
type Entry struct {
	Rank          int    `json:"rank" example:"1"`
	WalletAddress string `json:"walletAddress" example:"0x1234…abcd"`
	MonthlyProfit int64  `json:"monthlyProfit" example:"125000"`
	TotalScore    int64  `json:"totalScore" example:"48000"`
	GamesPlayed   int    `json:"gamesPlayed" example:"12"`
	BestMoves     *int   `json:"bestMoves,omitempty"`
	BestTimeMs    *int64 `json:"bestTimeMs,omitempty"`
}

// RankedEntry keeps the owner of an entry for rank lookups. It never leaves
// the service.
type RankedEntry struct {
	UserID string `json:"userId"`
	Entry  Entry  `json:"entry"`
}

type Stats struct {
	TotalPlayers int   `json:"totalPlayers"`
	TotalGames   int   `json:"totalGames"`
	TotalProfit  int64 `json:"totalProfit"`
}

// Standings is the fully ranked period, the unit that is cached.
type Standings struct {
	GameType   string        `json:"gameType"`
	Period     string        `json:"period"`
	Variant    string        `json:"variant"`
	Entries    []RankedEntry `json:"entries"`
	Stats      Stats         `json:"stats"`
	ComputedAt time.Time     `json:"computedAt"`
}

type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total"`
}

// Leaderboard is the response of GET /leaderboard.
// @Description Ranked monthly leaderboard page
type Leaderboard struct {
	GameType   string     `json:"gameType" example:"barn"`
	Period     string     `json:"period" example:"2025-03"`
	Variant    string     `json:"variant" example:"profit"`
	Entries    []Entry    `json:"entries"`
	Pagination Pagination `json:"pagination"`
	UserRank   *Entry     `json:"userRank,omitempty"`
	Stats      *Stats     `json:"stats,omitempty"`
}

// Query selects a leaderboard page. Empty GameType and Period use the
// defaults; UserID adds the caller's own entry.
type Query struct {
	GameType string
	Period   string
	Limit    int
	Offset   int
	Stats    bool
	UserID   string
}
