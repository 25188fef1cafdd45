package models

import (
	"math/big"
	"time"
)

// State is the user's streak as stored on the users row.
type State struct {
	UserID        string
	StreakCount   int
	LastClaimDate *string
	ClaimedToday  bool
}

// DailyClaim is the per-day eligibility record. Its existence for a date is
// what makes a second claim that day fail.
type DailyClaim struct {
	ID                 string
	UserID             string
	ClaimDate          string
	Amount             *big.Int
	StreakDay          int
	ClaimTransactionID string
	CreatedAt          time.Time
}

// StreakStatus is the client view of the streak.
// @Description Daily streak status
type StreakStatus struct {
	StreakCount      int        `json:"streakCount" example:"3"`
	LastClaimDate    *string    `json:"lastClaimDate" example:"2025-03-09"`
	ClaimedToday     bool       `json:"claimedToday"`
	NextStreakDay    int        `json:"nextStreakDay" example:"4"`
	NextReward       string     `json:"nextReward" example:"10000000000000000000"`
	NextRewardTokens string     `json:"nextRewardTokens" example:"10"`
	NextClaimAt      *time.Time `json:"nextClaimAt"`
}

// DailyBonusResult is returned by a daily bonus claim.
// @Description Daily bonus claim result
type DailyBonusResult struct {
	ClaimID     string  `json:"claimId"`
	Amount      string  `json:"amount" example:"10000000000000000000"`
	TokenAmount string  `json:"tokenAmount" example:"10"`
	StreakDay   int     `json:"streakDay" example:"1"`
	Status      string  `json:"status" example:"confirmed"`
	TxHash      *string `json:"txHash"`
	RewardError string  `json:"rewardError,omitempty"`
}
