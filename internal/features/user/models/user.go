package models

import "time"

// User is the identity record. Rows are created by the identity provider;
// this service only updates streak fields.
// @Description Player account
type User struct {
	ID                  string    `json:"id" example:"4b0e7c1e-1d2a-4a63-9a4e-8f3a5f0c2b11"`
	WalletAddress       string    `json:"wallet_address" example:"0x52908400098527886e0f7030069857d2e4169ee7"`
	VerificationTier    string    `json:"verification_tier" example:"none"`
	StreakCount         int       `json:"streak_count" example:"3"`
	LastStreakClaimDate *string   `json:"last_streak_claim_date,omitempty" example:"2025-03-08"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// UserResponse is the caller's own profile.
// @Description Current player profile
type UserResponse struct {
	ID                  string    `json:"id"`
	WalletAddress       string    `json:"walletAddress"`
	VerificationTier    string    `json:"verificationTier"`
	StreakCount         int       `json:"streakCount"`
	LastStreakClaimDate *string   `json:"lastStreakClaimDate"`
	ClaimedToday        bool      `json:"claimedToday"`
	CreatedAt           time.Time `json:"createdAt"`
}
