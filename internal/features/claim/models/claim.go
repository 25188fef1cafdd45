package models

import (
	"math/big"
	"time"

	"barn-economy-backend/internal/chain"
)

type Kind string

const (
	KindDailyBonus Kind = "daily_bonus"
	KindGameReward Kind = "game_reward"
)

func (k Kind) Valid() bool {
	return k == KindDailyBonus || k == KindGameReward
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// Delivery says who executes the on-chain transfer.
type Delivery string

const (
	// DeliveryTransfer is paid by the server's distributor wallet.
	DeliveryTransfer Delivery = "transfer"
	// DeliverySignature is redeemed by the client with an EIP-712 signature.
	DeliverySignature Delivery = "signature"
)

// ClaimTransaction is one payout attempt. Amount is in the token's smallest unit.
type ClaimTransaction struct {
	ID                string
	UserID            string
	Kind              Kind
	Delivery          Delivery
	Amount            *big.Int
	TokenAddress      string
	Status            Status
	TxHash            *string
	BlockNumber       *uint64
	ErrorMessage      *string
	GameScoreID       *string
	SignatureDeadline *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
	ConfirmedAt       *time.Time
}

// Settlement is the terminal outcome written by settle.
type Settlement struct {
	Status      Status
	TxHash      string
	BlockNumber uint64
	Error       string
}

// ClaimResponse is the client view of a claim.
// @Description Reward claim
type ClaimResponse struct {
	ID           string     `json:"id"`
	Kind         Kind       `json:"kind" example:"daily_bonus"`
	Delivery     Delivery   `json:"delivery" example:"transfer"`
	Status       Status     `json:"status" example:"pending"`
	Amount       string     `json:"amount" example:"10000000000000000000"`
	TokenAmount  string     `json:"tokenAmount" example:"10"`
	TokenAddress string     `json:"tokenAddress"`
	TxHash       *string    `json:"txHash"`
	BlockNumber  *uint64    `json:"blockNumber,omitempty"`
	Error        *string    `json:"error,omitempty"`
	GameScoreID  *string    `json:"gameScoreId,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	ConfirmedAt  *time.Time `json:"confirmedAt,omitempty"`
}

// ClaimList is a page of claims.
type ClaimList struct {
	Claims []*ClaimResponse `json:"claims"`
	Total  int              `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

// SignatureClaim is a pending claim plus the authorization the client
// submits to the claim contract.
// @Description Gasless claim authorization
type SignatureClaim struct {
	ClaimID     string `json:"claimId"`
	ClaimType   Kind   `json:"claimType" example:"daily_bonus"`
	TokenAmount string `json:"tokenAmount" example:"10"`
	StreakDay   int    `json:"streakDay,omitempty"`
	*chain.SignedClaim
}
