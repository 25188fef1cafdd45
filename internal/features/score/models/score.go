package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	claimmodels "barn-economy-backend/internal/features/claim/models"
	"barn-economy-backend/internal/features/score/rules"
)

// ProfitData is the telemetry of a profit-variant run.
type ProfitData struct {
	CoinsCollected int64 `json:"coinsCollected"`
	Matches        int   `json:"matches"`
}

// MovesData is the telemetry of a moves-variant run.
type MovesData struct {
	Moves     int   `json:"moves"`
	ElapsedMs int64 `json:"elapsedMs"`
}

// ValidationData is a closed union keyed by kind. Exactly one of Profit or
// Moves is set, matching Kind.
type ValidationData struct {
	Kind   rules.Variant
	Profit *ProfitData
	Moves  *MovesData
}

type validationEnvelope struct {
	Kind rules.Variant `json:"kind"`
}

func (v ValidationData) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case rules.VariantProfit:
		p := ProfitData{}
		if v.Profit != nil {
			p = *v.Profit
		}
		return json.Marshal(struct {
			Kind rules.Variant `json:"kind"`
			ProfitData
		}{v.Kind, p})
	case rules.VariantMoves:
		m := MovesData{}
		if v.Moves != nil {
			m = *v.Moves
		}
		return json.Marshal(struct {
			Kind rules.Variant `json:"kind"`
			MovesData
		}{v.Kind, m})
	default:
		return nil, fmt.Errorf("unknown validation kind %q", v.Kind)
	}
}

func (v *ValidationData) UnmarshalJSON(data []byte) error {
	var env validationEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	switch env.Kind {
	case rules.VariantProfit:
		var p struct {
			Kind rules.Variant `json:"kind"`
			ProfitData
		}
		if err := dec.Decode(&p); err != nil {
			return fmt.Errorf("invalid profit validation data: %w", err)
		}
		*v = ValidationData{Kind: env.Kind, Profit: &p.ProfitData}
	case rules.VariantMoves:
		var m struct {
			Kind rules.Variant `json:"kind"`
			MovesData
		}
		if err := dec.Decode(&m); err != nil {
			return fmt.Errorf("invalid moves validation data: %w", err)
		}
		*v = ValidationData{Kind: env.Kind, Moves: &m.MovesData}
	default:
		return fmt.Errorf("unknown validation kind %q", env.Kind)
	}
	return nil
}

// GameScore is an accepted, immutable submission.
type GameScore struct {
	ID                string
	UserID            string
	GameType          string
	Score             int64
	MonthlyProfit     int64
	SessionID         *string
	ElapsedMs         int64
	Moves             *int
	ValidationData    *ValidationData
	LeaderboardPeriod string
	IsValidated       bool
	GameStartedAt     time.Time
	GameEndedAt       time.Time
	CreatedAt         time.Time
}

// Submission is the body of POST /scores/submit.
type Submission struct {
	GameType       string          `json:"gameType" binding:"required,gametype" example:"barn"`
	Score          *int64          `json:"score" binding:"required,min=0" example:"1250"`
	MonthlyProfit  int64           `json:"monthlyProfit" binding:"min=0" example:"3400"`
	SessionID      string          `json:"sessionId" binding:"omitempty,max=128" example:"3f0c2d1e-run-17"`
	GameStartedAt  time.Time       `json:"gameStartedAt" binding:"required"`
	GameEndedAt    time.Time       `json:"gameEndedAt" binding:"required"`
	ValidationData *ValidationData `json:"validationData" swaggertype:"object"`
}

func (s *Submission) Elapsed() time.Duration {
	return s.GameEndedAt.Sub(s.GameStartedAt)
}

// RewardSummary describes the claim opened for a score.
type RewardSummary struct {
	ClaimID     string             `json:"claimId"`
	Amount      string             `json:"amount" example:"12500000000000000000"`
	TokenAmount string             `json:"tokenAmount" example:"12.5"`
	Status      claimmodels.Status `json:"status" example:"confirmed"`
	TxHash      *string            `json:"txHash"`
}

// SubmitResult is the response of a successful submission. The score is
// recorded even when RewardError is set.
// @Description Score submission result
type SubmitResult struct {
	ScoreID           string         `json:"scoreId"`
	Score             int64          `json:"score" example:"1250"`
	LeaderboardPeriod string         `json:"leaderboardPeriod" example:"2025-03"`
	Reward            *RewardSummary `json:"reward,omitempty"`
	RewardError       string         `json:"rewardError,omitempty"`
}

// ScoreResponse is one row of the caller's history.
type ScoreResponse struct {
	ID                string          `json:"id"`
	GameType          string          `json:"gameType"`
	Score             int64           `json:"score"`
	MonthlyProfit     int64           `json:"monthlyProfit"`
	SessionID         *string         `json:"sessionId,omitempty"`
	ElapsedMs         int64           `json:"elapsedMs"`
	Moves             *int            `json:"moves,omitempty"`
	ValidationData    *ValidationData `json:"validationData,omitempty" swaggertype:"object"`
	LeaderboardPeriod string          `json:"leaderboardPeriod"`
	CreatedAt         time.Time       `json:"createdAt"`
}

type ScoreList struct {
	Scores []*ScoreResponse `json:"scores"`
	Total  int              `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

func (s *GameScore) ToResponse() *ScoreResponse {
	return &ScoreResponse{
		ID:                s.ID,
		GameType:          s.GameType,
		Score:             s.Score,
		MonthlyProfit:     s.MonthlyProfit,
		SessionID:         s.SessionID,
		ElapsedMs:         s.ElapsedMs,
		Moves:             s.Moves,
		ValidationData:    s.ValidationData,
		LeaderboardPeriod: s.LeaderboardPeriod,
		CreatedAt:         s.CreatedAt,
	}
}
