package service

import (
	"errors"
	"strings"
	"time"

	"barn-economy-backend/internal/features/score/models"
	"barn-economy-backend/internal/features/score/rules"
)

// Flag names one failed anti-cheat check.
type Flag string

const (
	FlagScoreOutOfRange  Flag = "score_out_of_range"
	FlagProfitOutOfRange Flag = "profit_out_of_range"
	FlagTooFast          Flag = "too_fast"
	FlagTooSlow          Flag = "too_slow"
	FlagRateExceeded     Flag = "score_rate_exceeded"
	FlagKindMismatch     Flag = "validation_kind_mismatch"
	FlagMovesMissing     Flag = "moves_missing"
	FlagMovesBelowMin    Flag = "moves_below_minimum"
	FlagElapsedMismatch  Flag = "elapsed_mismatch"
)

// elapsedTolerance bounds the drift between the client's own run timer and
// the submitted start and end timestamps.
const elapsedTolerance = 2 * time.Second

var (
	ErrMissingScore    = errors.New("score is required")
	ErrInvalidTiming   = errors.New("gameEndedAt must be after gameStartedAt")
	ErrUnknownGameType = errors.New("unknown game type")
)

// RejectedError carries every check a submission failed.
type RejectedError struct {
	Flags []Flag
}

func (e *RejectedError) Error() string {
	names := make([]string, len(e.Flags))
	for i, f := range e.Flags {
		names[i] = string(f)
	}
	return "score rejected: " + strings.Join(names, ", ")
}

// CheckTiming rejects runs whose end is not strictly after their start.
func CheckTiming(sub *models.Submission) error {
	if !sub.GameEndedAt.After(sub.GameStartedAt) {
		return ErrInvalidTiming
	}
	return nil
}

// Validate runs all bound checks for the game's rules. Timing order must
// have been checked already.
func Validate(g rules.Game, sub *models.Submission) error {
	var flags []Flag
	score := int64(0)
	if sub.Score != nil {
		score = *sub.Score
	}

	if score < 0 || score > g.MaxScore {
		flags = append(flags, FlagScoreOutOfRange)
	}
	if sub.MonthlyProfit < 0 || (g.MaxProfit > 0 && sub.MonthlyProfit > g.MaxProfit) {
		flags = append(flags, FlagProfitOutOfRange)
	}

	elapsed := sub.Elapsed()
	if elapsed < g.MinTime() {
		flags = append(flags, FlagTooFast)
	}
	if elapsed > g.MaxTime() {
		flags = append(flags, FlagTooSlow)
	}
	if seconds := elapsed.Seconds(); seconds > 0 && float64(score)/seconds > g.MaxScorePerSecond {
		flags = append(flags, FlagRateExceeded)
	}

	data := sub.ValidationData
	if data != nil && data.Kind != g.Variant {
		flags = append(flags, FlagKindMismatch)
	}
	if g.Variant == rules.VariantMoves {
		switch {
		case data == nil || data.Moves == nil:
			flags = append(flags, FlagMovesMissing)
		case data.Moves.Moves < g.MinMoves:
			flags = append(flags, FlagMovesBelowMin)
		}
	}
	// elapsedMs is optional; when reported it must agree with the timestamps
	if data != nil && data.Moves != nil && data.Moves.ElapsedMs != 0 {
		drift := time.Duration(data.Moves.ElapsedMs)*time.Millisecond - elapsed
		if drift < -elapsedTolerance || drift > elapsedTolerance {
			flags = append(flags, FlagElapsedMismatch)
		}
	}

	if len(flags) > 0 {
		return &RejectedError{Flags: flags}
	}
	return nil
}
