package service

import (
	"errors"
	"math/big"

	"barn-economy-backend/internal/chain"
	"barn-economy-backend/internal/utils/period"
)

// CycleLength is the number of days in one streak cycle. The last day pays
// the jackpot.
const CycleLength = 7

var ErrAlreadyClaimed = errors.New("daily bonus already claimed today")

// NextStreakDay returns the streak day a claim made on today would get.
// Continuity is decided by calendar day, not elapsed time.
func NextStreakDay(lastClaimDate *string, currentStreak int, today string) (int, error) {
	if lastClaimDate == nil || *lastClaimDate == "" {
		return 1, nil
	}
	if *lastClaimDate == today {
		return 0, ErrAlreadyClaimed
	}

	t, err := period.ParseDay(today)
	if err != nil {
		return 0, err
	}
	if *lastClaimDate != period.PreviousDay(t) || currentStreak < 0 {
		return 1, nil
	}
	return currentStreak%CycleLength + 1, nil
}

// Rewards prices each streak day in token base units.
type Rewards struct {
	Base              *big.Int
	JackpotMultiplier int64
}

func (r Rewards) ForDay(day int) *big.Int {
	amount := new(big.Int).Set(r.Base)
	if day == CycleLength {
		amount.Mul(amount, big.NewInt(r.JackpotMultiplier))
	}
	return amount
}

func formatTokens(amount *big.Int, decimals int32) string {
	return chain.FormatUnits(amount, decimals)
}
