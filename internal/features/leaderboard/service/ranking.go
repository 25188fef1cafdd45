package service

import (
	"sort"

	"barn-economy-backend/internal/common/validation"
	"barn-economy-backend/internal/features/leaderboard/models"
	"barn-economy-backend/internal/features/score/rules"
)

// Compare orders two aggregates under a variant's comparator. It returns a
// negative number when a ranks above b and zero when they tie.
func Compare(v rules.Variant, a, b *models.Aggregate) int {
	if v == rules.VariantMoves {
		if c := compareAscNullsLast(a.BestMoves, b.BestMoves); c != 0 {
			return c
		}
		return compareAscNullsLast64(a.BestTimeMs, b.BestTimeMs)
	}

	if c := cmpDesc(a.MonthlyProfit, b.MonthlyProfit); c != 0 {
		return c
	}
	return cmpDesc(a.TotalScore, b.TotalScore)
}

func cmpDesc(a, b int64) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	}
	return 0
}

func compareAscNullsLast(a, b *int) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return -cmpDesc(int64(*a), int64(*b))
}

func compareAscNullsLast64(a, b *int64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return -cmpDesc(*a, *b)
}

// Rank sorts aggregates best first and assigns competition ranks: a rank is
// one plus the number of users that compare strictly better, so ties share
// a rank. Ties are listed by user id.
func Rank(v rules.Variant, aggs []*models.Aggregate) []models.RankedEntry {
	sort.SliceStable(aggs, func(i, j int) bool {
		if c := Compare(v, aggs[i], aggs[j]); c != 0 {
			return c < 0
		}
		return aggs[i].UserID < aggs[j].UserID
	})

	out := make([]models.RankedEntry, len(aggs))
	rank := 0
	for i, a := range aggs {
		if i == 0 || Compare(v, aggs[i-1], a) != 0 {
			rank = i + 1
		}
		out[i] = models.RankedEntry{
			UserID: a.UserID,
			Entry: models.Entry{
				Rank:          rank,
				WalletAddress: validation.MaskWallet(a.WalletAddress),
				MonthlyProfit: a.MonthlyProfit,
				TotalScore:    a.TotalScore,
				GamesPlayed:   a.GamesPlayed,
				BestMoves:     a.BestMoves,
				BestTimeMs:    a.BestTimeMs,
			},
		}
	}
	return out
}

func statsOf(aggs []*models.Aggregate) models.Stats {
	s := models.Stats{TotalPlayers: len(aggs)}
	for _, a := range aggs {
		s.TotalGames += a.GamesPlayed
		s.TotalProfit += a.MonthlyProfit
	}
	return s
}
