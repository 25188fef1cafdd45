package service

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"barn-economy-backend/internal/common/logger"
	"barn-economy-backend/internal/features/leaderboard/models"
	"barn-economy-backend/internal/platform/storage"
	"barn-economy-backend/internal/utils/period"
)

// archivedStandings is the published form of a closed period: public
// entries only.
type archivedStandings struct {
	GameType   string         `json:"gameType"`
	Period     string         `json:"period"`
	Variant    string         `json:"variant"`
	Stats      models.Stats   `json:"stats"`
	Entries    []models.Entry `json:"entries"`
	ArchivedAt string         `json:"archivedAt"`
}

// Archiver writes the final standings of a finished period to object storage.
type Archiver struct {
	leaderboard *LeaderboardService
	store       storage.ObjectStore
	prefix      string
	clock       period.Clock
}

func NewArchiver(leaderboard *LeaderboardService, store storage.ObjectStore, prefix string, clock period.Clock) *Archiver {
	return &Archiver{leaderboard: leaderboard, store: store, prefix: prefix, clock: clock}
}

func (a *Archiver) key(gameType, p string) string {
	return path.Join(a.prefix, gameType, p+".json")
}

// ArchivePrevious archives last month's standings for every game type.
func (a *Archiver) ArchivePrevious(ctx context.Context) error {
	return a.Archive(ctx, period.PreviousMonth(a.clock.Now()))
}

func (a *Archiver) Archive(ctx context.Context, p string) error {
	for _, gameType := range a.leaderboard.GameTypes() {
		standings, err := a.leaderboard.Standings(ctx, gameType, p)
		if err != nil {
			return fmt.Errorf("failed to load %s standings for %s: %w", gameType, p, err)
		}

		doc := archivedStandings{
			GameType:   standings.GameType,
			Period:     standings.Period,
			Variant:    standings.Variant,
			Stats:      standings.Stats,
			Entries:    make([]models.Entry, 0, len(standings.Entries)),
			ArchivedAt: a.clock.Now().Format(time.RFC3339),
		}
		for _, e := range standings.Entries {
			doc.Entries = append(doc.Entries, e.Entry)
		}

		body, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to encode standings: %w", err)
		}
		key := a.key(gameType, p)
		if err := a.store.Put(ctx, key, body, "application/json"); err != nil {
			return fmt.Errorf("failed to upload %s: %w", key, err)
		}

		logger.Info().
			Str("game_type", gameType).
			Str("period", p).
			Int("players", len(doc.Entries)).
			Str("key", key).
			Msg("Leaderboard archived")
	}
	return nil
}
