package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"barn-economy-backend/internal/utils/period"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	objects map[string][]byte
}

func (s *memoryStore) Put(_ context.Context, key string, body []byte, contentType string) error {
	if s.objects == nil {
		s.objects = map[string][]byte{}
	}
	s.objects[key] = body
	return nil
}

func TestArchivePrevious(t *testing.T) {
	svc, repo := newService(t, memoryCache(t))
	repo.set("barn", "2025-02", players(3)...)
	store := &memoryStore{}
	clock := &period.FixedClock{T: time.Date(2025, 3, 1, 0, 15, 0, 0, time.UTC)}

	archiver := NewArchiver(svc, store, "leaderboards", clock)
	require.NoError(t, archiver.ArchivePrevious(context.Background()))

	assert.Len(t, store.objects, 2)
	body, ok := store.objects["leaderboards/barn/2025-02.json"]
	require.True(t, ok)
	assert.Contains(t, store.objects, "leaderboards/barn_puzzle/2025-02.json")

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &doc))
	assert.Equal(t, "2025-02", doc["period"])
	entries := doc["entries"].([]interface{})
	require.Len(t, entries, 3)

	// public entries only
	assert.NotContains(t, string(body), "userId")
	assert.NotContains(t, string(body), "0x1234567890abcdef1234567890abcdef12345678")
}
