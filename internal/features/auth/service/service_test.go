package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "barn-economy-backend/internal/common/errors"
	"barn-economy-backend/internal/features/auth/models"
	"barn-economy-backend/internal/features/auth/repository"
	authredis "barn-economy-backend/internal/features/auth/repository/redis"
	"barn-economy-backend/internal/utils/period"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSessions struct {
	mu        sync.Mutex
	sessions  map[string]*models.Session
	lookups   int
	deleteErr error
}

func (f *fakeSessions) GetByHash(_ context.Context, hash string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	s, ok := f.sessions[hash]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessions) Delete(_ context.Context, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.sessions, hash)
	return nil
}

func (f *fakeSessions) PruneExpired(_ context.Context, now time.Time) (*models.PruneResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := &models.PruneResult{}
	for k, s := range f.sessions {
		if s.Expired(now) {
			delete(f.sessions, k)
			res.Sessions++
		}
	}
	return res, nil
}

func setup(t *testing.T) (*AuthService, *fakeSessions, *period.FixedClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := &period.FixedClock{T: time.Now().UTC()}
	repo := &fakeSessions{sessions: map[string]*models.Session{
		HashToken("live"):  {TokenHash: HashToken("live"), UserID: "u1", ExpiresAt: clock.T.Add(time.Hour)},
		HashToken("stale"): {TokenHash: HashToken("stale"), UserID: "u2", ExpiresAt: clock.T.Add(-time.Minute)},
	}}
	return NewAuthService(repo, authredis.NewSessionCache(client, time.Minute), clock), repo, clock
}

func TestResolve(t *testing.T) {
	svc, repo, _ := setup(t)
	ctx := context.Background()

	userID, err := svc.Resolve(ctx, "live")
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)

	// second resolve is served from cache
	_, err = svc.Resolve(ctx, "live")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.lookups)

	for _, token := range []string{"stale", "unknown"} {
		_, err := svc.Resolve(ctx, token)
		appErr, ok := apperrors.AsAppError(err)
		require.True(t, ok, token)
		assert.Equal(t, apperrors.ErrCodeUnauthorized, appErr.Code)
	}
}

func TestLogout(t *testing.T) {
	svc, repo, _ := setup(t)
	ctx := context.Background()

	_, err := svc.Resolve(ctx, "live")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, "live"))
	_, err = svc.Resolve(ctx, "live")
	assert.Error(t, err)
	assert.NotContains(t, repo.sessions, HashToken("live"))
}

func TestLogoutReportsFailedDelete(t *testing.T) {
	svc, repo, _ := setup(t)
	ctx := context.Background()

	repo.deleteErr = errors.New("db down")
	err := svc.Logout(ctx, "live")
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeDatabaseError, appErr.Code)

	// the session is still live and a retry finishes the logout
	userID, err := svc.Resolve(ctx, "live")
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)

	repo.deleteErr = nil
	require.NoError(t, svc.Logout(ctx, "live"))
	_, err = svc.Resolve(ctx, "live")
	assert.Error(t, err)
}

func TestPrune(t *testing.T) {
	svc, repo, clock := setup(t)
	clock.Advance(2 * time.Hour)

	res, err := svc.Prune(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Sessions)
	assert.Empty(t, repo.sessions)
}
