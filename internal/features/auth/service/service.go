package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	apperrors "barn-economy-backend/internal/common/errors"
	"barn-economy-backend/internal/common/logger"
	"barn-economy-backend/internal/features/auth/models"
	"barn-economy-backend/internal/features/auth/repository"
	"barn-economy-backend/internal/utils/period"
)

type AuthService struct {
	repo  repository.SessionRepository
	cache repository.SessionCache
	clock period.Clock
}

// NewAuthService wires the session store. cache may be nil.
func NewAuthService(repo repository.SessionRepository, cache repository.SessionCache, clock period.Clock) *AuthService {
	return &AuthService{repo: repo, cache: cache, clock: clock}
}

func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Resolve returns the user id owning an unexpired session token.
func (s *AuthService) Resolve(ctx context.Context, token string) (string, error) {
	hash := HashToken(token)
	now := s.clock.Now()

	if s.cache != nil {
		if sess, err := s.cache.Get(ctx, hash); err == nil {
			if !sess.Expired(now) {
				return sess.UserID, nil
			}
		} else if !errors.Is(err, repository.ErrSessionNotFound) {
			logger.Warn().Err(err).Msg("Session cache read failed")
		}
	}

	sess, err := s.repo.GetByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return "", apperrors.NewUnauthorizedError("invalid or expired session")
		}
		return "", apperrors.NewDatabaseError("resolve session", err)
	}
	if sess.Expired(now) {
		return "", apperrors.NewUnauthorizedError("invalid or expired session")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, sess); err != nil {
			logger.Warn().Err(err).Msg("Session cache write failed")
		}
	}
	return sess.UserID, nil
}

// Logout invalidates the session. The row is deleted before the cache entry
// and any failure is returned, leaving the logout safe to retry.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	hash := HashToken(token)
	if err := s.repo.Delete(ctx, hash); err != nil {
		return apperrors.NewDatabaseError("delete session", err)
	}
	if s.cache != nil {
		if err := s.cache.Delete(ctx, hash); err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeCacheError, "failed to evict session from cache")
		}
	}
	return nil
}

// Prune removes expired sessions and sign-in nonces.
func (s *AuthService) Prune(ctx context.Context) (*models.PruneResult, error) {
	return s.repo.PruneExpired(ctx, s.clock.Now())
}
