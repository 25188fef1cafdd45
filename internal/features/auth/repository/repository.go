package repository

import (
	"context"
	"errors"
	"time"

	"barn-economy-backend/internal/features/auth/models"
)

var ErrSessionNotFound = errors.New("session not found")

type SessionRepository interface {
	GetByHash(ctx context.Context, tokenHash string) (*models.Session, error)
	Delete(ctx context.Context, tokenHash string) error
	PruneExpired(ctx context.Context, now time.Time) (*models.PruneResult, error)
}

// SessionCache is a short-lived read-through cache in front of SessionRepository.
type SessionCache interface {
	Get(ctx context.Context, tokenHash string) (*models.Session, error)
	Set(ctx context.Context, session *models.Session) error
	Delete(ctx context.Context, tokenHash string) error
}
