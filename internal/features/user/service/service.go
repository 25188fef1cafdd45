package service

import (
	"context"
	"errors"
	"strings"

	"barn-economy-backend/internal/features/user/models"
	"barn-economy-backend/internal/features/user/repository"
	"barn-economy-backend/internal/utils/period"
)

var ErrUserNotFound = repository.ErrUserNotFound

type UserService interface {
	GetMe(ctx context.Context, id string) (*models.UserResponse, error)
	WalletAddress(ctx context.Context, id string) (string, error)
}

type userService struct {
	repo  repository.UserRepository
	clock period.Clock
}

func NewUserService(repo repository.UserRepository, clock period.Clock) UserService {
	return &userService{repo: repo, clock: clock}
}

func (s *userService) GetMe(ctx context.Context, id string) (*models.UserResponse, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	today := period.Day(s.clock.Now())
	return &models.UserResponse{
		ID:                  user.ID,
		WalletAddress:       user.WalletAddress,
		VerificationTier:    user.VerificationTier,
		StreakCount:         user.StreakCount,
		LastStreakClaimDate: user.LastStreakClaimDate,
		ClaimedToday:        user.LastStreakClaimDate != nil && *user.LastStreakClaimDate == today,
		CreatedAt:           user.CreatedAt,
	}, nil
}

// WalletAddress resolves the payout address of a user in canonical
// lower-case form.
func (s *userService) WalletAddress(ctx context.Context, id string) (string, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if user.WalletAddress == "" {
		return "", errors.New("user has no wallet address")
	}
	return strings.ToLower(user.WalletAddress), nil
}
