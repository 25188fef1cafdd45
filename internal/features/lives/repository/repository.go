package repository

import (
	"context"
	"errors"

	"barn-economy-backend/internal/features/lives/models"
)

var ErrDuplicatePayment = errors.New("payment reference already processed")

// MutateFunc edits a locked state in place. Returning an error discards the edit.
type MutateFunc func(s *models.ResourceState) error

type Repository interface {
	// Mutate locks the user's row (creating it with init when absent), runs fn
	// and writes back only if fn changed the state.
	Mutate(ctx context.Context, userID string, init func() *models.ResourceState, fn MutateFunc) error

	// ApplyPurchase records the payment reference and the purchase, then runs
	// fn like Mutate, all in one transaction. A reused reference returns
	// ErrDuplicatePayment and changes nothing.
	ApplyPurchase(ctx context.Context, p *models.Purchase, init func() *models.ResourceState, fn MutateFunc) error
}
