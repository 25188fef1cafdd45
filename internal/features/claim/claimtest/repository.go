// Package claimtest provides an in-process claim store with the same
// transition rules as the Postgres repository, for service and handler tests.
package claimtest

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"barn-economy-backend/internal/features/claim/models"
	"barn-economy-backend/internal/features/claim/repository"
	"barn-economy-backend/internal/utils/period"
)

type record struct {
	claim       *models.ClaimTransaction
	lockedUntil time.Time
	attempts    int
}

type Repository struct {
	mu     sync.Mutex
	clock  period.Clock
	claims map[string]*record
	scores map[string]string
}

func NewRepository(clock period.Clock) *Repository {
	return &Repository{clock: clock, claims: map[string]*record{}, scores: map[string]string{}}
}

func clone(c *models.ClaimTransaction) *models.ClaimTransaction {
	cp := *c
	if c.Amount != nil {
		cp.Amount = new(big.Int).Set(c.Amount)
	}
	return &cp
}

func (r *Repository) Create(_ context.Context, c *models.ClaimTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.GameScoreID != nil {
		if _, ok := r.scores[*c.GameScoreID]; ok {
			return repository.ErrAlreadyClaimed
		}
		r.scores[*c.GameScoreID] = c.ID
	}
	r.claims[c.ID] = &record{claim: clone(c)}
	return nil
}

func (r *Repository) GetByID(_ context.Context, id string) (*models.ClaimTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.claims[id]
	if !ok {
		return nil, repository.ErrClaimNotFound
	}
	return clone(rec.claim), nil
}

func (r *Repository) ListByUser(_ context.Context, userID string, limit, offset int) ([]*models.ClaimTransaction, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []*models.ClaimTransaction
	for _, rec := range r.claims {
		if rec.claim.UserID == userID {
			all = append(all, clone(rec.claim))
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	total := len(all)
	if offset >= total {
		return []*models.ClaimTransaction{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (r *Repository) LastConfirmedAt(_ context.Context, userID string, kind models.Kind) (*time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var last *time.Time
	for _, rec := range r.claims {
		c := rec.claim
		if c.UserID != userID || c.Kind != kind || c.Status != models.StatusConfirmed || c.ConfirmedAt == nil {
			continue
		}
		if last == nil || c.ConfirmedAt.After(*last) {
			t := *c.ConfirmedAt
			last = &t
		}
	}
	return last, nil
}

func (r *Repository) AcquireDispatch(_ context.Context, id string, lease time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.claims[id]
	if !ok {
		return false, nil
	}
	c := rec.claim
	now := r.clock.Now()
	if c.Status != models.StatusPending || c.Delivery != models.DeliveryTransfer || c.TxHash != nil {
		return false, nil
	}
	if !rec.lockedUntil.IsZero() && rec.lockedUntil.After(now) {
		return false, nil
	}
	rec.lockedUntil = now.Add(lease)
	rec.attempts++
	return true, nil
}

func (r *Repository) RecordBroadcast(_ context.Context, id, txHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.claims[id]
	if !ok || rec.claim.Status != models.StatusPending || rec.claim.TxHash != nil {
		return repository.ErrInvalidTransition
	}
	h := txHash
	reason := "transfer broadcast, awaiting confirmation"
	rec.claim.TxHash = &h
	rec.claim.ErrorMessage = &reason
	rec.claim.UpdatedAt = r.clock.Now()
	return nil
}

func (r *Repository) MarkPending(_ context.Context, id, reason string, txHash *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.claims[id]
	if !ok || rec.claim.Status != models.StatusPending {
		return nil
	}
	rec.claim.ErrorMessage = &reason
	if txHash != nil {
		h := *txHash
		rec.claim.TxHash = &h
	}
	rec.lockedUntil = time.Time{}
	rec.claim.UpdatedAt = r.clock.Now()
	return nil
}

func (r *Repository) Settle(_ context.Context, id string, s models.Settlement) (*models.ClaimTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.claims[id]
	if !ok {
		return nil, repository.ErrClaimNotFound
	}
	c := rec.claim
	if c.Status != models.StatusPending {
		return nil, repository.ErrInvalidTransition
	}

	now := r.clock.Now()
	c.Status = s.Status
	if s.TxHash != "" {
		h := s.TxHash
		c.TxHash = &h
	}
	if s.BlockNumber > 0 {
		b := s.BlockNumber
		c.BlockNumber = &b
	}
	if s.Status == models.StatusConfirmed {
		c.ErrorMessage = nil
		c.ConfirmedAt = &now
	} else if s.Error != "" {
		msg := s.Error
		c.ErrorMessage = &msg
	}
	rec.lockedUntil = time.Time{}
	c.UpdatedAt = now
	return clone(c), nil
}

func (r *Repository) ListPendingWithHash(_ context.Context, limit int) ([]*models.ClaimTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.ClaimTransaction
	for _, rec := range r.claims {
		c := rec.claim
		if c.Status == models.StatusPending && c.Delivery == models.DeliveryTransfer && c.TxHash != nil {
			out = append(out, clone(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Attempts reports how many dispatch leases were taken for a claim.
func (r *Repository) Attempts(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.claims[id]; ok {
		return rec.attempts
	}
	return 0
}

var _ repository.Repository = (*Repository)(nil)
