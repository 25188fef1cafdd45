package models

import "time"

// Session is a bearer session issued by the identity provider after a
// successful wallet sign-in. Only the SHA-256 hash of the token is stored.
type Session struct {
	TokenHash string    `json:"token_hash"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// PruneResult counts rows removed by a sweep.
type PruneResult struct {
	Sessions int64
	Nonces   int64
}
