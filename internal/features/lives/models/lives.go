package models

import "time"

// Mode selects which eligibility path governs play.
type Mode string

const (
	// ModeLives regenerates one life per period up to the maximum.
	ModeLives Mode = "lives"
	// ModeAttempts grants a fixed batch of attempts followed by a cooldown.
	ModeAttempts Mode = "attempts"
)

// ResourceState is the persisted per-user lives record (barn_game_attempts).
// Lives holds remaining lives in ModeLives and remaining attempts in ModeAttempts.
type ResourceState struct {
	UserID            string
	Lives             int
	LastRegeneratedAt time.Time
	HasActiveGame     bool
	LastPlayedDate    *string
	PassExpiresAt     *time.Time
	CooldownEndsAt    *time.Time
	CoinsToday        int64
	MatchesToday      int
}

func (s *ResourceState) Clone() *ResourceState {
	cp := *s
	if s.LastPlayedDate != nil {
		d := *s.LastPlayedDate
		cp.LastPlayedDate = &d
	}
	if s.PassExpiresAt != nil {
		t := *s.PassExpiresAt
		cp.PassExpiresAt = &t
	}
	if s.CooldownEndsAt != nil {
		t := *s.CooldownEndsAt
		cp.CooldownEndsAt = &t
	}
	return &cp
}

// Equal compares every persisted field.
func (s *ResourceState) Equal(o *ResourceState) bool {
	return s.UserID == o.UserID &&
		s.Lives == o.Lives &&
		s.LastRegeneratedAt.Equal(o.LastRegeneratedAt) &&
		s.HasActiveGame == o.HasActiveGame &&
		strPtrEqual(s.LastPlayedDate, o.LastPlayedDate) &&
		timePtrEqual(s.PassExpiresAt, o.PassExpiresAt) &&
		timePtrEqual(s.CooldownEndsAt, o.CooldownEndsAt) &&
		s.CoinsToday == o.CoinsToday &&
		s.MatchesToday == o.MatchesToday
}

func strPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// Status is the externally visible lives state.
// @Description Lives and cooldown status
type Status struct {
	Mode                Mode       `json:"mode" example:"lives"`
	Lives               int        `json:"lives" example:"3"`
	MaxLives            int        `json:"maxLives" example:"5"`
	NextLifeAt          *time.Time `json:"nextLifeAt"`
	CanPlay             bool       `json:"canPlay" example:"true"`
	HasActiveGame       bool       `json:"hasActiveGame"`
	PassActive          bool       `json:"passActive"`
	PassExpiresAt       *time.Time `json:"passExpiresAt,omitempty"`
	CooldownEndsAt      *time.Time `json:"cooldownEndsAt,omitempty"`
	CooldownRemainingMs int64      `json:"cooldownRemainingMs,omitempty"`
	CoinsToday          int64      `json:"coinsToday"`
	MatchesToday        int        `json:"matchesToday"`
}

// ConsumeResult is returned when a game starts.
// @Description Result of starting a game
type ConsumeResult struct {
	OK             bool       `json:"ok"`
	LivesRemaining int        `json:"livesRemaining"`
	NextLifeAt     *time.Time `json:"nextLifeAt"`
	FreePlay       bool       `json:"freePlay"`
	Status         *Status    `json:"status"`
}

// PurchaseKind names what a confirmed payment buys.
type PurchaseKind string

const (
	PurchaseAttempts PurchaseKind = "attempts"
	PurchaseLives    PurchaseKind = "lives"
	PurchasePass     PurchaseKind = "pass"
)

func (k PurchaseKind) Valid() bool {
	switch k {
	case PurchaseAttempts, PurchaseLives, PurchasePass:
		return true
	}
	return false
}

// Purchase is a confirmed payment to be credited once per reference.
type Purchase struct {
	ID        string
	UserID    string
	Kind      PurchaseKind
	Quantity  int
	Reference string
}
