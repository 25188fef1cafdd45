package service

import (
	"errors"
	"fmt"
	"time"

	"barn-economy-backend/internal/features/lives/models"
	"barn-economy-backend/internal/utils/period"
)

var (
	ErrNoLivesRemaining = errors.New("no lives remaining")
	ErrCooldownActive   = errors.New("attempts cooldown active")
	ErrInvalidAmount    = errors.New("grant amount must be positive")
)

// NoLivesError is returned by Consume at zero lives. NextLifeAt is nil when
// nothing regenerates on its own.
type NoLivesError struct {
	NextLifeAt *time.Time
}

func (e *NoLivesError) Error() string { return ErrNoLivesRemaining.Error() }

func (e *NoLivesError) Is(target error) bool { return target == ErrNoLivesRemaining }

// CooldownError is returned by Consume while the attempts cooldown runs.
type CooldownError struct {
	EndsAt    time.Time
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s: %s remaining", ErrCooldownActive, e.Remaining)
}

func (e *CooldownError) Is(target error) bool { return target == ErrCooldownActive }

// Policy holds the regeneration and cooldown rules. All methods are pure and
// operate on a ResourceState in place.
type Policy struct {
	Mode        models.Mode
	MaxLives    int
	RegenPeriod time.Duration
	MaxAttempts int
	Cooldown    time.Duration
}

// Max is the cap for the configured mode.
func (p Policy) Max() int {
	if p.Mode == models.ModeAttempts {
		return p.MaxAttempts
	}
	return p.MaxLives
}

// NewState is the lazily created default record: full lives, clock at now.
func (p Policy) NewState(userID string, now time.Time) *models.ResourceState {
	return &models.ResourceState{
		UserID:            userID,
		Lives:             p.Max(),
		LastRegeneratedAt: now,
	}
}

// Derive brings the state up to now: clamps, rolls daily counters, applies
// whole regeneration periods or expires a finished cooldown.
func (p Policy) Derive(s *models.ResourceState, now time.Time) {
	max := p.Max()
	if s.Lives < 0 {
		s.Lives = 0
	}
	if s.Lives > max {
		s.Lives = max
	}

	if s.LastPlayedDate != nil && *s.LastPlayedDate != period.Day(now) {
		s.CoinsToday = 0
		s.MatchesToday = 0
	}

	if p.Mode == models.ModeAttempts {
		if s.CooldownEndsAt != nil && !now.Before(*s.CooldownEndsAt) {
			s.Lives = max
			s.CooldownEndsAt = nil
			s.CoinsToday = 0
			s.MatchesToday = 0
		}
		return
	}

	p.regenerate(s, now)
}

// regenerate adds one life per elapsed period. The timestamp moves by the
// periods actually applied, so partial progress survives the read.
func (p Policy) regenerate(s *models.ResourceState, now time.Time) {
	missing := p.MaxLives - s.Lives
	if missing <= 0 {
		return
	}
	elapsed := now.Sub(s.LastRegeneratedAt)
	if elapsed < p.RegenPeriod {
		return
	}
	periods := int64(elapsed / p.RegenPeriod)
	applied := min(periods, int64(missing))
	s.Lives += int(applied)
	s.LastRegeneratedAt = s.LastRegeneratedAt.Add(time.Duration(applied) * p.RegenPeriod)
}

func (p Policy) passActive(s *models.ResourceState, now time.Time) bool {
	return s.PassExpiresAt != nil && now.Before(*s.PassExpiresAt)
}

func (p Policy) cooldownActive(s *models.ResourceState, now time.Time) bool {
	return p.Mode == models.ModeAttempts && s.CooldownEndsAt != nil && now.Before(*s.CooldownEndsAt)
}

// Status renders an already derived state.
func (p Policy) Status(s *models.ResourceState, now time.Time) *models.Status {
	st := &models.Status{
		Mode:          p.Mode,
		Lives:         s.Lives,
		MaxLives:      p.Max(),
		HasActiveGame: s.HasActiveGame,
		CoinsToday:    s.CoinsToday,
		MatchesToday:  s.MatchesToday,
	}

	if p.passActive(s, now) {
		st.PassActive = true
		exp := *s.PassExpiresAt
		st.PassExpiresAt = &exp
	}

	cooling := p.cooldownActive(s, now)
	switch {
	case cooling:
		ends := *s.CooldownEndsAt
		st.CooldownEndsAt = &ends
		st.CooldownRemainingMs = ends.Sub(now).Milliseconds()
		st.NextLifeAt = &ends
	case p.Mode == models.ModeLives && s.Lives < p.MaxLives:
		next := s.LastRegeneratedAt.Add(p.RegenPeriod)
		st.NextLifeAt = &next
	}

	st.CanPlay = st.PassActive || (!cooling && s.Lives > 0)
	return st
}

// Consume starts a game. An active pass plays for free; otherwise one life
// or attempt is spent.
func (p Policy) Consume(s *models.ResourceState, now time.Time) (*models.ConsumeResult, error) {
	p.Derive(s, now)
	today := period.Day(now)

	if p.passActive(s, now) {
		s.HasActiveGame = true
		s.LastPlayedDate = &today
		st := p.Status(s, now)
		return &models.ConsumeResult{OK: true, LivesRemaining: s.Lives, NextLifeAt: st.NextLifeAt, FreePlay: true, Status: st}, nil
	}

	if p.cooldownActive(s, now) {
		return nil, &CooldownError{EndsAt: *s.CooldownEndsAt, Remaining: s.CooldownEndsAt.Sub(now)}
	}

	if s.Lives <= 0 {
		return nil, &NoLivesError{NextLifeAt: p.Status(s, now).NextLifeAt}
	}

	// leaving the cap starts a fresh regeneration cycle
	if p.Mode == models.ModeLives && s.Lives >= p.MaxLives {
		s.LastRegeneratedAt = now
	}
	s.Lives--
	if p.Mode == models.ModeAttempts && s.Lives == 0 {
		ends := now.Add(p.Cooldown)
		s.CooldownEndsAt = &ends
	}
	s.HasActiveGame = true
	s.LastPlayedDate = &today

	st := p.Status(s, now)
	return &models.ConsumeResult{OK: true, LivesRemaining: s.Lives, NextLifeAt: st.NextLifeAt, Status: st}, nil
}

// Grant credits lives or attempts, capped at the maximum. Any credit ends a
// running attempts cooldown.
func (p Policy) Grant(s *models.ResourceState, amount int, now time.Time) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	p.Derive(s, now)

	if p.Mode == models.ModeLives && s.Lives >= p.MaxLives {
		return nil
	}
	s.Lives = min(p.Max(), s.Lives+amount)
	if p.Mode == models.ModeAttempts && s.Lives > 0 {
		s.CooldownEndsAt = nil
	}
	return nil
}

// GrantPass extends the free play window by d, stacking on an active pass.
func (p Policy) GrantPass(s *models.ResourceState, d time.Duration, now time.Time) error {
	if d <= 0 {
		return ErrInvalidAmount
	}
	p.Derive(s, now)

	base := now
	if p.passActive(s, now) {
		base = *s.PassExpiresAt
	}
	exp := base.Add(d)
	s.PassExpiresAt = &exp
	return nil
}

// EndGame clears the active game. A finished match also feeds the daily
// counters.
func (p Policy) EndGame(s *models.ResourceState, coins int64, finished bool, now time.Time) {
	p.Derive(s, now)
	s.HasActiveGame = false
	if !finished {
		return
	}
	today := period.Day(now)
	s.LastPlayedDate = &today
	s.MatchesToday++
	if coins > 0 {
		s.CoinsToday += coins
	}
}
