// Package period maps wall-clock instants to calendar days and monthly
// leaderboard periods. All calendar math is done in UTC.
package period

import (
	"fmt"
	"time"
)

const (
	DayLayout   = "2006-01-02"
	MonthLayout = "2006-01"
)

// Clock abstracts time.Now for services that need deterministic tests.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant. Set moves it.
type FixedClock struct {
	T time.Time
}

func (c *FixedClock) Now() time.Time { return c.T }

func (c *FixedClock) Set(t time.Time) { c.T = t }

func (c *FixedClock) Advance(d time.Duration) { c.T = c.T.Add(d) }

// Day returns the calendar day of t, for example "2025-03-09".
func Day(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// PreviousDay returns the calendar day before the day containing t.
func PreviousDay(t time.Time) string {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d-1, 0, 0, 0, 0, time.UTC).Format(DayLayout)
}

// Month returns the leaderboard period containing t, for example "2025-03".
func Month(t time.Time) string {
	return t.UTC().Format(MonthLayout)
}

// PreviousMonth returns the leaderboard period before the one containing t.
func PreviousMonth(t time.Time) string {
	y, m, _ := t.UTC().Date()
	return time.Date(y, m-1, 1, 0, 0, 0, 0, time.UTC).Format(MonthLayout)
}

// ParseMonth validates a YYYY-MM period string.
func ParseMonth(s string) (time.Time, error) {
	t, err := time.Parse(MonthLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid period %q: expected YYYY-MM", s)
	}
	return t, nil
}

// ParseDay validates a YYYY-MM-DD day string.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DayLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day %q: expected YYYY-MM-DD", s)
	}
	return t, nil
}

// StartOfNextDay returns midnight UTC after t.
func StartOfNextDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
}
