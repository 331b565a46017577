// Package domain defines the business logic for the daily streak engine.
package domain

import (
	"context"
	"fmt"
	"time"
)

// Profile describes a user as seen by the streak engine. Read-only input.
type Profile struct {
	UserID   string
	Timezone string // IANA zone name; empty or unknown falls back to UTC.
}

// Sprint is a completed study session. Only sprints with CountsForStreak set
// qualify for streak credit.
type Sprint struct {
	ID              string
	UserID          string
	CircleID        string // empty when the sprint was a solo session
	EndsAt          time.Time
	CountsForStreak bool
}

// Streak is the per-user streak row owned by this engine.
type Streak struct {
	UserID        string
	CurrentLen    int
	BestLen       int
	FreezeTokens  int
	LastCompleted *Date // local calendar date last credited; nil before first credit
}

// Circle is the per-circle streak state owned by this engine. Membership and
// all other circle attributes belong to other subsystems.
type Circle struct {
	ID            string
	CurrentStreak int
	BestStreak    int
	LastCredited  *Date // UTC calendar date last credited; nil before first credit
}

// Date is a calendar date with no time-of-day or zone attached. User streak
// continuity is measured in these, in the user's own zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf extracts the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Time returns midnight UTC of the date, the canonical instant used when a
// date is stored or compared arithmetically.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// IsZero reports whether d is the zero date.
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// DiffDays returns the number of calendar days from 'from' to 'to'. Negative
// when 'to' precedes 'from'.
func DiffDays(from, to Date) int {
	return int(to.Time().Sub(from.Time()) / (24 * time.Hour))
}

// StreakStore captures the persistence operations the orchestrator needs. The
// write methods report false when a conditional write was rejected because the
// day had already been credited, which keeps overlapping runs safe.
type StreakStore interface {
	ListProfiles(ctx context.Context) ([]Profile, error)
	CountQualifyingSprints(ctx context.Context, userID string, from, to time.Time) (int, error)
	GetStreak(ctx context.Context, userID string) (*Streak, error)
	UpsertStreak(ctx context.Context, streak Streak, milestone bool) (bool, error)

	ListCircles(ctx context.Context) ([]Circle, error)
	ListCircleMemberIDs(ctx context.Context, circleID string) ([]string, error)
	CountActiveMembers(ctx context.Context, circleID string, from, to time.Time) (int, error)
	UpdateCircleStreak(ctx context.Context, circle Circle) (bool, error)
}
