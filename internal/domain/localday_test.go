package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResolveYesterdayUTC(t *testing.T) {
	now := time.Date(2024, time.January, 12, 3, 30, 0, 0, time.UTC)

	r := ResolveYesterday(now, "UTC")

	require.Equal(t, time.Date(2024, time.January, 11, 0, 0, 0, 0, time.UTC), r.Start)
	require.Equal(t, time.Date(2024, time.January, 12, 0, 0, 0, 0, time.UTC), r.End)
	require.Equal(t, Date{2024, time.January, 11}, r.Day)
	require.Equal(t, 24*time.Hour, r.End.Sub(r.Start))
}

func TestResolveYesterdayCrossesDateLine(t *testing.T) {
	// 01:00 UTC on the 12th is still the evening of the 11th in New York,
	// so "yesterday" there is the 10th.
	now := time.Date(2024, time.January, 12, 1, 0, 0, 0, time.UTC)

	r := ResolveYesterday(now, "America/New_York")

	require.Equal(t, Date{2024, time.January, 10}, r.Day)
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, time.January, 10, 0, 0, 0, 0, ny), r.Start)
	require.Equal(t, time.Date(2024, time.January, 11, 0, 0, 0, 0, ny), r.End)
}

func TestResolveYesterdaySpringForward(t *testing.T) {
	// US DST began 2024-03-10; that local day is only 23 real hours long.
	// The resolved range must still cover the whole calendar date.
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	now := time.Date(2024, time.March, 11, 12, 0, 0, 0, ny)
	r := ResolveYesterday(now, "America/New_York")

	require.Equal(t, Date{2024, time.March, 10}, r.Day)
	require.Equal(t, 23*time.Hour, r.End.Sub(r.Start))
	require.Equal(t, time.Date(2024, time.March, 10, 0, 0, 0, 0, ny), r.Start)
}

func TestResolveYesterdayFallBack(t *testing.T) {
	// US DST ended 2024-11-03; that local day lasts 25 real hours.
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	now := time.Date(2024, time.November, 4, 8, 0, 0, 0, ny)
	r := ResolveYesterday(now, "America/New_York")

	require.Equal(t, Date{2024, time.November, 3}, r.Day)
	require.Equal(t, 25*time.Hour, r.End.Sub(r.Start))
}

func TestResolveYesterdayUnknownZoneFallsBackToUTC(t *testing.T) {
	now := time.Date(2024, time.June, 2, 10, 0, 0, 0, time.UTC)

	for _, zone := range []string{"", "Not/AZone", "garbage"} {
		r := ResolveYesterday(now, zone)
		require.Equal(t, Date{2024, time.June, 1}, r.Day, "zone %q", zone)
		require.Equal(t, time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC), r.Start)
	}
}

func TestResolveYesterdayAcrossMonthAndYear(t *testing.T) {
	r := ResolveYesterday(time.Date(2024, time.March, 1, 5, 0, 0, 0, time.UTC), "UTC")
	require.Equal(t, Date{2024, time.February, 29}, r.Day) // leap year

	r = ResolveYesterday(time.Date(2024, time.January, 1, 5, 0, 0, 0, time.UTC), "UTC")
	require.Equal(t, Date{2023, time.December, 31}, r.Day)
}

func TestDiffDays(t *testing.T) {
	a := Date{2024, time.January, 10}

	require.Equal(t, 1, DiffDays(a, Date{2024, time.January, 11}))
	require.Equal(t, 2, DiffDays(a, Date{2024, time.January, 12}))
	require.Equal(t, 0, DiffDays(a, a))
	require.Equal(t, -1, DiffDays(a, Date{2024, time.January, 9}))
	require.Equal(t, 31, DiffDays(Date{2023, time.December, 31}, Date{2024, time.January, 31}))
}
