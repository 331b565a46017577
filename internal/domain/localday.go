package domain

import "time"

// DayRange is a half-open instant range [Start, End) covering one local
// calendar day, together with the date it represents.
type DayRange struct {
	Start time.Time
	End   time.Time
	Day   Date
}

// ResolveYesterday computes the instant range covering "yesterday" as
// experienced in the named IANA zone at the reference instant. Boundaries are
// derived from the zone's calendar rather than fixed 24h arithmetic, so DST
// days of 23 or 25 real hours resolve to the correct dates. An unknown or
// empty zone name falls back to UTC; that is a recovered condition, not an
// error.
func ResolveYesterday(now time.Time, zone string) DayRange {
	loc := time.UTC
	if zone != "" {
		if parsed, err := time.LoadLocation(zone); err == nil {
			loc = parsed
		}
	}

	local := now.In(loc)
	y, m, d := local.Date()

	// time.Date normalizes d-1 across month and year boundaries and snaps
	// to the zone's actual midnight on transition days.
	start := time.Date(y, m, d-1, 0, 0, 0, 0, loc)
	end := time.Date(y, m, d, 0, 0, 0, 0, loc)

	return DayRange{Start: start, End: end, Day: DateOf(start)}
}

// ResolveYesterdayUTC is the shared circle-level boundary: one UTC
// midnight-to-midnight range for all members regardless of their zones.
func ResolveYesterdayUTC(now time.Time) DayRange {
	return ResolveYesterday(now, "UTC")
}
