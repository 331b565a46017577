package domain

// Circle participation threshold: at least 3 of every 5 members (60%) must
// have completed a qualifying sprint for the circle's day to count.
const (
	participationNum = 3
	participationDen = 5
)

// CircleStreakDecision is the outcome of evaluating one circle for the shared
// UTC day. When Changed is false the stored row must not be touched.
type CircleStreakDecision struct {
	Changed bool
	Circle  Circle
}

// UpdateCircleStreak decides the new streak state for a circle given its live
// member count and the number of distinct members active inside the shared
// UTC "yesterday" range.
//
// Circles with no members are skipped outright. A circle whose LastCredited
// date already equals the resolved day is also skipped, so a rerun of the job
// cannot double-increment.
func UpdateCircleStreak(circle Circle, memberCount, activeCount int, day Date) CircleStreakDecision {
	if memberCount == 0 {
		return CircleStreakDecision{}
	}
	if circle.LastCredited != nil && *circle.LastCredited == day {
		return CircleStreakDecision{}
	}

	next := circle
	// Integer form of activeCount/memberCount >= 0.6, exact at the boundary.
	if activeCount*participationDen >= memberCount*participationNum {
		next.CurrentStreak = circle.CurrentStreak + 1
		credited := day
		next.LastCredited = &credited
	} else {
		next.CurrentStreak = 0
		// A reset is not a credit. The nil marker tells the store to
		// leave the stored last_credited_day untouched.
		next.LastCredited = nil
	}
	next.BestStreak = max(circle.BestStreak, next.CurrentStreak)

	return CircleStreakDecision{Changed: true, Circle: next}
}
