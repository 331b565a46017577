package domain

// freezeTokenInterval is the streak length interval at which a freeze token
// is awarded.
const freezeTokenInterval = 7

// UserStreakDecision is the outcome of evaluating one user's streak for a
// resolved day. When Changed is false the stored row must not be touched.
type UserStreakDecision struct {
	Changed      bool
	Streak       Streak
	TokenAwarded bool
}

// NoChange is the decision for a user whose state must stay untouched.
func NoChange() UserStreakDecision {
	return UserStreakDecision{}
}

// UpdateUserStreak decides the new streak state for one user given the number
// of qualifying sprints that ended inside their local "yesterday".
//
// A day with no qualifying sprints never mutates state here; misses are the
// business of a separate freeze/penalty pass. Crediting the same local date
// twice is a no-op, which is what makes repeated or overlapping runs safe.
func UpdateUserStreak(userID string, prior *Streak, sprintCount int, day Date) UserStreakDecision {
	if sprintCount == 0 {
		return NoChange()
	}

	newCurrent := 1
	newBest := 1
	tokens := 0

	if prior != nil {
		if prior.LastCompleted != nil {
			if *prior.LastCompleted == day {
				// Already credited for this date.
				return NoChange()
			}
			// Anything other than an exact one-day step, including
			// dates recorded in the future, resets the run.
			if DiffDays(*prior.LastCompleted, day) == 1 {
				newCurrent = prior.CurrentLen + 1
			}
		}
		newBest = max(prior.BestLen, newCurrent)
		tokens = prior.FreezeTokens
	}

	awarded := newCurrent > 0 && newCurrent%freezeTokenInterval == 0
	if awarded {
		tokens++
	}

	credited := day
	return UserStreakDecision{
		Changed: true,
		Streak: Streak{
			UserID:        userID,
			CurrentLen:    newCurrent,
			BestLen:       newBest,
			FreezeTokens:  tokens,
			LastCompleted: &credited,
		},
		TokenAwarded: awarded,
	}
}
