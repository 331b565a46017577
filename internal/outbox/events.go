// Package outbox persists streak events alongside state writes and delivers
// them to Kafka for the notification and recommendation functions downstream.
package outbox

// Topics the dispatcher publishes to.
const (
	TopicStreakEvents       = "streak_events"
	TopicCircleStreakEvents = "circle_streak_events"
)

// Event types carried in the event_type message header.
const (
	EventStreakUpdated       = "streak.updated"
	EventCircleStreakUpdated = "circle.streak_updated"
)

// StreakUpdated is emitted whenever a user's streak row changes. Milestone is
// set when the change awarded a freeze token, which is what the reminder
// function keys its celebratory pushes on.
type StreakUpdated struct {
	UserID        string `json:"user_id"`
	CurrentLen    int    `json:"current_len"`
	BestLen       int    `json:"best_len"`
	FreezeTokens  int    `json:"freeze_tokens"`
	CompletedDate string `json:"completed_date"`
	Milestone     bool   `json:"milestone"`
}

// CircleStreakUpdated is emitted whenever a circle's streak row changes.
type CircleStreakUpdated struct {
	CircleID      string `json:"circle_id"`
	CurrentStreak int    `json:"current_streak"`
	BestStreak    int    `json:"best_streak"`
	CreditedDate  string `json:"credited_date,omitempty"`
}
