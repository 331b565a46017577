// Package postgres implements the streak store on pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/streaks/internal/domain"
	"example.com/streaks/internal/outbox"
)

// Repository provides Postgres-backed persistence for streak state and the
// streak event outbox.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListProfiles returns every user profile the job must evaluate.
func (r *Repository) ListProfiles(ctx context.Context) ([]domain.Profile, error) {
	const query = `SELECT user_id, COALESCE(NULLIF(timezone, ''), 'UTC') FROM profiles`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []domain.Profile
	for rows.Next() {
		var p domain.Profile
		if err := rows.Scan(&p.UserID, &p.Timezone); err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// CountQualifyingSprints counts sprints for a user that ended inside
// [from, to) and ran their full duration.
func (r *Repository) CountQualifyingSprints(ctx context.Context, userID string, from, to time.Time) (int, error) {
	const query = `SELECT count(*) FROM sprints
        WHERE user_id = $1 AND counts_for_streak AND ends_at >= $2 AND ends_at < $3`

	var count int
	if err := r.pool.QueryRow(ctx, query, userID, from, to).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// GetStreak loads a user's streak row, or nil when none exists yet.
func (r *Repository) GetStreak(ctx context.Context, userID string) (*domain.Streak, error) {
	const query = `SELECT user_id, current_len, best_len, freeze_tokens, last_completed_local_date
        FROM streaks WHERE user_id = $1`

	var s domain.Streak
	var last *time.Time
	err := r.pool.QueryRow(ctx, query, userID).Scan(&s.UserID, &s.CurrentLen, &s.BestLen, &s.FreezeTokens, &last)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if last != nil {
		d := domain.DateOf(last.UTC())
		s.LastCompleted = &d
	}
	return &s, nil
}

// UpsertStreak writes a user's new streak state. The conditional update is
// keyed on last_completed_local_date so two overlapping runs cannot credit
// the same date twice; it reports false when the write lost that race. The
// streak.updated outbox event is recorded in the same transaction.
func (r *Repository) UpsertStreak(ctx context.Context, streak domain.Streak, milestone bool) (applied bool, err error) {
	if streak.LastCompleted == nil {
		return false, errors.New("streak row requires a completed date")
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	const stmt = `INSERT INTO streaks (user_id, current_len, best_len, freeze_tokens, last_completed_local_date, updated_at)
        VALUES ($1, $2, $3, $4, $5, now())
        ON CONFLICT (user_id) DO UPDATE
        SET current_len = EXCLUDED.current_len,
            best_len = EXCLUDED.best_len,
            freeze_tokens = EXCLUDED.freeze_tokens,
            last_completed_local_date = EXCLUDED.last_completed_local_date,
            updated_at = now()
        WHERE streaks.last_completed_local_date IS DISTINCT FROM EXCLUDED.last_completed_local_date`

	tag, err := tx.Exec(ctx, stmt,
		streak.UserID,
		streak.CurrentLen,
		streak.BestLen,
		streak.FreezeTokens,
		streak.LastCompleted.Time(),
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		err = tx.Commit(ctx)
		return false, err
	}

	event := outbox.StreakUpdated{
		UserID:        streak.UserID,
		CurrentLen:    streak.CurrentLen,
		BestLen:       streak.BestLen,
		FreezeTokens:  streak.FreezeTokens,
		CompletedDate: streak.LastCompleted.String(),
		Milestone:     milestone,
	}
	dedupe := fmt.Sprintf("%s:%s:%s", outbox.EventStreakUpdated, streak.UserID, streak.LastCompleted.String())
	if err = insertOutbox(ctx, tx, outbox.TopicStreakEvents, outbox.EventStreakUpdated, "streak", streak.UserID, streak.UserID, dedupe, event); err != nil {
		return false, err
	}

	err = tx.Commit(ctx)
	return err == nil, err
}

// ListCircles returns every circle's current streak state.
func (r *Repository) ListCircles(ctx context.Context) ([]domain.Circle, error) {
	const query = `SELECT circle_id, current_streak, best_streak, last_credited_day FROM circles`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var circles []domain.Circle
	for rows.Next() {
		var c domain.Circle
		var credited *time.Time
		if err := rows.Scan(&c.ID, &c.CurrentStreak, &c.BestStreak, &credited); err != nil {
			return nil, err
		}
		if credited != nil {
			d := domain.DateOf(credited.UTC())
			c.LastCredited = &d
		}
		circles = append(circles, c)
	}
	return circles, rows.Err()
}

// ListCircleMemberIDs returns the current members of a circle. Membership is
// owned elsewhere; the job recomputes the live count on every run.
func (r *Repository) ListCircleMemberIDs(ctx context.Context, circleID string) ([]string, error) {
	const query = `SELECT user_id FROM circle_members WHERE circle_id = $1`

	rows, err := r.pool.Query(ctx, query, circleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountActiveMembers counts distinct current members with at least one
// qualifying sprint in the circle during [from, to).
func (r *Repository) CountActiveMembers(ctx context.Context, circleID string, from, to time.Time) (int, error) {
	const query = `SELECT count(DISTINCT s.user_id) FROM sprints s
        JOIN circle_members m ON m.circle_id = s.circle_id AND m.user_id = s.user_id
        WHERE s.circle_id = $1 AND s.counts_for_streak AND s.ends_at >= $2 AND s.ends_at < $3`

	var count int
	if err := r.pool.QueryRow(ctx, query, circleID, from, to).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// UpdateCircleStreak writes a circle's new streak state. A non-nil
// LastCredited marks a credit and is guarded the same way user rows are; a
// nil LastCredited (reset) leaves the stored marker untouched. The
// circle.streak_updated outbox event is recorded in the same transaction.
func (r *Repository) UpdateCircleStreak(ctx context.Context, circle domain.Circle) (applied bool, err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	const stmt = `UPDATE circles
        SET current_streak = $2,
            best_streak = $3,
            last_credited_day = COALESCE($4, last_credited_day),
            updated_at = now()
        WHERE circle_id = $1
          AND ($4::date IS NULL OR circles.last_credited_day IS DISTINCT FROM $4::date)`

	var creditedDay any
	creditedDate := ""
	if circle.LastCredited != nil {
		creditedDay = circle.LastCredited.Time()
		creditedDate = circle.LastCredited.String()
	}

	tag, err := tx.Exec(ctx, stmt, circle.ID, circle.CurrentStreak, circle.BestStreak, creditedDay)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		err = tx.Commit(ctx)
		return false, err
	}

	event := outbox.CircleStreakUpdated{
		CircleID:      circle.ID,
		CurrentStreak: circle.CurrentStreak,
		BestStreak:    circle.BestStreak,
		CreditedDate:  creditedDate,
	}
	dedupe := fmt.Sprintf("%s:%s:%s", outbox.EventCircleStreakUpdated, circle.ID, creditedDate)
	if creditedDate == "" {
		// Resets carry no date; key them uniquely so the dedupe
		// constraint never swallows a later reset.
		dedupe = fmt.Sprintf("%s:%s:reset:%s", outbox.EventCircleStreakUpdated, circle.ID, uuid.NewString())
	}
	if err = insertOutbox(ctx, tx, outbox.TopicCircleStreakEvents, outbox.EventCircleStreakUpdated, "circle", circle.ID, circle.ID, dedupe, event); err != nil {
		return false, err
	}

	err = tx.Commit(ctx)
	return err == nil, err
}

func insertOutbox(ctx context.Context, tx pgx.Tx, topic, eventType, aggregateType, aggregateID, partitionKey, dedupeKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, partition_key, payload, dedupe_key)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (dedupe_key) DO NOTHING`

	_, err = tx.Exec(ctx, stmt, aggregateType, aggregateID, eventType, topic, partitionKey, body, dedupeKey)
	return err
}
