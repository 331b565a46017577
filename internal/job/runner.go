// Package job runs the daily streak computation across all users and circles.
package job

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"example.com/streaks/internal/domain"
	"example.com/streaks/internal/observability"
)

// Entity type labels used in failure records and metrics.
const (
	EntityUser   = "user"
	EntityCircle = "circle"
)

const defaultConcurrency = 8

// FailureRecord captures one entity that could not be evaluated or persisted.
// The run keeps going; the record is the only trace the caller gets.
type FailureRecord struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Cause      string `json:"cause"`
}

// Report is the structured outcome of one job run.
type Report struct {
	RunID            string          `json:"run_id"`
	Success          bool            `json:"success"`
	ProcessedUsers   int             `json:"processed_users"`
	ProcessedCircles int             `json:"processed_circles"`
	Failures         []FailureRecord `json:"failures"`
	StartedAt        time.Time       `json:"started_at"`
	FinishedAt       time.Time       `json:"finished_at"`
}

// Runner orchestrates one streak computation pass. It is safe to reuse across
// runs; each run gets its own report.
type Runner struct {
	store       domain.StreakStore
	log         *zap.SugaredLogger
	concurrency int
}

// Option configures optional Runner behaviour.
type Option func(*Runner)

// WithConcurrency bounds the per-entity fan-out. Values below 1 keep the
// default.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n >= 1 {
			r.concurrency = n
		}
	}
}

// NewRunner constructs a Runner over the given store.
func NewRunner(store domain.StreakStore, logger *zap.SugaredLogger, opts ...Option) *Runner {
	r := &Runner{
		store:       store,
		log:         logger,
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one full pass: every user against their own local "yesterday",
// then every circle against the shared UTC one. Entity failures are collected
// into the report and never abort the run; an error is returned only when a
// phase listing fails or the context is cancelled.
func (r *Runner) Run(ctx context.Context, now time.Time) (Report, error) {
	// StartedAt is wall time, not the reference instant: re-running a past
	// day must not skew run-duration metrics or the last-run watermark.
	report := Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	log := r.log.With("run_id", report.RunID)
	log.Infow("daily streak run starting", "reference_time", now.UTC())

	var collector failureCollector

	users, err := r.runUsers(ctx, now, &collector)
	if err != nil {
		return report, fmt.Errorf("user phase: %w", err)
	}
	report.ProcessedUsers = users

	circles, err := r.runCircles(ctx, now, &collector)
	if err != nil {
		return report, fmt.Errorf("circle phase: %w", err)
	}
	report.ProcessedCircles = circles

	report.Failures = collector.records()
	report.Success = len(report.Failures) == 0
	report.FinishedAt = time.Now().UTC()

	observability.RecordRun(report.Success, report.StartedAt, report.FinishedAt.Sub(report.StartedAt))
	log.Infow("daily streak run finished",
		"processed_users", report.ProcessedUsers,
		"processed_circles", report.ProcessedCircles,
		"failures", len(report.Failures),
		"success", report.Success,
	)
	return report, nil
}

func (r *Runner) runUsers(ctx context.Context, now time.Time, collector *failureCollector) (int, error) {
	profiles, err := r.store.ListProfiles(ctx)
	if err != nil {
		return 0, fmt.Errorf("list profiles: %w", err)
	}

	var processed int
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, profile := range profiles {
		profile := profile
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := r.updateUser(gctx, now, profile); err != nil {
				collector.add(EntityUser, profile.UserID, err)
				observability.RecordEntityFailure(EntityUser)
				r.log.Warnw("user streak update failed", "user_id", profile.UserID, "error", err)
				return nil
			}
			mu.Lock()
			processed++
			mu.Unlock()
			observability.RecordEntityProcessed(EntityUser)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return processed, err
	}
	return processed, nil
}

func (r *Runner) updateUser(ctx context.Context, now time.Time, profile domain.Profile) error {
	yesterday := domain.ResolveYesterday(now, profile.Timezone)

	count, err := r.store.CountQualifyingSprints(ctx, profile.UserID, yesterday.Start, yesterday.End)
	if err != nil {
		return fmt.Errorf("count sprints: %w", err)
	}

	prior, err := r.store.GetStreak(ctx, profile.UserID)
	if err != nil {
		return fmt.Errorf("load streak: %w", err)
	}

	decision := domain.UpdateUserStreak(profile.UserID, prior, count, yesterday.Day)
	if !decision.Changed {
		return nil
	}

	applied, err := r.store.UpsertStreak(ctx, decision.Streak, decision.TokenAwarded)
	if err != nil {
		return fmt.Errorf("persist streak: %w", err)
	}
	if !applied {
		// A concurrent run credited the same date first. Equivalent to
		// the NoChange path, not a failure.
		r.log.Debugw("streak write skipped, date already credited", "user_id", profile.UserID, "day", yesterday.Day)
	}
	return nil
}

func (r *Runner) runCircles(ctx context.Context, now time.Time, collector *failureCollector) (int, error) {
	circles, err := r.store.ListCircles(ctx)
	if err != nil {
		return 0, fmt.Errorf("list circles: %w", err)
	}

	// One shared UTC boundary for every circle, by design coarser than the
	// per-user local boundaries.
	yesterday := domain.ResolveYesterdayUTC(now)

	var processed int
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, circle := range circles {
		circle := circle
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := r.updateCircle(gctx, circle, yesterday); err != nil {
				collector.add(EntityCircle, circle.ID, err)
				observability.RecordEntityFailure(EntityCircle)
				r.log.Warnw("circle streak update failed", "circle_id", circle.ID, "error", err)
				return nil
			}
			mu.Lock()
			processed++
			mu.Unlock()
			observability.RecordEntityProcessed(EntityCircle)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return processed, err
	}
	return processed, nil
}

func (r *Runner) updateCircle(ctx context.Context, circle domain.Circle, yesterday domain.DayRange) error {
	memberIDs, err := r.store.ListCircleMemberIDs(ctx, circle.ID)
	if err != nil {
		return fmt.Errorf("list members: %w", err)
	}

	active := 0
	if len(memberIDs) > 0 {
		active, err = r.store.CountActiveMembers(ctx, circle.ID, yesterday.Start, yesterday.End)
		if err != nil {
			return fmt.Errorf("count active members: %w", err)
		}
	}

	decision := domain.UpdateCircleStreak(circle, len(memberIDs), active, yesterday.Day)
	if !decision.Changed {
		return nil
	}

	applied, err := r.store.UpdateCircleStreak(ctx, decision.Circle)
	if err != nil {
		return fmt.Errorf("persist circle streak: %w", err)
	}
	if !applied {
		r.log.Debugw("circle write skipped, day already credited", "circle_id", circle.ID, "day", yesterday.Day)
	}
	return nil
}

type failureCollector struct {
	mu       sync.Mutex
	failures []FailureRecord
}

func (c *failureCollector) add(entityType, entityID string, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, FailureRecord{
		EntityType: entityType,
		EntityID:   entityID,
		Cause:      cause.Error(),
	})
}

func (c *failureCollector) records() []FailureRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]FailureRecord, 0, len(c.failures))
	return append(out, c.failures...)
}
