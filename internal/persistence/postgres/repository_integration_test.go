//go:build integration

package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/streaks/internal/domain"
)

func setupRepository(t *testing.T, ctx context.Context) (*Repository, *pgxpool.Pool) {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("studyapp"),
		postgrescontainer.WithUsername("streaks"),
		postgrescontainer.WithPassword("streaks"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, waitForDatabase(ctx, connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	ddl, err := os.ReadFile("../../../db/postgres/migrations/0001_init.up.sql")
	require.NoError(t, err)
	_, err = pool.Exec(ctx, string(ddl))
	require.NoError(t, err)

	return NewRepository(pool), pool
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	var lastErr error
	for time.Now().Before(deadline) {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				pool.Close()
				return nil
			}
			pool.Close()
		}
		lastErr = err
		time.Sleep(500 * time.Millisecond)
	}
	return lastErr
}

func TestUpsertStreakGuardsCreditedDate(t *testing.T) {
	ctx := context.Background()
	repo, pool := setupRepository(t, ctx)

	userID := uuid.NewString()
	day := domain.Date{Year: 2024, Month: time.January, Day: 11}

	applied, err := repo.UpsertStreak(ctx, domain.Streak{
		UserID: userID, CurrentLen: 1, BestLen: 1, LastCompleted: &day,
	}, false)
	require.NoError(t, err)
	require.True(t, applied)

	// Same date again: the conditional write must reject it.
	applied, err = repo.UpsertStreak(ctx, domain.Streak{
		UserID: userID, CurrentLen: 2, BestLen: 2, LastCompleted: &day,
	}, false)
	require.NoError(t, err)
	require.False(t, applied)

	stored, err := repo.GetStreak(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, 1, stored.CurrentLen)
	require.Equal(t, day, *stored.LastCompleted)

	// Next day goes through and leaves an outbox event per applied write.
	next := domain.Date{Year: 2024, Month: time.January, Day: 12}
	applied, err = repo.UpsertStreak(ctx, domain.Streak{
		UserID: userID, CurrentLen: 2, BestLen: 2, LastCompleted: &next,
	}, false)
	require.NoError(t, err)
	require.True(t, applied)

	var events int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT count(*) FROM outbox WHERE aggregate_id = $1 AND published_at IS NULL`, userID).Scan(&events))
	require.Equal(t, 2, events)
}

func TestSprintCountsRespectRangeAndFlag(t *testing.T) {
	ctx := context.Background()
	repo, pool := setupRepository(t, ctx)

	userID := uuid.NewString()
	from := time.Date(2024, time.January, 11, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	insert := func(endsAt time.Time, counts bool) {
		_, err := pool.Exec(ctx,
			`INSERT INTO sprints (sprint_id, user_id, ends_at, counts_for_streak) VALUES ($1, $2, $3, $4)`,
			uuid.NewString(), userID, endsAt, counts)
		require.NoError(t, err)
	}

	insert(from.Add(10*time.Hour), true)  // inside
	insert(from.Add(-time.Minute), true)  // before range
	insert(to, true)                      // exclusive upper bound
	insert(from.Add(12*time.Hour), false) // cut short, never counts
	insert(to.Add(-time.Second), true)    // just inside

	count, err := repo.CountQualifyingSprints(ctx, userID, from, to)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestCircleStreakGuardAndReset(t *testing.T) {
	ctx := context.Background()
	repo, pool := setupRepository(t, ctx)

	circleID := uuid.NewString()
	_, err := pool.Exec(ctx,
		`INSERT INTO circles (circle_id, current_streak, best_streak) VALUES ($1, 3, 5)`, circleID)
	require.NoError(t, err)

	day := domain.Date{Year: 2024, Month: time.January, Day: 11}

	// Credit.
	applied, err := repo.UpdateCircleStreak(ctx, domain.Circle{
		ID: circleID, CurrentStreak: 4, BestStreak: 5, LastCredited: &day,
	})
	require.NoError(t, err)
	require.True(t, applied)

	// Rerun for the same day is rejected.
	applied, err = repo.UpdateCircleStreak(ctx, domain.Circle{
		ID: circleID, CurrentStreak: 5, BestStreak: 5, LastCredited: &day,
	})
	require.NoError(t, err)
	require.False(t, applied)

	// A reset applies but keeps the credited-day marker.
	applied, err = repo.UpdateCircleStreak(ctx, domain.Circle{
		ID: circleID, CurrentStreak: 0, BestStreak: 5,
	})
	require.NoError(t, err)
	require.True(t, applied)

	circles, err := repo.ListCircles(ctx)
	require.NoError(t, err)
	require.Len(t, circles, 1)
	require.Equal(t, 0, circles[0].CurrentStreak)
	require.Equal(t, 5, circles[0].BestStreak)
	require.NotNil(t, circles[0].LastCredited)
	require.Equal(t, day, *circles[0].LastCredited)
}
