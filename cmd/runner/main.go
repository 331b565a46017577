// The runner performs one streak computation pass and exits. It is intended
// to be invoked by cron or any external scheduler once per day.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"example.com/streaks/internal/config"
	"example.com/streaks/internal/job"
	"example.com/streaks/internal/outbox"
	persistence "example.com/streaks/internal/persistence/postgres"
)

func main() {
	base, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer base.Sync()
	logger := base.Sugar()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Fatalw("invalid configuration", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := persistence.Connect(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatalw("failed to connect to postgres", "error", err)
	}
	defer pool.Close()

	repo := persistence.NewRepository(pool)
	runner := job.NewRunner(repo, logger, job.WithConcurrency(cfg.JobConcurrency))

	report, err := runner.Run(ctx, time.Now())
	if err != nil {
		logger.Errorw("run aborted", "error", err)
		os.Exit(1)
	}

	// Per-entity failures are already in the report and logged; a degraded
	// run still exits zero so the scheduler does not hammer retries.
	producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
	defer producer.Close()

	dispatcher := outbox.NewDispatcher(pool, producer, logger, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
	if err := dispatcher.Drain(ctx); err != nil {
		logger.Warnw("outbox drain incomplete, events will be retried next run", "error", err)
	}

	logger.Infow("run complete",
		"run_id", report.RunID,
		"processed_users", report.ProcessedUsers,
		"processed_circles", report.ProcessedCircles,
		"failures", len(report.Failures),
	)
}
