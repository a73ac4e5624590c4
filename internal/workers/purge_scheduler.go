package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/givebridge/givebridge/internal/tasks"
)

// Enqueuer is the subset of *asynq.Client used by the scheduler
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// StartPurgeScheduler enqueues a session purge at every activation of the
// cron schedule until ctx is cancelled.
func StartPurgeScheduler(ctx context.Context, client Enqueuer, schedule string, logger zerolog.Logger) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithLocation(time.UTC))

	if _, err := c.AddFunc(schedule, func() {
		enqueuePurge(ctx, client, time.Now(), logger)
	}); err != nil {
		return fmt.Errorf("invalid purge schedule %q: %w", schedule, err)
	}

	logger.Info().Str("schedule", schedule).Msg("Starting session purge scheduler")
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	logger.Info().Msg("Session purge scheduler stopped")
	return nil
}

func enqueuePurge(ctx context.Context, client Enqueuer, now time.Time, logger zerolog.Logger) {
	task, err := tasks.NewPurgeSessionsTask(now)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create purge task")
		return
	}

	info, err := client.EnqueueContext(ctx, task,
		asynq.Queue("low"),
		asynq.MaxRetry(3),
		asynq.Unique(10*time.Minute),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			logger.Debug().Msg("Session purge already queued")
			return
		}
		logger.Error().Err(err).Msg("Failed to enqueue session purge")
		return
	}

	logger.Debug().Str("task_id", info.ID).Msg("Enqueued session purge")
}
