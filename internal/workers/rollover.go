package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/okhabit/okhabit/internal/models"
	"github.com/okhabit/okhabit/internal/queue"
	"go.uber.org/zap"
)

// earliestZone is the first zone to reach a new date. A day that is over
// anywhere is over here, so listing against its today never misses a user.
var earliestZone = time.FixedZone("UTC+14", 14*60*60)

// OpenDayLister finds users with daily entries still open.
type OpenDayLister interface {
	ListUserIDsWithOpenDays(ctx context.Context, before models.Date) ([]uuid.UUID, error)
}

// RolloverScheduler periodically enqueues day_rollover jobs for users whose
// earlier days were never put to sleep.
type RolloverScheduler struct {
	jobQueue queue.Enqueuer
	days     OpenDayLister
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewRolloverScheduler creates a scheduler that runs every interval.
func NewRolloverScheduler(jobQueue queue.Enqueuer, days OpenDayLister, interval time.Duration, logger *zap.Logger) *RolloverScheduler {
	return &RolloverScheduler{
		jobQueue: jobQueue,
		days:     days,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Start schedules once immediately and then on every tick until ctx is done.
func (r *RolloverScheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

func (r *RolloverScheduler) runOnce(ctx context.Context) {
	if _, err := r.ScheduleRolloverJobs(ctx); err != nil {
		r.logger.Error("rollover_schedule_failed", zap.Error(err))
	}
}

// ScheduleRolloverJobs enqueues one job per user with an open day before the
// latest current date. Jobs expire after one interval, when the next run
// replaces them. It returns the number of jobs enqueued.
func (r *RolloverScheduler) ScheduleRolloverJobs(ctx context.Context) (int, error) {
	now := r.now()
	users, err := r.days.ListUserIDsWithOpenDays(ctx, models.Today(now, earliestZone))
	if err != nil {
		return 0, fmt.Errorf("failed to list users with open days: %w", err)
	}

	notAfter := now.Add(r.interval)
	var enqueued int
	for _, userID := range users {
		job := queue.NewRolloverJob(userID)
		job.NotAfter = &notAfter
		if err := r.jobQueue.Enqueue(ctx, job); err != nil {
			r.logger.Warn("failed_to_enqueue_rollover_job",
				zap.String("user_id", userID.String()),
				zap.Error(err),
			)
			continue
		}
		enqueued++
	}

	if len(users) > 0 {
		r.logger.Info("scheduled_rollover_jobs",
			zap.Int("user_count", len(users)),
			zap.Int("enqueued", enqueued),
		)
	}
	return enqueued, nil
}
