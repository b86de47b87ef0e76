package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/okhabit/okhabit/internal/blob"
	"github.com/okhabit/okhabit/internal/database"
	"github.com/okhabit/okhabit/internal/queue"
	"github.com/okhabit/okhabit/internal/services/journal"
	"github.com/okhabit/okhabit/internal/telemetry"
	"go.uber.org/zap"
)

const (
	baseRetryDelay = 30 * time.Second
	maxRetryDelay  = 30 * time.Minute
)

// DayCloser closes daily entries left open past their date.
type DayCloser interface {
	CloseStaleDays(ctx context.Context, userID uuid.UUID, now time.Time) (int, error)
}

// JobProcessor runs jobs pulled from the queue.
type JobProcessor struct {
	days     DayCloser
	blobs    blob.Store
	jobQueue queue.Enqueuer
	logger   *zap.Logger
	now      func() time.Time
}

// NewJobProcessor creates a processor. jobQueue is used to schedule retries
// and may be nil, in which case failed jobs are requeued immediately.
func NewJobProcessor(days DayCloser, blobs blob.Store, jobQueue queue.Enqueuer, logger *zap.Logger) *JobProcessor {
	return &JobProcessor{
		days:     days,
		blobs:    blobs,
		jobQueue: jobQueue,
		logger:   logger,
		now:      time.Now,
	}
}

// ProcessJob handles one message and acks or nacks it.
func (p *JobProcessor) ProcessJob(ctx context.Context, msg queue.MessageInterface) error {
	job := msg.GetJob()
	if job == nil {
		_ = msg.Nack(false)
		return errors.New("message carries no job")
	}

	ctx, span := telemetry.StartJobSpan(ctx, string(job.Type), job.ID.String(), job.UserID.String())
	err := p.process(ctx, msg, job)
	telemetry.EndSpan(span, err)
	return err
}

func (p *JobProcessor) process(ctx context.Context, msg queue.MessageInterface, job *queue.Job) error {
	now := p.now()

	if job.IsExpired(now) {
		p.logger.Info("job_expired",
			zap.String("job_id", job.ID.String()),
			zap.String("job_type", string(job.Type)),
		)
		return msg.Nack(false)
	}
	if !job.ShouldProcess(now) {
		return msg.Nack(true)
	}
	if err := job.Validate(); err != nil {
		_ = msg.Nack(false)
		return fmt.Errorf("invalid job %s: %w", job.ID, err)
	}

	var err error
	switch job.Type {
	case queue.JobTypeDayRollover:
		err = p.processRollover(ctx, job, now)
	case queue.JobTypeMediaCleanup:
		err = p.processMediaCleanup(ctx, job)
	default:
		_ = msg.Nack(false)
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	if err != nil {
		return p.handleJobError(ctx, msg, job, err)
	}

	if err := msg.Ack(); err != nil {
		return fmt.Errorf("failed to ack job: %w", err)
	}
	return nil
}

func (p *JobProcessor) processRollover(ctx context.Context, job *queue.Job, now time.Time) error {
	closed, err := p.days.CloseStaleDays(ctx, job.UserID, now)
	if errors.Is(err, database.ErrNotFound) {
		p.logger.Info("rollover_user_gone", zap.String("user_id", job.UserID.String()))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to close stale days: %w", err)
	}
	if closed > 0 {
		p.logger.Info("stale_days_closed",
			zap.String("user_id", job.UserID.String()),
			zap.Int("count", closed),
		)
	}
	return nil
}

func (p *JobProcessor) processMediaCleanup(ctx context.Context, job *queue.Job) error {
	if err := journal.DeleteMedia(ctx, p.blobs, job.Bucket, job.Paths); err != nil {
		return err
	}
	p.logger.Info("media_deleted",
		zap.String("user_id", job.UserID.String()),
		zap.String("bucket", job.Bucket),
		zap.Int("count", len(job.Paths)),
	)
	return nil
}

// handleJobError schedules a delayed retry or dead-letters the job once
// retries are exhausted.
func (p *JobProcessor) handleJobError(ctx context.Context, msg queue.MessageInterface, job *queue.Job, jobErr error) error {
	if !job.CanRetry() {
		p.logger.Error("job_failed_sending_to_dlq",
			zap.String("job_id", job.ID.String()),
			zap.String("job_type", string(job.Type)),
			zap.Int("retry_count", job.RetryCount),
			zap.Error(jobErr),
		)
		_ = msg.Nack(false)
		return fmt.Errorf("job failed after %d retries: %w", job.RetryCount, jobErr)
	}

	if p.jobQueue == nil {
		_ = msg.Nack(true)
		return fmt.Errorf("job failed (requeued): %w", jobErr)
	}

	retry := *job
	retry.IncrementRetry()
	notBefore := p.now().Add(RetryDelay(retry.RetryCount))
	retry.NotBefore = &notBefore

	if err := p.jobQueue.Enqueue(ctx, &retry); err != nil {
		p.logger.Warn("failed_to_reenqueue_job",
			zap.String("job_id", job.ID.String()),
			zap.Error(err),
		)
		_ = msg.Nack(true)
		return fmt.Errorf("job failed and retry could not be scheduled: %w", errors.Join(jobErr, err))
	}
	if err := msg.Ack(); err != nil {
		return fmt.Errorf("failed to ack retried job: %w", err)
	}

	p.logger.Warn("job_failed_will_retry",
		zap.String("job_id", job.ID.String()),
		zap.String("job_type", string(job.Type)),
		zap.Int("attempt", retry.RetryCount),
		zap.Time("retry_at", notBefore),
		zap.Error(jobErr),
	)
	return fmt.Errorf("job failed (will retry): %w", jobErr)
}

// RetryDelay is the backoff before retry attempt n (1-based).
func RetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := baseRetryDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return d
}
