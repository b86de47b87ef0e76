package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// GarbageCollector periodically drops dead-lettered jobs older than retention.
// Dropped media_cleanup jobs are logged with their paths, since the files they
// name are left behind in blob storage.
type GarbageCollector struct {
	purger    DLQPurger
	interval  time.Duration
	retention time.Duration
	logger    *zap.Logger
}

// NewGarbageCollector creates a collector that runs every interval.
func NewGarbageCollector(purger DLQPurger, interval, retention time.Duration, logger *zap.Logger) *GarbageCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GarbageCollector{purger: purger, interval: interval, retention: retention, logger: logger}
}

// Start runs until ctx is cancelled and returns ctx.Err().
func (gc *GarbageCollector) Start(ctx context.Context) error {
	ticker := time.NewTicker(gc.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := gc.collect(ctx); err != nil {
				gc.logger.Error("dlq_gc_failed", zap.Error(err))
			}
		}
	}
}

// collect purges once and returns the number of dropped jobs per type.
// Undecodable messages are counted under "unknown".
func (gc *GarbageCollector) collect(ctx context.Context) (map[JobType]int, error) {
	if gc.purger == nil {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	jobs, err := gc.purger.PurgeOlderThan(ctx, gc.retention)
	counts := make(map[JobType]int)
	for _, job := range jobs {
		if job == nil {
			counts["unknown"]++
			continue
		}
		counts[job.Type]++
		if job.Type == JobTypeMediaCleanup {
			gc.logger.Warn("dlq_gc_dropped_media_cleanup",
				zap.String("job_id", job.ID.String()),
				zap.String("user_id", job.UserID.String()),
				zap.String("bucket", job.Bucket),
				zap.Strings("paths", job.Paths),
			)
		}
	}
	if len(jobs) > 0 {
		gc.logger.Info("dlq_gc_purged",
			zap.Int("count", len(jobs)),
			zap.Int("day_rollover", counts[JobTypeDayRollover]),
			zap.Int("media_cleanup", counts[JobTypeMediaCleanup]),
			zap.Duration("retention", gc.retention),
		)
	}
	if err != nil {
		return counts, fmt.Errorf("DLQ purge: %w", err)
	}
	return counts, nil
}
