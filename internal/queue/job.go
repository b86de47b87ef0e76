package queue

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobType represents the type of job
type JobType string

const (
	// JobTypeDayRollover closes a user's days that were left open past midnight.
	JobTypeDayRollover JobType = "day_rollover"
	// JobTypeMediaCleanup deletes journal media that is no longer referenced.
	JobTypeMediaCleanup JobType = "media_cleanup"
)

// Job represents a job in the queue
type Job struct {
	ID         uuid.UUID  `json:"id"`
	Type       JobType    `json:"type"`
	UserID     uuid.UUID  `json:"user_id"`
	Bucket     string     `json:"bucket,omitempty"` // media_cleanup only
	Paths      []string   `json:"paths,omitempty"`  // media_cleanup only
	NotBefore  *time.Time `json:"not_before,omitempty"`
	NotAfter   *time.Time `json:"not_after,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	RetryCount int        `json:"retry_count"`
	MaxRetries int        `json:"max_retries"`
}

// NewJob creates a new job
func NewJob(jobType JobType, userID uuid.UUID) *Job {
	return &Job{
		ID:         uuid.New(),
		Type:       jobType,
		UserID:     userID,
		CreatedAt:  time.Now(),
		MaxRetries: 3,
	}
}

// NewRolloverJob creates a day_rollover job for userID.
func NewRolloverJob(userID uuid.UUID) *Job {
	return NewJob(JobTypeDayRollover, userID)
}

// NewMediaCleanupJob creates a media_cleanup job removing paths from bucket.
func NewMediaCleanupJob(userID uuid.UUID, bucket string, paths []string) *Job {
	j := NewJob(JobTypeMediaCleanup, userID)
	j.Bucket = bucket
	j.Paths = append([]string(nil), paths...)
	return j
}

// Validate checks the job carries what its type needs.
func (j *Job) Validate() error {
	if j.UserID == uuid.Nil {
		return errors.New("job has no user")
	}
	switch j.Type {
	case JobTypeDayRollover:
		return nil
	case JobTypeMediaCleanup:
		if j.Bucket == "" || len(j.Paths) == 0 {
			return errors.New("media_cleanup job needs a bucket and paths")
		}
		return nil
	default:
		return fmt.Errorf("unknown job type %q", j.Type)
	}
}

// ShouldProcess checks if the job should be processed at now
func (j *Job) ShouldProcess(now time.Time) bool {
	if j.NotBefore != nil && now.Before(*j.NotBefore) {
		return false
	}
	return !j.IsExpired(now)
}

// IsExpired checks if the job has expired at now
func (j *Job) IsExpired(now time.Time) bool {
	return j.NotAfter != nil && now.After(*j.NotAfter)
}

// CanRetry checks if the job can be retried
func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// IncrementRetry increments the retry count
func (j *Job) IncrementRetry() {
	j.RetryCount++
}
