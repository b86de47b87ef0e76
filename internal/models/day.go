package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/okhabit/okhabit/internal/periods"
	"github.com/okhabit/okhabit/internal/progress"
)

// DailyEntry is the per-user, per-date record of progress and the running activity.
type DailyEntry struct {
	ID                uuid.UUID       `json:"id"`
	UserID            uuid.UUID       `json:"user_id"`
	EntryDate         Date            `json:"entry_date"`
	TaskCounts        progress.Counts `json:"task_counts"`
	CompletedTasks    []uuid.UUID     `json:"-"` // legacy boolean model, read-only
	CurrentActivityID *uuid.UUID      `json:"current_activity_id,omitempty"`
	WakeTime          *time.Time      `json:"wake_time,omitempty"`
	SleepTime         *time.Time      `json:"sleep_time,omitempty"`
	IsAwake           bool            `json:"is_awake"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// ActivityPeriod is a span during which an activity was current.
type ActivityPeriod struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	DailyEntryID uuid.UUID  `json:"daily_entry_id"`
	ActivityID   uuid.UUID  `json:"activity_id"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      *time.Time `json:"end_time,omitempty"`
}

// Span converts the row for duration math.
func (p *ActivityPeriod) Span() periods.Period {
	return periods.Period{ActivityID: p.ActivityID, Start: p.StartTime, End: p.EndTime}
}

// Spans converts a list of rows.
func Spans(ps []*ActivityPeriod) []periods.Period {
	out := make([]periods.Period, len(ps))
	for i, p := range ps {
		out[i] = p.Span()
	}
	return out
}

// OneTimeTask is a dated to-do that does not recur.
type OneTimeTask struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	TaskDate    Date      `json:"task_date"`
	Title       string    `json:"title"`
	IsCompleted bool      `json:"is_completed"`
	CreatedAt   time.Time `json:"created_at"`
}

// TimeEntry is a stopwatch run for an activity, independent of daily entries.
type TimeEntry struct {
	ID         uuid.UUID  `json:"id"`
	UserID     uuid.UUID  `json:"user_id"`
	ActivityID uuid.UUID  `json:"activity_id"`
	TimeStart  time.Time  `json:"time_start"`
	TimeEnd    *time.Time `json:"time_end,omitempty"`
}

// TimeEntryWithActivity adds the activity name for listings.
type TimeEntryWithActivity struct {
	TimeEntry
	ActivityName string `json:"activity_name"`
}
