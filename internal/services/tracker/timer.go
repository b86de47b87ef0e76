package tracker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/okhabit/okhabit/internal/database"
	"github.com/okhabit/okhabit/internal/models"
	"github.com/okhabit/okhabit/internal/periods"
	"go.uber.org/zap"
)

// DefaultRecentTimers is how many finished timer entries Recent returns by default.
const DefaultRecentTimers = 5

// TimerStatus is the running timer with its elapsed time at the moment of the call.
type TimerStatus struct {
	Entry        *models.TimeEntry `json:"entry"`
	ActivityName string            `json:"activity_name"`
	ElapsedMs    int64             `json:"elapsed_ms"`
	Elapsed      string            `json:"elapsed"`
}

// RecentTimer is a finished timer entry.
type RecentTimer struct {
	*models.TimeEntryWithActivity
	DurationMs int64  `json:"duration_ms"`
	Duration   string `json:"duration"`
}

// StartTimer stops any running timer and starts one for activityID.
func (s *Service) StartTimer(ctx context.Context, userID, activityID uuid.UUID, now time.Time) (*TimerStatus, error) {
	var out *TimerStatus
	err := s.store.InTx(ctx, func(r *database.Repos) error {
		a, err := requireActive(ctx, r, userID, activityID)
		if err != nil {
			return err
		}
		if _, err := r.TimeEntries.StopActive(ctx, userID, now); err != nil && !errors.Is(err, database.ErrNotFound) {
			return err
		}
		e := &models.TimeEntry{ID: uuid.New(), UserID: userID, ActivityID: a.ID, TimeStart: now}
		if err := r.TimeEntries.Create(ctx, e); err != nil {
			return err
		}
		out = timerStatus(e, a.Name, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logEvent("timer_started", userID, zap.String("activity_id", activityID.String()))
	return out, nil
}

// StopTimer ends the running timer. It returns database.ErrNotFound when none runs.
func (s *Service) StopTimer(ctx context.Context, userID uuid.UUID, now time.Time) (*models.TimeEntry, error) {
	e, err := s.store.Repos().TimeEntries.StopActive(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	s.logEvent("timer_stopped", userID, zap.String("activity_id", e.ActivityID.String()))
	return e, nil
}

// ActiveTimer returns the running timer, or nil.
func (s *Service) ActiveTimer(ctx context.Context, userID uuid.UUID, now time.Time) (*TimerStatus, error) {
	r := s.store.Repos()
	e, err := r.TimeEntries.GetActive(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var name string
	if a, err := r.Activities.GetByID(ctx, userID, e.ActivityID); err == nil {
		name = a.Name
	}
	return timerStatus(e, name, now), nil
}

// RecentTimers returns up to limit finished entries, newest first.
func (s *Service) RecentTimers(ctx context.Context, userID uuid.UUID, limit int) ([]RecentTimer, error) {
	if limit <= 0 {
		limit = DefaultRecentTimers
	}
	entries, err := s.store.Repos().TimeEntries.ListRecent(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]RecentTimer, 0, len(entries))
	for _, e := range entries {
		p := periods.Period{ActivityID: e.ActivityID, Start: e.TimeStart, End: e.TimeEnd}
		d := p.Duration(e.TimeStart)
		out = append(out, RecentTimer{TimeEntryWithActivity: e, DurationMs: d.Milliseconds(), Duration: periods.Format(d)})
	}
	return out, nil
}

func timerStatus(e *models.TimeEntry, name string, now time.Time) *TimerStatus {
	d := periods.Period{ActivityID: e.ActivityID, Start: e.TimeStart}.Duration(now)
	return &TimerStatus{Entry: e, ActivityName: name, ElapsedMs: d.Milliseconds(), Elapsed: periods.FormatClock(d)}
}
