package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/okhabit/okhabit/internal/database"
	"github.com/okhabit/okhabit/internal/models"
	"github.com/okhabit/okhabit/internal/periods"
	"github.com/okhabit/okhabit/internal/progress"
	"github.com/okhabit/okhabit/internal/routine"
	"go.uber.org/zap"
)

// SwitchActivity makes activityID the day's current activity. The previous
// period is closed at now and a new one is opened, all under a lock on the
// day's entry. Switching to the current activity changes nothing.
func (s *Service) SwitchActivity(ctx context.Context, userID uuid.UUID, day models.Date, activityID uuid.UUID, now time.Time) (*models.DailyEntry, error) {
	var out *models.DailyEntry
	err := s.store.InTx(ctx, func(r *database.Repos) error {
		entry, err := lockDay(ctx, r, userID, day)
		if err != nil {
			return err
		}
		out = entry
		if entry.CurrentActivityID != nil && *entry.CurrentActivityID == activityID {
			return nil
		}
		if _, err := requireActive(ctx, r, userID, activityID); err != nil {
			return err
		}
		return startPeriod(ctx, r, entry, activityID, now)
	})
	if err != nil {
		return nil, err
	}
	s.logEvent("activity_switched", userID, zap.String("date", day.String()), zap.String("activity_id", activityID.String()))
	return out, nil
}

// startPeriod closes whatever is running on the entry and opens a period for activityID.
func startPeriod(ctx context.Context, r *database.Repos, entry *models.DailyEntry, activityID uuid.UUID, now time.Time) error {
	if _, err := r.Periods.CloseOpen(ctx, entry.ID, now); err != nil {
		return err
	}
	if err := r.Periods.Create(ctx, &models.ActivityPeriod{
		ID:           uuid.New(),
		UserID:       entry.UserID,
		DailyEntryID: entry.ID,
		ActivityID:   activityID,
		StartTime:    now,
	}); err != nil {
		return err
	}
	entry.CurrentActivityID = &activityID
	return r.Days.UpdateState(ctx, entry)
}

// WakeUp starts the day: the entry is created if needed and marked awake, and
// the first active activity becomes current when nothing is running.
func (s *Service) WakeUp(ctx context.Context, userID uuid.UUID, day models.Date, now time.Time) (*models.DailyEntry, error) {
	var out *models.DailyEntry
	err := s.store.InTx(ctx, func(r *database.Repos) error {
		if _, err := r.Days.GetOrCreate(ctx, userID, day); err != nil {
			return err
		}
		entry, err := lockDay(ctx, r, userID, day)
		if err != nil {
			return err
		}
		out = entry
		if entry.IsAwake {
			return nil
		}
		entry.IsAwake = true
		entry.WakeTime = &now
		entry.SleepTime = nil
		if err := r.Days.UpdateState(ctx, entry); err != nil {
			return err
		}

		if entry.CurrentActivityID != nil {
			return nil
		}
		active, err := r.Activities.ListActive(ctx, userID)
		if err != nil {
			return err
		}
		if len(active) == 0 {
			return nil
		}
		return startPeriod(ctx, r, entry, active[0].ID, now)
	})
	if err != nil {
		return nil, err
	}
	s.logEvent("day_started", userID, zap.String("date", day.String()))
	return out, nil
}

// StopActivity closes the running period and clears the current activity.
func (s *Service) StopActivity(ctx context.Context, userID uuid.UUID, day models.Date, now time.Time) (*models.DailyEntry, error) {
	var out *models.DailyEntry
	err := s.store.InTx(ctx, func(r *database.Repos) error {
		entry, err := lockDay(ctx, r, userID, day)
		if err != nil {
			return err
		}
		out = entry
		closed, err := r.Periods.CloseOpen(ctx, entry.ID, now)
		if err != nil {
			return err
		}
		if closed == 0 && entry.CurrentActivityID == nil {
			return nil
		}
		entry.CurrentActivityID = nil
		return r.Days.UpdateState(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GoToSleep ends the day: the running period is closed and the entry marked asleep.
func (s *Service) GoToSleep(ctx context.Context, userID uuid.UUID, day models.Date, now time.Time) (*models.DailyEntry, error) {
	var out *models.DailyEntry
	err := s.store.InTx(ctx, func(r *database.Repos) error {
		entry, err := lockDay(ctx, r, userID, day)
		if err != nil {
			return err
		}
		out = entry
		if _, err := r.Periods.CloseOpen(ctx, entry.ID, now); err != nil {
			return err
		}
		entry.CurrentActivityID = nil
		entry.IsAwake = false
		entry.SleepTime = &now
		return r.Days.UpdateState(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	s.logEvent("day_ended", userID, zap.String("date", day.String()))
	return out, nil
}

// Progress is an activity's counter on one day.
type Progress struct {
	ActivityID uuid.UUID `json:"activity_id"`
	Count      int       `json:"count"`
	Target     int       `json:"target"`
	Complete   bool      `json:"complete"`
}

// IncrementProgress advances the activity's counter, wrapping to zero after the
// target. The day's entry is created on first use.
func (s *Service) IncrementProgress(ctx context.Context, userID uuid.UUID, day models.Date, activityID uuid.UUID) (*Progress, error) {
	var out *Progress
	err := s.store.InTx(ctx, func(r *database.Repos) error {
		activity, err := requireActive(ctx, r, userID, activityID)
		if err != nil {
			return err
		}
		if _, err := r.Days.GetOrCreate(ctx, userID, day); err != nil {
			return err
		}
		entry, err := lockDay(ctx, r, userID, day)
		if err != nil {
			return err
		}
		active, err := r.Activities.ListActive(ctx, userID)
		if err != nil {
			return err
		}

		counts := effectiveCounts(entry, targetsOf(active))
		next := counts.Increment(activity.ID, activity.CompletionTarget)
		entry.TaskCounts = counts
		if err := r.Days.UpdateCounts(ctx, entry); err != nil {
			return err
		}
		out = &Progress{
			ActivityID: activity.ID,
			Count:      next,
			Target:     activity.CompletionTarget,
			Complete:   progress.IsComplete(next, activity.CompletionTarget),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func targetsOf(activities []*models.Activity) map[uuid.UUID]int {
	out := make(map[uuid.UUID]int, len(activities))
	for _, a := range activities {
		out[a.ID] = a.CompletionTarget
	}
	return out
}

// effectiveCounts reads an entry's counters, folding in the legacy completed list.
func effectiveCounts(entry *models.DailyEntry, targets map[uuid.UUID]int) progress.Counts {
	if entry == nil {
		return progress.Counts{}
	}
	return progress.Merge(progress.FromLegacy(entry.CompletedTasks, targets), entry.TaskCounts)
}

// ActivityStatus is one activity's state within a day view.
type ActivityStatus struct {
	Activity     *models.Activity `json:"activity"`
	GroupName    string           `json:"group_name"`
	GroupColor   string           `json:"group_color"`
	GroupEmoji   *string          `json:"group_emoji,omitempty"`
	RoutineLabel string           `json:"routine_label"`
	Due          bool             `json:"due"`
	Avoid        bool             `json:"avoid"`
	Count        int              `json:"count"`
	Target       int              `json:"target"`
	Complete     bool             `json:"complete"`
	TotalMs      int64            `json:"total_ms"`
	Duration     string           `json:"duration"`
	Running      bool             `json:"running"`
}

// DayView is everything the day screen needs, computed at a single instant.
type DayView struct {
	Date              models.Date            `json:"date"`
	Timezone          string                 `json:"timezone"`
	// Started is true once the daily entry exists, by wake-up or first progress.
	Started           bool                   `json:"started"`
	IsAwake           bool                   `json:"is_awake"`
	WakeTime          *time.Time             `json:"wake_time,omitempty"`
	SleepTime         *time.Time             `json:"sleep_time,omitempty"`
	CurrentActivityID *uuid.UUID             `json:"current_activity_id,omitempty"`
	OpenPeriod        *models.ActivityPeriod `json:"open_period,omitempty"`
	Activities        []ActivityStatus       `json:"activities"`
	CompletionRate    int                    `json:"completion_rate"`
	Tasks             []*models.OneTimeTask  `json:"tasks"`
	GeneratedAt       time.Time              `json:"generated_at"`
}

// DayView assembles the day: activities due that day (plus any tracked on it),
// their counters and durations, the completion rate and the one-time tasks.
func (s *Service) DayView(ctx context.Context, user *models.User, day models.Date, now time.Time) (*DayView, error) {
	r := s.store.Repos()
	loc := s.Location(user)

	activities, err := r.Activities.ListActive(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load activities: %w", err)
	}
	groups, err := r.Groups.ListByUser(ctx, user.ID, false)
	if err != nil {
		return nil, fmt.Errorf("failed to load groups: %w", err)
	}
	groupByID := make(map[uuid.UUID]*models.ActivityGroup, len(groups))
	for _, g := range groups {
		groupByID[g.ID] = g
	}

	entry, err := r.Days.GetByDate(ctx, user.ID, day)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("failed to load day: %w", err)
	}

	var rows []*models.ActivityPeriod
	if entry != nil {
		rows, err = r.Periods.ListByDailyEntry(ctx, entry.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load periods: %w", err)
		}
	}
	spans := models.Spans(rows)
	totals := periods.Totals(spans, now)
	current := periods.Current(spans)

	tasks, err := r.Tasks.ListByDate(ctx, user.ID, day)
	if err != nil {
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}
	if tasks == nil {
		tasks = []*models.OneTimeTask{}
	}

	counts := effectiveCounts(entry, targetsOf(activities))
	view := &DayView{
		Date:        day,
		Timezone:    loc.String(),
		Activities:  []ActivityStatus{},
		Tasks:       tasks,
		GeneratedAt: now,
	}

	var items []progress.Item
	for _, a := range activities {
		rt := routine.ParseLenient(a.Routine)
		created := a.CreatedAt.In(loc)
		due := rt.DueOn(&created, day.Time())
		tracked, hasTime := totals[a.ID]
		if !due && !hasTime {
			continue
		}

		count := progress.Clamp(counts.Get(a.ID), a.CompletionTarget)
		st := ActivityStatus{
			Activity:     a,
			RoutineLabel: rt.Describe(),
			Due:          due,
			Avoid:        rt.IsAvoid(),
			Count:        count,
			Target:       a.CompletionTarget,
			Complete:     progress.IsComplete(count, a.CompletionTarget),
			TotalMs:      tracked.Milliseconds(),
			Duration:     periods.Format(tracked),
			Running:      current != nil && current.ActivityID == a.ID,
		}
		if g := groupByID[a.GroupID]; g != nil {
			st.GroupName = g.Name
			st.GroupColor = g.Color
			st.GroupEmoji = g.Emoji
		}
		view.Activities = append(view.Activities, st)
		if due {
			items = append(items, progress.Item{Count: count, Target: a.CompletionTarget, Avoid: st.Avoid})
		}
	}
	view.CompletionRate = progress.CompletionRate(items, progress.Options{IncludeAvoid: user.CountAvoidInCompletion})

	if entry != nil {
		view.Started = true
		view.IsAwake = entry.IsAwake
		view.WakeTime = entry.WakeTime
		view.SleepTime = entry.SleepTime
		view.CurrentActivityID = entry.CurrentActivityID
	}
	for _, p := range rows {
		if p.EndTime == nil && (view.OpenPeriod == nil || p.StartTime.After(view.OpenPeriod.StartTime)) {
			view.OpenPeriod = p
		}
	}
	return view, nil
}

// CloseStaleDays ends days before the user's today that were left running:
// open periods are closed at the end of their day (or now, if earlier), the
// current activity is cleared and the day is marked asleep. It returns the
// number of days closed.
func (s *Service) CloseStaleDays(ctx context.Context, userID uuid.UUID, now time.Time) (int, error) {
	var closed int
	err := s.store.InTx(ctx, func(r *database.Repos) error {
		user, err := r.Users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		loc := s.Location(user)
		entries, err := r.Days.ListOpenBefore(ctx, userID, models.Today(now, loc))
		if err != nil {
			return err
		}
		for _, e := range entries {
			end := e.EntryDate.EndIn(loc)
			if now.Before(end) {
				end = now
			}
			if _, err := r.Periods.CloseOpen(ctx, e.ID, end); err != nil {
				return err
			}
			e.CurrentActivityID = nil
			e.IsAwake = false
			if e.SleepTime == nil {
				e.SleepTime = &end
			}
			if err := r.Days.UpdateState(ctx, e); err != nil {
				return err
			}
			closed++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to close stale days: %w", err)
	}
	if closed > 0 {
		s.logEvent("stale_days_closed", userID, zap.Int("days", closed))
	}
	return closed, nil
}
