package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/okhabit/okhabit/internal/database/dbtest"
	"github.com/okhabit/okhabit/internal/models"
	"github.com/okhabit/okhabit/internal/queue"
	"go.uber.org/zap"
)

func TestScheduleRolloverJobs(t *testing.T) {
	t.Parallel()

	store := dbtest.New()
	stale := uuid.New()
	fresh := uuid.New()
	asleep := uuid.New()
	store.PutDay(models.DailyEntry{UserID: stale, EntryDate: models.NewDate(2024, 3, 3), IsAwake: true})
	store.PutDay(models.DailyEntry{UserID: fresh, EntryDate: models.NewDate(2024, 3, 5), IsAwake: true})
	store.PutDay(models.DailyEntry{UserID: asleep, EntryDate: models.NewDate(2024, 3, 1)})

	q := &recordingQueue{}
	s := NewRolloverScheduler(q, store.Repos().Days, 15*time.Minute, zap.NewNop())
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	n, err := s.ScheduleRolloverJobs(t.Context())
	if err != nil {
		t.Fatalf("ScheduleRolloverJobs() error = %v", err)
	}
	if n != 1 || len(q.jobs) != 1 {
		t.Fatalf("enqueued %d jobs (%d recorded), want 1", n, len(q.jobs))
	}
	job := q.jobs[0]
	if job.Type != queue.JobTypeDayRollover || job.UserID != stale {
		t.Errorf("job = %s for %s, want day_rollover for %s", job.Type, job.UserID, stale)
	}
	if job.NotAfter == nil || !job.NotAfter.Equal(now.Add(15*time.Minute)) {
		t.Errorf("NotAfter = %v, want %v", job.NotAfter, now.Add(15*time.Minute))
	}
}

func TestScheduleRolloverJobs_EarliestZone(t *testing.T) {
	t.Parallel()

	// 11:00 UTC on the 4th is already the 5th in UTC+14, so a day dated the
	// 4th may be over for some users.
	store := dbtest.New()
	user := uuid.New()
	store.PutDay(models.DailyEntry{UserID: user, EntryDate: models.NewDate(2024, 3, 4), IsAwake: true})

	q := &recordingQueue{}
	s := NewRolloverScheduler(q, store.Repos().Days, time.Minute, zap.NewNop())
	s.now = func() time.Time { return time.Date(2024, 3, 4, 11, 0, 0, 0, time.UTC) }

	n, err := s.ScheduleRolloverJobs(t.Context())
	if err != nil || n != 1 {
		t.Fatalf("ScheduleRolloverJobs() = %d, %v; want 1, nil", n, err)
	}
}

func TestScheduleRolloverJobs_Errors(t *testing.T) {
	t.Parallel()

	t.Run("list fails", func(t *testing.T) {
		t.Parallel()
		store := dbtest.New()
		store.Fail = func(op string) error { return errors.New("db down") }
		s := NewRolloverScheduler(&recordingQueue{}, store.Repos().Days, time.Minute, zap.NewNop())
		if _, err := s.ScheduleRolloverJobs(t.Context()); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("enqueue failures are skipped", func(t *testing.T) {
		t.Parallel()
		store := dbtest.New()
		for range 3 {
			store.PutDay(models.DailyEntry{UserID: uuid.New(), EntryDate: models.NewDate(2024, 3, 1), IsAwake: true})
		}
		calls := 0
		q := &recordingQueue{enqueueFunc: func(ctx context.Context, job *queue.Job) error {
			calls++
			if calls == 2 {
				return errors.New("broker gone")
			}
			return nil
		}}
		s := NewRolloverScheduler(q, store.Repos().Days, time.Minute, zap.NewNop())
		s.now = func() time.Time { return time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC) }

		n, err := s.ScheduleRolloverJobs(t.Context())
		if err != nil {
			t.Fatalf("ScheduleRolloverJobs() error = %v", err)
		}
		if n != 2 || calls != 3 {
			t.Errorf("enqueued %d of %d attempts, want 2 of 3", n, calls)
		}
	})
}

func TestRolloverSchedulerStart(t *testing.T) {
	t.Parallel()

	store := dbtest.New()
	store.PutDay(models.DailyEntry{UserID: uuid.New(), EntryDate: models.NewDate(2024, 3, 1), IsAwake: true})

	ctx, cancel := context.WithCancel(t.Context())
	scheduled := make(chan struct{}, 1)
	q := &recordingQueue{enqueueFunc: func(context.Context, *queue.Job) error {
		select {
		case scheduled <- struct{}{}:
		default:
		}
		return nil
	}}
	s := NewRolloverScheduler(q, store.Repos().Days, time.Hour, zap.NewNop())

	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	select {
	case <-scheduled:
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not schedule immediately")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after cancel")
	}
}
