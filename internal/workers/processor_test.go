package workers

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/okhabit/okhabit/internal/blob"
	"github.com/okhabit/okhabit/internal/database"
	"github.com/okhabit/okhabit/internal/models"
	"github.com/okhabit/okhabit/internal/queue"
	"go.uber.org/zap"
)

// recordingQueue records enqueued jobs.
type recordingQueue struct {
	mu          sync.Mutex
	jobs        []*queue.Job
	enqueueFunc func(ctx context.Context, job *queue.Job) error
}

func (q *recordingQueue) Enqueue(ctx context.Context, job *queue.Job) error {
	if q.enqueueFunc != nil {
		if err := q.enqueueFunc(ctx, job); err != nil {
			return err
		}
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

var _ queue.Enqueuer = (*recordingQueue)(nil)

// mockMessage tracks how a message was settled.
type mockMessage struct {
	job     *queue.Job
	acked   bool
	nacked  bool
	requeue bool
}

func (m *mockMessage) Ack() error { m.acked = true; return nil }

func (m *mockMessage) Nack(requeue bool) error {
	m.nacked = true
	m.requeue = requeue
	return nil
}

func (m *mockMessage) GetJob() *queue.Job { return m.job }

var _ queue.MessageInterface = (*mockMessage)(nil)

type mockDayCloser struct {
	closeStaleDaysFunc func(ctx context.Context, userID uuid.UUID, now time.Time) (int, error)
}

func (m *mockDayCloser) CloseStaleDays(ctx context.Context, userID uuid.UUID, now time.Time) (int, error) {
	if m.closeStaleDaysFunc != nil {
		return m.closeStaleDaysFunc(ctx, userID, now)
	}
	return 0, nil
}

var testNow = time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)

func newTestProcessor(t *testing.T, days DayCloser, q queue.Enqueuer) (*JobProcessor, *blob.FileStore) {
	t.Helper()
	store, err := blob.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	p := NewJobProcessor(days, store, q, zap.NewNop())
	p.now = func() time.Time { return testNow }
	return p, store
}

func TestProcessJob_Rollover(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	tests := []struct {
		name        string
		closeErr    error
		wantAck     bool
		wantErr     bool
		wantRetries int
	}{
		{name: "closes days", wantAck: true},
		{name: "user deleted", closeErr: database.ErrNotFound, wantAck: true},
		{name: "transient failure retries", closeErr: errors.New("db down"), wantAck: true, wantErr: true, wantRetries: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var gotUser uuid.UUID
			var gotNow time.Time
			days := &mockDayCloser{closeStaleDaysFunc: func(_ context.Context, id uuid.UUID, now time.Time) (int, error) {
				gotUser, gotNow = id, now
				return 2, tt.closeErr
			}}
			q := &recordingQueue{}
			p, _ := newTestProcessor(t, days, q)
			msg := &mockMessage{job: queue.NewRolloverJob(userID)}

			err := p.ProcessJob(t.Context(), msg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ProcessJob() error = %v, wantErr %v", err, tt.wantErr)
			}
			if gotUser != userID || !gotNow.Equal(testNow) {
				t.Errorf("CloseStaleDays(%s, %v), want (%s, %v)", gotUser, gotNow, userID, testNow)
			}
			if msg.acked != tt.wantAck || msg.nacked {
				t.Errorf("acked=%v nacked=%v, want acked=%v", msg.acked, msg.nacked, tt.wantAck)
			}
			if len(q.jobs) != tt.wantRetries {
				t.Fatalf("re-enqueued %d jobs, want %d", len(q.jobs), tt.wantRetries)
			}
			if tt.wantRetries > 0 {
				retry := q.jobs[0]
				if retry.RetryCount != 1 {
					t.Errorf("RetryCount = %d, want 1", retry.RetryCount)
				}
				if retry.NotBefore == nil || !retry.NotBefore.Equal(testNow.Add(30*time.Second)) {
					t.Errorf("NotBefore = %v, want %v", retry.NotBefore, testNow.Add(30*time.Second))
				}
			}
		})
	}
}

func TestProcessJob_MediaCleanup(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	p, store := newTestProcessor(t, &mockDayCloser{}, &recordingQueue{})

	path := userID.String() + "/2024-03-04/a.jpg"
	if _, err := store.Put(t.Context(), models.BucketJournalPhotos, path, bytes.NewReader([]byte("x"))); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	missing := userID.String() + "/2024-03-04/gone.jpg"

	msg := &mockMessage{job: queue.NewMediaCleanupJob(userID, models.BucketJournalPhotos, []string{path, missing})}
	if err := p.ProcessJob(t.Context(), msg); err != nil {
		t.Fatalf("ProcessJob() error = %v", err)
	}
	if !msg.acked {
		t.Error("expected ack")
	}
	if _, err := store.Open(t.Context(), models.BucketJournalPhotos, path); !errors.Is(err, blob.ErrNotFound) {
		t.Errorf("Open() after cleanup error = %v, want ErrNotFound", err)
	}
}

func TestProcessJob_Settlement(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	past := testNow.Add(-time.Minute)
	future := testNow.Add(time.Minute)

	tests := []struct {
		name        string
		job         *queue.Job
		wantNack    bool
		wantRequeue bool
		wantErr     bool
	}{
		{
			name:     "expired job is dropped",
			job:      &queue.Job{ID: uuid.New(), Type: queue.JobTypeDayRollover, UserID: userID, NotAfter: &past, MaxRetries: 3},
			wantNack: true,
		},
		{
			name:        "early job is requeued",
			job:         &queue.Job{ID: uuid.New(), Type: queue.JobTypeDayRollover, UserID: userID, NotBefore: &future, MaxRetries: 3},
			wantNack:    true,
			wantRequeue: true,
		},
		{
			name:     "unknown type is dead-lettered",
			job:      &queue.Job{ID: uuid.New(), Type: "task_analysis", UserID: userID, MaxRetries: 3},
			wantNack: true,
			wantErr:  true,
		},
		{
			name:     "cleanup without paths is dead-lettered",
			job:      &queue.Job{ID: uuid.New(), Type: queue.JobTypeMediaCleanup, UserID: userID, Bucket: models.BucketJournalPhotos, MaxRetries: 3},
			wantNack: true,
			wantErr:  true,
		},
		{
			name:     "missing job",
			wantNack: true,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			called := false
			days := &mockDayCloser{closeStaleDaysFunc: func(context.Context, uuid.UUID, time.Time) (int, error) {
				called = true
				return 0, nil
			}}
			p, _ := newTestProcessor(t, days, &recordingQueue{})
			msg := &mockMessage{job: tt.job}

			err := p.ProcessJob(t.Context(), msg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ProcessJob() error = %v, wantErr %v", err, tt.wantErr)
			}
			if called {
				t.Error("job should not have run")
			}
			if msg.acked || msg.nacked != tt.wantNack || msg.requeue != tt.wantRequeue {
				t.Errorf("acked=%v nacked=%v requeue=%v, want nack=%v requeue=%v",
					msg.acked, msg.nacked, msg.requeue, tt.wantNack, tt.wantRequeue)
			}
		})
	}
}

func TestProcessJob_RetryExhaustion(t *testing.T) {
	t.Parallel()

	failing := &mockDayCloser{closeStaleDaysFunc: func(context.Context, uuid.UUID, time.Time) (int, error) {
		return 0, errors.New("db down")
	}}

	t.Run("exhausted goes to dlq", func(t *testing.T) {
		t.Parallel()
		q := &recordingQueue{}
		p, _ := newTestProcessor(t, failing, q)
		job := queue.NewRolloverJob(uuid.New())
		job.RetryCount = job.MaxRetries
		msg := &mockMessage{job: job}

		if err := p.ProcessJob(t.Context(), msg); err == nil {
			t.Fatal("expected error")
		}
		if !msg.nacked || msg.requeue || msg.acked {
			t.Errorf("acked=%v nacked=%v requeue=%v, want dead-letter", msg.acked, msg.nacked, msg.requeue)
		}
		if len(q.jobs) != 0 {
			t.Errorf("re-enqueued %d jobs, want 0", len(q.jobs))
		}
	})

	t.Run("re-enqueue failure requeues", func(t *testing.T) {
		t.Parallel()
		q := &recordingQueue{enqueueFunc: func(context.Context, *queue.Job) error {
			return errors.New("broker gone")
		}}
		p, _ := newTestProcessor(t, failing, q)
		msg := &mockMessage{job: queue.NewRolloverJob(uuid.New())}

		if err := p.ProcessJob(t.Context(), msg); err == nil {
			t.Fatal("expected error")
		}
		if !msg.nacked || !msg.requeue {
			t.Errorf("nacked=%v requeue=%v, want requeue", msg.nacked, msg.requeue)
		}
	})

	t.Run("no queue requeues", func(t *testing.T) {
		t.Parallel()
		p, _ := newTestProcessor(t, failing, nil)
		msg := &mockMessage{job: queue.NewRolloverJob(uuid.New())}

		if err := p.ProcessJob(t.Context(), msg); err == nil {
			t.Fatal("expected error")
		}
		if !msg.nacked || !msg.requeue {
			t.Errorf("nacked=%v requeue=%v, want requeue", msg.nacked, msg.requeue)
		}
	})
}

func TestRetryDelay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 30 * time.Second},
		{1, 30 * time.Second},
		{2, time.Minute},
		{3, 2 * time.Minute},
		{7, 30 * time.Minute},
		{20, 30 * time.Minute},
	}
	for _, tt := range tests {
		if got := RetryDelay(tt.attempt); got != tt.want {
			t.Errorf("RetryDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestMediaCleanupRejectsForeignBucket(t *testing.T) {
	t.Parallel()

	p, _ := newTestProcessor(t, &mockDayCloser{}, nil)
	job := queue.NewMediaCleanupJob(uuid.New(), "other", []string{"x"})
	job.MaxRetries = 0
	msg := &mockMessage{job: job}

	if err := p.ProcessJob(t.Context(), msg); err == nil {
		t.Fatal("expected error for unknown bucket")
	}
	if !msg.nacked || msg.requeue {
		t.Errorf("nacked=%v requeue=%v, want dead-letter", msg.nacked, msg.requeue)
	}
}
