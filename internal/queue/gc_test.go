package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

type mockDLQPurger struct {
	purgeFunc func(ctx context.Context, retention time.Duration) ([]*Job, error)
}

func (m *mockDLQPurger) PurgeOlderThan(ctx context.Context, retention time.Duration) ([]*Job, error) {
	if m.purgeFunc != nil {
		return m.purgeFunc(ctx, retention)
	}
	return nil, nil
}

func TestGarbageCollectorCollect(t *testing.T) {
	t.Parallel()

	user := uuid.New()
	mixed := []*Job{
		NewRolloverJob(user),
		NewMediaCleanupJob(user, "journal-photos", []string{user.String() + "/2024-03-04/a.jpg"}),
		NewMediaCleanupJob(user, "journal-videos", []string{user.String() + "/2024-03-04/v.mp4"}),
		nil,
	}

	tests := []struct {
		name    string
		purger  DLQPurger
		want    map[JobType]int
		wantErr bool
	}{
		{name: "nil purger", purger: nil, want: nil},
		{
			name: "counts by type",
			purger: &mockDLQPurger{purgeFunc: func(_ context.Context, retention time.Duration) ([]*Job, error) {
				if retention != 24*time.Hour {
					return nil, errors.New("unexpected retention")
				}
				return mixed, nil
			}},
			want: map[JobType]int{JobTypeDayRollover: 1, JobTypeMediaCleanup: 2, "unknown": 1},
		},
		{
			name: "partial purge still counts",
			purger: &mockDLQPurger{purgeFunc: func(context.Context, time.Duration) ([]*Job, error) {
				return mixed[:1], errors.New("channel closed")
			}},
			want:    map[JobType]int{JobTypeDayRollover: 1},
			wantErr: true,
		},
		{name: "empty queue", purger: &mockDLQPurger{}, want: map[JobType]int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			gc := NewGarbageCollector(tt.purger, time.Minute, 24*time.Hour, nil)
			got, err := gc.collect(t.Context())
			if (err != nil) != tt.wantErr {
				t.Fatalf("collect() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("collect() = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("collect()[%s] = %d, want %d", k, got[k], v)
				}
			}
		})
	}
}

func TestGarbageCollectorStartStopsOnCancel(t *testing.T) {
	t.Parallel()
	gc := NewGarbageCollector(&mockDLQPurger{}, 24*time.Hour, time.Hour, nil)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if err := gc.Start(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Start() error = %v, want context.Canceled", err)
	}
}
