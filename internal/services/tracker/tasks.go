package tracker

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/okhabit/okhabit/internal/models"
)

// MaxTaskTitleLength bounds one-time task titles.
const MaxTaskTitleLength = 200

// CreateTask adds a one-time task to a day.
func (s *Service) CreateTask(ctx context.Context, userID uuid.UUID, day models.Date, title string) (*models.OneTimeTask, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, validationf("task title is required")
	}
	if utf8.RuneCountInString(title) > MaxTaskTitleLength {
		return nil, validationf("task title exceeds %d characters", MaxTaskTitleLength)
	}
	t := &models.OneTimeTask{ID: uuid.New(), UserID: userID, TaskDate: day, Title: title}
	if err := s.store.Repos().Tasks.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// ListTasks returns a day's tasks in creation order.
func (s *Service) ListTasks(ctx context.Context, userID uuid.UUID, day models.Date) ([]*models.OneTimeTask, error) {
	tasks, err := s.store.Repos().Tasks.ListByDate(ctx, userID, day)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []*models.OneTimeTask{}
	}
	return tasks, nil
}

// SetTaskCompleted sets a task's completion flag and returns the task.
func (s *Service) SetTaskCompleted(ctx context.Context, userID, id uuid.UUID, completed bool) (*models.OneTimeTask, error) {
	r := s.store.Repos()
	if err := r.Tasks.SetCompleted(ctx, userID, id, completed); err != nil {
		return nil, err
	}
	return r.Tasks.GetByID(ctx, userID, id)
}

// DeleteTask removes a task.
func (s *Service) DeleteTask(ctx context.Context, userID, id uuid.UUID) error {
	return s.store.Repos().Tasks.Delete(ctx, userID, id)
}
