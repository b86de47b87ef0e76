package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/okhabit/okhabit/internal/models"
)

const taskColumns = `id, user_id, task_date, title, is_completed, created_at`

// OneTimeTaskRepository handles one-time task persistence.
type OneTimeTaskRepository struct {
	q querier
}

// NewOneTimeTaskRepository creates a new one-time task repository.
func NewOneTimeTaskRepository(db *DB) *OneTimeTaskRepository {
	return &OneTimeTaskRepository{q: db}
}

// Create inserts a task.
func (r *OneTimeTaskRepository) Create(ctx context.Context, t *models.OneTimeTask) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO one_time_tasks (`+taskColumns+`) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, t.ID, t.UserID, t.TaskDate, t.Title, t.IsCompleted, time.Now()).Scan(&t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// GetByID returns a task owned by userID.
func (r *OneTimeTaskRepository) GetByID(ctx context.Context, userID, id uuid.UUID) (*models.OneTimeTask, error) {
	t, err := scanTask(r.q.QueryRowContext(ctx, `
		SELECT `+taskColumns+` FROM one_time_tasks WHERE id = $1 AND user_id = $2
	`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("task", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

// ListByDate returns a day's tasks in creation order.
func (r *OneTimeTaskRepository) ListByDate(ctx context.Context, userID uuid.UUID, date models.Date) ([]*models.OneTimeTask, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM one_time_tasks
		WHERE user_id = $1 AND task_date = $2
		ORDER BY created_at, id
	`, userID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.OneTimeTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return out, nil
}

// SetCompleted sets the completion flag.
func (r *OneTimeTaskRepository) SetCompleted(ctx context.Context, userID, id uuid.UUID, completed bool) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE one_time_tasks SET is_completed = $3 WHERE id = $1 AND user_id = $2
	`, id, userID, completed)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return expectRows(result, "task")
}

// Delete removes a task.
func (r *OneTimeTaskRepository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM one_time_tasks WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return expectRows(result, "task")
}

func scanTask(row interface{ Scan(...any) error }) (*models.OneTimeTask, error) {
	t := &models.OneTimeTask{}
	if err := row.Scan(&t.ID, &t.UserID, &t.TaskDate, &t.Title, &t.IsCompleted, &t.CreatedAt); err != nil {
		return nil, err
	}
	return t, nil
}
