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

const timeEntryColumns = `t.id, t.user_id, t.activity_id, t.time_start, t.time_end`

// TimeEntryRepository handles stopwatch entries.
type TimeEntryRepository struct {
	q querier
}

// NewTimeEntryRepository creates a new time entry repository.
func NewTimeEntryRepository(db *DB) *TimeEntryRepository {
	return &TimeEntryRepository{q: db}
}

// Create inserts an entry.
func (r *TimeEntryRepository) Create(ctx context.Context, e *models.TimeEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO time_entries (id, user_id, activity_id, time_start, time_end) VALUES ($1, $2, $3, $4, $5)
	`, e.ID, e.UserID, e.ActivityID, e.TimeStart, nullTime(e.TimeEnd))
	if err != nil {
		return fmt.Errorf("failed to create time entry: %w", err)
	}
	return nil
}

// GetActive returns the user's running entry.
func (r *TimeEntryRepository) GetActive(ctx context.Context, userID uuid.UUID) (*models.TimeEntry, error) {
	e, err := scanTimeEntry(r.q.QueryRowContext(ctx, `
		SELECT `+timeEntryColumns+` FROM time_entries t
		WHERE t.user_id = $1 AND t.time_end IS NULL
		ORDER BY t.time_start DESC LIMIT 1
	`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("active time entry", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active time entry: %w", err)
	}
	return e, nil
}

// StopActive ends the running entry and returns it.
func (r *TimeEntryRepository) StopActive(ctx context.Context, userID uuid.UUID, at time.Time) (*models.TimeEntry, error) {
	e, err := scanTimeEntry(r.q.QueryRowContext(ctx, `
		UPDATE time_entries t SET time_end = GREATEST(t.time_start, $2)
		WHERE t.user_id = $1 AND t.time_end IS NULL
		RETURNING `+timeEntryColumns, userID, at))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("active time entry", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stop time entry: %w", err)
	}
	return e, nil
}

// ListRecent returns finished entries, newest first, with activity names.
func (r *TimeEntryRepository) ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]*models.TimeEntryWithActivity, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+timeEntryColumns+`, a.name FROM time_entries t
		JOIN activities a ON a.id = t.activity_id
		WHERE t.user_id = $1 AND t.time_end IS NOT NULL
		ORDER BY t.time_start DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list time entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.TimeEntryWithActivity
	for rows.Next() {
		e := &models.TimeEntryWithActivity{}
		var end sql.NullTime
		if err := rows.Scan(&e.ID, &e.UserID, &e.ActivityID, &e.TimeStart, &end, &e.ActivityName); err != nil {
			return nil, fmt.Errorf("failed to scan time entry: %w", err)
		}
		e.TimeEnd = timePtr(end)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating time entries: %w", err)
	}
	return out, nil
}

func scanTimeEntry(row interface{ Scan(...any) error }) (*models.TimeEntry, error) {
	e := &models.TimeEntry{}
	var end sql.NullTime
	if err := row.Scan(&e.ID, &e.UserID, &e.ActivityID, &e.TimeStart, &end); err != nil {
		return nil, err
	}
	e.TimeEnd = timePtr(end)
	return e, nil
}
