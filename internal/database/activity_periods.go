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

const periodColumns = `id, user_id, daily_entry_id, activity_id, start_time, end_time`

// ActivityPeriodRepository handles activity period persistence.
type ActivityPeriodRepository struct {
	q querier
}

// NewActivityPeriodRepository creates a new activity period repository.
func NewActivityPeriodRepository(db *DB) *ActivityPeriodRepository {
	return &ActivityPeriodRepository{q: db}
}

// Create inserts a period.
func (r *ActivityPeriodRepository) Create(ctx context.Context, p *models.ActivityPeriod) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO activity_periods (`+periodColumns+`) VALUES ($1, $2, $3, $4, $5, $6)
	`, p.ID, p.UserID, p.DailyEntryID, p.ActivityID, p.StartTime, nullTime(p.EndTime))
	if err != nil {
		return fmt.Errorf("failed to create activity period: %w", err)
	}
	return nil
}

// GetOpen returns the running period of a daily entry.
func (r *ActivityPeriodRepository) GetOpen(ctx context.Context, dailyEntryID uuid.UUID) (*models.ActivityPeriod, error) {
	p, err := scanPeriod(r.q.QueryRowContext(ctx, `
		SELECT `+periodColumns+` FROM activity_periods
		WHERE daily_entry_id = $1 AND end_time IS NULL
		ORDER BY start_time DESC LIMIT 1
	`, dailyEntryID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("open activity period", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get open activity period: %w", err)
	}
	return p, nil
}

// CloseOpen ends the running periods of a daily entry at the given time and
// reports how many were closed. End times never precede start times.
func (r *ActivityPeriodRepository) CloseOpen(ctx context.Context, dailyEntryID uuid.UUID, at time.Time) (int64, error) {
	result, err := r.q.ExecContext(ctx, `
		UPDATE activity_periods SET end_time = GREATEST(start_time, $2)
		WHERE daily_entry_id = $1 AND end_time IS NULL
	`, dailyEntryID, at)
	if err != nil {
		return 0, fmt.Errorf("failed to close activity period: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// CloseOpenForActivities ends every running period of the given activities.
func (r *ActivityPeriodRepository) CloseOpenForActivities(ctx context.Context, userID uuid.UUID, activityIDs []uuid.UUID, at time.Time) error {
	if len(activityIDs) == 0 {
		return nil
	}
	_, err := r.q.ExecContext(ctx, `
		UPDATE activity_periods SET end_time = GREATEST(start_time, $3)
		WHERE user_id = $1 AND activity_id = ANY($2::uuid[]) AND end_time IS NULL
	`, userID, uuidArray(activityIDs), at)
	if err != nil {
		return fmt.Errorf("failed to close activity periods: %w", err)
	}
	return nil
}

// ListByDailyEntry returns a day's periods ordered by start time.
func (r *ActivityPeriodRepository) ListByDailyEntry(ctx context.Context, dailyEntryID uuid.UUID) ([]*models.ActivityPeriod, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+periodColumns+` FROM activity_periods
		WHERE daily_entry_id = $1
		ORDER BY start_time, id
	`, dailyEntryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity periods: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.ActivityPeriod
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity period: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activity periods: %w", err)
	}
	return out, nil
}

func scanPeriod(row interface{ Scan(...any) error }) (*models.ActivityPeriod, error) {
	p := &models.ActivityPeriod{}
	var end sql.NullTime
	if err := row.Scan(&p.ID, &p.UserID, &p.DailyEntryID, &p.ActivityID, &p.StartTime, &end); err != nil {
		return nil, err
	}
	p.EndTime = timePtr(end)
	return p, nil
}
