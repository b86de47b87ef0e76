package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/okhabit/okhabit/internal/models"
	"github.com/okhabit/okhabit/internal/progress"
)

const dailyEntryColumns = `d.id, d.user_id, d.entry_date, d.completed_tasks, d.task_counts,
	d.current_activity_id, d.wake_time, d.sleep_time, d.is_awake, d.created_at, d.updated_at`

// openDayCondition matches days that still have something running.
const openDayCondition = `(d.is_awake OR d.current_activity_id IS NOT NULL OR EXISTS (
	SELECT 1 FROM activity_periods p WHERE p.daily_entry_id = d.id AND p.end_time IS NULL))`

// DailyEntryRepository handles daily entry persistence.
type DailyEntryRepository struct {
	q querier
}

// NewDailyEntryRepository creates a new daily entry repository.
func NewDailyEntryRepository(db *DB) *DailyEntryRepository {
	return &DailyEntryRepository{q: db}
}

// GetByDate returns the user's entry for date.
func (r *DailyEntryRepository) GetByDate(ctx context.Context, userID uuid.UUID, date models.Date) (*models.DailyEntry, error) {
	return r.get(ctx, `SELECT `+dailyEntryColumns+` FROM daily_entries d WHERE d.user_id = $1 AND d.entry_date = $2`, userID, date)
}

// GetByDateForUpdate is GetByDate with a row lock; use inside a transaction.
func (r *DailyEntryRepository) GetByDateForUpdate(ctx context.Context, userID uuid.UUID, date models.Date) (*models.DailyEntry, error) {
	return r.get(ctx, `SELECT `+dailyEntryColumns+` FROM daily_entries d WHERE d.user_id = $1 AND d.entry_date = $2 FOR UPDATE`, userID, date)
}

// GetOrCreate returns the entry for date, inserting an empty one when absent.
func (r *DailyEntryRepository) GetOrCreate(ctx context.Context, userID uuid.UUID, date models.Date) (*models.DailyEntry, error) {
	now := time.Now()
	e, err := scanDailyEntry(r.q.QueryRowContext(ctx, `
		INSERT INTO daily_entries AS d (id, user_id, entry_date, task_counts, is_awake, created_at, updated_at)
		VALUES ($1, $2, $3, '{}'::jsonb, false, $4, $4)
		ON CONFLICT (user_id, entry_date) DO UPDATE SET updated_at = d.updated_at
		RETURNING `+dailyEntryColumns, uuid.New(), userID, date, now))
	if err != nil {
		return nil, fmt.Errorf("failed to get or create daily entry: %w", err)
	}
	return e, nil
}

// UpdateCounts writes task_counts and drops the legacy completed_tasks column value.
func (r *DailyEntryRepository) UpdateCounts(ctx context.Context, e *models.DailyEntry) error {
	counts := e.TaskCounts
	if counts == nil {
		counts = progress.Counts{}
	}
	raw, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("failed to encode task counts: %w", err)
	}
	err = r.q.QueryRowContext(ctx, `
		UPDATE daily_entries SET task_counts = $3, completed_tasks = NULL, updated_at = $4
		WHERE id = $1 AND user_id = $2
		RETURNING updated_at
	`, e.ID, e.UserID, raw, time.Now()).Scan(&e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("daily entry", err)
	}
	if err != nil {
		return fmt.Errorf("failed to update task counts: %w", err)
	}
	e.CompletedTasks = nil
	return nil
}

// UpdateState writes the running activity, wake and sleep fields.
func (r *DailyEntryRepository) UpdateState(ctx context.Context, e *models.DailyEntry) error {
	err := r.q.QueryRowContext(ctx, `
		UPDATE daily_entries
		SET current_activity_id = $3, wake_time = $4, sleep_time = $5, is_awake = $6, updated_at = $7
		WHERE id = $1 AND user_id = $2
		RETURNING updated_at
	`, e.ID, e.UserID, e.CurrentActivityID, nullTime(e.WakeTime), nullTime(e.SleepTime), e.IsAwake, time.Now(),
	).Scan(&e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("daily entry", err)
	}
	if err != nil {
		return fmt.Errorf("failed to update daily entry: %w", err)
	}
	return nil
}

// ClearCurrentActivity unsets current_activity_id on every entry pointing at one of ids.
func (r *DailyEntryRepository) ClearCurrentActivity(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.q.ExecContext(ctx, `
		UPDATE daily_entries SET current_activity_id = NULL, updated_at = $3
		WHERE user_id = $1 AND current_activity_id = ANY($2::uuid[])
	`, userID, uuidArray(ids), time.Now())
	if err != nil {
		return fmt.Errorf("failed to clear current activity: %w", err)
	}
	return nil
}

// ListOpenBefore returns, locked, the user's entries dated before the given
// day that are still awake or have a running period.
func (r *DailyEntryRepository) ListOpenBefore(ctx context.Context, userID uuid.UUID, before models.Date) ([]*models.DailyEntry, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+dailyEntryColumns+` FROM daily_entries d
		WHERE d.user_id = $1 AND d.entry_date < $2 AND `+openDayCondition+`
		ORDER BY d.entry_date
		FOR UPDATE OF d
	`, userID, before)
	if err != nil {
		return nil, fmt.Errorf("failed to list open daily entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.DailyEntry
	for rows.Next() {
		e, err := scanDailyEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan daily entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily entries: %w", err)
	}
	return out, nil
}

// ListUserIDsWithOpenDays returns users that have an open day dated before the given day.
func (r *DailyEntryRepository) ListUserIDsWithOpenDays(ctx context.Context, before models.Date) ([]uuid.UUID, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT DISTINCT d.user_id FROM daily_entries d
		WHERE d.entry_date < $1 AND `+openDayCondition, before)
	if err != nil {
		return nil, fmt.Errorf("failed to list users with open days: %w", err)
	}
	return scanIDs(rows)
}

func (r *DailyEntryRepository) get(ctx context.Context, query string, args ...any) (*models.DailyEntry, error) {
	e, err := scanDailyEntry(r.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("daily entry", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get daily entry: %w", err)
	}
	return e, nil
}

func scanDailyEntry(row interface{ Scan(...any) error }) (*models.DailyEntry, error) {
	e := &models.DailyEntry{}
	var (
		legacy  pq.StringArray
		counts  []byte
		current uuid.NullUUID
		wake    sql.NullTime
		sleep   sql.NullTime
	)
	if err := row.Scan(&e.ID, &e.UserID, &e.EntryDate, &legacy, &counts, &current,
		&wake, &sleep, &e.IsAwake, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}

	e.TaskCounts = progress.Counts{}
	if len(counts) > 0 {
		if err := json.Unmarshal(counts, &e.TaskCounts); err != nil {
			return nil, fmt.Errorf("failed to decode task counts: %w", err)
		}
	}
	for _, s := range legacy {
		// stray values in the legacy column are ignored
		if id, err := uuid.Parse(s); err == nil {
			e.CompletedTasks = append(e.CompletedTasks, id)
		}
	}
	if current.Valid {
		id := current.UUID
		e.CurrentActivityID = &id
	}
	e.WakeTime = timePtr(wake)
	e.SleepTime = timePtr(sleep)
	return e, nil
}
