package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/okhabit/okhabit/internal/models"
)

const activityColumns = `a.id, a.user_id, a.group_id, a.name, a.pattern, a.routine,
	a.completion_target, a.is_archived, a.created_at, a.updated_at`

// ActivityRepository handles activity persistence.
type ActivityRepository struct {
	q querier
}

// NewActivityRepository creates a new activity repository.
func NewActivityRepository(db *DB) *ActivityRepository {
	return &ActivityRepository{q: db}
}

// Create inserts an activity.
func (r *ActivityRepository) Create(ctx context.Context, a *models.Activity) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO activities (id, user_id, group_id, name, pattern, routine, completion_target, is_archived, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING created_at, updated_at
	`, a.ID, a.UserID, a.GroupID, a.Name, a.Pattern, a.Routine, a.CompletionTarget, a.IsArchived, time.Now(),
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create activity: %w", err)
	}
	return nil
}

// GetByID returns an activity owned by userID.
func (r *ActivityRepository) GetByID(ctx context.Context, userID, id uuid.UUID) (*models.Activity, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+activityColumns+` FROM activities a WHERE a.id = $1 AND a.user_id = $2
	`, id, userID)
	a, err := scanActivity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("activity", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get activity: %w", err)
	}
	return a, nil
}

// ListByGroup returns the non-archived activities of a group, oldest first.
func (r *ActivityRepository) ListByGroup(ctx context.Context, userID, groupID uuid.UUID) ([]*models.Activity, error) {
	return r.list(ctx, `
		SELECT `+activityColumns+` FROM activities a
		WHERE a.user_id = $1 AND a.group_id = $2 AND NOT a.is_archived
		ORDER BY a.created_at, a.id
	`, userID, groupID)
}

// ListActive returns every activity that is not archived and whose group is
// not archived, oldest first.
func (r *ActivityRepository) ListActive(ctx context.Context, userID uuid.UUID) ([]*models.Activity, error) {
	return r.list(ctx, `
		SELECT `+activityColumns+` FROM activities a
		JOIN activity_groups g ON g.id = a.group_id
		WHERE a.user_id = $1 AND NOT a.is_archived AND NOT g.is_archived
		ORDER BY a.created_at, a.id
	`, userID)
}

// ListArchived returns archived activities with their group names.
func (r *ActivityRepository) ListArchived(ctx context.Context, userID uuid.UUID) ([]*models.ArchivedActivity, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+activityColumns+`, g.name FROM activities a
		JOIN activity_groups g ON g.id = a.group_id
		WHERE a.user_id = $1 AND a.is_archived
		ORDER BY a.updated_at DESC, a.id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list archived activities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.ArchivedActivity
	for rows.Next() {
		aa := &models.ArchivedActivity{}
		a := &aa.Activity
		if err := rows.Scan(&a.ID, &a.UserID, &a.GroupID, &a.Name, &a.Pattern, &a.Routine,
			&a.CompletionTarget, &a.IsArchived, &a.CreatedAt, &a.UpdatedAt, &aa.GroupName); err != nil {
			return nil, fmt.Errorf("failed to scan archived activity: %w", err)
		}
		out = append(out, aa)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating archived activities: %w", err)
	}
	return out, nil
}

// ListIDsByGroup returns the ids of every activity in a group, archived or not.
func (r *ActivityRepository) ListIDsByGroup(ctx context.Context, userID, groupID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id FROM activities WHERE user_id = $1 AND group_id = $2
	`, userID, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity ids: %w", err)
	}
	return scanIDs(rows)
}

// Update stores the editable fields of an activity.
func (r *ActivityRepository) Update(ctx context.Context, a *models.Activity) error {
	err := r.q.QueryRowContext(ctx, `
		UPDATE activities
		SET group_id = $3, name = $4, pattern = $5, routine = $6, completion_target = $7, updated_at = $8
		WHERE id = $1 AND user_id = $2
		RETURNING updated_at
	`, a.ID, a.UserID, a.GroupID, a.Name, a.Pattern, a.Routine, a.CompletionTarget, time.Now()).Scan(&a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("activity", err)
	}
	if err != nil {
		return fmt.Errorf("failed to update activity: %w", err)
	}
	return nil
}

// SetArchived flips the archived flag of one activity.
func (r *ActivityRepository) SetArchived(ctx context.Context, userID, id uuid.UUID, archived bool) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE activities SET is_archived = $3, updated_at = $4 WHERE id = $1 AND user_id = $2
	`, id, userID, archived, time.Now())
	if err != nil {
		return fmt.Errorf("failed to archive activity: %w", err)
	}
	return expectRows(result, "activity")
}

// SetArchivedByGroup flips the archived flag of every activity in a group and
// returns the affected ids.
func (r *ActivityRepository) SetArchivedByGroup(ctx context.Context, userID, groupID uuid.UUID, archived bool) ([]uuid.UUID, error) {
	rows, err := r.q.QueryContext(ctx, `
		UPDATE activities SET is_archived = $3, updated_at = $4
		WHERE user_id = $1 AND group_id = $2 AND is_archived <> $3
		RETURNING id
	`, userID, groupID, archived, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to archive group activities: %w", err)
	}
	return scanIDs(rows)
}

// Delete removes an activity; its periods and time entries cascade.
func (r *ActivityRepository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM activities WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete activity: %w", err)
	}
	return expectRows(result, "activity")
}

func (r *ActivityRepository) list(ctx context.Context, query string, args ...any) ([]*models.Activity, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activities: %w", err)
	}
	return out, nil
}

func scanActivity(row interface{ Scan(...any) error }) (*models.Activity, error) {
	a := &models.Activity{}
	if err := row.Scan(&a.ID, &a.UserID, &a.GroupID, &a.Name, &a.Pattern, &a.Routine,
		&a.CompletionTarget, &a.IsArchived, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return a, nil
}

func scanIDs(rows *sql.Rows) ([]uuid.UUID, error) {
	defer func() { _ = rows.Close() }()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ids: %w", err)
	}
	return ids, nil
}

// uuidArray adapts ids for ANY($n) parameters.
func uuidArray(ids []uuid.UUID) any {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return pq.Array(out)
}
