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

const groupColumns = `id, user_id, name, color, emoji, is_archived, created_at, updated_at`

// ActivityGroupRepository handles activity group persistence.
type ActivityGroupRepository struct {
	q querier
}

// NewActivityGroupRepository creates a new activity group repository.
func NewActivityGroupRepository(db *DB) *ActivityGroupRepository {
	return &ActivityGroupRepository{q: db}
}

// Create inserts a group.
func (r *ActivityGroupRepository) Create(ctx context.Context, g *models.ActivityGroup) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO activity_groups (id, user_id, name, color, emoji, is_archived, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING created_at, updated_at
	`, g.ID, g.UserID, g.Name, g.Color, g.Emoji, g.IsArchived, time.Now()).Scan(&g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create activity group: %w", err)
	}
	return nil
}

// GetByID returns a group owned by userID.
func (r *ActivityGroupRepository) GetByID(ctx context.Context, userID, id uuid.UUID) (*models.ActivityGroup, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+groupColumns+` FROM activity_groups WHERE id = $1 AND user_id = $2
	`, id, userID)
	g, err := scanGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("activity group", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get activity group: %w", err)
	}
	return g, nil
}

// ListByUser returns the user's groups with the given archived state, oldest first.
func (r *ActivityGroupRepository) ListByUser(ctx context.Context, userID uuid.UUID, archived bool) ([]*models.ActivityGroup, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+groupColumns+` FROM activity_groups
		WHERE user_id = $1 AND is_archived = $2
		ORDER BY created_at, id
	`, userID, archived)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity groups: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.ActivityGroup
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity group: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activity groups: %w", err)
	}
	return out, nil
}

// Update stores name, color and emoji.
func (r *ActivityGroupRepository) Update(ctx context.Context, g *models.ActivityGroup) error {
	err := r.q.QueryRowContext(ctx, `
		UPDATE activity_groups SET name = $3, color = $4, emoji = $5, updated_at = $6
		WHERE id = $1 AND user_id = $2
		RETURNING updated_at
	`, g.ID, g.UserID, g.Name, g.Color, g.Emoji, time.Now()).Scan(&g.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("activity group", err)
	}
	if err != nil {
		return fmt.Errorf("failed to update activity group: %w", err)
	}
	return nil
}

// SetArchived flips the archived flag of one group.
func (r *ActivityGroupRepository) SetArchived(ctx context.Context, userID, id uuid.UUID, archived bool) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE activity_groups SET is_archived = $3, updated_at = $4 WHERE id = $1 AND user_id = $2
	`, id, userID, archived, time.Now())
	if err != nil {
		return fmt.Errorf("failed to archive activity group: %w", err)
	}
	return expectRows(result, "activity group")
}

// Delete removes a group; its activities cascade.
func (r *ActivityGroupRepository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM activity_groups WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete activity group: %w", err)
	}
	return expectRows(result, "activity group")
}

func scanGroup(row interface{ Scan(...any) error }) (*models.ActivityGroup, error) {
	g := &models.ActivityGroup{}
	if err := row.Scan(&g.ID, &g.UserID, &g.Name, &g.Color, &g.Emoji, &g.IsArchived, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, err
	}
	return g, nil
}
