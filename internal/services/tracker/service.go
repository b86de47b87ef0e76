// Package tracker implements the day-tracking operations: activity lifecycle,
// progress counters, the current-activity switch, one-time tasks and the timer.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/okhabit/okhabit/internal/database"
	"github.com/okhabit/okhabit/internal/logger"
	"github.com/okhabit/okhabit/internal/models"
	"go.uber.org/zap"
)

var (
	// ErrNoDailyEntry is returned by day operations that need the user to have woken up first.
	ErrNoDailyEntry = errors.New("wake up first to start tracking today")
	// ErrActivityUnavailable is returned when an activity is missing, archived, or in an archived group.
	ErrActivityUnavailable = errors.New("activity is not available")
)

// Service runs tracker operations against a Store.
type Service struct {
	store       database.Store
	defaultZone *time.Location
	logger      *zap.Logger
}

// NewService creates a tracker service. defaultZone applies to users without a timezone.
func NewService(store database.Store, defaultZone *time.Location, logger *zap.Logger) *Service {
	if defaultZone == nil {
		defaultZone = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, defaultZone: defaultZone, logger: logger}
}

// Location returns the zone used to compute the user's calendar dates.
func (s *Service) Location(user *models.User) *time.Location {
	return user.Location(s.defaultZone)
}

// Today returns the user's current calendar date.
func (s *Service) Today(user *models.User, now time.Time) models.Date {
	return models.Today(now, s.Location(user))
}

// requireActive loads an activity that can be tracked: owned, not archived, in a live group.
func requireActive(ctx context.Context, r *database.Repos, userID, activityID uuid.UUID) (*models.Activity, error) {
	a, err := r.Activities.GetByID(ctx, userID, activityID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrActivityUnavailable
	}
	if err != nil {
		return nil, err
	}
	if a.IsArchived {
		return nil, ErrActivityUnavailable
	}
	g, err := r.Groups.GetByID(ctx, userID, a.GroupID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrActivityUnavailable
	}
	if err != nil {
		return nil, err
	}
	if g.IsArchived {
		return nil, ErrActivityUnavailable
	}
	return a, nil
}

// lockDay loads the day's entry with a row lock, mapping absence to ErrNoDailyEntry.
func lockDay(ctx context.Context, r *database.Repos, userID uuid.UUID, day models.Date) (*models.DailyEntry, error) {
	entry, err := r.Days.GetByDateForUpdate(ctx, userID, day)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNoDailyEntry
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load day %s: %w", day, err)
	}
	return entry, nil
}

func (s *Service) logEvent(event string, userID uuid.UUID, fields ...zap.Field) {
	s.logger.Info(event, append([]zap.Field{zap.String("user_id", logger.SanitizeUserID(userID.String()))}, fields...)...)
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", models.ErrValidation, fmt.Sprintf(format, args...))
}
