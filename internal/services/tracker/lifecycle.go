package tracker

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/okhabit/okhabit/internal/database"
	"github.com/okhabit/okhabit/internal/models"
	"github.com/okhabit/okhabit/internal/routine"
	"go.uber.org/zap"
)

// Name limits.
const (
	MaxGroupNameLength    = 50
	MaxActivityNameLength = 100
)

var hexColorRe = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// GroupInput carries group fields. Nil fields are left unchanged on update.
type GroupInput struct {
	Name  *string
	Color *string
	Emoji *string
}

// ActivityInput carries activity fields. Nil fields are left unchanged on
// update and take defaults on create.
type ActivityInput struct {
	GroupID          *uuid.UUID
	Name             *string
	Pattern          *models.Pattern
	Routine          *string
	CompletionTarget *int
}

func applyGroupInput(g *models.ActivityGroup, in GroupInput) error {
	if in.Name != nil {
		g.Name = strings.TrimSpace(*in.Name)
	}
	if in.Color != nil {
		g.Color = strings.TrimSpace(*in.Color)
	}
	if in.Emoji != nil {
		e := strings.TrimSpace(*in.Emoji)
		if e == "" {
			g.Emoji = nil
		} else {
			g.Emoji = &e
		}
	}

	if g.Name == "" {
		return validationf("group name is required")
	}
	if utf8.RuneCountInString(g.Name) > MaxGroupNameLength {
		return validationf("group name exceeds %d characters", MaxGroupNameLength)
	}
	if !hexColorRe.MatchString(g.Color) {
		return validationf("color must be #RRGGBB")
	}
	return nil
}

func applyActivityInput(a *models.Activity, in ActivityInput) error {
	if in.Name != nil {
		a.Name = strings.TrimSpace(*in.Name)
	}
	if in.Pattern != nil {
		a.Pattern = *in.Pattern
	}
	if in.Routine != nil {
		a.Routine = *in.Routine
	}
	if in.CompletionTarget != nil {
		a.CompletionTarget = *in.CompletionTarget
	}

	if a.Name == "" {
		return validationf("activity name is required")
	}
	if utf8.RuneCountInString(a.Name) > MaxActivityNameLength {
		return validationf("activity name exceeds %d characters", MaxActivityNameLength)
	}
	if !a.Pattern.Valid() {
		return validationf("unknown pattern %q", a.Pattern)
	}
	rt, err := routine.Parse(a.Routine)
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrValidation, err)
	}
	a.Routine = rt.String()
	if a.CompletionTarget < 1 {
		return validationf("completion target must be at least 1")
	}
	return nil
}

// CreateGroup validates and stores a new group.
func (s *Service) CreateGroup(ctx context.Context, userID uuid.UUID, in GroupInput) (*models.ActivityGroup, error) {
	g := &models.ActivityGroup{ID: uuid.New(), UserID: userID}
	if err := applyGroupInput(g, in); err != nil {
		return nil, err
	}
	if err := s.store.Repos().Groups.Create(ctx, g); err != nil {
		return nil, err
	}
	s.logEvent("group_created", userID, zap.String("group_id", g.ID.String()))
	return g, nil
}

// ListGroups returns the user's active groups.
func (s *Service) ListGroups(ctx context.Context, userID uuid.UUID) ([]*models.ActivityGroup, error) {
	return s.store.Repos().Groups.ListByUser(ctx, userID, false)
}

// GetGroup returns one group.
func (s *Service) GetGroup(ctx context.Context, userID, id uuid.UUID) (*models.ActivityGroup, error) {
	return s.store.Repos().Groups.GetByID(ctx, userID, id)
}

// UpdateGroup applies in to a group.
func (s *Service) UpdateGroup(ctx context.Context, userID, id uuid.UUID, in GroupInput) (*models.ActivityGroup, error) {
	var g *models.ActivityGroup
	err := s.store.InTx(ctx, func(r *database.Repos) error {
		var err error
		if g, err = r.Groups.GetByID(ctx, userID, id); err != nil {
			return err
		}
		if err := applyGroupInput(g, in); err != nil {
			return err
		}
		return r.Groups.Update(ctx, g)
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// stopActivities closes running periods of ids and clears them as current.
func stopActivities(ctx context.Context, r *database.Repos, userID uuid.UUID, ids []uuid.UUID, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.Periods.CloseOpenForActivities(ctx, userID, ids, now); err != nil {
		return err
	}
	return r.Days.ClearCurrentActivity(ctx, userID, ids)
}

// ArchiveGroup archives a group and all of its activities.
func (s *Service) ArchiveGroup(ctx context.Context, userID, id uuid.UUID, now time.Time) error {
	err := s.store.InTx(ctx, func(r *database.Repos) error {
		if _, err := r.Groups.GetByID(ctx, userID, id); err != nil {
			return err
		}
		ids, err := r.Activities.ListIDsByGroup(ctx, userID, id)
		if err != nil {
			return err
		}
		if err := stopActivities(ctx, r, userID, ids, now); err != nil {
			return err
		}
		if _, err := r.Activities.SetArchivedByGroup(ctx, userID, id, true); err != nil {
			return err
		}
		return r.Groups.SetArchived(ctx, userID, id, true)
	})
	if err != nil {
		return err
	}
	s.logEvent("group_archived", userID, zap.String("group_id", id.String()))
	return nil
}

// UnarchiveGroup restores a group and all of its activities.
func (s *Service) UnarchiveGroup(ctx context.Context, userID, id uuid.UUID) error {
	return s.store.InTx(ctx, func(r *database.Repos) error {
		if err := r.Groups.SetArchived(ctx, userID, id, false); err != nil {
			return err
		}
		_, err := r.Activities.SetArchivedByGroup(ctx, userID, id, false)
		return err
	})
}

// DeleteGroup removes a group and its activities.
func (s *Service) DeleteGroup(ctx context.Context, userID, id uuid.UUID, now time.Time) error {
	err := s.store.InTx(ctx, func(r *database.Repos) error {
		ids, err := r.Activities.ListIDsByGroup(ctx, userID, id)
		if err != nil {
			return err
		}
		if err := stopActivities(ctx, r, userID, ids, now); err != nil {
			return err
		}
		return r.Groups.Delete(ctx, userID, id)
	})
	if err != nil {
		return err
	}
	s.logEvent("group_deleted", userID, zap.String("group_id", id.String()))
	return nil
}

// CreateActivity validates and stores a new activity in a live group.
func (s *Service) CreateActivity(ctx context.Context, userID, groupID uuid.UUID, in ActivityInput) (*models.Activity, error) {
	a := &models.Activity{
		ID:               uuid.New(),
		UserID:           userID,
		GroupID:          groupID,
		Pattern:          models.PatternSolid,
		Routine:          string(routine.KindDaily),
		CompletionTarget: 1,
	}
	if err := applyActivityInput(a, in); err != nil {
		return nil, err
	}

	r := s.store.Repos()
	g, err := r.Groups.GetByID(ctx, userID, groupID)
	if err != nil {
		return nil, err
	}
	if g.IsArchived {
		return nil, validationf("group is archived")
	}
	if err := r.Activities.Create(ctx, a); err != nil {
		return nil, err
	}
	s.logEvent("activity_created", userID, zap.String("activity_id", a.ID.String()))
	return a, nil
}

// ListActivities returns every trackable activity.
func (s *Service) ListActivities(ctx context.Context, userID uuid.UUID) ([]*models.Activity, error) {
	return s.store.Repos().Activities.ListActive(ctx, userID)
}

// ListGroupActivities returns a group's non-archived activities.
func (s *Service) ListGroupActivities(ctx context.Context, userID, groupID uuid.UUID) ([]*models.Activity, error) {
	r := s.store.Repos()
	if _, err := r.Groups.GetByID(ctx, userID, groupID); err != nil {
		return nil, err
	}
	return r.Activities.ListByGroup(ctx, userID, groupID)
}

// GetActivity returns one activity.
func (s *Service) GetActivity(ctx context.Context, userID, id uuid.UUID) (*models.Activity, error) {
	return s.store.Repos().Activities.GetByID(ctx, userID, id)
}

// UpdateActivity applies in to an activity. Moving it requires the target
// group to exist and not be archived.
func (s *Service) UpdateActivity(ctx context.Context, userID, id uuid.UUID, in ActivityInput) (*models.Activity, error) {
	var a *models.Activity
	err := s.store.InTx(ctx, func(r *database.Repos) error {
		var err error
		if a, err = r.Activities.GetByID(ctx, userID, id); err != nil {
			return err
		}
		if err := applyActivityInput(a, in); err != nil {
			return err
		}
		if in.GroupID != nil && *in.GroupID != a.GroupID {
			g, err := r.Groups.GetByID(ctx, userID, *in.GroupID)
			if err != nil {
				return err
			}
			if g.IsArchived {
				return validationf("group is archived")
			}
			a.GroupID = g.ID
		}
		return r.Activities.Update(ctx, a)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ArchiveActivity stops and archives one activity.
func (s *Service) ArchiveActivity(ctx context.Context, userID, id uuid.UUID, now time.Time) error {
	err := s.store.InTx(ctx, func(r *database.Repos) error {
		if err := stopActivities(ctx, r, userID, []uuid.UUID{id}, now); err != nil {
			return err
		}
		return r.Activities.SetArchived(ctx, userID, id, true)
	})
	if err != nil {
		return err
	}
	s.logEvent("activity_archived", userID, zap.String("activity_id", id.String()))
	return nil
}

// UnarchiveActivity restores one activity, restoring its group too when archived.
func (s *Service) UnarchiveActivity(ctx context.Context, userID, id uuid.UUID) error {
	return s.store.InTx(ctx, func(r *database.Repos) error {
		a, err := r.Activities.GetByID(ctx, userID, id)
		if err != nil {
			return err
		}
		if err := r.Activities.SetArchived(ctx, userID, id, false); err != nil {
			return err
		}
		g, err := r.Groups.GetByID(ctx, userID, a.GroupID)
		if err != nil {
			return err
		}
		if g.IsArchived {
			return r.Groups.SetArchived(ctx, userID, g.ID, false)
		}
		return nil
	})
}

// DeleteActivity stops and removes one activity.
func (s *Service) DeleteActivity(ctx context.Context, userID, id uuid.UUID, now time.Time) error {
	err := s.store.InTx(ctx, func(r *database.Repos) error {
		if err := stopActivities(ctx, r, userID, []uuid.UUID{id}, now); err != nil {
			return err
		}
		return r.Activities.Delete(ctx, userID, id)
	})
	if err != nil {
		return err
	}
	s.logEvent("activity_deleted", userID, zap.String("activity_id", id.String()))
	return nil
}

// Archive lists archived groups and archived activities.
type Archive struct {
	Groups     []*models.ActivityGroup    `json:"groups"`
	Activities []*models.ArchivedActivity `json:"activities"`
}

// ListArchive returns the archive view.
func (s *Service) ListArchive(ctx context.Context, userID uuid.UUID) (*Archive, error) {
	r := s.store.Repos()
	groups, err := r.Groups.ListByUser(ctx, userID, true)
	if err != nil {
		return nil, err
	}
	activities, err := r.Activities.ListArchived(ctx, userID)
	if err != nil {
		return nil, err
	}
	if groups == nil {
		groups = []*models.ActivityGroup{}
	}
	if activities == nil {
		activities = []*models.ArchivedActivity{}
	}
	return &Archive{Groups: groups, Activities: activities}, nil
}

// IsNotFound reports whether err means the requested row does not exist for the user.
func IsNotFound(err error) bool {
	return errors.Is(err, database.ErrNotFound)
}
