package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/okhabit/okhabit/internal/models"
)

// UserRepositoryInterface defines the interface for user repository operations
type UserRepositoryInterface interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByProviderID(ctx context.Context, providerID string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	UpdatePreferences(ctx context.Context, user *models.User) error
}

// ActivityGroupRepositoryInterface defines the interface for activity group operations
type ActivityGroupRepositoryInterface interface {
	Create(ctx context.Context, g *models.ActivityGroup) error
	GetByID(ctx context.Context, userID, id uuid.UUID) (*models.ActivityGroup, error)
	ListByUser(ctx context.Context, userID uuid.UUID, archived bool) ([]*models.ActivityGroup, error)
	Update(ctx context.Context, g *models.ActivityGroup) error
	SetArchived(ctx context.Context, userID, id uuid.UUID, archived bool) error
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

// ActivityRepositoryInterface defines the interface for activity operations
type ActivityRepositoryInterface interface {
	Create(ctx context.Context, a *models.Activity) error
	GetByID(ctx context.Context, userID, id uuid.UUID) (*models.Activity, error)
	ListByGroup(ctx context.Context, userID, groupID uuid.UUID) ([]*models.Activity, error)
	ListActive(ctx context.Context, userID uuid.UUID) ([]*models.Activity, error)
	ListArchived(ctx context.Context, userID uuid.UUID) ([]*models.ArchivedActivity, error)
	ListIDsByGroup(ctx context.Context, userID, groupID uuid.UUID) ([]uuid.UUID, error)
	Update(ctx context.Context, a *models.Activity) error
	SetArchived(ctx context.Context, userID, id uuid.UUID, archived bool) error
	SetArchivedByGroup(ctx context.Context, userID, groupID uuid.UUID, archived bool) ([]uuid.UUID, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

// DailyEntryRepositoryInterface defines the interface for daily entry operations
type DailyEntryRepositoryInterface interface {
	GetByDate(ctx context.Context, userID uuid.UUID, date models.Date) (*models.DailyEntry, error)
	GetByDateForUpdate(ctx context.Context, userID uuid.UUID, date models.Date) (*models.DailyEntry, error)
	GetOrCreate(ctx context.Context, userID uuid.UUID, date models.Date) (*models.DailyEntry, error)
	UpdateCounts(ctx context.Context, e *models.DailyEntry) error
	UpdateState(ctx context.Context, e *models.DailyEntry) error
	ClearCurrentActivity(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) error
	ListOpenBefore(ctx context.Context, userID uuid.UUID, before models.Date) ([]*models.DailyEntry, error)
	ListUserIDsWithOpenDays(ctx context.Context, before models.Date) ([]uuid.UUID, error)
}

// ActivityPeriodRepositoryInterface defines the interface for activity period operations
type ActivityPeriodRepositoryInterface interface {
	Create(ctx context.Context, p *models.ActivityPeriod) error
	GetOpen(ctx context.Context, dailyEntryID uuid.UUID) (*models.ActivityPeriod, error)
	CloseOpen(ctx context.Context, dailyEntryID uuid.UUID, at time.Time) (int64, error)
	CloseOpenForActivities(ctx context.Context, userID uuid.UUID, activityIDs []uuid.UUID, at time.Time) error
	ListByDailyEntry(ctx context.Context, dailyEntryID uuid.UUID) ([]*models.ActivityPeriod, error)
}

// OneTimeTaskRepositoryInterface defines the interface for one-time task operations
type OneTimeTaskRepositoryInterface interface {
	Create(ctx context.Context, t *models.OneTimeTask) error
	GetByID(ctx context.Context, userID, id uuid.UUID) (*models.OneTimeTask, error)
	ListByDate(ctx context.Context, userID uuid.UUID, date models.Date) ([]*models.OneTimeTask, error)
	SetCompleted(ctx context.Context, userID, id uuid.UUID, completed bool) error
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

// JournalEntryRepositoryInterface defines the interface for journal operations
type JournalEntryRepositoryInterface interface {
	Upsert(ctx context.Context, e *models.JournalEntry) error
	GetByDate(ctx context.Context, userID uuid.UUID, date models.Date) (*models.JournalEntry, error)
	List(ctx context.Context, userID uuid.UUID, filter models.JournalFilter) ([]*models.JournalEntry, error)
	SetBookmarked(ctx context.Context, userID uuid.UUID, date models.Date, bookmarked bool) error
	Delete(ctx context.Context, userID uuid.UUID, date models.Date) (*models.JournalEntry, error)
}

// TimeEntryRepositoryInterface defines the interface for time entry operations
type TimeEntryRepositoryInterface interface {
	Create(ctx context.Context, e *models.TimeEntry) error
	GetActive(ctx context.Context, userID uuid.UUID) (*models.TimeEntry, error)
	StopActive(ctx context.Context, userID uuid.UUID, at time.Time) (*models.TimeEntry, error)
	ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]*models.TimeEntryWithActivity, error)
}

// Repos bundles the user-data repositories bound to one connection or transaction.
type Repos struct {
	Users       UserRepositoryInterface
	Groups      ActivityGroupRepositoryInterface
	Activities  ActivityRepositoryInterface
	Days        DailyEntryRepositoryInterface
	Periods     ActivityPeriodRepositoryInterface
	Tasks       OneTimeTaskRepositoryInterface
	Journal     JournalEntryRepositoryInterface
	TimeEntries TimeEntryRepositoryInterface
}

func newRepos(q querier) *Repos {
	return &Repos{
		Users:       &UserRepository{q: q},
		Groups:      &ActivityGroupRepository{q: q},
		Activities:  &ActivityRepository{q: q},
		Days:        &DailyEntryRepository{q: q},
		Periods:     &ActivityPeriodRepository{q: q},
		Tasks:       &OneTimeTaskRepository{q: q},
		Journal:     &JournalEntryRepository{q: q},
		TimeEntries: &TimeEntryRepository{q: q},
	}
}

// Store hands out repositories and runs multi-step writes atomically.
type Store interface {
	Repos() *Repos
	InTx(ctx context.Context, fn func(r *Repos) error) error
}

// PGStore is the Postgres Store.
type PGStore struct {
	db    *DB
	repos *Repos
}

// NewStore creates a Store on db.
func NewStore(db *DB) *PGStore {
	return &PGStore{db: db, repos: newRepos(db)}
}

// Repos returns repositories bound to the pool.
func (s *PGStore) Repos() *Repos {
	return s.repos
}

// InTx runs fn with repositories bound to one transaction.
func (s *PGStore) InTx(ctx context.Context, fn func(r *Repos) error) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		return fn(newRepos(tx))
	})
}

// Ensure concrete types implement the interfaces
var (
	_ UserRepositoryInterface           = (*UserRepository)(nil)
	_ ActivityGroupRepositoryInterface  = (*ActivityGroupRepository)(nil)
	_ ActivityRepositoryInterface       = (*ActivityRepository)(nil)
	_ DailyEntryRepositoryInterface     = (*DailyEntryRepository)(nil)
	_ ActivityPeriodRepositoryInterface = (*ActivityPeriodRepository)(nil)
	_ OneTimeTaskRepositoryInterface    = (*OneTimeTaskRepository)(nil)
	_ JournalEntryRepositoryInterface   = (*JournalEntryRepository)(nil)
	_ TimeEntryRepositoryInterface      = (*TimeEntryRepository)(nil)
	_ Store                             = (*PGStore)(nil)
)
