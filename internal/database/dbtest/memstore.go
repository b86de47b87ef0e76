// Package dbtest provides an in-memory database.Store for tests. Transactions
// are serialized and roll back on error.
package dbtest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okhabit/okhabit/internal/database"
	"github.com/okhabit/okhabit/internal/models"
	"github.com/okhabit/okhabit/internal/progress"
)

type state struct {
	users       map[uuid.UUID]models.User
	groups      map[uuid.UUID]models.ActivityGroup
	activities  map[uuid.UUID]models.Activity
	days        map[uuid.UUID]models.DailyEntry
	periods     map[uuid.UUID]models.ActivityPeriod
	tasks       map[uuid.UUID]models.OneTimeTask
	journal     map[uuid.UUID]models.JournalEntry
	timeEntries map[uuid.UUID]models.TimeEntry
}

func newState() state {
	return state{
		users:       map[uuid.UUID]models.User{},
		groups:      map[uuid.UUID]models.ActivityGroup{},
		activities:  map[uuid.UUID]models.Activity{},
		days:        map[uuid.UUID]models.DailyEntry{},
		periods:     map[uuid.UUID]models.ActivityPeriod{},
		tasks:       map[uuid.UUID]models.OneTimeTask{},
		journal:     map[uuid.UUID]models.JournalEntry{},
		timeEntries: map[uuid.UUID]models.TimeEntry{},
	}
}

func (s state) clone() state {
	c := newState()
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.groups {
		c.groups[k] = v
	}
	for k, v := range s.activities {
		c.activities[k] = v
	}
	for k, v := range s.days {
		c.days[k] = copyDay(v)
	}
	for k, v := range s.periods {
		c.periods[k] = v
	}
	for k, v := range s.tasks {
		c.tasks[k] = v
	}
	for k, v := range s.journal {
		c.journal[k] = copyJournal(v)
	}
	for k, v := range s.timeEntries {
		c.timeEntries[k] = v
	}
	return c
}

// Store is an in-memory database.Store.
type Store struct {
	// Fail, when set, is consulted before every operation ("Periods.Create",
	// "Days.UpdateState", ...); a non-nil result fails that call.
	Fail func(op string) error

	mu    sync.Mutex
	txMu  sync.Mutex
	st    state
	seq   int64
	base  time.Time
	repos *database.Repos
}

// New returns an empty store.
func New() *Store {
	s := &Store{st: newState(), base: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	s.repos = &database.Repos{
		Users:       users{s},
		Groups:      groups{s},
		Activities:  activities{s},
		Days:        days{s},
		Periods:     periodsRepo{s},
		Tasks:       tasks{s},
		Journal:     journal{s},
		TimeEntries: timeEntries{s},
	}
	return s
}

// Repos returns the repositories.
func (s *Store) Repos() *database.Repos { return s.repos }

// InTx runs fn and restores the previous state if it fails.
func (s *Store) InTx(ctx context.Context, fn func(r *database.Repos) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.st.clone()
	s.mu.Unlock()

	if err := fn(s.repos); err != nil {
		s.mu.Lock()
		s.st = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// lock takes the state lock and checks failure injection.
func (s *Store) lock(op string) error {
	if s.Fail != nil {
		if err := s.Fail(op); err != nil {
			return err
		}
	}
	s.mu.Lock()
	return nil
}

// tick returns strictly increasing timestamps so creation order is stable.
func (s *Store) tick() time.Time {
	s.seq++
	return s.base.Add(time.Duration(s.seq) * time.Second)
}

func missing(entity string) error {
	return fmt.Errorf("%s: %w", entity, database.ErrNotFound)
}

func copyDay(d models.DailyEntry) models.DailyEntry {
	if d.TaskCounts != nil {
		c := make(progress.Counts, len(d.TaskCounts))
		for k, v := range d.TaskCounts {
			c[k] = v
		}
		d.TaskCounts = c
	}
	d.CompletedTasks = append([]uuid.UUID(nil), d.CompletedTasks...)
	return d
}

func copyJournal(e models.JournalEntry) models.JournalEntry {
	e.PhotoURLs = append([]string{}, e.PhotoURLs...)
	return e
}

// Snapshot accessors for assertions.

// Periods returns every period, ordered by start time.
func (s *Store) Periods() []models.ActivityPeriod {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ActivityPeriod, 0, len(s.st.periods))
	for _, p := range s.st.periods {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

// Day returns the stored entry for (user, date).
func (s *Store) Day(userID uuid.UUID, date models.Date) (models.DailyEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.st.days {
		if d.UserID == userID && d.EntryDate == date {
			return copyDay(d), true
		}
	}
	return models.DailyEntry{}, false
}

// PutDay stores an entry as-is, for seeding legacy or stale rows.
func (s *Store) PutDay(d models.DailyEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	s.st.days[d.ID] = copyDay(d)
}

// PutPeriod stores a period as-is.
func (s *Store) PutPeriod(p models.ActivityPeriod) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	s.st.periods[p.ID] = p
}

// PutActivity stores an activity as-is, keeping its CreatedAt.
func (s *Store) PutActivity(a models.Activity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	s.st.activities[a.ID] = a
}

type users struct{ s *Store }

func (r users) Create(ctx context.Context, u *models.User) error {
	if err := r.s.lock("Users.Create"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	now := r.s.tick()
	u.CreatedAt, u.UpdatedAt = now, now
	r.s.st.users[u.ID] = *u
	return nil
}

func (r users) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if err := r.s.lock("Users.GetByID"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	u, ok := r.s.st.users[id]
	if !ok {
		return nil, missing("user")
	}
	return &u, nil
}

func (r users) GetByProviderID(ctx context.Context, providerID string) (*models.User, error) {
	if err := r.s.lock("Users.GetByProviderID"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	for _, u := range r.s.st.users {
		if u.ProviderID != nil && *u.ProviderID == providerID {
			return &u, nil
		}
	}
	return nil, missing("user")
}

func (r users) Update(ctx context.Context, u *models.User) error {
	if err := r.s.lock("Users.Update"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	cur, ok := r.s.st.users[u.ID]
	if !ok {
		return missing("user")
	}
	cur.Email, cur.ProviderID, cur.Name, cur.EmailVerified = u.Email, u.ProviderID, u.Name, u.EmailVerified
	cur.UpdatedAt = r.s.tick()
	u.UpdatedAt = cur.UpdatedAt
	r.s.st.users[u.ID] = cur
	return nil
}

func (r users) UpdatePreferences(ctx context.Context, u *models.User) error {
	if err := r.s.lock("Users.UpdatePreferences"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	cur, ok := r.s.st.users[u.ID]
	if !ok {
		return missing("user")
	}
	cur.Timezone, cur.TypicalWakeTime, cur.TypicalSleepTime = u.Timezone, u.TypicalWakeTime, u.TypicalSleepTime
	cur.CountAvoidInCompletion = u.CountAvoidInCompletion
	cur.UpdatedAt = r.s.tick()
	u.UpdatedAt = cur.UpdatedAt
	r.s.st.users[u.ID] = cur
	return nil
}

type groups struct{ s *Store }

func (r groups) Create(ctx context.Context, g *models.ActivityGroup) error {
	if err := r.s.lock("Groups.Create"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	now := r.s.tick()
	g.CreatedAt, g.UpdatedAt = now, now
	r.s.st.groups[g.ID] = *g
	return nil
}

func (r groups) GetByID(ctx context.Context, userID, id uuid.UUID) (*models.ActivityGroup, error) {
	if err := r.s.lock("Groups.GetByID"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	g, ok := r.s.st.groups[id]
	if !ok || g.UserID != userID {
		return nil, missing("activity group")
	}
	return &g, nil
}

func (r groups) ListByUser(ctx context.Context, userID uuid.UUID, archived bool) ([]*models.ActivityGroup, error) {
	if err := r.s.lock("Groups.ListByUser"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	var out []*models.ActivityGroup
	for _, g := range r.s.st.groups {
		if g.UserID == userID && g.IsArchived == archived {
			g := g
			out = append(out, &g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r groups) Update(ctx context.Context, g *models.ActivityGroup) error {
	if err := r.s.lock("Groups.Update"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	cur, ok := r.s.st.groups[g.ID]
	if !ok || cur.UserID != g.UserID {
		return missing("activity group")
	}
	cur.Name, cur.Color, cur.Emoji = g.Name, g.Color, g.Emoji
	cur.UpdatedAt = r.s.tick()
	g.UpdatedAt = cur.UpdatedAt
	r.s.st.groups[g.ID] = cur
	return nil
}

func (r groups) SetArchived(ctx context.Context, userID, id uuid.UUID, archived bool) error {
	if err := r.s.lock("Groups.SetArchived"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	g, ok := r.s.st.groups[id]
	if !ok || g.UserID != userID {
		return missing("activity group")
	}
	g.IsArchived = archived
	g.UpdatedAt = r.s.tick()
	r.s.st.groups[id] = g
	return nil
}

func (r groups) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if err := r.s.lock("Groups.Delete"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	g, ok := r.s.st.groups[id]
	if !ok || g.UserID != userID {
		return missing("activity group")
	}
	delete(r.s.st.groups, id)
	for aid, a := range r.s.st.activities {
		if a.GroupID == id {
			r.s.deleteActivityLocked(aid)
		}
	}
	return nil
}

// deleteActivityLocked mirrors the foreign key cascades of activities.
func (s *Store) deleteActivityLocked(id uuid.UUID) {
	delete(s.st.activities, id)
	for pid, p := range s.st.periods {
		if p.ActivityID == id {
			delete(s.st.periods, pid)
		}
	}
	for tid, t := range s.st.timeEntries {
		if t.ActivityID == id {
			delete(s.st.timeEntries, tid)
		}
	}
	for did, d := range s.st.days {
		if d.CurrentActivityID != nil && *d.CurrentActivityID == id {
			d.CurrentActivityID = nil
			s.st.days[did] = d
		}
	}
}

type activities struct{ s *Store }

func (r activities) Create(ctx context.Context, a *models.Activity) error {
	if err := r.s.lock("Activities.Create"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := r.s.tick()
	a.CreatedAt, a.UpdatedAt = now, now
	r.s.st.activities[a.ID] = *a
	return nil
}

func (r activities) GetByID(ctx context.Context, userID, id uuid.UUID) (*models.Activity, error) {
	if err := r.s.lock("Activities.GetByID"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	a, ok := r.s.st.activities[id]
	if !ok || a.UserID != userID {
		return nil, missing("activity")
	}
	return &a, nil
}

func (r activities) filter(keep func(a models.Activity) bool) []*models.Activity {
	var out []*models.Activity
	for _, a := range r.s.st.activities {
		if keep(a) {
			a := a
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r activities) ListByGroup(ctx context.Context, userID, groupID uuid.UUID) ([]*models.Activity, error) {
	if err := r.s.lock("Activities.ListByGroup"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	return r.filter(func(a models.Activity) bool {
		return a.UserID == userID && a.GroupID == groupID && !a.IsArchived
	}), nil
}

func (r activities) ListActive(ctx context.Context, userID uuid.UUID) ([]*models.Activity, error) {
	if err := r.s.lock("Activities.ListActive"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	return r.filter(func(a models.Activity) bool {
		g, ok := r.s.st.groups[a.GroupID]
		return a.UserID == userID && !a.IsArchived && ok && !g.IsArchived
	}), nil
}

func (r activities) ListArchived(ctx context.Context, userID uuid.UUID) ([]*models.ArchivedActivity, error) {
	if err := r.s.lock("Activities.ListArchived"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	var out []*models.ArchivedActivity
	for _, a := range r.filter(func(a models.Activity) bool { return a.UserID == userID && a.IsArchived }) {
		out = append(out, &models.ArchivedActivity{Activity: *a, GroupName: r.s.st.groups[a.GroupID].Name})
	}
	return out, nil
}

func (r activities) ListIDsByGroup(ctx context.Context, userID, groupID uuid.UUID) ([]uuid.UUID, error) {
	if err := r.s.lock("Activities.ListIDsByGroup"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	var ids []uuid.UUID
	for _, a := range r.filter(func(a models.Activity) bool { return a.UserID == userID && a.GroupID == groupID }) {
		ids = append(ids, a.ID)
	}
	return ids, nil
}

func (r activities) Update(ctx context.Context, a *models.Activity) error {
	if err := r.s.lock("Activities.Update"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	cur, ok := r.s.st.activities[a.ID]
	if !ok || cur.UserID != a.UserID {
		return missing("activity")
	}
	cur.GroupID, cur.Name, cur.Pattern, cur.Routine, cur.CompletionTarget = a.GroupID, a.Name, a.Pattern, a.Routine, a.CompletionTarget
	cur.UpdatedAt = r.s.tick()
	a.UpdatedAt = cur.UpdatedAt
	r.s.st.activities[a.ID] = cur
	return nil
}

func (r activities) SetArchived(ctx context.Context, userID, id uuid.UUID, archived bool) error {
	if err := r.s.lock("Activities.SetArchived"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	a, ok := r.s.st.activities[id]
	if !ok || a.UserID != userID {
		return missing("activity")
	}
	a.IsArchived = archived
	a.UpdatedAt = r.s.tick()
	r.s.st.activities[id] = a
	return nil
}

func (r activities) SetArchivedByGroup(ctx context.Context, userID, groupID uuid.UUID, archived bool) ([]uuid.UUID, error) {
	if err := r.s.lock("Activities.SetArchivedByGroup"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	var ids []uuid.UUID
	for id, a := range r.s.st.activities {
		if a.UserID == userID && a.GroupID == groupID && a.IsArchived != archived {
			a.IsArchived = archived
			a.UpdatedAt = r.s.tick()
			r.s.st.activities[id] = a
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r activities) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if err := r.s.lock("Activities.Delete"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	a, ok := r.s.st.activities[id]
	if !ok || a.UserID != userID {
		return missing("activity")
	}
	r.s.deleteActivityLocked(id)
	return nil
}

type days struct{ s *Store }

func (r days) find(userID uuid.UUID, date models.Date) (models.DailyEntry, bool) {
	for _, d := range r.s.st.days {
		if d.UserID == userID && d.EntryDate == date {
			return d, true
		}
	}
	return models.DailyEntry{}, false
}

func (r days) GetByDate(ctx context.Context, userID uuid.UUID, date models.Date) (*models.DailyEntry, error) {
	if err := r.s.lock("Days.GetByDate"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	d, ok := r.find(userID, date)
	if !ok {
		return nil, missing("daily entry")
	}
	c := copyDay(d)
	return &c, nil
}

func (r days) GetByDateForUpdate(ctx context.Context, userID uuid.UUID, date models.Date) (*models.DailyEntry, error) {
	return r.GetByDate(ctx, userID, date)
}

func (r days) GetOrCreate(ctx context.Context, userID uuid.UUID, date models.Date) (*models.DailyEntry, error) {
	if err := r.s.lock("Days.GetOrCreate"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	d, ok := r.find(userID, date)
	if !ok {
		now := r.s.tick()
		d = models.DailyEntry{
			ID:         uuid.New(),
			UserID:     userID,
			EntryDate:  date,
			TaskCounts: progress.Counts{},
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		r.s.st.days[d.ID] = d
	}
	c := copyDay(d)
	return &c, nil
}

func (r days) UpdateCounts(ctx context.Context, e *models.DailyEntry) error {
	if err := r.s.lock("Days.UpdateCounts"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	cur, ok := r.s.st.days[e.ID]
	if !ok || cur.UserID != e.UserID {
		return missing("daily entry")
	}
	cur.TaskCounts = e.TaskCounts
	cur.CompletedTasks = nil
	cur.UpdatedAt = r.s.tick()
	r.s.st.days[e.ID] = copyDay(cur)
	e.CompletedTasks = nil
	e.UpdatedAt = cur.UpdatedAt
	return nil
}

func (r days) UpdateState(ctx context.Context, e *models.DailyEntry) error {
	if err := r.s.lock("Days.UpdateState"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	cur, ok := r.s.st.days[e.ID]
	if !ok || cur.UserID != e.UserID {
		return missing("daily entry")
	}
	cur.CurrentActivityID, cur.WakeTime, cur.SleepTime, cur.IsAwake = e.CurrentActivityID, e.WakeTime, e.SleepTime, e.IsAwake
	cur.UpdatedAt = r.s.tick()
	e.UpdatedAt = cur.UpdatedAt
	r.s.st.days[e.ID] = cur
	return nil
}

func (r days) ClearCurrentActivity(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) error {
	if err := r.s.lock("Days.ClearCurrentActivity"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	for did, d := range r.s.st.days {
		if d.UserID != userID || d.CurrentActivityID == nil {
			continue
		}
		for _, id := range ids {
			if *d.CurrentActivityID == id {
				d.CurrentActivityID = nil
				r.s.st.days[did] = d
				break
			}
		}
	}
	return nil
}

func (r days) openLocked(d models.DailyEntry) bool {
	if d.IsAwake || d.CurrentActivityID != nil {
		return true
	}
	for _, p := range r.s.st.periods {
		if p.DailyEntryID == d.ID && p.EndTime == nil {
			return true
		}
	}
	return false
}

func (r days) ListOpenBefore(ctx context.Context, userID uuid.UUID, before models.Date) ([]*models.DailyEntry, error) {
	if err := r.s.lock("Days.ListOpenBefore"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	var out []*models.DailyEntry
	for _, d := range r.s.st.days {
		if d.UserID == userID && d.EntryDate.Before(before) && r.openLocked(d) {
			c := copyDay(d)
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntryDate.Before(out[j].EntryDate) })
	return out, nil
}

func (r days) ListUserIDsWithOpenDays(ctx context.Context, before models.Date) ([]uuid.UUID, error) {
	if err := r.s.lock("Days.ListUserIDsWithOpenDays"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	seen := map[uuid.UUID]bool{}
	var out []uuid.UUID
	for _, d := range r.s.st.days {
		if d.EntryDate.Before(before) && r.openLocked(d) && !seen[d.UserID] {
			seen[d.UserID] = true
			out = append(out, d.UserID)
		}
	}
	return out, nil
}

type periodsRepo struct{ s *Store }

func (r periodsRepo) Create(ctx context.Context, p *models.ActivityPeriod) error {
	if err := r.s.lock("Periods.Create"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	if p.EndTime == nil {
		for _, o := range r.s.st.periods {
			if o.DailyEntryID == p.DailyEntryID && o.EndTime == nil {
				return fmt.Errorf("duplicate open period for daily entry %s", p.DailyEntryID)
			}
		}
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	r.s.st.periods[p.ID] = *p
	return nil
}

func (r periodsRepo) GetOpen(ctx context.Context, dailyEntryID uuid.UUID) (*models.ActivityPeriod, error) {
	if err := r.s.lock("Periods.GetOpen"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	var out *models.ActivityPeriod
	for _, p := range r.s.st.periods {
		if p.DailyEntryID == dailyEntryID && p.EndTime == nil && (out == nil || p.StartTime.After(out.StartTime)) {
			p := p
			out = &p
		}
	}
	if out == nil {
		return nil, missing("open activity period")
	}
	return out, nil
}

func closeAt(p models.ActivityPeriod, at time.Time) models.ActivityPeriod {
	if at.Before(p.StartTime) {
		at = p.StartTime
	}
	p.EndTime = &at
	return p
}

func (r periodsRepo) CloseOpen(ctx context.Context, dailyEntryID uuid.UUID, at time.Time) (int64, error) {
	if err := r.s.lock("Periods.CloseOpen"); err != nil {
		return 0, err
	}
	defer r.s.mu.Unlock()
	var n int64
	for id, p := range r.s.st.periods {
		if p.DailyEntryID == dailyEntryID && p.EndTime == nil {
			r.s.st.periods[id] = closeAt(p, at)
			n++
		}
	}
	return n, nil
}

func (r periodsRepo) CloseOpenForActivities(ctx context.Context, userID uuid.UUID, activityIDs []uuid.UUID, at time.Time) error {
	if err := r.s.lock("Periods.CloseOpenForActivities"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	want := map[uuid.UUID]bool{}
	for _, id := range activityIDs {
		want[id] = true
	}
	for id, p := range r.s.st.periods {
		if p.UserID == userID && want[p.ActivityID] && p.EndTime == nil {
			r.s.st.periods[id] = closeAt(p, at)
		}
	}
	return nil
}

func (r periodsRepo) ListByDailyEntry(ctx context.Context, dailyEntryID uuid.UUID) ([]*models.ActivityPeriod, error) {
	if err := r.s.lock("Periods.ListByDailyEntry"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	var out []*models.ActivityPeriod
	for _, p := range r.s.st.periods {
		if p.DailyEntryID == dailyEntryID {
			p := p
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

type tasks struct{ s *Store }

func (r tasks) Create(ctx context.Context, t *models.OneTimeTask) error {
	if err := r.s.lock("Tasks.Create"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.CreatedAt = r.s.tick()
	r.s.st.tasks[t.ID] = *t
	return nil
}

func (r tasks) GetByID(ctx context.Context, userID, id uuid.UUID) (*models.OneTimeTask, error) {
	if err := r.s.lock("Tasks.GetByID"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	t, ok := r.s.st.tasks[id]
	if !ok || t.UserID != userID {
		return nil, missing("task")
	}
	return &t, nil
}

func (r tasks) ListByDate(ctx context.Context, userID uuid.UUID, date models.Date) ([]*models.OneTimeTask, error) {
	if err := r.s.lock("Tasks.ListByDate"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	var out []*models.OneTimeTask
	for _, t := range r.s.st.tasks {
		if t.UserID == userID && t.TaskDate == date {
			t := t
			out = append(out, &t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r tasks) SetCompleted(ctx context.Context, userID, id uuid.UUID, completed bool) error {
	if err := r.s.lock("Tasks.SetCompleted"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	t, ok := r.s.st.tasks[id]
	if !ok || t.UserID != userID {
		return missing("task")
	}
	t.IsCompleted = completed
	r.s.st.tasks[id] = t
	return nil
}

func (r tasks) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if err := r.s.lock("Tasks.Delete"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	t, ok := r.s.st.tasks[id]
	if !ok || t.UserID != userID {
		return missing("task")
	}
	delete(r.s.st.tasks, id)
	return nil
}

type journal struct{ s *Store }

func (r journal) find(userID uuid.UUID, date models.Date) (models.JournalEntry, bool) {
	for _, e := range r.s.st.journal {
		if e.UserID == userID && e.EntryDate == date {
			return e, true
		}
	}
	return models.JournalEntry{}, false
}

func (r journal) Upsert(ctx context.Context, e *models.JournalEntry) error {
	if err := r.s.lock("Journal.Upsert"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	now := r.s.tick()
	if cur, ok := r.find(e.UserID, e.EntryDate); ok {
		e.ID = cur.ID
		e.IsBookmarked = cur.IsBookmarked
		e.CreatedAt = cur.CreatedAt
	} else {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		e.CreatedAt = now
	}
	if e.PhotoURLs == nil {
		e.PhotoURLs = []string{}
	}
	e.UpdatedAt = now
	r.s.st.journal[e.ID] = copyJournal(*e)
	return nil
}

func (r journal) GetByDate(ctx context.Context, userID uuid.UUID, date models.Date) (*models.JournalEntry, error) {
	if err := r.s.lock("Journal.GetByDate"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	e, ok := r.find(userID, date)
	if !ok {
		return nil, missing("journal entry")
	}
	c := copyJournal(e)
	return &c, nil
}

func matchesJournal(e models.JournalEntry, f models.JournalFilter) bool {
	if text := strings.ToLower(strings.TrimSpace(f.Text)); text != "" {
		var title, body string
		if e.Title != nil {
			title = strings.ToLower(*e.Title)
		}
		if e.TextContent != nil {
			body = strings.ToLower(*e.TextContent)
		}
		if !strings.Contains(title, text) && !strings.Contains(body, text) {
			return false
		}
	}
	if f.Quality != nil && (e.DayQuality == nil || *e.DayQuality != *f.Quality) {
		return false
	}
	if f.Bookmarked != nil && e.IsBookmarked != *f.Bookmarked {
		return false
	}
	if f.HasPhotos != nil && (len(e.PhotoURLs) > 0) != *f.HasPhotos {
		return false
	}
	if f.HasVideo != nil && (e.VideoURL != nil) != *f.HasVideo {
		return false
	}
	if f.From != nil && e.EntryDate.Before(*f.From) {
		return false
	}
	if f.To != nil && e.EntryDate.After(*f.To) {
		return false
	}
	return true
}

func (r journal) List(ctx context.Context, userID uuid.UUID, filter models.JournalFilter) ([]*models.JournalEntry, error) {
	if err := r.s.lock("Journal.List"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	var out []*models.JournalEntry
	for _, e := range r.s.st.journal {
		if e.UserID == userID && matchesJournal(e, filter) {
			c := copyJournal(e)
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntryDate.After(out[j].EntryDate) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r journal) SetBookmarked(ctx context.Context, userID uuid.UUID, date models.Date, bookmarked bool) error {
	if err := r.s.lock("Journal.SetBookmarked"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	e, ok := r.find(userID, date)
	if !ok {
		return missing("journal entry")
	}
	e.IsBookmarked = bookmarked
	e.UpdatedAt = r.s.tick()
	r.s.st.journal[e.ID] = e
	return nil
}

func (r journal) Delete(ctx context.Context, userID uuid.UUID, date models.Date) (*models.JournalEntry, error) {
	if err := r.s.lock("Journal.Delete"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	e, ok := r.find(userID, date)
	if !ok {
		return nil, missing("journal entry")
	}
	delete(r.s.st.journal, e.ID)
	return &e, nil
}

type timeEntries struct{ s *Store }

func (r timeEntries) Create(ctx context.Context, e *models.TimeEntry) error {
	if err := r.s.lock("TimeEntries.Create"); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	r.s.st.timeEntries[e.ID] = *e
	return nil
}

func (r timeEntries) activeLocked(userID uuid.UUID) (models.TimeEntry, bool) {
	for _, e := range r.s.st.timeEntries {
		if e.UserID == userID && e.TimeEnd == nil {
			return e, true
		}
	}
	return models.TimeEntry{}, false
}

func (r timeEntries) GetActive(ctx context.Context, userID uuid.UUID) (*models.TimeEntry, error) {
	if err := r.s.lock("TimeEntries.GetActive"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	e, ok := r.activeLocked(userID)
	if !ok {
		return nil, missing("active time entry")
	}
	return &e, nil
}

func (r timeEntries) StopActive(ctx context.Context, userID uuid.UUID, at time.Time) (*models.TimeEntry, error) {
	if err := r.s.lock("TimeEntries.StopActive"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	e, ok := r.activeLocked(userID)
	if !ok {
		return nil, missing("active time entry")
	}
	if at.Before(e.TimeStart) {
		at = e.TimeStart
	}
	e.TimeEnd = &at
	r.s.st.timeEntries[e.ID] = e
	return &e, nil
}

func (r timeEntries) ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]*models.TimeEntryWithActivity, error) {
	if err := r.s.lock("TimeEntries.ListRecent"); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	var out []*models.TimeEntryWithActivity
	for _, e := range r.s.st.timeEntries {
		if e.UserID == userID && e.TimeEnd != nil {
			out = append(out, &models.TimeEntryWithActivity{TimeEntry: e, ActivityName: r.s.st.activities[e.ActivityID].Name})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TimeStart.After(out[j].TimeStart) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ database.Store = (*Store)(nil)
