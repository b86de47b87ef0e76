package handlers

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/okhabit/okhabit/internal/models"
	"github.com/okhabit/okhabit/internal/services/tracker"
)

func TestDayHandler_SwitchRequiresStartedDay(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	_, a := env.seedActivity(t, "Write", "daily", 1)

	w := env.mustDo(t, http.MethodPost, "/api/v1/days/today/switch",
		map[string]any{"activity_id": a.ID}, http.StatusConflict)
	if msg := errorMessage(t, w); msg != "Wake up first to start tracking today" {
		t.Errorf("Expected wake-up instruction, got %q", msg)
	}
}

func TestDayHandler_WakeSwitchSleep(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	_, first := env.seedActivity(t, "Write", "daily", 1)
	_, second := env.seedActivity(t, "Walk", "daily", 2)

	entry := decodeData[models.DailyEntry](t, env.mustDo(t, http.MethodPost, "/api/v1/days/today/wake", nil, http.StatusOK))
	if !entry.IsAwake || entry.WakeTime == nil {
		t.Fatalf("Expected awake entry with wake time, got %+v", entry)
	}
	if entry.EntryDate.String() != "2024-03-04" {
		t.Errorf("Expected today to resolve to 2024-03-04, got %s", entry.EntryDate)
	}
	if entry.CurrentActivityID == nil || *entry.CurrentActivityID != first.ID {
		t.Errorf("Expected first activity to start on wake, got %v", entry.CurrentActivityID)
	}

	entry = decodeData[models.DailyEntry](t, env.mustDo(t, http.MethodPost, "/api/v1/days/2024-03-04/switch",
		map[string]any{"activity_id": second.ID}, http.StatusOK))
	if entry.CurrentActivityID == nil || *entry.CurrentActivityID != second.ID {
		t.Errorf("Expected current activity %s, got %v", second.ID, entry.CurrentActivityID)
	}

	view := decodeData[tracker.DayView](t, env.mustDo(t, http.MethodGet, "/api/v1/days/today", nil, http.StatusOK))
	if !view.Started || !view.IsAwake {
		t.Errorf("Expected started awake day, got started=%v awake=%v", view.Started, view.IsAwake)
	}
	if len(view.Activities) != 2 {
		t.Fatalf("Expected 2 activities in view, got %d", len(view.Activities))
	}
	for _, st := range view.Activities {
		if st.Running != (st.Activity.ID == second.ID) {
			t.Errorf("Activity %s running = %v", st.Activity.Name, st.Running)
		}
	}
	if view.OpenPeriod == nil || view.OpenPeriod.ActivityID != second.ID {
		t.Errorf("Expected open period for %s, got %+v", second.ID, view.OpenPeriod)
	}

	entry = decodeData[models.DailyEntry](t, env.mustDo(t, http.MethodPost, "/api/v1/days/today/sleep", nil, http.StatusOK))
	if entry.IsAwake || entry.CurrentActivityID != nil || entry.SleepTime == nil {
		t.Errorf("Expected asleep entry with nothing running, got %+v", entry)
	}
	for _, p := range env.store.Periods() {
		if p.EndTime == nil {
			t.Errorf("Period %s left open after sleep", p.ID)
		}
	}
}

func TestDayHandler_SwitchUnavailableActivity(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	_, a := env.seedActivity(t, "Write", "daily", 1)
	env.mustDo(t, http.MethodPost, "/api/v1/days/today/wake", nil, http.StatusOK)
	env.mustDo(t, http.MethodPost, "/api/v1/activities/"+a.ID.String()+"/archive", nil, http.StatusNoContent)

	env.mustDo(t, http.MethodPost, "/api/v1/days/today/switch", map[string]any{"activity_id": a.ID}, http.StatusConflict)
	env.mustDo(t, http.MethodPost, "/api/v1/days/today/switch", map[string]any{"activity_id": uuid.New()}, http.StatusConflict)
	env.mustDo(t, http.MethodPost, "/api/v1/days/today/switch", map[string]any{}, http.StatusBadRequest)
}

func TestDayHandler_IncrementProgressWraps(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	_, a := env.seedActivity(t, "Water", "daily", 2)
	path := "/api/v1/days/today/progress/" + a.ID.String()

	want := []struct {
		count    int
		complete bool
	}{
		{1, false},
		{2, true},
		{0, false},
	}
	for i, step := range want {
		p := decodeData[tracker.Progress](t, env.mustDo(t, http.MethodPost, path, nil, http.StatusOK))
		if p.Count != step.count || p.Complete != step.complete {
			t.Errorf("step %d: expected count=%d complete=%v, got %+v", i, step.count, step.complete, p)
		}
		if p.Target != 2 {
			t.Errorf("step %d: expected target 2, got %d", i, p.Target)
		}
	}

	env.mustDo(t, http.MethodPost, "/api/v1/days/today/progress/"+uuid.NewString(), nil, http.StatusConflict)
}

func TestDayHandler_CompletionRate(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	_, a := env.seedActivity(t, "Water", "daily", 1)
	env.seedActivity(t, "Stretch", "daily", 1)
	env.mustDo(t, http.MethodPost, "/api/v1/days/today/progress/"+a.ID.String(), nil, http.StatusOK)

	view := decodeData[tracker.DayView](t, env.mustDo(t, http.MethodGet, "/api/v1/days/today", nil, http.StatusOK))
	if view.CompletionRate != 50 {
		t.Errorf("Expected completion rate 50, got %d", view.CompletionRate)
	}
	if !view.Started || view.IsAwake {
		t.Errorf("Progress should create the day without waking it, got started=%v awake=%v", view.Started, view.IsAwake)
	}
}

func TestDayHandler_Tasks(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	task := decodeData[models.OneTimeTask](t, env.mustDo(t, http.MethodPost, "/api/v1/days/2024-03-05/tasks",
		map[string]any{"title": "Call the bank"}, http.StatusCreated))
	if task.Title != "Call the bank" || task.IsCompleted {
		t.Errorf("Unexpected task: %+v", task)
	}

	env.mustDo(t, http.MethodPost, "/api/v1/days/2024-03-05/tasks", map[string]any{"title": ""}, http.StatusBadRequest)

	task = decodeData[models.OneTimeTask](t, env.mustDo(t, http.MethodPatch, "/api/v1/tasks/"+task.ID.String(),
		map[string]any{"is_completed": true}, http.StatusOK))
	if !task.IsCompleted {
		t.Error("Expected task to be completed")
	}
	env.mustDo(t, http.MethodPatch, "/api/v1/tasks/"+task.ID.String(), map[string]any{}, http.StatusBadRequest)

	tasks := decodeData[[]models.OneTimeTask](t, env.mustDo(t, http.MethodGet, "/api/v1/days/2024-03-05/tasks", nil, http.StatusOK))
	if len(tasks) != 1 {
		t.Fatalf("Expected 1 task, got %d", len(tasks))
	}
	other := decodeData[[]models.OneTimeTask](t, env.mustDo(t, http.MethodGet, "/api/v1/days/today/tasks", nil, http.StatusOK))
	if len(other) != 0 {
		t.Errorf("Expected no tasks today, got %d", len(other))
	}

	env.mustDo(t, http.MethodDelete, "/api/v1/tasks/"+task.ID.String(), nil, http.StatusNoContent)
	env.mustDo(t, http.MethodDelete, "/api/v1/tasks/"+task.ID.String(), nil, http.StatusNotFound)
}

func TestDayHandler_BadDate(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	for _, path := range []string{"/api/v1/days/yesterday", "/api/v1/days/2024-02-30", "/api/v1/days/04-03-2024"} {
		env.mustDo(t, http.MethodGet, path, nil, http.StatusBadRequest)
	}
}
