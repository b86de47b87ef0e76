package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/okhabit/okhabit/internal/models"
	"github.com/okhabit/okhabit/internal/services/tracker"
	"go.uber.org/zap"
)

// DayHandler serves the day screen: wake/sleep, switching, progress counters and one-time tasks.
type DayHandler struct {
	tracker *tracker.Service
	logger  *zap.Logger
	now     func() time.Time
}

// NewDayHandler creates a new day handler
func NewDayHandler(svc *tracker.Service, logger *zap.Logger) *DayHandler {
	return &DayHandler{tracker: svc, logger: logger, now: time.Now}
}

// RegisterRoutes registers day and task routes on the /api/v1 router.
func (h *DayHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/days/{date}", h.GetDay).Methods("GET")
	r.HandleFunc("/days/{date}/wake", h.Wake).Methods("POST")
	r.HandleFunc("/days/{date}/sleep", h.Sleep).Methods("POST")
	r.HandleFunc("/days/{date}/stop", h.Stop).Methods("POST")
	r.HandleFunc("/days/{date}/switch", h.Switch).Methods("POST")
	r.HandleFunc("/days/{date}/progress/{activityId}", h.IncrementProgress).Methods("POST")
	r.HandleFunc("/days/{date}/tasks", h.ListTasks).Methods("GET")
	r.HandleFunc("/days/{date}/tasks", h.CreateTask).Methods("POST")

	r.HandleFunc("/tasks/{id}", h.UpdateTask).Methods("PATCH")
	r.HandleFunc("/tasks/{id}", h.DeleteTask).Methods("DELETE")
}

// SwitchRequest names the activity to make current.
type SwitchRequest struct {
	ActivityID uuid.UUID `json:"activity_id" validate:"required"`
}

// CreateTaskRequest represents a create task request
type CreateTaskRequest struct {
	Title string `json:"title" validate:"required,max=200"`
}

// UpdateTaskRequest toggles completion
type UpdateTaskRequest struct {
	IsCompleted *bool `json:"is_completed" validate:"required"`
}

// day resolves the user and the {date} route variable at the given instant.
func (h *DayHandler) day(w http.ResponseWriter, r *http.Request, now time.Time) (*models.User, models.Date, bool) {
	user := currentUser(w, r)
	if user == nil {
		return nil, models.Date{}, false
	}
	d, ok := pathDate(w, r, "date", func() models.Date { return h.tracker.Today(user, now) })
	return user, d, ok
}

// GetDay returns the day view
func (h *DayHandler) GetDay(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	user, d, ok := h.day(w, r, now)
	if !ok {
		return
	}
	view, err := h.tracker.DayView(r.Context(), user, d, now)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "load day")
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// Wake starts the day
func (h *DayHandler) Wake(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "wake up", h.tracker.WakeUp)
}

// Sleep ends the day
func (h *DayHandler) Sleep(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "go to sleep", h.tracker.GoToSleep)
}

// Stop closes the running period without starting another
func (h *DayHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "stop activity", h.tracker.StopActivity)
}

type dayTransition func(ctx context.Context, userID uuid.UUID, day models.Date, now time.Time) (*models.DailyEntry, error)

func (h *DayHandler) transition(w http.ResponseWriter, r *http.Request, action string, fn dayTransition) {
	now := h.now()
	user, d, ok := h.day(w, r, now)
	if !ok {
		return
	}
	entry, err := fn(r.Context(), user.ID, d, now)
	if err != nil {
		respondServiceError(w, r, h.logger, err, action)
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

// Switch makes an activity current, closing the previous period
func (h *DayHandler) Switch(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	user, d, ok := h.day(w, r, now)
	if !ok {
		return
	}
	var req SwitchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	entry, err := h.tracker.SwitchActivity(r.Context(), user.ID, d, req.ActivityID, now)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "switch activity")
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

// IncrementProgress advances an activity's counter for the day
func (h *DayHandler) IncrementProgress(w http.ResponseWriter, r *http.Request) {
	user, d, ok := h.day(w, r, h.now())
	if !ok {
		return
	}
	activityID, ok := pathUUID(w, r, "activityId")
	if !ok {
		return
	}
	p, err := h.tracker.IncrementProgress(r.Context(), user.ID, d, activityID)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "update progress")
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// ListTasks lists the day's one-time tasks
func (h *DayHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	user, d, ok := h.day(w, r, h.now())
	if !ok {
		return
	}
	tasks, err := h.tracker.ListTasks(r.Context(), user.ID, d)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "list tasks")
		return
	}
	if tasks == nil {
		tasks = []*models.OneTimeTask{}
	}
	respondJSON(w, http.StatusOK, tasks)
}

// CreateTask adds a one-time task to the day
func (h *DayHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	user, d, ok := h.day(w, r, h.now())
	if !ok {
		return
	}
	var req CreateTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	task, err := h.tracker.CreateTask(r.Context(), user.ID, d, req.Title)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "create task")
		return
	}
	respondJSON(w, http.StatusCreated, task)
}

// UpdateTask sets a task's completion
func (h *DayHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req UpdateTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	task, err := h.tracker.SetTaskCompleted(r.Context(), user.ID, id, *req.IsCompleted)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "update task")
		return
	}
	respondJSON(w, http.StatusOK, task)
}

// DeleteTask removes a task
func (h *DayHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.tracker.DeleteTask(r.Context(), user.ID, id); err != nil {
		respondServiceError(w, r, h.logger, err, "delete task")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
