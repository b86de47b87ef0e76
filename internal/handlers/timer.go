package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/okhabit/okhabit/internal/services/tracker"
	"go.uber.org/zap"
)

// MaxRecentTimers caps the recent timer listing.
const MaxRecentTimers = 50

// TimerHandler serves the stopwatch that runs alongside the day tracker.
type TimerHandler struct {
	tracker *tracker.Service
	logger  *zap.Logger
	now     func() time.Time
}

// NewTimerHandler creates a new timer handler
func NewTimerHandler(svc *tracker.Service, logger *zap.Logger) *TimerHandler {
	return &TimerHandler{tracker: svc, logger: logger, now: time.Now}
}

// RegisterRoutes registers timer routes on the /api/v1 router.
func (h *TimerHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/timer", h.Active).Methods("GET")
	r.HandleFunc("/timer/start", h.Start).Methods("POST")
	r.HandleFunc("/timer/stop", h.Stop).Methods("POST")
	r.HandleFunc("/timer/recent", h.Recent).Methods("GET")
}

// StartTimerRequest names the activity to time
type StartTimerRequest struct {
	ActivityID uuid.UUID `json:"activity_id" validate:"required"`
}

// Active returns the running timer, or null
func (h *TimerHandler) Active(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}
	status, err := h.tracker.ActiveTimer(r.Context(), user.ID, h.now())
	if err != nil {
		respondServiceError(w, r, h.logger, err, "get timer")
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// Start stops any running timer and starts a new one
func (h *TimerHandler) Start(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}
	var req StartTimerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	status, err := h.tracker.StartTimer(r.Context(), user.ID, req.ActivityID, h.now())
	if err != nil {
		respondServiceError(w, r, h.logger, err, "start timer")
		return
	}
	respondJSON(w, http.StatusCreated, status)
}

// Stop ends the running timer. 404 when nothing is running.
func (h *TimerHandler) Stop(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}
	entry, err := h.tracker.StopTimer(r.Context(), user.ID, h.now())
	if err != nil {
		respondServiceError(w, r, h.logger, err, "stop timer")
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

// Recent lists finished timers, newest first
func (h *TimerHandler) Recent(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}
	limit := tracker.DefaultRecentTimers
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", "limit must be a positive integer")
			return
		}
		limit = min(parsed, MaxRecentTimers)
	}
	timers, err := h.tracker.RecentTimers(r.Context(), user.ID, limit)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "list timers")
		return
	}
	if timers == nil {
		timers = []tracker.RecentTimer{}
	}
	respondJSON(w, http.StatusOK, timers)
}
