package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/okhabit/okhabit/internal/models"
	"github.com/okhabit/okhabit/internal/routine"
)

// Routine preview window.
const (
	DefaultRoutinePreviewDays = 30
	MaxRoutinePreviewDays     = 366
)

// RoutineHandler previews when a routine descriptor is due.
type RoutineHandler struct {
	defaultZone *time.Location
	now         func() time.Time
}

// NewRoutineHandler creates a routine handler. defaultZone applies to users without a timezone.
func NewRoutineHandler(defaultZone *time.Location) *RoutineHandler {
	return &RoutineHandler{defaultZone: defaultZone, now: time.Now}
}

// RegisterRoutes registers routine routes on the /api/v1 router.
func (h *RoutineHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/routines/check", h.Check).Methods("GET")
}

// RoutineCheckResponse is the parsed routine and the dates it is due on.
type RoutineCheckResponse struct {
	Routine  string        `json:"routine"`
	Label    string        `json:"label"`
	Avoid    bool          `json:"avoid"`
	From     models.Date   `json:"from"`
	Days     int           `json:"days"`
	DueDates []models.Date `json:"due_dates"`
}

// Check parses ?routine= strictly and lists due dates in [from, from+days).
// created_at anchors custom routines (RFC3339 or YYYY-MM-DD); without it they are never due.
func (h *RoutineHandler) Check(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}
	q := r.URL.Query()

	rt, err := routine.Parse(q.Get("routine"))
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	loc := user.Location(h.defaultZone)
	from := models.Today(h.now(), loc)
	if raw := q.Get("from"); raw != "" && raw != TodayAlias {
		if from, err = models.ParseDate(raw); err != nil {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", "from must be YYYY-MM-DD")
			return
		}
	}

	days := DefaultRoutinePreviewDays
	if raw := q.Get("days"); raw != "" {
		days, err = strconv.Atoi(raw)
		if err != nil || days < 1 || days > MaxRoutinePreviewDays {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", "days must be between 1 and 366")
			return
		}
	}

	var createdAt *time.Time
	if raw := q.Get("created_at"); raw != "" {
		t, err := parseInstantOrDate(raw, loc)
		if err != nil {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", "created_at must be RFC3339 or YYYY-MM-DD")
			return
		}
		createdAt = &t
	}

	due := []models.Date{}
	for i := 0; i < days; i++ {
		d := from.AddDays(i)
		if rt.DueOn(createdAt, d.Time()) {
			due = append(due, d)
		}
	}

	respondJSON(w, http.StatusOK, RoutineCheckResponse{
		Routine:  rt.String(),
		Label:    rt.Describe(),
		Avoid:    rt.IsAvoid(),
		From:     from,
		Days:     days,
		DueDates: due,
	})
}

// parseInstantOrDate reads an instant in loc, or a bare date as that calendar day.
func parseInstantOrDate(raw string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.In(loc), nil
	}
	d, err := models.ParseDate(raw)
	if err != nil {
		return time.Time{}, err
	}
	return d.Time(), nil
}
