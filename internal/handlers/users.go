package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/okhabit/okhabit/internal/database"
	"github.com/okhabit/okhabit/internal/logger"
	"github.com/okhabit/okhabit/internal/models"
	"go.uber.org/zap"
)

// UserHandler serves the authenticated user's preferences.
type UserHandler struct {
	users  database.UserRepositoryInterface
	logger *zap.Logger
}

// NewUserHandler creates a new user handler
func NewUserHandler(users database.UserRepositoryInterface, logger *zap.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

// RegisterRoutes registers user routes on the /api/v1 router.
func (h *UserHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/users/me/preferences", h.GetPreferences).Methods("GET")
	r.HandleFunc("/users/me/preferences", h.UpdatePreferences).Methods("PATCH")
}

// Preferences are the user's tracking settings.
type Preferences struct {
	Timezone               *string `json:"timezone"`
	TypicalWakeTime        *string `json:"typical_wake_time"`
	TypicalSleepTime       *string `json:"typical_sleep_time"`
	CountAvoidInCompletion bool    `json:"count_avoid_in_completion"`
}

// UpdatePreferencesRequest is a partial update. An empty string clears a field.
type UpdatePreferencesRequest struct {
	Timezone               *string `json:"timezone,omitempty" validate:"omitempty,timezone"`
	TypicalWakeTime        *string `json:"typical_wake_time,omitempty" validate:"omitempty,hhmm"`
	TypicalSleepTime       *string `json:"typical_sleep_time,omitempty" validate:"omitempty,hhmm"`
	CountAvoidInCompletion *bool   `json:"count_avoid_in_completion,omitempty"`
}

func preferencesOf(u *models.User) Preferences {
	return Preferences{
		Timezone:               u.Timezone,
		TypicalWakeTime:        u.TypicalWakeTime,
		TypicalSleepTime:       u.TypicalSleepTime,
		CountAvoidInCompletion: u.CountAvoidInCompletion,
	}
}

// GetPreferences returns the stored preferences
func (h *UserHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}
	respondJSON(w, http.StatusOK, preferencesOf(user))
}

// UpdatePreferences applies a partial update
func (h *UserHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}
	var req UpdatePreferencesRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	updated := *user
	set := func(dst **string, v *string) {
		if v == nil {
			return
		}
		if *v == "" {
			*dst = nil
			return
		}
		s := *v
		*dst = &s
	}
	set(&updated.Timezone, req.Timezone)
	set(&updated.TypicalWakeTime, req.TypicalWakeTime)
	set(&updated.TypicalSleepTime, req.TypicalSleepTime)
	if req.CountAvoidInCompletion != nil {
		updated.CountAvoidInCompletion = *req.CountAvoidInCompletion
	}

	if err := h.users.UpdatePreferences(r.Context(), &updated); err != nil {
		respondServiceError(w, r, h.logger, err, "update preferences")
		return
	}
	h.logger.Info("preferences_updated",
		zap.String("user_id", logger.SanitizeUserID(user.ID.String())),
	)
	respondJSON(w, http.StatusOK, preferencesOf(&updated))
}
