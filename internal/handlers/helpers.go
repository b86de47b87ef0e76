package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/okhabit/okhabit/internal/blob"
	"github.com/okhabit/okhabit/internal/database"
	logpkg "github.com/okhabit/okhabit/internal/logger"
	"github.com/okhabit/okhabit/internal/models"
	"github.com/okhabit/okhabit/internal/request"
	"github.com/okhabit/okhabit/internal/routine"
	"github.com/okhabit/okhabit/internal/services/journal"
	"github.com/okhabit/okhabit/internal/services/tracker"
	"github.com/okhabit/okhabit/internal/validation"
	"go.uber.org/zap"
)

// TodayAlias may be used in place of a YYYY-MM-DD path segment.
const TodayAlias = "today"

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success":   true,
		"data":      data,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// sanitizeErrorMessage keeps client-facing messages short and single-line.
func sanitizeErrorMessage(message string) string {
	return logpkg.SanitizeString(message, 200)
}

// respondJSONError sends an error JSON response with sanitized error messages
func respondJSONError(w http.ResponseWriter, status int, errorType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success":   false,
		"error":     errorType,
		"message":   sanitizeErrorMessage(message),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

const noDailyEntryMessage = "Wake up first to start tracking today"

// respondServiceError maps domain errors to status codes. Anything unrecognized is
// logged and reported as a 500 with a generic message naming the action.
func respondServiceError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error, action string) {
	switch {
	case errors.Is(err, models.ErrValidation), errors.Is(err, routine.ErrInvalidRoutine):
		respondJSONError(w, http.StatusBadRequest, "Bad Request", strings.TrimPrefix(err.Error(), models.ErrValidation.Error()+": "))
	case errors.Is(err, journal.ErrFutureDate), errors.Is(err, blob.ErrInvalidPath):
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, journal.ErrEntryLocked):
		respondJSONError(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, database.ErrNotFound), errors.Is(err, blob.ErrNotFound):
		respondJSONError(w, http.StatusNotFound, "Not Found", "Resource not found")
	case errors.Is(err, tracker.ErrNoDailyEntry):
		respondJSONError(w, http.StatusConflict, "Conflict", noDailyEntryMessage)
	case errors.Is(err, tracker.ErrActivityUnavailable):
		respondJSONError(w, http.StatusConflict, "Conflict", err.Error())
	default:
		logger.Error("failed_to_"+strings.ReplaceAll(action, " ", "_"),
			zap.String("path", logpkg.SanitizePath(r.URL.Path)),
			zap.String("request_id", request.RequestID(r.Context())),
			zap.Error(err),
		)
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to "+action)
	}
}

// currentUser returns the authenticated user or writes a 401.
func currentUser(w http.ResponseWriter, r *http.Request) *models.User {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
	}
	return user
}

// decodeJSON decodes the body into dst and validates it. It writes the error
// response and returns false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxBytesErr):
			respondJSONError(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large", fmt.Sprintf("Request body exceeds maximum size of %d bytes", maxBytesErr.Limit))
		case errors.Is(err, io.EOF):
			respondJSONError(w, http.StatusBadRequest, "Bad Request", "Request body is required")
		default:
			respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid request body")
		}
		return false
	}

	if err := validation.Validate.Struct(dst); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", validation.Message(err))
		return false
	}
	return true
}

// pathUUID parses a UUID route variable, writing a 400 when malformed.
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// pathDate parses a YYYY-MM-DD route variable, resolving the today alias with today().
func pathDate(w http.ResponseWriter, r *http.Request, name string, today func() models.Date) (models.Date, bool) {
	raw := mux.Vars(r)[name]
	if raw == TodayAlias {
		return today(), true
	}
	d, err := models.ParseDate(raw)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Date must be YYYY-MM-DD or today")
		return models.Date{}, false
	}
	return d, true
}
