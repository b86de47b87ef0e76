package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/okhabit/okhabit/internal/blob"
	"github.com/okhabit/okhabit/internal/database"
	"github.com/okhabit/okhabit/internal/models"
	"github.com/okhabit/okhabit/internal/routine"
	"github.com/okhabit/okhabit/internal/services/journal"
	"github.com/okhabit/okhabit/internal/services/tracker"
	"go.uber.org/zap"
)

func TestRespondJSON(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	respondJSON(w, http.StatusCreated, map[string]string{"message": "hello"})

	if w.Code != http.StatusCreated {
		t.Errorf("Expected status 201, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected Content-Type 'application/json', got '%s'", ct)
	}

	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if success, ok := body["success"].(bool); !ok || !success {
		t.Error("Expected success to be true")
	}
	data, ok := body["data"].(map[string]any)
	if !ok || data["message"] != "hello" {
		t.Errorf("Expected data.message 'hello', got %v", body["data"])
	}
	ts, _ := body["timestamp"].(string)
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		t.Errorf("Timestamp '%s' is not valid RFC3339: %v", ts, err)
	}
}

func TestRespondJSONError(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	respondJSONError(w, http.StatusBadRequest, "Bad Request", "line one\nline two"+strings.Repeat("x", 300))

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if success, ok := body["success"].(bool); !ok || success {
		t.Error("Expected success to be false")
	}
	if body["error"] != "Bad Request" {
		t.Errorf("Expected error 'Bad Request', got '%v'", body["error"])
	}
	msg, _ := body["message"].(string)
	if strings.Contains(msg, "\n") {
		t.Errorf("Expected single-line message, got %q", msg)
	}
	if len([]rune(msg)) > 200 {
		t.Errorf("Expected message truncated to 200 runes, got %d", len([]rune(msg)))
	}
}

func TestRespondServiceError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantMessage string
	}{
		{
			name:        "validation",
			err:         fmt.Errorf("%w: group name is required", models.ErrValidation),
			wantStatus:  http.StatusBadRequest,
			wantMessage: "group name is required",
		},
		{
			name:       "invalid routine",
			err:        fmt.Errorf("%w: unknown kind", routine.ErrInvalidRoutine),
			wantStatus: http.StatusBadRequest,
		},
		{name: "future journal date", err: journal.ErrFutureDate, wantStatus: http.StatusBadRequest},
		{name: "bad blob path", err: blob.ErrInvalidPath, wantStatus: http.StatusBadRequest},
		{name: "locked journal entry", err: journal.ErrEntryLocked, wantStatus: http.StatusForbidden},
		{
			name:        "wrapped not found",
			err:         fmt.Errorf("group %w", database.ErrNotFound),
			wantStatus:  http.StatusNotFound,
			wantMessage: "Resource not found",
		},
		{
			name:        "no daily entry",
			err:         fmt.Errorf("switch activity: %w", tracker.ErrNoDailyEntry),
			wantStatus:  http.StatusConflict,
			wantMessage: "Wake up first to start tracking today",
		},
		{name: "activity unavailable", err: tracker.ErrActivityUnavailable, wantStatus: http.StatusConflict},
		{
			name:        "unexpected",
			err:         errors.New("pq: connection refused"),
			wantStatus:  http.StatusInternalServerError,
			wantMessage: "Failed to load day",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/api/v1/days/today", nil)
			respondServiceError(w, r, zap.NewNop(), tt.err, "load day")

			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
			msg := errorMessage(t, w)
			if tt.wantMessage != "" && msg != tt.wantMessage {
				t.Errorf("Expected message %q, got %q", tt.wantMessage, msg)
			}
			if strings.Contains(msg, "pq:") {
				t.Errorf("Internal error leaked to client: %q", msg)
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	type payload struct {
		Name  string `json:"name" validate:"required,max=5"`
		Color string `json:"color" validate:"omitempty,hexcolor"`
	}

	tests := []struct {
		name        string
		body        string
		limit       int64
		wantOK      bool
		wantStatus  int
		wantMessage string
	}{
		{name: "valid", body: `{"name":"abc"}`, wantOK: true},
		{name: "empty body", body: ``, wantStatus: http.StatusBadRequest, wantMessage: "Request body is required"},
		{name: "malformed", body: `{"name":`, wantStatus: http.StatusBadRequest, wantMessage: "Invalid request body"},
		{name: "missing required", body: `{}`, wantStatus: http.StatusBadRequest, wantMessage: "name is required"},
		{name: "too long", body: `{"name":"abcdef"}`, wantStatus: http.StatusBadRequest, wantMessage: "name must be at most 5 characters"},
		{name: "bad color", body: `{"name":"a","color":"red"}`, wantStatus: http.StatusBadRequest, wantMessage: "color must be #RRGGBB"},
		{name: "over size limit", body: `{"name":"abc"}`, limit: 4, wantStatus: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			if tt.limit > 0 {
				r.Body = http.MaxBytesReader(w, r.Body, tt.limit)
			}

			var dst payload
			ok := decodeJSON(w, r, &dst)
			if ok != tt.wantOK {
				t.Fatalf("decodeJSON() = %v, want %v (%s)", ok, tt.wantOK, w.Body.String())
			}
			if ok {
				return
			}
			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if tt.wantMessage != "" {
				if msg := errorMessage(t, w); msg != tt.wantMessage {
					t.Errorf("Expected message %q, got %q", tt.wantMessage, msg)
				}
			}
		})
	}
}

func TestPathDate(t *testing.T) {
	t.Parallel()

	today := models.NewDate(2024, 3, 4)
	tests := []struct {
		name   string
		raw    string
		want   models.Date
		wantOK bool
	}{
		{name: "explicit date", raw: "2024-02-29", want: models.NewDate(2024, 2, 29), wantOK: true},
		{name: "today alias", raw: "today", want: today, wantOK: true},
		{name: "invalid day", raw: "2023-02-29", wantOK: false},
		{name: "wrong layout", raw: "04-03-2024", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			r := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"date": tt.raw})
			got, ok := pathDate(w, r, "date", func() models.Date { return today })
			if ok != tt.wantOK {
				t.Fatalf("pathDate() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				if w.Code != http.StatusBadRequest {
					t.Errorf("Expected status 400, got %d", w.Code)
				}
				return
			}
			if got != tt.want {
				t.Errorf("pathDate() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCurrentUser_Missing(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	if u := currentUser(w, httptest.NewRequest(http.MethodGet, "/", nil)); u != nil {
		t.Fatal("Expected nil user")
	}
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}
