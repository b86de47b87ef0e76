package handlers

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/okhabit/okhabit/internal/models"
	"github.com/okhabit/okhabit/internal/services/tracker"
)

func TestActivityHandler_GroupValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       map[string]any
		wantStatus int
	}{
		{name: "valid", body: map[string]any{"name": "Health", "color": "#00AA00", "emoji": "💪"}, wantStatus: http.StatusCreated},
		{name: "missing name", body: map[string]any{"color": "#00AA00"}, wantStatus: http.StatusBadRequest},
		{name: "blank name", body: map[string]any{"name": "   ", "color": "#00AA00"}, wantStatus: http.StatusBadRequest},
		{name: "bad color", body: map[string]any{"name": "Health", "color": "green"}, wantStatus: http.StatusBadRequest},
		{name: "short color", body: map[string]any{"name": "Health", "color": "#0A0"}, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t)
			w := env.do(t, http.MethodPost, "/api/v1/groups", tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestActivityHandler_ActivityValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       map[string]any
		wantStatus int
	}{
		{name: "defaults", body: map[string]any{"name": "Run"}, wantStatus: http.StatusCreated},
		{name: "weekly", body: map[string]any{"name": "Run", "routine": "weekly:1,3,5"}, wantStatus: http.StatusCreated},
		{name: "weekly without days", body: map[string]any{"name": "Run", "routine": "weekly:"}, wantStatus: http.StatusBadRequest},
		{name: "monthly out of range", body: map[string]any{"name": "Run", "routine": "monthly:32"}, wantStatus: http.StatusBadRequest},
		{name: "unknown pattern", body: map[string]any{"name": "Run", "pattern": "zigzag"}, wantStatus: http.StatusBadRequest},
		{name: "zero target", body: map[string]any{"name": "Run", "completion_target": 0}, wantStatus: http.StatusBadRequest},
		{name: "missing name", body: map[string]any{"routine": "daily"}, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t)
			g := decodeData[models.ActivityGroup](t, env.mustDo(t, http.MethodPost, "/api/v1/groups",
				map[string]any{"name": "Health", "color": "#00AA00"}, http.StatusCreated))

			w := env.do(t, http.MethodPost, "/api/v1/groups/"+g.ID.String()+"/activities", tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if tt.wantStatus != http.StatusCreated {
				return
			}
			a := decodeData[models.Activity](t, w)
			if a.GroupID != g.ID {
				t.Errorf("Expected group %s, got %s", g.ID, a.GroupID)
			}
			if tt.body["pattern"] == nil && a.Pattern != models.PatternSolid {
				t.Errorf("Expected default pattern solid, got %s", a.Pattern)
			}
			if tt.body["completion_target"] == nil && a.CompletionTarget != 1 {
				t.Errorf("Expected default target 1, got %d", a.CompletionTarget)
			}
		})
	}
}

func TestActivityHandler_Lifecycle(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	g, a := env.seedActivity(t, "Read", "daily", 1)

	// Update
	w := env.mustDo(t, http.MethodPatch, "/api/v1/activities/"+a.ID.String(),
		map[string]any{"name": "Read more", "pattern": "dotted"}, http.StatusOK)
	updated := decodeData[models.Activity](t, w)
	if updated.Name != "Read more" || updated.Pattern != models.PatternDotted {
		t.Errorf("Unexpected update result: %+v", updated)
	}
	if updated.Routine != "daily" {
		t.Errorf("Routine should be unchanged, got %q", updated.Routine)
	}

	// Archive the group: the activity leaves the active list and shows in the archive.
	env.mustDo(t, http.MethodPost, "/api/v1/groups/"+g.ID.String()+"/archive", nil, http.StatusNoContent)

	active := decodeData[[]models.Activity](t, env.mustDo(t, http.MethodGet, "/api/v1/activities", nil, http.StatusOK))
	if len(active) != 0 {
		t.Errorf("Expected no active activities, got %d", len(active))
	}
	groups := decodeData[[]models.ActivityGroup](t, env.mustDo(t, http.MethodGet, "/api/v1/groups", nil, http.StatusOK))
	if len(groups) != 0 {
		t.Errorf("Expected no active groups, got %d", len(groups))
	}
	archive := decodeData[tracker.Archive](t, env.mustDo(t, http.MethodGet, "/api/v1/archive", nil, http.StatusOK))
	if len(archive.Groups) != 1 || len(archive.Activities) != 1 {
		t.Fatalf("Expected 1 archived group and activity, got %d and %d", len(archive.Groups), len(archive.Activities))
	}
	if archive.Activities[0].GroupName != g.Name {
		t.Errorf("Expected group name %q, got %q", g.Name, archive.Activities[0].GroupName)
	}

	// Unarchive restores both.
	env.mustDo(t, http.MethodPost, "/api/v1/groups/"+g.ID.String()+"/unarchive", nil, http.StatusNoContent)
	active = decodeData[[]models.Activity](t, env.mustDo(t, http.MethodGet, "/api/v1/activities", nil, http.StatusOK))
	if len(active) != 1 {
		t.Errorf("Expected 1 active activity after unarchive, got %d", len(active))
	}

	// Delete
	env.mustDo(t, http.MethodDelete, "/api/v1/activities/"+a.ID.String(), nil, http.StatusNoContent)
	env.mustDo(t, http.MethodGet, "/api/v1/activities/"+a.ID.String(), nil, http.StatusNotFound)
	env.mustDo(t, http.MethodDelete, "/api/v1/groups/"+g.ID.String(), nil, http.StatusNoContent)
	env.mustDo(t, http.MethodGet, "/api/v1/groups/"+g.ID.String(), nil, http.StatusNotFound)
}

func TestActivityHandler_PathErrors(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{name: "malformed id", method: http.MethodGet, path: "/api/v1/groups/not-a-uuid", wantStatus: http.StatusBadRequest},
		{name: "unknown group", method: http.MethodGet, path: "/api/v1/groups/" + uuid.NewString(), wantStatus: http.StatusNotFound},
		{name: "unknown activity", method: http.MethodPost, path: "/api/v1/activities/" + uuid.NewString() + "/archive", wantStatus: http.StatusNotFound},
		{name: "activities of unknown group", method: http.MethodGet, path: "/api/v1/groups/" + uuid.NewString() + "/activities", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := env.do(t, tt.method, tt.path, nil)
			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
		})
	}
}
