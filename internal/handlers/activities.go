package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/okhabit/okhabit/internal/models"
	"github.com/okhabit/okhabit/internal/services/tracker"
	"go.uber.org/zap"
)

// ActivityHandler serves groups, activities and the archive.
type ActivityHandler struct {
	tracker *tracker.Service
	logger  *zap.Logger
	now     func() time.Time
}

// NewActivityHandler creates a new activity handler
func NewActivityHandler(svc *tracker.Service, logger *zap.Logger) *ActivityHandler {
	return &ActivityHandler{tracker: svc, logger: logger, now: time.Now}
}

// RegisterRoutes registers group, activity and archive routes on the /api/v1 router.
func (h *ActivityHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/groups", h.ListGroups).Methods("GET")
	r.HandleFunc("/groups", h.CreateGroup).Methods("POST")
	r.HandleFunc("/groups/{id}", h.GetGroup).Methods("GET")
	r.HandleFunc("/groups/{id}", h.UpdateGroup).Methods("PATCH")
	r.HandleFunc("/groups/{id}", h.DeleteGroup).Methods("DELETE")
	r.HandleFunc("/groups/{id}/archive", h.ArchiveGroup).Methods("POST")
	r.HandleFunc("/groups/{id}/unarchive", h.UnarchiveGroup).Methods("POST")
	r.HandleFunc("/groups/{id}/activities", h.ListGroupActivities).Methods("GET")
	r.HandleFunc("/groups/{id}/activities", h.CreateActivity).Methods("POST")

	r.HandleFunc("/activities", h.ListActivities).Methods("GET")
	r.HandleFunc("/activities/{id}", h.GetActivity).Methods("GET")
	r.HandleFunc("/activities/{id}", h.UpdateActivity).Methods("PATCH")
	r.HandleFunc("/activities/{id}", h.DeleteActivity).Methods("DELETE")
	r.HandleFunc("/activities/{id}/archive", h.ArchiveActivity).Methods("POST")
	r.HandleFunc("/activities/{id}/unarchive", h.UnarchiveActivity).Methods("POST")

	r.HandleFunc("/archive", h.ListArchive).Methods("GET")
}

// CreateGroupRequest represents a create group request
type CreateGroupRequest struct {
	Name  string  `json:"name" validate:"required,max=50"`
	Color string  `json:"color" validate:"required,hexcolor"`
	Emoji *string `json:"emoji,omitempty" validate:"omitempty,max=16"`
}

// UpdateGroupRequest represents a partial group update
type UpdateGroupRequest struct {
	Name  *string `json:"name,omitempty" validate:"omitempty,max=50"`
	Color *string `json:"color,omitempty" validate:"omitempty,hexcolor"`
	Emoji *string `json:"emoji,omitempty" validate:"omitempty,max=16"`
}

// ActivityRequest is used for both create and partial update. Omitted fields take
// defaults on create and are left unchanged on update.
type ActivityRequest struct {
	GroupID          *uuid.UUID      `json:"group_id,omitempty"`
	Name             *string         `json:"name,omitempty" validate:"omitempty,max=100"`
	Pattern          *models.Pattern `json:"pattern,omitempty" validate:"omitempty,pattern"`
	Routine          *string         `json:"routine,omitempty" validate:"omitempty,routine"`
	CompletionTarget *int            `json:"completion_target,omitempty" validate:"omitempty,min=1"`
}

func (req ActivityRequest) input() tracker.ActivityInput {
	return tracker.ActivityInput{
		GroupID:          req.GroupID,
		Name:             req.Name,
		Pattern:          req.Pattern,
		Routine:          req.Routine,
		CompletionTarget: req.CompletionTarget,
	}
}

// ListGroups lists the user's active groups
func (h *ActivityHandler) ListGroups(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}
	groups, err := h.tracker.ListGroups(r.Context(), user.ID)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "list groups")
		return
	}
	if groups == nil {
		groups = []*models.ActivityGroup{}
	}
	respondJSON(w, http.StatusOK, groups)
}

// CreateGroup creates a new group
func (h *ActivityHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}
	var req CreateGroupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	g, err := h.tracker.CreateGroup(r.Context(), user.ID, tracker.GroupInput{
		Name:  &req.Name,
		Color: &req.Color,
		Emoji: req.Emoji,
	})
	if err != nil {
		respondServiceError(w, r, h.logger, err, "create group")
		return
	}
	respondJSON(w, http.StatusCreated, g)
}

// GetGroup returns one group
func (h *ActivityHandler) GetGroup(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	g, err := h.tracker.GetGroup(r.Context(), user.ID, id)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "get group")
		return
	}
	respondJSON(w, http.StatusOK, g)
}

// UpdateGroup applies a partial update
func (h *ActivityHandler) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req UpdateGroupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	g, err := h.tracker.UpdateGroup(r.Context(), user.ID, id, tracker.GroupInput{
		Name:  req.Name,
		Color: req.Color,
		Emoji: req.Emoji,
	})
	if err != nil {
		respondServiceError(w, r, h.logger, err, "update group")
		return
	}
	respondJSON(w, http.StatusOK, g)
}

// DeleteGroup hard-deletes a group and its activities
func (h *ActivityHandler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	h.idAction(w, r, "delete group", func(userID, id uuid.UUID) error {
		return h.tracker.DeleteGroup(r.Context(), userID, id, h.now())
	})
}

// ArchiveGroup archives a group and all its activities
func (h *ActivityHandler) ArchiveGroup(w http.ResponseWriter, r *http.Request) {
	h.idAction(w, r, "archive group", func(userID, id uuid.UUID) error {
		return h.tracker.ArchiveGroup(r.Context(), userID, id, h.now())
	})
}

// UnarchiveGroup restores a group and its activities
func (h *ActivityHandler) UnarchiveGroup(w http.ResponseWriter, r *http.Request) {
	h.idAction(w, r, "unarchive group", func(userID, id uuid.UUID) error {
		return h.tracker.UnarchiveGroup(r.Context(), userID, id)
	})
}

func (h *ActivityHandler) idAction(w http.ResponseWriter, r *http.Request, action string, fn func(userID, id uuid.UUID) error) {
	user := currentUser(w, r)
	if user == nil {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := fn(user.ID, id); err != nil {
		respondServiceError(w, r, h.logger, err, action)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListGroupActivities lists the activities of one group
func (h *ActivityHandler) ListGroupActivities(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	activities, err := h.tracker.ListGroupActivities(r.Context(), user.ID, id)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "list activities")
		return
	}
	if activities == nil {
		activities = []*models.Activity{}
	}
	respondJSON(w, http.StatusOK, activities)
}

// CreateActivity creates an activity in the group named by the path
func (h *ActivityHandler) CreateActivity(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}
	groupID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req ActivityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "name is required")
		return
	}
	a, err := h.tracker.CreateActivity(r.Context(), user.ID, groupID, req.input())
	if err != nil {
		respondServiceError(w, r, h.logger, err, "create activity")
		return
	}
	respondJSON(w, http.StatusCreated, a)
}

// ListActivities lists all active activities
func (h *ActivityHandler) ListActivities(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}
	activities, err := h.tracker.ListActivities(r.Context(), user.ID)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "list activities")
		return
	}
	if activities == nil {
		activities = []*models.Activity{}
	}
	respondJSON(w, http.StatusOK, activities)
}

// GetActivity returns one activity
func (h *ActivityHandler) GetActivity(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	a, err := h.tracker.GetActivity(r.Context(), user.ID, id)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "get activity")
		return
	}
	respondJSON(w, http.StatusOK, a)
}

// UpdateActivity applies a partial update
func (h *ActivityHandler) UpdateActivity(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req ActivityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	a, err := h.tracker.UpdateActivity(r.Context(), user.ID, id, req.input())
	if err != nil {
		respondServiceError(w, r, h.logger, err, "update activity")
		return
	}
	respondJSON(w, http.StatusOK, a)
}

// DeleteActivity hard-deletes an activity
func (h *ActivityHandler) DeleteActivity(w http.ResponseWriter, r *http.Request) {
	h.idAction(w, r, "delete activity", func(userID, id uuid.UUID) error {
		return h.tracker.DeleteActivity(r.Context(), userID, id, h.now())
	})
}

// ArchiveActivity archives an activity
func (h *ActivityHandler) ArchiveActivity(w http.ResponseWriter, r *http.Request) {
	h.idAction(w, r, "archive activity", func(userID, id uuid.UUID) error {
		return h.tracker.ArchiveActivity(r.Context(), userID, id, h.now())
	})
}

// UnarchiveActivity restores an activity, and its group if that was archived
func (h *ActivityHandler) UnarchiveActivity(w http.ResponseWriter, r *http.Request) {
	h.idAction(w, r, "unarchive activity", func(userID, id uuid.UUID) error {
		return h.tracker.UnarchiveActivity(r.Context(), userID, id)
	})
}

// ListArchive returns archived groups and activities
func (h *ActivityHandler) ListArchive(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}
	archive, err := h.tracker.ListArchive(r.Context(), user.ID)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "list archive")
		return
	}
	respondJSON(w, http.StatusOK, archive)
}
