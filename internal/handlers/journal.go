package handlers

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/okhabit/okhabit/internal/models"
	"github.com/okhabit/okhabit/internal/services/journal"
	"go.uber.org/zap"
)

const (
	// DefaultPageSize is the default journal listing size
	DefaultPageSize = 100
	// MaxPageSize is the maximum journal listing size
	MaxPageSize = 500
	// multipartMemory is how much of an upload is buffered in memory before spilling to disk.
	multipartMemory = 8 << 20
)

// JournalHandler serves journal entries and their media.
type JournalHandler struct {
	journal *journal.Service
	logger  *zap.Logger
	now     func() time.Time
}

// NewJournalHandler creates a new journal handler
func NewJournalHandler(svc *journal.Service, logger *zap.Logger) *JournalHandler {
	return &JournalHandler{journal: svc, logger: logger, now: time.Now}
}

// RegisterRoutes registers journal routes on the /api/v1 router.
// Fixed paths come before /journal/{date} so they are not read as dates.
func (h *JournalHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/journal", h.List).Methods("GET")
	r.HandleFunc("/journal/search", h.Search).Methods("GET")
	r.HandleFunc("/journal/calendar/{month}", h.Calendar).Methods("GET")
	r.HandleFunc("/journal/{date}", h.Get).Methods("GET")
	r.HandleFunc("/journal/{date}", h.Save).Methods("PUT")
	r.HandleFunc("/journal/{date}", h.Delete).Methods("DELETE")
	r.HandleFunc("/journal/{date}/bookmark", h.Bookmark).Methods("POST")
	r.HandleFunc("/journal/{date}/media", h.UploadMedia).Methods("POST")
}

// SaveJournalRequest is the full content of an entry. Omitted fields are cleared.
type SaveJournalRequest struct {
	Title       *string  `json:"title" validate:"omitempty,max=30"`
	TextContent *string  `json:"text_content" validate:"omitempty,max=300"`
	DayQuality  *int     `json:"day_quality" validate:"omitempty,min=1,max=5"`
	DayEmoji    *string  `json:"day_emoji" validate:"omitempty,max=16"`
	PhotoPaths  []string `json:"photo_paths" validate:"max=10"`
	VideoPath   *string  `json:"video_path"`
}

// BookmarkRequest sets or clears the bookmark
type BookmarkRequest struct {
	Bookmarked *bool `json:"bookmarked" validate:"required"`
}

func (h *JournalHandler) entryDate(w http.ResponseWriter, r *http.Request, user *models.User, now time.Time) (models.Date, bool) {
	return pathDate(w, r, "date", func() models.Date { return h.journal.Today(user, now) })
}

// List returns entries newest first
func (h *JournalHandler) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, false)
}

// Search filters entries by text, quality, bookmark and media presence
func (h *JournalHandler) Search(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, true)
}

func (h *JournalHandler) list(w http.ResponseWriter, r *http.Request, search bool) {
	user := currentUser(w, r)
	if user == nil {
		return
	}
	filter, err := parseJournalFilter(r, search)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	entries, err := h.journal.List(r.Context(), user, filter, h.now())
	if err != nil {
		respondServiceError(w, r, h.logger, err, "list journal entries")
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

// parseJournalFilter reads limit/from/to, plus the search filters when search is set.
func parseJournalFilter(r *http.Request, search bool) (models.JournalFilter, error) {
	q := r.URL.Query()
	filter := models.JournalFilter{Limit: DefaultPageSize}

	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			return filter, errors.New("limit must be a positive integer")
		}
		filter.Limit = min(n, MaxPageSize)
	}
	for _, p := range []struct {
		name string
		dst  **models.Date
	}{{"from", &filter.From}, {"to", &filter.To}} {
		if raw := q.Get(p.name); raw != "" {
			d, err := models.ParseDate(raw)
			if err != nil {
				return filter, fmt.Errorf("%s must be YYYY-MM-DD", p.name)
			}
			*p.dst = &d
		}
	}
	if !search {
		return filter, nil
	}

	filter.Text = q.Get("q")
	if raw := q.Get("quality"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return filter, errors.New("quality must be an integer")
		}
		filter.Quality = &n
	}
	for _, p := range []struct {
		name string
		dst  **bool
	}{{"bookmarked", &filter.Bookmarked}, {"has_photos", &filter.HasPhotos}, {"has_video", &filter.HasVideo}} {
		if raw := q.Get(p.name); raw != "" {
			b, err := strconv.ParseBool(raw)
			if err != nil {
				return filter, fmt.Errorf("%s must be true or false", p.name)
			}
			*p.dst = &b
		}
	}
	return filter, nil
}

// Calendar returns the month view for {month} (YYYY-MM)
func (h *JournalHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}
	month, err := time.Parse("2006-01", mux.Vars(r)["month"])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Month must be YYYY-MM")
		return
	}
	days, err := h.journal.Calendar(r.Context(), user.ID, month.Year(), month.Month())
	if err != nil {
		respondServiceError(w, r, h.logger, err, "load journal calendar")
		return
	}
	if days == nil {
		days = []journal.CalendarDay{}
	}
	respondJSON(w, http.StatusOK, days)
}

// Get returns one entry
func (h *JournalHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}
	now := h.now()
	d, ok := h.entryDate(w, r, user, now)
	if !ok {
		return
	}
	e, err := h.journal.Get(r.Context(), user, d, now)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "get journal entry")
		return
	}
	respondJSON(w, http.StatusOK, e)
}

// Save creates or replaces an entry
func (h *JournalHandler) Save(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}
	now := h.now()
	d, ok := h.entryDate(w, r, user, now)
	if !ok {
		return
	}
	var req SaveJournalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	e, err := h.journal.Save(r.Context(), user, d, journal.Input{
		Title:       req.Title,
		TextContent: req.TextContent,
		DayQuality:  req.DayQuality,
		DayEmoji:    req.DayEmoji,
		PhotoPaths:  req.PhotoPaths,
		VideoPath:   req.VideoPath,
	}, now)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "save journal entry")
		return
	}
	respondJSON(w, http.StatusOK, e)
}

// Delete removes an entry and its media
func (h *JournalHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}
	now := h.now()
	d, ok := h.entryDate(w, r, user, now)
	if !ok {
		return
	}
	if err := h.journal.Delete(r.Context(), user, d, now); err != nil {
		respondServiceError(w, r, h.logger, err, "delete journal entry")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Bookmark sets the bookmark flag
func (h *JournalHandler) Bookmark(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}
	now := h.now()
	d, ok := h.entryDate(w, r, user, now)
	if !ok {
		return
	}
	var req BookmarkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	e, err := h.journal.SetBookmarked(r.Context(), user, d, *req.Bookmarked, now)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "bookmark journal entry")
		return
	}
	respondJSON(w, http.StatusOK, e)
}

// UploadMedia stores multipart "photos" files and an optional "video" file for the day.
// The response carries the stored paths; the client attaches them by saving the entry.
func (h *JournalHandler) UploadMedia(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}
	now := h.now()
	d, ok := h.entryDate(w, r, user, now)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			respondJSONError(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large", fmt.Sprintf("Upload exceeds maximum size of %d bytes", maxBytesErr.Limit))
			return
		}
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid multipart form")
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	var files []multipart.File
	defer func() {
		for _, f := range files {
			_ = f.Close()
		}
	}()
	open := func(fh *multipart.FileHeader) (journal.MediaFile, error) {
		f, err := fh.Open()
		if err != nil {
			return journal.MediaFile{}, err
		}
		files = append(files, f)
		return journal.MediaFile{Filename: fh.Filename, Body: f}, nil
	}

	var photos []journal.MediaFile
	for _, fh := range r.MultipartForm.File["photos"] {
		mf, err := open(fh)
		if err != nil {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", "Failed to read uploaded photo")
			return
		}
		photos = append(photos, mf)
	}
	var video *journal.MediaFile
	switch vids := r.MultipartForm.File["video"]; len(vids) {
	case 0:
	case 1:
		mf, err := open(vids[0])
		if err != nil {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", "Failed to read uploaded video")
			return
		}
		video = &mf
	default:
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Only one video per entry")
		return
	}

	upload, err := h.journal.UploadMedia(r.Context(), user, d, photos, video, now)
	if err != nil {
		respondServiceError(w, r, h.logger, err, "upload journal media")
		return
	}
	respondJSON(w, http.StatusCreated, upload)
}
