package handlers

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"path"

	"github.com/gorilla/mux"
	"github.com/okhabit/okhabit/internal/blob"
	logpkg "github.com/okhabit/okhabit/internal/logger"
	"go.uber.org/zap"
)

// TokenVerifier checks a signed media token for bucket/path.
type TokenVerifier interface {
	Verify(token, bucket, path string) error
}

// MediaHandler streams stored blobs to holders of a valid signed URL. It needs no bearer token.
type MediaHandler struct {
	blobs  blob.Store
	tokens TokenVerifier
	logger *zap.Logger
}

// NewMediaHandler creates a new media handler
func NewMediaHandler(blobs blob.Store, tokens TokenVerifier, logger *zap.Logger) *MediaHandler {
	return &MediaHandler{blobs: blobs, tokens: tokens, logger: logger}
}

// RegisterRoutes registers GET /media/{bucket}/{path}.
func (h *MediaHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/media/{bucket}/{path:.+}", h.Serve).Methods("GET")
}

// Serve verifies ?token= and streams the blob.
func (h *MediaHandler) Serve(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	bucket, p := vars["bucket"], vars["path"]

	if err := h.tokens.Verify(r.URL.Query().Get("token"), bucket, p); err != nil {
		h.logger.Debug("media_token_rejected",
			zap.String("path", logpkg.SanitizePath(p)),
			zap.String("error", logpkg.SanitizeError(err)),
		)
		respondJSONError(w, http.StatusForbidden, "Forbidden", "Invalid or expired media link")
		return
	}

	rc, err := h.blobs.Open(r.Context(), bucket, p)
	switch {
	case errors.Is(err, blob.ErrNotFound):
		respondJSONError(w, http.StatusNotFound, "Not Found", "Media not found")
		return
	case errors.Is(err, blob.ErrInvalidPath):
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid media path")
		return
	case err != nil:
		respondServiceError(w, r, h.logger, err, "open media")
		return
	}
	defer func() { _ = rc.Close() }()

	ct := mime.TypeByExtension(path.Ext(p))
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Warn("media_stream_interrupted", zap.String("path", logpkg.SanitizePath(p)), zap.Error(err))
	}
}
