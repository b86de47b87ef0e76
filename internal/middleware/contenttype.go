package middleware

import (
	"mime"
	"net/http"
)

// ContentType requires JSON bodies on writes. Multipart is accepted for uploads, and
// writes without a body (POST /days/{date}/wake) need no Content-Type.
func ContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPatch, http.MethodPut:
		default:
			next.ServeHTTP(w, r)
			return
		}

		raw := r.Header.Get("Content-Type")
		if raw == "" {
			if r.ContentLength == 0 {
				next.ServeHTTP(w, r)
				return
			}
			writeError(w, r, http.StatusBadRequest, "Bad Request", "Content-Type header is required")
			return
		}

		mediaType, _, err := mime.ParseMediaType(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "Bad Request", "Malformed Content-Type header")
			return
		}
		if mediaType != "application/json" && mediaType != "multipart/form-data" {
			writeError(w, r, http.StatusUnsupportedMediaType, "Unsupported Media Type", "Content-Type must be application/json or multipart/form-data")
			return
		}
		next.ServeHTTP(w, r)
	})
}
