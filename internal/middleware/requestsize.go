package middleware

import (
	"mime"
	"net/http"
)

// DefaultMaxRequestSize is the default maximum JSON body size (1MB)
const DefaultMaxRequestSize int64 = 1 << 20

// MaxRequestSize caps request bodies: multipart uploads at uploadBytes, everything else at jsonBytes.
func MaxRequestSize(jsonBytes, uploadBytes int64) func(http.Handler) http.Handler {
	if jsonBytes <= 0 {
		jsonBytes = DefaultMaxRequestSize
	}
	if uploadBytes < jsonBytes {
		uploadBytes = jsonBytes
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limit := jsonBytes
			if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err == nil && mt == "multipart/form-data" {
				limit = uploadBytes
			}

			if r.ContentLength > limit {
				writeError(w, r, http.StatusRequestEntityTooLarge, "Request Entity Too Large", "Request body is too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
