package middleware

import (
	"context"
	"errors"
	"net/http"

	logpkg "github.com/okhabit/okhabit/internal/logger"
	"github.com/okhabit/okhabit/internal/models"
	"github.com/okhabit/okhabit/internal/request"
	"github.com/okhabit/okhabit/internal/services/oidc"
	"go.uber.org/zap"
)

// Authenticator resolves a bearer token to a user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

// Auth requires a valid bearer token and puts the user into the request context.
func Auth(auth Authenticator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := oidc.BearerToken(r.Header.Get("Authorization"))
			if err != nil {
				writeError(w, r, http.StatusUnauthorized, "Unauthorized", "Missing or malformed Authorization header")
				return
			}

			user, err := auth.Authenticate(r.Context(), token)
			switch {
			case err == nil:
			case errors.Is(err, oidc.ErrInvalidToken):
				logger.Debug("token_rejected", zap.String("error", logpkg.SanitizeError(err)))
				writeError(w, r, http.StatusUnauthorized, "Unauthorized", "Invalid or expired token")
				return
			default:
				logger.Error("authentication_failed",
					zap.String("path", logpkg.SanitizePath(r.URL.Path)),
					zap.Error(err),
				)
				writeError(w, r, http.StatusInternalServerError, "Internal Server Error", "Authentication is unavailable")
				return
			}

			next.ServeHTTP(w, r.WithContext(request.WithUser(r.Context(), user)))
		})
	}
}
