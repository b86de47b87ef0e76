package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/okhabit/okhabit/internal/models"
	"github.com/okhabit/okhabit/internal/request"
	"github.com/okhabit/okhabit/internal/services/oidc"
	"go.uber.org/zap"
)

type mockAuthenticator struct {
	authenticateFunc func(ctx context.Context, token string) (*models.User, error)
}

func (m *mockAuthenticator) Authenticate(ctx context.Context, token string) (*models.User, error) {
	return m.authenticateFunc(ctx, token)
}

func TestAuth(t *testing.T) {
	t.Parallel()

	user := &models.User{ID: uuid.New()}
	auth := &mockAuthenticator{
		authenticateFunc: func(_ context.Context, token string) (*models.User, error) {
			switch token {
			case "good":
				return user, nil
			case "broken":
				return nil, errors.New("jwks unreachable")
			default:
				return nil, oidc.ErrInvalidToken
			}
		},
	}

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{name: "valid token", header: "Bearer good", wantStatus: http.StatusOK},
		{name: "missing header", header: "", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic good", wantStatus: http.StatusUnauthorized},
		{name: "invalid token", header: "Bearer bad", wantStatus: http.StatusUnauthorized},
		{name: "backend failure", header: "Bearer broken", wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var seen *models.User
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = request.UserFromContext(r)
			})

			req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			Auth(auth, zap.NewNop())(next).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if tt.wantStatus == http.StatusOK && seen != user {
				t.Error("Expected user in request context")
			}
			if tt.wantStatus != http.StatusOK && seen != nil {
				t.Error("Next handler should not run")
			}
		})
	}
}
