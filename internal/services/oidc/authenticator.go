package oidc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/okhabit/okhabit/internal/database"
	"github.com/okhabit/okhabit/internal/logger"
	"github.com/okhabit/okhabit/internal/models"
	"go.uber.org/zap"
)

// Authenticator turns a bearer token into the local user, creating it on first sight.
type Authenticator struct {
	provider *Provider
	keys     KeySource
	users    database.UserRepositoryInterface
	logger   *zap.Logger
}

// NewAuthenticator wires token verification to the user table.
func NewAuthenticator(provider *Provider, keys KeySource, users database.UserRepositoryInterface, logger *zap.Logger) *Authenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authenticator{provider: provider, keys: keys, users: users, logger: logger}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: expected Bearer token", ErrInvalidToken)
	}
	return strings.TrimSpace(token), nil
}

// Authenticate verifies token and returns the matching user.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*models.User, error) {
	config, err := a.provider.GetConfig(ctx)
	if err != nil {
		return nil, err
	}
	jwksURL := config.DefaultJWKSURL()
	if config.JWKSUrl != nil && *config.JWKSUrl != "" {
		jwksURL = *config.JWKSUrl
	}

	claims, err := NewVerifier(a.keys, config.Issuer).Verify(ctx, token, jwksURL)
	if err != nil {
		return nil, err
	}
	return a.upsertUser(ctx, claims)
}

// upsertUser finds the user for claims.Sub, creating it or refreshing email and name.
func (a *Authenticator) upsertUser(ctx context.Context, claims *models.JWTClaims) (*models.User, error) {
	user, err := a.users.GetByProviderID(ctx, claims.Sub)
	if errors.Is(err, database.ErrNotFound) {
		sub := claims.Sub
		user = &models.User{
			ID:            uuid.New(),
			Email:         claims.Email,
			ProviderID:    &sub,
			EmailVerified: claims.EmailVerified,
		}
		if claims.Name != "" {
			name := claims.Name
			user.Name = &name
		}
		if err := a.users.Create(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		a.logger.Info("user_created", zap.String("user_id", logger.SanitizeUserID(user.ID.String())))
		return user, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	changed := false
	if claims.Email != "" && user.Email != claims.Email {
		user.Email = claims.Email
		changed = true
	}
	if claims.Name != "" && (user.Name == nil || *user.Name != claims.Name) {
		name := claims.Name
		user.Name = &name
		changed = true
	}
	if changed {
		if err := a.users.Update(ctx, user); err != nil {
			// Stale profile fields are not worth failing the request.
			a.logger.Warn("failed_to_update_user_profile",
				zap.String("user_id", logger.SanitizeUserID(user.ID.String())),
				zap.Error(err),
			)
		}
	}
	return user, nil
}
