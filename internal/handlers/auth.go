package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/okhabit/okhabit/internal/database"
	"github.com/okhabit/okhabit/internal/services/oidc"
	"go.uber.org/zap"
)

// LoginProvider exposes the identity provider settings the login flow needs.
type LoginProvider interface {
	GetLoginConfig(ctx context.Context) (*oidc.LoginConfig, error)
	Client(ctx context.Context) (*oidc.Client, error)
}

// AuthHandler handles authentication-related requests
type AuthHandler struct {
	provider LoginProvider
	logger   *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(provider LoginProvider, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{provider: provider, logger: logger}
}

// RegisterPublicRoutes registers the login routes. The router should already have the /api/v1/auth/oidc prefix.
func (h *AuthHandler) RegisterPublicRoutes(r *mux.Router) {
	r.HandleFunc("/login", h.GetOIDCLogin).Methods("GET")
	r.HandleFunc("/token", h.ExchangeToken).Methods("POST")
}

// RegisterRoutes registers authenticated routes. The router should already have the /api/v1/auth prefix.
func (h *AuthHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/me", h.GetMe).Methods("GET")
}

// TokenRequest carries the authorization code from the provider redirect
type TokenRequest struct {
	Code         string `json:"code" validate:"required,max=2048"`
	CodeVerifier string `json:"code_verifier,omitempty" validate:"omitempty,min=43,max=128"`
}

// GetOIDCLogin returns OIDC configuration for frontend
func (h *AuthHandler) GetOIDCLogin(w http.ResponseWriter, r *http.Request) {
	loginConfig, err := h.provider.GetLoginConfig(r.Context())
	if err != nil {
		h.respondProviderError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, loginConfig)
}

// ExchangeToken exchanges an authorization code (with its PKCE verifier) for tokens
func (h *AuthHandler) ExchangeToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	client, err := h.provider.Client(r.Context())
	if err != nil {
		h.respondProviderError(w, r, err)
		return
	}
	tokens, err := client.ExchangeCode(r.Context(), req.Code, req.CodeVerifier)
	if err != nil {
		h.logger.Warn("oidc_code_exchange_failed", zap.Error(err))
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "Authorization code was rejected")
		return
	}
	respondJSON(w, http.StatusOK, tokens)
}

func (h *AuthHandler) respondProviderError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, database.ErrNotFound) {
		respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "Login is not configured")
		return
	}
	respondServiceError(w, r, h.logger, err, "get OIDC configuration")
}

// GetMe returns current user information
func (h *AuthHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}
	respondJSON(w, http.StatusOK, user)
}
