package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/okhabit/okhabit/internal/models"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// CorsSource loads the stored CORS policy. A nil config means none is stored.
type CorsSource interface {
	Get(ctx context.Context) (*models.CorsConfig, error)
}

// CORSReloader applies rs/cors with a policy read from the database and refreshed periodically.
type CORSReloader struct {
	reloadable
	source   CorsSource
	fallback string
	log      *zap.Logger
}

// NewCORSReloader falls back to frontendURLFallback (FRONTEND_URL) when nothing is stored.
func NewCORSReloader(source CorsSource, frontendURLFallback string, log *zap.Logger, reloadInterval time.Duration) *CORSReloader {
	c := &CORSReloader{
		source:   source,
		fallback: strings.TrimSpace(frontendURLFallback),
		log:      log,
	}
	c.reloadable.build = c.build
	c.reloadable.interval = reloadInterval
	return c
}

// Middleware returns the wrapping middleware. It loads the policy once immediately.
func (c *CORSReloader) Middleware() func(http.Handler) http.Handler {
	return c.wrap
}

// Start runs the reload loop until ctx is cancelled. Call after Middleware() is applied.
func (c *CORSReloader) Start(ctx context.Context) {
	c.run(ctx)
}

// options turns the stored policy (or the fallback) into rs/cors options.
func (c *CORSReloader) options(cfg *models.CorsConfig) cors.Options {
	origins := models.SplitOrigins(c.fallback)
	allowCreds, maxAge := true, 86400
	if cfg != nil {
		origins = cfg.Origins()
		allowCreds, maxAge = cfg.AllowCredentials, cfg.MaxAge
	}
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	return cors.Options{
		AllowedOrigins:   origins,
		AllowCredentials: allowCreds,
		MaxAge:           maxAge,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", RequestIDHeader},
		ExposedHeaders:   []string{RequestIDHeader},
	}
}

func (c *CORSReloader) build(ctx context.Context, next http.Handler) http.Handler {
	cfg, err := c.source.Get(ctx)
	if err != nil {
		c.log.Warn("failed_to_load_cors_config_using_fallback", zap.Error(err))
		cfg = nil
	}
	return cors.New(c.options(cfg)).Handler(next)
}
