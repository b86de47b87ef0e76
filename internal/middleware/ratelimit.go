package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/okhabit/okhabit/internal/models"
	"github.com/okhabit/okhabit/internal/request"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	stdlibmw "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"
)

// DefaultRatelimitRate applies until a rate is stored.
const DefaultRatelimitRate = "10-S"

// RatelimitSource reads and seeds the stored rate.
type RatelimitSource interface {
	Get(ctx context.Context) (*models.RatelimitConfig, error)
	Set(ctx context.Context, c *models.RatelimitConfig) error
}

// NewRedisClient parses redisURL and pings the server.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// RateLimitReloader limits requests per client IP with ulule/limiter on Redis, re-reading
// the rate from the database periodically.
type RateLimitReloader struct {
	reloadable
	store       limiter.Store
	source      RatelimitSource
	defaultRate string
	log         *zap.Logger
}

// NewRateLimitReloader creates the limiter. store is usually a Redis store; see NewRedisStore.
func NewRateLimitReloader(store limiter.Store, source RatelimitSource, defaultRate string, log *zap.Logger, reloadInterval time.Duration) *RateLimitReloader {
	if defaultRate == "" {
		defaultRate = DefaultRatelimitRate
	}
	rl := &RateLimitReloader{
		store:       store,
		source:      source,
		defaultRate: defaultRate,
		log:         log,
	}
	rl.reloadable.build = rl.build
	rl.reloadable.interval = reloadInterval
	return rl
}

// NewRedisStore creates the shared limiter store.
func NewRedisStore(client *redis.Client) (limiter.Store, error) {
	store, err := redisstore.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: "okhabit_ratelimit"})
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit store: %w", err)
	}
	return store, nil
}

// Middleware returns the wrapping middleware. It loads the rate once immediately.
func (rl *RateLimitReloader) Middleware() func(http.Handler) http.Handler {
	return rl.wrap
}

// Start runs the reload loop until ctx is cancelled. Call after Middleware() is applied.
func (rl *RateLimitReloader) Start(ctx context.Context) {
	rl.run(ctx)
}

// rate resolves the stored rate, seeding the default when none is stored.
func (rl *RateLimitReloader) rate(ctx context.Context) (limiter.Rate, error) {
	rateStr := rl.defaultRate
	cfg, err := rl.source.Get(ctx)
	switch {
	case err != nil:
		rl.log.Warn("failed_to_load_ratelimit_config_from_db_using_default",
			zap.Error(err),
			zap.String("default_rate", rl.defaultRate),
		)
	case cfg != nil && cfg.Rate != "":
		rateStr = cfg.Rate
	default:
		if err := rl.source.Set(ctx, &models.RatelimitConfig{Rate: rl.defaultRate}); err != nil {
			rl.log.Error("failed_to_save_default_ratelimit_config", zap.Error(err))
		}
	}

	rate, err := limiter.NewRateFromFormatted(rateStr)
	if err == nil {
		return rate, nil
	}
	rl.log.Error("failed_to_parse_rate_limit_using_default",
		zap.Error(err),
		zap.String("rate_str", rateStr),
	)
	return limiter.NewRateFromFormatted(rl.defaultRate)
}

func (rl *RateLimitReloader) build(ctx context.Context, next http.Handler) http.Handler {
	rate, err := rl.rate(ctx)
	if err != nil {
		rl.log.Error("failed_to_parse_default_rate_limit", zap.Error(err))
		return nil
	}
	mw := stdlibmw.NewMiddleware(limiter.New(rl.store, rate),
		stdlibmw.WithKeyGetter(request.ClientIP),
		stdlibmw.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, r, http.StatusTooManyRequests, "Too Many Requests", "Rate limit exceeded")
		}),
	)
	return mw.Handler(next)
}
