package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/okhabit/okhabit/internal/blob"
	"github.com/okhabit/okhabit/internal/config"
	"github.com/okhabit/okhabit/internal/database"
	"github.com/okhabit/okhabit/internal/handlers"
	"github.com/okhabit/okhabit/internal/logger"
	"github.com/okhabit/okhabit/internal/middleware"
	"github.com/okhabit/okhabit/internal/queue"
	"github.com/okhabit/okhabit/internal/services/journal"
	"github.com/okhabit/okhabit/internal/services/oidc"
	"github.com/okhabit/okhabit/internal/services/tracker"
	"github.com/okhabit/okhabit/internal/telemetry"
	"github.com/okhabit/okhabit/internal/workers"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	migrateFlag := flag.Bool("migrate", true, "Apply pending database migrations on startup")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.New(debugMode, cfg.LogFormat, cfg.LogFile)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync(zapLogger) }()

	zapLogger.Info("starting_server",
		zap.String("version", version),
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("frontend_url", cfg.FrontendURL),
		zap.String("default_timezone", cfg.DefaultTimezone.String()),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracingEnabled := false
	if cfg.OTELEnabled {
		if cfg.OTELEndpoint == "" {
			zapLogger.Warn("otel_enabled_but_endpoint_not_configured")
		} else {
			tp, err := telemetry.InitTracer(ctx, telemetry.Config{
				ServiceName:    telemetry.ServiceAPI,
				ServiceVersion: version,
				Endpoint:       cfg.OTELEndpoint,
				SampleRatio:    cfg.OTELSampleRatio,
			})
			if err != nil {
				zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
			} else {
				tracingEnabled = true
				zapLogger.Info("otel_tracer_initialized", zap.String("endpoint", cfg.OTELEndpoint))
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
						zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
					}
				}()
			}
		}
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_database")

	if *migrateFlag {
		applied, err := database.Migrate(ctx, db)
		if err != nil {
			zapLogger.Fatal("failed_to_apply_migrations", zap.Ints("applied", applied), zap.Error(err))
		}
		if len(applied) > 0 {
			zapLogger.Info("migrations_applied", zap.Ints("versions", applied))
		}
	}

	redisClient, err := middleware.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_redis", zap.Error(err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_redis")

	jobQueue, err := queue.ConnectRabbitMQ(ctx, cfg.RabbitMQURL, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_rabbitmq", zap.Error(err))
	}
	defer func() {
		if err := jobQueue.Close(); err != nil {
			zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
		}
	}()

	blobs, err := blob.NewFileStore(cfg.BlobDir)
	if err != nil {
		zapLogger.Fatal("failed_to_open_blob_store", zap.Error(err))
	}
	signer, err := blob.NewSigner([]byte(cfg.MediaSigningKey), cfg.MediaURLTTL, cfg.BaseURL)
	if err != nil {
		zapLogger.Fatal("failed_to_create_media_signer", zap.Error(err))
	}

	store := database.NewStore(db)
	repos := store.Repos()
	corsConfigRepo := database.NewCorsConfigRepository(db)
	ratelimitConfigRepo := database.NewRatelimitConfigRepository(db)

	trackerSvc := tracker.NewService(store, cfg.DefaultTimezone, zapLogger)
	journalSvc := journal.NewService(store, blobs, signer, jobQueue, cfg.DefaultTimezone, zapLogger)

	oidcProvider := oidc.NewProvider(database.NewOIDCConfigRepository(db), cfg.OIDCProvider)
	authenticator := oidc.NewAuthenticator(oidcProvider, oidc.NewJWKSManager(), repos.Users, zapLogger)

	authHandler := handlers.NewAuthHandler(oidcProvider, zapLogger)
	healthChecker := handlers.NewHealthCheckerWithDeps(db, redisClient, jobQueue)

	limiterStore, err := middleware.NewRedisStore(redisClient)
	if err != nil {
		zapLogger.Fatal("failed_to_create_rate_limit_store", zap.Error(err))
	}
	corsReloader := middleware.NewCORSReloader(corsConfigRepo, cfg.FrontendURL, zapLogger, time.Minute)
	rateLimitReloader := middleware.NewRateLimitReloader(limiterStore, ratelimitConfigRepo, middleware.DefaultRatelimitRate, zapLogger, time.Minute)

	r := mux.NewRouter()

	// gorilla/mux runs middleware in registration order, outermost first.
	if tracingEnabled {
		r.Use(otelmux.Middleware(telemetry.ServiceAPI))
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.ErrorHandler(zapLogger))
	r.Use(middleware.SecurityHeaders(cfg.EnableHSTS))
	r.Use(middleware.Logging(zapLogger))
	r.Use(corsReloader.Middleware())
	r.Use(middleware.Audit(zapLogger))

	r.HandleFunc("/healthz", healthChecker.HealthCheck).Methods("GET")
	r.HandleFunc("/version", handlers.VersionInfo(version)).Methods("GET")
	handlers.NewOpenAPIHandler(filepath.Join("api", "openapi", "openapi.yaml")).RegisterRoutes(r)

	// Media streams can outlast the request timeout; the signed URL is the credential.
	handlers.NewMediaHandler(blobs, signer, zapLogger).RegisterRoutes(r)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.Timeout(middleware.DefaultRequestTimeout))
	api.Use(middleware.ContentType)
	api.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize, cfg.MaxUploadBytes))
	api.Use(rateLimitReloader.Middleware())

	authHandler.RegisterPublicRoutes(api.PathPrefix("/auth/oidc").Subrouter())

	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.Auth(authenticator, zapLogger))
	authHandler.RegisterRoutes(protected.PathPrefix("/auth").Subrouter())
	handlers.NewActivityHandler(trackerSvc, zapLogger).RegisterRoutes(protected)
	handlers.NewDayHandler(trackerSvc, zapLogger).RegisterRoutes(protected)
	handlers.NewTimerHandler(trackerSvc, zapLogger).RegisterRoutes(protected)
	handlers.NewRoutineHandler(cfg.DefaultTimezone).RegisterRoutes(protected)
	handlers.NewJournalHandler(journalSvc, zapLogger).RegisterRoutes(protected)
	handlers.NewUserHandler(repos.Users, zapLogger).RegisterRoutes(protected)

	// Preflight requests; CORS headers are already set by the middleware.
	r.Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	go corsReloader.Start(ctx)
	go rateLimitReloader.Start(ctx)

	dlqGC := queue.NewGarbageCollector(jobQueue, time.Hour, 24*time.Hour, zapLogger)
	go func() {
		if err := dlqGC.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			zapLogger.Error("dlq_garbage_collector_stopped_with_error", zap.Error(err))
		}
	}()

	rollover := workers.NewRolloverScheduler(jobQueue, repos.Days, cfg.RolloverInterval, zapLogger)
	go rollover.Start(ctx)
	zapLogger.Info("started_rollover_scheduler", zap.Duration("interval", cfg.RolloverInterval))

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		zapLogger.Info("server_starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Error("server_failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	zapLogger.Info("server_shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("server_forced_to_shutdown", zap.Error(err))
	}
	zapLogger.Info("server_exited")
}
