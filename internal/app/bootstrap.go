package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"jobtrack/internal/auth"
	"jobtrack/internal/db"
	"jobtrack/internal/jobapplication"
	"jobtrack/internal/maintenance"
	"jobtrack/internal/observability"
)

type Options struct {
	LoadDotEnv    bool
	RunMigrations bool
}

type Runtime struct {
	Handler http.Handler
	Close   func() error
}

// Build wires the whole application from environment configuration. A missing
// JWT_SECRET or DATABASE_URL makes it fail instead of falling back to a weak
// default.
func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	logger := observability.NewLogger()

	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	jwtSecret, err := mustEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}

	if err := observability.InitSentry(os.Getenv("SENTRY_DSN"), envOrDefault("APP_ENV", "development")); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(envIntOrDefault("DB_MAX_OPEN_CONNS", 10))
	database.SetMaxIdleConns(envIntOrDefault("DB_MAX_IDLE_CONNS", 5))
	database.SetConnMaxLifetime(envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30))
	database.SetConnMaxIdleTime(envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10))

	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if options.RunMigrations {
		if err := db.RunMigrations(database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	issuer, err := auth.NewIssuer(
		jwtSecret,
		envOrDefault("JWT_ISSUER", "jobtracker"),
		envOrDefault("JWT_AUDIENCE", "jobtracker-api"),
		envMinutesOrDefault("ACCESS_TOKEN_TTL_MINUTES", 30),
	)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("init token issuer: %w", err)
	}

	sessionStore, err := auth.NewSessionStore(auth.StoreConfig{
		Driver:        envOrDefault("SESSION_STORE_DRIVER", auth.DriverMemory),
		SweepInterval: envMinutesOrDefault("REVOKED_SWEEP_INTERVAL_MINUTES", 60),
		Redis:         redisConfigFromEnv(),
	})
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("init session store: %w", err)
	}

	authRepo := auth.NewRepository(database)
	authService := auth.NewService(authRepo, sessionStore, issuer)
	authService.WithTokenTTLs(
		envHoursOrDefault("REFRESH_TOKEN_TTL_HOURS", 720),
		envHoursOrDefault("REVOKED_TOKEN_RETENTION_HOURS", 168),
	)
	authHandler := auth.NewHandler(authService)

	authLimiter := auth.NewRateLimiter(
		envIntOrDefault("AUTH_RATE_LIMIT_MAX", 10),
		envSecondsOrDefault("AUTH_RATE_LIMIT_WINDOW_SECONDS", 60),
	)

	applicationRepo := jobapplication.NewRepository(database)
	applicationHandler := jobapplication.NewHandler(applicationRepo)

	sweepHandler := maintenance.NewSweepHandler(sessionStore, logger, os.Getenv("CRON_SECRET"))

	limited := func(h http.HandlerFunc) http.Handler {
		return authLimiter.Middleware(h)
	}
	guarded := func(h http.HandlerFunc) http.Handler {
		return auth.Middleware(issuer, authService, h)
	}

	mux := http.NewServeMux()
	mux.Handle("POST /auth/register", limited(authHandler.Register))
	mux.Handle("POST /auth/login", limited(authHandler.Login))
	mux.Handle("POST /auth/refresh", limited(authHandler.Refresh))
	mux.Handle("POST /auth/logout", limited(authHandler.Logout))

	mux.Handle("GET /job-applications", guarded(applicationHandler.List))
	mux.Handle("POST /job-applications", guarded(applicationHandler.Create))
	mux.Handle("GET /job-applications/{id}", guarded(applicationHandler.Get))
	mux.Handle("PUT /job-applications/{id}", guarded(applicationHandler.Update))
	mux.Handle("DELETE /job-applications/{id}", guarded(applicationHandler.Delete))
	mux.Handle("POST /job-applications/{id}/notes", guarded(applicationHandler.AddNote))
	mux.Handle("DELETE /job-applications/{id}/notes/{noteId}", guarded(applicationHandler.DeleteNote))

	mux.HandleFunc("GET /internal/maintenance/cleanup", sweepHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", sweepHandler.Handle)
	mux.HandleFunc("GET /health", healthHandler(database))

	handler := observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, mux))

	return &Runtime{
		Handler: handler,
		Close: func() error {
			observability.FlushSentry()
			_ = sessionStore.Close(context.Background())
			return database.Close()
		},
	}, nil
}

func healthHandler(database *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func redisConfigFromEnv() *auth.RedisConfig {
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil
	}

	return &auth.RedisConfig{
		Addr:     addr,
		Username: os.Getenv("REDIS_USERNAME"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       envIntOrDefault("REDIS_DB", 0),
		Prefix:   os.Getenv("REDIS_PREFIX"),
	}
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func envHoursOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Hour
}

func envSecondsOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Second
}

func EnvBoolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
