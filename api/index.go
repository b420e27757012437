package api

import (
	"encoding/json"
	"net/http"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"

	"jobtrack/internal/app"
	"jobtrack/internal/observability"
)

var (
	initOnce sync.Once
	runtime  *app.Runtime
	initErr  error
)

func buildRuntime() {
	runtime, initErr = app.Build(app.Options{
		LoadDotEnv:    false,
		RunMigrations: app.EnvBoolOrDefault("RUN_MIGRATIONS_ON_STARTUP", false),
	})
	if initErr != nil {
		observability.NewLogger().Error("bootstrap_failed", map[string]any{"error": initErr.Error()})
	}
}

// Handler is the serverless entrypoint. The runtime is built once per
// instance and reused across invocations; a failed bootstrap is reported on
// every request rather than retried.
func Handler(w http.ResponseWriter, r *http.Request) {
	initOnce.Do(buildRuntime)

	if initErr != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "application bootstrap failed"})
		return
	}

	runtime.Handler.ServeHTTP(w, r)
}
