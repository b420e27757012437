package maintenance

import (
	"encoding/json"
	"net/http"
	"strings"

	"jobtrack/internal/auth"
	"jobtrack/internal/observability"
)

// SweepHandler exposes a cron-gated endpoint that forces a session store
// sweep, independent of the lazy in-request cleanup.
type SweepHandler struct {
	store      auth.SessionStore
	logger     *observability.Logger
	cronSecret string
}

func NewSweepHandler(store auth.SessionStore, logger *observability.Logger, cronSecret string) *SweepHandler {
	return &SweepHandler{
		store:      store,
		logger:     logger,
		cronSecret: strings.TrimSpace(cronSecret),
	}
}

func (h *SweepHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != h.cronSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	if err := h.store.Sweep(r.Context()); err != nil {
		h.logger.Error("session_sweep_failed", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "sweep failed"})
		return
	}

	h.logger.Info("session_sweep_completed", nil)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
