package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/socialnet/backend/internal/logging"
)

const healthCheckTimeout = 2 * time.Second

// HealthHandler reports whether the service can reach its account store.
type HealthHandler struct {
	Store Pinger
}

// Handle implements GET /healthz.
func (h HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if h.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := h.Store.Ping(ctx); err != nil {
			logging.FromContext(r.Context()).Warn("account store unreachable", slog.Any("error", err))
			respondJSON(r.Context(), w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}

	respondJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}
