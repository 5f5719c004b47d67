package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"bilinote/internal/httputil"
)

// HealthHandler reports liveness and storage reachability
type HealthHandler struct {
	ping   func(ctx context.Context) error
	logger *slog.Logger
}

// NewHealthHandler creates a health handler. ping checks the database.
func NewHealthHandler(ping func(ctx context.Context) error, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{ping: ping, logger: logger}
}

// HealthCheck handles health check requests
// GET /health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.ping(ctx); err != nil {
		h.logger.Warn("health check failed", "error", err)
		httputil.RespondError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
