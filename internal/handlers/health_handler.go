package handlers

import (
	"context"
	"net/http"
	"time"

	"coursegate/internal/logger"
)

// Pinger checks a dependency is reachable
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler reports liveness and database reachability
type HealthHandler struct {
	db      Pinger
	version string
	log     *logger.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db Pinger, version string, log *logger.Logger) *HealthHandler {
	return &HealthHandler{db: db, version: version, log: log.With("handler", "health")}
}

// Health pings the database with a short deadline
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		h.log.Error("health check failed", "error", err)
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "version": h.version})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": h.version})
}
