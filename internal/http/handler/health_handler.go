package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/maklermate/maklermate-api/internal/store"
	"go.uber.org/zap"
)

const healthCheckKey = "maklermate_health"

// HealthHandler answers liveness and readiness checks
type HealthHandler struct {
	backend     store.Backend
	backendName string
	generator   bool
	logger      *zap.Logger
}

func NewHealthHandler(backend store.Backend, backendName string, generatorConfigured bool, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		backend:     backend,
		backendName: backendName,
		generator:   generatorConfigured,
		logger:      logger,
	}
}

// Live reports that the process is up
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// Ready reads from the store backend
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]interface{}{
		"textgen": map[string]interface{}{"configured": h.generator},
	}

	if _, _, err := h.backend.Get(ctx, healthCheckKey); err != nil {
		h.logger.Error("store health check failed", zap.Error(err))
		checks["store"] = map[string]interface{}{
			"status":  "unhealthy",
			"backend": h.backendName,
			"error":   err.Error(),
		}
		respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "unhealthy",
			"checks": checks,
		})
		return
	}

	checks["store"] = map[string]interface{}{
		"status":  "healthy",
		"backend": h.backendName,
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"checks": checks,
	})
}
