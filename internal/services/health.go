package services

import (
	"context"
	"runtime"
	"time"
)

// HealthService reports process liveness and basic runtime state.
type HealthService struct {
	store     *SessionStore
	version   string
	startedAt time.Time
}

// NewHealthService creates a health service bound to the session store.
func NewHealthService(store *SessionStore, version string) *HealthService {
	return &HealthService{
		store:     store,
		version:   version,
		startedAt: time.Now(),
	}
}

// HealthCheck returns the overall health summary.
func (h *HealthService) HealthCheck(ctx context.Context) map[string]interface{} {
	return map[string]interface{}{
		"status":          "healthy",
		"version":         h.version,
		"uptime":          time.Since(h.startedAt).String(),
		"active_sessions": h.store.Len(),
		"goroutines":      runtime.NumGoroutine(),
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	}
}

// ReadinessCheck reports whether the service can accept work.
func (h *HealthService) ReadinessCheck(ctx context.Context) map[string]interface{} {
	return map[string]interface{}{
		"status": "ready",
	}
}

// LivenessCheck reports whether the process is alive.
func (h *HealthService) LivenessCheck(ctx context.Context) map[string]interface{} {
	return map[string]interface{}{
		"status": "alive",
	}
}

// Version returns build version information.
func (h *HealthService) Version() map[string]interface{} {
	return map[string]interface{}{
		"version": h.version,
	}
}
