package handler

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/mstgnz/paygate/infra/response"
	"github.com/mstgnz/paygate/provider"
)

// StatusSource is satisfied by *provider.Manager
type StatusSource interface {
	Statuses() []provider.GatewayStatus
	CacheStats() provider.CacheStats
}

// HealthHandler handles health check requests
type HealthHandler struct {
	source      StatusSource
	environment string
	startTime   time.Time
}

// HealthStatus represents overall service health
type HealthStatus struct {
	Status      string                 `json:"status"`
	Version     string                 `json:"version"`
	Timestamp   time.Time              `json:"timestamp"`
	Uptime      string                 `json:"uptime"`
	Environment string                 `json:"environment"`
	Available   int                    `json:"available"`
	Gateways    []GatewayHealth        `json:"gateways"`
	Idempotency provider.CacheStats    `json:"idempotency"`
	System      map[string]any `json:"system"`
}

// GatewayHealth is one gateway as the prober last saw it
type GatewayHealth struct {
	Name          string    `json:"name"`
	Priority      int       `json:"priority"`
	Enabled       bool      `json:"enabled"`
	Available     bool      `json:"available"`
	LastCheckedAt time.Time `json:"lastCheckedAt"`
	LastError     string    `json:"lastError,omitempty"`
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(source StatusSource, environment string) *HealthHandler {
	return &HealthHandler{
		source:      source,
		environment: environment,
		startTime:   time.Now(),
	}
}

// CheckHealth answers 200 while at least one gateway can take payments and
// 503 otherwise. It reads cached availability only and never calls a provider.
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	statuses := h.source.Statuses()

	health := HealthStatus{
		Version:     "1.0.0",
		Timestamp:   time.Now().UTC(),
		Uptime:      time.Since(h.startTime).Round(time.Second).String(),
		Environment: h.environment,
		Gateways:    make([]GatewayHealth, 0, len(statuses)),
		Idempotency: h.source.CacheStats(),
		System:      systemStats(),
	}

	for _, s := range statuses {
		available := s.Descriptor.Enabled && s.Availability.Available
		if available {
			health.Available++
		}
		health.Gateways = append(health.Gateways, GatewayHealth{
			Name:          s.Descriptor.Name,
			Priority:      s.Descriptor.DisplayPriority,
			Enabled:       s.Descriptor.Enabled,
			Available:     available,
			LastCheckedAt: s.Availability.LastCheckedAt,
			LastError:     s.Availability.LastError,
		})
	}

	statusCode := http.StatusOK
	switch {
	case health.Available == 0:
		health.Status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	case health.Available < len(health.Gateways):
		health.Status = "degraded"
	default:
		health.Status = "healthy"
	}

	response.WriteJSON(w, statusCode, response.Response{
		Code:    statusCode,
		Success: statusCode == http.StatusOK,
		Message: fmt.Sprintf("Service is %s", health.Status),
		Data:    health,
	})
}

func systemStats() map[string]any {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return map[string]any{
		"goroutines": runtime.NumGoroutine(),
		"alloc":      formatBytes(mem.Alloc),
		"sys":        formatBytes(mem.Sys),
		"gc_runs":    mem.NumGC,
	}
}

func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
