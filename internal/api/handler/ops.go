package handler

import (
	"net/http"
	"time"

	"github.com/bahnmcp/bahnmcp/internal/api/models"
	"github.com/bahnmcp/bahnmcp/internal/api/response"
	"github.com/bahnmcp/bahnmcp/internal/cache"
	"github.com/bahnmcp/bahnmcp/internal/provider/resilience"
)

// CacheStatter reports cache counters.
type CacheStatter interface {
	Stats() cache.Stats
}

// PrewarmStatter reports background prewarm counters.
type PrewarmStatter interface {
	MetricsSnapshot() map[string]any
}

// OpsConfig holds configuration for the OpsHandler.
type OpsConfig struct {
	Version   string
	BuildTime string

	// Registry supplies upstream provider health (optional).
	Registry *resilience.Registry

	// Cache supplies response cache counters (optional).
	Cache CacheStatter

	// Prewarm supplies board prewarm counters (optional).
	Prewarm PrewarmStatter
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	registry  *resilience.Registry
	cache     CacheStatter
	prewarm   PrewarmStatter
	now       func() time.Time
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	return &OpsHandler{
		version:   cfg.Version,
		buildTime: cfg.BuildTime,
		registry:  cfg.Registry,
		cache:     cfg.Cache,
		prewarm:   cfg.Prewarm,
		now:       time.Now,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
		Details: map[string]any{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	})
}

// ReadinessCheck handles GET /v1/ops/ready - readiness check.
// The service holds no connections of its own, so it is ready once the
// upstream providers are registered.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if h.registry != nil && h.registry.ProviderCount() == 0 {
		response.JSON(w, r, http.StatusServiceUnavailable, models.Health{
			Status:  models.HealthStatusFail,
			Time:    models.Timestamp(h.now()),
			Details: map[string]any{"reason": "no upstream providers registered"},
		})
		return
	}

	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
	})
}

// SystemStatus handles GET /v1/ops/status - provider health and cache counters.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:    models.HealthStatusOK,
		Time:      models.Timestamp(h.now()),
		Providers: []models.ProviderStatus{},
	}

	if h.registry != nil {
		for _, ph := range h.registry.GetAllHealth() {
			ps := providerStatus(ph)
			status.Providers = append(status.Providers, ps)
			status.Status = worst(status.Status, ps.Status)
		}
	}

	if h.cache != nil {
		stats := h.cache.Stats()
		status.Cache = models.CacheStatus{
			Entries: stats.Entries,
			Hits:    stats.Hits,
			Misses:  stats.Misses,
		}
	}

	if h.prewarm != nil {
		status.Prewarm = h.prewarm.MetricsSnapshot()
	}

	response.JSON(w, r, http.StatusOK, status)
}

func providerStatus(ph *resilience.ProviderHealth) models.ProviderStatus {
	ps := models.ProviderStatus{
		Provider:            ph.Name,
		CircuitState:        ph.CircuitState.String(),
		ConsecutiveFailures: ph.Counts.ConsecutiveFailures,
		TotalRequests:       uint64(ph.Counts.Requests),
		TotalFailures:       uint64(ph.Counts.TotalFailures),
	}

	switch ph.Status() {
	case resilience.StatusUnhealthy:
		ps.Status = models.HealthStatusFail
	case resilience.StatusDegraded:
		ps.Status = models.HealthStatusDegraded
	default:
		ps.Status = models.HealthStatusOK
	}

	if ph.LastSuccessAt != nil {
		ts := models.Timestamp(*ph.LastSuccessAt)
		ps.LastSuccessAt = &ts
	}
	if ph.LastFailureAt != nil {
		ts := models.Timestamp(*ph.LastFailureAt)
		ps.LastFailureAt = &ts
	}
	if ph.LastError != "" {
		msg := ph.LastError
		ps.LastError = &msg
	}

	return ps
}

// worst returns the more severe of two statuses. A failing provider only
// degrades the service as a whole.
func worst(current, provider models.HealthStatus) models.HealthStatus {
	if provider == models.HealthStatusOK || current == models.HealthStatusDegraded {
		return current
	}
	return models.HealthStatusDegraded
}
