package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/airwatch/airwatch/internal/api/models"
	"github.com/airwatch/airwatch/internal/api/response"
	"github.com/airwatch/airwatch/internal/resilience"
)

// checkTimeout bounds each subsystem check.
const checkTimeout = 2 * time.Second

// Check probes one backing subsystem, such as the database or Redis.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	checks    []Check
	registry  *resilience.Registry
	now       func() time.Time
}

// NewOpsHandler creates a new OpsHandler. registry may be nil.
func NewOpsHandler(version, buildTime string, registry *resilience.Registry, checks ...Check) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		checks:    checks,
		registry:  registry,
		now:       time.Now,
	}
}

// HealthCheck handles GET /api/ops/health - liveness check.
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

// ReadinessCheck handles GET /api/ops/ready - fails with 503 while a subsystem is down.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	subsystems := h.runChecks(r.Context())
	status := models.HealthStatusOK
	code := http.StatusOK
	for _, s := range subsystems {
		if s.Status != models.HealthStatusOK {
			status = models.HealthStatusFail
			code = http.StatusServiceUnavailable
			break
		}
	}
	response.JSON(w, r, code, models.Health{
		Status: status,
		Time:   models.Timestamp(h.now()),
	})
}

// SystemStatus handles GET /api/ops/status - subsystem and provider circuit status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(h.now()),
		Subsystems: h.runChecks(r.Context()),
		Providers:  h.providers(),
	}
	for _, p := range status.Providers {
		if p.Status != models.HealthStatusOK {
			status.Status = models.HealthStatusDegraded
		}
	}
	for _, s := range status.Subsystems {
		if s.Status != models.HealthStatusOK {
			status.Status = models.HealthStatusFail
		}
	}
	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) runChecks(ctx context.Context) []models.SubsystemStatus {
	out := make([]models.SubsystemStatus, 0, len(h.checks))
	for _, c := range h.checks {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.Probe(cctx)
		cancel()

		s := models.SubsystemStatus{Name: c.Name, Status: models.HealthStatusOK}
		if err != nil {
			detail := err.Error()
			s.Status = models.HealthStatusFail
			s.Detail = &detail
		}
		out = append(out, s)
	}
	return out
}

func (h *OpsHandler) providers() []models.ProviderStatus {
	if h.registry == nil {
		return []models.ProviderStatus{}
	}

	all := h.registry.All()
	out := make([]models.ProviderStatus, 0, len(all))
	for _, p := range all {
		ps := models.ProviderStatus{
			Provider:            p.Name,
			Status:              providerHealth(p),
			BreakerState:        p.State.String(),
			ConsecutiveFailures: p.Counts.ConsecutiveFailures,
			LastSuccessAt:       models.TimestampPtr(p.LastSuccessAt),
			LastFailureAt:       models.TimestampPtr(p.LastFailureAt),
		}
		if p.LastError != "" {
			msg := p.LastError
			ps.Message = &msg
		}
		out = append(out, ps)
	}
	return out
}

func providerHealth(h resilience.Health) models.HealthStatus {
	switch h.Status() {
	case "unhealthy":
		return models.HealthStatusFail
	case "degraded":
		return models.HealthStatusDegraded
	default:
		return models.HealthStatusOK
	}
}
