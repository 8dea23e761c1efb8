package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/praedium/internal/auth"
	"github.com/ternarybob/praedium/internal/common"
	"github.com/ternarybob/praedium/internal/interfaces"
	"github.com/ternarybob/praedium/internal/queue"
	"github.com/ternarybob/praedium/internal/scheduler"
	"github.com/ternarybob/praedium/internal/scraper"
)

// StatusHandler handles HTTP requests for application status
type StatusHandler struct {
	queueService   *queue.Service
	tokenManager   *auth.Manager
	scraperService *scraper.Service
	schedulerSvc   *scheduler.Service
	properties     interfaces.PropertyStorage
	logger         arbor.ILogger
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler(queueService *queue.Service, tokenManager *auth.Manager, scraperService *scraper.Service, schedulerSvc *scheduler.Service, properties interfaces.PropertyStorage, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		queueService:   queueService,
		tokenManager:   tokenManager,
		scraperService: scraperService,
		schedulerSvc:   schedulerSvc,
		properties:     properties,
		logger:         logger,
	}
}

// GetStatusHandler handles GET /api/status
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	queueHealth, err := h.queueService.Health(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to collect queue health")
		WriteError(w, http.StatusInternalServerError, "Failed to collect queue health")
		return
	}

	propertyCount, err := h.properties.CountProperties(r.Context())
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to count properties")
	}

	status := map[string]interface{}{
		"version":       common.Version,
		"build":         common.Build,
		"queue":         queueHealth,
		"token":         h.tokenManager.Health(),
		"scrapes":       h.scraperService.Stats(),
		"propertyCount": propertyCount,
	}
	if h.schedulerSvc != nil {
		status["scheduler"] = map[string]interface{}{
			"running": h.schedulerSvc.IsRunning(),
			"jobs":    h.schedulerSvc.GetAllJobStatuses(),
		}
	}

	WriteJSON(w, http.StatusOK, status)
}

// HealthHandler handles GET /api/health
func (h *StatusHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// VersionHandler handles GET /api/version
func (h *StatusHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.Version,
		"build":   common.Build,
		"commit":  common.GitCommit,
	})
}

// NotFoundHandler handles unmatched /api/ routes
func (h *StatusHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusNotFound, "Not found")
}
