package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/praedium/internal/auth"
	"github.com/ternarybob/praedium/internal/queue"
)

// MaintenanceHandler handles operator-triggered maintenance actions
type MaintenanceHandler struct {
	queueService *queue.Service
	tokenManager *auth.Manager
	logger       arbor.ILogger
}

// NewMaintenanceHandler creates a new MaintenanceHandler
func NewMaintenanceHandler(queueService *queue.Service, tokenManager *auth.Manager, logger arbor.ILogger) *MaintenanceHandler {
	return &MaintenanceHandler{
		queueService: queueService,
		tokenManager: tokenManager,
		logger:       logger,
	}
}

// DedupHandler handles POST /api/maintenance/dedup?dryRun=&verbose=
func (h *MaintenanceHandler) DedupHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	opts := queue.DedupOptions{
		DryRun:  QueryBool(r, "dryRun"),
		Verbose: QueryBool(r, "verbose"),
	}

	result, err := h.queueService.RemoveDuplicates(r.Context(), opts)
	if err != nil {
		h.logger.Error().Err(err).Msg("Deduplication pass failed")
		WriteError(w, http.StatusInternalServerError, "Deduplication pass failed")
		return
	}

	WriteJSON(w, http.StatusOK, result)
}

// RefreshTokenHandler handles POST /api/token/refresh
func (h *MaintenanceHandler) RefreshTokenHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	if err := h.tokenManager.ForceRefresh(r.Context()); err != nil {
		h.logger.Error().Err(err).Msg("Manual token refresh failed")
		WriteError(w, http.StatusBadGateway, "Token refresh failed")
		return
	}

	WriteJSON(w, http.StatusOK, h.tokenManager.Health())
}

// TokenHealthHandler handles GET /api/token/health
func (h *MaintenanceHandler) TokenHealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	WriteJSON(w, http.StatusOK, h.tokenManager.Health())
}
