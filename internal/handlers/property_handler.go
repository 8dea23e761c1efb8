package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/praedium/internal/interfaces"
	"github.com/ternarybob/praedium/internal/models"
	"github.com/ternarybob/praedium/internal/queue"
)

// PropertyHandler handles HTTP requests for property scraping and lookup
type PropertyHandler struct {
	queueService *queue.Service
	properties   interfaces.PropertyStorage
	jobs         interfaces.JobStorage
	logger       arbor.ILogger
}

// NewPropertyHandler creates a new PropertyHandler
func NewPropertyHandler(queueService *queue.Service, properties interfaces.PropertyStorage, jobs interfaces.JobStorage, logger arbor.ILogger) *PropertyHandler {
	return &PropertyHandler{
		queueService: queueService,
		properties:   properties,
		jobs:         jobs,
		logger:       logger,
	}
}

// Priority is a pointer so an explicit 0 (most urgent) is distinguishable
// from an absent field.
type scrapeRequest struct {
	SearchTerm string `json:"searchTerm"`
	Priority   *int   `json:"priority,omitempty"`
}

// ScrapeHandler handles POST /api/properties/scrape.
// Accepted jobs return 202 with the job ID; refused terms return 409.
func (h *PropertyHandler) ScrapeHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	req.SearchTerm = strings.TrimSpace(req.SearchTerm)
	if req.SearchTerm == "" {
		WriteError(w, http.StatusBadRequest, "searchTerm is required")
		return
	}

	job, err := h.queueService.EnqueueTerm(r.Context(), req.SearchTerm, req.Priority)
	if err != nil {
		if errors.Is(err, queue.ErrNotAdmissible) {
			WriteError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Error().Err(err).Str("term", req.SearchTerm).Msg("Failed to enqueue scrape job")
		WriteError(w, http.StatusInternalServerError, "Failed to enqueue scrape job")
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"jobId":      job.ID,
		"searchTerm": job.SearchTerm,
		"status":     job.Status,
		"priority":   job.Priority,
	})
}

// SearchHandler handles GET /api/properties/search?q=&limit=
func (h *PropertyHandler) SearchHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		WriteError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit := QueryInt(r, "limit", 50)

	records, err := h.properties.SearchProperties(r.Context(), query, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("query", query).Msg("Property search failed")
		WriteError(w, http.StatusInternalServerError, "Property search failed")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"query":      query,
		"count":      len(records),
		"properties": records,
	})
}

// HistoryHandler handles GET /api/properties/history?limit=
// Returns the most recent terminal scrape jobs, newest first.
func (h *PropertyHandler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	limit := QueryInt(r, "limit", 20)

	completed, err := h.jobs.ListJobs(r.Context(), &interfaces.JobListOptions{
		Status: models.JobStatusCompleted,
		Limit:  limit,
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list job history")
		WriteError(w, http.StatusInternalServerError, "Failed to list job history")
		return
	}

	failed, err := h.jobs.ListJobs(r.Context(), &interfaces.JobListOptions{
		Status: models.JobStatusFailed,
		Limit:  limit,
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list job history")
		WriteError(w, http.StatusInternalServerError, "Failed to list job history")
		return
	}

	history := append(completed, failed...)
	sortJobsByCompletion(history)
	if len(history) > limit {
		history = history[:limit]
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(history),
		"jobs":  history,
	})
}
