package handlers

import (
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/praedium/internal/interfaces"
	"github.com/ternarybob/praedium/internal/models"
	"github.com/ternarybob/praedium/internal/queue"
)

// JobHandler handles HTTP requests for scrape-job inspection and retry
type JobHandler struct {
	queueService *queue.Service
	logger       arbor.ILogger
}

// NewJobHandler creates a new JobHandler
func NewJobHandler(queueService *queue.Service, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		queueService: queueService,
		logger:       logger,
	}
}

// GetJobHandler handles GET /api/jobs/{id}
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if jobID == "" || strings.Contains(jobID, "/") {
		WriteError(w, http.StatusBadRequest, "Invalid job ID")
		return
	}

	job, err := h.queueService.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	WriteJSON(w, http.StatusOK, job)
}

// ListJobsHandler handles GET /api/jobs?status=&limit=
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	opts := &interfaces.JobListOptions{
		Limit: QueryInt(r, "limit", 50),
	}
	if status := r.URL.Query().Get("status"); status != "" {
		opts.Status = models.JobStatus(status)
	}

	jobs, err := h.queueService.ListJobs(r.Context(), opts)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list jobs")
		WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(jobs),
		"jobs":  jobs,
	})
}

// RetryFailedHandler handles POST /api/jobs/retry-failed
func (h *JobHandler) RetryFailedHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	requeued, skipped, err := h.queueService.RetryFailed(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Retry of failed jobs errored")
		WriteError(w, http.StatusInternalServerError, "Retry of failed jobs errored")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "success",
		"requeued": requeued,
		"skipped":  skipped,
	})
}

// sortJobsByCompletion orders jobs newest-terminal-first
func sortJobsByCompletion(jobs []*models.ScrapeJob) {
	completedAt := func(j *models.ScrapeJob) time.Time {
		if j.CompletedAt != nil {
			return *j.CompletedAt
		}
		return j.CreatedAt
	}
	sort.Slice(jobs, func(i, j int) bool {
		return completedAt(jobs[i]).After(completedAt(jobs[j]))
	})
}
