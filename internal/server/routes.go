package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// API routes - Properties
	mux.HandleFunc("/api/properties/scrape", s.app.PropertyHandler.ScrapeHandler)   // POST - enqueue a scrape
	mux.HandleFunc("/api/properties/search", s.app.PropertyHandler.SearchHandler)   // GET - query scraped records
	mux.HandleFunc("/api/properties/history", s.app.PropertyHandler.HistoryHandler) // GET - recent terminal jobs

	// API routes - Jobs
	mux.HandleFunc("/api/jobs", s.app.JobHandler.ListJobsHandler)
	mux.HandleFunc("/api/jobs/retry-failed", s.app.JobHandler.RetryFailedHandler) // POST - requeue terminal failures
	mux.HandleFunc("/api/jobs/", s.app.JobHandler.GetJobHandler)                  // GET /{id}

	// API routes - Token lifecycle
	mux.HandleFunc("/api/token/refresh", s.app.MaintenanceHandler.RefreshTokenHandler) // POST
	mux.HandleFunc("/api/token/health", s.app.MaintenanceHandler.TokenHealthHandler)   // GET

	// API routes - Maintenance
	mux.HandleFunc("/api/maintenance/dedup", s.app.MaintenanceHandler.DedupHandler) // POST

	// API routes - System
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler)
	mux.HandleFunc("/api/version", s.app.StatusHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.StatusHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.StatusHandler.NotFoundHandler)

	return mux
}
