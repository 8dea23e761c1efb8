package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/praedium/internal/models"
)

// PropertyStorage - interface for scraped parcel persistence
type PropertyStorage interface {
	// UpsertProperties stores records keyed on parcel ID (insert-or-update, never duplicate)
	UpsertProperties(ctx context.Context, records []models.PropertyRecord) error
	GetProperty(ctx context.Context, parcelID string) (*models.PropertyRecord, error)
	SearchProperties(ctx context.Context, query string, limit int) ([]models.PropertyRecord, error)
	CountProperties(ctx context.Context) (int, error)

	// CompletedTermIndex operations
	IsTermCompleted(ctx context.Context, searchTerm string) (bool, error)
	MarkTermCompleted(ctx context.Context, searchTerm string, resultCount int) error
}

// JobListOptions filters job-history listings
type JobListOptions struct {
	Status   models.JobStatus
	Limit    int
	Offset   int
	OrderBy  string
	OrderDir string
}

// JobStorage - interface for scrape-job history persistence
type JobStorage interface {
	SaveJob(ctx context.Context, job *models.ScrapeJob) error

	// GetJob returns nil, nil when no job exists with the ID
	GetJob(ctx context.Context, jobID string) (*models.ScrapeJob, error)
	ListJobs(ctx context.Context, opts *JobListOptions) ([]*models.ScrapeJob, error)
	CountJobsByStatus(ctx context.Context, status models.JobStatus) (int, error)

	// RecordJobOutcome persists a terminal (or retried) job state
	RecordJobOutcome(ctx context.Context, job *models.ScrapeJob) error

	// LastCompletionAt returns when a term's most recent job reached any
	// terminal state, or the zero time when no such job exists
	LastCompletionAt(ctx context.Context, searchTerm string) (time.Time, error)

	// PruneTerminalJobs garbage-collects terminal jobs beyond the retention
	// windows, returning how many were removed
	PruneTerminalJobs(ctx context.Context, keepCompleted, keepFailed int) (int, error)
}
