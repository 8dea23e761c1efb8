// -----------------------------------------------------------------------
// Scrape Job - unit of work for the scrape queue
// -----------------------------------------------------------------------

package models

import (
	"time"

	"github.com/ternarybob/praedium/internal/common"
)

// JobStatus represents the lifecycle state of a scrape job
type JobStatus string

const (
	JobStatusWaiting   JobStatus = "waiting"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusDelayed   JobStatus = "delayed"
)

// DefaultPriority is the mid-priority assigned when a caller does not specify one.
// Lower values are more urgent.
const DefaultPriority = 10

// ScrapeJob is one queued scrape of a single search term.
//
// Lifecycle: waiting -> active -> completed, or active -> failed and then
// either delayed -> waiting (retry with backoff) or terminal failed once
// attempts are exhausted. No transition skips active.
type ScrapeJob struct {
	ID         string    `json:"id" badgerhold:"key"`
	SearchTerm string    `json:"searchTerm"`
	Priority   int       `json:"priority"`
	Attempt    int       `json:"attempt"`     // 1-based
	MaxAttempts int      `json:"maxAttempts"`
	Status     JobStatus `json:"status"`

	ResultCount *int   `json:"resultCount,omitempty"`
	Error       string `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// NewScrapeJob creates a waiting job for a search term
func NewScrapeJob(searchTerm string, priority int, maxAttempts int) *ScrapeJob {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &ScrapeJob{
		ID:          common.NewJobID(),
		SearchTerm:  searchTerm,
		Priority:    priority,
		Attempt:     1,
		MaxAttempts: maxAttempts,
		Status:      JobStatusWaiting,
		CreatedAt:   time.Now(),
	}
}

// IsTerminal returns true once the job can no longer transition
func (j *ScrapeJob) IsTerminal() bool {
	switch j.Status {
	case JobStatusCompleted:
		return true
	case JobStatusFailed:
		return j.Attempt >= j.MaxAttempts
	}
	return false
}

// HasAttemptsRemaining reports whether a failed job may be retried
func (j *ScrapeJob) HasAttemptsRemaining() bool {
	return j.Attempt < j.MaxAttempts
}

// MarkActive records the start of an attempt
func (j *ScrapeJob) MarkActive() {
	now := time.Now()
	j.Status = JobStatusActive
	j.StartedAt = &now
}

// MarkCompleted records terminal success with the scraped record count.
// A zero-result scrape is a valid completion, not a failure.
func (j *ScrapeJob) MarkCompleted(resultCount int) {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.ResultCount = &resultCount
	j.Error = ""
	j.CompletedAt = &now
}

// MarkFailed records a failed attempt
func (j *ScrapeJob) MarkFailed(errMsg string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.Error = errMsg
	j.CompletedAt = &now
}

// MarkDelayed transitions a retryable failed job back toward the queue
func (j *ScrapeJob) MarkDelayed() {
	j.Status = JobStatusDelayed
	j.Attempt++
	j.StartedAt = nil
	j.CompletedAt = nil
}
