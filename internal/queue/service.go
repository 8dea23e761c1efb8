package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/praedium/internal/common"
	"github.com/ternarybob/praedium/internal/interfaces"
	"github.com/ternarybob/praedium/internal/models"
)

// ErrNotAdmissible is returned when the admission controller refuses a term
var ErrNotAdmissible = errors.New("term not admissible")

// ErrJobNotFound is returned when a job ID is neither queued nor in history
var ErrJobNotFound = errors.New("job not found")

// Service is the external face of the queue subsystem. Handlers and the
// scheduler go through it rather than touching the manager directly, so
// every enqueue passes the admission controller.
type Service struct {
	queue       *Manager
	admission   *Admission
	dedup       *Deduplicator
	jobs        interfaces.JobStorage
	maxAttempts int
	logger      arbor.ILogger
}

func NewService(queue *Manager, admission *Admission, dedup *Deduplicator, jobs interfaces.JobStorage, cfg *common.Config, logger arbor.ILogger) *Service {
	return &Service{
		queue:       queue,
		admission:   admission,
		dedup:       dedup,
		jobs:        jobs,
		maxAttempts: cfg.Queue.MaxAttempts,
		logger:      logger,
	}
}

// EnqueueTerm admits and queues a scrape job for a search term. Refusals
// return ErrNotAdmissible wrapped with the admission reason. A nil priority
// means the default; an explicit 0 is the most urgent slot.
func (s *Service) EnqueueTerm(ctx context.Context, searchTerm string, priority *int) (*models.ScrapeJob, error) {
	p := models.DefaultPriority
	if priority != nil {
		p = *priority
		if p < 0 {
			p = 0
		}
	}

	ok, reason, err := s.admission.CanScheduleJob(ctx, searchTerm)
	if err != nil {
		return nil, fmt.Errorf("admission check failed: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotAdmissible, reason)
	}

	job := models.NewScrapeJob(searchTerm, p, s.maxAttempts)
	if err := s.jobs.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("term", searchTerm).
		Int("priority", job.Priority).
		Msg("Scrape job enqueued")

	return job, nil
}

// GetJob returns the current view of a job. Queued jobs reflect live queue
// state; claimed jobs come from job history.
func (s *Service) GetJob(ctx context.Context, jobID string) (*models.ScrapeJob, error) {
	pending, err := s.queue.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	for _, j := range pending {
		if j.ID == jobID {
			return j, nil
		}
	}

	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// ListJobs proxies job-history listings for the API
func (s *Service) ListJobs(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.ScrapeJob, error) {
	return s.jobs.ListJobs(ctx, opts)
}

// RetryFailed re-enqueues the unique terms of terminally failed jobs as
// fresh attempts and returns the requeued and skipped counts. The retry is
// operator-triggered, so the terminal failure's own cooldown window does not
// block it; terms that are saturated, already queued, or running are skipped.
// Failed jobs still holding retries are already on the delayed path and are
// left alone.
func (s *Service) RetryFailed(ctx context.Context) (int, int, error) {
	failed, err := s.jobs.ListJobs(ctx, &interfaces.JobListOptions{Status: models.JobStatusFailed})
	if err != nil {
		return 0, 0, err
	}

	requeued := 0
	skipped := 0
	seen := make(map[string]bool)
	for _, old := range failed {
		if !old.IsTerminal() {
			continue
		}
		term := strings.ToLower(strings.TrimSpace(old.SearchTerm))
		if seen[term] {
			continue
		}
		seen[term] = true

		ok, reason, err := s.admission.CanRetryTerm(ctx, old.SearchTerm)
		if err != nil {
			return requeued, skipped, err
		}
		if !ok {
			skipped++
			s.logger.Debug().
				Str("term", old.SearchTerm).
				Str("reason", reason).
				Msg("Failed term not retried")
			continue
		}

		job := models.NewScrapeJob(old.SearchTerm, old.Priority, s.maxAttempts)
		if err := s.jobs.SaveJob(ctx, job); err != nil {
			return requeued, skipped, err
		}
		if err := s.queue.Enqueue(ctx, job); err != nil {
			return requeued, skipped, err
		}
		requeued++

		s.logger.Info().
			Str("job_id", job.ID).
			Str("failed_job_id", old.ID).
			Str("term", job.SearchTerm).
			Msg("Retrying failed job")
	}

	return requeued, skipped, nil
}

// RemoveDuplicates runs one deduplication pass
func (s *Service) RemoveDuplicates(ctx context.Context, opts DedupOptions) (*DedupResult, error) {
	return s.dedup.RemoveDuplicates(ctx, opts)
}

// Health reports queue depth and job-history counts
func (s *Service) Health(ctx context.Context) (models.QueueHealth, error) {
	waiting, delayed, err := s.queue.Counts(ctx)
	if err != nil {
		return models.QueueHealth{}, err
	}

	active, err := s.jobs.CountJobsByStatus(ctx, models.JobStatusActive)
	if err != nil {
		return models.QueueHealth{}, err
	}
	failed, err := s.jobs.CountJobsByStatus(ctx, models.JobStatusFailed)
	if err != nil {
		return models.QueueHealth{}, err
	}

	return models.QueueHealth{
		WaitingCount: waiting,
		DelayedCount: delayed,
		ActiveCount:  active,
		FailedCount:  failed,
	}, nil
}
