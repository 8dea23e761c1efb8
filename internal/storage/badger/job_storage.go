package badger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/praedium/internal/interfaces"
	"github.com/ternarybob/praedium/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// JobStorage implements the JobStorage interface for Badger
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

func (s *JobStorage) SaveJob(ctx context.Context, job *models.ScrapeJob) error {
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if err := s.db.Store().Upsert(job.ID, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (s *JobStorage) GetJob(ctx context.Context, jobID string) (*models.ScrapeJob, error) {
	var job models.ScrapeJob
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

func (s *JobStorage) ListJobs(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.ScrapeJob, error) {
	query := badgerhold.Where("ID").Ne("")

	if opts != nil {
		if opts.Status != "" {
			query = query.And("Status").Eq(opts.Status)
		}
		if opts.Limit > 0 {
			query = query.Limit(opts.Limit)
		}
		if opts.Offset > 0 {
			query = query.Skip(opts.Offset)
		}
		if opts.OrderBy != "" {
			if opts.OrderDir == "DESC" {
				query = query.SortBy(opts.OrderBy).Reverse()
			} else {
				query = query.SortBy(opts.OrderBy)
			}
		} else {
			query = query.SortBy("CreatedAt").Reverse()
		}
	} else {
		query = query.SortBy("CreatedAt").Reverse()
	}

	var jobs []models.ScrapeJob
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	result := make([]*models.ScrapeJob, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

func (s *JobStorage) CountJobsByStatus(ctx context.Context, status models.JobStatus) (int, error) {
	count, err := s.db.Store().Count(&models.ScrapeJob{}, badgerhold.Where("Status").Eq(status))
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// RecordJobOutcome persists the job's current state to history. Outcomes are
// written through the same upsert path, so retried jobs keep a single row.
func (s *JobStorage) RecordJobOutcome(ctx context.Context, job *models.ScrapeJob) error {
	if err := s.SaveJob(ctx, job); err != nil {
		return err
	}

	s.logger.Debug().
		Str("job_id", job.ID).
		Str("search_term", job.SearchTerm).
		Str("status", string(job.Status)).
		Int("attempt", job.Attempt).
		Msg("Job outcome recorded")

	return nil
}

// LastCompletionAt returns the most recent terminal timestamp for a term.
// Any outcome counts: admission cooldown applies to failures too.
func (s *JobStorage) LastCompletionAt(ctx context.Context, searchTerm string) (time.Time, error) {
	var jobs []models.ScrapeJob
	err := s.db.Store().Find(&jobs, badgerhold.Where("SearchTerm").Eq(searchTerm))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query jobs for term: %w", err)
	}

	var latest time.Time
	for i := range jobs {
		j := &jobs[i]
		if j.CompletedAt == nil {
			continue
		}
		if j.Status != models.JobStatusCompleted && j.Status != models.JobStatusFailed {
			continue
		}
		if j.CompletedAt.After(latest) {
			latest = *j.CompletedAt
		}
	}
	return latest, nil
}

// PruneTerminalJobs keeps the newest keepCompleted completed and keepFailed
// terminal-failed jobs and deletes the rest. Waiting, delayed, and active
// jobs are never touched.
func (s *JobStorage) PruneTerminalJobs(ctx context.Context, keepCompleted, keepFailed int) (int, error) {
	pruned := 0

	for _, target := range []struct {
		status models.JobStatus
		keep   int
	}{
		{models.JobStatusCompleted, keepCompleted},
		{models.JobStatusFailed, keepFailed},
	} {
		var jobs []models.ScrapeJob
		if err := s.db.Store().Find(&jobs, badgerhold.Where("Status").Eq(target.status)); err != nil {
			return pruned, fmt.Errorf("failed to list %s jobs: %w", target.status, err)
		}

		// Failed jobs with retries pending are not terminal yet
		if target.status == models.JobStatusFailed {
			terminal := jobs[:0]
			for _, j := range jobs {
				if !j.HasAttemptsRemaining() {
					terminal = append(terminal, j)
				}
			}
			jobs = terminal
		}

		if len(jobs) <= target.keep {
			continue
		}

		sort.Slice(jobs, func(i, k int) bool {
			return jobs[i].CreatedAt.After(jobs[k].CreatedAt)
		})

		for _, j := range jobs[target.keep:] {
			if err := s.db.Store().Delete(j.ID, &models.ScrapeJob{}); err != nil && err != badgerhold.ErrNotFound {
				s.logger.Warn().Err(err).Str("job_id", j.ID).Msg("Failed to prune job")
				continue
			}
			pruned++
		}
	}

	if pruned > 0 {
		s.logger.Debug().Int("pruned", pruned).Msg("Terminal jobs garbage-collected")
	}
	return pruned, nil
}
