package queue

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/praedium/internal/interfaces"
	"github.com/ternarybob/praedium/internal/models"
)

// DedupOptions controls a deduplication pass
type DedupOptions struct {
	// DryRun reports what would be removed without touching the queue
	DryRun bool
	// Verbose logs each removal decision
	Verbose bool
}

// DedupResult summarizes a deduplication pass
type DedupResult struct {
	Scanned  int `json:"scanned"`
	Removed  int `json:"removed"`
	Failures int `json:"failures"`
}

// Deduplicator removes redundant queued jobs. For each search term it keeps
// the single job most likely to run first and drops the rest; terms already
// saturated in the completed-term index lose all their queued jobs.
type Deduplicator struct {
	queue      *Manager
	properties interfaces.PropertyStorage
	logger     arbor.ILogger
}

func NewDeduplicator(queue *Manager, properties interfaces.PropertyStorage, logger arbor.ILogger) *Deduplicator {
	return &Deduplicator{
		queue:      queue,
		properties: properties,
		logger:     logger,
	}
}

// RemoveDuplicates performs one deduplication pass over the queued jobs.
// Active jobs are never touched; they have already been claimed off the
// queue. A job claimed by a worker mid-pass counts as a failure, not an
// error, and the pass continues.
func (d *Deduplicator) RemoveDuplicates(ctx context.Context, opts DedupOptions) (*DedupResult, error) {
	jobs, err := d.queue.ListPending(ctx)
	if err != nil {
		return nil, err
	}

	result := &DedupResult{Scanned: len(jobs)}

	byTerm := make(map[string][]*models.ScrapeJob)
	for _, job := range jobs {
		key := strings.ToLower(strings.TrimSpace(job.SearchTerm))
		byTerm[key] = append(byTerm[key], job)
	}

	for term, group := range byTerm {
		completed, err := d.properties.IsTermCompleted(ctx, term)
		if err != nil {
			d.logger.Warn().Err(err).Str("term", term).Msg("Completed-term lookup failed, keeping jobs")
			continue
		}

		var doomed []*models.ScrapeJob
		if completed {
			// Term already yielded results, every queued job is redundant
			doomed = group
		} else if len(group) > 1 {
			survivor := pickSurvivor(group)
			for _, job := range group {
				if job.ID != survivor.ID {
					doomed = append(doomed, job)
				}
			}
			if opts.Verbose {
				d.logger.Info().
					Str("term", term).
					Str("survivor", survivor.ID).
					Int("duplicates", len(doomed)).
					Msg("Keeping lowest-priority job for term")
			}
		}

		for _, job := range doomed {
			if opts.DryRun {
				result.Removed++
				continue
			}
			if err := d.queue.Remove(ctx, job.ID); err != nil {
				if errors.Is(err, ErrJobGone) {
					result.Failures++
					continue
				}
				return result, err
			}
			result.Removed++
			if opts.Verbose {
				d.logger.Info().
					Str("job_id", job.ID).
					Str("term", term).
					Bool("term_completed", completed).
					Msg("Removed queued job")
			}
		}
	}

	d.logger.Info().
		Int("scanned", result.Scanned).
		Int("removed", result.Removed).
		Int("failures", result.Failures).
		Bool("dry_run", opts.DryRun).
		Msg("Deduplication pass complete")

	return result, nil
}

// pickSurvivor chooses the job that would run first: lowest priority value,
// then earliest creation time, then ID for a stable tiebreak.
func pickSurvivor(group []*models.ScrapeJob) *models.ScrapeJob {
	sorted := make([]*models.ScrapeJob, len(group))
	copy(sorted, group)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority < sorted[j].Priority
		}
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted[0]
}
