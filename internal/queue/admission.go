package queue

import (
	"context"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/praedium/internal/interfaces"
	"github.com/ternarybob/praedium/internal/models"
)

// Admission decides whether a search term may be scheduled right now.
// A term is refused while a job for it is queued or running, while its
// most recent terminal outcome is inside the cooldown window, or once the
// completed-term index marks it saturated.
type Admission struct {
	queue      *Manager
	jobs       interfaces.JobStorage
	properties interfaces.PropertyStorage
	cooldown   time.Duration
	logger     arbor.ILogger
}

func NewAdmission(queue *Manager, jobs interfaces.JobStorage, properties interfaces.PropertyStorage, cooldown time.Duration, logger arbor.ILogger) *Admission {
	return &Admission{
		queue:      queue,
		jobs:       jobs,
		properties: properties,
		cooldown:   cooldown,
		logger:     logger,
	}
}

// CanScheduleJob reports whether a new job for the term is admissible.
// The reason string is empty when admissible.
func (a *Admission) CanScheduleJob(ctx context.Context, searchTerm string) (bool, string, error) {
	return a.canSchedule(ctx, searchTerm, false)
}

// CanRetryTerm is the admission check for operator-triggered retries. It
// skips the cooldown window, since the operator is explicitly asking for a
// fresh attempt, but still refuses saturated, queued, and running terms.
func (a *Admission) CanRetryTerm(ctx context.Context, searchTerm string) (bool, string, error) {
	return a.canSchedule(ctx, searchTerm, true)
}

func (a *Admission) canSchedule(ctx context.Context, searchTerm string, skipCooldown bool) (bool, string, error) {
	term := strings.TrimSpace(searchTerm)
	if term == "" {
		return false, "search term is empty", nil
	}

	completed, err := a.properties.IsTermCompleted(ctx, term)
	if err != nil {
		return false, "", err
	}
	if completed {
		return false, "term already completed with results", nil
	}

	pending, err := a.queue.HasPending(ctx, term)
	if err != nil {
		return false, "", err
	}
	if pending {
		return false, "job already queued for term", nil
	}

	active, err := a.hasActiveJob(ctx, term)
	if err != nil {
		return false, "", err
	}
	if active {
		return false, "job already running for term", nil
	}

	if skipCooldown {
		return true, "", nil
	}

	last, err := a.jobs.LastCompletionAt(ctx, term)
	if err != nil {
		return false, "", err
	}
	if !last.IsZero() {
		elapsed := time.Since(last)
		if elapsed < a.cooldown {
			a.logger.Debug().
				Str("term", term).
				Str("elapsed", elapsed.String()).
				Str("cooldown", a.cooldown.String()).
				Msg("Term refused, inside cooldown window")
			return false, "term inside cooldown window", nil
		}
	}

	return true, "", nil
}

func (a *Admission) hasActiveJob(ctx context.Context, term string) (bool, error) {
	activeJobs, err := a.jobs.ListJobs(ctx, &interfaces.JobListOptions{Status: models.JobStatusActive})
	if err != nil {
		return false, err
	}
	for _, j := range activeJobs {
		if strings.EqualFold(j.SearchTerm, term) {
			return true, nil
		}
	}
	return false, nil
}
