package scheduler

import (
	"context"
	"errors"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/praedium/internal/queue"
)

// Seeder re-queues the configured monitored search terms on each scheduler
// tick. Terms the admission controller refuses (already queued, cooling
// down, or saturated) are skipped, so repeated ticks are harmless.
type Seeder struct {
	queue  *queue.Service
	terms  []string
	logger arbor.ILogger
}

func NewSeeder(queueService *queue.Service, terms []string, logger arbor.ILogger) *Seeder {
	return &Seeder{
		queue:  queueService,
		terms:  terms,
		logger: logger,
	}
}

// Run enqueues every admissible monitored term once
func (s *Seeder) Run(ctx context.Context) error {
	if len(s.terms) == 0 {
		return nil
	}

	enqueued := 0
	skipped := 0
	for _, term := range s.terms {
		job, err := s.queue.EnqueueTerm(ctx, term, nil)
		if err != nil {
			if errors.Is(err, queue.ErrNotAdmissible) {
				skipped++
				s.logger.Debug().Str("term", term).Err(err).Msg("Monitored term not admissible")
				continue
			}
			return err
		}
		enqueued++
		s.logger.Info().
			Str("term", term).
			Str("job_id", job.ID).
			Msg("Monitored term seeded")
	}

	s.logger.Info().
		Int("enqueued", enqueued).
		Int("skipped", skipped).
		Int("monitored", len(s.terms)).
		Msg("Monitored term seeding pass complete")

	return nil
}
