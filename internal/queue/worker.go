package queue

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/praedium/internal/common"
	"github.com/ternarybob/praedium/internal/interfaces"
	"github.com/ternarybob/praedium/internal/models"
)

// gcEvery is how many terminal outcomes pass between retention sweeps
const gcEvery = 10

// Scraper executes one scrape of a search term and returns its records
type Scraper interface {
	Scrape(ctx context.Context, searchTerm string) ([]models.PropertyRecord, error)
}

// WorkerPool runs N concurrent workers that claim jobs off the queue,
// scrape them, persist the results, and drive the retry lifecycle.
type WorkerPool struct {
	queue      *Manager
	jobs       interfaces.JobStorage
	properties interfaces.PropertyStorage
	scraper    Scraper
	logger     arbor.ILogger

	concurrency  int
	pollInterval time.Duration
	backoffBase  time.Duration

	keepCompleted int
	keepFailed    int
	terminalCount atomic.Int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWorkerPool(queue *Manager, jobs interfaces.JobStorage, properties interfaces.PropertyStorage, scraper Scraper, cfg *common.Config, logger arbor.ILogger) *WorkerPool {
	concurrency := cfg.Queue.Concurrency
	if concurrency <= 0 {
		concurrency = 2
	}
	return &WorkerPool{
		queue:         queue,
		jobs:          jobs,
		properties:    properties,
		scraper:       scraper,
		logger:        logger,
		concurrency:   concurrency,
		pollInterval:  common.Duration(cfg.Queue.PollInterval, time.Second),
		backoffBase:   common.Duration(cfg.Queue.RetryBackoffBase, 5*time.Second),
		keepCompleted: cfg.Queue.CompletedRetained,
		keepFailed:    cfg.Queue.FailedRetained,
	}
}

// Start launches the worker goroutines. Call Stop to drain them.
func (p *WorkerPool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}

	p.logger.Info().
		Int("concurrency", p.concurrency).
		Str("poll_interval", p.pollInterval.String()).
		Msg("Worker pool started")
}

// Stop cancels the workers and waits for in-flight jobs to finish
func (p *WorkerPool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info().Msg("Worker pool stopped")
}

func (p *WorkerPool) run(ctx context.Context, workerID int) {
	defer p.wg.Done()

	// Stagger startup so workers do not poll in lockstep
	select {
	case <-time.After(time.Duration(workerID) * 250 * time.Millisecond):
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Drain ready jobs before sleeping again
			for {
				job, err := p.queue.Receive(ctx)
				if err != nil {
					if !errors.Is(err, ErrNoJob) {
						p.logger.Warn().Err(err).Int("worker", workerID).Msg("Queue receive failed")
					}
					break
				}
				p.process(ctx, workerID, job)
				if ctx.Err() != nil {
					return
				}
			}
		}
	}
}

func (p *WorkerPool) process(ctx context.Context, workerID int, job *models.ScrapeJob) {
	log := p.logger.WithCorrelationId(job.ID)

	job.MarkActive()
	if err := p.jobs.SaveJob(ctx, job); err != nil {
		log.Warn().Err(err).Msg("Failed to persist active state")
	}

	log.Info().
		Int("worker", workerID).
		Str("term", job.SearchTerm).
		Int("attempt", job.Attempt).
		Int("max_attempts", job.MaxAttempts).
		Msg("Processing scrape job")

	records, err := p.scraper.Scrape(ctx, job.SearchTerm)
	if err != nil {
		p.handleFailure(ctx, log, job, err)
		return
	}

	if err := p.properties.UpsertProperties(ctx, records); err != nil {
		p.handleFailure(ctx, log, job, err)
		return
	}

	if err := p.properties.MarkTermCompleted(ctx, job.SearchTerm, len(records)); err != nil {
		log.Warn().Err(err).Msg("Failed to update completed-term index")
	}

	job.MarkCompleted(len(records))
	if err := p.jobs.RecordJobOutcome(ctx, job); err != nil {
		log.Warn().Err(err).Msg("Failed to record job outcome")
	}

	log.Info().
		Str("term", job.SearchTerm).
		Int("records", len(records)).
		Str("elapsed", time.Since(*job.StartedAt).Round(time.Millisecond).String()).
		Msg("Scrape job completed")

	p.maybeCollect(ctx, log)
}

func (p *WorkerPool) handleFailure(ctx context.Context, log arbor.ILogger, job *models.ScrapeJob, cause error) {
	job.MarkFailed(cause.Error())
	if err := p.jobs.RecordJobOutcome(ctx, job); err != nil {
		log.Warn().Err(err).Msg("Failed to record job outcome")
	}

	if !job.HasAttemptsRemaining() {
		log.Error().Err(cause).
			Str("term", job.SearchTerm).
			Int("attempts", job.Attempt).
			Msg("Scrape job terminally failed")
		p.maybeCollect(ctx, log)
		return
	}

	delay := p.retryDelay(job.Attempt)
	job.MarkDelayed()
	if err := p.jobs.SaveJob(ctx, job); err != nil {
		log.Warn().Err(err).Msg("Failed to persist delayed state")
	}
	if err := p.queue.EnqueueDelayed(ctx, job, delay); err != nil {
		log.Error().Err(err).Msg("Failed to re-enqueue delayed job")
		return
	}

	log.Warn().Err(cause).
		Str("term", job.SearchTerm).
		Int("next_attempt", job.Attempt).
		Str("delay", delay.String()).
		Msg("Scrape attempt failed, retry scheduled")
}

// retryDelay doubles the base delay for each failed attempt
func (p *WorkerPool) retryDelay(failedAttempt int) time.Duration {
	if failedAttempt < 1 {
		failedAttempt = 1
	}
	return time.Duration(float64(p.backoffBase) * math.Pow(2, float64(failedAttempt-1)))
}

// maybeCollect prunes terminal job history every gcEvery outcomes
func (p *WorkerPool) maybeCollect(ctx context.Context, log arbor.ILogger) {
	if p.terminalCount.Add(1)%gcEvery != 0 {
		return
	}
	removed, err := p.jobs.PruneTerminalJobs(ctx, p.keepCompleted, p.keepFailed)
	if err != nil {
		log.Warn().Err(err).Msg("Job history prune failed")
		return
	}
	if removed > 0 {
		log.Debug().Int("removed", removed).Msg("Pruned terminal job history")
	}
}
