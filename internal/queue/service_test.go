package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/praedium/internal/common"
	"github.com/ternarybob/praedium/internal/models"
	badgerstore "github.com/ternarybob/praedium/internal/storage/badger"
)

func newTestService(t *testing.T) (*Service, *Manager, *fakeJobStorage, *fakePropertyStorage) {
	t.Helper()
	m := newTestManager(t)
	jobs := newFakeJobStorage()
	properties := newFakePropertyStorage()
	logger := arbor.NewLogger()
	cfg := common.NewDefaultConfig()

	admission := NewAdmission(m, jobs, properties, 30*time.Minute, logger)
	dedup := NewDeduplicator(m, properties, logger)
	return NewService(m, admission, dedup, jobs, cfg, logger), m, jobs, properties
}

func intPtr(v int) *int { return &v }

func TestEnqueueTermAcceptsAndPersists(t *testing.T) {
	svc, m, jobs, _ := newTestService(t)
	ctx := context.Background()

	job, err := svc.EnqueueTerm(ctx, "Smith", nil)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultPriority, job.Priority)
	assert.Equal(t, models.JobStatusWaiting, job.Status)

	saved, err := jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, saved)

	queued, err := m.HasPending(ctx, "Smith")
	require.NoError(t, err)
	assert.True(t, queued)
}

func TestEnqueueTermExplicitZeroPriority(t *testing.T) {
	svc, m, _, _ := newTestService(t)
	ctx := context.Background()

	// 0 is the most urgent slot, not an unset value
	job, err := svc.EnqueueTerm(ctx, "Smith", intPtr(0))
	require.NoError(t, err)
	assert.Equal(t, 0, job.Priority)

	later, err := svc.EnqueueTerm(ctx, "Jones", intPtr(5))
	require.NoError(t, err)
	assert.Equal(t, 5, later.Priority)

	claimed, err := m.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, job.ID, claimed.ID)
}

func TestEnqueueTermRefusesDuplicate(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.EnqueueTerm(ctx, "Smith", intPtr(5))
	require.NoError(t, err)

	_, err = svc.EnqueueTerm(ctx, "Smith", intPtr(5))
	assert.ErrorIs(t, err, ErrNotAdmissible)
}

func TestGetJobPrefersQueueState(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	job, err := svc.EnqueueTerm(ctx, "Smith", intPtr(5))
	require.NoError(t, err)

	got, err := svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusWaiting, got.Status)
}

func TestGetJobUnknownID(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.GetJob(context.Background(), "job_missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestRetryFailedRequeuesTerminalFailures(t *testing.T) {
	svc, m, jobs, _ := newTestService(t)
	ctx := context.Background()

	// A terminal failure that just happened: the operator retry must not be
	// blocked by the failure's own cooldown window.
	failed := models.NewScrapeJob("Smith", 5, 3)
	failed.Attempt = 3
	failed.MarkActive()
	failed.MarkFailed("portal timeout")
	require.True(t, failed.IsTerminal())
	require.NoError(t, jobs.RecordJobOutcome(ctx, failed))

	// One failure still holding retries must be left alone
	retrying := models.NewScrapeJob("Jones", 5, 3)
	retrying.MarkActive()
	retrying.MarkFailed("portal timeout")
	require.False(t, retrying.IsTerminal())
	require.NoError(t, jobs.SaveJob(ctx, retrying))

	requeued, skipped, err := svc.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, requeued)
	assert.Equal(t, 0, skipped)

	queued, err := m.HasPending(ctx, "Smith")
	require.NoError(t, err)
	assert.True(t, queued)

	queued, err = m.HasPending(ctx, "Jones")
	require.NoError(t, err)
	assert.False(t, queued)
}

func TestRetryFailedReportsSkippedTerms(t *testing.T) {
	svc, m, jobs, properties := newTestService(t)
	ctx := context.Background()

	// Two terminal failures for the same term count once
	for i := 0; i < 2; i++ {
		dup := models.NewScrapeJob("Smith", 5, 3)
		dup.Attempt = 3
		dup.MarkActive()
		dup.MarkFailed("portal timeout")
		require.NoError(t, jobs.RecordJobOutcome(ctx, dup))
	}

	// A term that saturated after its failure stays skipped
	stale := models.NewScrapeJob("Garcia", 5, 3)
	stale.Attempt = 3
	stale.MarkActive()
	stale.MarkFailed("portal timeout")
	require.NoError(t, jobs.RecordJobOutcome(ctx, stale))
	require.NoError(t, properties.MarkTermCompleted(ctx, "Garcia", 12))

	requeued, skipped, err := svc.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, requeued)
	assert.Equal(t, 1, skipped)

	queued, err := m.HasPending(ctx, "Smith")
	require.NoError(t, err)
	assert.True(t, queued)

	queued, err = m.HasPending(ctx, "Garcia")
	require.NoError(t, err)
	assert.False(t, queued)
}

func TestRetryFailedAgainstJobHistoryStore(t *testing.T) {
	m := newTestManager(t)
	properties := newFakePropertyStorage()
	logger := arbor.NewLogger()
	cfg := common.NewDefaultConfig()

	db, err := badgerstore.NewBadgerDB(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	jobs := badgerstore.NewJobStorage(db, logger)

	admission := NewAdmission(m, jobs, properties, 30*time.Minute, logger)
	dedup := NewDeduplicator(m, properties, logger)
	svc := NewService(m, admission, dedup, jobs, cfg, logger)
	ctx := context.Background()

	failed := models.NewScrapeJob("Smith", 5, 3)
	failed.Attempt = 3
	failed.MarkActive()
	failed.MarkFailed("portal timeout")
	require.True(t, failed.IsTerminal())
	require.NoError(t, jobs.RecordJobOutcome(ctx, failed))

	requeued, skipped, err := svc.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, requeued)
	assert.Equal(t, 0, skipped)

	queued, err := m.HasPending(ctx, "Smith")
	require.NoError(t, err)
	assert.True(t, queued)
}

func TestHealthReportsQueueDepth(t *testing.T) {
	svc, m, jobs, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, m.Enqueue(ctx, models.NewScrapeJob("Smith", 10, 3)))
	require.NoError(t, m.EnqueueDelayed(ctx, models.NewScrapeJob("Jones", 10, 3), time.Hour))

	active := models.NewScrapeJob("Garcia", 10, 3)
	active.MarkActive()
	require.NoError(t, jobs.SaveJob(ctx, active))

	health, err := svc.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, health.WaitingCount)
	assert.Equal(t, 1, health.DelayedCount)
	assert.Equal(t, 1, health.ActiveCount)
	assert.Equal(t, 0, health.FailedCount)
}

// fakeScraper returns canned results or errors per term
type fakeScraper struct {
	results map[string][]models.PropertyRecord
	errs    map[string]error
}

func (f *fakeScraper) Scrape(ctx context.Context, searchTerm string) ([]models.PropertyRecord, error) {
	if err, ok := f.errs[searchTerm]; ok {
		return nil, err
	}
	return f.results[searchTerm], nil
}

func TestWorkerPoolProcessesJob(t *testing.T) {
	m := newTestManager(t)
	jobs := newFakeJobStorage()
	properties := newFakePropertyStorage()
	logger := arbor.NewLogger()

	cfg := common.NewDefaultConfig()
	cfg.Queue.Concurrency = 1
	cfg.Queue.PollInterval = "20ms"

	scraper := &fakeScraper{
		results: map[string][]models.PropertyRecord{
			"Smith": {{ParcelID: "R100", OwnerName: "SMITH JOHN"}},
		},
	}

	pool := NewWorkerPool(m, jobs, properties, scraper, cfg, logger)
	ctx := context.Background()

	job := models.NewScrapeJob("Smith", 10, 3)
	require.NoError(t, jobs.SaveJob(ctx, job))
	require.NoError(t, m.Enqueue(ctx, job))

	pool.Start(ctx)
	defer pool.Stop()

	require.Eventually(t, func() bool {
		saved, err := jobs.GetJob(ctx, job.ID)
		if err != nil || saved == nil {
			return false
		}
		return saved.Status == models.JobStatusCompleted
	}, 5*time.Second, 25*time.Millisecond)

	saved, err := jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, saved.ResultCount)
	assert.Equal(t, 1, *saved.ResultCount)

	completed, err := properties.IsTermCompleted(ctx, "Smith")
	require.NoError(t, err)
	assert.True(t, completed)
}

func TestWorkerPoolRetriesWithBackoff(t *testing.T) {
	m := newTestManager(t)
	jobs := newFakeJobStorage()
	properties := newFakePropertyStorage()
	logger := arbor.NewLogger()

	cfg := common.NewDefaultConfig()
	cfg.Queue.Concurrency = 1
	cfg.Queue.PollInterval = "20ms"
	cfg.Queue.RetryBackoffBase = "10ms"

	scraper := &fakeScraper{
		errs: map[string]error{"Smith": errors.New("portal timeout")},
	}

	pool := NewWorkerPool(m, jobs, properties, scraper, cfg, logger)
	ctx := context.Background()

	job := models.NewScrapeJob("Smith", 10, 3)
	require.NoError(t, jobs.SaveJob(ctx, job))
	require.NoError(t, m.Enqueue(ctx, job))

	pool.Start(ctx)
	defer pool.Stop()

	require.Eventually(t, func() bool {
		saved, err := jobs.GetJob(ctx, job.ID)
		if err != nil || saved == nil {
			return false
		}
		return saved.Status == models.JobStatusFailed && saved.Attempt == 3
	}, 10*time.Second, 25*time.Millisecond)

	saved, err := jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, saved.IsTerminal())
	assert.Contains(t, saved.Error, "portal timeout")

	// Nothing left queued once the job is terminally failed
	remaining, err := m.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestRetryDelayDoublesPerAttempt(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Queue.RetryBackoffBase = "5s"
	pool := NewWorkerPool(nil, nil, nil, nil, cfg, arbor.NewLogger())

	assert.Equal(t, 5*time.Second, pool.retryDelay(1))
	assert.Equal(t, 10*time.Second, pool.retryDelay(2))
	assert.Equal(t, 20*time.Second, pool.retryDelay(3))
}
