package queue

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/praedium/internal/interfaces"
	"github.com/ternarybob/praedium/internal/models"
)

func openTestBadger(t *testing.T, dir string) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	require.NoError(t, err)
	return db
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	db := openTestBadger(t, t.TempDir())
	t.Cleanup(func() { db.Close() })

	m, err := NewManager(db, "test_queue")
	require.NoError(t, err)
	return m
}

// fakePropertyStorage is an in-memory PropertyStorage for queue tests
type fakePropertyStorage struct {
	mu        sync.Mutex
	completed map[string]int
}

func newFakePropertyStorage() *fakePropertyStorage {
	return &fakePropertyStorage{completed: make(map[string]int)}
}

func (f *fakePropertyStorage) UpsertProperties(ctx context.Context, records []models.PropertyRecord) error {
	return nil
}

func (f *fakePropertyStorage) GetProperty(ctx context.Context, parcelID string) (*models.PropertyRecord, error) {
	return nil, nil
}

func (f *fakePropertyStorage) SearchProperties(ctx context.Context, query string, limit int) ([]models.PropertyRecord, error) {
	return nil, nil
}

func (f *fakePropertyStorage) CountProperties(ctx context.Context) (int, error) {
	return 0, nil
}

func (f *fakePropertyStorage) IsTermCompleted(ctx context.Context, searchTerm string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count, ok := f.completed[strings.ToLower(searchTerm)]
	return ok && count > 0, nil
}

func (f *fakePropertyStorage) MarkTermCompleted(ctx context.Context, searchTerm string, resultCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed[strings.ToLower(searchTerm)] = resultCount
	return nil
}

// fakeJobStorage is an in-memory JobStorage for queue tests
type fakeJobStorage struct {
	mu   sync.Mutex
	jobs map[string]*models.ScrapeJob
}

func newFakeJobStorage() *fakeJobStorage {
	return &fakeJobStorage{jobs: make(map[string]*models.ScrapeJob)}
}

func (f *fakeJobStorage) SaveJob(ctx context.Context, job *models.ScrapeJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *job
	f.jobs[job.ID] = &clone
	return nil
}

func (f *fakeJobStorage) GetJob(ctx context.Context, jobID string) (*models.ScrapeJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, nil
	}
	clone := *job
	return &clone, nil
}

func (f *fakeJobStorage) ListJobs(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.ScrapeJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ScrapeJob
	for _, job := range f.jobs {
		if opts != nil && opts.Status != "" && job.Status != opts.Status {
			continue
		}
		clone := *job
		out = append(out, &clone)
	}
	return out, nil
}

func (f *fakeJobStorage) CountJobsByStatus(ctx context.Context, status models.JobStatus) (int, error) {
	jobs, _ := f.ListJobs(ctx, &interfaces.JobListOptions{Status: status})
	return len(jobs), nil
}

func (f *fakeJobStorage) RecordJobOutcome(ctx context.Context, job *models.ScrapeJob) error {
	return f.SaveJob(ctx, job)
}

// LastCompletionAt scans saved jobs the way the badger store does, so a
// terminal failure written through SaveJob counts toward the cooldown too.
func (f *fakeJobStorage) LastCompletionAt(ctx context.Context, searchTerm string) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest time.Time
	for _, job := range f.jobs {
		if !strings.EqualFold(job.SearchTerm, searchTerm) || job.CompletedAt == nil {
			continue
		}
		if job.Status != models.JobStatusCompleted && job.Status != models.JobStatusFailed {
			continue
		}
		if job.CompletedAt.After(latest) {
			latest = *job.CompletedAt
		}
	}
	return latest, nil
}

func (f *fakeJobStorage) PruneTerminalJobs(ctx context.Context, keepCompleted, keepFailed int) (int, error) {
	return 0, nil
}
