package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/praedium/internal/models"
)

// ErrNoJob is returned when no job is ready for dequeue
var ErrNoJob = errors.New("no jobs ready in queue")

// ErrJobGone is returned when a removal target was already claimed or removed
var ErrJobGone = errors.New("job no longer queued")

// queuedJob wraps a ScrapeJob with queue bookkeeping
type queuedJob struct {
	Job        models.ScrapeJob `json:"job"`
	ReadyAt    time.Time        `json:"ready_at"`
	EnqueuedAt time.Time        `json:"enqueued_at"`
}

// Manager implements a persistent priority queue on BadgerDB.
//
// Jobs are stored at queue:{name}:job:{id} and indexed at
// queue:{name}:index:{priority}:{readyAt}:{id} with zero-padded numeric
// segments, so a prefix iteration visits ready jobs in priority order
// (earliest readyAt breaking ties). Delayed retries are ordinary entries
// whose readyAt lies in the future.
type Manager struct {
	db        *badger.DB
	queueName string
}

// NewManager creates a Badger-backed queue manager
func NewManager(db *badger.DB, queueName string) (*Manager, error) {
	if db == nil {
		return nil, errors.New("badger db is required")
	}
	if queueName == "" {
		return nil, errors.New("queue name is required")
	}
	return &Manager{db: db, queueName: queueName}, nil
}

// Enqueue adds a waiting job, immediately ready for dequeue
func (m *Manager) Enqueue(ctx context.Context, job *models.ScrapeJob) error {
	return m.enqueueAt(job, time.Now())
}

// EnqueueDelayed adds a job that becomes ready after the given delay
func (m *Manager) EnqueueDelayed(ctx context.Context, job *models.ScrapeJob, delay time.Duration) error {
	return m.enqueueAt(job, time.Now().Add(delay))
}

func (m *Manager) enqueueAt(job *models.ScrapeJob, readyAt time.Time) error {
	if job.ID == "" {
		return errors.New("job ID is required")
	}

	qj := queuedJob{
		Job:        *job,
		ReadyAt:    readyAt,
		EnqueuedAt: time.Now(),
	}

	data, err := json.Marshal(qj)
	if err != nil {
		return fmt.Errorf("failed to marshal queued job: %w", err)
	}

	return m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(m.jobKey(job.ID), data); err != nil {
			return err
		}
		return txn.Set(m.indexKey(job.Priority, readyAt, job.ID), []byte{})
	})
}

// Receive claims the highest-priority ready job and removes it from the
// queue atomically: no two callers can claim the same job. The claimed
// job's lifecycle continues in job storage, not here.
func (m *Manager) Receive(ctx context.Context) (*models.ScrapeJob, error) {
	var claimed *models.ScrapeJob

	err := m.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(m.indexPrefix())
		it := txn.NewIterator(opts)
		defer it.Close()

		now := time.Now()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			indexKey := it.Item().KeyCopy(nil)

			_, readyAt, id, err := m.parseIndexKey(indexKey)
			if err != nil {
				continue
			}
			// Keys are priority-major, so a not-yet-ready entry does not
			// end the scan: a lower-priority job may already be ready
			if readyAt.After(now) {
				continue
			}

			item, err := txn.Get(m.jobKey(id))
			if err != nil {
				if err == badger.ErrKeyNotFound {
					// Orphaned index entry, clean it up
					if delErr := txn.Delete(indexKey); delErr != nil {
						return delErr
					}
					continue
				}
				return err
			}

			var qj queuedJob
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &qj)
			}); err != nil {
				return err
			}

			if err := txn.Delete(indexKey); err != nil {
				return err
			}
			if err := txn.Delete(m.jobKey(id)); err != nil {
				return err
			}

			claimed = &qj.Job
			return nil
		}

		return ErrNoJob
	})

	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Remove deletes a queued job by ID. Returns ErrJobGone when a worker
// claimed it first; dedup counts that as a removal failure, not an error.
func (m *Manager) Remove(ctx context.Context, jobID string) error {
	return m.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(m.jobKey(jobID))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ErrJobGone
			}
			return err
		}

		var qj queuedJob
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &qj)
		}); err != nil {
			return err
		}

		if err := txn.Delete(m.indexKey(qj.Job.Priority, qj.ReadyAt, jobID)); err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Delete(m.jobKey(jobID))
	})
}

// ListPending returns all queued jobs (waiting and delayed). Status is set
// from readyAt so callers see the current lifecycle state.
func (m *Manager) ListPending(ctx context.Context) ([]*models.ScrapeJob, error) {
	var jobs []*models.ScrapeJob

	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := []byte(m.jobPrefix())
		it := txn.NewIterator(opts)
		defer it.Close()

		now := time.Now()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var qj queuedJob
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &qj)
			}); err != nil {
				return err
			}

			job := qj.Job
			if qj.ReadyAt.After(now) {
				job.Status = models.JobStatusDelayed
			} else {
				job.Status = models.JobStatusWaiting
			}
			jobs = append(jobs, &job)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// HasPending reports whether any queued job exists for a search term
func (m *Manager) HasPending(ctx context.Context, searchTerm string) (bool, error) {
	jobs, err := m.ListPending(ctx)
	if err != nil {
		return false, err
	}
	for _, j := range jobs {
		if strings.EqualFold(j.SearchTerm, searchTerm) {
			return true, nil
		}
	}
	return false, nil
}

// Counts returns the number of waiting and delayed jobs
func (m *Manager) Counts(ctx context.Context) (waiting, delayed int, err error) {
	jobs, err := m.ListPending(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, j := range jobs {
		if j.Status == models.JobStatusDelayed {
			delayed++
		} else {
			waiting++
		}
	}
	return waiting, delayed, nil
}

// Key helpers

func (m *Manager) jobPrefix() string {
	return fmt.Sprintf("queue:%s:job:", m.queueName)
}

func (m *Manager) jobKey(id string) []byte {
	return []byte(m.jobPrefix() + id)
}

func (m *Manager) indexPrefix() string {
	return fmt.Sprintf("queue:%s:index:", m.queueName)
}

// indexKey zero-pads priority and timestamp so lexicographic key order is
// numeric order. Negative priorities clamp to zero.
func (m *Manager) indexKey(priority int, readyAt time.Time, id string) []byte {
	if priority < 0 {
		priority = 0
	}
	return []byte(fmt.Sprintf("%s%06d:%020d:%s", m.indexPrefix(), priority, readyAt.UnixNano(), id))
}

func (m *Manager) parseIndexKey(key []byte) (priority int, readyAt time.Time, id string, err error) {
	suffix := string(key[len(m.indexPrefix()):])
	parts := strings.SplitN(suffix, ":", 3)
	if len(parts) != 3 {
		return 0, time.Time{}, "", fmt.Errorf("invalid index key: %s", key)
	}

	priority, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, time.Time{}, "", err
	}

	ns, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, time.Time{}, "", err
	}

	return priority, time.Unix(0, ns), parts[2], nil
}
