package batch

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"
)

var (
	// ErrJobNotFound is returned when a job id is unknown to the store.
	ErrJobNotFound = errors.New("batch: job not found")

	// ErrJobOverflow is returned when more artifacts are submitted than the job
	// has remaining.
	ErrJobOverflow = errors.New("batch: artifacts exceed declared job total")

	// ErrJobClosed is returned when running a job that already reached a
	// terminal status.
	ErrJobClosed = errors.New("batch: job is closed")

	// ErrInvalidTotal is returned by Declare for a non-positive total.
	ErrInvalidTotal = errors.New("batch: job total must be positive")
)

// Status is the lifecycle state of a Job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further progress is accepted.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job tracks a declared batch.
type Job struct {
	ID        string    `json:"id"`
	Total     int       `json:"total"`
	Processed int       `json:"processed"`
	Accepted  int       `json:"accepted"`
	Rejected  int       `json:"rejected"`
	Reserved  int       `json:"reserved,omitempty"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Remaining returns how many artifacts may still be submitted. Artifacts of
// runs still in flight count as taken.
func (j Job) Remaining() int {
	return j.Total - j.Processed - j.Reserved
}

// reserve claims n submissions for a run.
func (j *Job) reserve(n int) error {
	if j.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrJobClosed, j.ID, j.Status)
	}
	if n > j.Remaining() {
		return fmt.Errorf("%w: %d submitted, %d remaining", ErrJobOverflow, n, j.Remaining())
	}
	j.Reserved += n
	return nil
}

// release returns n reservations that were never processed.
func (j *Job) release(n int) {
	j.Reserved -= min(n, j.Reserved)
}

// record applies one processed item.
func (j *Job) record(accepted bool, now time.Time) {
	j.Processed++
	j.release(1)
	if accepted {
		j.Accepted++
	} else {
		j.Rejected++
	}
	if j.Processed >= j.Total && j.Status == StatusPending {
		j.Status = StatusCompleted
	}
	j.UpdatedAt = now
}

// fail marks the job failed unless it already completed.
func (j *Job) fail(err error, now time.Time) {
	if j.Status == StatusCompleted {
		return
	}
	j.Status = StatusFailed
	j.Error = err.Error()
	j.UpdatedAt = now
}

// JobStore persists job state.
//
// Update applies fn atomically to the stored job; if fn returns an error the
// job is left unchanged.
type JobStore interface {
	Create(ctx context.Context, job Job) error
	Get(ctx context.Context, id string) (Job, error)
	Update(ctx context.Context, id string, fn func(*Job) error) (Job, error)
}

// MemoryJobStore is an in-process JobStore.
type MemoryJobStore struct {
	mu   sync.Mutex
	jobs map[string]Job
}

// NewMemoryJobStore creates an empty store.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]Job)}
}

// Create implements JobStore.
func (s *MemoryJobStore) Create(_ context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[job.ID] = job
	return nil
}

// Get implements JobStore.
func (s *MemoryJobStore) Get(_ context.Context, id string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return job, nil
}

// Update implements JobStore.
func (s *MemoryJobStore) Update(_ context.Context, id string, fn func(*Job) error) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	if err := fn(&job); err != nil {
		return Job{}, err
	}
	s.jobs[id] = job
	return job, nil
}

// Jobs returns a copy of all stored jobs keyed by id.
func (s *MemoryJobStore) Jobs() map[string]Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	return maps.Clone(s.jobs)
}
