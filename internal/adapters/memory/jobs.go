package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"scanbridge/internal/domain"
)

// JobStore keeps bridge jobs for the life of the process. Jobs are never evicted.
type JobStore struct {
	mu    sync.Mutex
	jobs  map[string]*domain.Job
	order []string
}

func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*domain.Job)}
}

func (s *JobStore) Create(ctx context.Context, job domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	s.jobs[job.ID] = &job
	s.order = append(s.order, job.ID)
	return nil
}

// ClaimNext scans in submission order and claims the first QUEUED job.
func (s *JobStore) ClaimNext(ctx context.Context, worker string, now time.Time) (domain.Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		job := s.jobs[id]
		if job.State != domain.JobQueued {
			continue
		}
		job.State = domain.JobRunning
		job.AssignedTo = &worker
		job.UpdatedAt = now
		return snapshot(job), true, nil
	}
	return domain.Job{}, false, nil
}

func (s *JobStore) Complete(ctx context.Context, jobID string, outcome domain.Outcome, now time.Time) (domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return domain.Job{}, domain.ErrNotFound
	}
	if job.State.Terminal() {
		return snapshot(job), nil
	}
	ok = outcome.OK
	job.OK = &ok
	job.ExitCode = outcome.ExitCode
	job.Stdout = outcome.Stdout
	job.Stderr = outcome.Stderr
	job.OutputFiles = slices.Clone(outcome.OutputFiles)
	if job.OutputFiles == nil {
		job.OutputFiles = []string{}
	}
	job.State = domain.JobFailed
	if outcome.OK {
		job.State = domain.JobDone
	}
	job.UpdatedAt = now
	return snapshot(job), nil
}

func (s *JobStore) Get(ctx context.Context, jobID string) (domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return domain.Job{}, domain.ErrNotFound
	}
	return snapshot(job), nil
}

// snapshot copies the job so callers never share mutable state with the store.
func snapshot(job *domain.Job) domain.Job {
	out := *job
	if job.AssignedTo != nil {
		w := *job.AssignedTo
		out.AssignedTo = &w
	}
	if job.OK != nil {
		ok := *job.OK
		out.OK = &ok
	}
	if job.ExitCode != nil {
		c := *job.ExitCode
		out.ExitCode = &c
	}
	if job.ScanIndex != nil {
		i := *job.ScanIndex
		out.ScanIndex = &i
	}
	out.OutputFiles = slices.Clone(job.OutputFiles)
	return out
}
