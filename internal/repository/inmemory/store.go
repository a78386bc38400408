// Package inmemory is a fake repository.JobStore backed by plain maps,
// used by the scheduler loop and usecase tests in place of a real postgres
// instance. It enforces the same invariants the postgres
// implementation enforces (duplicate job_id -> ErrConflict, terminal status
// is monotone) so tests exercising it see the same contract.
package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/callcron/scheduler/internal/domain"
	"github.com/callcron/scheduler/internal/repository"
)

type Store struct {
	mu         sync.Mutex
	jobs       map[string]*domain.Job
	executions map[string]*domain.Execution
}

var _ repository.JobStore = (*Store)(nil)

func New() *Store {
	return &Store{
		jobs:       make(map[string]*domain.Job),
		executions: make(map[string]*domain.Execution),
	}
}

func cloneJob(j *domain.Job) *domain.Job {
	cp := *j
	return &cp
}

func cloneExecution(e *domain.Execution) *domain.Execution {
	cp := *e
	if e.ActualStartAt != nil {
		t := *e.ActualStartAt
		cp.ActualStartAt = &t
	}
	if e.FinishedAt != nil {
		t := *e.FinishedAt
		cp.FinishedAt = &t
	}
	if e.HTTPStatus != nil {
		v := *e.HTTPStatus
		cp.HTTPStatus = &v
	}
	if e.DurationMS != nil {
		v := *e.DurationMS
		cp.DurationMS = &v
	}
	if e.ErrorMessage != nil {
		v := *e.ErrorMessage
		cp.ErrorMessage = &v
	}
	return &cp
}

func (s *Store) ListActiveJobs(ctx context.Context) ([]*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Job
	for _, j := range s.jobs {
		if j.Active {
			out = append(out, cloneJob(j))
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

func (s *Store) ListJobs(ctx context.Context) ([]*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Job
	for _, j := range s.jobs {
		out = append(out, cloneJob(j))
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	return out, nil
}

func (s *Store) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneJob(j), nil
}

func (s *Store) CreateJob(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return nil, repository.ErrConflict
	}
	now := job.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	j := cloneJob(job)
	j.CreatedAt, j.UpdatedAt = now, now
	s.jobs[j.ID] = j
	return cloneJob(j), nil
}

func (s *Store) SetActive(ctx context.Context, jobID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return repository.ErrNotFound
	}
	j.Active = active
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) DeleteJob(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return repository.ErrNotFound
	}
	delete(s.jobs, jobID)
	return nil
}

func (s *Store) UpsertExecution(ctx context.Context, exec *domain.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions[exec.ID] = cloneExecution(exec)
	return nil
}

func (s *Store) RecordAttemptStart(ctx context.Context, executionID string, actualStart time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.executions[executionID]
	if !ok {
		return repository.ErrNotFound
	}
	if e.Status != domain.StatusPending {
		return nil
	}
	e.Status = domain.StatusRunning
	t := actualStart
	e.ActualStartAt = &t
	return nil
}

func (s *Store) UpdateExecutionTerminal(ctx context.Context, executionID string, status domain.ExecutionStatus, httpStatus *int, durationMS *int64, finishedAt time.Time, errMsg *string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.executions[executionID]
	if !ok {
		return false, repository.ErrNotFound
	}
	if e.Status.Terminal() {
		return false, nil
	}
	e.Status = status
	e.HTTPStatus = httpStatus
	e.DurationMS = durationMS
	ft := finishedAt
	e.FinishedAt = &ft
	e.ErrorMessage = errMsg
	return true, nil
}

func (s *Store) ListExecutions(ctx context.Context, jobID string, limit int) ([]*domain.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Execution
	for _, e := range s.executions {
		if e.JobID == jobID {
			out = append(out, cloneExecution(e))
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ScheduledTime.After(out[k].ScheduledTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
