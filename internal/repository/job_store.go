package repository

import (
	"context"
	"errors"
	"time"

	"github.com/callcron/scheduler/internal/domain"
)

var (
	// ErrNotFound means the requested row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict means an optimistic write lost a race.
	ErrConflict = errors.New("store: conflict")
	// ErrTransient means a retryable I/O failure; callers decide whether to
	// retry or surface it.
	ErrTransient = errors.New("store: transient")
)

// JobStore is the durable storage contract the scheduling core depends on.
// The core only ever sees this interface, never a concrete database; reads
// may be eventually consistent with writes of the same transaction.
type JobStore interface {
	// ListActiveJobs returns a snapshot of every job with active = true.
	ListActiveJobs(ctx context.Context) ([]*domain.Job, error)
	// GetJob is a point read by job ID, active or not.
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)

	// UpsertExecution is idempotent by ExecutionID.
	UpsertExecution(ctx context.Context, exec *domain.Execution) error
	// UpdateExecutionTerminal is a single-row update guarded by the row
	// still being non-terminal; applied reports whether the write took
	// effect.
	UpdateExecutionTerminal(ctx context.Context, executionID string, status domain.ExecutionStatus, httpStatus *int, durationMS *int64, finishedAt time.Time, errMsg *string) (applied bool, err error)
	// RecordAttemptStart transitions PENDING -> RUNNING.
	RecordAttemptStart(ctx context.Context, executionID string, actualStart time.Time) error

	// CreateJob validates nothing itself — the caller (usecase layer) is
	// responsible for rejecting an invalid schedule/URL before this is
	// ever called.
	CreateJob(ctx context.Context, job *domain.Job) (*domain.Job, error)
	ListJobs(ctx context.Context) ([]*domain.Job, error)
	SetActive(ctx context.Context, jobID string, active bool) error
	DeleteJob(ctx context.Context, jobID string) error
	ListExecutions(ctx context.Context, jobID string, limit int) ([]*domain.Execution, error)
}
