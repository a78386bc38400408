package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/callcron/scheduler/internal/domain"
	"github.com/callcron/scheduler/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgUniqueViolation is postgres' error code for a unique/pkey constraint
// hit; used to turn a duplicate job_id or execution_id insert into
// repository.ErrConflict instead of a bare driver error.
const pgUniqueViolation = "23505"

// JobStore is the pgx-backed implementation of repository.JobStore: one
// scan* helper per row shape, pgx.ErrNoRows mapped to a package sentinel,
// pgconn.PgError inspected for constraint violations.
type JobStore struct {
	pool *pgxpool.Pool
}

var _ repository.JobStore = (*JobStore)(nil)

func NewJobStore(pool *pgxpool.Pool) *JobStore {
	return &JobStore{pool: pool}
}

func (s *JobStore) ListActiveJobs(ctx context.Context) ([]*domain.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, schedule, target_url, execution_type, active, created_at, updated_at
		FROM jobs
		WHERE active = true
		ORDER BY id`)
	if err != nil {
		return nil, wrapTransient("list active jobs", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (s *JobStore) ListJobs(ctx context.Context) ([]*domain.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, schedule, target_url, execution_type, active, created_at, updated_at
		FROM jobs
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, wrapTransient("list jobs", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (s *JobStore) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, schedule, target_url, execution_type, active, created_at, updated_at
		FROM jobs WHERE id = $1`, jobID)
	return scanJob(row)
}

func (s *JobStore) CreateJob(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO jobs (id, schedule, target_url, execution_type, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, schedule, target_url, execution_type, active, created_at, updated_at`,
		job.ID, job.Schedule, job.TargetURL, job.ExecutionType, job.Active)

	created, err := scanJob(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, repository.ErrConflict
		}
		return nil, err
	}
	return created, nil
}

func (s *JobStore) SetActive(ctx context.Context, jobID string, active bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET active = $2, updated_at = NOW() WHERE id = $1`,
		jobID, active)
	if err != nil {
		return wrapTransient("set job active", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *JobStore) DeleteJob(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, jobID)
	if err != nil {
		return wrapTransient("delete job", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpsertExecution inserts a new execution row, or on conflict (a repeated
// write of the same ExecutionID, e.g. a retry after a transient error whose
// first insert had in fact landed) overwrites the mutable fields only.
func (s *JobStore) UpsertExecution(ctx context.Context, exec *domain.Execution) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO job_executions
			(id, job_id, scheduled_time, actual_start_at, finished_at, status,
			 http_status, duration_ms, attempt, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			actual_start_at = EXCLUDED.actual_start_at,
			finished_at     = EXCLUDED.finished_at,
			status          = EXCLUDED.status,
			http_status     = EXCLUDED.http_status,
			duration_ms     = EXCLUDED.duration_ms,
			attempt         = EXCLUDED.attempt,
			error_message   = EXCLUDED.error_message`,
		exec.ID, exec.JobID, exec.ScheduledTime, exec.ActualStartAt, exec.FinishedAt,
		exec.Status, exec.HTTPStatus, exec.DurationMS, exec.Attempt, exec.ErrorMessage)
	if err != nil {
		return wrapTransient("upsert execution", err)
	}
	return nil
}

func (s *JobStore) RecordAttemptStart(ctx context.Context, executionID string, actualStart time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE job_executions
		SET status = $2, actual_start_at = $3
		WHERE id = $1 AND status = $4`,
		executionID, domain.StatusRunning, actualStart, domain.StatusPending)
	if err != nil {
		return wrapTransient("record attempt start", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpdateExecutionTerminal writes a terminal (or RETRYING) status guarded by
// the row not already being terminal: once SUCCESS or FAILED, a row never
// changes again.
func (s *JobStore) UpdateExecutionTerminal(ctx context.Context, executionID string, status domain.ExecutionStatus, httpStatus *int, durationMS *int64, finishedAt time.Time, errMsg *string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE job_executions
		SET status = $2, http_status = $3, duration_ms = $4, finished_at = $5, error_message = $6
		WHERE id = $1 AND status NOT IN ($7, $8)`,
		executionID, status, httpStatus, durationMS, finishedAt, errMsg,
		domain.StatusSuccess, domain.StatusFailed)
	if err != nil {
		return false, wrapTransient("update execution terminal", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *JobStore) ListExecutions(ctx context.Context, jobID string, limit int) ([]*domain.Execution, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, job_id, scheduled_time, actual_start_at, finished_at, status,
		       http_status, duration_ms, attempt, error_message
		FROM job_executions
		WHERE job_id = $1
		ORDER BY scheduled_time DESC
		LIMIT $2`, jobID, limit)
	if err != nil {
		return nil, wrapTransient("list executions", err)
	}
	defer rows.Close()

	var out []*domain.Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapTransient("list executions", err)
	}
	return out, nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var j domain.Job
	err := row.Scan(&j.ID, &j.Schedule, &j.TargetURL, &j.ExecutionType, &j.Active, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	return &j, nil
}

func scanJobs(rows pgx.Rows) ([]*domain.Job, error) {
	var out []*domain.Job
	for rows.Next() {
		var j domain.Job
		if err := rows.Scan(&j.ID, &j.Schedule, &j.TargetURL, &j.ExecutionType, &j.Active, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, &j)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapTransient("scan jobs", err)
	}
	return out, nil
}

func scanExecution(row pgx.Row) (*domain.Execution, error) {
	var e domain.Execution
	err := row.Scan(&e.ID, &e.JobID, &e.ScheduledTime, &e.ActualStartAt, &e.FinishedAt,
		&e.Status, &e.HTTPStatus, &e.DurationMS, &e.Attempt, &e.ErrorMessage)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan execution: %w", err)
	}
	return &e, nil
}

func wrapTransient(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, repository.ErrTransient, err)
}
