// Package scheduler implements a single-owner orchestrator loop: it seeds
// the priority queue from the job store, drains due entries, submits them
// to the worker pool, applies the retry/backoff policy to outcomes, and
// reconciles with the store on a refresh interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/callcron/scheduler/internal/cronexpr"
	"github.com/callcron/scheduler/internal/domain"
	"github.com/callcron/scheduler/internal/metrics"
	"github.com/callcron/scheduler/internal/notify"
	"github.com/callcron/scheduler/internal/queue"
	"github.com/callcron/scheduler/internal/repository"
	"github.com/callcron/scheduler/internal/workerpool"
	"github.com/google/uuid"
)

// pollInterval bounds how long a completed worker outcome can sit
// unprocessed when the queue's next due entry is far in the future; it is
// an implementation detail, not a spec configuration knob.
const pollInterval = 200 * time.Millisecond

// maxAcceleratedRefreshRetries bounds the accelerated-retry-at-half-interval
// policy applied after a transient refresh failure.
const maxAcceleratedRefreshRetries = 3

// storeRetryDelays is the bounded local retry schedule for a transient
// store write failure.
var storeRetryDelays = []time.Duration{100 * time.Millisecond, 300 * time.Millisecond, 900 * time.Millisecond}

// Config tunes the loop.
type Config struct {
	MaxRetries      int
	RefreshInterval time.Duration
	BackoffCap      time.Duration
	RequestTimeout  time.Duration
}

type dispatchRequest struct {
	jobID    string
	resultCh chan dispatchResult
}

type dispatchResult struct {
	executionID string
	err         error
}

// Loop is the single-owner scheduler: it owns the priority queue, the
// worker pool, and all in-memory job/expression state.
type Loop struct {
	store    repository.JobStore
	queue    *queue.PriorityQueue
	pool     *workerpool.Pool
	notifier notify.Notifier
	logger   *slog.Logger
	cfg      Config

	mu    sync.Mutex
	jobs  map[string]*domain.Job
	exprs map[string]*cronexpr.Expression

	rngMu sync.Mutex
	rng   *rand.Rand

	reloadCh   chan struct{}
	dispatchCh chan dispatchRequest

	// interrupt is set once Run starts; DispatchNow pings it so a pending
	// request is handled without waiting for the next refresh/poll tick.
	interrupt atomic.Pointer[chan struct{}]
}

func New(store repository.JobStore, q *queue.PriorityQueue, pool *workerpool.Pool, notifier notify.Notifier, logger *slog.Logger, cfg Config) *Loop {
	l := &Loop{
		store:      store,
		queue:      q,
		pool:       pool,
		notifier:   notifier,
		logger:     logger.With("component", "scheduler"),
		cfg:        cfg,
		jobs:       make(map[string]*domain.Job),
		exprs:      make(map[string]*cronexpr.Expression),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		reloadCh:   make(chan struct{}, 1),
		dispatchCh: make(chan dispatchRequest, 8),
	}
	pool.SetStartHook(l.recordAttemptStart)
	return l
}

// ReloadJobs triggers an immediate refresh instead of waiting for the next
// tick.
func (l *Loop) ReloadJobs() {
	select {
	case l.reloadCh <- struct{}{}:
	default:
	}
}

// DispatchNow schedules an ad-hoc occurrence bypassing the CRON expression.
// It blocks until the request has been accepted by the loop or ctx is done.
func (l *Loop) DispatchNow(ctx context.Context, jobID string) (string, error) {
	req := dispatchRequest{jobID: jobID, resultCh: make(chan dispatchResult, 1)}
	select {
	case l.dispatchCh <- req:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	if ch := l.interrupt.Load(); ch != nil {
		nonBlockingSend(*ch)
	}
	select {
	case res := <-req.resultCh:
		return res.executionID, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Pause and Resume toggle active and trigger a reload.
func (l *Loop) Pause(ctx context.Context, jobID string) error {
	if err := l.store.SetActive(ctx, jobID, false); err != nil {
		return err
	}
	l.ReloadJobs()
	return nil
}

func (l *Loop) Resume(ctx context.Context, jobID string) error {
	if err := l.store.SetActive(ctx, jobID, true); err != nil {
		return err
	}
	l.ReloadJobs()
	return nil
}

// Run seeds the queue and then drives the main cycle until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	metrics.SchedulerStartTime.Set(float64(time.Now().Unix()))
	if err := l.refresh(ctx); err != nil {
		return fmt.Errorf("initial seed: %w", err)
	}

	ticker := time.NewTicker(l.cfg.RefreshInterval)
	defer ticker.Stop()
	pollTicker := time.NewTicker(pollInterval)
	defer pollTicker.Stop()

	var refreshRequested atomic.Bool
	refreshFailures := 0
	interrupt := make(chan struct{}, 1)
	l.interrupt.Store(&interrupt)
	defer l.interrupt.Store(nil)
	go func() {
		for {
			select {
			case <-ctx.Done():
				close(interrupt)
				return
			case <-ticker.C:
				refreshRequested.Store(true)
				nonBlockingSend(interrupt)
			case <-l.reloadCh:
				refreshRequested.Store(true)
				nonBlockingSend(interrupt)
			case <-pollTicker.C:
				// Wakes the loop to drain worker outcomes even when the
				// queue's next due entry is far in the future; does not
				// itself request a refresh.
				nonBlockingSend(interrupt)
			}
		}
	}()

	for {
		for drained := false; !drained; {
			select {
			case req := <-l.dispatchCh:
				l.handleDispatchNow(ctx, req)
			default:
				drained = true
			}
		}

		metrics.QueueDepth.Set(float64(l.queue.Len()))
		due := l.queue.WaitUntilDue(time.Now, interrupt)
		if ctx.Err() != nil {
			metrics.SchedulerShutdownsTotal.Inc()
			return ctx.Err()
		}

		if due {
			l.drainDue(ctx)
		}
		if refreshRequested.CompareAndSwap(true, false) {
			if err := l.refresh(ctx); err != nil {
				l.logger.Error("refresh failed", "error", err)
				if refreshFailures < maxAcceleratedRefreshRetries {
					refreshFailures++
					time.AfterFunc(l.cfg.RefreshInterval/2, func() {
						refreshRequested.Store(true)
						nonBlockingSend(interrupt)
					})
				}
			} else {
				refreshFailures = 0
			}
		}

		l.pollOutcomes(ctx)
	}
}

func nonBlockingSend(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// handleDispatchNow looks up the job, assigns an execution_id up front so
// the caller receives it synchronously, and pushes an ad-hoc entry with
// scheduled_for = now, attempt = 1.
func (l *Loop) handleDispatchNow(ctx context.Context, req dispatchRequest) {
	job, err := l.store.GetJob(ctx, req.jobID)
	if err != nil {
		req.resultCh <- dispatchResult{err: err}
		return
	}
	now := time.Now().UTC()
	executionID := uuid.NewString()
	l.queue.Push(&queue.Entry{
		JobID:              job.ID,
		ScheduledFor:       now,
		Attempt:            1,
		OriginScheduledFor: now,
		ExecutionID:        executionID,
	})
	req.resultCh <- dispatchResult{executionID: executionID}
}

// drainDue pops every currently-due entry and hands it to dispatch, which
// submits it to the worker pool and writes the PENDING execution row only
// after the pool has accepted the task.
func (l *Loop) drainDue(ctx context.Context) {
	now := time.Now()
	for {
		entry, ok := l.queue.PopIfDue(now)
		if !ok {
			return
		}
		l.dispatch(ctx, entry)
	}
}

func (l *Loop) dispatch(ctx context.Context, entry *queue.Entry) {
	job := l.lookupJob(entry.JobID)
	if job == nil || !job.Active {
		// Refresh raced with a deletion/deactivation; drop silently.
		return
	}

	executionID := entry.ExecutionID
	if executionID == "" {
		executionID = uuid.NewString()
	}

	task := workerpool.Task{
		ExecutionID:        executionID,
		JobID:              job.ID,
		TargetURL:          job.TargetURL,
		Attempt:            entry.Attempt,
		ScheduledFor:       entry.ScheduledFor,
		OriginScheduledFor: entry.OriginScheduledFor,
		ExecutionType:      job.ExecutionType,
		PerAttemptTimeout:  l.cfg.RequestTimeout,
	}

	start := time.Now()
	if err := l.pool.Submit(task); err != nil {
		if errors.Is(err, workerpool.ErrSaturated) {
			metrics.PoolSaturatedTotal.Inc()
			l.logger.Warn("worker pool saturated, re-enqueuing", "job_id", job.ID)
			entry.ScheduledFor = time.Now().Add(100 * time.Millisecond)
			l.queue.Push(entry)
			return
		}
		l.logger.Error("submit failed", "job_id", job.ID, "error", err)
		return
	}
	metrics.DispatchLatency.Observe(time.Since(start).Seconds())

	exec := &domain.Execution{
		ID:            executionID,
		JobID:         job.ID,
		ScheduledTime: entry.OriginScheduledFor,
		Status:        domain.StatusPending,
		Attempt:       entry.Attempt,
	}
	if err := l.upsertExecutionWithRetry(ctx, exec); err != nil {
		l.logger.Error("persist pending execution failed after retries, degrading to logging only",
			"execution_id", executionID, "job_id", job.ID, "error", err)
	}
}

// pollOutcomes drains completed worker results and applies the retry/backoff
// policy, writing the execution row and rescheduling as needed.
func (l *Loop) pollOutcomes(ctx context.Context) {
	for _, res := range l.pool.Poll() {
		l.applyOutcome(ctx, res)
	}
}

func (l *Loop) applyOutcome(ctx context.Context, res workerpool.Result) {
	task := res.Task
	outcome := res.Outcome

	metrics.ExecutionDuration.WithLabelValues(string(outcome.ErrorKind)).Observe(float64(outcome.DurationMS) / 1000)

	now := time.Now().UTC()
	durationMS := outcome.DurationMS

	if outcome.Success {
		applied, err := l.store.UpdateExecutionTerminal(ctx, task.ExecutionID, domain.StatusSuccess, outcome.HTTPStatus, &durationMS, now, nil)
		if err != nil {
			l.logger.Error("write terminal success failed", "execution_id", task.ExecutionID, "error", err)
		}
		if applied || err == nil {
			metrics.ExecutionsTotal.WithLabelValues(string(domain.StatusSuccess)).Inc()
		}
		l.scheduleNextOccurrence(task.JobID, task.OriginScheduledFor)
		return
	}

	retryable := task.ExecutionType == domain.AtLeastOnce && task.Attempt < l.cfg.MaxRetries+1
	if retryable {
		l.rngMu.Lock()
		delay := backoff(task.Attempt, l.cfg.BackoffCap, l.rng)
		l.rngMu.Unlock()

		errMsg := outcome.ErrorMessage
		_, err := l.store.UpdateExecutionTerminal(ctx, task.ExecutionID, domain.StatusRetrying, outcome.HTTPStatus, &durationMS, now, errMsg)
		if err != nil {
			l.logger.Error("write retrying status failed", "execution_id", task.ExecutionID, "error", err)
		}
		metrics.RetriesTotal.Inc()

		l.queue.Push(&queue.Entry{
			JobID:              task.JobID,
			ScheduledFor:       time.Now().Add(delay),
			Attempt:            task.Attempt + 1,
			OriginScheduledFor: task.OriginScheduledFor,
		})
		return
	}

	applied, err := l.store.UpdateExecutionTerminal(ctx, task.ExecutionID, domain.StatusFailed, outcome.HTTPStatus, &durationMS, now, outcome.ErrorMessage)
	if err != nil {
		l.logger.Error("write terminal failed status failed", "execution_id", task.ExecutionID, "error", err)
	}
	if applied || err == nil {
		metrics.ExecutionsTotal.WithLabelValues(string(domain.StatusFailed)).Inc()
	}
	l.notifyTerminalFailure(ctx, task, outcome, now)
	l.scheduleNextOccurrence(task.JobID, task.OriginScheduledFor)
}

func (l *Loop) notifyTerminalFailure(ctx context.Context, task workerpool.Task, outcome workerpool.Outcome, finishedAt time.Time) {
	if l.notifier == nil {
		return
	}
	job := l.lookupJob(task.JobID)
	if job == nil {
		return
	}
	exec := &domain.Execution{
		ID: task.ExecutionID, JobID: task.JobID, ScheduledTime: task.OriginScheduledFor,
		FinishedAt: &finishedAt, Status: domain.StatusFailed, Attempt: task.Attempt, ErrorMessage: outcome.ErrorMessage,
	}
	if err := l.notifier.NotifyFailure(ctx, job, exec); err != nil {
		l.logger.Warn("operator notification failed", "job_id", job.ID, "error", err)
	}
}

// scheduleNextOccurrence advances from origin, never from now, keeping the
// cadence drift-free.
func (l *Loop) scheduleNextOccurrence(jobID string, origin time.Time) {
	expr := l.lookupExpr(jobID)
	if expr == nil {
		return
	}
	next, err := expr.NextAfter(origin)
	if err != nil {
		l.logger.Error("cannot compute next occurrence", "job_id", jobID, "error", err)
		return
	}
	l.queue.Push(&queue.Entry{JobID: jobID, ScheduledFor: next, Attempt: 1, OriginScheduledFor: next})
}

func (l *Loop) upsertExecutionWithRetry(ctx context.Context, exec *domain.Execution) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = l.store.UpsertExecution(ctx, exec)
		if err == nil || !errors.Is(err, repository.ErrTransient) {
			return err
		}
		if attempt >= len(storeRetryDelays) {
			return err
		}
		time.Sleep(storeRetryDelays[attempt])
	}
}

// recordAttemptStart is the worker pool's start hook: it fires the instant
// an attempt's HTTP call begins, from the worker goroutine. The PENDING row
// written by dispatch() may not have landed yet since Submit returns before
// upsertExecutionWithRetry runs, so a not-found is retried on the same
// schedule as a transient store error rather than treated as permanent.
func (l *Loop) recordAttemptStart(task workerpool.Task, startedAt time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var err error
	for attempt := 0; ; attempt++ {
		err = l.store.RecordAttemptStart(ctx, task.ExecutionID, startedAt)
		if err == nil || (!errors.Is(err, repository.ErrTransient) && !errors.Is(err, repository.ErrNotFound)) {
			break
		}
		if attempt >= len(storeRetryDelays) {
			break
		}
		time.Sleep(storeRetryDelays[attempt])
	}
	if err != nil {
		l.logger.Error("record attempt start failed", "execution_id", task.ExecutionID, "error", err)
		return
	}
	metrics.DriftSeconds.Observe(startedAt.Sub(task.OriginScheduledFor).Seconds())
}

func (l *Loop) lookupJob(jobID string) *domain.Job {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.jobs[jobID]
}

func (l *Loop) lookupExpr(jobID string) *cronexpr.Expression {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.exprs[jobID]
}

// refresh reconciles in-memory state with the store: new/newly-active jobs
// are scheduled from now; changed schedules are re-enqueued from now;
// removed/deactivated jobs have their queue entries dropped.
func (l *Loop) refresh(ctx context.Context) error {
	start := time.Now()
	defer func() { metrics.RefreshCycleDuration.Observe(time.Since(start).Seconds()) }()

	active, err := l.store.ListActiveJobs(ctx)
	if err != nil {
		return fmt.Errorf("%w: list active jobs: %v", repository.ErrTransient, err)
	}

	seen := make(map[string]bool, len(active))
	now := time.Now().UTC()
	var toSchedule []*queue.Entry
	var stale []string

	l.mu.Lock()
	for _, job := range active {
		seen[job.ID] = true
		prevExpr, hadExpr := l.exprs[job.ID]
		l.jobs[job.ID] = job

		if hadExpr && prevExpr.String() == job.Schedule {
			continue
		}

		expr, perr := cronexpr.Parse(job.Schedule)
		if perr != nil {
			l.logger.Error("job has invalid schedule, skipping", "job_id", job.ID, "error", perr)
			continue
		}
		next, nerr := expr.NextAfter(now)
		if nerr != nil {
			l.logger.Error("job is unschedulable, skipping", "job_id", job.ID, "error", nerr)
			continue
		}
		l.exprs[job.ID] = expr
		toSchedule = append(toSchedule, &queue.Entry{JobID: job.ID, ScheduledFor: next, Attempt: 1, OriginScheduledFor: next})
	}

	for jobID := range l.jobs {
		if !seen[jobID] {
			stale = append(stale, jobID)
			delete(l.jobs, jobID)
			delete(l.exprs, jobID)
		}
	}
	l.mu.Unlock()

	for _, entry := range toSchedule {
		l.queue.Push(entry)
	}
	for _, jobID := range stale {
		l.queue.Remove(jobID)
	}
	return nil
}
