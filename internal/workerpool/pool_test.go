package workerpool_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/callcron/scheduler/internal/domain"
	"github.com/callcron/scheduler/internal/workerpool"
)

func newPool(t *testing.T, cfg workerpool.Config) *workerpool.Pool {
	t.Helper()
	if cfg.MaxWorkers == 0 {
		cfg.MaxWorkers = 2
	}
	if cfg.BacklogSize == 0 {
		cfg.BacklogSize = 4
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 2 * time.Second
	}
	if cfg.ResponseCaptureBytes == 0 {
		cfg.ResponseCaptureBytes = 4096
	}
	p := workerpool.New(cfg, slog.Default())
	p.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		p.Shutdown(ctx, true)
	})
	return p
}

func awaitResult(t *testing.T, p *workerpool.Pool) workerpool.Result {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if rs := p.Poll(); len(rs) > 0 {
			return rs[0]
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for a result")
	return workerpool.Result{}
}

func TestSubmit_SuccessOutcome(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := newPool(t, workerpool.Config{})
	err := p.Submit(workerpool.Task{
		ExecutionID:       "e1",
		JobID:             "j1",
		TargetURL:         srv.URL,
		Attempt:           1,
		PerAttemptTimeout: time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}

	res := awaitResult(t, p)
	if !res.Outcome.Success {
		t.Fatalf("expected success, got %+v", res.Outcome)
	}
	if res.Outcome.HTTPStatus == nil || *res.Outcome.HTTPStatus != 200 {
		t.Fatalf("expected http status 200, got %+v", res.Outcome.HTTPStatus)
	}
}

func TestSubmit_BadStatusIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	p := newPool(t, workerpool.Config{})
	if err := p.Submit(workerpool.Task{TargetURL: srv.URL, PerAttemptTimeout: time.Second}); err != nil {
		t.Fatal(err)
	}

	res := awaitResult(t, p)
	if res.Outcome.Success {
		t.Fatal("expected failure for 500 response")
	}
	if res.Outcome.ErrorKind != domain.ErrorBadStatus {
		t.Fatalf("expected BadStatus, got %s", res.Outcome.ErrorKind)
	}
	if res.Outcome.ErrorMessage == nil || *res.Outcome.ErrorMessage != "boom" {
		t.Fatalf("expected captured body, got %+v", res.Outcome.ErrorMessage)
	}
}

func TestSubmit_RedirectIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	defer srv.Close()

	p := newPool(t, workerpool.Config{})
	if err := p.Submit(workerpool.Task{TargetURL: srv.URL, PerAttemptTimeout: time.Second}); err != nil {
		t.Fatal(err)
	}

	res := awaitResult(t, p)
	if res.Outcome.Success {
		t.Fatal("expected 3xx to count as failure, not be followed")
	}
	if res.Outcome.ErrorKind != domain.ErrorBadStatus {
		t.Fatalf("expected BadStatus for a redirect, got %s", res.Outcome.ErrorKind)
	}
}

func TestSubmit_TimeoutOutcome(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer func() {
		close(release)
		srv.Close()
	}()

	p := newPool(t, workerpool.Config{})
	if err := p.Submit(workerpool.Task{TargetURL: srv.URL, PerAttemptTimeout: 20 * time.Millisecond}); err != nil {
		t.Fatal(err)
	}

	res := awaitResult(t, p)
	if res.Outcome.Success {
		t.Fatal("expected timeout to be a failure")
	}
	if res.Outcome.ErrorKind != domain.ErrorTimeout {
		t.Fatalf("expected Timeout, got %s", res.Outcome.ErrorKind)
	}
}

func TestSubmit_SaturatedWhenBacklogFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
	}))
	defer func() {
		close(release)
		srv.Close()
	}()

	p := newPool(t, workerpool.Config{MaxWorkers: 1, BacklogSize: 1})

	// One task occupies the single worker; one fills the backlog; the next
	// must be refused.
	if err := p.Submit(workerpool.Task{TargetURL: srv.URL, PerAttemptTimeout: time.Second}); err != nil {
		t.Fatal(err)
	}
	select {
	case <-started: // the worker has taken the first task off the backlog
	case <-time.After(time.Second):
		t.Fatal("worker never picked up the first task")
	}
	if err := p.Submit(workerpool.Task{TargetURL: srv.URL, PerAttemptTimeout: time.Second}); err != nil {
		t.Fatal(err)
	}
	if err := p.Submit(workerpool.Task{TargetURL: srv.URL, PerAttemptTimeout: time.Second}); err != workerpool.ErrSaturated {
		t.Fatalf("expected ErrSaturated, got %v", err)
	}
}

func TestShutdown_WithoutDrainCancelsInFlight(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer func() {
		close(release)
		srv.Close()
	}()

	p := workerpool.New(workerpool.Config{MaxWorkers: 1, BacklogSize: 1, RequestTimeout: time.Minute, ResponseCaptureBytes: 4096}, slog.Default())
	p.Start()
	if err := p.Submit(workerpool.Task{TargetURL: srv.URL, PerAttemptTimeout: time.Minute}); err != nil {
		t.Fatal(err)
	}

	time.Sleep(20 * time.Millisecond) // let the worker pick up the task
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	p.Shutdown(ctx, false)

	res := awaitResult(t, p)
	if res.Outcome.Success {
		t.Fatal("expected cancelled outcome, not success")
	}
	if res.Outcome.ErrorMessage == nil || *res.Outcome.ErrorMessage != "cancelled" {
		t.Fatalf("expected error_message=cancelled, got %+v", res.Outcome.ErrorMessage)
	}
}
