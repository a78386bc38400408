package usecase

import (
	"context"
	"fmt"
	"net/url"

	"github.com/callcron/scheduler/internal/cronexpr"
	"github.com/callcron/scheduler/internal/domain"
	"github.com/callcron/scheduler/internal/repository"
	"github.com/google/uuid"
)

// Controller is the subset of the scheduler loop the control API drives:
// reload_jobs, dispatch_now, pause, resume.
type Controller interface {
	ReloadJobs()
	DispatchNow(ctx context.Context, jobID string) (string, error)
	Pause(ctx context.Context, jobID string) error
	Resume(ctx context.Context, jobID string) error
}

type JobUsecase struct {
	store      repository.JobStore
	controller Controller
}

func NewJobUsecase(store repository.JobStore, controller Controller) *JobUsecase {
	return &JobUsecase{store: store, controller: controller}
}

type CreateJobInput struct {
	Schedule      string
	TargetURL     string
	ExecutionType domain.ExecutionType
}

// CreateJob validates schedule and target_url before ever touching the
// store: an invalid schedule is surfaced back to the caller and the job
// is never persisted or enqueued.
func (u *JobUsecase) CreateJob(ctx context.Context, in CreateJobInput) (*domain.Job, error) {
	if _, err := cronexpr.Parse(in.Schedule); err != nil {
		return nil, fmt.Errorf("%w: %v", cronexpr.ErrInvalidExpression, err)
	}
	parsed, err := url.Parse(in.TargetURL)
	if err != nil || !parsed.IsAbs() || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, fmt.Errorf("invalid target_url: %q", in.TargetURL)
	}
	execType := in.ExecutionType
	if execType == "" {
		execType = domain.AtLeastOnce
	}

	job := &domain.Job{
		ID:            uuid.NewString(),
		Schedule:      in.Schedule,
		TargetURL:     in.TargetURL,
		ExecutionType: execType,
		Active:        true,
	}
	created, err := u.store.CreateJob(ctx, job)
	if err != nil {
		return nil, err
	}
	u.controller.ReloadJobs()
	return created, nil
}

func (u *JobUsecase) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	return u.store.GetJob(ctx, jobID)
}

func (u *JobUsecase) ListJobs(ctx context.Context) ([]*domain.Job, error) {
	return u.store.ListJobs(ctx)
}

func (u *JobUsecase) DeleteJob(ctx context.Context, jobID string) error {
	if err := u.store.DeleteJob(ctx, jobID); err != nil {
		return err
	}
	u.controller.ReloadJobs()
	return nil
}

func (u *JobUsecase) Pause(ctx context.Context, jobID string) error {
	return u.controller.Pause(ctx, jobID)
}

func (u *JobUsecase) Resume(ctx context.Context, jobID string) error {
	return u.controller.Resume(ctx, jobID)
}

func (u *JobUsecase) DispatchNow(ctx context.Context, jobID string) (string, error) {
	return u.controller.DispatchNow(ctx, jobID)
}

func (u *JobUsecase) ListExecutions(ctx context.Context, jobID string, limit int) ([]*domain.Execution, error) {
	return u.store.ListExecutions(ctx, jobID, limit)
}
