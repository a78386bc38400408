package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/callcron/scheduler/internal/cronexpr"
	"github.com/callcron/scheduler/internal/domain"
	"github.com/callcron/scheduler/internal/repository"
	"github.com/callcron/scheduler/internal/usecase"
	"github.com/gin-gonic/gin"
)

// JobHandler exposes the job CRUD surface plus the control API:
// dispatch_now, pause and resume are HTTP-exposed; reload_jobs is not.
type JobHandler struct {
	jobUsecase *usecase.JobUsecase
	logger     *slog.Logger
}

func NewJobHandler(jobUsecase *usecase.JobUsecase, logger *slog.Logger) *JobHandler {
	return &JobHandler{jobUsecase: jobUsecase, logger: logger.With("component", "job_handler")}
}

type createJobRequest struct {
	Schedule      string `json:"schedule" binding:"required"`
	TargetURL     string `json:"targetUrl" binding:"required,url"`
	ExecutionType string `json:"executionType" binding:"omitempty,oneof=AT_LEAST_ONCE AT_MOST_ONCE"`
}

func (h *JobHandler) Create(ctx *gin.Context) {
	var req createJobRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.jobUsecase.CreateJob(ctx.Request.Context(), usecase.CreateJobInput{
		Schedule:      req.Schedule,
		TargetURL:     req.TargetURL,
		ExecutionType: domain.ExecutionType(req.ExecutionType),
	})
	if err != nil {
		switch {
		case errors.Is(err, cronexpr.ErrInvalidExpression):
			ctx.JSON(http.StatusBadRequest, gin.H{"error": errInvalidSchedule})
		case errors.Is(err, repository.ErrConflict):
			ctx.JSON(http.StatusConflict, gin.H{"error": errDuplicateJob})
		default:
			h.logger.Error("create job", "error", err)
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		}
		return
	}

	ctx.JSON(http.StatusCreated, job)
}

func (h *JobHandler) List(ctx *gin.Context) {
	jobs, err := h.jobUsecase.ListJobs(ctx.Request.Context())
	if err != nil {
		h.logger.Error("list jobs", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (h *JobHandler) GetByID(ctx *gin.Context) {
	jobID := ctx.Param("id")

	job, err := h.jobUsecase.GetJob(ctx.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": errJobNotFound})
			return
		}
		h.logger.Error("get job by id", "job_id", jobID, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	ctx.JSON(http.StatusOK, job)
}

func (h *JobHandler) Delete(ctx *gin.Context) {
	jobID := ctx.Param("id")

	if err := h.jobUsecase.DeleteJob(ctx.Request.Context(), jobID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": errJobNotFound})
			return
		}
		h.logger.Error("delete job", "job_id", jobID, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (h *JobHandler) Pause(ctx *gin.Context) {
	jobID := ctx.Param("id")

	if err := h.jobUsecase.Pause(ctx.Request.Context(), jobID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": errJobNotFound})
			return
		}
		h.logger.Error("pause job", "job_id", jobID, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (h *JobHandler) Resume(ctx *gin.Context) {
	jobID := ctx.Param("id")

	if err := h.jobUsecase.Resume(ctx.Request.Context(), jobID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": errJobNotFound})
			return
		}
		h.logger.Error("resume job", "job_id", jobID, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	ctx.Status(http.StatusNoContent)
}

// DispatchNow triggers an immediate out-of-band occurrence for a job,
// returning synchronously once the scheduler loop has accepted the request.
func (h *JobHandler) DispatchNow(ctx *gin.Context) {
	jobID := ctx.Param("id")

	executionID, err := h.jobUsecase.DispatchNow(ctx.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": errJobNotFound})
			return
		}
		h.logger.Error("dispatch now", "job_id", jobID, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	ctx.JSON(http.StatusAccepted, gin.H{"execution_id": executionID})
}

func (h *JobHandler) ListExecutions(ctx *gin.Context) {
	jobID := ctx.Param("id")
	limit, _ := strconv.Atoi(ctx.Query("limit"))
	if limit <= 0 {
		limit = 50
	}

	execs, err := h.jobUsecase.ListExecutions(ctx.Request.Context(), jobID, limit)
	if err != nil {
		h.logger.Error("list executions", "job_id", jobID, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"executions": execs})
}
