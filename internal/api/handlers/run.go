package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/pratik-mahalle/costwatch/internal/api/dto"
	"github.com/pratik-mahalle/costwatch/internal/api/middleware"
	"github.com/pratik-mahalle/costwatch/internal/domain/job"
	"github.com/pratik-mahalle/costwatch/internal/pkg/errors"
	"github.com/pratik-mahalle/costwatch/internal/pkg/logger"
	"github.com/pratik-mahalle/costwatch/internal/pkg/utils"
	"github.com/pratik-mahalle/costwatch/internal/services"
)

// RunService triggers passes and reports on past executions
type RunService interface {
	Trigger(ctx context.Context, jobType job.JobType, trigger string) (*job.Execution, error)
	ListExecutions(ctx context.Context, filter job.ExecutionFilter, limit, offset int) ([]*job.Execution, int64, error)
	Entries() []services.ScheduledEntry
}

type RunHandler struct {
	service RunService
	timeout time.Duration
	logger  *logger.Logger
}

// NewRunHandler creates the run handler. timeout bounds a synchronous run
// started from the API.
func NewRunHandler(service RunService, timeout time.Duration, log *logger.Logger) *RunHandler {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &RunHandler{service: service, timeout: timeout, logger: log}
}

// Trigger handles POST /api/v1/runs. The run executes synchronously and the
// recorded execution is returned; a failed run still answers 200 with
// status "failed" because the execution itself was recorded.
func (h *RunHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	var req dto.TriggerRunRequest
	if err := decodeAndValidate(r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}
	jobType, err := services.JobTypeFor(req.ReportType)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	h.logger.WithFields(map[string]interface{}{
		"job_type": jobType,
		"actor":    middleware.GetActor(r),
	}).Info("Run triggered from API")

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	exec, err := h.service.Trigger(ctx, jobType, services.TriggerAPI)
	if exec == nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, exec)
}

// ListExecutions handles GET /api/v1/runs
func (h *RunHandler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := job.ExecutionFilter{
		JobType: job.JobType(q.Get("job_type")),
		Status:  job.ExecutionStatus(q.Get("status")),
	}
	if filter.JobType != "" && !filter.JobType.IsValid() {
		utils.WriteError(w, errors.BadRequest("invalid job_type: "+string(filter.JobType)))
		return
	}

	p := utils.ParsePaginationParams(r)
	execs, total, err := h.service.ListExecutions(r.Context(), filter, p.PageSize, p.Offset)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	if execs == nil {
		execs = []*job.Execution{}
	}
	utils.WriteSuccess(w, http.StatusOK, utils.NewPaginatedResponse(execs, p.Page, p.PageSize, total))
}

// Schedules handles GET /api/v1/schedules
func (h *RunHandler) Schedules(w http.ResponseWriter, r *http.Request) {
	utils.WriteSuccess(w, http.StatusOK, h.service.Entries())
}
