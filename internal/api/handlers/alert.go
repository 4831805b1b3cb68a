package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pratik-mahalle/costwatch/internal/api/dto"
	"github.com/pratik-mahalle/costwatch/internal/api/middleware"
	"github.com/pratik-mahalle/costwatch/internal/domain/alert"
	"github.com/pratik-mahalle/costwatch/internal/domain/cost"
	"github.com/pratik-mahalle/costwatch/internal/pkg/logger"
	"github.com/pratik-mahalle/costwatch/internal/pkg/utils"
)

// AlertService is the alert lifecycle the operator API drives
type AlertService interface {
	Get(ctx context.Context, id string) (*alert.Alert, error)
	List(ctx context.Context, filter alert.Filter, limit, offset int) ([]*alert.Alert, int64, error)
	Acknowledge(ctx context.Context, id, actor string) (*alert.Alert, error)
	Resolve(ctx context.Context, id, actor, notes string) (*alert.Alert, error)
	Escalate(ctx context.Context, id string, level int) (*alert.Alert, error)
	Metrics(ctx context.Context, days int) (*alert.Metrics, error)
}

type AlertHandler struct {
	service AlertService
	logger  *logger.Logger
}

func NewAlertHandler(service AlertService, log *logger.Logger) *AlertHandler {
	return &AlertHandler{service: service, logger: log}
}

// List handles GET /api/v1/alerts
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := dto.AlertListRequest{
		Type:     q.Get("type"),
		Severity: q.Get("severity"),
		Status:   q.Get("status"),
		Service:  q.Get("service"),
		Region:   q.Get("region"),
		Since:    q.Get("since"),
	}
	if err := validate(req); err != nil {
		utils.WriteError(w, err)
		return
	}

	filter := alert.Filter{
		Type:     req.Type,
		Severity: req.Severity,
		Status:   req.Status,
		Service:  req.Service,
		Region:   req.Region,
	}
	if req.Since != "" {
		filter.Since, _ = time.Parse(cost.DateLayout, req.Since)
	}

	p := utils.ParsePaginationParams(r)
	alerts, total, err := h.service.List(r.Context(), filter, p.PageSize, p.Offset)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	if alerts == nil {
		alerts = []*alert.Alert{}
	}

	utils.WriteSuccess(w, http.StatusOK, utils.NewPaginatedResponse(alerts, p.Page, p.PageSize, total))
}

// Get handles GET /api/v1/alerts/{id}
func (h *AlertHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, a)
}

// Acknowledge handles POST /api/v1/alerts/{id}/acknowledge
func (h *AlertHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.Acknowledge(r.Context(), chi.URLParam(r, "id"), middleware.GetActor(r))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccessWithMessage(w, http.StatusOK, "Alert acknowledged", a)
}

// Resolve handles POST /api/v1/alerts/{id}/resolve
func (h *AlertHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req dto.ResolveAlertRequest
	if err := decodeAndValidate(r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}

	a, err := h.service.Resolve(r.Context(), chi.URLParam(r, "id"), middleware.GetActor(r), req.Notes)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccessWithMessage(w, http.StatusOK, "Alert resolved", a)
}

// Escalate handles POST /api/v1/alerts/{id}/escalate
func (h *AlertHandler) Escalate(w http.ResponseWriter, r *http.Request) {
	var req dto.EscalateAlertRequest
	if err := decodeAndValidate(r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}

	a, err := h.service.Escalate(r.Context(), chi.URLParam(r, "id"), req.Level)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	h.logger.WithFields(map[string]interface{}{
		"alert_id": a.ID,
		"level":    req.Level,
		"actor":    middleware.GetActor(r),
	}).Info("Escalation requested")
	utils.WriteSuccessWithMessage(w, http.StatusOK, "Alert escalated", a)
}

// Metrics handles GET /api/v1/alerts/metrics?days=N
func (h *AlertHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	days := utils.ParseIntQuery(r, "days", 7)
	if days < 1 || days > 90 {
		days = 7
	}
	m, err := h.service.Metrics(r.Context(), days)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, m)
}
