package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/pratik-mahalle/costwatch/internal/api/dto"
	"github.com/pratik-mahalle/costwatch/internal/api/middleware"
	"github.com/pratik-mahalle/costwatch/internal/domain/recommendation"
	"github.com/pratik-mahalle/costwatch/internal/pkg/logger"
	"github.com/pratik-mahalle/costwatch/internal/pkg/utils"
)

// RecommendationService is the recommendation review surface
type RecommendationService interface {
	Get(ctx context.Context, id string) (*recommendation.Recommendation, error)
	List(ctx context.Context, filter recommendation.Filter, limit, offset int) ([]*recommendation.Recommendation, int64, error)
	UpdateStatus(ctx context.Context, id, status string, actualSavings decimal.Decimal) (*recommendation.Recommendation, error)
	TotalSavings(ctx context.Context) (decimal.Decimal, error)
}

type RecommendationHandler struct {
	service RecommendationService
	logger  *logger.Logger
}

func NewRecommendationHandler(service RecommendationService, log *logger.Logger) *RecommendationHandler {
	return &RecommendationHandler{service: service, logger: log}
}

// List handles GET /api/v1/recommendations
func (h *RecommendationHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := recommendation.Filter{
		Status:   q.Get("status"),
		Priority: q.Get("priority"),
		Service:  q.Get("service"),
	}

	p := utils.ParsePaginationParams(r)
	recs, total, err := h.service.List(r.Context(), filter, p.PageSize, p.Offset)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	if recs == nil {
		recs = []*recommendation.Recommendation{}
	}
	utils.WriteSuccess(w, http.StatusOK, utils.NewPaginatedResponse(recs, p.Page, p.PageSize, total))
}

// Get handles GET /api/v1/recommendations/{id}
func (h *RecommendationHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, rec)
}

// UpdateStatus handles PUT /api/v1/recommendations/{id}/status
func (h *RecommendationHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateRecommendationStatusRequest
	if err := decodeAndValidate(r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}

	rec, err := h.service.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status, req.ActualSavings)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	h.logger.WithFields(map[string]interface{}{
		"recommendation_id": rec.ID,
		"actor":             middleware.GetActor(r),
	}).Debug("Recommendation reviewed")
	utils.WriteSuccess(w, http.StatusOK, rec)
}

// Savings handles GET /api/v1/recommendations/savings
func (h *RecommendationHandler) Savings(w http.ResponseWriter, r *http.Request) {
	total, err := h.service.TotalSavings(r.Context())
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, dto.SavingsResponse{TotalSavings: total.Round(2), Currency: "USD"})
}
