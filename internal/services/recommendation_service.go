package services

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/pratik-mahalle/costwatch/internal/domain/recommendation"
	"github.com/pratik-mahalle/costwatch/internal/pkg/errors"
	"github.com/pratik-mahalle/costwatch/internal/pkg/logger"
)

// RecommendationService exposes stored recommendations to operators
type RecommendationService struct {
	repo   recommendation.Repository
	logger *logger.Logger
}

// NewRecommendationService creates a new recommendation service
func NewRecommendationService(repo recommendation.Repository, log *logger.Logger) *RecommendationService {
	return &RecommendationService{
		repo:   repo,
		logger: log.Component("recommendations"),
	}
}

// Get returns one recommendation
func (s *RecommendationService) Get(ctx context.Context, id string) (*recommendation.Recommendation, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns recommendations matching filter, highest cost first
func (s *RecommendationService) List(ctx context.Context, filter recommendation.Filter, limit, offset int) ([]*recommendation.Recommendation, int64, error) {
	return s.repo.List(ctx, filter, limit, offset)
}

// UpdateStatus moves a recommendation to status. actualSavings is only kept
// when the recommendation is marked implemented.
func (s *RecommendationService) UpdateStatus(ctx context.Context, id, status string, actualSavings decimal.Decimal) (*recommendation.Recommendation, error) {
	if !recommendation.ValidStatus(status) {
		return nil, errors.BadRequest("invalid recommendation status: " + status)
	}
	if actualSavings.IsNegative() {
		return nil, errors.BadRequest("actual savings cannot be negative")
	}
	if status != recommendation.StatusImplemented {
		actualSavings = decimal.Zero
	}

	if err := s.repo.UpdateStatus(ctx, id, status, actualSavings.Round(2)); err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"recommendation_id": id,
		"status":            status,
		"actual_savings":    actualSavings.StringFixed(2),
	}).Info("Recommendation status updated")

	return s.repo.GetByID(ctx, id)
}

// TotalSavings sums the estimated savings of open recommendations
func (s *RecommendationService) TotalSavings(ctx context.Context) (decimal.Decimal, error) {
	return s.repo.GetTotalSavings(ctx)
}
