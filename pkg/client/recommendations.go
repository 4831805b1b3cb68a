package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"
)

// RecommendationService handles recommendation review calls
type RecommendationService struct {
	client *Client
}

// RecommendationListOptions contains options for listing recommendations
type RecommendationListOptions struct {
	ListOptions
	Status   string // open, in_progress, implemented, dismissed
	Priority string // high, medium, low
	Service  string
}

// UpdateStatusRequest moves a recommendation through review
type UpdateStatusRequest struct {
	Status        string          `json:"status"`
	ActualSavings decimal.Decimal `json:"actual_savings"`
}

// List returns recommendations, highest cost first
func (s *RecommendationService) List(ctx context.Context, opts *RecommendationListOptions) ([]Recommendation, *PageInfo, error) {
	q := url.Values{}
	if opts != nil {
		opts.ListOptions.apply(q)
		setIf(q, "status", opts.Status)
		setIf(q, "priority", opts.Priority)
		setIf(q, "service", opts.Service)
	}

	var recs []Recommendation
	info, err := s.client.list(ctx, "/api/v1/recommendations", q, &recs)
	if err != nil {
		return nil, nil, err
	}
	return recs, info, nil
}

// Get retrieves a single recommendation
func (s *RecommendationService) Get(ctx context.Context, id string) (*Recommendation, error) {
	var rec Recommendation
	if err := s.client.doRequest(ctx, http.MethodGet, "/api/v1/recommendations/"+url.PathEscape(id), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpdateStatus changes a recommendation's review status
func (s *RecommendationService) UpdateStatus(ctx context.Context, id string, req UpdateStatusRequest) (*Recommendation, error) {
	var rec Recommendation
	path := "/api/v1/recommendations/" + url.PathEscape(id) + "/status"
	if err := s.client.doRequest(ctx, http.MethodPut, path, req, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Savings returns the estimated savings of open recommendations
func (s *RecommendationService) Savings(ctx context.Context) (*Savings, error) {
	var out Savings
	if err := s.client.doRequest(ctx, http.MethodGet, "/api/v1/recommendations/savings", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
