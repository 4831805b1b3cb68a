package dto

import "github.com/shopspring/decimal"

// UpdateRecommendationStatusRequest moves a recommendation through review
type UpdateRecommendationStatusRequest struct {
	Status        string          `json:"status" validate:"required,oneof=open in_progress implemented dismissed"`
	ActualSavings decimal.Decimal `json:"actual_savings"`
}

// SavingsResponse is the open savings total
type SavingsResponse struct {
	TotalSavings decimal.Decimal `json:"total_savings"`
	Currency     string          `json:"currency"`
}
