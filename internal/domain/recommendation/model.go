package recommendation

import (
	"time"

	"github.com/shopspring/decimal"
)

// Recommendation is a cost review suggestion for one high-spend resource
type Recommendation struct {
	ID                   string          `json:"recommendation_id"`
	ResourceID           string          `json:"resource_id"`
	Type                 string          `json:"recommendation_type"`
	Service              string          `json:"service"`
	Region               string          `json:"region"`
	CurrentCost          decimal.Decimal `json:"current_cost"`
	EstimatedSavings     decimal.Decimal `json:"estimated_savings"`
	Confidence           string          `json:"confidence"`
	Priority             string          `json:"priority"`
	Status               string          `json:"status"`
	Description          string          `json:"description"`
	RecommendedAction    string          `json:"recommended_action"`
	ImplementationEffort string          `json:"implementation_effort"`
	RiskLevel            string          `json:"risk_level"`
	Implemented          bool            `json:"implemented"`
	ActualSavings        decimal.Decimal `json:"actual_savings"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
	ExpiresAt            time.Time       `json:"expires_at"`
}

// Recommendation types
const (
	TypeCostReview = "cost_review"
)

// Priority levels
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Confidence levels
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Status values
const (
	StatusOpen        = "open"
	StatusInProgress  = "in_progress"
	StatusImplemented = "implemented"
	StatusDismissed   = "dismissed"
)

// ValidStatus reports whether s is a known status
func ValidStatus(s string) bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusImplemented, StatusDismissed:
		return true
	}
	return false
}

// TTL is how long a recommendation stays listed
const TTL = 60 * 24 * time.Hour

// Savings holds the aggregate savings opportunity estimates
type Savings struct {
	Rightsizing         float64 `json:"rightsizing"`
	ReservedCapacity    float64 `json:"reserved_capacity"`
	IdleResources       float64 `json:"idle_resources"`
	StorageOptimization float64 `json:"storage_optimization"`
	TotalPotential      float64 `json:"total_potential"`
}

// Filter contains recommendation filtering options
type Filter struct {
	Status   string
	Priority string
	Service  string
}
