package client

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Alert is a raised cost alert
type Alert struct {
	ID              string          `json:"alert_id"`
	Timestamp       time.Time       `json:"timestamp"`
	Type            string          `json:"alert_type"` // threshold_breach, service_threshold_breach, anomaly_detection, budget_exceeded, budget_warning
	Severity        string          `json:"severity"`   // info, warning, critical
	Service         string          `json:"service"`
	Region          string          `json:"region"`
	CurrentCost     decimal.Decimal `json:"current_cost"`
	Threshold       decimal.Decimal `json:"threshold"`
	Message         string          `json:"message"`
	Status          string          `json:"status"` // active, acknowledged, resolved
	AcknowledgedBy  string          `json:"acknowledged_by,omitempty"`
	AcknowledgedAt  *time.Time      `json:"acknowledged_at,omitempty"`
	ResolvedBy      string          `json:"resolved_by,omitempty"`
	ResolvedAt      *time.Time      `json:"resolved_at,omitempty"`
	ResolutionNotes string          `json:"resolution_notes,omitempty"`
	Escalation      *Escalation     `json:"escalation,omitempty"`
	ExpiresAt       time.Time       `json:"expires_at"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Escalation is the advisory escalation tier attached to an alert
type Escalation struct {
	Level        int        `json:"level"`
	DelayMinutes int        `json:"delay_minutes"`
	Recipients   []string   `json:"recipients"`
	Channels     []string   `json:"channels"`
	EscalatedAt  *time.Time `json:"escalated_at,omitempty"`
}

// AlertMetrics summarises alert activity over a period
type AlertMetrics struct {
	PeriodDays         int            `json:"period_days"`
	TotalAlerts        int            `json:"total_alerts"`
	BySeverity         map[string]int `json:"by_severity"`
	ByService          map[string]int `json:"by_service"`
	ByStatus           map[string]int `json:"by_status"`
	ByType             map[string]int `json:"by_type"`
	AcknowledgmentRate float64        `json:"acknowledgment_rate"`
	AvgResolutionHours float64        `json:"avg_resolution_hours"`
}

// Recommendation is a cost review suggestion
type Recommendation struct {
	ID                string          `json:"recommendation_id"`
	ResourceID        string          `json:"resource_id"`
	Type              string          `json:"recommendation_type"`
	Service           string          `json:"service"`
	Region            string          `json:"region"`
	CurrentCost       decimal.Decimal `json:"current_cost"`
	EstimatedSavings  decimal.Decimal `json:"estimated_savings"`
	Priority          string          `json:"priority"` // high, medium, low
	Status            string          `json:"status"`   // open, in_progress, implemented, dismissed
	Description       string          `json:"description"`
	RecommendedAction string          `json:"recommended_action"`
	ActualSavings     decimal.Decimal `json:"actual_savings"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Savings is the open savings opportunity
type Savings struct {
	TotalSavings decimal.Decimal `json:"total_savings"`
	Currency     string          `json:"currency"`
}

// Execution is one recorded run
type Execution struct {
	ID           string          `json:"id"`
	JobType      string          `json:"job_type"`
	Trigger      string          `json:"trigger"`
	Status       string          `json:"status"` // running, completed, partial, failed
	StartedAt    time.Time       `json:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	DurationMs   int64           `json:"duration_ms,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// Schedule is a registered cron entry
type Schedule struct {
	JobType string    `json:"job_type"`
	Spec    string    `json:"schedule"`
	Next    time.Time `json:"next_run"`
}

// ListOptions contains common options for list operations
type ListOptions struct {
	Page     int // 1-based
	PageSize int // server caps at 100
}

// PageInfo describes the page a list call returned
type PageInfo struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
}

// HealthResponse is returned by the health and readiness probes
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
}
