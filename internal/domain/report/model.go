package report

import (
	"encoding/json"
	"time"
)

// AnalysisResult is a stored analysis or summary document
type AnalysisResult struct {
	ID        string          `json:"id"`
	Type      string          `json:"analysis_type"`
	Period    string          `json:"period"` // YYYY-MM-DD of the run
	Results   json.RawMessage `json:"results"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Analysis types, also accepted as the report_type trigger payload
const (
	TypeTrendAnalysis  = "trend_analysis"
	TypeDailySummary   = "daily_summary"
	TypeWeeklySummary  = "weekly_summary"
	TypeMonthlySummary = "monthly_summary"
)

// IsSummary reports whether t selects one of the summary reports
func IsSummary(t string) bool {
	switch t {
	case TypeDailySummary, TypeWeeklySummary, TypeMonthlySummary:
		return true
	}
	return false
}

// TTL is how long analysis results are kept
const TTL = 365 * 24 * time.Hour

// Summary is a daily, weekly or monthly cost summary
type Summary struct {
	Type               string             `json:"type"`
	Title              string             `json:"title"`
	PeriodStart        string             `json:"period_start"`
	PeriodEnd          string             `json:"period_end"`
	Month              string             `json:"month,omitempty"`
	TotalCost          float64            `json:"total_cost"`
	AverageDailyCost   float64            `json:"average_daily_cost"`
	DaysInPeriod       int                `json:"days_in_period"`
	DailyBreakdown     map[string]float64 `json:"daily_breakdown,omitempty"`
	ServiceBreakdown   map[string]float64 `json:"service_breakdown,omitempty"`
	RegionalBreakdown  map[string]float64 `json:"regional_breakdown,omitempty"`
	WeekOverWeekChange *float64           `json:"week_over_week_change,omitempty"`
	RecordCount        int                `json:"record_count"`
	NoData             bool               `json:"no_data,omitempty"`
}
