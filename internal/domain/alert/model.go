package alert

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Alert is a persisted, lifecycle-tracked cost signal
type Alert struct {
	ID                   string          `json:"alert_id"`
	Timestamp            time.Time       `json:"timestamp"`
	Type                 string          `json:"alert_type"`
	Severity             string          `json:"severity"`
	Service              string          `json:"service"`
	Region               string          `json:"region"`
	CurrentCost          decimal.Decimal `json:"current_cost"`
	Threshold            decimal.Decimal `json:"threshold"`
	Message              string          `json:"message"`
	Status               string          `json:"status"`
	Acknowledged         bool            `json:"acknowledged"`
	AcknowledgedBy       string          `json:"acknowledged_by,omitempty"`
	AcknowledgedAt       *time.Time      `json:"acknowledged_at,omitempty"`
	Resolved             bool            `json:"resolved"`
	ResolvedBy           string          `json:"resolved_by,omitempty"`
	ResolvedAt           *time.Time      `json:"resolved_at,omitempty"`
	ResolutionNotes      string          `json:"resolution_notes,omitempty"`
	NotificationSent     bool            `json:"notification_sent"`
	NotificationChannels []string        `json:"notification_channels,omitempty"`
	NotifiedAt           *time.Time      `json:"notified_at,omitempty"`
	Escalation           *Escalation     `json:"escalation,omitempty"`
	TestMode             bool            `json:"test_mode,omitempty"`
	ExpiresAt            time.Time       `json:"expires_at"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// Alert types
const (
	TypeThresholdBreach        = "threshold_breach"
	TypeServiceThresholdBreach = "service_threshold_breach"
	TypeAnomalyDetection       = "anomaly_detection"
	TypeBudgetExceeded         = "budget_exceeded"
	TypeBudgetWarning          = "budget_warning"
)

// Alert severity levels
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// SeverityRank orders severities, most severe highest. Unknown severities rank 0.
func SeverityRank(severity string) int {
	switch severity {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	}
	return 0
}

// Alert status
const (
	StatusActive       = "active"
	StatusAcknowledged = "acknowledged"
	StatusResolved     = "resolved"
)

// Candidate is an evaluator's proposal for an alert, before dedup and persistence.
type Candidate struct {
	Type        string
	Severity    string
	Service     string
	Region      string
	CurrentCost float64
	Threshold   float64
	Message     string
}

// Key returns the dedup identity of the candidate
func (c Candidate) Key() DedupKey {
	return DedupKey{Type: c.Type, Service: c.Service, Region: c.Region}
}

// DedupKey identifies alerts that are considered the same signal
type DedupKey struct {
	Type    string
	Service string
	Region  string
}

func (k DedupKey) String() string {
	return fmt.Sprintf("%s|%s|%s", k.Type, k.Service, k.Region)
}

// Key returns the dedup identity of the alert
func (a *Alert) Key() DedupKey {
	return DedupKey{Type: a.Type, Service: a.Service, Region: a.Region}
}

// DeriveID builds the alert id from its identity and creation time,
// e.g. threshold_breach_overall_All_20240115_093000.
func DeriveID(alertType, service, region string, at time.Time) string {
	svc := strings.ReplaceAll(strings.ToLower(service), " ", "_")
	return fmt.Sprintf("%s_%s_%s_%s", alertType, svc, region, at.UTC().Format("20060102_150405"))
}

// RoundCost rounds to cents and clamps negatives to zero
func RoundCost(v float64) decimal.Decimal {
	d := decimal.NewFromFloat(v).Round(2)
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// New builds an active, un-notified alert from a candidate.
func New(c Candidate, now time.Time, ttl time.Duration) *Alert {
	now = now.UTC()
	return &Alert{
		ID:          DeriveID(c.Type, c.Service, c.Region, now),
		Timestamp:   now,
		Type:        c.Type,
		Severity:    c.Severity,
		Service:     c.Service,
		Region:      c.Region,
		CurrentCost: RoundCost(c.CurrentCost),
		Threshold:   RoundCost(c.Threshold),
		Message:     c.Message,
		Status:      StatusActive,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Filter contains alert filtering options
type Filter struct {
	Type     string
	Severity string
	Status   string
	Service  string
	Region   string
	Since    time.Time
}

// Metrics summarises alert activity over a period
type Metrics struct {
	PeriodDays         int            `json:"period_days"`
	TotalAlerts        int            `json:"total_alerts"`
	BySeverity         map[string]int `json:"by_severity"`
	ByService          map[string]int `json:"by_service"`
	ByStatus           map[string]int `json:"by_status"`
	ByType             map[string]int `json:"by_type"`
	AcknowledgmentRate float64        `json:"acknowledgment_rate"`
	AvgResolutionHours float64        `json:"avg_resolution_hours"`
}

// Digest is the periodic alert summary sent on the reports channel
type Digest struct {
	Period           string         `json:"period"`
	TotalAlerts      int            `json:"total_alerts"`
	BySeverity       map[string]int `json:"by_severity"`
	ByService        map[string]int `json:"by_service"`
	ByType           map[string]int `json:"by_type"`
	HighestCostAlert *Alert         `json:"highest_cost_alert,omitempty"`
	GeneratedAt      time.Time      `json:"generated_at"`
}
