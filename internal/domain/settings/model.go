package settings

import "strings"

// Periods and severities used as keys in CostThresholds
const (
	PeriodDaily   = "daily"
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"

	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Config is the operator-tunable engine configuration
type Config struct {
	CostThresholds    ThresholdConfig `mapstructure:"cost_thresholds" json:"cost_thresholds" yaml:"cost_thresholds"`
	ServiceThresholds ServiceLimits   `mapstructure:"service_thresholds" json:"service_thresholds" yaml:"service_thresholds"`
	AnomalyDetection  AnomalyConfig   `mapstructure:"anomaly_detection" json:"anomaly_detection" yaml:"anomaly_detection"`
	Budgets           *BudgetConfig   `mapstructure:"budgets" json:"budgets,omitempty" yaml:"budgets,omitempty"`
}

// ThresholdConfig maps period to severity to limit
type ThresholdConfig map[string]map[string]float64

// Daily returns the daily severity limits, or nil when not configured
func (t ThresholdConfig) Daily() map[string]float64 {
	return t[PeriodDaily]
}

// ServiceLimit holds per-service overrides
type ServiceLimit struct {
	Daily   float64 `mapstructure:"daily" json:"daily,omitempty" yaml:"daily,omitempty"`
	Monthly float64 `mapstructure:"monthly" json:"monthly,omitempty" yaml:"monthly,omitempty"`
}

// ServiceLimits is keyed by lower-cased service name
type ServiceLimits map[string]ServiceLimit

// Lookup finds the limit for a service, ignoring case
func (s ServiceLimits) Lookup(service string) (ServiceLimit, bool) {
	l, ok := s[strings.ToLower(service)]
	return l, ok
}

// AnomalyConfig controls the anomaly detector
type AnomalyConfig struct {
	Enabled     bool   `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Sensitivity string `mapstructure:"sensitivity" json:"sensitivity" yaml:"sensitivity"`
}

// BudgetConfig holds monthly budgets. Checkpoints are fixed at 80% and 100%.
type BudgetConfig struct {
	Overall    *Budget           `mapstructure:"overall_budget" json:"overall_budget,omitempty" yaml:"overall_budget,omitempty"`
	Categories map[string]Budget `mapstructure:"category_budgets" json:"category_budgets,omitempty" yaml:"category_budgets,omitempty"`
}

// Budget is a monthly spending limit
type Budget struct {
	MonthlyLimit float64 `mapstructure:"monthly_limit" json:"monthly_limit" yaml:"monthly_limit"`
}

// Defaults returns the built-in configuration used when none is stored.
// There is no default budget.
func Defaults() *Config {
	return &Config{
		CostThresholds: ThresholdConfig{
			PeriodDaily:   {SeverityWarning: 100, SeverityCritical: 200},
			PeriodWeekly:  {SeverityWarning: 500, SeverityCritical: 1000},
			PeriodMonthly: {SeverityWarning: 2000, SeverityCritical: 4000},
		},
		ServiceThresholds: ServiceLimits{
			"ec2": {Daily: 50, Monthly: 1200},
			"s3":  {Daily: 20, Monthly: 400},
		},
		AnomalyDetection: AnomalyConfig{Enabled: true, Sensitivity: "medium"},
	}
}
