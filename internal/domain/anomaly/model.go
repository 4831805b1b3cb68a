package anomaly

import "time"

// Result is a statistically unusual cost on a service's most recent day
type Result struct {
	Service      string    `json:"service"`
	Date         time.Time `json:"date"`
	ObservedCost float64   `json:"observed_cost"`
	ExpectedCost float64   `json:"expected_cost"`
	Deviation    float64   `json:"deviation"` // z-score
	Severity     string    `json:"severity"`
	Direction    Direction `json:"direction"`
}

// Direction of the deviation from the mean
type Direction string

const (
	DirectionSpike Direction = "spike"
	DirectionDrop  Direction = "drop"
)

// Severity tiers by z-score
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// Sensitivity selects the z-score a deviation must exceed
type Sensitivity string

const (
	SensitivityLow    Sensitivity = "low"
	SensitivityMedium Sensitivity = "medium"
	SensitivityHigh   Sensitivity = "high"
)

// Threshold returns the z-score cut-off. Unknown values fall back to medium.
func (s Sensitivity) Threshold() float64 {
	switch s {
	case SensitivityLow:
		return 3.0
	case SensitivityHigh:
		return 2.0
	default:
		return 2.5
	}
}

// SeverityFor tiers a z-score
func SeverityFor(z float64) string {
	switch {
	case z > 3:
		return SeverityCritical
	case z > 2:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// MinDays is the shortest series the detector will score
const MinDays = 7
