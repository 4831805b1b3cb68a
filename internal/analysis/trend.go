package analysis

import (
	"math"
	"time"

	"github.com/pratik-mahalle/costwatch/internal/domain/cost"
	"github.com/pratik-mahalle/costwatch/internal/pkg/errors"
)

// Trend directions
const (
	DirectionIncreasing = "increasing"
	DirectionDecreasing = "decreasing"
	DirectionStable     = "stable"
)

// Trend statuses
const (
	TrendOK               = "ok"
	TrendInsufficientData = "insufficient_data"
)

// MinTrendPoints is the smallest series the trend analyzer accepts
const MinTrendPoints = 2

// ForecastPoint is one projected day
type ForecastPoint struct {
	Date time.Time `json:"date"`
	Cost float64   `json:"forecasted_cost"`
}

// Trend is the trend analyzer's result for one series. When Status is
// insufficient_data only Key, Points and Reason are set.
type Trend struct {
	Key               string          `json:"key"`
	Status            string          `json:"status"`
	Reason            string          `json:"reason,omitempty"`
	Points            int             `json:"points"`
	Direction         string          `json:"trend_direction,omitempty"`
	Slope             float64         `json:"daily_change_rate"`
	Intercept         float64         `json:"intercept"`
	PercentChangeWeek float64         `json:"percent_change_week"`
	Volatility        float64         `json:"volatility"`
	Mean              float64         `json:"mean"`
	TrendStrength     float64         `json:"trend_strength"`
	Forecast          []ForecastPoint `json:"forecast,omitempty"`
}

// Sufficient reports whether the trend carries results
func (t Trend) Sufficient() bool {
	return t.Status == TrendOK
}

// Err returns an INSUFFICIENT_DATA error when the trend carries no results
func (t Trend) Err() error {
	if t.Sufficient() {
		return nil
	}
	return errors.InsufficientData(t.Reason)
}

// AnalyzeTrend fits a line through the series and projects it forecastDays ahead.
func AnalyzeTrend(series cost.DailySeries, forecastDays int) Trend {
	values := series.Values()
	n := len(values)
	if n < MinTrendPoints {
		return Trend{
			Key:    series.Key,
			Status: TrendInsufficientData,
			Reason: "at least 2 days of data are required",
			Points: n,
		}
	}

	slope, intercept := LinearFit(values)
	t := Trend{
		Key:               series.Key,
		Status:            TrendOK,
		Points:            n,
		Direction:         directionOf(slope),
		Slope:             slope,
		Intercept:         intercept,
		PercentChangeWeek: PercentChangeWeek(values),
		Volatility:        PopulationStdDev(values),
		Mean:              Mean(values),
		TrendStrength:     math.Min(math.Abs(slope)*10, 100),
	}

	last, _ := series.Last()
	for i := 1; i <= forecastDays; i++ {
		projected := slope*float64(n+i-1) + intercept
		t.Forecast = append(t.Forecast, ForecastPoint{
			Date: last.Date.AddDate(0, 0, i),
			Cost: Round2(math.Max(0, projected)),
		})
	}
	return t
}

func directionOf(slope float64) string {
	switch {
	case slope > 0:
		return DirectionIncreasing
	case slope < 0:
		return DirectionDecreasing
	default:
		return DirectionStable
	}
}

// PercentChangeWeek compares the mean of the last 7 values with the mean of
// the 7 before them, or of all earlier values when fewer exist. It is 0 when
// there is no earlier window or its mean is 0.
func PercentChangeWeek(values []float64) float64 {
	n := len(values)
	if n <= 7 {
		return 0
	}
	recent := Mean(values[n-7:])
	start := n - 14
	if start < 0 {
		start = 0
	}
	previous := Mean(values[start : n-7])
	if previous == 0 {
		return 0
	}
	return (recent - previous) / previous * 100
}
