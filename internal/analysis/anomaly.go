package analysis

import (
	"math"
	"sort"

	"github.com/pratik-mahalle/costwatch/internal/domain/anomaly"
	"github.com/pratik-mahalle/costwatch/internal/domain/cost"
	"github.com/pratik-mahalle/costwatch/internal/domain/settings"
)

// AnomalyDetector scores each service's most recent day against the
// service's own history using a z-score.
type AnomalyDetector struct {
	enabled   bool
	threshold float64
}

// NewAnomalyDetector creates a detector from configuration
func NewAnomalyDetector(cfg settings.AnomalyConfig) *AnomalyDetector {
	return &AnomalyDetector{
		enabled:   cfg.Enabled,
		threshold: anomaly.Sensitivity(cfg.Sensitivity).Threshold(),
	}
}

// Threshold returns the z-score a deviation must exceed
func (d *AnomalyDetector) Threshold() float64 {
	return d.threshold
}

// DetectLatest returns anomalies on each service's latest day, highest
// deviation first. Services with fewer than anomaly.MinDays days are skipped.
func (d *AnomalyDetector) DetectLatest(byService map[string]cost.DailySeries) []anomaly.Result {
	if !d.enabled {
		return nil
	}
	var results []anomaly.Result
	for _, service := range sortedKeys(byService) {
		series := byService[service]
		if series.Len() < anomaly.MinDays {
			continue
		}
		last, _ := series.Last()
		if r, ok := d.score(service, series.Values(), last); ok {
			results = append(results, r)
		}
	}
	sortByDeviation(results)
	return results
}

// Scan scores every day of every service against that service's full
// history. It is used for stored analysis reports, not for alerting.
func (d *AnomalyDetector) Scan(byService map[string]cost.DailySeries) []anomaly.Result {
	if !d.enabled {
		return nil
	}
	var results []anomaly.Result
	for _, service := range sortedKeys(byService) {
		series := byService[service]
		if series.Len() < anomaly.MinDays {
			continue
		}
		values := series.Values()
		for _, p := range series.Points {
			if r, ok := d.score(service, values, p); ok {
				results = append(results, r)
			}
		}
	}
	sortByDeviation(results)
	return results
}

func (d *AnomalyDetector) score(service string, values []float64, p cost.Point) (anomaly.Result, bool) {
	mu := Mean(values)
	sigma := SampleStdDev(values)
	if sigma == 0 {
		return anomaly.Result{}, false
	}
	z := math.Abs(p.Cost-mu) / sigma
	if z <= d.threshold {
		return anomaly.Result{}, false
	}
	direction := anomaly.DirectionDrop
	if p.Cost > mu {
		direction = anomaly.DirectionSpike
	}
	return anomaly.Result{
		Service:      service,
		Date:         p.Date,
		ObservedCost: Round2(p.Cost),
		ExpectedCost: Round2(mu),
		Deviation:    Round2(z),
		Severity:     anomaly.SeverityFor(z),
		Direction:    direction,
	}, true
}

func sortByDeviation(results []anomaly.Result) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Deviation > results[j].Deviation
	})
}

func sortedKeys(m map[string]cost.DailySeries) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
