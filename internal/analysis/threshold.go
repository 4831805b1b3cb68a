package analysis

import (
	"fmt"
	"sort"

	"github.com/pratik-mahalle/costwatch/internal/domain/alert"
	"github.com/pratik-mahalle/costwatch/internal/domain/anomaly"
	"github.com/pratik-mahalle/costwatch/internal/domain/settings"
)

// ThresholdEvaluator compares the latest day's totals with static limits
type ThresholdEvaluator struct {
	cfg *settings.Config
}

func NewThresholdEvaluator(cfg *settings.Config) *ThresholdEvaluator {
	return &ThresholdEvaluator{cfg: cfg}
}

// Evaluate returns one candidate per daily severity limit the overall total
// strictly exceeds, plus one warning per service over its daily limit.
func (e *ThresholdEvaluator) Evaluate(agg *Aggregation) []alert.Candidate {
	day, ok := agg.LatestDay()
	if !ok || e.cfg == nil {
		return nil
	}

	var candidates []alert.Candidate
	total := ValueOn(agg.Overall, day)

	daily := e.cfg.CostThresholds.Daily()
	severities := make([]string, 0, len(daily))
	for sev := range daily {
		severities = append(severities, sev)
	}
	// most severe first so it takes the dedup slot within a run
	sort.Slice(severities, func(i, j int) bool {
		ri, rj := alert.SeverityRank(severities[i]), alert.SeverityRank(severities[j])
		if ri != rj {
			return ri > rj
		}
		return severities[i] < severities[j]
	})
	for _, sev := range severities {
		limit := daily[sev]
		if total > limit {
			candidates = append(candidates, alert.Candidate{
				Type:        alert.TypeThresholdBreach,
				Severity:    sev,
				Service:     OverallService,
				Region:      AllRegions,
				CurrentCost: total,
				Threshold:   limit,
				Message:     fmt.Sprintf("Daily costs (%.2f) exceeded %s threshold (%.2f)", total, sev, limit),
			})
		}
	}

	for _, service := range sortedKeys(agg.ByService) {
		limit, ok := e.cfg.ServiceThresholds.Lookup(service)
		if !ok || limit.Daily <= 0 {
			continue
		}
		spent := ValueOn(agg.ByService[service], day)
		if spent > limit.Daily {
			candidates = append(candidates, alert.Candidate{
				Type:        alert.TypeServiceThresholdBreach,
				Severity:    alert.SeverityWarning,
				Service:     service,
				Region:      AllRegions,
				CurrentCost: spent,
				Threshold:   limit.Daily,
				Message:     fmt.Sprintf("%s daily costs (%.2f) exceeded threshold (%.2f)", service, spent, limit.Daily),
			})
		}
	}
	return candidates
}

// AnomalyCandidates converts detector results into alert candidates
func AnomalyCandidates(results []anomaly.Result) []alert.Candidate {
	candidates := make([]alert.Candidate, 0, len(results))
	for _, r := range results {
		candidates = append(candidates, alert.Candidate{
			Type:        alert.TypeAnomalyDetection,
			Severity:    r.Severity,
			Service:     r.Service,
			Region:      AllRegions,
			CurrentCost: r.ObservedCost,
			Threshold:   r.ExpectedCost,
			Message: fmt.Sprintf("Cost anomaly detected for %s: cost %s detected (deviation: %.1f sigma)",
				r.Service, r.Direction, r.Deviation),
		})
	}
	return candidates
}
