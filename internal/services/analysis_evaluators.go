package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pratik-mahalle/costwatch/internal/analysis"
	"github.com/pratik-mahalle/costwatch/internal/domain/alert"
	"github.com/pratik-mahalle/costwatch/internal/domain/anomaly"
	"github.com/pratik-mahalle/costwatch/internal/domain/cost"
	"github.com/pratik-mahalle/costwatch/internal/domain/settings"
	"github.com/pratik-mahalle/costwatch/internal/pkg/errors"
	"github.com/pratik-mahalle/costwatch/internal/pkg/metrics"
)

// evalResult is what an evaluator produces. Data carries the evaluator's
// report payload back to the orchestrator.
type evalResult struct {
	Status     string
	Detail     string
	Candidates []alert.Candidate
	Data       interface{}
}

// evaluator is a read-only computation over the aggregated series. An
// INSUFFICIENT_DATA error is an outcome, not a failure, and keeps the result.
type evaluator struct {
	name string
	run  func() (evalResult, error)
}

// evaluate runs the evaluators in parallel. Each one is bounded by the
// evaluator timeout and a failure or panic only affects its own outcome.
func (s *AnalysisService) evaluate(ctx context.Context, evals []evaluator) ([]EvaluatorOutcome, []evalResult) {
	outcomes := make([]EvaluatorOutcome, len(evals))
	results := make([]evalResult, len(evals))

	g, gctx := errgroup.WithContext(ctx)
	for i, ev := range evals {
		i, ev := i, ev
		g.Go(func() error {
			outcomes[i], results[i] = s.runEvaluator(gctx, ev)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		log := s.logger.WithFields(map[string]interface{}{
			"evaluator":   o.Name,
			"status":      o.Status,
			"candidates":  o.Candidates,
			"duration_ms": o.DurationMs,
		})
		if o.Status == OutcomeFailed {
			metrics.RecordEvaluatorFailure(o.Name)
			log.Error("Evaluator failed: " + o.Error)
			continue
		}
		log.Debug("Evaluator finished")
	}
	return outcomes, results
}

func (s *AnalysisService) runEvaluator(ctx context.Context, ev evaluator) (EvaluatorOutcome, evalResult) {
	start := time.Now()
	out := EvaluatorOutcome{Name: ev.name}

	ctx, cancel := withTimeout(ctx, s.cfg.EvaluatorTimeout)
	defer cancel()

	type done struct {
		res evalResult
		err error
	}
	ch := make(chan done, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- done{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		res, err := ev.run()
		ch <- done{res: res, err: err}
	}()

	var res evalResult
	select {
	case d := <-ch:
		switch {
		case errors.IsCode(d.err, errors.ErrCodeInsufficientData):
			res = d.res
			out.Status = OutcomeInsufficientData
			out.Code = errors.ErrCodeInsufficientData
			out.Detail = errors.As(d.err).Message
		case d.err != nil:
			out.Status = OutcomeFailed
			out.Code = errors.Code(d.err)
			out.Error = d.err.Error()
		default:
			res = d.res
			out.Status = res.Status
			if out.Status == "" {
				out.Status = OutcomeOK
			}
			out.Detail = res.Detail
		}
		out.Candidates = len(res.Candidates)
	case <-ctx.Done():
		out.Status = OutcomeFailed
		out.Error = "evaluator did not finish: " + ctx.Err().Error()
	}
	out.DurationMs = time.Since(start).Milliseconds()
	return out, res
}

func candidatesOf(results []evalResult) []alert.Candidate {
	var out []alert.Candidate
	for _, r := range results {
		out = append(out, r.Candidates...)
	}
	return out
}

func (s *AnalysisService) thresholdEvaluator(cfg *settings.Config, agg *analysis.Aggregation) evaluator {
	return evaluator{name: "threshold", run: func() (evalResult, error) {
		day, ok := agg.LatestDay()
		if !ok {
			return evalResult{}, errors.InsufficientData("no cost data in window")
		}
		candidates := analysis.NewThresholdEvaluator(cfg).Evaluate(agg)
		return evalResult{
			Candidates: candidates,
			Detail:     "evaluated " + day.Format(cost.DateLayout),
		}, nil
	}}
}

// latestAnomalyEvaluator scores each service's most recent day against the
// days since windowStart.
func (s *AnalysisService) latestAnomalyEvaluator(cfg *settings.Config, agg *analysis.Aggregation, windowStart time.Time) evaluator {
	return evaluator{name: "anomaly", run: func() (evalResult, error) {
		if !cfg.AnomalyDetection.Enabled {
			return evalResult{Status: OutcomeSkipped, Detail: "anomaly detection disabled"}, nil
		}
		window, scored := windowedSeries(agg.ByService, windowStart)
		if scored == 0 {
			return evalResult{}, errors.InsufficientData(fmt.Sprintf("no service has %d days of data", anomaly.MinDays))
		}
		detector := analysis.NewAnomalyDetector(cfg.AnomalyDetection)
		results := detector.DetectLatest(window)
		return evalResult{
			Candidates: analysis.AnomalyCandidates(results),
			Detail:     fmt.Sprintf("%d services scored at z > %.1f", scored, detector.Threshold()),
			Data:       results,
		}, nil
	}}
}

// anomalyScanEvaluator scores every day for the stored report. It raises no alerts.
func (s *AnalysisService) anomalyScanEvaluator(cfg *settings.Config, agg *analysis.Aggregation) evaluator {
	return evaluator{name: "anomaly_scan", run: func() (evalResult, error) {
		if !cfg.AnomalyDetection.Enabled {
			return evalResult{Status: OutcomeSkipped, Detail: "anomaly detection disabled", Data: []anomaly.Result{}}, nil
		}
		results := analysis.NewAnomalyDetector(cfg.AnomalyDetection).Scan(agg.ByService)
		if results == nil {
			results = []anomaly.Result{}
		}
		return evalResult{Detail: fmt.Sprintf("%d anomalous days", len(results)), Data: results}, nil
	}}
}

func windowedSeries(byService map[string]cost.DailySeries, since time.Time) (map[string]cost.DailySeries, int) {
	out := make(map[string]cost.DailySeries, len(byService))
	scored := 0
	for name, series := range byService {
		w := series.Since(since)
		out[name] = w
		if w.Len() >= anomaly.MinDays {
			scored++
		}
	}
	return out, scored
}

func (s *AnalysisService) budgetEvaluator(cfg *settings.Config, agg *analysis.Aggregation, now time.Time) evaluator {
	return evaluator{name: "budget", run: func() (evalResult, error) {
		if cfg.Budgets == nil {
			return evalResult{Status: OutcomeSkipped, Detail: "no budgets configured"}, nil
		}
		candidates, statuses := analysis.NewBudgetEvaluator(cfg.Budgets).Evaluate(agg, now)
		return evalResult{
			Candidates: candidates,
			Detail:     fmt.Sprintf("%d budgets checked", len(statuses)),
			Data:       statuses,
		}, nil
	}}
}

func (s *AnalysisService) trendEvaluator(agg *analysis.Aggregation) evaluator {
	forecast := s.cfg.ForecastDays
	return evaluator{name: "trend", run: func() (evalResult, error) {
		data := trendData{Overall: analysis.AnalyzeTrend(agg.Overall, forecast)}
		for _, name := range serviceNames(agg.ByService) {
			data.Services = append(data.Services, analysis.AnalyzeTrend(agg.ByService[name], forecast))
		}
		res := evalResult{Data: data}
		if err := data.Overall.Err(); err != nil {
			return res, err
		}
		res.Detail = fmt.Sprintf("overall %s, %.2f/day", data.Overall.Direction, data.Overall.Slope)
		return res, nil
	}}
}

func (s *AnalysisService) recommendationEvaluator(agg *analysis.Aggregation, now time.Time) evaluator {
	model := s.savings
	return evaluator{name: "recommendation", run: func() (evalResult, error) {
		recs := model.Recommend(agg.Resources, now)
		return evalResult{
			Detail: fmt.Sprintf("%d of %d resources flagged", len(recs), len(agg.Resources)),
			Data:   recs,
		}, nil
	}}
}

func serviceNames(m map[string]cost.DailySeries) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
