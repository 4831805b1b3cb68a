package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/pratik-mahalle/costwatch/internal/analysis"
	"github.com/pratik-mahalle/costwatch/internal/config"
	"github.com/pratik-mahalle/costwatch/internal/domain/anomaly"
	"github.com/pratik-mahalle/costwatch/internal/domain/cost"
	"github.com/pratik-mahalle/costwatch/internal/domain/notification"
	"github.com/pratik-mahalle/costwatch/internal/domain/recommendation"
	"github.com/pratik-mahalle/costwatch/internal/domain/report"
	"github.com/pratik-mahalle/costwatch/internal/domain/settings"
	"github.com/pratik-mahalle/costwatch/internal/pkg/errors"
	"github.com/pratik-mahalle/costwatch/internal/pkg/logger"
	"github.com/pratik-mahalle/costwatch/internal/pkg/metrics"
)

// Run kinds
const (
	RunKindAlerting = "alerting"
	RunKindAnalysis = report.TypeTrendAnalysis
)

// Run statuses
const (
	RunStatusCompleted = "completed"
	RunStatusPartial   = "partial"
	RunStatusFailed    = "failed"
)

// Evaluator outcome statuses
const (
	OutcomeOK               = "ok"
	OutcomeSkipped          = "skipped"
	OutcomeInsufficientData = "insufficient_data"
	OutcomeFailed           = "failed"
)

// maxReportedRejections caps the rejections copied into a RunReport
const maxReportedRejections = 20

// Archiver copies stored analysis results somewhere durable
type Archiver interface {
	Archive(ctx context.Context, res *report.AnalysisResult) error
}

// EvaluatorOutcome is the typed result of one evaluator in a run
type EvaluatorOutcome struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	Candidates int    `json:"candidates"`
	Detail     string `json:"detail,omitempty"`
	Code       string `json:"code,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// RunReport describes one batch invocation
type RunReport struct {
	RunID            string               `json:"run_id"`
	Kind             string               `json:"kind"`
	Status           string               `json:"status"`
	StartedAt        time.Time            `json:"started_at"`
	CompletedAt      time.Time            `json:"completed_at"`
	WindowStart      string               `json:"window_start"`
	WindowEnd        string               `json:"window_end"`
	RecordsProcessed int                  `json:"records_processed"`
	RecordsSkipped   int                  `json:"records_skipped"`
	SkippedFraction  float64              `json:"skipped_fraction"`
	Rejections       []analysis.Rejection `json:"rejections,omitempty"`
	Evaluators       []EvaluatorOutcome   `json:"evaluators,omitempty"`
	Alerts           ProcessResult        `json:"alerts"`
	Recommendations  int                  `json:"recommendations_stored"`
	Summary          *report.Summary      `json:"summary,omitempty"`
	Errors           []string             `json:"errors,omitempty"`
}

// AlertsGenerated returns the number of alerts persisted by the run
func (r *RunReport) AlertsGenerated() int {
	return r.Alerts.Generated
}

func (r *RunReport) fail(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// AnalysisDeps wires an AnalysisService
type AnalysisDeps struct {
	Costs           cost.Repository
	Recommendations recommendation.Repository
	Reports         report.Repository
	Settings        *SettingsService
	Alerts          *AlertManager
	Dispatcher      notification.Dispatcher
	Archiver        Archiver
	Engine          config.EngineConfig
	Savings         *analysis.SavingsModel
	Clock           func() time.Time
	Logger          *logger.Logger
}

// AnalysisService runs the alerting, analysis and summary passes. Each
// call is an independent, stateless batch.
type AnalysisService struct {
	costs      cost.Repository
	recs       recommendation.Repository
	reports    report.Repository
	settings   *SettingsService
	alerts     *AlertManager
	dispatcher notification.Dispatcher
	archiver   Archiver
	cfg        config.EngineConfig
	savings    analysis.SavingsModel
	now        func() time.Time
	logger     *logger.Logger
}

// NewAnalysisService creates the run orchestrator
func NewAnalysisService(deps AnalysisDeps) *AnalysisService {
	s := &AnalysisService{
		costs:      deps.Costs,
		recs:       deps.Recommendations,
		reports:    deps.Reports,
		settings:   deps.Settings,
		alerts:     deps.Alerts,
		dispatcher: deps.Dispatcher,
		archiver:   deps.Archiver,
		cfg:        deps.Engine,
		savings:    analysis.DefaultSavingsModel(),
		now:        deps.Clock,
		logger:     deps.Logger.Component("analysis"),
	}
	if deps.Savings != nil {
		s.savings = *deps.Savings
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.cfg.PageSize < 1 {
		s.cfg.PageSize = 500
	}
	return s
}

// Run dispatches on the trigger payload. An empty reportType runs the
// standard analysis.
func (s *AnalysisService) Run(ctx context.Context, reportType string) (*RunReport, error) {
	switch {
	case reportType == "" || reportType == report.TypeTrendAnalysis:
		return s.RunAnalysis(ctx)
	case reportType == RunKindAlerting:
		return s.RunAlerting(ctx)
	case report.IsSummary(reportType):
		return s.RunSummary(ctx, reportType)
	default:
		return nil, errors.BadRequest(fmt.Sprintf("unknown report_type %q", reportType))
	}
}

// RunAlerting evaluates thresholds, anomalies and budgets over the latest
// data and raises the resulting alerts.
func (s *AnalysisService) RunAlerting(ctx context.Context) (*RunReport, error) {
	now := s.now().UTC()
	today := cost.Truncate(now)
	anomalyStart := today.AddDate(0, 0, -s.anomalyWindow())
	start := analysis.MonthStart(now)
	if anomalyStart.Before(start) {
		start = anomalyStart
	}
	end := today.AddDate(0, 0, 1)

	rep, in, err := s.begin(ctx, RunKindAlerting, start, end)
	if err != nil {
		return s.finish(rep, err)
	}

	outcomes, results := s.evaluate(ctx, []evaluator{
		s.thresholdEvaluator(in.cfg, in.agg),
		s.latestAnomalyEvaluator(in.cfg, in.agg, anomalyStart),
		s.budgetEvaluator(in.cfg, in.agg, now),
	})
	rep.Evaluators = outcomes
	rep.Alerts = s.alerts.Process(ctx, candidatesOf(results))
	return s.finish(rep, nil)
}

// RunAnalysis runs the full analysis over the lookback window: trends,
// anomalies, thresholds, budgets and recommendations. The result document
// is stored as a trend_analysis result.
func (s *AnalysisService) RunAnalysis(ctx context.Context) (*RunReport, error) {
	now := s.now().UTC()
	today := cost.Truncate(now)
	windowStart := today.AddDate(0, 0, -s.lookbackDays())
	start := analysis.MonthStart(now)
	if windowStart.Before(start) {
		start = windowStart
	}
	end := today.AddDate(0, 0, 1)

	rep, in, err := s.begin(ctx, RunKindAnalysis, start, end)
	if err != nil {
		return s.finish(rep, err)
	}
	rep.WindowStart = windowStart.Format(cost.DateLayout)
	// budgets need the whole month, everything else only the lookback window
	full, cfg := in.agg, in.cfg
	agg := full
	if start.Before(windowStart) {
		agg = analysis.Aggregate(recordsSince(in.records, windowStart))
	}

	evals := []evaluator{
		s.trendEvaluator(agg),
		s.anomalyScanEvaluator(cfg, agg),
		s.latestAnomalyEvaluator(cfg, agg, today.AddDate(0, 0, -s.anomalyWindow())),
		s.thresholdEvaluator(cfg, agg),
		s.budgetEvaluator(cfg, full, now),
		s.recommendationEvaluator(agg, now),
	}
	outcomes, results := s.evaluate(ctx, evals)
	rep.Evaluators = outcomes
	rep.Alerts = s.alerts.Process(ctx, candidatesOf(results))

	doc := analysisDocument{
		GeneratedAt:   now,
		WindowStart:   rep.WindowStart,
		WindowEnd:     rep.WindowEnd,
		Statistics:    analysis.DescribeDaily(agg),
		Drivers:       analysis.CostDrivers(agg, 10),
		Opportunities: s.savings.Opportunities(agg),
		Insights:      analysis.Insights(agg),
	}
	for i, ev := range evals {
		switch data := results[i].Data.(type) {
		case trendData:
			doc.OverallTrend = &data.Overall
			doc.ServiceTrends = data.Services
		case []anomaly.Result:
			if ev.name == "anomaly_scan" {
				doc.Anomalies = data
			}
		case []analysis.BudgetStatus:
			doc.Budgets = data
		case []*recommendation.Recommendation:
			rep.Recommendations = s.storeRecommendations(ctx, rep, data)
			doc.Recommendations = len(data)
		}
	}
	doc.AlertsGenerated = rep.Alerts.Generated

	if err := s.storeResult(ctx, report.TypeTrendAnalysis, now, doc); err != nil {
		rep.fail("store analysis result: %v", err)
	}
	return s.finish(rep, nil)
}

// RunSummary builds, stores and publishes a daily, weekly or monthly summary
// and the alert digest for the same period.
func (s *AnalysisService) RunSummary(ctx context.Context, reportType string) (*RunReport, error) {
	if !report.IsSummary(reportType) {
		return nil, errors.BadRequest(fmt.Sprintf("unknown summary type %q", reportType))
	}
	now := s.now().UTC()
	start, end := analysis.SummaryWindow(reportType, now)

	rep, in, err := s.begin(ctx, reportType, start, end)
	if err != nil {
		return s.finish(rep, err)
	}

	summary := analysis.BuildSummary(reportType, in.agg, now)
	rep.Summary = &summary

	if err := s.storeResult(ctx, reportType, now, summary); err != nil {
		rep.fail("store summary: %v", err)
	}

	if s.dispatcher != nil {
		msg := notification.FormatSummary(summary)
		err := s.dispatcher.Send(ctx, msg.Channel, msg.Subject, msg.Body)
		metrics.RecordNotification(string(msg.Channel), err == nil)
		if err != nil {
			s.logger.WithFields(map[string]interface{}{"report_type": reportType}).
				ErrorWithErr(err, "Failed to publish summary")
			rep.fail("publish summary: %v", err)
		}
	}

	period := summary.PeriodStart
	if summary.PeriodEnd != summary.PeriodStart {
		period = summary.PeriodStart + " to " + summary.PeriodEnd
	}
	digest, err := s.alerts.Digest(ctx, period, start)
	if err != nil {
		rep.fail("alert digest: %v", err)
	} else if err := s.alerts.PublishDigest(ctx, digest); err != nil {
		rep.fail("publish alert digest: %v", err)
	}

	return s.finish(rep, nil)
}

// runInput is what every pass starts from
type runInput struct {
	records []*cost.Record
	agg     *analysis.Aggregation
	cfg     *settings.Config
}

// begin checks the store, loads configuration and reads [start, end).
func (s *AnalysisService) begin(ctx context.Context, kind string, start, end time.Time) (*RunReport, *runInput, error) {
	rep := &RunReport{
		RunID:       uuid.New().String(),
		Kind:        kind,
		StartedAt:   s.now().UTC(),
		WindowStart: start.Format(cost.DateLayout),
		WindowEnd:   end.Format(cost.DateLayout),
	}

	if err := s.costs.Ping(ctx); err != nil {
		return rep, nil, errors.Upstream("cost repository unavailable", err)
	}

	cfg := s.settings.Load(ctx)

	records, err := s.fetch(ctx, start, end)
	if err != nil {
		return rep, nil, err
	}

	agg := analysis.Aggregate(records)
	rep.RecordsProcessed = agg.Processed()
	rep.RecordsSkipped = len(agg.Rejected)
	rep.SkippedFraction = agg.SkippedFraction()
	if n := len(agg.Rejected); n > 0 {
		rep.Rejections = agg.Rejected[:min(n, maxReportedRejections)]
		s.logger.WithFields(map[string]interface{}{
			"run_id":   rep.RunID,
			"rejected": n,
			"first":    agg.Rejected[0].Reason,
		}).Warn("Skipped invalid cost records")
	}
	metrics.RecordRecords(agg.Processed(), len(agg.Rejected))
	return rep, &runInput{records: records, agg: agg, cfg: cfg}, nil
}

// recordsSince keeps records on or after day. Unparseable records are kept
// so the aggregator still rejects and counts them.
func recordsSince(records []*cost.Record, day time.Time) []*cost.Record {
	out := make([]*cost.Record, 0, len(records))
	for _, r := range records {
		if r == nil {
			continue
		}
		d, err := r.Day()
		if err != nil || !d.Before(day) {
			out = append(out, r)
		}
	}
	return out
}

// finish stamps the report, records metrics and logs the run summary
func (s *AnalysisService) finish(rep *RunReport, err error) (*RunReport, error) {
	rep.CompletedAt = s.now().UTC()
	switch {
	case err != nil:
		rep.Status = RunStatusFailed
		rep.fail("%v", err)
	case len(rep.Errors) > 0 || rep.Alerts.Failed > 0 || rep.Alerts.NotifyFailed > 0 || failedEvaluators(rep.Evaluators) > 0:
		rep.Status = RunStatusPartial
	default:
		rep.Status = RunStatusCompleted
	}
	metrics.RecordRun(rep.Kind, rep.Status, rep.CompletedAt.Sub(rep.StartedAt))

	log := s.logger.WithFields(map[string]interface{}{
		"run_id":            rep.RunID,
		"kind":              rep.Kind,
		"status":            rep.Status,
		"records_processed": rep.RecordsProcessed,
		"records_skipped":   rep.RecordsSkipped,
		"alerts_generated":  rep.Alerts.Generated,
		"duplicates":        rep.Alerts.Duplicates,
		"duration_ms":       rep.CompletedAt.Sub(rep.StartedAt).Milliseconds(),
	})
	if err != nil {
		log.ErrorWithErr(err, "Run failed")
		return rep, err
	}
	log.Info("Run finished")
	return rep, nil
}

func failedEvaluators(outcomes []EvaluatorOutcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Status == OutcomeFailed {
			n++
		}
	}
	return n
}

// fetch reads every page of [start, end). Each page is bounded by the query
// timeout and retried with exponential backoff.
func (s *AnalysisService) fetch(ctx context.Context, start, end time.Time) ([]*cost.Record, error) {
	var records []*cost.Record
	page := cost.Page{Limit: s.cfg.PageSize}
	for {
		var (
			batch []*cost.Record
			more  bool
		)
		op := func() error {
			qctx, cancel := withTimeout(ctx, s.cfg.QueryTimeout)
			defer cancel()
			var err error
			batch, more, err = s.costs.Query(qctx, cost.Filter{}, start, end, page)
			if errors.IsCode(err, errors.ErrCodeValidation) || errors.IsCode(err, errors.ErrCodeBadRequest) {
				return backoff.Permanent(err)
			}
			return err
		}
		notify := func(err error, wait time.Duration) {
			s.logger.WithFields(map[string]interface{}{
				"offset": page.Offset,
				"retry":  wait.String(),
			}).WarnWithErr(err, "Cost record query failed, retrying")
		}
		if err := backoff.RetryNotify(op, s.retryPolicy(ctx), notify); err != nil {
			return nil, errors.Upstream("failed to read cost records", err)
		}
		records = append(records, batch...)
		if !more || len(batch) == 0 {
			return records, nil
		}
		page = page.Next()
	}
}

func (s *AnalysisService) retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if s.cfg.RetryBaseDelay > 0 {
		b.InitialInterval = s.cfg.RetryBaseDelay
	}
	retries := s.cfg.ReadRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func (s *AnalysisService) lookbackDays() int {
	if s.cfg.LookbackDays > 0 {
		return s.cfg.LookbackDays
	}
	return 30
}

func (s *AnalysisService) anomalyWindow() int {
	if s.cfg.AnomalyWindow > 0 {
		return s.cfg.AnomalyWindow
	}
	return 14
}

// storeRecommendations upserts each recommendation and returns how many were stored
func (s *AnalysisService) storeRecommendations(ctx context.Context, rep *RunReport, recs []*recommendation.Recommendation) int {
	stored := 0
	for _, rec := range recs {
		if err := s.recs.Upsert(ctx, rec); err != nil {
			s.logger.WithFields(map[string]interface{}{
				"resource_id": rec.ResourceID,
			}).ErrorWithErr(err, "Failed to store recommendation")
			rep.fail("store recommendation %s: %v", rec.ResourceID, err)
			continue
		}
		stored++
	}
	return stored
}

// storeResult persists an analysis document and archives it when configured
func (s *AnalysisService) storeResult(ctx context.Context, analysisType string, now time.Time, doc interface{}) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", analysisType, err)
	}
	res := &report.AnalysisResult{
		ID:        uuid.New().String(),
		Type:      analysisType,
		Period:    now.Format(cost.DateLayout),
		Results:   payload,
		CreatedAt: now,
		ExpiresAt: now.Add(report.TTL),
	}
	if err := s.reports.Put(ctx, res); err != nil {
		return err
	}
	if s.archiver != nil {
		if err := s.archiver.Archive(ctx, res); err != nil {
			s.logger.WithFields(map[string]interface{}{"analysis_type": analysisType}).
				WarnWithErr(err, "Failed to archive analysis result")
		}
	}
	return nil
}

// analysisDocument is the stored trend_analysis result
type analysisDocument struct {
	GeneratedAt     time.Time               `json:"generated_at"`
	WindowStart     string                  `json:"window_start"`
	WindowEnd       string                  `json:"window_end"`
	Statistics      analysis.DailyStats     `json:"statistics"`
	OverallTrend    *analysis.Trend         `json:"overall_trend,omitempty"`
	ServiceTrends   []analysis.Trend        `json:"service_trends,omitempty"`
	Anomalies       []anomaly.Result        `json:"anomalies"`
	Budgets         []analysis.BudgetStatus `json:"budgets,omitempty"`
	Drivers         analysis.Drivers        `json:"cost_drivers"`
	Opportunities   recommendation.Savings  `json:"optimization_opportunities"`
	Insights        []analysis.Insight      `json:"insights"`
	Recommendations int                     `json:"recommendations"`
	AlertsGenerated int                     `json:"alerts_generated"`
}

type trendData struct {
	Overall  analysis.Trend
	Services []analysis.Trend
}
