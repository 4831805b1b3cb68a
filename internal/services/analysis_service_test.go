package services

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/pratik-mahalle/costwatch/internal/config"
	"github.com/pratik-mahalle/costwatch/internal/domain/alert"
	"github.com/pratik-mahalle/costwatch/internal/domain/cost"
	"github.com/pratik-mahalle/costwatch/internal/domain/notification"
	"github.com/pratik-mahalle/costwatch/internal/domain/report"
	"github.com/pratik-mahalle/costwatch/internal/domain/settings"
	"github.com/pratik-mahalle/costwatch/internal/pkg/errors"
	"github.com/pratik-mahalle/costwatch/internal/testutil"
)

var runNow = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

type analysisFixture struct {
	svc        *AnalysisService
	costs      *testutil.MockCostRepository
	alerts     *testutil.MockAlertRepository
	recs       *testutil.MockRecommendationRepository
	reports    *testutil.MockReportRepository
	settings   *testutil.MockSettingsRepository
	dispatcher *testutil.MockDispatcher
}

func newAnalysisFixture(records ...*cost.Record) *analysisFixture {
	f := &analysisFixture{
		costs:      testutil.NewMockCostRepository(records...),
		alerts:     testutil.NewMockAlertRepository(),
		recs:       testutil.NewMockRecommendationRepository(),
		reports:    testutil.NewMockReportRepository(),
		settings:   testutil.NewMockSettingsRepository(),
		dispatcher: testutil.NewMockDispatcher(),
	}
	log := testLogger()
	clock := testutil.FixedClock(runNow)
	manager := NewAlertManager(f.alerts, f.dispatcher, 6*time.Hour, 30*24*time.Hour, log, WithClock(clock))
	f.svc = NewAnalysisService(AnalysisDeps{
		Costs:           f.costs,
		Recommendations: f.recs,
		Reports:         f.reports,
		Settings:        NewSettingsService(f.settings, "", log),
		Alerts:          manager,
		Dispatcher:      f.dispatcher,
		Engine: config.EngineConfig{
			PageSize:       4,
			ReadRetries:    3,
			RetryBaseDelay: time.Millisecond,
		},
		Clock:  clock,
		Logger: log,
	})
	return f
}

// spikeRecords is 14 days of steady EC2 spend followed by a spike today
func spikeRecords() []*cost.Record {
	values := append(testutil.Repeat(40, 14), 300)
	return testutil.DailyRecords("EC2", "us-east-1", cost.Truncate(runNow), values...)
}

func outcome(rep *RunReport, name string) EvaluatorOutcome {
	for _, o := range rep.Evaluators {
		if o.Name == name {
			return o
		}
	}
	return EvaluatorOutcome{}
}

func TestAnalysisService_RunAlerting(t *testing.T) {
	f := newAnalysisFixture(spikeRecords()...)
	f.settings.Docs[settings.KeyBudgets] = []byte(`{"overall_budget": {"monthly_limit": 500}}`)

	rep, err := f.svc.Run(context.Background(), RunKindAlerting)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rep.Status != RunStatusCompleted {
		t.Errorf("Status = %s, errors = %v", rep.Status, rep.Errors)
	}
	if rep.RecordsProcessed != 15 || rep.RecordsSkipped != 0 {
		t.Errorf("records = %d/%d", rep.RecordsProcessed, rep.RecordsSkipped)
	}
	if rep.WindowStart != "2024-01-01" || rep.WindowEnd != "2024-01-16" {
		t.Errorf("window = %s..%s", rep.WindowStart, rep.WindowEnd)
	}

	// overall critical, overall warning (deduped), EC2 threshold, anomaly, budget
	if rep.AlertsGenerated() != 4 || rep.Alerts.Duplicates != 1 {
		t.Errorf("alerts = %+v", rep.Alerts)
	}
	types := map[string]string{}
	for _, a := range f.alerts.Alerts {
		types[a.Type] = a.Severity
	}
	want := map[string]string{
		alert.TypeThresholdBreach:        alert.SeverityCritical,
		alert.TypeServiceThresholdBreach: alert.SeverityWarning,
		alert.TypeAnomalyDetection:       alert.SeverityCritical,
		alert.TypeBudgetExceeded:         alert.SeverityCritical,
	}
	for typ, sev := range want {
		if types[typ] != sev {
			t.Errorf("%s severity = %q, want %q", typ, types[typ], sev)
		}
	}

	if n := len(f.dispatcher.OnChannel(notification.ChannelAnomalies)); n != 1 {
		t.Errorf("anomalies channel got %d messages", n)
	}
	if n := len(f.dispatcher.OnChannel(notification.ChannelBudget)); n != 1 {
		t.Errorf("budget channel got %d messages", n)
	}

	// a second run inside the dedup window raises nothing new
	rep, err = f.svc.RunAlerting(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.AlertsGenerated() != 0 || rep.Alerts.Duplicates != 5 {
		t.Errorf("second run alerts = %+v", rep.Alerts)
	}
}

func TestAnalysisService_RunAlertingQuietData(t *testing.T) {
	f := newAnalysisFixture(testutil.DailyRecords("S3", "us-east-1", cost.Truncate(runNow), 5, 6, 5, 6, 5, 6, 5, 6)...)

	rep, err := f.svc.RunAlerting(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.AlertsGenerated() != 0 {
		t.Errorf("expected no alerts, got %+v", rep.Alerts)
	}
	if o := outcome(rep, "budget"); o.Status != OutcomeSkipped {
		t.Errorf("budget outcome = %+v", o)
	}
	if o := outcome(rep, "anomaly"); o.Status != OutcomeOK {
		t.Errorf("anomaly outcome = %+v", o)
	}
}

func TestAnalysisService_RunAlertingNoData(t *testing.T) {
	f := newAnalysisFixture()
	rep, err := f.svc.RunAlerting(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if o := outcome(rep, "threshold"); o.Status != OutcomeInsufficientData || o.Code != "INSUFFICIENT_DATA" || o.Error != "" {
		t.Errorf("threshold outcome = %+v", o)
	}
	if o := outcome(rep, "anomaly"); o.Status != OutcomeInsufficientData {
		t.Errorf("anomaly outcome = %+v", o)
	}
	if rep.Status != RunStatusCompleted {
		t.Errorf("Status = %s", rep.Status)
	}
}

func TestAnalysisService_SkipsInvalidRecords(t *testing.T) {
	records := spikeRecords()
	records = append(records,
		&cost.Record{Service: "EC2", Region: "us-east-1", Timestamp: "yesterday"},
		&cost.Record{Service: "", Region: "us-east-1", Timestamp: "2024-01-14"},
	)
	f := newAnalysisFixture(records...)

	rep, err := f.svc.RunAlerting(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// the unparseable timestamp sorts outside the window; the blank service is rejected
	if rep.RecordsSkipped != 1 || len(rep.Rejections) != 1 {
		t.Errorf("skipped = %d, rejections = %+v", rep.RecordsSkipped, rep.Rejections)
	}
}

func TestAnalysisService_RunAnalysis(t *testing.T) {
	f := newAnalysisFixture(spikeRecords()...)

	rep, err := f.svc.Run(context.Background(), "")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rep.Kind != RunKindAnalysis || rep.Status != RunStatusCompleted {
		t.Errorf("kind/status = %s/%s, errors = %v", rep.Kind, rep.Status, rep.Errors)
	}
	if rep.WindowStart != "2023-12-16" {
		t.Errorf("WindowStart = %s", rep.WindowStart)
	}
	if len(rep.Evaluators) != 6 {
		t.Errorf("expected 6 evaluators, got %d", len(rep.Evaluators))
	}
	if rep.Recommendations != 1 || len(f.recs.Recommendations) != 1 {
		t.Errorf("recommendations stored = %d", rep.Recommendations)
	}

	stored, ok := f.reports.Results[report.TypeTrendAnalysis+"/2024-01-15"]
	if !ok {
		t.Fatalf("analysis result not stored: %v", f.reports.Results)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(stored.Results, &doc); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"statistics", "overall_trend", "anomalies", "cost_drivers", "optimization_opportunities", "insights"} {
		if _, ok := doc[key]; !ok {
			t.Errorf("analysis document missing %q", key)
		}
	}
	var anomalies []map[string]interface{}
	_ = json.Unmarshal(doc["anomalies"], &anomalies)
	if len(anomalies) != 1 || anomalies[0]["service"] != "EC2" {
		t.Errorf("anomalies = %s", doc["anomalies"])
	}
	if !stored.ExpiresAt.Equal(runNow.Add(report.TTL)) {
		t.Errorf("ExpiresAt = %v", stored.ExpiresAt)
	}
}

func TestAnalysisService_RunSummary(t *testing.T) {
	f := newAnalysisFixture(spikeRecords()...)
	f.alerts.Alerts["a1"] = &alert.Alert{
		ID:        "a1",
		Type:      alert.TypeThresholdBreach,
		Severity:  alert.SeverityWarning,
		Service:   "Overall",
		Status:    alert.StatusActive,
		CreatedAt: time.Date(2024, 1, 14, 12, 0, 0, 0, time.UTC),
		ExpiresAt: runNow.Add(time.Hour),
	}

	rep, err := f.svc.Run(context.Background(), report.TypeDailySummary)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rep.Summary == nil || rep.Summary.TotalCost != 40 {
		t.Errorf("summary = %+v", rep.Summary)
	}
	if _, ok := f.reports.Results[report.TypeDailySummary+"/2024-01-15"]; !ok {
		t.Error("summary not stored")
	}

	sent := f.dispatcher.OnChannel(notification.ChannelReports)
	if len(sent) != 2 {
		t.Fatalf("expected summary and digest on reports channel, got %d", len(sent))
	}
	if !strings.HasPrefix(sent[1].Subject, "Cost Alert Digest") {
		t.Errorf("digest subject = %q", sent[1].Subject)
	}
}

func TestAnalysisService_RunSummaryPublishFailure(t *testing.T) {
	f := newAnalysisFixture(spikeRecords()...)
	f.dispatcher.Error = stderrors.New("webhook down")

	rep, err := f.svc.RunSummary(context.Background(), report.TypeWeeklySummary)
	if err != nil {
		t.Fatalf("RunSummary() error = %v", err)
	}
	if rep.Status != RunStatusPartial {
		t.Errorf("Status = %s, want partial", rep.Status)
	}
	if _, ok := f.reports.Results[report.TypeWeeklySummary+"/2024-01-15"]; !ok {
		t.Error("summary should be stored even when publishing fails")
	}
}

func TestAnalysisService_UnknownReportType(t *testing.T) {
	f := newAnalysisFixture()
	if _, err := f.svc.Run(context.Background(), "quarterly"); !errors.IsCode(err, errors.ErrCodeBadRequest) {
		t.Errorf("Run() error = %v", err)
	}
}

func TestAnalysisService_PingFailure(t *testing.T) {
	f := newAnalysisFixture(spikeRecords()...)
	f.costs.PingError = stderrors.New("connection refused")

	rep, err := f.svc.RunAlerting(context.Background())
	if !errors.IsCode(err, errors.ErrCodeUpstream) {
		t.Fatalf("RunAlerting() error = %v", err)
	}
	if rep.Status != RunStatusFailed || len(rep.Errors) != 1 {
		t.Errorf("report = %+v", rep)
	}
	if len(f.alerts.Alerts) != 0 {
		t.Error("no alerts should be raised when the store is down")
	}
}

func TestAnalysisService_QueryRetries(t *testing.T) {
	f := newAnalysisFixture(spikeRecords()...)
	f.costs.TransientError = stderrors.New("timeout")
	f.costs.TransientFailures = 2

	rep, err := f.svc.RunAlerting(context.Background())
	if err != nil {
		t.Fatalf("RunAlerting() error = %v", err)
	}
	if rep.RecordsProcessed != 15 {
		t.Errorf("RecordsProcessed = %d", rep.RecordsProcessed)
	}
	// 2 failures, then 4 pages of 4 records
	if f.costs.QueryCalls != 6 {
		t.Errorf("QueryCalls = %d, want 6", f.costs.QueryCalls)
	}
}

func TestAnalysisService_QueryGivesUp(t *testing.T) {
	f := newAnalysisFixture(spikeRecords()...)
	f.costs.QueryError = stderrors.New("timeout")

	rep, err := f.svc.RunAlerting(context.Background())
	if !errors.IsCode(err, errors.ErrCodeUpstream) {
		t.Fatalf("RunAlerting() error = %v", err)
	}
	if f.costs.QueryCalls != 4 {
		t.Errorf("QueryCalls = %d, want 1 attempt + 3 retries", f.costs.QueryCalls)
	}
	if rep.Status != RunStatusFailed {
		t.Errorf("Status = %s", rep.Status)
	}
}

func TestAnalysisService_EvaluatorIsolation(t *testing.T) {
	f := newAnalysisFixture()
	f.svc.cfg.EvaluatorTimeout = 20 * time.Millisecond

	outcomes, results := f.svc.evaluate(context.Background(), []evaluator{
		{name: "ok", run: func() (evalResult, error) {
			return evalResult{Candidates: []alert.Candidate{{Type: alert.TypeThresholdBreach}}}, nil
		}},
		{name: "error", run: func() (evalResult, error) {
			return evalResult{}, stderrors.New("boom")
		}},
		{name: "panic", run: func() (evalResult, error) {
			var m map[string]int
			m["x"] = 1
			return evalResult{}, nil
		}},
		{name: "slow", run: func() (evalResult, error) {
			time.Sleep(200 * time.Millisecond)
			return evalResult{}, nil
		}},
	})

	want := []string{OutcomeOK, OutcomeFailed, OutcomeFailed, OutcomeFailed}
	for i, o := range outcomes {
		if o.Status != want[i] {
			t.Errorf("%s status = %s, want %s", o.Name, o.Status, want[i])
		}
	}
	if !strings.Contains(outcomes[2].Error, "panic") {
		t.Errorf("panic error = %q", outcomes[2].Error)
	}
	if got := candidatesOf(results); len(got) != 1 {
		t.Errorf("expected only the healthy evaluator's candidate, got %d", len(got))
	}

	rep := &RunReport{StartedAt: runNow, Evaluators: outcomes}
	if rep, _ = f.svc.finish(rep, nil); rep.Status != RunStatusPartial {
		t.Errorf("Status = %s, want partial", rep.Status)
	}
}
