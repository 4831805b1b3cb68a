package services

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"
	"time"

	"github.com/pratik-mahalle/costwatch/internal/config"
	"github.com/pratik-mahalle/costwatch/internal/domain/alert"
	"github.com/pratik-mahalle/costwatch/internal/domain/job"
	"github.com/pratik-mahalle/costwatch/internal/pkg/errors"
	"github.com/pratik-mahalle/costwatch/internal/testutil"
)

func newTestJobService(f *analysisFixture, repo *testutil.MockJobRepository, schedules config.ScheduleConfig) *JobService {
	return NewJobService(repo, f.svc, nil, f.svc.alerts, schedules, testLogger())
}

func TestJobService_TriggerRecordsExecution(t *testing.T) {
	f := newAnalysisFixture(spikeRecords()...)
	repo := testutil.NewMockJobRepository()
	s := newTestJobService(f, repo, config.ScheduleConfig{})

	exec, err := s.Trigger(context.Background(), job.JobTypeAlerting, TriggerCLI)
	if err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	if exec.Status != job.ExecutionStatusCompleted || exec.Trigger != TriggerCLI || exec.CompletedAt == nil {
		t.Errorf("execution = %+v", exec)
	}

	var rep RunReport
	if err := json.Unmarshal(exec.Result, &rep); err != nil {
		t.Fatalf("result is not a run report: %v", err)
	}
	if rep.Alerts.Generated != 3 {
		t.Errorf("alerts_generated = %d", rep.Alerts.Generated)
	}

	latest, err := s.LatestExecution(context.Background(), job.JobTypeAlerting)
	if err != nil || latest == nil || latest.ID != exec.ID {
		t.Errorf("LatestExecution() = %+v, %v", latest, err)
	}
}

func TestJobService_TriggerFailureAndPartial(t *testing.T) {
	f := newAnalysisFixture(spikeRecords()...)
	repo := testutil.NewMockJobRepository()
	s := newTestJobService(f, repo, config.ScheduleConfig{})
	ctx := context.Background()

	f.costs.PingError = stderrors.New("connection refused")
	exec, err := s.Trigger(ctx, job.JobTypeAnalysis, TriggerAPI)
	if err == nil || exec.Status != job.ExecutionStatusFailed || exec.ErrorMessage == "" {
		t.Errorf("failed run = %+v, %v", exec, err)
	}

	f.costs.PingError = nil
	f.dispatcher.Error = stderrors.New("webhook down")
	exec, err = s.Trigger(ctx, job.JobTypeDailySummary, TriggerAPI)
	if err != nil || exec.Status != job.ExecutionStatusPartial {
		t.Errorf("partial run = %+v, %v", exec, err)
	}

	execs, total, _ := s.ListExecutions(ctx, job.ExecutionFilter{}, 10, 0)
	if total != 2 || len(execs) != 2 {
		t.Errorf("expected 2 executions, got %d", total)
	}
}

func TestJobService_TriggerValidation(t *testing.T) {
	f := newAnalysisFixture()
	s := newTestJobService(f, testutil.NewMockJobRepository(), config.ScheduleConfig{})
	ctx := context.Background()

	if _, err := s.Trigger(ctx, "reindex", TriggerAPI); !errors.IsCode(err, errors.ErrCodeBadRequest) {
		t.Errorf("invalid type error = %v", err)
	}
	// no collector configured
	if _, err := s.Trigger(ctx, job.JobTypeCollection, TriggerAPI); !errors.IsCode(err, errors.ErrCodeBadRequest) {
		t.Errorf("unconfigured type error = %v", err)
	}

	if !s.claim(job.JobTypeAlerting) {
		t.Fatal("claim failed")
	}
	if _, err := s.Trigger(ctx, job.JobTypeAlerting, TriggerAPI); !errors.IsCode(err, errors.ErrCodeConflict) {
		t.Errorf("overlapping run error = %v", err)
	}
	s.release(job.JobTypeAlerting)
	if _, err := s.Trigger(ctx, job.JobTypeAlerting, TriggerAPI); err != nil {
		t.Errorf("Trigger() after release error = %v", err)
	}
}

func TestJobService_Cleanup(t *testing.T) {
	f := newAnalysisFixture()
	f.alerts.Alerts["old"] = &alert.Alert{ID: "old", ExpiresAt: runNow.Add(-time.Hour)}
	repo := testutil.NewMockJobRepository()
	repo.Executions = append(repo.Executions, &job.Execution{
		ID:        "ancient",
		JobType:   job.JobTypeAlerting,
		StartedAt: time.Now().Add(-100 * 24 * time.Hour),
	})
	s := newTestJobService(f, repo, config.ScheduleConfig{})

	exec, err := s.Trigger(context.Background(), job.JobTypeCleanup, TriggerCLI)
	if err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	var res cleanupResult
	_ = json.Unmarshal(exec.Result, &res)
	if res.ExpiredAlerts != 1 || res.OldExecutions != 1 {
		t.Errorf("cleanup result = %+v", res)
	}
}

func TestJobService_StartStop(t *testing.T) {
	f := newAnalysisFixture()
	s := newTestJobService(f, testutil.NewMockJobRepository(), config.ScheduleConfig{
		Alerting:     "*/15 * * * *",
		DailySummary: "0 8 * * *",
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !s.IsRunning() {
		t.Error("expected scheduler running")
	}
	if err := s.Start(context.Background()); err == nil {
		t.Error("second Start() should fail")
	}

	entries := s.Entries()
	// alerting, cleanup and daily summary
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %+v", entries)
	}
	if entries[0].JobType != job.JobTypeAlerting || entries[0].Next.IsZero() {
		t.Errorf("first entry = %+v", entries[0])
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if s.IsRunning() || len(s.Entries()) != 0 {
		t.Error("expected scheduler stopped")
	}
}

func TestJobService_InvalidSchedule(t *testing.T) {
	f := newAnalysisFixture()
	s := newTestJobService(f, testutil.NewMockJobRepository(), config.ScheduleConfig{Alerting: "every minute"})
	if err := s.Start(context.Background()); err == nil {
		t.Error("expected invalid cron spec error")
	}
	if s.IsRunning() {
		t.Error("scheduler should not run after a failed start")
	}
}

func TestJobTypeFor(t *testing.T) {
	tests := []struct {
		reportType string
		want       job.JobType
		wantErr    bool
	}{
		{"", job.JobTypeAnalysis, false},
		{"trend_analysis", job.JobTypeAnalysis, false},
		{"alerting", job.JobTypeAlerting, false},
		{"weekly_summary", job.JobTypeWeeklySummary, false},
		{"collection", job.JobTypeCollection, false},
		{"quarterly_summary", "", true},
	}
	for _, tt := range tests {
		got, err := JobTypeFor(tt.reportType)
		if (err != nil) != tt.wantErr {
			t.Errorf("JobTypeFor(%q) error = %v", tt.reportType, err)
			continue
		}
		if got != tt.want {
			t.Errorf("JobTypeFor(%q) = %s, want %s", tt.reportType, got, tt.want)
		}
	}
}
