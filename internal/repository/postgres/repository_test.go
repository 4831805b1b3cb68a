package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pratik-mahalle/costwatch/internal/domain/job"
	"github.com/pratik-mahalle/costwatch/internal/domain/recommendation"
	"github.com/pratik-mahalle/costwatch/internal/domain/report"
	"github.com/pratik-mahalle/costwatch/internal/domain/settings"
	"github.com/pratik-mahalle/costwatch/internal/pkg/errors"
	"github.com/shopspring/decimal"
)

func TestRecommendationRepository_Upsert(t *testing.T) {
	db := newTestDB(t)
	repo := NewRecommendationRepository(db)
	ctx := context.Background()

	rec := &recommendation.Recommendation{
		ID:               "rec-1",
		ResourceID:       "i-123",
		Type:             recommendation.TypeCostReview,
		Service:          "EC2",
		CurrentCost:      decimal.NewFromInt(600),
		EstimatedSavings: decimal.NewFromInt(120),
		Confidence:       recommendation.ConfidenceMedium,
		Priority:         recommendation.PriorityHigh,
	}
	if err := repo.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	// refreshed while open
	rec.CurrentCost = decimal.NewFromInt(700)
	rec.EstimatedSavings = decimal.NewFromInt(140)
	if err := repo.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	got, err := repo.GetByID(ctx, "rec-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if !got.EstimatedSavings.Equal(decimal.NewFromInt(140)) {
		t.Errorf("EstimatedSavings = %s, want 140", got.EstimatedSavings)
	}

	total, err := repo.GetTotalSavings(ctx)
	if err != nil {
		t.Fatalf("GetTotalSavings() error = %v", err)
	}
	if !total.Equal(decimal.NewFromInt(140)) {
		t.Errorf("GetTotalSavings() = %s, want 140", total)
	}

	// left alone once dismissed
	if err := repo.UpdateStatus(ctx, "rec-1", recommendation.StatusDismissed, decimal.Zero); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	rec.EstimatedSavings = decimal.NewFromInt(999)
	if err := repo.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	got, _ = repo.GetByID(ctx, "rec-1")
	if got.Status != recommendation.StatusDismissed || !got.EstimatedSavings.Equal(decimal.NewFromInt(140)) {
		t.Errorf("dismissed recommendation was overwritten: %+v", got)
	}

	total, _ = repo.GetTotalSavings(ctx)
	if !total.IsZero() {
		t.Errorf("expected no open savings, got %s", total)
	}
}

func TestRecommendationRepository_UpdateStatus(t *testing.T) {
	db := newTestDB(t)
	repo := NewRecommendationRepository(db)
	ctx := context.Background()

	if err := repo.Upsert(ctx, &recommendation.Recommendation{
		ID: "rec-2", ResourceID: "bucket", Type: recommendation.TypeCostReview, Service: "S3",
		Confidence: recommendation.ConfidenceMedium, Priority: recommendation.PriorityMedium,
	}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	tests := []struct {
		name     string
		id       string
		status   string
		wantCode string
	}{
		{"implemented", "rec-2", recommendation.StatusImplemented, ""},
		{"invalid status", "rec-2", "done", errors.ErrCodeBadRequest},
		{"missing", "nope", recommendation.StatusDismissed, errors.ErrCodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repo.UpdateStatus(ctx, tt.id, tt.status, decimal.NewFromInt(25))
			if errors.Code(err) != tt.wantCode {
				t.Errorf("UpdateStatus() error = %v, want code %q", err, tt.wantCode)
			}
		})
	}

	got, err := repo.GetByID(ctx, "rec-2")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if !got.Implemented || !got.ActualSavings.Equal(decimal.NewFromInt(25)) {
		t.Errorf("implementation not recorded: %+v", got)
	}

	list, total, err := repo.List(ctx, recommendation.Filter{Status: recommendation.StatusImplemented}, 10, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 1 || len(list) != 1 {
		t.Errorf("List() = %d (total %d), want 1", len(list), total)
	}
}

func TestSettingsRepository(t *testing.T) {
	db := newTestDB(t)
	repo := NewSettingsRepository(db)
	ctx := context.Background()

	if _, err := repo.Get(ctx, settings.KeyBudgets); !errors.IsCode(err, errors.ErrCodeConfigMissing) {
		t.Fatalf("expected CONFIG_MISSING, got %v", err)
	}

	if err := repo.Put(ctx, settings.KeyBudgets, []byte(`{"overall_budget":{"monthly_limit":1000}}`)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := repo.Put(ctx, settings.KeyBudgets, []byte(`{"overall_budget":{"monthly_limit":2000}}`)); err != nil {
		t.Fatalf("Put() overwrite error = %v", err)
	}

	doc, err := repo.Get(ctx, settings.KeyBudgets)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(doc) != `{"overall_budget":{"monthly_limit":2000}}` {
		t.Errorf("Get() = %s", doc)
	}
}

func TestReportRepository(t *testing.T) {
	db := newTestDB(t)
	repo := NewReportRepository(db)
	ctx := context.Background()

	first := &report.AnalysisResult{Type: report.TypeTrendAnalysis, Period: "2024-01-15", Results: json.RawMessage(`{"v":1}`)}
	second := &report.AnalysisResult{Type: report.TypeTrendAnalysis, Period: "2024-01-15", Results: json.RawMessage(`{"v":2}`)}
	for _, r := range []*report.AnalysisResult{first, second} {
		if err := repo.Put(ctx, r); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	latest, err := repo.Latest(ctx, report.TypeTrendAnalysis)
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if string(latest.Results) != `{"v":2}` {
		t.Errorf("expected same-period result to be replaced, got %s", latest.Results)
	}

	list, err := repo.List(ctx, report.TypeTrendAnalysis, 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 {
		t.Errorf("List() = %d results, want 1", len(list))
	}

	if _, err := repo.Latest(ctx, report.TypeDailySummary); !errors.IsCode(err, errors.ErrCodeNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestJobRepository_Executions(t *testing.T) {
	db := newTestDB(t)
	repo := NewJobRepository(db)
	ctx := context.Background()
	start := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

	older := &job.Execution{JobType: job.JobTypeAlerting, Trigger: "schedule", StartedAt: start.Add(-48 * time.Hour)}
	latest := &job.Execution{JobType: job.JobTypeAlerting, Trigger: "cli", StartedAt: start}
	for _, e := range []*job.Execution{older, latest} {
		if err := repo.CreateExecution(ctx, e); err != nil {
			t.Fatalf("CreateExecution() error = %v", err)
		}
	}

	done := start.Add(2 * time.Second)
	latest.Status = job.ExecutionStatusCompleted
	latest.CompletedAt = &done
	latest.DurationMs = 2000
	latest.Result = json.RawMessage(`{"alerts_generated":1}`)
	if err := repo.UpdateExecution(ctx, latest); err != nil {
		t.Fatalf("UpdateExecution() error = %v", err)
	}

	got, err := repo.GetLatestExecution(ctx, job.JobTypeAlerting)
	if err != nil || got == nil {
		t.Fatalf("GetLatestExecution() = %v, %v", got, err)
	}
	if got.ID != latest.ID || got.Status != job.ExecutionStatusCompleted || got.DurationMs != 2000 {
		t.Errorf("unexpected latest execution %+v", got)
	}

	none, err := repo.GetLatestExecution(ctx, job.JobTypeCollection)
	if err != nil || none != nil {
		t.Errorf("expected no collection execution, got %v, %v", none, err)
	}

	removed, err := repo.CleanupOldExecutions(ctx, start.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("CleanupOldExecutions() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("CleanupOldExecutions() = %d, want 1", removed)
	}

	list, total, err := repo.ListExecutions(ctx, job.ExecutionFilter{JobType: job.JobTypeAlerting}, 10, 0)
	if err != nil {
		t.Fatalf("ListExecutions() error = %v", err)
	}
	if total != 1 || len(list) != 1 {
		t.Errorf("ListExecutions() = %d (total %d), want 1", len(list), total)
	}
}
