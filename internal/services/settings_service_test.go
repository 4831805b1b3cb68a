package services

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pratik-mahalle/costwatch/internal/domain/settings"
	"github.com/pratik-mahalle/costwatch/internal/pkg/errors"
	"github.com/pratik-mahalle/costwatch/internal/pkg/logger"
	"github.com/pratik-mahalle/costwatch/internal/testutil"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Format: "json"})
}

func TestSettingsService_DefaultsWhenMissing(t *testing.T) {
	s := NewSettingsService(testutil.NewMockSettingsRepository(), "", testLogger())
	cfg := s.Load(context.Background())

	if cfg.CostThresholds.Daily()[settings.SeverityWarning] != 100 {
		t.Errorf("daily warning = %v", cfg.CostThresholds.Daily())
	}
	if !cfg.AnomalyDetection.Enabled || cfg.AnomalyDetection.Sensitivity != "medium" {
		t.Errorf("anomaly = %+v", cfg.AnomalyDetection)
	}
	if cfg.Budgets != nil {
		t.Error("there is no default budget")
	}
}

func TestSettingsService_StoredDocuments(t *testing.T) {
	repo := testutil.NewMockSettingsRepository()
	repo.Docs[settings.KeyThresholds] = []byte(`{
		"cost_thresholds": {"daily": {"warning": 10, "critical": 20}},
		"service_thresholds": {"Amazon EC2": {"daily": 5}},
		"anomaly_detection": {"sensitivity": "high"}
	}`)
	repo.Docs[settings.KeyBudgets] = []byte(`{
		"overall_budget": {"monthly_limit": 3000},
		"category_budgets": {"compute": {"monthly_limit": 1000}}
	}`)

	cfg := NewSettingsService(repo, "", testLogger()).Load(context.Background())

	if cfg.CostThresholds.Daily()[settings.SeverityCritical] != 20 {
		t.Errorf("daily thresholds = %v", cfg.CostThresholds.Daily())
	}
	if _, ok := cfg.CostThresholds[settings.PeriodMonthly]; ok {
		t.Error("cost_thresholds should be replaced wholesale")
	}
	if l, ok := cfg.ServiceThresholds.Lookup("amazon ec2"); !ok || l.Daily != 5 {
		t.Errorf("service thresholds = %v", cfg.ServiceThresholds)
	}
	if _, ok := cfg.ServiceThresholds.Lookup("ec2"); ok {
		t.Error("service_thresholds should be replaced wholesale")
	}
	if !cfg.AnomalyDetection.Enabled || cfg.AnomalyDetection.Sensitivity != "high" {
		t.Errorf("anomaly section should merge, got %+v", cfg.AnomalyDetection)
	}
	if cfg.Budgets == nil || cfg.Budgets.Overall.MonthlyLimit != 3000 || cfg.Budgets.Categories["compute"].MonthlyLimit != 1000 {
		t.Errorf("budgets = %+v", cfg.Budgets)
	}
}

func TestSettingsService_InvalidDocumentFallsBack(t *testing.T) {
	repo := testutil.NewMockSettingsRepository()
	repo.Docs[settings.KeyThresholds] = []byte(`{not json`)
	cfg := NewSettingsService(repo, "", testLogger()).Load(context.Background())
	if cfg.CostThresholds.Daily()[settings.SeverityWarning] != 100 {
		t.Errorf("expected defaults, got %v", cfg.CostThresholds)
	}

	repo.GetError = stderrors.New("timeout")
	cfg = NewSettingsService(repo, "", testLogger()).Load(context.Background())
	if cfg.ServiceThresholds == nil {
		t.Error("expected default service thresholds on read failure")
	}
}

func TestSettingsService_FileWins(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "settings.yaml")
	doc := `cost_thresholds:
  daily:
    warning: 1
    critical: 2
budgets:
  overall_budget:
    monthly_limit: 500
`
	if err := os.WriteFile(file, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	repo := testutil.NewMockSettingsRepository()
	repo.Docs[settings.KeyThresholds] = []byte(`{"cost_thresholds": {"daily": {"warning": 10}}}`)

	cfg := NewSettingsService(repo, file, testLogger()).Load(context.Background())
	if cfg.CostThresholds.Daily()[settings.SeverityWarning] != 1 {
		t.Errorf("file should win, got %v", cfg.CostThresholds.Daily())
	}
	if cfg.Budgets == nil || cfg.Budgets.Overall == nil || cfg.Budgets.Overall.MonthlyLimit != 500 {
		t.Errorf("budgets = %+v", cfg.Budgets)
	}

	// unreadable file falls back to the store
	cfg = NewSettingsService(repo, filepath.Join(dir, "missing.yaml"), testLogger()).Load(context.Background())
	if cfg.CostThresholds.Daily()[settings.SeverityWarning] != 10 {
		t.Errorf("expected stored thresholds, got %v", cfg.CostThresholds.Daily())
	}
}

func TestSettingsService_Save(t *testing.T) {
	repo := testutil.NewMockSettingsRepository()
	s := NewSettingsService(repo, "", testLogger())
	ctx := context.Background()

	tests := []struct {
		name    string
		key     string
		doc     string
		wantErr bool
	}{
		{"valid thresholds", settings.KeyThresholds, `{"cost_thresholds": {}}`, false},
		{"unknown key", "secrets", `{}`, true},
		{"invalid json", settings.KeyBudgets, `{`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Save(ctx, tt.key, []byte(tt.doc))
			if (err != nil) != tt.wantErr {
				t.Errorf("Save() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.IsCode(err, errors.ErrCodeBadRequest) {
				t.Errorf("error code = %s", errors.Code(err))
			}
		})
	}
}
