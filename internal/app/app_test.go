package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/pratik-mahalle/costwatch/internal/config"
	"github.com/pratik-mahalle/costwatch/internal/domain/job"
	"github.com/pratik-mahalle/costwatch/internal/pkg/logger"
	"github.com/pratik-mahalle/costwatch/internal/services"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:           8080,
			WriteTimeout:   time.Minute,
			AllowedOrigins: []string{"*"},
			RateLimitRPS:   100,
			RateLimitBurst: 100,
		},
		Database: config.DatabaseConfig{
			Driver: "sqlite",
			Path:   filepath.Join(t.TempDir(), "costwatch.db"),
		},
		Engine: config.EngineConfig{
			DedupWindow: time.Hour,
			AlertTTL:    24 * time.Hour,
			PageSize:    100,
		},
		Collectors: config.CollectorConfig{LookbackDays: 2},
	}
}

func TestNewWithoutIntegrations(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t), logger.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if a.Collector != nil {
		t.Error("no billing source is enabled, collector should be nil")
	}
	if _, err := a.Jobs.Trigger(ctx, job.JobTypeCollection, services.TriggerCLI); err == nil {
		t.Error("collection should not be runnable without sources")
	}

	exec, err := a.Jobs.Trigger(ctx, job.JobTypeAlerting, services.TriggerCLI)
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if exec.Status != job.ExecutionStatusCompleted {
		t.Errorf("status = %s (%s)", exec.Status, exec.ErrorMessage)
	}

	latest, err := a.Jobs.LatestExecution(ctx, job.JobTypeAlerting)
	if err != nil || latest == nil || latest.ID != exec.ID {
		t.Errorf("latest execution = %+v, %v", latest, err)
	}
}

func TestHandlerServesProbes(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), logger.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	h, stop := a.Handler()
	defer stop()

	for _, path := range []string{"/healthz", "/readyz", "/api/v1/alerts"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d: %s", path, rec.Code, rec.Body.String())
		}
	}
}

func TestNewRejectsBadDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = "mysql"
	if _, err := New(context.Background(), cfg, logger.Nop()); err == nil {
		t.Error("expected unsupported driver error")
	}
}
