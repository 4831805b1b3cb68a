package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pratik-mahalle/costwatch/internal/auth"
	"github.com/pratik-mahalle/costwatch/internal/domain/alert"
	"github.com/pratik-mahalle/costwatch/internal/domain/job"
	"github.com/pratik-mahalle/costwatch/internal/domain/settings"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", filepath.Join(dir, "costwatch.db"))
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("LOG_OUTPUT", "stderr")
	t.Setenv("COSTWATCH_SETTINGS_FILE", "")
	t.Setenv("JWT_SECRET", "cli-secret")
	return dir
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestMigrate(t *testing.T) {
	setupEnv(t)

	out, err := runCLI(t, "migrate")
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !strings.Contains(out, "Applied") {
		t.Errorf("first migrate output = %q", out)
	}

	out, err = runCLI(t, "migrate")
	if err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if !strings.Contains(out, "up to date") {
		t.Errorf("second migrate output = %q", out)
	}
}

func TestRunRecordsExecution(t *testing.T) {
	setupEnv(t)

	out, err := runCLI(t, "run", "--report-type", "alerting", "-o", "json")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	var exec job.Execution
	if err := json.Unmarshal([]byte(out), &exec); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if exec.JobType != job.JobTypeAlerting || exec.Trigger != "cli" || exec.Status != job.ExecutionStatusCompleted {
		t.Errorf("unexpected execution %+v", exec)
	}

	out, err = runCLI(t, "runs", "-o", "json")
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if !strings.Contains(out, exec.ID) {
		t.Errorf("run history missing %s: %s", exec.ID, out)
	}

	out, err = runCLI(t, "runs", "--job-type", "alerting")
	if err != nil {
		t.Fatalf("runs table: %v", err)
	}
	if !strings.Contains(out, "[+] completed") {
		t.Errorf("table output = %q", out)
	}
}

func TestCLIRejectsBadInput(t *testing.T) {
	setupEnv(t)

	tests := []struct {
		name string
		args []string
	}{
		{"unknown report type", []string{"run", "--report-type", "hourly"}},
		{"collect without sources", []string{"collect"}},
		{"bad severity filter", []string{"alerts", "list", "--severity", "urgent"}},
		{"bad since date", []string{"alerts", "list", "--since", "yesterday"}},
		{"escalate without level", []string{"alerts", "escalate", "a-1"}},
		{"escalate level out of range", []string{"alerts", "escalate", "a-1", "--level", "5"}},
		{"metrics days out of range", []string{"alerts", "metrics", "--days", "0"}},
		{"missing alert", []string{"alerts", "get", "nope"}},
		{"bad recommendation status", []string{"recommendations", "update", "r-1", "--status", "done"}},
		{"non-numeric savings", []string{"recommendations", "update", "r-1", "--status", "implemented", "--actual-savings", "lots"}},
		{"unknown job type", []string{"runs", "--job-type", "hourly"}},
		{"unknown settings key", []string{"settings", "set", "limits", "missing.yaml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := runCLI(t, tt.args...); err == nil {
				t.Errorf("%v: expected error", tt.args)
			}
		})
	}
}

func TestAlertsListEmpty(t *testing.T) {
	setupEnv(t)

	out, err := runCLI(t, "alerts", "list", "-o", "json")
	if err != nil {
		t.Fatalf("alerts list: %v", err)
	}
	var alerts []*alert.Alert
	if err := json.Unmarshal([]byte(out), &alerts); err != nil || len(alerts) != 0 {
		t.Errorf("alerts = %v, %v (%q)", alerts, err, out)
	}

	out, err = runCLI(t, "alerts", "list")
	if err != nil {
		t.Fatalf("alerts list table: %v", err)
	}
	if !strings.Contains(out, "No alerts found") {
		t.Errorf("table output = %q", out)
	}
}

func TestSettingsSetAndShow(t *testing.T) {
	dir := setupEnv(t)

	path := filepath.Join(dir, "thresholds.yaml")
	doc := "cost_thresholds:\n  daily:\n    warning: 10\n    critical: 20\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := runCLI(t, "settings", "set", "thresholds", path); err != nil {
		t.Fatalf("settings set: %v", err)
	}

	out, err := runCLI(t, "settings", "show", "-o", "json")
	if err != nil {
		t.Fatalf("settings show: %v", err)
	}
	var cfg settings.Config
	if err := json.Unmarshal([]byte(out), &cfg); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if got := cfg.CostThresholds.Daily()[settings.SeverityWarning]; got != 10 {
		t.Errorf("daily warning = %v, want 10", got)
	}
	if cfg.CostThresholds[settings.PeriodWeekly] != nil {
		t.Error("cost_thresholds should be replaced as a whole")
	}
}

func TestTokenCommand(t *testing.T) {
	setupEnv(t)

	out, err := runCLI(t, "token", "--operator", "alice")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	claims, err := auth.ParseClaims(strings.TrimSpace(out), "cli-secret")
	if err != nil {
		t.Fatalf("ParseClaims: %v", err)
	}
	if claims.Operator != "alice" {
		t.Errorf("operator = %q", claims.Operator)
	}
}

func TestReadSettingsDocument(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
		return p
	}

	jsonDoc := `{"overall_budget":{"monthly_limit":5000}}`
	got, err := readSettingsDocument(write("budgets.json", jsonDoc))
	if err != nil || string(got) != jsonDoc {
		t.Errorf("json passthrough = %s, %v", got, err)
	}

	got, err = readSettingsDocument(write("budgets.yml", "overall_budget:\n  monthly_limit: 5000\n"))
	if err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if !json.Valid(got) || !strings.Contains(string(got), `"monthly_limit":5000`) {
		t.Errorf("yaml conversion = %s", got)
	}

	if _, err := readSettingsDocument(write("bad.yaml", "overall_budget: [")); err == nil {
		t.Error("expected parse error")
	}
}

func TestPrintYAMLUsesJSONNames(t *testing.T) {
	var buf bytes.Buffer
	exec := &job.Execution{ID: "exec-1", JobType: job.JobTypeAlerting, Status: job.ExecutionStatusCompleted}
	if err := printOutput(&buf, "yaml", exec); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"id: exec-1", "job_type: alerting", "status: completed"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("yaml output missing %q:\n%s", want, buf.String())
		}
	}
}

func TestFormatters(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{formatSeverity("critical"), "[!] CRITICAL"},
		{formatSeverity("warning"), "[W] WARNING"},
		{formatStatus("acknowledged"), "[~] acknowledged"},
		{formatStatus("failed"), "[-] failed"},
		{truncate("abcdefgh", 5), "ab..."},
		{truncate("abc", 5), "abc"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}
