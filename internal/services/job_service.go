package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/pratik-mahalle/costwatch/internal/config"
	"github.com/pratik-mahalle/costwatch/internal/domain/job"
	"github.com/pratik-mahalle/costwatch/internal/domain/report"
	"github.com/pratik-mahalle/costwatch/internal/pkg/errors"
	"github.com/pratik-mahalle/costwatch/internal/pkg/logger"
)

// Job triggers
const (
	TriggerSchedule = "schedule"
	TriggerCLI      = "cli"
	TriggerAPI      = "api"
)

// executionRetention is how long run history is kept by the cleanup job
const executionRetention = 90 * 24 * time.Hour

// jobFunc runs one pass. partial marks a run that finished with some
// failures that did not stop it.
type jobFunc func(ctx context.Context) (result interface{}, partial bool, err error)

// ScheduledEntry describes one registered cron entry
type ScheduledEntry struct {
	JobType job.JobType `json:"job_type"`
	Spec    string      `json:"schedule"`
	Next    time.Time   `json:"next_run"`
}

// JobService schedules the engine passes and records every execution
type JobService struct {
	repo      job.Repository
	runners   map[job.JobType]jobFunc
	schedules map[job.JobType]string
	logger    *logger.Logger

	scheduler    *cron.Cron
	cronEntries  map[job.JobType]cron.EntryID
	entriesMutex sync.RWMutex
	isRunning    bool
	runningMutex sync.RWMutex

	// one execution per job type at a time
	inFlight   map[job.JobType]bool
	inFlightMu sync.Mutex
}

// NewJobService creates the scheduler. collector may be nil when no billing
// source is configured.
func NewJobService(
	repo job.Repository,
	analysis *AnalysisService,
	collector *CollectorService,
	alerts *AlertManager,
	schedules config.ScheduleConfig,
	log *logger.Logger,
) *JobService {
	s := &JobService{
		repo:        repo,
		runners:     map[job.JobType]jobFunc{},
		schedules:   map[job.JobType]string{},
		logger:      log.Component("scheduler"),
		cronEntries: make(map[job.JobType]cron.EntryID),
		inFlight:    make(map[job.JobType]bool),
	}

	s.register(job.JobTypeAlerting, schedules.Alerting, runReport(analysis.RunAlerting))
	s.register(job.JobTypeAnalysis, schedules.Analysis, runReport(analysis.RunAnalysis))
	s.register(job.JobTypeDailySummary, schedules.DailySummary, runSummary(analysis, report.TypeDailySummary))
	s.register(job.JobTypeWeeklySummary, schedules.WeeklySummary, runSummary(analysis, report.TypeWeeklySummary))
	s.register(job.JobTypeMonthlySummary, schedules.MonthlySummary, runSummary(analysis, report.TypeMonthlySummary))
	if collector != nil {
		s.register(job.JobTypeCollection, schedules.Collection, func(ctx context.Context) (interface{}, bool, error) {
			res, err := collector.Collect(ctx)
			if err != nil {
				return res, false, err
			}
			return res, res.Failed() > 0, nil
		})
	}
	s.register(job.JobTypeCleanup, "30 3 * * *", s.cleanup(alerts))
	return s
}

func (s *JobService) register(jobType job.JobType, spec string, fn jobFunc) {
	s.runners[jobType] = fn
	if spec != "" {
		s.schedules[jobType] = spec
	}
}

func runReport(run func(context.Context) (*RunReport, error)) jobFunc {
	return func(ctx context.Context) (interface{}, bool, error) {
		rep, err := run(ctx)
		if err != nil {
			return rep, false, err
		}
		return rep, rep.Status == RunStatusPartial, nil
	}
}

func runSummary(a *AnalysisService, reportType string) jobFunc {
	return runReport(func(ctx context.Context) (*RunReport, error) {
		return a.RunSummary(ctx, reportType)
	})
}

type cleanupResult struct {
	ExpiredAlerts int64 `json:"expired_alerts"`
	OldExecutions int64 `json:"old_executions"`
}

func (s *JobService) cleanup(alerts *AlertManager) jobFunc {
	return func(ctx context.Context) (interface{}, bool, error) {
		var res cleanupResult
		n, err := alerts.Cleanup(ctx)
		if err != nil {
			return res, false, err
		}
		res.ExpiredAlerts = n
		res.OldExecutions, err = s.repo.CleanupOldExecutions(ctx, time.Now().Add(-executionRetention))
		return res, false, err
	}
}

// Start registers every configured schedule and starts the cron loop
func (s *JobService) Start(ctx context.Context) error {
	s.runningMutex.Lock()
	defer s.runningMutex.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler already running")
	}

	cl := cronLogger{s.logger}
	s.scheduler = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	for _, jobType := range s.scheduledTypes() {
		if err := s.scheduleJob(ctx, jobType, s.schedules[jobType]); err != nil {
			s.scheduler = nil
			return err
		}
	}

	s.scheduler.Start()
	s.isRunning = true
	s.logger.Infof("Job scheduler started with %d schedules", len(s.cronEntries))
	return nil
}

// Stop stops the cron loop and waits for running jobs to finish
func (s *JobService) Stop() error {
	s.runningMutex.Lock()
	defer s.runningMutex.Unlock()

	if !s.isRunning {
		return nil
	}

	<-s.scheduler.Stop().Done()
	s.isRunning = false

	s.entriesMutex.Lock()
	s.cronEntries = make(map[job.JobType]cron.EntryID)
	s.entriesMutex.Unlock()

	s.logger.Info("Job scheduler stopped")
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *JobService) IsRunning() bool {
	s.runningMutex.RLock()
	defer s.runningMutex.RUnlock()
	return s.isRunning
}

// Entries lists the registered schedules with their next run time
func (s *JobService) Entries() []ScheduledEntry {
	s.entriesMutex.RLock()
	defer s.entriesMutex.RUnlock()

	out := make([]ScheduledEntry, 0, len(s.cronEntries))
	for jobType, id := range s.cronEntries {
		e := ScheduledEntry{JobType: jobType, Spec: s.schedules[jobType]}
		if s.scheduler != nil {
			e.Next = s.scheduler.Entry(id).Next
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JobType < out[j].JobType })
	return out
}

func (s *JobService) scheduledTypes() []job.JobType {
	types := make([]job.JobType, 0, len(s.schedules))
	for t := range s.schedules {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// scheduleJob adds a job type to the cron scheduler
func (s *JobService) scheduleJob(ctx context.Context, jobType job.JobType, spec string) error {
	s.entriesMutex.Lock()
	defer s.entriesMutex.Unlock()

	entryID, err := s.scheduler.AddFunc(spec, func() {
		if _, err := s.Trigger(ctx, jobType, TriggerSchedule); err != nil {
			s.logger.WithFields(map[string]interface{}{
				"job_type": jobType,
			}).ErrorWithErr(err, "Scheduled job failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", spec, jobType, err)
	}

	s.cronEntries[jobType] = entryID
	s.logger.WithFields(map[string]interface{}{
		"job_type": jobType,
		"schedule": spec,
	}).Info("Job scheduled")
	return nil
}

// Trigger runs a job synchronously and records the execution. A run of the
// same type that is still in flight makes this return a CONFLICT error.
func (s *JobService) Trigger(ctx context.Context, jobType job.JobType, trigger string) (*job.Execution, error) {
	if !jobType.IsValid() {
		return nil, errors.BadRequest(fmt.Sprintf("invalid job type: %s", jobType))
	}
	fn, ok := s.runners[jobType]
	if !ok {
		return nil, errors.BadRequest(fmt.Sprintf("job type %s is not configured", jobType))
	}
	if !s.claim(jobType) {
		return nil, errors.Conflict(fmt.Sprintf("%s is already running", jobType))
	}
	defer s.release(jobType)

	return s.executeJob(ctx, jobType, trigger, fn)
}

// JobTypeFor maps a trigger payload's report_type to the pass it selects.
// An empty report_type is a full analysis run.
func JobTypeFor(reportType string) (job.JobType, error) {
	switch reportType {
	case "", report.TypeTrendAnalysis:
		return job.JobTypeAnalysis, nil
	case RunKindAlerting:
		return job.JobTypeAlerting, nil
	}
	if jt := job.JobType(reportType); jt.IsValid() {
		return jt, nil
	}
	return "", errors.BadRequest(fmt.Sprintf("unknown report_type %q", reportType))
}

func (s *JobService) claim(jobType job.JobType) bool {
	s.inFlightMu.Lock()
	defer s.inFlightMu.Unlock()
	if s.inFlight[jobType] {
		return false
	}
	s.inFlight[jobType] = true
	return true
}

func (s *JobService) release(jobType job.JobType) {
	s.inFlightMu.Lock()
	delete(s.inFlight, jobType)
	s.inFlightMu.Unlock()
}

// executeJob runs fn and records the execution. Failing to record history
// never fails the job itself.
func (s *JobService) executeJob(ctx context.Context, jobType job.JobType, trigger string, fn jobFunc) (*job.Execution, error) {
	now := time.Now().UTC()
	execution := &job.Execution{
		ID:        uuid.New().String(),
		JobType:   jobType,
		Trigger:   trigger,
		Status:    job.ExecutionStatusRunning,
		StartedAt: now,
	}

	log := s.logger.WithFields(map[string]interface{}{
		"execution_id": execution.ID,
		"job_type":     jobType,
		"trigger":      trigger,
	})

	if err := s.repo.CreateExecution(ctx, execution); err != nil {
		log.WarnWithErr(err, "Failed to create execution record")
	}
	log.Info("Job execution started")

	result, partial, runErr := fn(ctx)

	completedAt := time.Now().UTC()
	execution.CompletedAt = &completedAt
	execution.DurationMs = completedAt.Sub(now).Milliseconds()
	if result != nil {
		if b, err := json.Marshal(result); err == nil {
			execution.Result = b
		}
	}

	switch {
	case runErr != nil:
		execution.Status = job.ExecutionStatusFailed
		execution.ErrorMessage = runErr.Error()
		log.ErrorWithErr(runErr, "Job execution failed")
	case partial:
		execution.Status = job.ExecutionStatusPartial
		log.WithFields(map[string]interface{}{"duration_ms": execution.DurationMs}).
			Warn("Job execution completed with failures")
	default:
		execution.Status = job.ExecutionStatusCompleted
		log.WithFields(map[string]interface{}{"duration_ms": execution.DurationMs}).
			Info("Job execution completed")
	}

	if err := s.repo.UpdateExecution(ctx, execution); err != nil {
		log.WarnWithErr(err, "Failed to update execution record")
	}
	return execution, runErr
}

// ListExecutions returns recorded runs
func (s *JobService) ListExecutions(ctx context.Context, filter job.ExecutionFilter, limit, offset int) ([]*job.Execution, int64, error) {
	return s.repo.ListExecutions(ctx, filter, limit, offset)
}

// LatestExecution returns the most recent run of a job type, or nil
func (s *JobService) LatestExecution(ctx context.Context, jobType job.JobType) (*job.Execution, error) {
	return s.repo.GetLatestExecution(ctx, jobType)
}

// cronLogger adapts the service logger to cron.Logger
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(kvFields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithFields(kvFields(keysAndValues)).ErrorWithErr(err, msg)
}

func kvFields(kv []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
