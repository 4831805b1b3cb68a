package services

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pratik-mahalle/costwatch/internal/domain/alert"
	"github.com/pratik-mahalle/costwatch/internal/domain/notification"
	"github.com/pratik-mahalle/costwatch/internal/pkg/errors"
	"github.com/pratik-mahalle/costwatch/internal/pkg/logger"
	"github.com/pratik-mahalle/costwatch/internal/repository/postgres"
	"github.com/pratik-mahalle/costwatch/internal/testutil"
)

var alertNow = time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)

func newTestAlertManager(repo alert.Repository, d notification.Dispatcher, opts ...AlertManagerOption) *AlertManager {
	log := logger.New(logger.Config{Level: "error", Format: "json"})
	opts = append([]AlertManagerOption{WithClock(testutil.FixedClock(alertNow))}, opts...)
	return NewAlertManager(repo, d, 6*time.Hour, 30*24*time.Hour, log, opts...)
}

func thresholdCandidate(service string, amount float64) alert.Candidate {
	return alert.Candidate{
		Type:        alert.TypeServiceThresholdBreach,
		Severity:    alert.SeverityWarning,
		Service:     service,
		Region:      "All",
		CurrentCost: amount,
		Threshold:   50,
		Message:     service + " daily cost exceeded threshold",
	}
}

func TestAlertManager_RaiseStoresAndNotifies(t *testing.T) {
	repo := testutil.NewMockAlertRepository()
	d := testutil.NewMockDispatcher()
	m := newTestAlertManager(repo, d)

	a, err := m.Raise(context.Background(), thresholdCandidate("EC2", 75.456))
	if err != nil {
		t.Fatalf("Raise() error = %v", err)
	}
	if a.ID != "service_threshold_breach_ec2_All_20240115_093000" {
		t.Errorf("ID = %s", a.ID)
	}
	if a.CurrentCost.StringFixed(2) != "75.46" {
		t.Errorf("CurrentCost = %s, want 75.46", a.CurrentCost)
	}
	if !a.ExpiresAt.Equal(alertNow.Add(30 * 24 * time.Hour)) {
		t.Errorf("ExpiresAt = %v", a.ExpiresAt)
	}
	if !a.NotificationSent {
		t.Error("expected notification_sent")
	}

	sent := d.OnChannel(notification.ChannelAlerts)
	if len(sent) != 1 {
		t.Fatalf("expected 1 message on alerts channel, got %d", len(sent))
	}
	if !strings.Contains(sent[0].Subject, "EC2") {
		t.Errorf("subject = %q", sent[0].Subject)
	}

	stored, _ := repo.GetByID(context.Background(), a.ID)
	if !stored.NotificationSent || len(stored.NotificationChannels) != 1 || stored.NotifiedAt == nil {
		t.Errorf("stored alert not marked notified: %+v", stored)
	}
}

func TestAlertManager_Dedup(t *testing.T) {
	repo := testutil.NewMockAlertRepository()
	d := testutil.NewMockDispatcher()
	m := newTestAlertManager(repo, d)
	ctx := context.Background()

	if _, err := m.Raise(ctx, thresholdCandidate("EC2", 75)); err != nil {
		t.Fatalf("first Raise() error = %v", err)
	}
	_, err := m.Raise(ctx, thresholdCandidate("EC2", 80))
	if !stderrors.Is(err, alert.ErrDuplicate) {
		t.Fatalf("second Raise() error = %v, want duplicate", err)
	}
	if !errors.IsCode(err, errors.ErrCodeDuplicate) {
		t.Errorf("error code = %s", errors.Code(err))
	}
	if len(repo.Alerts) != 1 {
		t.Errorf("expected 1 stored alert, got %d", len(repo.Alerts))
	}
	if len(d.Sent) != 1 {
		t.Errorf("expected 1 notification, got %d", len(d.Sent))
	}

	// a different key is not a duplicate
	if _, err := m.Raise(ctx, thresholdCandidate("S3", 30)); err != nil {
		t.Errorf("Raise(S3) error = %v", err)
	}
}

func TestAlertManager_DedupWindowExpires(t *testing.T) {
	repo := testutil.NewMockAlertRepository()
	now := alertNow
	log := logger.New(logger.Config{Level: "error", Format: "json"})
	m := NewAlertManager(repo, nil, 6*time.Hour, 30*24*time.Hour, log, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	if _, err := m.Raise(ctx, thresholdCandidate("EC2", 75)); err != nil {
		t.Fatal(err)
	}
	now = now.Add(7 * time.Hour)
	if _, err := m.Raise(ctx, thresholdCandidate("EC2", 75)); err != nil {
		t.Errorf("Raise() after window error = %v", err)
	}
	if len(repo.Alerts) != 2 {
		t.Errorf("expected 2 alerts, got %d", len(repo.Alerts))
	}
}

func TestAlertManager_LockHeldOnlyAroundInsert(t *testing.T) {
	repo := testutil.NewMockAlertRepository()
	locker := testutil.NewMockLocker()
	now := alertNow
	log := logger.New(logger.Config{Level: "error", Format: "json"})
	m := NewAlertManager(repo, nil, 6*time.Hour, 30*24*time.Hour, log,
		WithClock(func() time.Time { return now }), WithLocker(locker))
	ctx := context.Background()

	a, err := m.Raise(ctx, thresholdCandidate("EC2", 75))
	if err != nil {
		t.Fatal(err)
	}
	if len(locker.Held) != 0 || len(locker.Released) != 1 {
		t.Errorf("lock should be released after insert: held=%v released=%v", locker.Held, locker.Released)
	}

	// the store still suppresses while the alert is active
	now = now.Add(time.Second)
	if _, err := m.Raise(ctx, thresholdCandidate("EC2", 80)); !stderrors.Is(err, alert.ErrDuplicate) {
		t.Fatalf("Raise() while active error = %v, want duplicate", err)
	}
	if len(locker.Held) != 0 {
		t.Errorf("lock should be released after a suppressed insert: %v", locker.Held)
	}

	// an acknowledged alert no longer suppresses
	if _, err := m.Acknowledge(ctx, a.ID, "ops"); err != nil {
		t.Fatalf("Acknowledge() error = %v", err)
	}
	now = now.Add(time.Second)
	b, err := m.Raise(ctx, thresholdCandidate("EC2", 85))
	if err != nil {
		t.Fatalf("Raise() after acknowledge error = %v", err)
	}

	if _, err := m.Resolve(ctx, b.ID, "ops", "rightsized"); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	now = now.Add(time.Second)
	if _, err := m.Raise(ctx, thresholdCandidate("EC2", 75)); err != nil {
		t.Errorf("Raise() after resolve error = %v", err)
	}
	if len(repo.Alerts) != 3 {
		t.Errorf("expected 3 stored alerts, got %d", len(repo.Alerts))
	}
}

func TestAlertManager_StaleLifecycleChangeRejected(t *testing.T) {
	repo := testutil.NewMockAlertRepository()
	m := newTestAlertManager(repo, nil)
	ctx := context.Background()

	a, err := m.Raise(ctx, thresholdCandidate("EC2", 75))
	if err != nil {
		t.Fatal(err)
	}
	stale, _ := repo.GetByID(ctx, a.ID)
	if _, err := m.Resolve(ctx, a.ID, "bob", "done"); err != nil {
		t.Fatal(err)
	}

	if err := stale.Acknowledge("alice", alertNow); err != nil {
		t.Fatal(err)
	}
	if err := repo.Update(ctx, stale, alert.StatusActive); !errors.IsCode(err, errors.ErrCodeInvalidTransition) {
		t.Errorf("stale Update() error = %v, want INVALID_TRANSITION", err)
	}
	if got, _ := repo.GetByID(ctx, a.ID); got.Status != alert.StatusResolved {
		t.Errorf("status = %s, want resolved", got.Status)
	}
}

func TestAlertManager_ConcurrentRaisePersistsOne(t *testing.T) {
	repo := postgres.NewAlertRepository(testutil.NewTestDB(t))
	var tick atomic.Int64
	clock := func() time.Time {
		// distinct ids per call so only the dedup rule can suppress
		return alertNow.Add(time.Duration(tick.Add(1)) * time.Second)
	}
	log := logger.New(logger.Config{Level: "error", Format: "json"})

	for _, withLocker := range []bool{false, true} {
		opts := []AlertManagerOption{WithClock(clock)}
		if withLocker {
			opts = append(opts, WithLocker(testutil.NewMockLocker()))
		}
		m := NewAlertManager(repo, nil, 6*time.Hour, 30*24*time.Hour, log, opts...)
		service := "EC2"
		if withLocker {
			service = "RDS"
		}

		const workers = 20
		var wg sync.WaitGroup
		var created, duplicates, failed atomic.Int64
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := m.Raise(context.Background(), thresholdCandidate(service, 75))
				switch {
				case err == nil:
					created.Add(1)
				case stderrors.Is(err, alert.ErrDuplicate):
					duplicates.Add(1)
				default:
					failed.Add(1)
				}
			}()
		}
		wg.Wait()

		if created.Load() != 1 || duplicates.Load() != workers-1 || failed.Load() != 0 {
			t.Errorf("locker=%v: created=%d duplicates=%d failed=%d", withLocker, created.Load(), duplicates.Load(), failed.Load())
		}
		_, total, err := repo.List(context.Background(), alert.Filter{Service: service}, 100, 0)
		if err != nil {
			t.Fatal(err)
		}
		if total != 1 {
			t.Errorf("locker=%v: stored %d alerts, want 1", withLocker, total)
		}
	}
}

func TestAlertManager_LockerSuppresses(t *testing.T) {
	repo := testutil.NewMockAlertRepository()
	locker := testutil.NewMockLocker()
	c := thresholdCandidate("EC2", 75)
	locker.Held[c.Key().String()] = true

	m := newTestAlertManager(repo, nil, WithLocker(locker))
	if _, err := m.Raise(context.Background(), c); !stderrors.Is(err, alert.ErrDuplicate) {
		t.Errorf("Raise() error = %v, want duplicate", err)
	}
	if len(repo.Alerts) != 0 {
		t.Error("alert should not be stored when the lock is held")
	}
}

func TestAlertManager_LockerUnavailableFallsBackToStore(t *testing.T) {
	repo := testutil.NewMockAlertRepository()
	locker := testutil.NewMockLocker()
	locker.AcquireError = stderrors.New("redis down")

	m := newTestAlertManager(repo, nil, WithLocker(locker))
	if _, err := m.Raise(context.Background(), thresholdCandidate("EC2", 75)); err != nil {
		t.Errorf("Raise() error = %v", err)
	}
	if len(repo.Alerts) != 1 {
		t.Errorf("expected alert stored, got %d", len(repo.Alerts))
	}
}

func TestAlertManager_NotifyFailureKeepsAlert(t *testing.T) {
	repo := testutil.NewMockAlertRepository()
	d := testutil.NewMockDispatcher()
	d.Error = stderrors.New("webhook 500")
	m := newTestAlertManager(repo, d)

	res := m.Process(context.Background(), []alert.Candidate{thresholdCandidate("EC2", 75)})
	if res.Generated != 1 || res.NotifyFailed != 1 || res.Failed != 0 {
		t.Errorf("Process() = %+v", res)
	}
	for _, a := range repo.Alerts {
		if a.NotificationSent {
			t.Error("notification_sent should stay false")
		}
	}
}

func TestAlertManager_ProcessCounts(t *testing.T) {
	repo := testutil.NewMockAlertRepository()
	m := newTestAlertManager(repo, testutil.NewMockDispatcher())

	res := m.Process(context.Background(), []alert.Candidate{
		thresholdCandidate("EC2", 75),
		thresholdCandidate("EC2", 90),
		thresholdCandidate("S3", 25),
	})
	if res.Generated != 2 || res.Duplicates != 1 {
		t.Errorf("Process() = %+v", res)
	}
	if len(res.Created) != 2 {
		t.Errorf("expected 2 created alerts, got %d", len(res.Created))
	}

	repo.PutError = stderrors.New("connection refused")
	res = m.Process(context.Background(), []alert.Candidate{thresholdCandidate("RDS", 75)})
	if res.Failed != 1 {
		t.Errorf("expected failed store to be counted, got %+v", res)
	}
}

func TestAlertManager_Lifecycle(t *testing.T) {
	repo := testutil.NewMockAlertRepository()
	m := newTestAlertManager(repo, nil)
	ctx := context.Background()

	a, err := m.Raise(ctx, thresholdCandidate("EC2", 75))
	if err != nil {
		t.Fatal(err)
	}

	acked, err := m.Acknowledge(ctx, a.ID, "alice")
	if err != nil {
		t.Fatalf("Acknowledge() error = %v", err)
	}
	if acked.Status != alert.StatusAcknowledged || acked.AcknowledgedBy != "alice" {
		t.Errorf("acknowledged alert = %+v", acked)
	}
	if _, err := m.Acknowledge(ctx, a.ID, "alice"); !errors.IsCode(err, errors.ErrCodeInvalidTransition) {
		t.Errorf("second Acknowledge() error = %v", err)
	}

	escalated, err := m.Escalate(ctx, a.ID, 2)
	if err != nil {
		t.Fatalf("Escalate() error = %v", err)
	}
	if escalated.Escalation == nil || escalated.Escalation.Recipients[0] != "director@company.com" {
		t.Errorf("escalation = %+v", escalated.Escalation)
	}
	if _, err := m.Escalate(ctx, a.ID, 4); !errors.IsCode(err, errors.ErrCodeBadRequest) {
		t.Errorf("Escalate(4) error = %v", err)
	}

	resolved, err := m.Resolve(ctx, a.ID, "bob", "scaled down")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !resolved.Resolved || resolved.ResolutionNotes != "scaled down" {
		t.Errorf("resolved alert = %+v", resolved)
	}
	if _, err := m.Escalate(ctx, a.ID, 1); !errors.IsCode(err, errors.ErrCodeInvalidTransition) {
		t.Errorf("Escalate() on resolved error = %v", err)
	}

	if _, err := m.Acknowledge(ctx, "missing", "alice"); !errors.IsCode(err, errors.ErrCodeNotFound) {
		t.Errorf("Acknowledge(missing) error = %v", err)
	}
}

func TestAlertManager_MetricsAndDigest(t *testing.T) {
	repo := testutil.NewMockAlertRepository()
	d := testutil.NewMockDispatcher()
	m := newTestAlertManager(repo, nil)
	ctx := context.Background()

	for _, c := range []alert.Candidate{
		thresholdCandidate("EC2", 75),
		thresholdCandidate("S3", 30),
		{Type: alert.TypeAnomalyDetection, Severity: alert.SeverityCritical, Service: "RDS", Region: "All", CurrentCost: 400},
	} {
		if _, err := m.Raise(ctx, c); err != nil {
			t.Fatal(err)
		}
	}
	a, _ := repo.FindActive(ctx, thresholdCandidate("EC2", 0).Key(), alertNow.Add(-time.Hour))
	if _, err := m.Acknowledge(ctx, a.ID, "alice"); err != nil {
		t.Fatal(err)
	}

	metrics, err := m.Metrics(ctx, 7)
	if err != nil {
		t.Fatalf("Metrics() error = %v", err)
	}
	if metrics.TotalAlerts != 3 {
		t.Errorf("TotalAlerts = %d", metrics.TotalAlerts)
	}
	if metrics.BySeverity[alert.SeverityWarning] != 2 || metrics.ByType[alert.TypeAnomalyDetection] != 1 {
		t.Errorf("breakdowns = %+v", metrics)
	}
	if metrics.AcknowledgmentRate != 33.33 {
		t.Errorf("AcknowledgmentRate = %v, want 33.33", metrics.AcknowledgmentRate)
	}

	digest, err := m.Digest(ctx, "2024-01-15", alertNow.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Digest() error = %v", err)
	}
	if digest.HighestCostAlert == nil || digest.HighestCostAlert.Service != "RDS" {
		t.Errorf("HighestCostAlert = %+v", digest.HighestCostAlert)
	}

	m.dispatcher = d
	if err := m.PublishDigest(ctx, digest); err != nil {
		t.Fatalf("PublishDigest() error = %v", err)
	}
	sent := d.OnChannel(notification.ChannelReports)
	if len(sent) != 1 || !strings.Contains(sent[0].Body, "anomaly_detection: 1") {
		t.Errorf("digest message = %+v", sent)
	}

	if err := m.PublishDigest(ctx, &alert.Digest{Period: "empty"}); err != nil || len(d.Sent) != 1 {
		t.Error("empty digests should not be sent")
	}
}

func TestAlertManager_Cleanup(t *testing.T) {
	repo := testutil.NewMockAlertRepository()
	repo.Alerts["old"] = &alert.Alert{ID: "old", ExpiresAt: alertNow.Add(-time.Hour)}
	repo.Alerts["new"] = &alert.Alert{ID: "new", ExpiresAt: alertNow.Add(time.Hour)}
	m := newTestAlertManager(repo, nil)

	n, err := m.Cleanup(context.Background())
	if err != nil || n != 1 {
		t.Errorf("Cleanup() = %d, %v", n, err)
	}
	if _, ok := repo.Alerts["new"]; !ok {
		t.Error("unexpired alert was deleted")
	}
}
