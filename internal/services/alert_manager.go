package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pratik-mahalle/costwatch/internal/analysis"
	"github.com/pratik-mahalle/costwatch/internal/domain/alert"
	"github.com/pratik-mahalle/costwatch/internal/domain/notification"
	"github.com/pratik-mahalle/costwatch/internal/pkg/errors"
	"github.com/pratik-mahalle/costwatch/internal/pkg/logger"
	"github.com/pratik-mahalle/costwatch/internal/pkg/metrics"
)

// lockTTL bounds how long a crashed replica can hold a dedup key
const lockTTL = 30 * time.Second

// Locker serialises inserts of one dedup key across engine replicas
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// AlertManager turns candidates into stored alerts and runs their lifecycle
type AlertManager struct {
	repo       alert.Repository
	dispatcher notification.Dispatcher
	locker     Locker
	window     time.Duration
	ttl        time.Duration
	now        func() time.Time
	logger     *logger.Logger
}

// AlertManagerOption customises an AlertManager
type AlertManagerOption func(*AlertManager)

// WithLocker adds a cross-process dedup lock
func WithLocker(l Locker) AlertManagerOption {
	return func(m *AlertManager) { m.locker = l }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) AlertManagerOption {
	return func(m *AlertManager) { m.now = now }
}

// NewAlertManager creates an alert manager. dispatcher may be nil, in which
// case alerts are stored but never notified.
func NewAlertManager(repo alert.Repository, dispatcher notification.Dispatcher, window, ttl time.Duration, log *logger.Logger, opts ...AlertManagerOption) *AlertManager {
	m := &AlertManager{
		repo:       repo,
		dispatcher: dispatcher,
		window:     window,
		ttl:        ttl,
		now:        time.Now,
		logger:     log.Component("alert_manager"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ProcessResult counts what happened to a batch of candidates
type ProcessResult struct {
	Created      []*alert.Alert `json:"-"`
	Generated    int            `json:"alerts_generated"`
	Duplicates   int            `json:"duplicates"`
	Failed       int            `json:"failed"`
	NotifyFailed int            `json:"notify_failed"`
}

// Process raises every candidate. A failure on one never stops the others.
func (m *AlertManager) Process(ctx context.Context, candidates []alert.Candidate) ProcessResult {
	var res ProcessResult
	for _, c := range candidates {
		a, err := m.Raise(ctx, c)
		switch {
		case stderrors.Is(err, alert.ErrDuplicate):
			res.Duplicates++
		case err != nil:
			res.Failed++
			m.logger.WithFields(map[string]interface{}{
				"alert_type": c.Type,
				"service":    c.Service,
				"region":     c.Region,
			}).ErrorWithErr(err, "Failed to store alert")
		default:
			res.Created = append(res.Created, a)
			res.Generated++
			if !a.NotificationSent && m.dispatcher != nil {
				res.NotifyFailed++
			}
		}
	}
	return res
}

// Raise dedups, persists and notifies one candidate. It returns
// alert.ErrDuplicate when an active alert with the same key exists within
// the window. A failed notification leaves the alert stored with
// notification_sent=false and is not returned as an error.
func (m *AlertManager) Raise(ctx context.Context, c alert.Candidate) (*alert.Alert, error) {
	a := alert.New(c, m.now(), m.ttl)
	created, err := m.insert(ctx, a)
	if err != nil {
		return nil, errors.Upstream("alert store unavailable", err)
	}
	if !created {
		metrics.RecordAlertDeduplicated(c.Type)
		m.logger.WithFields(map[string]interface{}{
			"alert_type": c.Type,
			"service":    c.Service,
			"region":     c.Region,
		}).Debug("Alert suppressed by dedup window")
		return nil, alert.ErrDuplicate
	}

	metrics.RecordAlertGenerated(a.Type, a.Severity)
	m.logger.WithFields(map[string]interface{}{
		"alert_id":     a.ID,
		"alert_type":   a.Type,
		"severity":     a.Severity,
		"current_cost": a.CurrentCost.StringFixed(2),
	}).Info("Alert created")

	m.notify(ctx, a)
	return a, nil
}

// insert runs the conditional insert, holding the dedup lock around it when
// one is configured. A key locked by another replica counts as a duplicate.
func (m *AlertManager) insert(ctx context.Context, a *alert.Alert) (bool, error) {
	if m.locker == nil {
		return m.repo.ConditionalPut(ctx, a, m.window)
	}

	key := a.Key().String()
	ok, err := m.locker.Acquire(ctx, key, lockTTL)
	if err != nil {
		// the store's conditional insert still dedups
		m.logger.WarnWithErr(err, "Dedup lock unavailable")
		return m.repo.ConditionalPut(ctx, a, m.window)
	}
	if !ok {
		return false, nil
	}
	defer func() {
		if err := m.locker.Release(ctx, key); err != nil {
			m.logger.WarnWithErr(err, "Failed to release dedup lock")
		}
	}()
	return m.repo.ConditionalPut(ctx, a, m.window)
}

func (m *AlertManager) notify(ctx context.Context, a *alert.Alert) {
	if m.dispatcher == nil {
		return
	}
	msg := notification.FormatAlert(a)
	if err := m.dispatcher.Send(ctx, msg.Channel, msg.Subject, msg.Body); err != nil {
		metrics.RecordNotification(string(msg.Channel), false)
		m.logger.WithFields(map[string]interface{}{
			"alert_id": a.ID,
			"channel":  msg.Channel,
		}).ErrorWithErr(err, "Failed to send alert notification")
		return
	}
	metrics.RecordNotification(string(msg.Channel), true)

	at := m.now().UTC()
	channels := []string{string(msg.Channel)}
	if err := m.repo.MarkNotified(ctx, a.ID, channels, at); err != nil {
		m.logger.WithFields(map[string]interface{}{"alert_id": a.ID}).
			ErrorWithErr(err, "Failed to mark alert notified")
		return
	}
	a.NotificationSent = true
	a.NotificationChannels = channels
	a.NotifiedAt = &at
}

// Get returns one alert
func (m *AlertManager) Get(ctx context.Context, id string) (*alert.Alert, error) {
	return m.repo.GetByID(ctx, id)
}

// List returns alerts matching filter
func (m *AlertManager) List(ctx context.Context, filter alert.Filter, limit, offset int) ([]*alert.Alert, int64, error) {
	return m.repo.List(ctx, filter, limit, offset)
}

// Acknowledge moves an active alert to acknowledged
func (m *AlertManager) Acknowledge(ctx context.Context, id, actor string) (*alert.Alert, error) {
	a, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	from := a.Status
	if err := a.Acknowledge(actor, m.now()); err != nil {
		return nil, err
	}
	if err := m.repo.Update(ctx, a, from); err != nil {
		return nil, err
	}
	m.logger.WithFields(map[string]interface{}{"alert_id": id, "actor": actor}).Info("Alert acknowledged")
	return a, nil
}

// Resolve closes an alert. A resolved alert no longer suppresses new ones.
func (m *AlertManager) Resolve(ctx context.Context, id, actor, notes string) (*alert.Alert, error) {
	a, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	from := a.Status
	if err := a.Resolve(actor, notes, m.now()); err != nil {
		return nil, err
	}
	if err := m.repo.Update(ctx, a, from); err != nil {
		return nil, err
	}
	m.logger.WithFields(map[string]interface{}{"alert_id": id, "actor": actor}).Info("Alert resolved")
	return a, nil
}

// Escalate attaches advisory escalation metadata for level 1-3
func (m *AlertManager) Escalate(ctx context.Context, id string, level int) (*alert.Alert, error) {
	a, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := a.Escalate(level, m.now()); err != nil {
		return nil, err
	}
	if err := m.repo.Update(ctx, a, a.Status); err != nil {
		return nil, err
	}
	m.logger.WithFields(map[string]interface{}{
		"alert_id":   id,
		"level":      level,
		"recipients": a.Escalation.Recipients,
	}).Info("Alert escalated")
	return a, nil
}

// since returns every alert created after t, paging through the store
func (m *AlertManager) since(ctx context.Context, t time.Time) ([]*alert.Alert, error) {
	const pageSize = 500
	var out []*alert.Alert
	for offset := 0; ; offset += pageSize {
		page, total, err := m.repo.List(ctx, alert.Filter{Since: t}, pageSize, offset)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < pageSize || int64(len(out)) >= total {
			return out, nil
		}
	}
}

// Metrics summarises alert activity over the last days
func (m *AlertManager) Metrics(ctx context.Context, days int) (*alert.Metrics, error) {
	if days <= 0 {
		days = 7
	}
	alerts, err := m.since(ctx, m.now().AddDate(0, 0, -days))
	if err != nil {
		return nil, err
	}

	out := &alert.Metrics{
		PeriodDays:  days,
		TotalAlerts: len(alerts),
		BySeverity:  map[string]int{},
		ByService:   map[string]int{},
		ByStatus:    map[string]int{},
		ByType:      map[string]int{},
	}
	var acked, resolved int
	var resolutionHours float64
	for _, a := range alerts {
		out.BySeverity[a.Severity]++
		out.ByService[a.Service]++
		out.ByStatus[a.Status]++
		out.ByType[a.Type]++
		if a.Acknowledged {
			acked++
		}
		if a.Resolved && a.ResolvedAt != nil {
			resolved++
			resolutionHours += a.ResolvedAt.Sub(a.CreatedAt).Hours()
		}
	}
	if len(alerts) > 0 {
		out.AcknowledgmentRate = analysis.Round2(float64(acked)/float64(len(alerts))*100)
	}
	if resolved > 0 {
		out.AvgResolutionHours = analysis.Round2(resolutionHours/float64(resolved))
	}
	return out, nil
}

// Digest summarises alerts created since t
func (m *AlertManager) Digest(ctx context.Context, period string, t time.Time) (*alert.Digest, error) {
	alerts, err := m.since(ctx, t)
	if err != nil {
		return nil, err
	}
	d := &alert.Digest{
		Period:      period,
		TotalAlerts: len(alerts),
		BySeverity:  map[string]int{},
		ByService:   map[string]int{},
		ByType:      map[string]int{},
		GeneratedAt: m.now().UTC(),
	}
	for _, a := range alerts {
		d.BySeverity[a.Severity]++
		d.ByService[a.Service]++
		d.ByType[a.Type]++
		if d.HighestCostAlert == nil || a.CurrentCost.GreaterThan(d.HighestCostAlert.CurrentCost) {
			d.HighestCostAlert = a
		}
	}
	return d, nil
}

// PublishDigest sends a digest on the reports channel
func (m *AlertManager) PublishDigest(ctx context.Context, d *alert.Digest) error {
	if m.dispatcher == nil || d.TotalAlerts == 0 {
		return nil
	}
	subject := fmt.Sprintf("Cost Alert Digest: %s (%d alerts)", d.Period, d.TotalAlerts)
	err := m.dispatcher.Send(ctx, notification.ChannelReports, subject, formatDigest(d))
	metrics.RecordNotification(string(notification.ChannelReports), err == nil)
	return err
}

func formatDigest(d *alert.Digest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Alerts in %s: %d\n\n", d.Period, d.TotalAlerts)
	writeCounts(&b, "By severity", d.BySeverity)
	writeCounts(&b, "By service", d.ByService)
	writeCounts(&b, "By type", d.ByType)
	if h := d.HighestCostAlert; h != nil {
		fmt.Fprintf(&b, "Highest cost alert: %s (%s, $%s)\n", h.ID, h.Service, h.CurrentCost.StringFixed(2))
	}
	return b.String()
}

func writeCounts(b *strings.Builder, title string, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(b, "%s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(b, "  %s: %d\n", k, counts[k])
	}
	b.WriteString("\n")
}

// Cleanup deletes alerts past their TTL
func (m *AlertManager) Cleanup(ctx context.Context) (int64, error) {
	n, err := m.repo.DeleteExpired(ctx, m.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.logger.Infof("Deleted %d expired alerts", n)
	}
	return n, nil
}
