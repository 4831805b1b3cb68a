package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pratik-mahalle/costwatch/internal/domain/alert"
	"github.com/pratik-mahalle/costwatch/internal/domain/cost"
	"github.com/pratik-mahalle/costwatch/internal/domain/job"
	"github.com/pratik-mahalle/costwatch/internal/domain/notification"
	"github.com/pratik-mahalle/costwatch/internal/domain/recommendation"
	"github.com/pratik-mahalle/costwatch/internal/domain/report"
	"github.com/pratik-mahalle/costwatch/internal/pkg/errors"
)

// MockCostRepository is an in-memory cost.Repository. Range bounds are
// compared as date strings, like the SQL store.
type MockCostRepository struct {
	Records []*cost.Record

	PingError  error
	PutError   error
	QueryError error
	// TransientError fails the next TransientFailures queries
	TransientError    error
	TransientFailures int
	QueryCalls        int
	mu                sync.Mutex
}

func NewMockCostRepository(records ...*cost.Record) *MockCostRepository {
	return &MockCostRepository{Records: records}
}

func (m *MockCostRepository) Put(ctx context.Context, r *cost.Record) error {
	return m.PutBatch(ctx, []*cost.Record{r})
}

func (m *MockCostRepository) PutBatch(ctx context.Context, records []*cost.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PutError != nil {
		return m.PutError
	}
	m.Records = append(m.Records, records...)
	return nil
}

func (m *MockCostRepository) Query(ctx context.Context, filter cost.Filter, start, end time.Time, page cost.Page) ([]*cost.Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QueryCalls++
	if m.QueryError != nil {
		return nil, false, m.QueryError
	}
	if m.TransientFailures > 0 {
		m.TransientFailures--
		return nil, false, m.TransientError
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	lo, hi := start.UTC().Format(cost.DateLayout), end.UTC().Format(cost.DateLayout)
	var matched []*cost.Record
	for _, r := range m.Records {
		if r.Timestamp < lo || r.Timestamp >= hi {
			continue
		}
		if filter.Service != "" && r.Service != filter.Service {
			continue
		}
		if filter.Region != "" && r.Region != filter.Region {
			continue
		}
		if filter.Category != "" && !strings.EqualFold(r.Category, filter.Category) {
			continue
		}
		if filter.ResourceID != "" && r.ResourceID != filter.ResourceID {
			continue
		}
		if filter.TagKey != "" && r.Tags[filter.TagKey] != filter.TagValue {
			continue
		}
		matched = append(matched, r)
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Timestamp < matched[j].Timestamp })

	limit := page.Limit
	if limit <= 0 {
		limit = 500
	}
	if page.Offset >= len(matched) {
		return nil, false, nil
	}
	matched = matched[page.Offset:]
	if len(matched) > limit {
		return matched[:limit], true, nil
	}
	return matched, false, nil
}

func (m *MockCostRepository) Ping(ctx context.Context) error {
	return m.PingError
}

// MockAlertRepository is an in-memory alert.Repository with the same dedup
// rule as the SQL store
type MockAlertRepository struct {
	Alerts map[string]*alert.Alert

	PutError    error
	UpdateError error
	NotifyError error
	mu          sync.Mutex
}

func NewMockAlertRepository() *MockAlertRepository {
	return &MockAlertRepository{Alerts: make(map[string]*alert.Alert)}
}

func (m *MockAlertRepository) ConditionalPut(ctx context.Context, a *alert.Alert, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PutError != nil {
		return false, m.PutError
	}
	cutoff := a.CreatedAt.Add(-window)
	for _, existing := range m.Alerts {
		if existing.Key() == a.Key() && existing.Status == alert.StatusActive && existing.CreatedAt.After(cutoff) {
			return false, nil
		}
	}
	if _, ok := m.Alerts[a.ID]; ok {
		return false, nil
	}
	cp := *a
	m.Alerts[a.ID] = &cp
	return true, nil
}

func (m *MockAlertRepository) FindActive(ctx context.Context, key alert.DedupKey, since time.Time) (*alert.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var newest *alert.Alert
	for _, a := range m.Alerts {
		if a.Key() == key && a.Status == alert.StatusActive && a.CreatedAt.After(since) {
			if newest == nil || a.CreatedAt.After(newest.CreatedAt) {
				newest = a
			}
		}
	}
	if newest == nil {
		return nil, nil
	}
	cp := *newest
	return &cp, nil
}

func (m *MockAlertRepository) GetByID(ctx context.Context, id string) (*alert.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.Alerts[id]
	if !ok {
		return nil, errors.NotFound("Alert")
	}
	cp := *a
	return &cp, nil
}

func (m *MockAlertRepository) Update(ctx context.Context, a *alert.Alert, from string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateError != nil {
		return m.UpdateError
	}
	stored, ok := m.Alerts[a.ID]
	if !ok {
		return errors.NotFound("Alert")
	}
	if stored.Status != from {
		return errors.InvalidTransition(stored.Status, a.Status)
	}
	cp := *a
	m.Alerts[a.ID] = &cp
	return nil
}

func (m *MockAlertRepository) MarkNotified(ctx context.Context, id string, channels []string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.NotifyError != nil {
		return m.NotifyError
	}
	a, ok := m.Alerts[id]
	if !ok {
		return errors.NotFound("Alert")
	}
	at = at.UTC()
	a.NotificationSent = true
	a.NotificationChannels = channels
	a.NotifiedAt = &at
	return nil
}

func (m *MockAlertRepository) List(ctx context.Context, filter alert.Filter, limit, offset int) ([]*alert.Alert, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*alert.Alert
	for _, a := range m.Alerts {
		if filter.Type != "" && a.Type != filter.Type {
			continue
		}
		if filter.Severity != "" && a.Severity != filter.Severity {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.Service != "" && a.Service != filter.Service {
			continue
		}
		if filter.Region != "" && a.Region != filter.Region {
			continue
		}
		if !filter.Since.IsZero() && a.CreatedAt.Before(filter.Since) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	total := int64(len(out))
	if limit <= 0 {
		limit = 50
	}
	if offset >= len(out) {
		return nil, total, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func (m *MockAlertRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, a := range m.Alerts {
		if !a.ExpiresAt.After(now) {
			delete(m.Alerts, id)
			n++
		}
	}
	return n, nil
}

// MockRecommendationRepository is an in-memory recommendation.Repository
type MockRecommendationRepository struct {
	Recommendations map[string]*recommendation.Recommendation
	UpsertError     error
}

func NewMockRecommendationRepository() *MockRecommendationRepository {
	return &MockRecommendationRepository{Recommendations: make(map[string]*recommendation.Recommendation)}
}

func (m *MockRecommendationRepository) Upsert(ctx context.Context, r *recommendation.Recommendation) error {
	if m.UpsertError != nil {
		return m.UpsertError
	}
	if existing, ok := m.Recommendations[r.ID]; ok && existing.Status != recommendation.StatusOpen {
		return nil
	}
	cp := *r
	m.Recommendations[r.ID] = &cp
	return nil
}

func (m *MockRecommendationRepository) GetByID(ctx context.Context, id string) (*recommendation.Recommendation, error) {
	r, ok := m.Recommendations[id]
	if !ok {
		return nil, errors.NotFound("Recommendation")
	}
	cp := *r
	return &cp, nil
}

func (m *MockRecommendationRepository) UpdateStatus(ctx context.Context, id, status string, actualSavings decimal.Decimal) error {
	if !recommendation.ValidStatus(status) {
		return errors.BadRequest("invalid recommendation status: " + status)
	}
	r, ok := m.Recommendations[id]
	if !ok {
		return errors.NotFound("Recommendation")
	}
	r.Status = status
	r.Implemented = status == recommendation.StatusImplemented
	if r.Implemented {
		r.ActualSavings = actualSavings
	}
	return nil
}

func (m *MockRecommendationRepository) List(ctx context.Context, filter recommendation.Filter, limit, offset int) ([]*recommendation.Recommendation, int64, error) {
	var out []*recommendation.Recommendation
	for _, r := range m.Recommendations {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.Priority != "" && r.Priority != filter.Priority {
			continue
		}
		if filter.Service != "" && r.Service != filter.Service {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CurrentCost.GreaterThan(out[j].CurrentCost) })
	total := int64(len(out))
	if offset >= len(out) {
		return nil, total, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func (m *MockRecommendationRepository) GetTotalSavings(ctx context.Context) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, r := range m.Recommendations {
		if r.Status == recommendation.StatusOpen {
			total = total.Add(r.EstimatedSavings)
		}
	}
	return total, nil
}

// MockReportRepository is an in-memory report.Repository keyed by type and period
type MockReportRepository struct {
	Results  map[string]*report.AnalysisResult
	PutError error
}

func NewMockReportRepository() *MockReportRepository {
	return &MockReportRepository{Results: make(map[string]*report.AnalysisResult)}
}

func (m *MockReportRepository) Put(ctx context.Context, r *report.AnalysisResult) error {
	if m.PutError != nil {
		return m.PutError
	}
	cp := *r
	m.Results[r.Type+"/"+r.Period] = &cp
	return nil
}

func (m *MockReportRepository) Latest(ctx context.Context, analysisType string) (*report.AnalysisResult, error) {
	var latest *report.AnalysisResult
	for _, r := range m.Results {
		if r.Type == analysisType && (latest == nil || r.Period > latest.Period) {
			latest = r
		}
	}
	if latest == nil {
		return nil, errors.NotFound("Analysis result")
	}
	return latest, nil
}

func (m *MockReportRepository) List(ctx context.Context, analysisType string, limit int) ([]*report.AnalysisResult, error) {
	var out []*report.AnalysisResult
	for _, r := range m.Results {
		if analysisType == "" || r.Type == analysisType {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period > out[j].Period })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MockSettingsRepository is an in-memory settings.Repository
type MockSettingsRepository struct {
	Docs     map[string][]byte
	GetError error
}

func NewMockSettingsRepository() *MockSettingsRepository {
	return &MockSettingsRepository{Docs: make(map[string][]byte)}
}

func (m *MockSettingsRepository) Get(ctx context.Context, key string) ([]byte, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	doc, ok := m.Docs[key]
	if !ok {
		return nil, errors.ConfigMissing(key)
	}
	return doc, nil
}

func (m *MockSettingsRepository) Put(ctx context.Context, key string, doc []byte) error {
	m.Docs[key] = doc
	return nil
}

// MockJobRepository is an in-memory job.Repository
type MockJobRepository struct {
	Executions []*job.Execution
	mu         sync.Mutex
}

func NewMockJobRepository() *MockJobRepository {
	return &MockJobRepository{}
}

func (m *MockJobRepository) CreateExecution(ctx context.Context, e *job.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Executions = append(m.Executions, e)
	return nil
}

func (m *MockJobRepository) UpdateExecution(ctx context.Context, e *job.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.Executions {
		if existing.ID == e.ID {
			m.Executions[i] = e
			return nil
		}
	}
	return errors.NotFound("Execution")
}

func (m *MockJobRepository) ListExecutions(ctx context.Context, filter job.ExecutionFilter, limit, offset int) ([]*job.Execution, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*job.Execution
	for _, e := range m.Executions {
		if filter.JobType != "" && e.JobType != filter.JobType {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		out = append(out, e)
	}
	return out, int64(len(out)), nil
}

func (m *MockJobRepository) GetLatestExecution(ctx context.Context, jobType job.JobType) (*job.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.Executions) - 1; i >= 0; i-- {
		if m.Executions[i].JobType == jobType {
			return m.Executions[i], nil
		}
	}
	return nil, nil
}

func (m *MockJobRepository) CleanupOldExecutions(ctx context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.Executions[:0]
	var n int64
	for _, e := range m.Executions {
		if e.StartedAt.Before(olderThan) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	m.Executions = kept
	return n, nil
}

// SentMessage is one message captured by MockDispatcher
type SentMessage struct {
	Channel notification.Channel
	Subject string
	Body    string
}

// MockDispatcher records sent messages. FailChannels makes sends on those
// channels fail with Error.
type MockDispatcher struct {
	Sent         []SentMessage
	Error        error
	FailChannels map[notification.Channel]bool
	mu           sync.Mutex
}

func NewMockDispatcher() *MockDispatcher {
	return &MockDispatcher{FailChannels: make(map[notification.Channel]bool)}
}

func (m *MockDispatcher) Send(ctx context.Context, channel notification.Channel, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Error != nil && (len(m.FailChannels) == 0 || m.FailChannels[channel]) {
		return m.Error
	}
	m.Sent = append(m.Sent, SentMessage{Channel: channel, Subject: subject, Body: body})
	return nil
}

// OnChannel returns the messages sent on channel
func (m *MockDispatcher) OnChannel(channel notification.Channel) []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SentMessage
	for _, s := range m.Sent {
		if s.Channel == channel {
			out = append(out, s)
		}
	}
	return out
}

// MockLocker is an in-memory dedup lock that ignores TTLs
type MockLocker struct {
	Held         map[string]bool
	AcquireError error
	Released     []string
	mu           sync.Mutex
}

func NewMockLocker() *MockLocker {
	return &MockLocker{Held: make(map[string]bool)}
}

func (m *MockLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AcquireError != nil {
		return false, m.AcquireError
	}
	if m.Held[key] {
		return false, nil
	}
	m.Held[key] = true
	return true, nil
}

func (m *MockLocker) Release(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Held, key)
	m.Released = append(m.Released, key)
	return nil
}

// FixedClock returns a clock function pinned to t
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
