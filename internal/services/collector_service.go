package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/pratik-mahalle/costwatch/internal/analysis"
	"github.com/pratik-mahalle/costwatch/internal/domain/cost"
	"github.com/pratik-mahalle/costwatch/internal/pkg/logger"
	"github.com/pratik-mahalle/costwatch/internal/pkg/metrics"
	"github.com/pratik-mahalle/costwatch/internal/providers"
)

// SourceResult is the outcome of syncing one billing source
type SourceResult struct {
	Source  string `json:"source"`
	Fetched int    `json:"fetched"`
	Stored  int    `json:"stored"`
	Skipped int    `json:"skipped"`
	Error   string `json:"error,omitempty"`
}

// CollectResult is the outcome of one collection pass
type CollectResult struct {
	Start   string         `json:"start"`
	End     string         `json:"end"`
	Sources []SourceResult `json:"sources"`
}

// Failed counts sources that could not be synced
func (r *CollectResult) Failed() int {
	n := 0
	for _, s := range r.Sources {
		if s.Error != "" {
			n++
		}
	}
	return n
}

// CollectorService copies billing data into the cost repository
type CollectorService struct {
	sources      []providers.CostSource
	repo         cost.Repository
	lookbackDays int
	now          func() time.Time
	logger       *logger.Logger
}

// NewCollectorService creates a collector. lookbackDays below 1 collects
// only yesterday.
func NewCollectorService(repo cost.Repository, sources []providers.CostSource, lookbackDays int, log *logger.Logger) *CollectorService {
	if lookbackDays < 1 {
		lookbackDays = 1
	}
	return &CollectorService{
		sources:      sources,
		repo:         repo,
		lookbackDays: lookbackDays,
		now:          time.Now,
		logger:       log.Component("collector"),
	}
}

// Collect syncs every source over the complete days of the lookback window.
// Today is excluded because its billing data is still changing and stored
// records are never rewritten. It fails only when every source fails.
func (s *CollectorService) Collect(ctx context.Context) (*CollectResult, error) {
	end := cost.Truncate(s.now())
	start := end.AddDate(0, 0, -s.lookbackDays)
	res := &CollectResult{Start: start.Format(cost.DateLayout), End: end.Format(cost.DateLayout)}

	if len(s.sources) == 0 {
		return res, fmt.Errorf("no billing sources configured")
	}

	var errs []error
	for _, src := range s.sources {
		sr := s.sync(ctx, src, start, end)
		res.Sources = append(res.Sources, sr)
		if sr.Error != "" {
			errs = append(errs, fmt.Errorf("%s: %s", sr.Source, sr.Error))
		}
	}
	if len(errs) == len(s.sources) {
		return res, stderrors.Join(errs...)
	}
	return res, nil
}

func (s *CollectorService) sync(ctx context.Context, src providers.CostSource, start, end time.Time) SourceResult {
	began := time.Now()
	sr := SourceResult{Source: src.Name()}
	log := s.logger.WithFields(map[string]interface{}{
		"source": sr.Source,
		"start":  start.Format(cost.DateLayout),
		"end":    end.Format(cost.DateLayout),
	})

	records, err := src.Fetch(ctx, start, end)
	sr.Fetched = len(records)
	if err != nil {
		sr.Error = err.Error()
		metrics.RecordCollectorSync(sr.Source, "failed", time.Since(began))
		log.ErrorWithErr(err, "Billing sync failed")
		return sr
	}

	valid := make([]*cost.Record, 0, len(records))
	for _, r := range records {
		if _, err := analysis.ValidateRecord(r); err != nil {
			sr.Skipped++
			continue
		}
		valid = append(valid, r)
	}

	if len(valid) > 0 {
		if err := s.repo.PutBatch(ctx, valid); err != nil {
			sr.Error = err.Error()
			metrics.RecordCollectorSync(sr.Source, "failed", time.Since(began))
			log.ErrorWithErr(err, "Failed to store billing records")
			return sr
		}
	}
	sr.Stored = len(valid)

	metrics.RecordCollectorSync(sr.Source, "success", time.Since(began))
	log.WithFields(map[string]interface{}{
		"fetched": sr.Fetched,
		"stored":  sr.Stored,
		"skipped": sr.Skipped,
	}).Info("Billing sync completed")
	return sr
}
