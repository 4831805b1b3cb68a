package analysis

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pratik-mahalle/costwatch/internal/domain/cost"
	"github.com/pratik-mahalle/costwatch/internal/pkg/errors"
	"github.com/pratik-mahalle/costwatch/internal/pkg/validator"
)

// Labels used for the overall dimension
const (
	OverallService = "Overall"
	AllRegions     = "All"
)

// Rejection describes a record the aggregator skipped
type Rejection struct {
	RecordID  string `json:"record_id,omitempty"`
	Service   string `json:"service,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Reason    string `json:"reason"`
}

// ResourceTotal is the summed cost of one resource
type ResourceTotal struct {
	ResourceID string  `json:"resource_id"`
	Service    string  `json:"service"`
	Region     string  `json:"region"`
	Cost       float64 `json:"cost"`
}

// Aggregation is the folded view of a batch of records
type Aggregation struct {
	Overall    cost.DailySeries
	ByService  map[string]cost.DailySeries
	ByRegion   map[string]cost.DailySeries
	Resources  map[string]*ResourceTotal
	Categories map[string]cost.DailySeries
	// accepted records per day
	RecordsByDay map[time.Time]int
	Total        float64
	Accepted     int
	Rejected     []Rejection
}

// Processed returns the number of records examined
func (a *Aggregation) Processed() int {
	return a.Accepted + len(a.Rejected)
}

// SkippedFraction is the share of examined records that were rejected
func (a *Aggregation) SkippedFraction() float64 {
	if a.Processed() == 0 {
		return 0
	}
	return float64(len(a.Rejected)) / float64(a.Processed())
}

// LatestDay returns the most recent day with data
func (a *Aggregation) LatestDay() (time.Time, bool) {
	p, ok := a.Overall.Last()
	return p.Date, ok
}

// ValidateRecord checks a record and returns its day. Invalid records yield
// a VALIDATION_ERROR AppError.
func ValidateRecord(r *cost.Record) (time.Time, error) {
	if r == nil {
		return time.Time{}, errors.ValidationError("nil record", nil)
	}
	if verrs := validator.Validate(r); len(verrs) > 0 {
		return time.Time{}, errors.ValidationError(validator.Join(verrs), verrs)
	}
	day, err := r.Day()
	if err != nil {
		return time.Time{}, errors.ValidationError(fmt.Sprintf("malformed timestamp %q", r.Timestamp), nil)
	}
	return day, nil
}

// Aggregate folds records into per-service, per-region and overall daily
// series. Records sharing a (key, day) are summed; invalid records are
// rejected and reported, never fatal.
func Aggregate(records []*cost.Record) *Aggregation {
	overall := map[time.Time]float64{}
	byService := map[string]map[time.Time]float64{}
	byRegion := map[string]map[time.Time]float64{}
	byCategory := map[string]map[time.Time]float64{}
	agg := &Aggregation{Resources: map[string]*ResourceTotal{}, RecordsByDay: map[time.Time]int{}}

	for _, r := range records {
		day, err := ValidateRecord(r)
		if err != nil {
			agg.Rejected = append(agg.Rejected, rejectionFor(r, err))
			continue
		}
		amount := r.Amount()
		agg.Accepted++
		agg.RecordsByDay[day]++
		agg.Total += amount

		overall[day] += amount
		addTo(byService, r.Service, day, amount)
		addTo(byRegion, r.Region, day, amount)
		if r.Category != "" {
			addTo(byCategory, strings.ToLower(r.Category), day, amount)
		}
		if r.ResourceID != "" {
			rt, ok := agg.Resources[r.ResourceID]
			if !ok {
				rt = &ResourceTotal{ResourceID: r.ResourceID, Service: r.Service, Region: r.Region}
				agg.Resources[r.ResourceID] = rt
			}
			rt.Cost += amount
		}
	}

	agg.Overall = cost.NewDailySeries(OverallService, overall)
	agg.ByService = toSeries(byService)
	agg.ByRegion = toSeries(byRegion)
	agg.Categories = toSeries(byCategory)
	return agg
}

func addTo(m map[string]map[time.Time]float64, key string, day time.Time, amount float64) {
	inner, ok := m[key]
	if !ok {
		inner = map[time.Time]float64{}
		m[key] = inner
	}
	inner[day] += amount
}

func toSeries(m map[string]map[time.Time]float64) map[string]cost.DailySeries {
	out := make(map[string]cost.DailySeries, len(m))
	for k, days := range m {
		out[k] = cost.NewDailySeries(k, days)
	}
	return out
}

func rejectionFor(r *cost.Record, err error) Rejection {
	if r == nil {
		return Rejection{Reason: err.Error()}
	}
	return Rejection{RecordID: r.ID, Service: r.Service, Timestamp: r.Timestamp, Reason: err.Error()}
}

// ValueOn returns the series value on day, or 0
func ValueOn(s cost.DailySeries, day time.Time) float64 {
	for i := len(s.Points) - 1; i >= 0; i-- {
		if s.Points[i].Date.Equal(day) {
			return s.Points[i].Cost
		}
		if s.Points[i].Date.Before(day) {
			break
		}
	}
	return 0
}

// Round2 rounds half away from zero to cents
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
