package cost

import (
	"sort"
	"strings"
	"time"
)

// Record is one cost/usage measurement for a service in a region on a day.
// Records are immutable once written.
type Record struct {
	ID         string            `json:"id"`
	Provider   string            `json:"provider,omitempty"`
	Service    string            `json:"service" validate:"required"`
	Region     string            `json:"region" validate:"required"`
	Timestamp  string            `json:"timestamp" validate:"required"`
	Cost       *float64          `json:"cost" validate:"required,gte=0"`
	Currency   string            `json:"currency" validate:"omitempty,len=3"`
	Usage      float64           `json:"usage_quantity" validate:"gte=0"`
	UsageUnit  string            `json:"usage_unit,omitempty"`
	ResourceID string            `json:"resource_id,omitempty"`
	Category   string            `json:"category,omitempty"`
	Tags       map[string]string `json:"tags,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// DimensionID is the composite key the repository indexes records by.
func (r *Record) DimensionID() string {
	return r.Service + "#" + r.Region
}

// Amount returns the cost or 0 when missing
func (r *Record) Amount() float64 {
	if r.Cost == nil {
		return 0
	}
	return *r.Cost
}

// Day parses the record timestamp and truncates it to a UTC calendar day.
func (r *Record) Day() (time.Time, error) {
	return ParseDay(r.Timestamp)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	DateLayout,
}

// DateLayout is the canonical day format used across storage and reports
const DateLayout = "2006-01-02"

// ParseDay parses an ISO-8601 date or timestamp into its UTC day.
func ParseDay(ts string) (time.Time, error) {
	ts = strings.TrimSpace(ts)
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, ts)
		if err == nil {
			return Truncate(t), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// Truncate returns midnight UTC of t's day
func Truncate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Point is one day of an aggregated series
type Point struct {
	Date time.Time `json:"date"`
	Cost float64   `json:"cost"`
}

// DailySeries is an ordered date to cost mapping for one dimension.
type DailySeries struct {
	Key    string  `json:"key"`
	Points []Point `json:"points"`
}

// NewDailySeries builds a series sorted by date from a day map.
func NewDailySeries(key string, byDay map[time.Time]float64) DailySeries {
	points := make([]Point, 0, len(byDay))
	for d, c := range byDay {
		points = append(points, Point{Date: d, Cost: c})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return DailySeries{Key: key, Points: points}
}

func (s DailySeries) Len() int {
	return len(s.Points)
}

// Values returns the costs in date order
func (s DailySeries) Values() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Cost
	}
	return out
}

// Last returns the most recent point
func (s DailySeries) Last() (Point, bool) {
	if len(s.Points) == 0 {
		return Point{}, false
	}
	return s.Points[len(s.Points)-1], true
}

// Total sums all points
func (s DailySeries) Total() float64 {
	var total float64
	for _, p := range s.Points {
		total += p.Cost
	}
	return total
}

// Since returns the points on or after day
func (s DailySeries) Since(day time.Time) DailySeries {
	i := sort.Search(len(s.Points), func(i int) bool { return !s.Points[i].Date.Before(day) })
	return DailySeries{Key: s.Key, Points: s.Points[i:]}
}

// Filter narrows repository range queries
type Filter struct {
	Service    string
	Region     string
	Category   string
	ResourceID string
	TagKey     string
	TagValue   string
}

// Page is a cursor over a range query. Offset 0 starts from the beginning.
type Page struct {
	Offset int
	Limit  int
}

// Next returns the page following p
func (p Page) Next() Page {
	return Page{Offset: p.Offset + p.Limit, Limit: p.Limit}
}
