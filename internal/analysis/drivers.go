package analysis

import (
	"fmt"
	"sort"

	"github.com/pratik-mahalle/costwatch/internal/domain/cost"
)

// Driver is one entry of a cost breakdown
type Driver struct {
	Name       string  `json:"name"`
	Cost       float64 `json:"cost"`
	Percentage float64 `json:"percentage"`
}

// Drivers lists the largest services, regions and resources
type Drivers struct {
	Services  []Driver `json:"services"`
	Regions   []Driver `json:"regions"`
	Resources []Driver `json:"resources"`
}

// CostDrivers returns the topN largest contributors along each dimension
func CostDrivers(agg *Aggregation, topN int) Drivers {
	services := seriesTotals(agg.ByService)
	regions := seriesTotals(agg.ByRegion)
	resources := map[string]float64{}
	for k, r := range agg.Resources {
		resources[k] = r.Cost
	}
	return Drivers{
		Services:  rank(services, agg.Total, topN),
		Regions:   rank(regions, agg.Total, topN),
		Resources: rank(resources, agg.Total, topN),
	}
}

func seriesTotals(m map[string]cost.DailySeries) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, s := range m {
		out[k] = s.Total()
	}
	return out
}

func rank(m map[string]float64, total float64, topN int) []Driver {
	out := make([]Driver, 0, len(m))
	for name, c := range m {
		pct := 0.0
		if total > 0 {
			pct = c / total * 100
		}
		out = append(out, Driver{Name: name, Cost: Round2(c), Percentage: Round2(pct)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Cost != out[j].Cost {
			return out[i].Cost > out[j].Cost
		}
		return out[i].Name < out[j].Name
	})
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out
}

// DailyStats describes the overall daily series
type DailyStats struct {
	TotalDays      int                `json:"total_days"`
	AverageDaily   float64            `json:"average_daily_cost"`
	MedianDaily    float64            `json:"median_daily_cost"`
	MinDaily       float64            `json:"min_daily_cost"`
	MaxDaily       float64            `json:"max_daily_cost"`
	TotalCost      float64            `json:"total_cost"`
	DailyBreakdown map[string]float64 `json:"daily_breakdown"`
}

// DescribeDaily computes descriptive statistics of the overall series
func DescribeDaily(agg *Aggregation) DailyStats {
	values := agg.Overall.Values()
	lo, hi := minMax(values)
	breakdown := make(map[string]float64, len(values))
	for _, p := range agg.Overall.Points {
		breakdown[p.Date.Format("2006-01-02")] = Round2(p.Cost)
	}
	return DailyStats{
		TotalDays:      len(values),
		AverageDaily:   Round2(Mean(values)),
		MedianDaily:    Round2(Median(values)),
		MinDaily:       Round2(lo),
		MaxDaily:       Round2(hi),
		TotalCost:      Round2(agg.Overall.Total()),
		DailyBreakdown: breakdown,
	}
}

// Insight is a human-readable observation about spend
type Insight struct {
	Type           string `json:"type"`
	Severity       string `json:"severity"`
	Message        string `json:"message"`
	Recommendation string `json:"recommendation"`
}

// Insights flags week-over-week growth above 10% and concentration of more
// than 70% of spend in one service.
func Insights(agg *Aggregation) []Insight {
	var insights []Insight

	values := agg.Overall.Values()
	if n := len(values); n >= 14 {
		recent := Mean(values[n-7:])
		previous := Mean(values[n-14 : n-7])
		if previous > 0 {
			change := (recent - previous) / previous * 100
			switch {
			case change > 20:
				insights = append(insights, Insight{
					Type:           "cost_increase",
					Severity:       "high",
					Message:        fmt.Sprintf("Costs increased by %.1f%% in the last week", change),
					Recommendation: "Review recent resource changes and usage patterns",
				})
			case change > 10:
				insights = append(insights, Insight{
					Type:           "cost_increase",
					Severity:       "medium",
					Message:        fmt.Sprintf("Costs increased by %.1f%% in the last week", change),
					Recommendation: "Monitor cost trends and investigate drivers",
				})
			}
		}
	}

	if agg.Total > 0 {
		top := rank(seriesTotals(agg.ByService), agg.Total, 1)
		if len(top) == 1 && top[0].Percentage > 70 {
			insights = append(insights, Insight{
				Type:           "cost_concentration",
				Severity:       "medium",
				Message:        fmt.Sprintf("%s accounts for %.1f%% of total costs", top[0].Name, top[0].Percentage),
				Recommendation: "Consider optimization opportunities for this service",
			})
		}
	}
	return insights
}
