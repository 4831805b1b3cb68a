package analysis

import (
	"time"

	"github.com/pratik-mahalle/costwatch/internal/domain/cost"
	"github.com/pratik-mahalle/costwatch/internal/domain/report"
)

// SummaryWindow returns the [start, end) range of records a summary needs.
// Weekly summaries include the preceding week for the week-over-week change.
func SummaryWindow(reportType string, now time.Time) (start, end time.Time) {
	today := cost.Truncate(now)
	yesterday := today.AddDate(0, 0, -1)
	switch reportType {
	case report.TypeWeeklySummary:
		return yesterday.AddDate(0, 0, -13), today
	case report.TypeMonthlySummary:
		thisMonth := MonthStart(now)
		return thisMonth.AddDate(0, -1, 0), thisMonth
	default:
		return yesterday, today
	}
}

// BuildSummary computes the summary of reportType from records aggregated
// over SummaryWindow.
func BuildSummary(reportType string, agg *Aggregation, now time.Time) report.Summary {
	today := cost.Truncate(now)
	yesterday := today.AddDate(0, 0, -1)

	var from, to time.Time // inclusive
	s := report.Summary{Type: reportType}
	switch reportType {
	case report.TypeWeeklySummary:
		from, to = yesterday.AddDate(0, 0, -6), yesterday
		s.Title = "Weekly Cost Summary"
	case report.TypeMonthlySummary:
		thisMonth := MonthStart(now)
		from, to = thisMonth.AddDate(0, -1, 0), thisMonth.AddDate(0, 0, -1)
		s.Title = "Monthly Cost Summary"
		s.Month = from.Format("2006-01")
	default:
		s.Type = report.TypeDailySummary
		from, to = yesterday, yesterday
		s.Title = "Daily Cost Summary"
	}
	s.PeriodStart = from.Format(cost.DateLayout)
	s.PeriodEnd = to.Format(cost.DateLayout)
	s.DaysInPeriod = int(to.Sub(from).Hours()/24) + 1

	s.TotalCost = Round2(sumRange(agg.Overall, from, to))
	s.AverageDailyCost = Round2(s.TotalCost / float64(s.DaysInPeriod))
	s.RecordCount = countInRange(agg, from, to)
	s.NoData = s.RecordCount == 0

	switch s.Type {
	case report.TypeWeeklySummary:
		s.DailyBreakdown = map[string]float64{}
		for _, p := range agg.Overall.Points {
			if !p.Date.Before(from) && !p.Date.After(to) {
				s.DailyBreakdown[p.Date.Format(cost.DateLayout)] = Round2(p.Cost)
			}
		}
		previous := sumRange(agg.Overall, from.AddDate(0, 0, -7), from.AddDate(0, 0, -1))
		change := 0.0
		if previous > 0 {
			change = Round2((s.TotalCost - previous) / previous * 100)
		}
		s.WeekOverWeekChange = &change
	default:
		s.ServiceBreakdown = rangeTotals(agg.ByService, from, to)
		s.RegionalBreakdown = rangeTotals(agg.ByRegion, from, to)
	}
	return s
}

func sumRange(series cost.DailySeries, from, to time.Time) float64 {
	var total float64
	for _, p := range series.Since(from).Points {
		if p.Date.After(to) {
			break
		}
		total += p.Cost
	}
	return total
}

func rangeTotals(m map[string]cost.DailySeries, from, to time.Time) map[string]float64 {
	out := map[string]float64{}
	for k, s := range m {
		if v := sumRange(s, from, to); v != 0 {
			out[k] = Round2(v)
		}
	}
	return out
}

func countInRange(agg *Aggregation, from, to time.Time) int {
	n := 0
	for day, c := range agg.RecordsByDay {
		if !day.Before(from) && !day.After(to) {
			n += c
		}
	}
	return n
}
