package analysis

import (
	"fmt"
	"sort"
	"time"

	"github.com/pratik-mahalle/costwatch/internal/domain/alert"
	"github.com/pratik-mahalle/costwatch/internal/domain/cost"
	"github.com/pratik-mahalle/costwatch/internal/domain/settings"
)

// Budget checkpoints as percentages of the monthly limit
const (
	BudgetWarningPercent  = 80.0
	BudgetExceededPercent = 100.0
)

// BudgetStatus is the month-to-date position against one budget
type BudgetStatus struct {
	Name         string  `json:"name"`
	MonthToDate  float64 `json:"month_to_date"`
	MonthlyLimit float64 `json:"monthly_limit"`
	PercentUsed  float64 `json:"percent_used"`
}

// BudgetEvaluator checks month-to-date spend against monthly budgets
type BudgetEvaluator struct {
	budgets *settings.BudgetConfig
}

func NewBudgetEvaluator(budgets *settings.BudgetConfig) *BudgetEvaluator {
	return &BudgetEvaluator{budgets: budgets}
}

// MonthStart returns the first day of now's month in UTC
func MonthStart(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MonthToDate sums a series from the first of now's month through now's day
func MonthToDate(series cost.DailySeries, now time.Time) float64 {
	today := cost.Truncate(now)
	var total float64
	for _, p := range series.Since(MonthStart(now)).Points {
		if p.Date.After(today) {
			break
		}
		total += p.Cost
	}
	return total
}

// Evaluate returns at most one candidate per configured budget. Without a
// budget configuration nothing is evaluated.
func (e *BudgetEvaluator) Evaluate(agg *Aggregation, now time.Time) ([]alert.Candidate, []BudgetStatus) {
	if e.budgets == nil {
		return nil, nil
	}
	var candidates []alert.Candidate
	var statuses []BudgetStatus

	if b := e.budgets.Overall; b != nil && b.MonthlyLimit > 0 {
		spent := MonthToDate(agg.Overall, now)
		status := BudgetStatus{Name: OverallService, MonthToDate: spent, MonthlyLimit: b.MonthlyLimit, PercentUsed: percentOf(spent, b.MonthlyLimit)}
		statuses = append(statuses, status)
		if c, ok := budgetCandidate(OverallService, status); ok {
			candidates = append(candidates, c)
		}
	}

	for _, name := range sortedBudgetNames(e.budgets.Categories) {
		b := e.budgets.Categories[name]
		if b.MonthlyLimit <= 0 {
			continue
		}
		spent := MonthToDate(agg.Categories[name], now)
		status := BudgetStatus{Name: name, MonthToDate: spent, MonthlyLimit: b.MonthlyLimit, PercentUsed: percentOf(spent, b.MonthlyLimit)}
		statuses = append(statuses, status)
		if c, ok := budgetCandidate(name, status); ok {
			candidates = append(candidates, c)
		}
	}
	return candidates, statuses
}

// budgetCandidate applies the checkpoints. Exceeded and warning are exclusive.
func budgetCandidate(name string, s BudgetStatus) (alert.Candidate, bool) {
	switch {
	case s.PercentUsed >= BudgetExceededPercent:
		return alert.Candidate{
			Type:        alert.TypeBudgetExceeded,
			Severity:    alert.SeverityCritical,
			Service:     name,
			Region:      AllRegions,
			CurrentCost: s.MonthToDate,
			Threshold:   s.MonthlyLimit,
			Message: fmt.Sprintf("Monthly budget exceeded: %.2f / %.2f (%.1f%%)",
				s.MonthToDate, s.MonthlyLimit, s.PercentUsed),
		}, true
	case s.PercentUsed >= BudgetWarningPercent:
		return alert.Candidate{
			Type:        alert.TypeBudgetWarning,
			Severity:    alert.SeverityWarning,
			Service:     name,
			Region:      AllRegions,
			CurrentCost: s.MonthToDate,
			Threshold:   s.MonthlyLimit * BudgetWarningPercent / 100,
			Message: fmt.Sprintf("Monthly budget 80%% reached: %.2f / %.2f (%.1f%%)",
				s.MonthToDate, s.MonthlyLimit, s.PercentUsed),
		}, true
	}
	return alert.Candidate{}, false
}

func sortedBudgetNames(m map[string]settings.Budget) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func percentOf(spent, limit float64) float64 {
	return spent * 100 / limit
}
