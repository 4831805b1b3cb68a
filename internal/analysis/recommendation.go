package analysis

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pratik-mahalle/costwatch/internal/domain/recommendation"
)

// SavingsModel holds the ratios the recommendation engine applies
type SavingsModel struct {
	TopN              int
	ReviewMinCost     float64
	HighPriorityCost  float64
	ReviewSavingsRate float64

	RightsizingRate float64
	ReservedRate    float64
	ReservedMinDays int
	IdleRate        float64
	StorageRate     float64

	ComputeMatch  []string
	ReservedMatch []string
	StorageMatch  []string
}

// DefaultSavingsModel returns the standard ratios
func DefaultSavingsModel() SavingsModel {
	return SavingsModel{
		TopN:              10,
		ReviewMinCost:     100,
		HighPriorityCost:  500,
		ReviewSavingsRate: 0.2,
		RightsizingRate:   0.2,
		ReservedRate:      0.3,
		ReservedMinDays:   30,
		IdleRate:          0.1,
		StorageRate:       0.05,
		ComputeMatch:      []string{"Compute"},
		ReservedMatch:     []string{"Compute", "Database"},
		StorageMatch:      []string{"Storage", "S3"},
	}
}

// recommendationNamespace seeds deterministic recommendation ids
var recommendationNamespace = uuid.MustParse("6f1c2d0e-8a4b-4c1e-9d3f-2b7a5e6c8d90")

// RecommendationID is stable for a resource and recommendation type
func RecommendationID(resourceID, recType string) string {
	return uuid.NewSHA1(recommendationNamespace, []byte(resourceID+"|"+recType)).String()
}

// Recommend ranks resources by cost and proposes a review for the top
// TopN whose cost exceeds ReviewMinCost.
func (m SavingsModel) Recommend(resources map[string]*ResourceTotal, now time.Time) []*recommendation.Recommendation {
	ranked := make([]*ResourceTotal, 0, len(resources))
	for _, r := range resources {
		ranked = append(ranked, r)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Cost != ranked[j].Cost {
			return ranked[i].Cost > ranked[j].Cost
		}
		return ranked[i].ResourceID < ranked[j].ResourceID
	})
	if len(ranked) > m.TopN {
		ranked = ranked[:m.TopN]
	}

	now = now.UTC()
	var recs []*recommendation.Recommendation
	for _, r := range ranked {
		if r.Cost <= m.ReviewMinCost {
			continue
		}
		priority := recommendation.PriorityMedium
		if r.Cost > m.HighPriorityCost {
			priority = recommendation.PriorityHigh
		}
		recs = append(recs, &recommendation.Recommendation{
			ID:                   RecommendationID(r.ResourceID, recommendation.TypeCostReview),
			ResourceID:           r.ResourceID,
			Type:                 recommendation.TypeCostReview,
			Service:              r.Service,
			Region:               r.Region,
			CurrentCost:          money(r.Cost),
			EstimatedSavings:     money(r.Cost * m.ReviewSavingsRate),
			Confidence:           recommendation.ConfidenceMedium,
			Priority:             priority,
			Status:               recommendation.StatusOpen,
			Description:          "High-cost resource requiring review for optimization opportunities",
			RecommendedAction:    "Review resource utilization and consider rightsizing or optimization",
			ImplementationEffort: "medium",
			RiskLevel:            "low",
			ActualSavings:        decimal.Zero,
			CreatedAt:            now,
			UpdatedAt:            now,
			ExpiresAt:            now.Add(recommendation.TTL),
		})
	}
	return recs
}

// Opportunities estimates aggregate savings by category
func (m SavingsModel) Opportunities(agg *Aggregation) recommendation.Savings {
	var s recommendation.Savings
	var compute, storage float64

	for _, service := range sortedKeys(agg.ByService) {
		series := agg.ByService[service]
		total := series.Total()
		if containsAny(service, m.ComputeMatch) {
			compute += total
		}
		if containsAny(service, m.StorageMatch) {
			storage += total
		}
		if containsAny(service, m.ReservedMatch) && series.Len() >= m.ReservedMinDays {
			values := series.Values()
			if lo, _ := minMax(values); lo > 0 {
				s.ReservedCapacity += Mean(values) * 30 * m.ReservedRate
			}
		}
	}

	s.Rightsizing = Round2(compute * m.RightsizingRate)
	s.ReservedCapacity = Round2(s.ReservedCapacity)
	s.IdleResources = Round2(agg.Total * m.IdleRate)
	s.StorageOptimization = Round2(storage * m.StorageRate)
	s.TotalPotential = Round2(s.Rightsizing + s.ReservedCapacity + s.IdleResources + s.StorageOptimization)
	return s
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func money(v float64) decimal.Decimal {
	d := decimal.NewFromFloat(v).Round(2)
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
