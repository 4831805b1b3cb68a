// Package providers pulls daily billing data from cloud billing APIs and
// converts it into cost records.
package providers

import (
	"context"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pratik-mahalle/costwatch/internal/domain/cost"
)

// Provider names as stored on cost records
const (
	ProviderAWS   = "aws"
	ProviderGCP   = "gcp"
	ProviderAzure = "azure"
)

// Cost categories used by category budgets
const (
	CategoryCompute  = "compute"
	CategoryStorage  = "storage"
	CategoryDatabase = "database"
	CategoryNetwork  = "network"
	CategoryOther    = "other"
)

const defaultRegion = "global"

// CostSource fetches daily costs for [start, end). Days are UTC.
type CostSource interface {
	Name() string
	Fetch(ctx context.Context, start, end time.Time) ([]*cost.Record, error)
}

var categoryKeywords = []struct {
	category string
	words    []string
}{
	{CategoryDatabase, []string{"rds", "dynamodb", "database", "sql", "redshift", "cosmos", "bigtable", "spanner", "elasticache"}},
	{CategoryStorage, []string{"s3", "storage", "ebs", "glacier", "backup", "efs"}},
	{CategoryNetwork, []string{"cloudfront", "data transfer", "vpc", "network", "bandwidth", "load balanc", "route 53", "cdn", "dns"}},
	{CategoryCompute, []string{"ec2", "compute", "lambda", "functions", "virtual machine", "kubernetes", "eks", "aks", "gke", "container", "fargate", "app service"}},
}

// Categorize maps a billing service name to a budget category
func Categorize(service string) string {
	s := strings.ToLower(service)
	for _, c := range categoryKeywords {
		for _, w := range c.words {
			if strings.Contains(s, w) {
				return c.category
			}
		}
	}
	return CategoryOther
}

func normalizeRegion(region string) string {
	switch strings.TrimSpace(region) {
	case "", "NoRegion", "global":
		return defaultRegion
	}
	return region
}

// newRecord builds a record for one service, region and day. The resource
// id groups spend per provider, service and region.
func newRecord(provider, service, region string, day time.Time, amount float64, currency string) *cost.Record {
	region = normalizeRegion(region)
	if currency == "" {
		currency = "USD"
	}
	c := amount
	return &cost.Record{
		Provider:   provider,
		Service:    service,
		Region:     region,
		Timestamp:  cost.Truncate(day).Format(cost.DateLayout),
		Cost:       &c,
		Currency:   strings.ToUpper(currency),
		ResourceID: provider + ":" + service + ":" + region,
		Category:   Categorize(service),
	}
}

// newLimiter paces billing API calls; these APIs are billed or throttled per request
func newLimiter(perSecond float64) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}
