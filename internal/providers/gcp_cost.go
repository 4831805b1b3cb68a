package providers

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"golang.org/x/time/rate"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/pratik-mahalle/costwatch/internal/config"
	"github.com/pratik-mahalle/costwatch/internal/domain/cost"
	"github.com/pratik-mahalle/costwatch/internal/pkg/errors"
)

// project.dataset.table of the billing export
var billingTablePattern = regexp.MustCompile(`^[A-Za-z0-9_\-]+\.[A-Za-z0-9_]+\.[A-Za-z0-9_]+$`)

const gcpCostQuery = `
	SELECT
		service.description AS service_name,
		IFNULL(location.region, 'global') AS region,
		DATE(usage_start_time) AS cost_date,
		SUM(cost) AS daily_cost,
		SUM(usage.amount) AS usage_amount,
		ANY_VALUE(usage.unit) AS usage_unit,
		currency
	FROM %s
	WHERE DATE(usage_start_time) >= @start_date AND DATE(usage_start_time) < @end_date
	GROUP BY service_name, region, cost_date, currency
	ORDER BY cost_date ASC`

// gcpRow is one aggregated row of the billing export query
type gcpRow struct {
	ServiceName string               `bigquery:"service_name"`
	Region      string               `bigquery:"region"`
	CostDate    bigquery.NullDate    `bigquery:"cost_date"`
	DailyCost   float64              `bigquery:"daily_cost"`
	UsageAmount bigquery.NullFloat64 `bigquery:"usage_amount"`
	UsageUnit   bigquery.NullString  `bigquery:"usage_unit"`
	Currency    string               `bigquery:"currency"`
}

// GCPCostSource queries a BigQuery billing export table
type GCPCostSource struct {
	client  *bigquery.Client
	table   string
	limiter *rate.Limiter
}

// NewGCPCostSource creates a BigQuery client for the billing project
func NewGCPCostSource(ctx context.Context, cfg config.CollectorConfig) (*GCPCostSource, error) {
	if !billingTablePattern.MatchString(cfg.GCPBillingTable) {
		return nil, fmt.Errorf("GCP_BILLING_TABLE must be project.dataset.table, got %q", cfg.GCPBillingTable)
	}
	var opts []option.ClientOption
	if cfg.GCPCredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.GCPCredentialsFile))
	}
	client, err := bigquery.NewClient(ctx, cfg.GCPProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create BigQuery client: %w", err)
	}
	return &GCPCostSource{client: client, table: cfg.GCPBillingTable, limiter: newLimiter(2)}, nil
}

func (s *GCPCostSource) Name() string { return ProviderGCP }

// Close releases the BigQuery client
func (s *GCPCostSource) Close() error {
	return s.client.Close()
}

func (s *GCPCostSource) Fetch(ctx context.Context, start, end time.Time) ([]*cost.Record, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := s.client.Query(fmt.Sprintf(gcpCostQuery, "`"+s.table+"`"))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "start_date", Value: civil.DateOf(start.UTC())},
		{Name: "end_date", Value: civil.DateOf(end.UTC())},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, errors.ProviderAPIError("BigQuery", err)
	}

	var records []*cost.Record
	for {
		var row gcpRow
		err := it.Next(&row)
		if err == iterator.Done {
			return records, nil
		}
		if err != nil {
			return records, errors.ProviderAPIError("BigQuery", err)
		}
		if rec := gcpRecord(row); rec != nil {
			records = append(records, rec)
		}
	}
}

func gcpRecord(row gcpRow) *cost.Record {
	if !row.CostDate.Valid {
		return nil
	}
	d := row.CostDate.Date
	day := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
	rec := newRecord(ProviderGCP, row.ServiceName, row.Region, day, row.DailyCost, row.Currency)
	if row.UsageAmount.Valid && row.UsageAmount.Float64 >= 0 {
		rec.Usage = row.UsageAmount.Float64
		rec.UsageUnit = row.UsageUnit.StringVal
	}
	return rec
}
