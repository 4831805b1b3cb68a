package providers

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/costmanagement/armcostmanagement"
	"golang.org/x/time/rate"

	"github.com/pratik-mahalle/costwatch/internal/config"
	"github.com/pratik-mahalle/costwatch/internal/domain/cost"
	"github.com/pratik-mahalle/costwatch/internal/pkg/errors"
)

// Azure query column names
const (
	azureCostColumn     = "PreTaxCost"
	azureServiceColumn  = "ServiceName"
	azureLocationColumn = "ResourceLocation"
	azureCurrencyColumn = "Currency"
)

// AzureUsageAPI is the part of the Cost Management query client the source uses
type AzureUsageAPI interface {
	Usage(ctx context.Context, scope string, parameters armcostmanagement.QueryDefinition, options *armcostmanagement.QueryClientUsageOptions) (armcostmanagement.QueryClientUsageResponse, error)
}

// AzureCostSource reads daily cost per service and location for one subscription
type AzureCostSource struct {
	client  AzureUsageAPI
	scope   string
	limiter *rate.Limiter
}

// NewAzureCostSource authenticates with a service principal
func NewAzureCostSource(cfg config.CollectorConfig) (*AzureCostSource, error) {
	if cfg.AzureSubscriptionID == "" {
		return nil, fmt.Errorf("AZURE_SUBSCRIPTION_ID is required")
	}
	credential, err := azidentity.NewClientSecretCredential(cfg.AzureTenantID, cfg.AzureClientID, cfg.AzureClientSecret, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}
	client, err := armcostmanagement.NewQueryClient(credential, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cost management client: %w", err)
	}
	return NewAzureCostSourceFromClient(client, cfg.AzureSubscriptionID), nil
}

// NewAzureCostSourceFromClient wraps an existing client
func NewAzureCostSourceFromClient(client AzureUsageAPI, subscriptionID string) *AzureCostSource {
	return &AzureCostSource{
		client:  client,
		scope:   "subscriptions/" + subscriptionID,
		limiter: newLimiter(0.5),
	}
}

func (s *AzureCostSource) Name() string { return ProviderAzure }

func (s *AzureCostSource) Fetch(ctx context.Context, start, end time.Time) ([]*cost.Record, error) {
	from := start.UTC()
	// the query's end is inclusive
	to := end.UTC().Add(-time.Second)

	sum := armcostmanagement.FunctionTypeSum
	dimension := armcostmanagement.QueryColumnTypeDimension
	granularity := armcostmanagement.GranularityTypeDaily
	timeframe := armcostmanagement.TimeframeTypeCustom
	exportType := armcostmanagement.ExportTypeActualCost

	query := armcostmanagement.QueryDefinition{
		Type:       &exportType,
		Timeframe:  &timeframe,
		TimePeriod: &armcostmanagement.QueryTimePeriod{From: &from, To: &to},
		Dataset: &armcostmanagement.QueryDataset{
			Granularity: &granularity,
			Aggregation: map[string]*armcostmanagement.QueryAggregation{
				azureCostColumn: {Name: strPtr(azureCostColumn), Function: &sum},
			},
			Grouping: []*armcostmanagement.QueryGrouping{
				{Type: &dimension, Name: strPtr(azureServiceColumn)},
				{Type: &dimension, Name: strPtr(azureLocationColumn)},
			},
		},
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := s.client.Usage(ctx, s.scope, query, nil)
	if err != nil {
		return nil, errors.ProviderAPIError("Azure Cost Management", err)
	}
	return azureRecords(resp.QueryResult), nil
}

// azureRecords maps result rows by column name; column order is not fixed
func azureRecords(result armcostmanagement.QueryResult) []*cost.Record {
	if result.Properties == nil {
		return nil
	}
	cols := make(map[string]int)
	for i, col := range result.Properties.Columns {
		if col != nil && col.Name != nil {
			cols[*col.Name] = i
		}
	}
	dateCol, ok := cols["UsageDate"]
	if !ok {
		dateCol, ok = cols["UsageDateKey"]
	}
	if !ok {
		return nil
	}

	var records []*cost.Record
	for _, row := range result.Properties.Rows {
		amount, ok := cellFloat(row, cols, azureCostColumn)
		if !ok {
			continue
		}
		var day time.Time
		if dateCol < len(row) {
			day, ok = azureDate(row[dateCol])
		}
		if !ok || day.IsZero() {
			continue
		}
		records = append(records, newRecord(ProviderAzure,
			cellString(row, cols, azureServiceColumn),
			cellString(row, cols, azureLocationColumn),
			day, amount,
			cellString(row, cols, azureCurrencyColumn)))
	}
	return records
}

// azureDate parses UsageDate, which arrives as a YYYYMMDD number or a date string
func azureDate(v interface{}) (time.Time, bool) {
	switch d := v.(type) {
	case float64:
		n := int(d)
		return time.Date(n/10000, time.Month(n%10000/100), n%100, 0, 0, 0, 0, time.UTC), true
	case string:
		if t, err := time.Parse("20060102", d); err == nil {
			return t, true
		}
		t, err := cost.ParseDay(d)
		return t, err == nil
	}
	return time.Time{}, false
}

func cellFloat(row []interface{}, cols map[string]int, name string) (float64, bool) {
	i, ok := cols[name]
	if !ok || i >= len(row) {
		return 0, false
	}
	switch v := row[i].(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

func cellString(row []interface{}, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(row) {
		return ""
	}
	s, _ := row[i].(string)
	return s
}

func strPtr(s string) *string {
	return &s
}
