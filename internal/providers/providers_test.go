package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/costmanagement/armcostmanagement"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"golang.org/x/time/rate"

	apperrors "github.com/pratik-mahalle/costwatch/internal/pkg/errors"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		service string
		want    string
	}{
		{"Amazon Elastic Compute Cloud - Compute", CategoryCompute},
		{"Amazon Simple Storage Service", CategoryStorage},
		{"Amazon Relational Database Service", CategoryDatabase},
		{"Amazon CloudFront", CategoryNetwork},
		{"Cloud SQL", CategoryDatabase},
		{"Virtual Machines", CategoryCompute},
		{"AWS Support (Business)", CategoryOther},
	}
	for _, tt := range tests {
		if got := Categorize(tt.service); got != tt.want {
			t.Errorf("Categorize(%q) = %q, want %q", tt.service, got, tt.want)
		}
	}
}

type fakeCostExplorer struct {
	pages []*costexplorer.GetCostAndUsageOutput
	calls int
	err   error
}

func (f *fakeCostExplorer) GetCostAndUsage(ctx context.Context, in *costexplorer.GetCostAndUsageInput, _ ...func(*costexplorer.Options)) (*costexplorer.GetCostAndUsageOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := f.pages[f.calls]
	f.calls++
	return out, nil
}

func metric(amount, unit string) cetypes.MetricValue {
	return cetypes.MetricValue{Amount: aws.String(amount), Unit: aws.String(unit)}
}

func TestAWSCostSourceFetch(t *testing.T) {
	day := func(d string) *cetypes.DateInterval {
		return &cetypes.DateInterval{Start: aws.String(d), End: aws.String(d)}
	}
	fake := &fakeCostExplorer{pages: []*costexplorer.GetCostAndUsageOutput{
		{
			ResultsByTime: []cetypes.ResultByTime{{
				TimePeriod: day("2024-01-14"),
				Groups: []cetypes.Group{{
					Keys: []string{"Amazon Elastic Compute Cloud - Compute", "us-east-1"},
					Metrics: map[string]cetypes.MetricValue{
						metricBlendedCost:   metric("42.5", "USD"),
						metricUsageQuantity: metric("24", "Hrs"),
					},
				}},
			}},
			NextPageToken: aws.String("next"),
		},
		{
			ResultsByTime: []cetypes.ResultByTime{{
				TimePeriod: day("2024-01-15"),
				Groups: []cetypes.Group{
					{Keys: []string{"Tax", "NoRegion"}, Metrics: map[string]cetypes.MetricValue{metricBlendedCost: metric("1.25", "USD")}},
					{Keys: []string{"Broken", "us-east-1"}, Metrics: map[string]cetypes.MetricValue{metricBlendedCost: metric("n/a", "USD")}},
				},
			}},
		},
	}}

	src := NewAWSCostSourceFromClient(fake)
	src.limiter = rate.NewLimiter(rate.Inf, 1)
	start := time.Date(2024, 1, 14, 0, 0, 0, 0, time.UTC)
	records, err := src.Fetch(context.Background(), start, start.AddDate(0, 0, 2))
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if fake.calls != 2 {
		t.Errorf("expected 2 pages fetched, got %d", fake.calls)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	ec2 := records[0]
	if ec2.Timestamp != "2024-01-14" || ec2.Amount() != 42.5 || ec2.Usage != 24 || ec2.UsageUnit != "Hrs" {
		t.Errorf("unexpected record %+v", ec2)
	}
	if ec2.Category != CategoryCompute || ec2.Provider != ProviderAWS {
		t.Errorf("category/provider = %s/%s", ec2.Category, ec2.Provider)
	}
	if records[1].Region != "global" {
		t.Errorf("NoRegion should map to global, got %q", records[1].Region)
	}
}

func TestAWSCostSourceFetchError(t *testing.T) {
	cause := errors.New("throttled")
	src := NewAWSCostSourceFromClient(&fakeCostExplorer{err: cause})
	_, err := src.Fetch(context.Background(), time.Now(), time.Now())
	if !apperrors.IsCode(err, apperrors.ErrCodeProviderAPI) {
		t.Errorf("Fetch() error = %v, want PROVIDER_API_ERROR", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("Fetch() error should wrap the SDK error, got %v", err)
	}
}

type fakeAzureUsage struct {
	err error
}

func (f *fakeAzureUsage) Usage(ctx context.Context, scope string, q armcostmanagement.QueryDefinition, _ *armcostmanagement.QueryClientUsageOptions) (armcostmanagement.QueryClientUsageResponse, error) {
	return armcostmanagement.QueryClientUsageResponse{}, f.err
}

func TestAzureCostSourceFetchError(t *testing.T) {
	src := NewAzureCostSourceFromClient(&fakeAzureUsage{err: errors.New("403 forbidden")}, "sub-1")
	_, err := src.Fetch(context.Background(), time.Now().AddDate(0, 0, -1), time.Now())
	if !apperrors.IsCode(err, apperrors.ErrCodeProviderAPI) {
		t.Errorf("Fetch() error = %v, want PROVIDER_API_ERROR", err)
	}
}

func TestAzureRecords(t *testing.T) {
	name := func(s string) *armcostmanagement.QueryColumn { return &armcostmanagement.QueryColumn{Name: strPtr(s)} }
	result := armcostmanagement.QueryResult{
		Properties: &armcostmanagement.QueryProperties{
			Columns: []*armcostmanagement.QueryColumn{
				name(azureCostColumn), name("UsageDate"), name(azureServiceColumn), name(azureLocationColumn), name(azureCurrencyColumn),
			},
			Rows: [][]interface{}{
				{12.5, float64(20240115), "Virtual Machines", "eastus", "EUR"},
				{3.0, "2024-01-15", "Storage", "", "USD"},
				{"bad", float64(20240115), "Virtual Machines", "eastus", "USD"},
				{1.0, nil, "Virtual Machines", "eastus", "USD"},
			},
		},
	}

	records := azureRecords(result)
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if r := records[0]; r.Timestamp != "2024-01-15" || r.Currency != "EUR" || r.Region != "eastus" || r.Category != CategoryCompute {
		t.Errorf("unexpected record %+v", r)
	}
	if r := records[1]; r.Region != "global" || r.Category != CategoryStorage {
		t.Errorf("unexpected record %+v", r)
	}
}

func TestGCPRecord(t *testing.T) {
	row := gcpRow{
		ServiceName: "Compute Engine",
		Region:      "europe-west1",
		CostDate:    bigquery.NullDate{Date: civil.Date{Year: 2024, Month: time.January, Day: 15}, Valid: true},
		DailyCost:   9.99,
		UsageAmount: bigquery.NullFloat64{Float64: 3600, Valid: true},
		UsageUnit:   bigquery.NullString{StringVal: "seconds", Valid: true},
		Currency:    "usd",
	}
	rec := gcpRecord(row)
	if rec == nil {
		t.Fatal("expected a record")
	}
	if rec.Timestamp != "2024-01-15" || rec.Currency != "USD" || rec.Usage != 3600 || rec.ResourceID != "gcp:Compute Engine:europe-west1" {
		t.Errorf("unexpected record %+v", rec)
	}

	row.CostDate.Valid = false
	if gcpRecord(row) != nil {
		t.Error("rows without a date should be dropped")
	}
}
