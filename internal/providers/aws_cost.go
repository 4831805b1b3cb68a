package providers

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"golang.org/x/time/rate"

	"github.com/pratik-mahalle/costwatch/internal/config"
	"github.com/pratik-mahalle/costwatch/internal/domain/cost"
	"github.com/pratik-mahalle/costwatch/internal/pkg/errors"
)

const (
	metricBlendedCost   = "BlendedCost"
	metricUsageQuantity = "UsageQuantity"
)

// CostExplorerAPI is the part of the Cost Explorer client the source uses
type CostExplorerAPI interface {
	GetCostAndUsage(ctx context.Context, params *costexplorer.GetCostAndUsageInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetCostAndUsageOutput, error)
}

// AWSCostSource reads daily cost per service and region from Cost Explorer
type AWSCostSource struct {
	client  CostExplorerAPI
	limiter *rate.Limiter
}

// NewAWSCostSource builds a client from static keys when given, otherwise
// from the default credential chain. Cost Explorer only serves us-east-1.
func NewAWSCostSource(ctx context.Context, cfg config.CollectorConfig) (*AWSCostSource, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion("us-east-1")}
	if cfg.AWSAccessKeyID != "" && cfg.AWSSecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewAWSCostSourceFromClient(costexplorer.NewFromConfig(awsCfg)), nil
}

// NewAWSCostSourceFromClient wraps an existing client
func NewAWSCostSourceFromClient(client CostExplorerAPI) *AWSCostSource {
	return &AWSCostSource{client: client, limiter: newLimiter(1)}
}

func (s *AWSCostSource) Name() string { return ProviderAWS }

// Fetch pages through GetCostAndUsage grouped by SERVICE and REGION
func (s *AWSCostSource) Fetch(ctx context.Context, start, end time.Time) ([]*cost.Record, error) {
	input := &costexplorer.GetCostAndUsageInput{
		TimePeriod: &cetypes.DateInterval{
			Start: aws.String(start.UTC().Format(cost.DateLayout)),
			End:   aws.String(end.UTC().Format(cost.DateLayout)),
		},
		Granularity: cetypes.GranularityDaily,
		Metrics:     []string{metricBlendedCost, metricUsageQuantity},
		GroupBy: []cetypes.GroupDefinition{
			{Type: cetypes.GroupDefinitionTypeDimension, Key: aws.String("SERVICE")},
			{Type: cetypes.GroupDefinitionTypeDimension, Key: aws.String("REGION")},
		},
	}

	var records []*cost.Record
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return records, err
		}
		out, err := s.client.GetCostAndUsage(ctx, input)
		if err != nil {
			return records, errors.ProviderAPIError("AWS Cost Explorer", err)
		}
		records = append(records, awsRecords(out.ResultsByTime)...)

		if out.NextPageToken == nil || *out.NextPageToken == "" {
			return records, nil
		}
		input.NextPageToken = out.NextPageToken
	}
}

func awsRecords(results []cetypes.ResultByTime) []*cost.Record {
	var records []*cost.Record
	for _, byTime := range results {
		if byTime.TimePeriod == nil || byTime.TimePeriod.Start == nil {
			continue
		}
		day, err := time.Parse(cost.DateLayout, *byTime.TimePeriod.Start)
		if err != nil {
			continue
		}

		for _, group := range byTime.Groups {
			service := "Unknown"
			region := ""
			if len(group.Keys) > 0 {
				service = group.Keys[0]
			}
			if len(group.Keys) > 1 {
				region = group.Keys[1]
			}

			amount, unit, ok := metricValue(group.Metrics, metricBlendedCost)
			if !ok {
				continue
			}
			rec := newRecord(ProviderAWS, service, region, day, amount, unit)
			if usage, usageUnit, ok := metricValue(group.Metrics, metricUsageQuantity); ok && usage >= 0 {
				rec.Usage = usage
				rec.UsageUnit = usageUnit
			}
			records = append(records, rec)
		}
	}
	return records
}

func metricValue(metrics map[string]cetypes.MetricValue, name string) (float64, string, bool) {
	m, ok := metrics[name]
	if !ok || m.Amount == nil {
		return 0, "", false
	}
	v, err := strconv.ParseFloat(*m.Amount, 64)
	if err != nil {
		return 0, "", false
	}
	return v, aws.ToString(m.Unit), true
}
