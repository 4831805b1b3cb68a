package services

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/pratik-mahalle/costwatch/internal/domain/report"
	"github.com/pratik-mahalle/costwatch/internal/pkg/logger"
)

// S3Putter is the part of the S3 client the archiver needs
type S3Putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3ReportArchiver copies stored analysis results to a bucket as JSON
type S3ReportArchiver struct {
	client S3Putter
	bucket string
	prefix string
	logger *logger.Logger
}

func NewS3ReportArchiver(client S3Putter, bucket, prefix string, log *logger.Logger) *S3ReportArchiver {
	return &S3ReportArchiver{
		client: client,
		bucket: bucket,
		prefix: prefix,
		logger: log.Component("report_archiver"),
	}
}

// Key returns the object key for a result, e.g. reports/daily_summary/2024-01-15.json
func (a *S3ReportArchiver) Key(res *report.AnalysisResult) string {
	return path.Join(a.prefix, res.Type, res.Period+".json")
}

// Archive uploads one result
func (a *S3ReportArchiver) Archive(ctx context.Context, res *report.AnalysisResult) error {
	key := a.Key(res)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(res.Results),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to archive %s to s3://%s: %w", key, a.bucket, err)
	}
	a.logger.WithFields(map[string]interface{}{
		"bucket": a.bucket,
		"key":    key,
	}).Info("Report archived")
	return nil
}
