package report

import "context"

// Repository stores analysis results
type Repository interface {
	Put(ctx context.Context, result *AnalysisResult) error
	Latest(ctx context.Context, analysisType string) (*AnalysisResult, error)
	List(ctx context.Context, analysisType string, limit int) ([]*AnalysisResult, error)
}
