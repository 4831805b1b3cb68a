package job

import (
	"context"
	"time"
)

// Repository persists run history
type Repository interface {
	CreateExecution(ctx context.Context, execution *Execution) error
	UpdateExecution(ctx context.Context, execution *Execution) error
	ListExecutions(ctx context.Context, filter ExecutionFilter, limit, offset int) ([]*Execution, int64, error)
	GetLatestExecution(ctx context.Context, jobType JobType) (*Execution, error)
	CleanupOldExecutions(ctx context.Context, olderThan time.Time) (int64, error)
}
