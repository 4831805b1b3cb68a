package job

import (
	"encoding/json"
	"time"
)

// Execution is one recorded run of a scheduled or manually triggered pass
type Execution struct {
	ID           string          `json:"id"`
	JobType      JobType         `json:"job_type"`
	Trigger      string          `json:"trigger"` // schedule, cli or api
	Status       ExecutionStatus `json:"status"`
	StartedAt    time.Time       `json:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	DurationMs   int64           `json:"duration_ms,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// JobType represents the passes the engine runs
type JobType string

const (
	JobTypeAlerting       JobType = "alerting"
	JobTypeAnalysis       JobType = "analysis"
	JobTypeCollection     JobType = "collection"
	JobTypeDailySummary   JobType = "daily_summary"
	JobTypeWeeklySummary  JobType = "weekly_summary"
	JobTypeMonthlySummary JobType = "monthly_summary"
	JobTypeCleanup        JobType = "cleanup"
)

// ExecutionStatus represents the status of a job execution
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusPartial   ExecutionStatus = "partial"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// ExecutionFilter contains job execution filtering options
type ExecutionFilter struct {
	JobType JobType
	Status  ExecutionStatus
	From    *time.Time
}

// IsValid checks if the job type is valid
func (jt JobType) IsValid() bool {
	switch jt {
	case JobTypeAlerting, JobTypeAnalysis, JobTypeCollection,
		JobTypeDailySummary, JobTypeWeeklySummary, JobTypeMonthlySummary, JobTypeCleanup:
		return true
	default:
		return false
	}
}

func (jt JobType) String() string {
	return string(jt)
}

// IsTerminal checks if the execution status is terminal
func (es ExecutionStatus) IsTerminal() bool {
	return es != ExecutionStatusRunning
}
