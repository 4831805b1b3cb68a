package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pratik-mahalle/costwatch/internal/domain/job"
)

// JobRepository implements job.Repository for PostgreSQL/SQLite
type JobRepository struct {
	db *DB
}

// NewJobRepository creates a new job repository
func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db}
}

var _ job.Repository = (*JobRepository)(nil)

const executionColumns = `id, job_type, job_trigger, status, started_at, completed_at, duration_ms, result, error_message`

// CreateExecution records the start of a run
func (r *JobRepository) CreateExecution(ctx context.Context, e *job.Execution) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = timeNow().UTC()
	}
	if e.Status == "" {
		e.Status = job.ExecutionStatusRunning
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO job_executions (`+executionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID, string(e.JobType), e.Trigger, string(e.Status), formatTime(e.StartedAt),
		formatTimePtr(e.CompletedAt), e.DurationMs, nullableJSON(e.Result), e.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to create job execution: %w", err)
	}
	return nil
}

// UpdateExecution stores the outcome of a run
func (r *JobRepository) UpdateExecution(ctx context.Context, e *job.Execution) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE job_executions SET status = ?, completed_at = ?, duration_ms = ?, result = ?, error_message = ?
		WHERE id = ?
	`,
		string(e.Status), formatTimePtr(e.CompletedAt), e.DurationMs, nullableJSON(e.Result), e.ErrorMessage, e.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update job execution: %w", err)
	}
	return nil
}

func scanExecution(s rowScanner) (*job.Execution, error) {
	var e job.Execution
	var jobType, status, startedAt string
	var completedAt, result sql.NullString

	if err := s.Scan(&e.ID, &jobType, &e.Trigger, &status, &startedAt, &completedAt, &e.DurationMs, &result, &e.ErrorMessage); err != nil {
		return nil, err
	}
	e.JobType = job.JobType(jobType)
	e.Status = job.ExecutionStatus(status)
	e.StartedAt = parseTime(startedAt)
	e.CompletedAt = parseTimePtr(completedAt)
	if result.Valid && result.String != "" {
		e.Result = []byte(result.String)
	}
	return &e, nil
}

// ListExecutions lists executions newest first
func (r *JobRepository) ListExecutions(ctx context.Context, filter job.ExecutionFilter, limit, offset int) ([]*job.Execution, int64, error) {
	where := []string{"1 = 1"}
	var args []interface{}

	if filter.JobType != "" {
		where = append(where, "job_type = ?")
		args = append(args, string(filter.JobType))
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.From != nil {
		where = append(where, "started_at >= ?")
		args = append(args, formatTime(*filter.From))
	}
	clause := strings.Join(where, " AND ")

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM job_executions WHERE "+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count executions: %w", err)
	}

	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+executionColumns+" FROM job_executions WHERE "+clause+" ORDER BY started_at DESC LIMIT ? OFFSET ?",
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	var executions []*job.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan execution: %w", err)
		}
		executions = append(executions, e)
	}
	return executions, total, rows.Err()
}

// GetLatestExecution returns the most recent execution of a job type, or nil
func (r *JobRepository) GetLatestExecution(ctx context.Context, jobType job.JobType) (*job.Execution, error) {
	e, err := scanExecution(r.db.QueryRowContext(ctx,
		"SELECT "+executionColumns+" FROM job_executions WHERE job_type = ? ORDER BY started_at DESC LIMIT 1",
		string(jobType)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest execution: %w", err)
	}
	return e, nil
}

// CleanupOldExecutions deletes executions started before olderThan
func (r *JobRepository) CleanupOldExecutions(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM job_executions WHERE started_at < ?", formatTime(olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup executions: %w", err)
	}
	return result.RowsAffected()
}

func nullableJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
