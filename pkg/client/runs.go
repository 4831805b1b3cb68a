package client

import (
	"context"
	"net/http"
	"net/url"
)

// RunService triggers passes and reads the run history
type RunService struct {
	client *Client
}

// RunListOptions contains options for listing executions
type RunListOptions struct {
	ListOptions
	JobType string
	Status  string
}

// Trigger runs a pass and waits for it. A failed run is returned as an
// Execution with status failed, not as an error.
func (s *RunService) Trigger(ctx context.Context, reportType string) (*Execution, error) {
	body := map[string]string{}
	if reportType != "" {
		body["report_type"] = reportType
	}
	var exec Execution
	if err := s.client.doRequest(ctx, http.MethodPost, "/api/v1/runs", body, &exec); err != nil {
		return nil, err
	}
	return &exec, nil
}

// List returns recorded executions, newest first
func (s *RunService) List(ctx context.Context, opts *RunListOptions) ([]Execution, *PageInfo, error) {
	q := url.Values{}
	if opts != nil {
		opts.ListOptions.apply(q)
		setIf(q, "job_type", opts.JobType)
		setIf(q, "status", opts.Status)
	}

	var execs []Execution
	info, err := s.client.list(ctx, "/api/v1/runs", q, &execs)
	if err != nil {
		return nil, nil, err
	}
	return execs, info, nil
}

// Schedules returns the cron entries of a running scheduler
func (s *RunService) Schedules(ctx context.Context) ([]Schedule, error) {
	var out []Schedule
	if err := s.client.doRequest(ctx, http.MethodGet, "/api/v1/schedules", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
