package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
)

// AlertService handles alert lifecycle calls
type AlertService struct {
	client *Client
}

// AlertListOptions contains options for listing alerts
type AlertListOptions struct {
	ListOptions
	Type     string
	Severity string
	Status   string
	Service  string
	Region   string
	Since    string // YYYY-MM-DD
}

func (o ListOptions) apply(q url.Values) {
	if o.Page > 0 {
		q.Set("page", strconv.Itoa(o.Page))
	}
	if o.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(o.PageSize))
	}
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

// page is the paginated data shape; Data is decoded by the caller
type page struct {
	PageInfo
	Data json.RawMessage `json:"data"`
}

func (c *Client) list(ctx context.Context, path string, q url.Values, items interface{}) (*PageInfo, error) {
	var p page
	if err := c.doRequest(ctx, http.MethodGet, withQuery(path, q), nil, &p); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(p.Data, items); err != nil {
		return nil, err
	}
	return &p.PageInfo, nil
}

// List returns alerts, newest first
func (s *AlertService) List(ctx context.Context, opts *AlertListOptions) ([]Alert, *PageInfo, error) {
	q := url.Values{}
	if opts != nil {
		opts.ListOptions.apply(q)
		setIf(q, "type", opts.Type)
		setIf(q, "severity", opts.Severity)
		setIf(q, "status", opts.Status)
		setIf(q, "service", opts.Service)
		setIf(q, "region", opts.Region)
		setIf(q, "since", opts.Since)
	}

	var alerts []Alert
	info, err := s.client.list(ctx, "/api/v1/alerts", q, &alerts)
	if err != nil {
		return nil, nil, err
	}
	return alerts, info, nil
}

// Get retrieves a single alert by ID
func (s *AlertService) Get(ctx context.Context, id string) (*Alert, error) {
	var alert Alert
	if err := s.client.doRequest(ctx, http.MethodGet, "/api/v1/alerts/"+url.PathEscape(id), nil, &alert); err != nil {
		return nil, err
	}
	return &alert, nil
}

// Acknowledge marks an active alert acknowledged by the token's operator
func (s *AlertService) Acknowledge(ctx context.Context, id string) (*Alert, error) {
	return s.post(ctx, id, "acknowledge", nil)
}

// Resolve closes an alert with optional notes
func (s *AlertService) Resolve(ctx context.Context, id, notes string) (*Alert, error) {
	return s.post(ctx, id, "resolve", map[string]string{"notes": notes})
}

// Escalate attaches escalation level 1-3
func (s *AlertService) Escalate(ctx context.Context, id string, level int) (*Alert, error) {
	return s.post(ctx, id, "escalate", map[string]int{"level": level})
}

func (s *AlertService) post(ctx context.Context, id, action string, body interface{}) (*Alert, error) {
	var alert Alert
	path := "/api/v1/alerts/" + url.PathEscape(id) + "/" + action
	if err := s.client.doRequest(ctx, http.MethodPost, path, body, &alert); err != nil {
		return nil, err
	}
	return &alert, nil
}

// Metrics summarises alert activity over the last days
func (s *AlertService) Metrics(ctx context.Context, days int) (*AlertMetrics, error) {
	q := url.Values{}
	if days > 0 {
		q.Set("days", strconv.Itoa(days))
	}
	var m AlertMetrics
	if err := s.client.doRequest(ctx, http.MethodGet, withQuery("/api/v1/alerts/metrics", q), nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
