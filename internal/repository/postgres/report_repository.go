package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pratik-mahalle/costwatch/internal/domain/report"
	"github.com/pratik-mahalle/costwatch/internal/pkg/errors"
)

// ReportRepository stores analysis results and summaries
type ReportRepository struct {
	db *DB
}

func NewReportRepository(db *DB) *ReportRepository {
	return &ReportRepository{db: db}
}

var _ report.Repository = (*ReportRepository)(nil)

// Put stores a result. A second result of the same type and period replaces the first.
func (r *ReportRepository) Put(ctx context.Context, res *report.AnalysisResult) error {
	defer observe("upsert", "analysis_results", time.Now())

	if res.ID == "" {
		res.ID = uuid.New().String()
	}
	now := timeNow().UTC()
	if res.CreatedAt.IsZero() {
		res.CreatedAt = now
	}
	if res.ExpiresAt.IsZero() {
		res.ExpiresAt = res.CreatedAt.Add(report.TTL)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO analysis_results (id, analysis_type, period, results, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (analysis_type, period) DO UPDATE SET
			results = excluded.results, created_at = excluded.created_at, expires_at = excluded.expires_at
	`, res.ID, res.Type, res.Period, string(res.Results), formatTime(res.CreatedAt), formatTime(res.ExpiresAt))
	if err != nil {
		return errors.DatabaseError("Failed to store analysis result", err)
	}
	return nil
}

func scanResult(s rowScanner) (*report.AnalysisResult, error) {
	var res report.AnalysisResult
	var results, createdAt, expiresAt string
	if err := s.Scan(&res.ID, &res.Type, &res.Period, &results, &createdAt, &expiresAt); err != nil {
		return nil, err
	}
	res.Results = []byte(results)
	res.CreatedAt = parseTime(createdAt)
	res.ExpiresAt = parseTime(expiresAt)
	return &res, nil
}

// Latest returns the newest result of a type
func (r *ReportRepository) Latest(ctx context.Context, analysisType string) (*report.AnalysisResult, error) {
	res, err := scanResult(r.db.QueryRowContext(ctx, `
		SELECT id, analysis_type, period, results, created_at, expires_at
		FROM analysis_results WHERE analysis_type = ? ORDER BY created_at DESC LIMIT 1
	`, analysisType))
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("Analysis result")
	}
	if err != nil {
		return nil, errors.DatabaseError("Failed to get analysis result", err)
	}
	return res, nil
}

func (r *ReportRepository) List(ctx context.Context, analysisType string, limit int) ([]*report.AnalysisResult, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, analysis_type, period, results, created_at, expires_at
		FROM analysis_results WHERE analysis_type = ? AND expires_at > ?
		ORDER BY created_at DESC LIMIT ?
	`, analysisType, formatTime(timeNow()), limit)
	if err != nil {
		return nil, errors.DatabaseError("Failed to list analysis results", err)
	}
	defer rows.Close()

	var out []*report.AnalysisResult
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, errors.DatabaseError("Failed to scan analysis result", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
