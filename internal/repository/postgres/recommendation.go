package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pratik-mahalle/costwatch/internal/domain/recommendation"
	"github.com/pratik-mahalle/costwatch/internal/pkg/errors"
	"github.com/shopspring/decimal"
)

type RecommendationRepository struct {
	db *DB
}

func NewRecommendationRepository(db *DB) *RecommendationRepository {
	return &RecommendationRepository{db: db}
}

var _ recommendation.Repository = (*RecommendationRepository)(nil)

const recommendationColumns = `recommendation_id, resource_id, recommendation_type, service, region, current_cost,
	estimated_savings, confidence, priority, status, description, recommended_action, implementation_effort,
	risk_level, implemented, actual_savings, created_at, updated_at, expires_at`

// Upsert inserts a recommendation. An existing open one with the same id
// has its cost figures and expiry refreshed; worked-on ones are left alone.
func (r *RecommendationRepository) Upsert(ctx context.Context, rec *recommendation.Recommendation) error {
	defer observe("upsert", "recommendations", time.Now())

	now := timeNow().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if rec.ExpiresAt.IsZero() {
		rec.ExpiresAt = now.Add(recommendation.TTL)
	}
	if rec.Status == "" {
		rec.Status = recommendation.StatusOpen
	}

	query := `
		INSERT INTO recommendations (` + recommendationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (recommendation_id) DO UPDATE SET
			current_cost = excluded.current_cost,
			estimated_savings = excluded.estimated_savings,
			priority = excluded.priority,
			confidence = excluded.confidence,
			description = excluded.description,
			updated_at = excluded.updated_at,
			expires_at = excluded.expires_at
		WHERE recommendations.status = 'open'
	`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.ResourceID, rec.Type, rec.Service, rec.Region, rec.CurrentCost.StringFixed(2),
		rec.EstimatedSavings.StringFixed(2), rec.Confidence, rec.Priority, rec.Status, rec.Description,
		rec.RecommendedAction, rec.ImplementationEffort, rec.RiskLevel, rec.Implemented,
		rec.ActualSavings.StringFixed(2), formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt), formatTime(rec.ExpiresAt),
	)
	if err != nil {
		return errors.DatabaseError("Failed to upsert recommendation", err)
	}
	return nil
}

func scanRecommendation(s rowScanner) (*recommendation.Recommendation, error) {
	var rec recommendation.Recommendation
	var createdAt, updatedAt, expiresAt string
	err := s.Scan(
		&rec.ID, &rec.ResourceID, &rec.Type, &rec.Service, &rec.Region, &rec.CurrentCost,
		&rec.EstimatedSavings, &rec.Confidence, &rec.Priority, &rec.Status, &rec.Description,
		&rec.RecommendedAction, &rec.ImplementationEffort, &rec.RiskLevel, &rec.Implemented,
		&rec.ActualSavings, &createdAt, &updatedAt, &expiresAt,
	)
	if err != nil {
		return nil, err
	}
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)
	rec.ExpiresAt = parseTime(expiresAt)
	return &rec, nil
}

func (r *RecommendationRepository) GetByID(ctx context.Context, id string) (*recommendation.Recommendation, error) {
	query := `SELECT ` + recommendationColumns + ` FROM recommendations WHERE recommendation_id = ?`

	rec, err := scanRecommendation(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("Recommendation")
	}
	if err != nil {
		return nil, errors.DatabaseError("Failed to get recommendation", err)
	}
	return rec, nil
}

func (r *RecommendationRepository) UpdateStatus(ctx context.Context, id, status string, actualSavings decimal.Decimal) error {
	if !recommendation.ValidStatus(status) {
		return errors.BadRequest("invalid recommendation status: " + status)
	}
	implemented := status == recommendation.StatusImplemented

	result, err := r.db.ExecContext(ctx, `
		UPDATE recommendations SET status = ?, implemented = ?, actual_savings = ?, updated_at = ?
		WHERE recommendation_id = ?
	`, status, implemented, actualSavings.StringFixed(2), formatTime(timeNow()), id)
	if err != nil {
		return errors.DatabaseError("Failed to update recommendation", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.DatabaseError("Failed to get affected rows", err)
	}
	if rows == 0 {
		return errors.NotFound("Recommendation")
	}
	return nil
}

func (r *RecommendationRepository) List(ctx context.Context, filter recommendation.Filter, limit, offset int) ([]*recommendation.Recommendation, int64, error) {
	where := []string{"expires_at > ?"}
	args := []interface{}{formatTime(timeNow())}

	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Priority != "" {
		where = append(where, "priority = ?")
		args = append(args, filter.Priority)
	}
	if filter.Service != "" {
		where = append(where, "service = ?")
		args = append(args, filter.Service)
	}
	clause := strings.Join(where, " AND ")

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM recommendations WHERE "+clause, args...).Scan(&total); err != nil {
		return nil, 0, errors.DatabaseError("Failed to count recommendations", err)
	}

	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + recommendationColumns + ` FROM recommendations WHERE ` + clause +
		` ORDER BY current_cost DESC, recommendation_id LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, errors.DatabaseError("Failed to list recommendations", err)
	}
	defer rows.Close()

	var recs []*recommendation.Recommendation
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, 0, errors.DatabaseError("Failed to scan recommendation", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.DatabaseError("Failed to iterate recommendations", err)
	}

	return recs, total, nil
}

// GetTotalSavings sums estimated savings of open recommendations
func (r *RecommendationRepository) GetTotalSavings(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := r.db.QueryRowContext(ctx,
		"SELECT SUM(estimated_savings) FROM recommendations WHERE status = ? AND expires_at > ?",
		recommendation.StatusOpen, formatTime(timeNow()),
	).Scan(&total)
	if err != nil {
		return decimal.Zero, errors.DatabaseError("Failed to sum savings", err)
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal.Round(2), nil
}
