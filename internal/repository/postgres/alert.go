package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/pratik-mahalle/costwatch/internal/domain/alert"
	"github.com/pratik-mahalle/costwatch/internal/pkg/errors"
)

type AlertRepository struct {
	db *DB
}

func NewAlertRepository(db *DB) *AlertRepository {
	return &AlertRepository{db: db}
}

var _ alert.Repository = (*AlertRepository)(nil)

const alertColumns = `alert_id, alert_ts, alert_type, severity, service, region, current_cost, threshold, message,
	status, acknowledged, acknowledged_by, acknowledged_at, resolved, resolved_by, resolved_at, resolution_notes,
	notification_sent, notification_channels, notified_at, escalation, test_mode, expires_at, created_at, updated_at`

const alertPlaceholders = `?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?`

const activeForKey = `alert_type = ? AND service = ? AND region = ? AND status = 'active' AND created_at > ?`

// ConditionalPut inserts a unless an active alert with the same key was
// created within window. The check and the insert are one atomic step:
// a single statement on SQLite, an advisory-locked transaction on PostgreSQL.
func (r *AlertRepository) ConditionalPut(ctx context.Context, a *alert.Alert, window time.Duration) (bool, error) {
	defer observe("conditional_put", "alerts", time.Now())

	args, err := alertArgs(a)
	if err != nil {
		return false, errors.DatabaseError("Failed to encode alert", err)
	}
	key := a.Key()
	cutoff := formatTime(a.CreatedAt.Add(-window))
	keyArgs := []interface{}{key.Type, key.Service, key.Region, cutoff}

	if r.db.IsPostgres() {
		return r.conditionalPutLocked(ctx, key, args, keyArgs)
	}

	query := `INSERT INTO alerts (` + alertColumns + `)
		SELECT ` + alertPlaceholders + `
		WHERE NOT EXISTS (SELECT 1 FROM alerts WHERE ` + activeForKey + `)
		ON CONFLICT (alert_id) DO NOTHING`

	res, err := r.db.ExecContext(ctx, query, append(args, keyArgs...)...)
	if err != nil {
		return false, errors.DatabaseError("Failed to create alert", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.DatabaseError("Failed to get affected rows", err)
	}
	return n == 1, nil
}

func (r *AlertRepository) conditionalPutLocked(ctx context.Context, key alert.DedupKey, args, keyArgs []interface{}) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, errors.DatabaseError("Failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext(?))", key.String()); err != nil {
		return false, errors.DatabaseError("Failed to lock alert key", err)
	}

	var exists bool
	if err := tx.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM alerts WHERE "+activeForKey+")", keyArgs...).Scan(&exists); err != nil {
		return false, errors.DatabaseError("Failed to check active alerts", err)
	}
	if exists {
		return false, nil
	}

	res, err := tx.ExecContext(ctx,
		"INSERT INTO alerts ("+alertColumns+") VALUES ("+alertPlaceholders+") ON CONFLICT (alert_id) DO NOTHING",
		args...)
	if err != nil {
		return false, errors.DatabaseError("Failed to create alert", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.DatabaseError("Failed to get affected rows", err)
	}
	if err := tx.Commit(); err != nil {
		return false, errors.DatabaseError("Failed to commit alert", err)
	}
	return n == 1, nil
}

func alertArgs(a *alert.Alert) ([]interface{}, error) {
	channels, err := json.Marshal(a.NotificationChannels)
	if err != nil {
		return nil, err
	}
	if a.NotificationChannels == nil {
		channels = []byte("[]")
	}
	var escalation interface{}
	if a.Escalation != nil {
		b, err := json.Marshal(a.Escalation)
		if err != nil {
			return nil, err
		}
		escalation = string(b)
	}
	return []interface{}{
		a.ID, formatTime(a.Timestamp), a.Type, a.Severity, a.Service, a.Region,
		a.CurrentCost.StringFixed(2), a.Threshold.StringFixed(2), a.Message,
		a.Status, a.Acknowledged, a.AcknowledgedBy, formatTimePtr(a.AcknowledgedAt),
		a.Resolved, a.ResolvedBy, formatTimePtr(a.ResolvedAt), a.ResolutionNotes,
		a.NotificationSent, string(channels), formatTimePtr(a.NotifiedAt), escalation, a.TestMode,
		formatTime(a.ExpiresAt), formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
	}, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(s rowScanner) (*alert.Alert, error) {
	var a alert.Alert
	var ts, expiresAt, createdAt, updatedAt, channels string
	var ackAt, resolvedAt, notifiedAt, escalation sql.NullString

	err := s.Scan(
		&a.ID, &ts, &a.Type, &a.Severity, &a.Service, &a.Region, &a.CurrentCost, &a.Threshold, &a.Message,
		&a.Status, &a.Acknowledged, &a.AcknowledgedBy, &ackAt, &a.Resolved, &a.ResolvedBy, &resolvedAt, &a.ResolutionNotes,
		&a.NotificationSent, &channels, &notifiedAt, &escalation, &a.TestMode, &expiresAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Timestamp = parseTime(ts)
	a.AcknowledgedAt = parseTimePtr(ackAt)
	a.ResolvedAt = parseTimePtr(resolvedAt)
	a.NotifiedAt = parseTimePtr(notifiedAt)
	a.ExpiresAt = parseTime(expiresAt)
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)
	if channels != "" && channels != "[]" {
		_ = json.Unmarshal([]byte(channels), &a.NotificationChannels)
	}
	if escalation.Valid && escalation.String != "" {
		var e alert.Escalation
		if err := json.Unmarshal([]byte(escalation.String), &e); err == nil {
			a.Escalation = &e
		}
	}
	return &a, nil
}

// FindActive returns the newest active alert for key created after since
func (r *AlertRepository) FindActive(ctx context.Context, key alert.DedupKey, since time.Time) (*alert.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE ` + activeForKey + ` ORDER BY created_at DESC LIMIT 1`

	a, err := scanAlert(r.db.QueryRowContext(ctx, query, key.Type, key.Service, key.Region, formatTime(since)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.DatabaseError("Failed to find active alert", err)
	}
	return a, nil
}

func (r *AlertRepository) GetByID(ctx context.Context, id string) (*alert.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE alert_id = ?`

	a, err := scanAlert(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("Alert")
	}
	if err != nil {
		return nil, errors.DatabaseError("Failed to get alert", err)
	}
	return a, nil
}

// Update persists lifecycle and escalation fields if the stored status is
// still from. A concurrent change in between yields INVALID_TRANSITION.
func (r *AlertRepository) Update(ctx context.Context, a *alert.Alert, from string) error {
	defer observe("update", "alerts", time.Now())

	var escalation interface{}
	if a.Escalation != nil {
		b, err := json.Marshal(a.Escalation)
		if err != nil {
			return errors.DatabaseError("Failed to encode escalation", err)
		}
		escalation = string(b)
	}

	query := `
		UPDATE alerts SET status = ?, acknowledged = ?, acknowledged_by = ?, acknowledged_at = ?,
			resolved = ?, resolved_by = ?, resolved_at = ?, resolution_notes = ?, escalation = ?, updated_at = ?
		WHERE alert_id = ? AND status = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		a.Status, a.Acknowledged, a.AcknowledgedBy, formatTimePtr(a.AcknowledgedAt),
		a.Resolved, a.ResolvedBy, formatTimePtr(a.ResolvedAt), a.ResolutionNotes, escalation,
		formatTime(a.UpdatedAt), a.ID, from,
	)
	if err != nil {
		return errors.DatabaseError("Failed to update alert", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.DatabaseError("Failed to get affected rows", err)
	}
	if rows == 0 {
		var current string
		err := r.db.QueryRowContext(ctx, "SELECT status FROM alerts WHERE alert_id = ?", a.ID).Scan(&current)
		if err == sql.ErrNoRows {
			return errors.NotFound("Alert")
		}
		if err != nil {
			return errors.DatabaseError("Failed to get alert status", err)
		}
		return errors.InvalidTransition(current, a.Status)
	}

	return nil
}

func (r *AlertRepository) MarkNotified(ctx context.Context, id string, channels []string, at time.Time) error {
	encoded, err := json.Marshal(channels)
	if err != nil || channels == nil {
		encoded = []byte("[]")
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE alerts SET notification_sent = ?, notification_channels = ?, notified_at = ?, updated_at = ?
		WHERE alert_id = ?
	`, true, string(encoded), formatTime(at), formatTime(at), id)
	if err != nil {
		return errors.DatabaseError("Failed to mark alert notified", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.DatabaseError("Failed to get affected rows", err)
	}
	if rows == 0 {
		return errors.NotFound("Alert")
	}
	return nil
}

func (r *AlertRepository) List(ctx context.Context, filter alert.Filter, limit, offset int) ([]*alert.Alert, int64, error) {
	defer observe("list", "alerts", time.Now())

	where := []string{"1 = 1"}
	var args []interface{}

	if filter.Type != "" {
		where = append(where, "alert_type = ?")
		args = append(args, filter.Type)
	}
	if filter.Severity != "" {
		where = append(where, "severity = ?")
		args = append(args, filter.Severity)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Service != "" {
		where = append(where, "service = ?")
		args = append(args, filter.Service)
	}
	if filter.Region != "" {
		where = append(where, "region = ?")
		args = append(args, filter.Region)
	}
	if !filter.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, formatTime(filter.Since))
	}
	clause := strings.Join(where, " AND ")

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM alerts WHERE "+clause, args...).Scan(&total); err != nil {
		return nil, 0, errors.DatabaseError("Failed to count alerts", err)
	}

	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE ` + clause + ` ORDER BY created_at DESC, alert_id LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, errors.DatabaseError("Failed to list alerts", err)
	}
	defer rows.Close()

	var alerts []*alert.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, 0, errors.DatabaseError("Failed to scan alert", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.DatabaseError("Failed to iterate alerts", err)
	}

	return alerts, total, nil
}

// DeleteExpired removes alerts whose TTL has passed
func (r *AlertRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM alerts WHERE expires_at <= ?", formatTime(now))
	if err != nil {
		return 0, errors.DatabaseError("Failed to delete expired alerts", err)
	}
	return result.RowsAffected()
}
