package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pratik-mahalle/costwatch/internal/domain/cost"
	"github.com/pratik-mahalle/costwatch/internal/pkg/errors"
	"github.com/pratik-mahalle/costwatch/internal/pkg/metrics"
)

// CostRepository implements cost.Repository
type CostRepository struct {
	db *DB
}

// NewCostRepository creates a new cost repository
func NewCostRepository(db *DB) *CostRepository {
	return &CostRepository{db: db}
}

var _ cost.Repository = (*CostRepository)(nil)

const insertCostRecord = `
	INSERT INTO cost_records (id, dimension_id, provider, service, region, record_ts, cost, currency,
		usage_quantity, usage_unit, resource_id, category, tags, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (dimension_id, record_ts, resource_id) DO NOTHING
`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Put appends a record. Re-ingesting the same dimension, timestamp and
// resource is a no-op, so records stay immutable.
func (r *CostRepository) Put(ctx context.Context, rec *cost.Record) error {
	defer observe("insert", "cost_records", time.Now())
	if err := r.insert(ctx, r.db, rec); err != nil {
		return errors.DatabaseError("Failed to store cost record", err)
	}
	return nil
}

// PutBatch appends records in one transaction
func (r *CostRepository) PutBatch(ctx context.Context, records []*cost.Record) error {
	if len(records) == 0 {
		return nil
	}
	defer observe("insert_batch", "cost_records", time.Now())

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.DatabaseError("Failed to begin transaction", err)
	}
	defer tx.Rollback()

	for _, rec := range records {
		if err := r.insert(ctx, tx, rec); err != nil {
			return errors.DatabaseError("Failed to store cost record batch", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.DatabaseError("Failed to commit cost record batch", err)
	}
	return nil
}

func (r *CostRepository) insert(ctx context.Context, ex execer, rec *cost.Record) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = timeNow().UTC()
	}
	currency := rec.Currency
	if currency == "" {
		currency = "USD"
	}
	tags, err := json.Marshal(rec.Tags)
	if err != nil || rec.Tags == nil {
		tags = []byte("{}")
	}

	var amount interface{}
	if rec.Cost != nil {
		amount = *rec.Cost
	}

	_, err = ex.ExecContext(ctx, insertCostRecord,
		rec.ID, rec.DimensionID(), rec.Provider, rec.Service, rec.Region, rec.Timestamp, amount, currency,
		rec.Usage, rec.UsageUnit, rec.ResourceID, rec.Category, string(tags), formatTime(rec.CreatedAt),
	)
	return err
}

// Query returns one page of records in [start, end). Bounds are compared as
// ISO-8601 strings against the stored timestamp.
func (r *CostRepository) Query(ctx context.Context, filter cost.Filter, start, end time.Time, page cost.Page) ([]*cost.Record, bool, error) {
	defer observe("query", "cost_records", time.Now())

	where := []string{"record_ts >= ?", "record_ts < ?"}
	args := []interface{}{start.UTC().Format(cost.DateLayout), end.UTC().Format(cost.DateLayout)}

	if filter.Service != "" {
		where = append(where, "service = ?")
		args = append(args, filter.Service)
	}
	if filter.Region != "" {
		where = append(where, "region = ?")
		args = append(args, filter.Region)
	}
	if filter.Category != "" {
		where = append(where, "LOWER(category) = ?")
		args = append(args, strings.ToLower(filter.Category))
	}
	if filter.ResourceID != "" {
		where = append(where, "resource_id = ?")
		args = append(args, filter.ResourceID)
	}
	if filter.TagKey != "" {
		pair, _ := json.Marshal(map[string]string{filter.TagKey: filter.TagValue})
		// {"k":"v"} -> "k":"v"
		where = append(where, "tags LIKE ?")
		args = append(args, "%"+strings.Trim(string(pair), "{}")+"%")
	}

	limit := page.Limit
	if limit <= 0 {
		limit = 500
	}

	query := `
		SELECT id, provider, service, region, record_ts, cost, currency, usage_quantity, usage_unit,
			resource_id, category, tags, created_at
		FROM cost_records
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY record_ts, id
		LIMIT ? OFFSET ?
	`
	// one extra row tells us whether another page exists
	args = append(args, limit+1, page.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, false, errors.DatabaseError("Failed to query cost records", err)
	}
	defer rows.Close()

	var records []*cost.Record
	for rows.Next() {
		var rec cost.Record
		var amount sql.NullFloat64
		var tags, createdAt string
		if err := rows.Scan(
			&rec.ID, &rec.Provider, &rec.Service, &rec.Region, &rec.Timestamp, &amount, &rec.Currency,
			&rec.Usage, &rec.UsageUnit, &rec.ResourceID, &rec.Category, &tags, &createdAt,
		); err != nil {
			return nil, false, errors.DatabaseError("Failed to scan cost record", err)
		}
		if amount.Valid {
			v := amount.Float64
			rec.Cost = &v
		}
		if tags != "" && tags != "{}" {
			_ = json.Unmarshal([]byte(tags), &rec.Tags)
		}
		rec.CreatedAt = parseTime(createdAt)
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, false, errors.DatabaseError("Failed to iterate cost records", err)
	}

	more := len(records) > limit
	if more {
		records = records[:limit]
	}
	return records, more, nil
}

// Ping verifies the store is reachable
func (r *CostRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return errors.Upstream("cost store unreachable", err)
	}
	return nil
}

func observe(operation, table string, start time.Time) {
	metrics.RecordDBQuery(operation, table, time.Since(start))
}
