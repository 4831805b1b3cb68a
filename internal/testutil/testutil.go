package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/pratik-mahalle/costwatch/internal/domain/cost"
	"github.com/pratik-mahalle/costwatch/internal/repository/postgres"
	"github.com/pratik-mahalle/costwatch/migrations"
	_ "modernc.org/sqlite"
)

// NewTestDB creates a migrated in-memory SQLite database for testing
func NewTestDB(t *testing.T) *postgres.DB {
	t.Helper()

	raw, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// every connection to :memory: is a separate database
	raw.SetMaxOpenConns(1)

	db := postgres.Wrap(raw, postgres.DriverSQLite)
	if _, err := postgres.RunMigrations(context.Background(), db, migrations.GetFS()); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	t.Cleanup(func() { CleanupDB(db) })
	return db
}

// CleanupDB closes the test database
func CleanupDB(db *postgres.DB) {
	if db != nil {
		db.Close()
	}
}

// Day returns midnight UTC of the given date
func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Record builds a cost record for service/region on day
func Record(service, region string, day time.Time, amount float64) *cost.Record {
	c := amount
	return &cost.Record{
		Provider:  "aws",
		Service:   service,
		Region:    region,
		Timestamp: day.Format(cost.DateLayout),
		Cost:      &c,
		Currency:  "USD",
	}
}

// DailyRecords builds one record per value on consecutive days ending at last
func DailyRecords(service, region string, last time.Time, values ...float64) []*cost.Record {
	out := make([]*cost.Record, 0, len(values))
	first := last.AddDate(0, 0, -(len(values) - 1))
	for i, v := range values {
		r := Record(service, region, first.AddDate(0, 0, i), v)
		r.ResourceID = fmt.Sprintf("%s-%s", service, region)
		out = append(out, r)
	}
	return out
}

// Repeat returns v n times
func Repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// GenerateSampleRecords builds deterministic daily records for every
// service/region pair over days ending at last. Costs follow a per-service
// base with a weekly cycle and up to 10% noise.
func GenerateSampleRecords(seed int64, services, regions []string, days int, last time.Time) []*cost.Record {
	rng := rand.New(rand.NewSource(seed))
	first := last.AddDate(0, 0, -(days - 1))
	var out []*cost.Record
	for si, svc := range services {
		base := 50.0 * float64(si+1)
		for _, region := range regions {
			for d := 0; d < days; d++ {
				day := first.AddDate(0, 0, d)
				weekly := 1.0
				if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
					weekly = 0.8
				}
				amount := base * weekly * (0.95 + rng.Float64()*0.1)
				r := Record(svc, region, day, float64(int(amount*100))/100)
				r.ResourceID = fmt.Sprintf("%s-%s", svc, region)
				r.Usage = float64(rng.Intn(24) + 1)
				r.UsageUnit = "Hrs"
				out = append(out, r)
			}
		}
	}
	return out
}
