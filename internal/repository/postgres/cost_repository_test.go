package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pratik-mahalle/costwatch/internal/domain/cost"
)

func costRecord(service, region, ts string, amount float64) *cost.Record {
	return &cost.Record{Provider: "aws", Service: service, Region: region, Timestamp: ts, Cost: &amount, Currency: "USD"}
}

func TestCostRepository_PutAndQuery(t *testing.T) {
	db := newTestDB(t)
	repo := NewCostRepository(db)
	ctx := context.Background()

	records := []*cost.Record{
		costRecord("EC2", "us-east-1", "2024-01-14", 10),
		costRecord("EC2", "us-east-1", "2024-01-15", 20),
		costRecord("S3", "us-west-2", "2024-01-15T12:00:00Z", 5),
		costRecord("S3", "us-west-2", "2024-01-16", 7),
	}
	records[2].Tags = map[string]string{"team": "data"}
	if err := repo.PutBatch(ctx, records); err != nil {
		t.Fatalf("PutBatch() error = %v", err)
	}

	start := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)
	got, more, err := repo.Query(ctx, cost.Filter{}, start, end, cost.Page{Limit: 10})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if more {
		t.Error("expected a single page")
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records in range, got %d", len(got))
	}
	if got[0].Service != "EC2" || got[0].Amount() != 20 {
		t.Errorf("unexpected first record %+v", got[0])
	}
	if got[1].Tags["team"] != "data" {
		t.Errorf("expected tags to round trip, got %v", got[1].Tags)
	}
}

func TestCostRepository_QueryFilters(t *testing.T) {
	db := newTestDB(t)
	repo := NewCostRepository(db)
	ctx := context.Background()

	a := costRecord("EC2", "us-east-1", "2024-01-15", 10)
	a.Category = "Compute"
	a.Tags = map[string]string{"env": "prod"}
	b := costRecord("EC2", "eu-west-1", "2024-01-15", 20)
	b.Tags = map[string]string{"env": "dev"}
	if err := repo.PutBatch(ctx, []*cost.Record{a, b}); err != nil {
		t.Fatalf("PutBatch() error = %v", err)
	}

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		filter cost.Filter
		want   int
	}{
		{"no filter", cost.Filter{}, 2},
		{"region", cost.Filter{Region: "eu-west-1"}, 1},
		{"category case insensitive", cost.Filter{Category: "compute"}, 1},
		{"tag", cost.Filter{TagKey: "env", TagValue: "prod"}, 1},
		{"no match", cost.Filter{Service: "RDS"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, err := repo.Query(ctx, tt.filter, start, end, cost.Page{Limit: 10})
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d records, want %d", len(got), tt.want)
			}
		})
	}
}

func TestCostRepository_Pagination(t *testing.T) {
	db := newTestDB(t)
	repo := NewCostRepository(db)
	ctx := context.Background()

	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var batch []*cost.Record
	for i := 0; i < 5; i++ {
		batch = append(batch, costRecord("EC2", "us-east-1", day.AddDate(0, 0, i).Format(cost.DateLayout), float64(i)))
	}
	if err := repo.PutBatch(ctx, batch); err != nil {
		t.Fatalf("PutBatch() error = %v", err)
	}

	page := cost.Page{Limit: 2}
	var seen int
	for pages := 0; ; pages++ {
		if pages > 5 {
			t.Fatal("pagination did not terminate")
		}
		got, more, err := repo.Query(ctx, cost.Filter{}, day, day.AddDate(0, 1, 0), page)
		if err != nil {
			t.Fatalf("Query() error = %v", err)
		}
		seen += len(got)
		if !more {
			break
		}
		page = page.Next()
	}
	if seen != 5 {
		t.Errorf("expected 5 records across pages, got %d", seen)
	}
}

func TestCostRepository_DuplicateAndMissingCost(t *testing.T) {
	db := newTestDB(t)
	repo := NewCostRepository(db)
	ctx := context.Background()

	if err := repo.Put(ctx, costRecord("EC2", "us-east-1", "2024-01-15", 10)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	// same dimension and timestamp is ignored
	if err := repo.Put(ctx, costRecord("EC2", "us-east-1", "2024-01-15", 99)); err != nil {
		t.Fatalf("Put() duplicate error = %v", err)
	}
	missing := &cost.Record{Service: "S3", Region: "us-east-1", Timestamp: "2024-01-15"}
	if err := repo.Put(ctx, missing); err != nil {
		t.Fatalf("Put() missing cost error = %v", err)
	}

	got, _, err := repo.Query(ctx, cost.Filter{}, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC), cost.Page{Limit: 10})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	for _, r := range got {
		switch r.Service {
		case "EC2":
			if r.Amount() != 10 {
				t.Errorf("expected first write to win, got %v", r.Amount())
			}
		case "S3":
			if r.Cost != nil {
				t.Errorf("expected nil cost to round trip, got %v", *r.Cost)
			}
		}
	}

	if err := repo.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}
