package analysis

import (
	"math"
	"testing"

	"github.com/pratik-mahalle/costwatch/internal/domain/cost"
)

func TestAggregate(t *testing.T) {
	records := []*cost.Record{
		rec("EC2", "us-east-1", "2024-01-01", 10),
		rec("EC2", "us-east-1", "2024-01-01T13:30:00Z", 5),
		rec("EC2", "eu-west-1", "2024-01-02", 7),
		rec("S3", "us-east-1", "2024-01-02T08:00:00", 3),
		rec("S3", "us-east-1", "not-a-date", 4),
		{Service: "S3", Region: "us-east-1", Timestamp: "2024-01-02"},
		rec("S3", "us-east-1", "2024-01-02", -1),
	}

	agg := Aggregate(records)

	if agg.Accepted != 4 {
		t.Errorf("Accepted = %d, want 4", agg.Accepted)
	}
	if len(agg.Rejected) != 3 {
		t.Fatalf("Rejected = %d, want 3", len(agg.Rejected))
	}
	if got := agg.SkippedFraction(); math.Abs(got-3.0/7.0) > 1e-9 {
		t.Errorf("SkippedFraction() = %v, want %v", got, 3.0/7.0)
	}

	tests := []struct {
		name   string
		series cost.DailySeries
		want   []float64
	}{
		{"overall", agg.Overall, []float64{15, 10}},
		{"EC2", agg.ByService["EC2"], []float64{15, 7}},
		{"S3", agg.ByService["S3"], []float64{3}},
		{"us-east-1", agg.ByRegion["us-east-1"], []float64{15, 3}},
		{"eu-west-1", agg.ByRegion["eu-west-1"], []float64{7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.series.Values()
			if len(got) != len(tt.want) {
				t.Fatalf("Values() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Values()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}

	if agg.Total != 25 {
		t.Errorf("Total = %v, want 25", agg.Total)
	}
	if got := agg.RecordsByDay[day("2024-01-01")]; got != 2 {
		t.Errorf("RecordsByDay[2024-01-01] = %d, want 2", got)
	}
}

func TestAggregate_Resources(t *testing.T) {
	a := rec("EC2", "us-east-1", "2024-01-01", 60)
	a.ResourceID = "i-123"
	b := rec("EC2", "us-east-1", "2024-01-02", 40)
	b.ResourceID = "i-123"
	c := rec("RDS", "us-east-1", "2024-01-02", 5)
	c.Category = "Database"

	agg := Aggregate([]*cost.Record{a, b, c})

	r, ok := agg.Resources["i-123"]
	if !ok {
		t.Fatal("resource i-123 missing")
	}
	if r.Cost != 100 || r.Service != "EC2" {
		t.Errorf("resource = %+v, want cost 100 service EC2", r)
	}
	if got := agg.Categories["database"].Total(); got != 5 {
		t.Errorf("category total = %v, want 5", got)
	}
}

func TestAggregate_Empty(t *testing.T) {
	agg := Aggregate(nil)

	if agg.Processed() != 0 || agg.SkippedFraction() != 0 {
		t.Errorf("empty aggregation processed=%d skipped=%v", agg.Processed(), agg.SkippedFraction())
	}
	if _, ok := agg.LatestDay(); ok {
		t.Error("LatestDay() ok on empty aggregation")
	}
}
