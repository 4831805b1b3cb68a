package analysis

import (
	"testing"

	"github.com/pratik-mahalle/costwatch/internal/domain/cost"
)

func TestCostDrivers(t *testing.T) {
	withResource := func(r *cost.Record, id string) *cost.Record {
		r.ResourceID = id
		return r
	}
	agg := Aggregate([]*cost.Record{
		withResource(rec("EC2", "us-east-1", "2024-01-01", 60), "i-1"),
		withResource(rec("S3", "eu-west-1", "2024-01-01", 30), "bucket-1"),
		rec("RDS", "us-east-1", "2024-01-01", 10),
	})

	d := CostDrivers(agg, 2)
	if len(d.Services) != 2 || d.Services[0].Name != "EC2" || d.Services[1].Name != "S3" {
		t.Fatalf("services = %+v", d.Services)
	}
	if d.Services[0].Percentage != 60 {
		t.Errorf("EC2 percentage = %v, want 60", d.Services[0].Percentage)
	}
	if len(d.Regions) != 2 || d.Regions[0].Name != "us-east-1" || d.Regions[0].Cost != 70 {
		t.Errorf("regions = %+v", d.Regions)
	}
	if len(d.Resources) != 2 || d.Resources[0].Name != "i-1" {
		t.Errorf("resources = %+v", d.Resources)
	}
}

func TestDescribeDaily(t *testing.T) {
	agg := Aggregate(seriesRecords("EC2", "2024-01-01", 10, 30, 20))
	s := DescribeDaily(agg)

	if s.TotalDays != 3 || s.TotalCost != 60 {
		t.Errorf("days/total = %d/%v", s.TotalDays, s.TotalCost)
	}
	if s.AverageDaily != 20 || s.MedianDaily != 20 || s.MinDaily != 10 || s.MaxDaily != 30 {
		t.Errorf("stats = %+v", s)
	}
	if s.DailyBreakdown["2024-01-02"] != 30 {
		t.Errorf("breakdown = %v", s.DailyBreakdown)
	}
}

func TestInsights(t *testing.T) {
	tests := []struct {
		name    string
		records []*cost.Record
		want    map[string]string // type -> severity
	}{
		{
			name:    "weekly growth in a single service",
			records: seriesRecords("EC2", "2024-01-01", append(repeat(100, 7), repeat(125, 7)...)...),
			want:    map[string]string{"cost_increase": "high", "cost_concentration": "medium"},
		},
		{
			name:    "moderate growth",
			records: append(seriesRecords("EC2", "2024-01-01", append(repeat(50, 7), repeat(65, 7)...)...), seriesRecords("S3", "2024-01-01", repeat(50, 14)...)...),
			want:    map[string]string{"cost_increase": "medium"},
		},
		{
			name:    "flat and balanced",
			records: append(seriesRecords("EC2", "2024-01-01", repeat(50, 14)...), seriesRecords("S3", "2024-01-01", repeat(50, 14)...)...),
			want:    map[string]string{},
		},
		{
			name:    "short history only checks concentration",
			records: seriesRecords("EC2", "2024-01-01", 100, 500),
			want:    map[string]string{"cost_concentration": "medium"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Insights(Aggregate(tt.records))
			if len(got) != len(tt.want) {
				t.Fatalf("Insights() = %+v, want %v", got, tt.want)
			}
			for _, in := range got {
				if tt.want[in.Type] != in.Severity {
					t.Errorf("insight %s severity = %s, want %s", in.Type, in.Severity, tt.want[in.Type])
				}
			}
		})
	}
}
