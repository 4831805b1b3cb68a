package analysis

import (
	"time"

	"github.com/pratik-mahalle/costwatch/internal/domain/cost"
)

func rec(service, region, ts string, amount float64) *cost.Record {
	return &cost.Record{Service: service, Region: region, Timestamp: ts, Cost: &amount}
}

func day(s string) time.Time {
	t, err := time.Parse(cost.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

// seriesRecords creates one record per value on consecutive days from start
func seriesRecords(service, start string, values ...float64) []*cost.Record {
	d := day(start)
	out := make([]*cost.Record, 0, len(values))
	for i, v := range values {
		out = append(out, rec(service, "us-east-1", d.AddDate(0, 0, i).Format(cost.DateLayout), v))
	}
	return out
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
