package cost

import (
	"context"
	"time"
)

// Repository is the append-only cost record store
type Repository interface {
	// Put appends a record
	Put(ctx context.Context, record *Record) error

	// PutBatch appends records in one transaction
	PutBatch(ctx context.Context, records []*Record) error

	// Query returns one page of records with start <= timestamp < end,
	// ordered by timestamp. more reports whether another page exists.
	Query(ctx context.Context, filter Filter, start, end time.Time, page Page) (records []*Record, more bool, err error)

	// Ping verifies the store is reachable
	Ping(ctx context.Context) error
}
