package recommendation

import (
	"context"

	"github.com/shopspring/decimal"
)

// Repository defines the interface for recommendation data access
type Repository interface {
	// Upsert stores a recommendation, refreshing cost figures when an open
	// recommendation already exists for the same resource and type.
	Upsert(ctx context.Context, rec *Recommendation) error

	// GetByID retrieves a recommendation by ID
	GetByID(ctx context.Context, id string) (*Recommendation, error)

	// UpdateStatus changes the status; actualSavings is recorded when implemented
	UpdateStatus(ctx context.Context, id, status string, actualSavings decimal.Decimal) error

	// List retrieves recommendations with filters and pagination
	List(ctx context.Context, filter Filter, limit, offset int) ([]*Recommendation, int64, error)

	// GetTotalSavings sums estimated savings of open recommendations
	GetTotalSavings(ctx context.Context) (decimal.Decimal, error)
}
