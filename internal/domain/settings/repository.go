package settings

import "context"

// Stored config documents
const (
	KeyThresholds = "thresholds"
	KeyBudgets    = "budgets"
)

// Repository reads raw configuration documents (JSON) from the store.
// A missing key returns an error with code CONFIG_MISSING.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, doc []byte) error
}
