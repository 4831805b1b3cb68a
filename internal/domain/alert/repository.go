package alert

import (
	"context"
	"time"
)

// Repository defines the interface for alert data access
type Repository interface {
	// ConditionalPut inserts the alert unless an active alert with the same
	// key was created within window. created is false when suppressed.
	ConditionalPut(ctx context.Context, a *Alert, window time.Duration) (created bool, err error)

	// FindActive returns the newest active alert for key created after since, or nil
	FindActive(ctx context.Context, key DedupKey, since time.Time) (*Alert, error)

	// GetByID retrieves an alert by ID
	GetByID(ctx context.Context, id string) (*Alert, error)

	// Update persists lifecycle and escalation fields, provided the stored
	// status still equals from
	Update(ctx context.Context, a *Alert, from string) error

	// MarkNotified flips notification_sent and records the channels
	MarkNotified(ctx context.Context, id string, channels []string, at time.Time) error

	// List retrieves alerts with filters and pagination
	List(ctx context.Context, filter Filter, limit, offset int) ([]*Alert, int64, error)

	// DeleteExpired removes alerts past their TTL
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
