package shared

import (
	"context"
	"time"
)

// IdempotencyStore records which event deliveries have been consumed so a
// redelivered event is not processed twice.
type IdempotencyStore interface {
	// MarkProcessed records the event ID with a TTL. It returns true when the
	// ID was newly recorded and false when a prior delivery already claimed it.
	MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error)

	// IsProcessed reports whether the event ID has already been recorded.
	IsProcessed(ctx context.Context, eventID string) (bool, error)

	// Close releases the store's resources.
	Close() error
}

// IdempotencyConfig controls duplicate-delivery suppression for a handler.
type IdempotencyConfig struct {
	// TTL bounds how long a processed event ID is remembered. Once it
	// expires the same ID would be processed again.
	TTL time.Duration

	// Enabled turns the duplicate check off entirely when false.
	Enabled bool
}

// DefaultIdempotencyConfig remembers deliveries for a day.
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}
