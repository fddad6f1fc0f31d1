package shared

import (
	"context"
	"time"
)

// IdempotencyStore suppresses duplicate webhook deliveries. Suppression is
// best-effort; downstream consumers must stay idempotent regardless.
type IdempotencyStore interface {
	// Reserve atomically claims a delivery key for the given TTL. It returns
	// true when the key was newly claimed and false when an earlier delivery
	// already holds it.
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release frees a claimed delivery key so a later redelivery is not
	// suppressed. Called when processing fails after the claim.
	Release(ctx context.Context, key string) error

	// Close releases the store's resources
	Close() error
}
