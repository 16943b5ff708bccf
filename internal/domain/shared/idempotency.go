package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers dedupe keys whose processing job already succeeded.
// It is a fast path in front of the processing job table; the table stays authoritative.
type IdempotencyStore interface {
	// MarkProcessed records a succeeded key with a TTL
	// Returns true if the key was newly marked, false if it was already present
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed checks if a key is known to have succeeded
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Close closes the store and releases resources
	Close() error
}

// IdempotencyConfig holds configuration for the succeeded-job cache
type IdempotencyConfig struct {
	// TTL is how long a succeeded key is remembered by the cache
	TTL time.Duration

	// Enabled determines whether the cache is consulted at all
	Enabled bool
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}
