package shared

import (
	"context"
	"time"
)

// DefaultIdempotencyTTL covers the window in which Stripe retries a webhook delivery
const DefaultIdempotencyTTL = 72 * time.Hour

// IdempotencyStore remembers keys of externally delivered events that were already handled
type IdempotencyStore interface {
	// Claim records key for ttl and reports whether the caller is the first to claim it
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release forgets key so a redelivery is handled again
	Release(ctx context.Context, key string) error
}
