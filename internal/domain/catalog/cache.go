package catalog

import (
	"context"
	"time"
)

// ProductCache stores catalog query results between requests
type ProductCache interface {
	// Get returns the cached products for key. The bool is false on a miss.
	Get(ctx context.Context, key string) ([]Product, bool, error)

	// Set caches products under key for ttl
	Set(ctx context.Context, key string, products []Product, ttl time.Duration) error

	// Invalidate drops every cached catalog entry
	Invalidate(ctx context.Context) error

	// Close releases resources held by the cache
	Close() error
}
