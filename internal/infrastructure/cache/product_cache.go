package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/selkies/backend/internal/domain/catalog"
)

const productKeyPrefix = "catalog:products:"

// RedisProductCache implements catalog.ProductCache using Redis
type RedisProductCache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisProductCache creates a product cache on a shared Redis client.
// The caller keeps ownership of the client.
func NewRedisProductCache(client *redis.Client, logger *zap.Logger) *RedisProductCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisProductCache{client: client, logger: logger}
}

// Get returns the cached products for key
func (c *RedisProductCache) Get(ctx context.Context, key string) ([]catalog.Product, bool, error) {
	cacheKey := productKeyPrefix + key

	data, err := c.client.Get(ctx, cacheKey).Bytes()
	if errors.Is(err, redis.Nil) {
		c.logger.Debug("Cache miss for catalog", zap.String("key", key))
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get catalog from cache: %w", err)
	}

	var products []catalog.Product
	if err := json.Unmarshal(data, &products); err != nil {
		c.logger.Error("Failed to unmarshal cached catalog",
			zap.String("key", key),
			zap.Error(err))
		// Delete corrupted cache entry
		_ = c.client.Del(ctx, cacheKey)
		return nil, false, fmt.Errorf("failed to unmarshal catalog: %w", err)
	}
	return products, true, nil
}

// Set caches products under key
func (c *RedisProductCache) Set(ctx context.Context, key string, products []catalog.Product, ttl time.Duration) error {
	data, err := json.Marshal(products)
	if err != nil {
		return fmt.Errorf("failed to marshal catalog: %w", err)
	}
	if err := c.client.Set(ctx, productKeyPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set catalog in cache: %w", err)
	}
	c.logger.Debug("Cached catalog",
		zap.String("key", key),
		zap.Int("products", len(products)),
		zap.Duration("ttl", ttl))
	return nil
}

// Invalidate removes every cached catalog listing
func (c *RedisProductCache) Invalidate(ctx context.Context) error {
	deleted, err := deleteByPattern(ctx, c.client, productKeyPrefix+"*")
	if err != nil {
		c.logger.Error("Failed to invalidate catalog cache", zap.Error(err))
		return err
	}
	c.logger.Info("Invalidated catalog cache", zap.Int64("deleted_count", deleted))
	return nil
}

// Close is a no-op; the client is closed by its owner
func (c *RedisProductCache) Close() error {
	return nil
}

var _ catalog.ProductCache = (*RedisProductCache)(nil)

type productEntry struct {
	products  []catalog.Product
	expiresAt time.Time
}

// InMemoryProductCache implements catalog.ProductCache in process memory.
// Suitable for single-instance deployments and tests.
type InMemoryProductCache struct {
	mu      sync.RWMutex
	entries map[string]productEntry
	now     func() time.Time
}

// NewInMemoryProductCache creates an empty in-memory product cache
func NewInMemoryProductCache() *InMemoryProductCache {
	return &InMemoryProductCache{
		entries: make(map[string]productEntry),
		now:     time.Now,
	}
}

// Get returns the cached products for key
func (c *InMemoryProductCache) Get(_ context.Context, key string) ([]catalog.Product, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || (!e.expiresAt.IsZero() && c.now().After(e.expiresAt)) {
		return nil, false, nil
	}
	out := make([]catalog.Product, len(e.products))
	copy(out, e.products)
	return out, true, nil
}

// Set caches products under key. A zero ttl never expires.
func (c *InMemoryProductCache) Set(_ context.Context, key string, products []catalog.Product, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := productEntry{products: make([]catalog.Product, len(products))}
	copy(e.products, products)
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.entries[key] = e
	return nil
}

// Invalidate drops every entry
func (c *InMemoryProductCache) Invalidate(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]productEntry)
	return nil
}

// Close is a no-op
func (c *InMemoryProductCache) Close() error {
	return nil
}

var _ catalog.ProductCache = (*InMemoryProductCache)(nil)
