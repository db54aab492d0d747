package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/selkies/backend/internal/domain/catalog"
	"github.com/selkies/backend/internal/domain/shared"
	"github.com/selkies/backend/internal/domain/subscription"
	"github.com/selkies/backend/internal/infrastructure/config"
)

// Stores bundles the session store, catalog cache and webhook deduplication built by StoreFactory
type Stores struct {
	Sessions subscription.SessionStore
	Products catalog.ProductCache
	// Events deduplicates payment webhook deliveries
	Events shared.IdempotencyStore
	// Backend is "redis" or "memory"
	Backend string

	closers []func() error
	ping    func(ctx context.Context) error
}

// Ping checks the shared Redis connection. In-memory stores are always reachable.
func (s *Stores) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

// Close releases the stores and the Redis client they share
func (s *Stores) Close() error {
	var firstErr error
	for _, c := range s.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// StoreFactory creates the session store and catalog cache based on configuration
type StoreFactory struct {
	redisConfig           config.RedisConfig
	sessionTTL            time.Duration
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// StoreFactoryOption is a functional option for configuring the factory
type StoreFactoryOption func(*StoreFactory)

// WithLogger sets the logger for the factory and the stores it creates
func WithLogger(logger *zap.Logger) StoreFactoryOption {
	return func(f *StoreFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to in-memory stores when Redis is unavailable.
// Default is true.
func WithInMemoryFallback(allow bool) StoreFactoryOption {
	return func(f *StoreFactory) {
		f.allowInMemoryFallback = allow
	}
}

// WithSessionTTL sets how long an idle session is kept
func WithSessionTTL(ttl time.Duration) StoreFactoryOption {
	return func(f *StoreFactory) {
		f.sessionTTL = ttl
	}
}

// NewStoreFactory creates a new factory
func NewStoreFactory(cfg config.RedisConfig, opts ...StoreFactoryOption) *StoreFactory {
	f := &StoreFactory{
		redisConfig:           cfg,
		sessionTTL:            2 * time.Hour,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateRedisStores creates Redis-backed stores sharing one client
func (f *StoreFactory) CreateRedisStores() (*Stores, error) {
	client, err := NewRedisClient(RedisConfig{
		Host:     f.redisConfig.Host,
		Port:     f.redisConfig.Port,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})
	if err != nil {
		return nil, err
	}
	return f.storesOnClient(client), nil
}

func (f *StoreFactory) storesOnClient(client *redis.Client) *Stores {
	return &Stores{
		Sessions: NewRedisSessionStore(client, f.sessionTTL, f.logger),
		Products: NewRedisProductCache(client, f.logger),
		Events:   NewRedisIdempotencyStore(client),
		Backend:  "redis",
		closers:  []func() error{client.Close},
		ping: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
	}
}

// CreateInMemoryStores creates process-local stores.
// In-memory sessions are not shared across instances, so deployments with more than
// one instance need sticky sessions or Redis.
func (f *StoreFactory) CreateInMemoryStores() *Stores {
	sessions := NewInMemorySessionStore(f.sessionTTL)
	products := NewInMemoryProductCache()
	events := NewInMemoryIdempotencyStore()
	return &Stores{
		Sessions: sessions,
		Products: products,
		Events:   events,
		Backend:  "memory",
		closers:  []func() error{sessions.Close, products.Close, events.Close},
	}
}

// CreateStores uses Redis when it is configured and reachable. Otherwise it falls back
// to in-memory stores if fallback is allowed.
func (f *StoreFactory) CreateStores() (*Stores, error) {
	if !f.redisConfig.Enabled() {
		f.logger.Info("Redis not configured, using in-memory session store")
		return f.CreateInMemoryStores(), nil
	}

	stores, err := f.CreateRedisStores()
	if err == nil {
		f.logger.Info("using Redis session store", zap.String("addr", f.redisConfig.Addr()))
		return stores, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required for sessions but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory session store. "+
		"Sessions will not be shared between instances.",
		zap.Error(err),
	)
	return f.CreateInMemoryStores(), nil
}
