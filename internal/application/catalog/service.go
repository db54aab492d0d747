package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/selkies/backend/internal/domain/catalog"
	"github.com/selkies/backend/internal/domain/shared"
	"github.com/selkies/backend/internal/domain/shared/valueobject"
)

// DefaultCacheTTL is how long a catalog listing is cached
const DefaultCacheTTL = 5 * time.Minute

// Service serves the subscription catalog. Reads are cached; a failing backend
// degrades to an empty catalog instead of failing the caller.
type Service struct {
	repo       catalog.ProductRepository
	cache      catalog.ProductCache
	categories []string
	currency   valueobject.Currency
	ttl        time.Duration
	logger     *zap.Logger
}

// Option configures the Service
type Option func(*Service)

// WithCache enables caching of catalog listings
func WithCache(cache catalog.ProductCache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = cache
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithCategories restricts the catalog to the given categories
func WithCategories(categories []string) Option {
	return func(s *Service) {
		if len(categories) > 0 {
			s.categories = categories
		}
	}
}

// WithCurrency sets the currency every listed product must be priced in
func WithCurrency(currency valueobject.Currency) Option {
	return func(s *Service) {
		if currency != "" {
			s.currency = currency
		}
	}
}

// NewService creates a new catalog Service
func NewService(repo catalog.ProductRepository, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		repo:       repo,
		categories: catalog.DefaultCategories,
		currency:   valueobject.DefaultCurrency,
		ttl:        DefaultCacheTTL,
		logger:     logger.Named("catalog"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Categories returns the categories the catalog is restricted to
func (s *Service) Categories() []string {
	return append([]string(nil), s.categories...)
}

// Snapshot loads the current catalog. On backend failure it returns an empty
// snapshot together with shared.ErrCatalogUnavailable; callers may carry on with it.
func (s *Service) Snapshot(ctx context.Context) (catalog.Snapshot, error) {
	products, err := s.load(ctx)
	if err != nil {
		s.logger.Warn("catalog unavailable, continuing with an empty catalog", zap.Error(err))
		return catalog.NewSnapshot(nil), shared.NewDomainError(shared.CodeCatalogUnavailable,
			"Product catalog is temporarily unavailable")
	}
	return catalog.NewSnapshot(products), nil
}

// List returns the catalog grouped by category, keeping products that match filter
func (s *Service) List(ctx context.Context, filter ListFilter) (*CatalogResponse, error) {
	snap, err := s.Snapshot(ctx)
	products := make([]catalog.Product, 0, snap.Len())
	for _, p := range snap.Products() {
		if filter.matches(p) {
			products = append(products, p)
		}
	}
	resp := &CatalogResponse{
		Available: err == nil,
		Groups:    ToGroupResponses(catalog.GroupByCategory(products)),
	}
	if err != nil {
		resp.Message = err.Error()
	}
	return resp, nil
}

// Import creates or updates products and clears the cached listing
func (s *Service) Import(ctx context.Context, reqs []ProductRequest) (int, error) {
	saved := 0
	for i, req := range reqs {
		product, err := req.ToDomain(s.currency)
		if err != nil {
			return saved, fmt.Errorf("product %d (%s): %w", i+1, req.Name, err)
		}
		if err := s.repo.Save(ctx, &product); err != nil {
			return saved, fmt.Errorf("save product %s: %w", product.Name, err)
		}
		saved++
	}
	s.invalidate(ctx)
	return saved, nil
}

// Delete removes a product and clears the cached listing
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) load(ctx context.Context) ([]catalog.Product, error) {
	key := s.cacheKey()
	if s.cache != nil {
		products, ok, err := s.cache.Get(ctx, key)
		switch {
		case err != nil:
			s.logger.Warn("catalog cache read failed", zap.Error(err))
		case ok:
			return products, nil
		}
	}

	products, err := s.repo.FindByCategories(ctx, s.categories)
	if err != nil {
		return nil, err
	}
	products = s.filterCurrency(products)

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, products, s.ttl); err != nil {
			s.logger.Warn("catalog cache write failed", zap.Error(err))
		}
	}
	return products, nil
}

// filterCurrency drops products priced in a different currency, since totals
// are computed in a single currency.
func (s *Service) filterCurrency(products []catalog.Product) []catalog.Product {
	out := products[:0:0]
	for _, p := range products {
		if p.Price.Currency() != s.currency {
			s.logger.Warn("skipping product priced in another currency",
				zap.String("product_id", p.ID.String()),
				zap.String("currency", string(p.Price.Currency())))
			continue
		}
		out = append(out, p)
	}
	return out
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("catalog cache invalidation failed", zap.Error(err))
	}
}

func (s *Service) cacheKey() string {
	return strings.ToLower(strings.Join(s.categories, "|"))
}
