package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/selkies/backend/internal/domain/catalog"
	"github.com/selkies/backend/internal/domain/shared"
	"github.com/selkies/backend/internal/domain/shared/valueobject"
)

// MockProductRepository is a mock implementation of ProductRepository
type MockProductRepository struct {
	mock.Mock
}

func (m *MockProductRepository) FindByCategories(ctx context.Context, categories []string) ([]catalog.Product, error) {
	args := m.Called(ctx, categories)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]catalog.Product), args.Error(1)
}

func (m *MockProductRepository) FindByID(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Product), args.Error(1)
}

func (m *MockProductRepository) Save(ctx context.Context, product *catalog.Product) error {
	args := m.Called(ctx, product)
	return args.Error(0)
}

func (m *MockProductRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockProductCache is a mock implementation of ProductCache
type MockProductCache struct {
	mock.Mock
}

func (m *MockProductCache) Get(ctx context.Context, key string) ([]catalog.Product, bool, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).([]catalog.Product), args.Bool(1), args.Error(2)
}

func (m *MockProductCache) Set(ctx context.Context, key string, products []catalog.Product, ttl time.Duration) error {
	args := m.Called(ctx, key, products, ttl)
	return args.Error(0)
}

func (m *MockProductCache) Invalidate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockProductCache) Close() error {
	return m.Called().Error(0)
}

func testProducts(t *testing.T) []catalog.Product {
	t.Helper()
	bread, err := catalog.NewProduct("Sourdough", "Artisanal Breads", valueobject.NewMoneyINRFromInt(180))
	require.NoError(t, err)
	puff, err := catalog.NewProduct("Veg Puff", "Savouries", valueobject.NewMoneyINRFromInt(45), catalog.WithDietType(catalog.DietTypeVeg))
	require.NoError(t, err)
	return []catalog.Product{bread, puff}
}

func TestService_Snapshot(t *testing.T) {
	ctx := context.Background()

	t.Run("loads from repository with default categories", func(t *testing.T) {
		repo := new(MockProductRepository)
		repo.On("FindByCategories", ctx, catalog.DefaultCategories).Return(testProducts(t), nil)

		svc := NewService(repo, zap.NewNop())
		snap, err := svc.Snapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, snap.Len())
		repo.AssertExpectations(t)
	})

	t.Run("repository failure degrades to empty catalog", func(t *testing.T) {
		repo := new(MockProductRepository)
		repo.On("FindByCategories", ctx, mock.Anything).Return(nil, errors.New("connection refused"))

		svc := NewService(repo, zap.NewNop())
		snap, err := svc.Snapshot(ctx)
		assert.ErrorIs(t, err, shared.ErrCatalogUnavailable)
		assert.True(t, snap.IsEmpty())
	})

	t.Run("cache hit skips repository", func(t *testing.T) {
		repo := new(MockProductRepository)
		cache := new(MockProductCache)
		cache.On("Get", ctx, "savouries").Return(testProducts(t), true, nil)

		svc := NewService(repo, zap.NewNop(), WithCache(cache, time.Minute), WithCategories([]string{"Savouries"}))
		snap, err := svc.Snapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, snap.Len())
		repo.AssertNotCalled(t, "FindByCategories", mock.Anything, mock.Anything)
	})

	t.Run("cache miss fills cache", func(t *testing.T) {
		repo := new(MockProductRepository)
		cache := new(MockProductCache)
		products := testProducts(t)
		cache.On("Get", ctx, mock.Anything).Return(nil, false, nil)
		repo.On("FindByCategories", ctx, catalog.DefaultCategories).Return(products, nil)
		cache.On("Set", ctx, "artisanal breads|savouries", products, 2*time.Minute).Return(nil)

		svc := NewService(repo, zap.NewNop(), WithCache(cache, 2*time.Minute))
		_, err := svc.Snapshot(ctx)
		require.NoError(t, err)
		cache.AssertExpectations(t)
	})

	t.Run("cache errors fall through to repository", func(t *testing.T) {
		repo := new(MockProductRepository)
		cache := new(MockProductCache)
		cache.On("Get", ctx, mock.Anything).Return(nil, false, errors.New("redis down"))
		cache.On("Set", ctx, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("redis down"))
		repo.On("FindByCategories", ctx, mock.Anything).Return(testProducts(t), nil)

		svc := NewService(repo, zap.NewNop(), WithCache(cache, 0))
		snap, err := svc.Snapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, snap.Len())
	})

	t.Run("drops products in a foreign currency", func(t *testing.T) {
		repo := new(MockProductRepository)
		usd, _ := valueobject.NewMoneyFromInt(3, valueobject.USD)
		foreign, err := catalog.NewProduct("Bagel", "Artisanal Breads", usd)
		require.NoError(t, err)
		repo.On("FindByCategories", ctx, mock.Anything).Return(append(testProducts(t), foreign), nil)

		svc := NewService(repo, zap.NewNop())
		snap, err := svc.Snapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, snap.Len())
		_, ok := snap.Lookup(foreign.ID)
		assert.False(t, ok)
	})
}

func TestService_List(t *testing.T) {
	ctx := context.Background()

	t.Run("groups by category", func(t *testing.T) {
		repo := new(MockProductRepository)
		repo.On("FindByCategories", ctx, mock.Anything).Return(testProducts(t), nil)

		resp, err := NewService(repo, nil).List(ctx, ListFilter{})
		require.NoError(t, err)
		assert.True(t, resp.Available)
		require.Len(t, resp.Groups, 2)
		assert.Equal(t, "Artisanal Breads", resp.Groups[0].Category)
		assert.Equal(t, "veg", resp.Groups[1].Products[0].DietType)
	})

	t.Run("filters by diet and category", func(t *testing.T) {
		repo := new(MockProductRepository)
		repo.On("FindByCategories", ctx, mock.Anything).Return(testProducts(t), nil)
		svc := NewService(repo, nil)

		resp, err := svc.List(ctx, ListFilter{Diet: "veg"})
		require.NoError(t, err)
		require.Len(t, resp.Groups, 1)
		assert.Equal(t, "Veg Puff", resp.Groups[0].Products[0].Name)

		resp, err = svc.List(ctx, ListFilter{Diet: "all", Category: "artisanal breads"})
		require.NoError(t, err)
		require.Len(t, resp.Groups, 1)
		assert.Equal(t, "Sourdough", resp.Groups[0].Products[0].Name)

		resp, err = svc.List(ctx, ListFilter{Diet: "egg"})
		require.NoError(t, err)
		assert.True(t, resp.Available)
		assert.Empty(t, resp.Groups)
	})

	t.Run("unavailable catalog is reported, not failed", func(t *testing.T) {
		repo := new(MockProductRepository)
		repo.On("FindByCategories", ctx, mock.Anything).Return(nil, errors.New("timeout"))

		resp, err := NewService(repo, nil).List(ctx, ListFilter{})
		require.NoError(t, err)
		assert.False(t, resp.Available)
		assert.NotEmpty(t, resp.Message)
		assert.Empty(t, resp.Groups)
	})
}

func TestService_Import(t *testing.T) {
	ctx := context.Background()

	t.Run("saves and invalidates cache", func(t *testing.T) {
		repo := new(MockProductRepository)
		cache := new(MockProductCache)
		repo.On("Save", ctx, mock.MatchedBy(func(p *catalog.Product) bool {
			return p.Name == "Focaccia" && p.Price.Currency() == valueobject.INR
		})).Return(nil)
		cache.On("Invalidate", ctx).Return(nil)

		svc := NewService(repo, zap.NewNop(), WithCache(cache, 0))
		n, err := svc.Import(ctx, []ProductRequest{{
			Name: "Focaccia", Category: "Artisanal Breads", Price: decimal.NewFromInt(220), DietType: "veg",
		}})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		repo.AssertExpectations(t)
		cache.AssertExpectations(t)
	})

	t.Run("invalid product stops the import", func(t *testing.T) {
		repo := new(MockProductRepository)
		svc := NewService(repo, zap.NewNop())
		n, err := svc.Import(ctx, []ProductRequest{{Name: "", Category: "Savouries", Price: decimal.NewFromInt(1)}})
		assert.Error(t, err)
		assert.Zero(t, n)
		repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("delete invalidates cache", func(t *testing.T) {
		repo := new(MockProductRepository)
		cache := new(MockProductCache)
		id := uuid.New()
		repo.On("Delete", ctx, id).Return(nil)
		cache.On("Invalidate", ctx).Return(nil)

		svc := NewService(repo, zap.NewNop(), WithCache(cache, 0))
		require.NoError(t, svc.Delete(ctx, id))
		cache.AssertExpectations(t)
	})
}
