package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	catalogapp "github.com/selkies/backend/internal/application/catalog"
	"github.com/selkies/backend/internal/domain/catalog"
	"github.com/selkies/backend/internal/domain/shared/valueobject"
)

// MockProductRepository is a mock implementation of catalog.ProductRepository
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
	return m.Called(ctx, product).Error(0)
}

func (m *MockProductRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func setupCatalogRouter(repo *MockProductRepository) *gin.Engine {
	r := gin.New()
	NewCatalogHandler(catalogapp.NewService(repo, zap.NewNop())).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func TestCatalogHandler_ListProducts(t *testing.T) {
	bread, err := catalog.NewProduct("Sourdough", "Artisanal Breads", valueobject.NewMoneyINRFromInt(50))
	require.NoError(t, err)
	rye, err := catalog.NewProduct("Rye Loaf", "Artisanal Breads", valueobject.NewMoneyINRFromInt(80))
	require.NoError(t, err)
	puff, err := catalog.NewProduct("Veg Puff", "Savouries", valueobject.NewMoneyINRFromInt(100))
	require.NoError(t, err)

	repo := new(MockProductRepository)
	repo.On("FindByCategories", mock.Anything, mock.Anything).Return([]catalog.Product{bread, rye, puff}, nil)

	w := httptest.NewRecorder()
	setupCatalogRouter(repo).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/catalog/products", nil))
	require.Equal(t, http.StatusOK, w.Code)

	_, data := decode(t, w)
	assert.Equal(t, true, data["available"])
	groups := data["groups"].([]any)
	require.Len(t, groups, 2)

	var breads map[string]any
	for _, g := range groups {
		if g.(map[string]any)["category"] == "Artisanal Breads" {
			breads = g.(map[string]any)
		}
	}
	require.NotNil(t, breads)
	products := breads["products"].([]any)
	require.Len(t, products, 2)
	assert.Equal(t, "Rye Loaf", products[0].(map[string]any)["name"])
	assert.Equal(t, "INR", products[0].(map[string]any)["currency"])
}

func TestCatalogHandler_ListProductsOutage(t *testing.T) {
	repo := new(MockProductRepository)
	repo.On("FindByCategories", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

	w := httptest.NewRecorder()
	setupCatalogRouter(repo).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/catalog/products", nil))
	require.Equal(t, http.StatusOK, w.Code)

	_, data := decode(t, w)
	assert.Equal(t, false, data["available"])
	assert.NotEmpty(t, data["message"])
	assert.Empty(t, data["groups"])
}

func TestCatalogHandler_ListProductsFiltered(t *testing.T) {
	bread, err := catalog.NewProduct("Sourdough", "Artisanal Breads", valueobject.NewMoneyINRFromInt(50),
		catalog.WithDietType(catalog.DietTypeVeg))
	require.NoError(t, err)
	quiche, err := catalog.NewProduct("Egg Quiche", "Savouries", valueobject.NewMoneyINRFromInt(120),
		catalog.WithDietType(catalog.DietTypeEgg))
	require.NoError(t, err)

	repo := new(MockProductRepository)
	repo.On("FindByCategories", mock.Anything, mock.Anything).Return([]catalog.Product{bread, quiche}, nil)
	r := setupCatalogRouter(repo)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/catalog/products?diet=egg", nil))
	require.Equal(t, http.StatusOK, w.Code)
	_, data := decode(t, w)
	groups := data["groups"].([]any)
	require.Len(t, groups, 1)
	assert.Equal(t, "Savouries", groups[0].(map[string]any)["category"])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/catalog/products?diet=vegan", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
