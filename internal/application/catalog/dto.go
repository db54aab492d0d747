package catalog

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/selkies/backend/internal/domain/catalog"
	"github.com/selkies/backend/internal/domain/shared/valueobject"
)

// ProductRequest describes a product to create or update
type ProductRequest struct {
	ID          *uuid.UUID      `json:"id,omitempty"`
	Name        string          `json:"name" binding:"required,min=1,max=200"`
	Category    string          `json:"category" binding:"required"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description,omitempty"`
	DietType    string          `json:"diet_type,omitempty" binding:"omitempty,oneof=veg egg non-veg"`
}

// ToDomain builds a validated catalog product
func (r ProductRequest) ToDomain(currency valueobject.Currency) (catalog.Product, error) {
	price, err := valueobject.NewMoney(r.Price, currency)
	if err != nil {
		return catalog.Product{}, err
	}
	opts := []catalog.ProductOption{
		catalog.WithDescription(r.Description),
		catalog.WithDietType(catalog.DietType(r.DietType)),
	}
	if r.ID != nil {
		opts = append(opts, catalog.WithID(*r.ID))
	}
	return catalog.NewProduct(r.Name, r.Category, price, opts...)
}

// ListFilter narrows a catalog listing. Empty fields and "all" match every product.
type ListFilter struct {
	Diet     string `form:"diet" binding:"omitempty,oneof=all veg egg non-veg"`
	Category string `form:"category" binding:"omitempty,max=100"`
}

func (f ListFilter) matches(p catalog.Product) bool {
	if f.Diet != "" && f.Diet != "all" && string(p.DietType) != f.Diet {
		return false
	}
	if f.Category != "" && f.Category != "all" && !strings.EqualFold(p.Category, f.Category) {
		return false
	}
	return true
}

// ProductResponse represents a product in API responses
type ProductResponse struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
	Description string          `json:"description,omitempty"`
	DietType    string          `json:"diet_type,omitempty"`
}

// CategoryGroupResponse is a category with its products
type CategoryGroupResponse struct {
	Category string            `json:"category"`
	Products []ProductResponse `json:"products"`
}

// CatalogResponse is the grouped catalog listing
type CatalogResponse struct {
	Available bool                    `json:"available"`
	Message   string                  `json:"message,omitempty"`
	Groups    []CategoryGroupResponse `json:"groups"`
}

// ToProductResponse converts a domain Product to ProductResponse
func ToProductResponse(p catalog.Product) ProductResponse {
	return ProductResponse{
		ID:          p.ID,
		Name:        p.Name,
		Category:    p.Category,
		Price:       p.Price.Amount(),
		Currency:    string(p.Price.Currency()),
		Description: p.Description,
		DietType:    string(p.DietType),
	}
}

// ToGroupResponses converts category groups to responses
func ToGroupResponses(groups []catalog.CategoryGroup) []CategoryGroupResponse {
	out := make([]CategoryGroupResponse, len(groups))
	for i, g := range groups {
		products := make([]ProductResponse, len(g.Products))
		for j, p := range g.Products {
			products[j] = ToProductResponse(p)
		}
		out[i] = CategoryGroupResponse{Category: g.Category, Products: products}
	}
	return out
}
