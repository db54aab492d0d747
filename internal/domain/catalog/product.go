package catalog

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/selkies/backend/internal/domain/shared"
	"github.com/selkies/backend/internal/domain/shared/valueobject"
)

// DietType classifies a product for vegetarian customers
type DietType string

const (
	DietTypeVeg    DietType = "veg"
	DietTypeEgg    DietType = "egg"
	DietTypeNonVeg DietType = "non-veg"
)

// IsValid checks if the diet type is known. Empty means unspecified.
func (d DietType) IsValid() bool {
	switch d {
	case "", DietTypeVeg, DietTypeEgg, DietTypeNonVeg:
		return true
	}
	return false
}

// DefaultCategories are the catalog categories offered for subscription boxes
var DefaultCategories = []string{"Artisanal Breads", "Savouries"}

// Product is an item that can be selected for delivery.
// Products are plain values; selections hold their own copies.
type Product struct {
	ID          uuid.UUID         `json:"id"`
	Name        string            `json:"name"`
	Category    string            `json:"category"`
	Price       valueobject.Money `json:"price"`
	Description string            `json:"description,omitempty"`
	DietType    DietType          `json:"diet_type,omitempty"`
}

// ProductOption configures optional product fields
type ProductOption func(*Product)

// WithDescription sets the product description
func WithDescription(description string) ProductOption {
	return func(p *Product) {
		p.Description = strings.TrimSpace(description)
	}
}

// WithDietType sets the product diet type
func WithDietType(diet DietType) ProductOption {
	return func(p *Product) {
		p.DietType = diet
	}
}

// WithID sets an existing identifier instead of generating one
func WithID(id uuid.UUID) ProductOption {
	return func(p *Product) {
		p.ID = id
	}
}

// NewProduct creates a validated product
func NewProduct(name, category string, price valueobject.Money, opts ...ProductOption) (Product, error) {
	p := Product{
		ID:       uuid.New(),
		Name:     strings.TrimSpace(name),
		Category: strings.TrimSpace(category),
		Price:    price,
	}
	for _, opt := range opts {
		opt(&p)
	}
	if err := p.Validate(); err != nil {
		return Product{}, err
	}
	return p, nil
}

// Validate checks the product invariants
func (p Product) Validate() error {
	if p.ID == uuid.Nil {
		return shared.NewDomainError("INVALID_PRODUCT", "Product ID cannot be empty")
	}
	if p.Name == "" {
		return shared.NewDomainError("INVALID_PRODUCT_NAME", "Product name cannot be empty")
	}
	if len(p.Name) > 200 {
		return shared.NewDomainError("INVALID_PRODUCT_NAME", "Product name cannot exceed 200 characters")
	}
	if p.Category == "" {
		return shared.NewDomainError("INVALID_CATEGORY", "Product category cannot be empty")
	}
	if p.Price.Currency() == "" {
		return shared.NewDomainError("INVALID_PRICE", "Product price must have a currency")
	}
	if p.Price.IsNegative() {
		return shared.NewDomainError("INVALID_PRICE", "Product price cannot be negative")
	}
	if !p.DietType.IsValid() {
		return shared.NewDomainError("INVALID_DIET_TYPE", "Diet type must be veg, egg or non-veg")
	}
	return nil
}

// SortByName orders products by name, then ID for stability
func SortByName(products []Product) {
	sort.SliceStable(products, func(i, j int) bool {
		if products[i].Name != products[j].Name {
			return products[i].Name < products[j].Name
		}
		return products[i].ID.String() < products[j].ID.String()
	})
}

// CategoryGroup is a category with its products in name order
type CategoryGroup struct {
	Category string    `json:"category"`
	Products []Product `json:"products"`
}

// GroupByCategory groups products by category, keeping categories in order of first appearance
func GroupByCategory(products []Product) []CategoryGroup {
	groups := make([]CategoryGroup, 0)
	index := make(map[string]int)
	for _, p := range products {
		i, ok := index[p.Category]
		if !ok {
			i = len(groups)
			index[p.Category] = i
			groups = append(groups, CategoryGroup{Category: p.Category})
		}
		groups[i].Products = append(groups[i].Products, p)
	}
	return groups
}
