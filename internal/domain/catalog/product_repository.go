package catalog

import (
	"context"

	"github.com/google/uuid"
)

// ProductReader is the read-only catalog query used while building a subscription
type ProductReader interface {
	// FindByCategories returns all products in the given categories, sorted by name
	FindByCategories(ctx context.Context, categories []string) ([]Product, error)
}

// ProductRepository defines the interface for product persistence
type ProductRepository interface {
	ProductReader

	// FindByID finds a product by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*Product, error)

	// Save creates or updates a product
	Save(ctx context.Context, product *Product) error

	// Delete deletes a product
	Delete(ctx context.Context, id uuid.UUID) error
}
