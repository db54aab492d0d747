package models

import (
	"github.com/shopspring/decimal"

	"github.com/selkies/backend/internal/domain/catalog"
	"github.com/selkies/backend/internal/domain/shared/valueobject"
)

// ProductModel is the persistence model for the catalog Product
type ProductModel struct {
	BaseModel
	Name        string          `gorm:"type:varchar(200);not null"`
	Category    string          `gorm:"type:varchar(100);not null;index"`
	Price       decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Currency    string          `gorm:"type:char(3);not null;default:'INR'"`
	Description string          `gorm:"type:text"`
	DietType    string          `gorm:"type:varchar(10)"`
}

// TableName returns the table name for GORM
func (ProductModel) TableName() string {
	return "products"
}

// ToDomain converts the persistence model to a validated catalog Product
func (m *ProductModel) ToDomain() (catalog.Product, error) {
	price, err := valueobject.NewMoney(m.Price, valueobject.Currency(m.Currency))
	if err != nil {
		return catalog.Product{}, err
	}
	return catalog.NewProduct(m.Name, m.Category, price,
		catalog.WithID(m.ID),
		catalog.WithDescription(m.Description),
		catalog.WithDietType(catalog.DietType(m.DietType)),
	)
}

// FromDomain populates the persistence model from a catalog Product
func (m *ProductModel) FromDomain(p *catalog.Product) {
	m.ID = p.ID
	m.Name = p.Name
	m.Category = p.Category
	m.Price = p.Price.Amount()
	m.Currency = string(p.Price.Currency())
	m.Description = p.Description
	m.DietType = string(p.DietType)
}
