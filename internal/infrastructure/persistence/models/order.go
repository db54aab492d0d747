package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/selkies/backend/internal/domain/selection"
	"github.com/selkies/backend/internal/domain/shared/valueobject"
	"github.com/selkies/backend/internal/domain/subscription"
)

// OrderModel is the persistence model for a finalized subscription order.
// plan_id and payment_reference are unique so a plan is ordered at most once.
type OrderModel struct {
	BaseModel
	PlanID           uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex:idx_orders_plan_id"`
	Recurrence       string              `gorm:"type:varchar(20);not null"`
	StartDate        time.Time           `gorm:"type:date;not null"`
	EndDate          *time.Time          `gorm:"type:date"`
	Selections       string              `gorm:"type:jsonb;not null"`
	Address          valueobject.Address `gorm:"type:jsonb;not null"`
	TotalAmount      decimal.Decimal     `gorm:"type:decimal(12,2);not null"`
	Currency         string              `gorm:"type:char(3);not null"`
	PaymentReference string              `gorm:"type:varchar(255);not null;uniqueIndex:idx_orders_payment_reference"`
}

// TableName returns the table name for GORM
func (OrderModel) TableName() string {
	return "orders"
}

// ToDomain converts the persistence model to a domain Order
func (m *OrderModel) ToDomain() (*subscription.Order, error) {
	var sel selection.DaySelections
	if err := json.Unmarshal([]byte(m.Selections), &sel); err != nil {
		return nil, fmt.Errorf("order %s: invalid selections: %w", m.ID, err)
	}
	total, err := valueobject.NewMoney(m.TotalAmount, valueobject.Currency(m.Currency))
	if err != nil {
		return nil, fmt.Errorf("order %s: %w", m.ID, err)
	}
	o := &subscription.Order{
		ID:               m.ID,
		PlanID:           m.PlanID,
		Recurrence:       subscription.Recurrence(m.Recurrence),
		StartDate:        civil(m.StartDate),
		Selections:       sel,
		Address:          m.Address,
		Total:            total,
		PaymentReference: m.PaymentReference,
		CreatedAt:        m.CreatedAt,
	}
	if m.EndDate != nil {
		end := civil(*m.EndDate)
		o.EndDate = &end
	}
	return o, nil
}

// FromDomain populates the persistence model from a domain Order
func (m *OrderModel) FromDomain(o *subscription.Order) error {
	sel, err := json.Marshal(o.Selections)
	if err != nil {
		return fmt.Errorf("order %s: encode selections: %w", o.ID, err)
	}
	m.ID = o.ID
	m.CreatedAt = o.CreatedAt
	m.UpdatedAt = o.CreatedAt
	m.PlanID = o.PlanID
	m.Recurrence = o.Recurrence.String()
	m.StartDate = o.StartDate
	m.EndDate = o.EndDate
	m.Selections = string(sel)
	m.Address = o.Address
	m.TotalAmount = o.Total.Amount()
	m.Currency = string(o.Total.Currency())
	m.PaymentReference = o.PaymentReference
	return nil
}

// civil normalizes a date column read back from the driver to midnight UTC
func civil(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}
