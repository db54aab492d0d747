package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/selkies/backend/internal/domain/delivery"
	"github.com/selkies/backend/internal/domain/selection"
	"github.com/selkies/backend/internal/domain/shared/valueobject"
)

// Order is the finalized record of a paid plan
type Order struct {
	ID               uuid.UUID               `json:"id"`
	PlanID           uuid.UUID               `json:"plan_id"`
	Recurrence       Recurrence              `json:"recurrence"`
	StartDate        time.Time               `json:"start_date"`
	EndDate          *time.Time              `json:"end_date,omitempty"`
	Selections       selection.DaySelections `json:"selections"`
	Address          valueobject.Address     `json:"address"`
	Total            valueobject.Money       `json:"total"`
	PaymentReference string                  `json:"payment_reference"`
	CreatedAt        time.Time               `json:"created_at"`
}

// newOrder snapshots the plan. A one-time order keeps only the start day's basket,
// the one that was billed.
func newOrder(p *Plan, confirmation string, now time.Time) *Order {
	o := &Order{
		ID:               uuid.New(),
		PlanID:           p.ID,
		Recurrence:       p.Recurrence,
		StartDate:        p.StartDate,
		Selections:       p.Selections,
		Address:          p.Address,
		Total:            *p.Total,
		PaymentReference: confirmation,
		CreatedAt:        now.UTC(),
	}
	switch p.Recurrence {
	case RecurrenceRecurring:
		end := p.EndDate
		o.EndDate = &end
	case RecurrenceOneTime:
		billed := p.startWeekday()
		for _, w := range delivery.Weekdays {
			if w != billed {
				o.Selections = o.Selections.Clear(w)
			}
		}
	}
	return o
}

// OrderRepository persists finalized orders
type OrderRepository interface {
	// Save stores a new order. Saving a second order with the same payment reference
	// fails with shared.ErrAlreadyExists.
	Save(ctx context.Context, order *Order) error

	// FindByID finds an order by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*Order, error)

	// FindByPaymentReference finds the order created for a payment
	FindByPaymentReference(ctx context.Context, ref string) (*Order, error)

	// FindByPlanID finds the order created from a plan
	FindByPlanID(ctx context.Context, planID uuid.UUID) (*Order, error)
}

// OrderArchive keeps a durable copy of finalized orders outside the database
type OrderArchive interface {
	Archive(ctx context.Context, order *Order) error
}
