package subscription

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/selkies/backend/internal/domain/delivery"
	"github.com/selkies/backend/internal/domain/pricing"
	"github.com/selkies/backend/internal/domain/shared/valueobject"
	"github.com/selkies/backend/internal/domain/subscription"
)

// ChooseRecurrenceRequest selects the plan cadence
type ChooseRecurrenceRequest struct {
	Recurrence string `json:"recurrence" binding:"required"`
}

// ChooseDatesRequest sets the plan dates (YYYY-MM-DD)
type ChooseDatesRequest struct {
	StartDate string  `json:"start_date" binding:"required"`
	EndDate   *string `json:"end_date,omitempty"`
}

// SetEndDateRequest changes a recurring plan's end date
type SetEndDateRequest struct {
	EndDate string `json:"end_date" binding:"required"`
}

// CopyDayRequest copies one day's basket onto another
type CopyDayRequest struct {
	To string `json:"to" binding:"required"`
}

// AddressRequest is the delivery address
type AddressRequest struct {
	Recipient  string `json:"recipient" binding:"required,max=100"`
	Phone      string `json:"phone,omitempty" binding:"omitempty,max=20"`
	Line1      string `json:"line1" binding:"required,max=200"`
	Line2      string `json:"line2,omitempty" binding:"omitempty,max=200"`
	City       string `json:"city" binding:"required,max=100"`
	State      string `json:"state,omitempty" binding:"omitempty,max=100"`
	PostalCode string `json:"postal_code" binding:"required"`
}

// ToAddress builds the address value object
func (r AddressRequest) ToAddress() (valueobject.Address, error) {
	return valueobject.NewAddress(r.Recipient, r.Line1, r.City, r.PostalCode,
		valueobject.WithLine2(r.Line2), valueobject.WithState(r.State), valueobject.WithPhone(r.Phone))
}

// ConfirmPaymentRequest reports that the customer finished paying
type ConfirmPaymentRequest struct {
	PaymentID string `json:"payment_id" binding:"required"`
}

// ItemResponse is one product line of a day's basket
type ItemResponse struct {
	ProductID uuid.UUID       `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// DayResponse is the basket of one delivery weekday
type DayResponse struct {
	Weekday   string          `json:"weekday"`
	FirstDate *string         `json:"first_date,omitempty"`
	Items     []ItemResponse  `json:"items"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// AddressResponse represents the delivery address
type AddressResponse struct {
	Recipient  string `json:"recipient"`
	Phone      string `json:"phone,omitempty"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
}

// PlanResponse is the client view of a plan
type PlanResponse struct {
	ID               uuid.UUID        `json:"id"`
	State            string           `json:"state"`
	Recurrence       string           `json:"recurrence,omitempty"`
	StartDate        *string          `json:"start_date,omitempty"`
	EndDate          *string          `json:"end_date,omitempty"`
	Days             []DayResponse    `json:"days"`
	TotalItems       int              `json:"total_items"`
	Address          *AddressResponse `json:"address,omitempty"`
	Total            *decimal.Decimal `json:"total,omitempty"`
	Currency         string           `json:"currency"`
	PaymentID        string           `json:"payment_id,omitempty"`
	OrderID          *uuid.UUID       `json:"order_id,omitempty"`
	CatalogAvailable bool             `json:"catalog_available"`
	ExpiresAt        *time.Time       `json:"expires_at,omitempty"`
}

// QuoteLineResponse prices one weekday
type QuoteLineResponse struct {
	Weekday     string          `json:"weekday"`
	Items       int             `json:"items"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Occurrences int             `json:"occurrences"`
	Total       decimal.Decimal `json:"total"`
}

// QuoteResponse is the price breakdown of a plan
type QuoteResponse struct {
	Recurrence    string              `json:"recurrence"`
	DeliveryDates []string            `json:"delivery_dates"`
	Lines         []QuoteLineResponse `json:"lines"`
	Total         decimal.Decimal     `json:"total"`
	TotalMinor    int64               `json:"total_minor"`
	Currency      string              `json:"currency"`
	Formatted     string              `json:"formatted"`
}

// CheckoutResponse carries what the client needs to complete payment
type CheckoutResponse struct {
	PaymentID    string          `json:"payment_id"`
	ClientSecret string          `json:"client_secret,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	AmountMinor  int64           `json:"amount_minor"`
	Currency     string          `json:"currency"`
	Description  string          `json:"description"`
}

// PaymentOutcomeResponse is the result of confirming a payment
type PaymentOutcomeResponse struct {
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Order   *OrderResponse `json:"order,omitempty"`
}

// OrderResponse represents a finalized order
type OrderResponse struct {
	ID               uuid.UUID       `json:"id"`
	PlanID           uuid.UUID       `json:"plan_id"`
	Recurrence       string          `json:"recurrence"`
	StartDate        string          `json:"start_date"`
	EndDate          *string         `json:"end_date,omitempty"`
	Total            decimal.Decimal `json:"total"`
	Currency         string          `json:"currency"`
	PaymentReference string          `json:"payment_reference"`
	CreatedAt        time.Time       `json:"created_at"`
}

// StartDatesResponse lists selectable start dates
type StartDatesResponse struct {
	Today string   `json:"today"`
	Dates []string `json:"dates"`
}

// DateCheckResponse describes a candidate date
type DateCheckResponse struct {
	Date           string            `json:"date"`
	Weekday        string            `json:"weekday"`
	IsDeliveryDay  bool              `json:"is_delivery_day"`
	DefaultEndDate *string           `json:"default_end_date,omitempty"`
	NextDeliveries map[string]string `json:"next_deliveries,omitempty"`
}

// ToPlanResponse converts a session to its client view
func ToPlanResponse(s *subscription.Session, currency valueobject.Currency, expiresAt *time.Time) *PlanResponse {
	p := s.Plan
	resp := &PlanResponse{
		ID:               p.ID,
		State:            p.State.String(),
		Recurrence:       p.Recurrence.String(),
		Days:             make([]DayResponse, 0, delivery.WeekdayCount),
		TotalItems:       p.Selections.TotalItemsAcrossDays(),
		Currency:         string(currency),
		PaymentID:        p.PaymentRef,
		OrderID:          p.OrderID,
		CatalogAvailable: !s.Degraded,
		ExpiresAt:        expiresAt,
	}
	if !p.StartDate.IsZero() {
		resp.StartDate = formatDate(p.StartDate)
	}
	if !p.EndDate.IsZero() {
		resp.EndDate = formatDate(p.EndDate)
	}
	engine := pricing.NewEngine(currency)
	for _, w := range delivery.Weekdays {
		day := DayResponse{
			Weekday:  w.String(),
			Items:    make([]ItemResponse, 0),
			Subtotal: engine.DaySubtotal(w, p.Selections).Amount(),
		}
		if d, ok := p.ValidDates[w]; ok {
			day.FirstDate = formatDate(d)
		}
		for _, e := range p.Selections.Entries(w) {
			day.Items = append(day.Items, ItemResponse{
				ProductID: e.Product.ID,
				Name:      e.Product.Name,
				Quantity:  e.Quantity,
				UnitPrice: e.Product.Price.Amount(),
				LineTotal: e.LineTotal().Amount(),
			})
		}
		resp.Days = append(resp.Days, day)
	}
	if !p.Address.IsEmpty() {
		resp.Address = &AddressResponse{
			Recipient:  p.Address.Recipient(),
			Phone:      p.Address.Phone(),
			Line1:      p.Address.Line1(),
			Line2:      p.Address.Line2(),
			City:       p.Address.City(),
			State:      p.Address.State(),
			PostalCode: p.Address.PostalCode(),
		}
	}
	if p.Total != nil {
		total := p.Total.Amount()
		resp.Total = &total
	}
	return resp
}

// ToQuoteResponse converts a price quote
func ToQuoteResponse(p *subscription.Plan, q pricing.Quote, dates []time.Time, formatted string) *QuoteResponse {
	resp := &QuoteResponse{
		Recurrence:    p.Recurrence.String(),
		DeliveryDates: make([]string, len(dates)),
		Lines:         make([]QuoteLineResponse, len(q.Lines)),
		Total:         q.Total.Amount(),
		TotalMinor:    q.Total.MinorUnits(),
		Currency:      string(q.Total.Currency()),
		Formatted:     formatted,
	}
	for i, d := range dates {
		resp.DeliveryDates[i] = delivery.FormatDate(d)
	}
	for i, l := range q.Lines {
		resp.Lines[i] = QuoteLineResponse{
			Weekday:     l.Weekday.String(),
			Items:       l.Items,
			Subtotal:    l.Subtotal.Amount(),
			Occurrences: l.Occurrences,
			Total:       l.Total.Amount(),
		}
	}
	return resp
}

// ToOrderResponse converts a domain Order
func ToOrderResponse(o *subscription.Order) *OrderResponse {
	resp := &OrderResponse{
		ID:               o.ID,
		PlanID:           o.PlanID,
		Recurrence:       o.Recurrence.String(),
		StartDate:        delivery.FormatDate(o.StartDate),
		Total:            o.Total.Amount(),
		Currency:         string(o.Total.Currency()),
		PaymentReference: o.PaymentReference,
		CreatedAt:        o.CreatedAt,
	}
	if o.EndDate != nil {
		resp.EndDate = formatDate(*o.EndDate)
	}
	return resp
}

func formatDate(t time.Time) *string {
	s := delivery.FormatDate(t)
	return &s
}
