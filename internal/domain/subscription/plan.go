package subscription

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/selkies/backend/internal/domain/catalog"
	"github.com/selkies/backend/internal/domain/delivery"
	"github.com/selkies/backend/internal/domain/pricing"
	"github.com/selkies/backend/internal/domain/selection"
	"github.com/selkies/backend/internal/domain/shared"
	"github.com/selkies/backend/internal/domain/shared/valueobject"
)

// Policy holds the business constants a plan is validated against
type Policy struct {
	ServiceablePostalCode string `json:"serviceable_postal_code"`
	LookaheadDays         int    `json:"lookahead_days"`
}

// DefaultPolicy returns the policy used when nothing is configured
func DefaultPolicy() Policy {
	return Policy{
		ServiceablePostalCode: "560001",
		LookaheadDays:         delivery.DefaultLookaheadDays,
	}
}

// Plan is a customer's subscription being configured.
// All changes go through its methods; a failed operation leaves the plan unchanged.
type Plan struct {
	ID         uuid.UUID                      `json:"id"`
	Policy     Policy                         `json:"policy"`
	Recurrence Recurrence                     `json:"recurrence,omitempty"`
	StartDate  time.Time                      `json:"start_date"`
	EndDate    time.Time                      `json:"end_date"`
	ValidDates map[delivery.Weekday]time.Time `json:"valid_dates,omitempty"`
	Selections selection.DaySelections        `json:"selections"`
	Address    valueobject.Address            `json:"address"`
	Total      *valueobject.Money             `json:"total,omitempty"`
	PaymentRef string                         `json:"payment_ref,omitempty"`
	OrderID    *uuid.UUID                     `json:"order_id,omitempty"`
	State      PlanState                      `json:"state"`

	// CheckoutAttempt counts successful ProceedToPayment calls; it keys payment creation
	CheckoutAttempt int `json:"checkout_attempt,omitempty"`
}

// NewPlan creates an unconfigured plan
func NewPlan(policy Policy) *Plan {
	if policy.LookaheadDays == 0 {
		policy.LookaheadDays = delivery.DefaultLookaheadDays
	}
	return &Plan{
		ID:         uuid.New(),
		Policy:     policy,
		Selections: selection.New(),
		State:      PlanStateUnconfigured,
	}
}

// ChooseRecurrence sets the cadence. Switching cadence discards the dates and
// selections made for the previous one; re-choosing the current cadence changes nothing.
func (p *Plan) ChooseRecurrence(mode Recurrence) error {
	if err := p.ensureOpen(); err != nil {
		return err
	}
	if !mode.IsValid() {
		return shared.NewDomainError(shared.ErrInvalidInput.Code,
			fmt.Sprintf("recurrence must be %q or %q", RecurrenceOneTime, RecurrenceRecurring))
	}
	if p.Recurrence == mode {
		return nil
	}
	if p.Recurrence != "" {
		p.StartDate = time.Time{}
		p.EndDate = time.Time{}
		p.ValidDates = nil
		p.Selections = selection.New()
	}
	p.Recurrence = mode
	p.recompute()
	return nil
}

// ChooseDates sets the start date and, for recurring plans, the end date.
// A nil end on a recurring plan uses the default end date. One-time plans take no end date.
// Selections are keyed by weekday and survive a date change.
func (p *Plan) ChooseDates(start time.Time, end *time.Time) error {
	if err := p.ensureOpen(); err != nil {
		return err
	}
	if !p.State.CanTransitionTo(PlanStateDatesChosen) {
		return shared.NewDomainError(shared.ErrInvalidState.Code, "Choose how often you want deliveries first")
	}
	start = delivery.Date(start)
	if err := delivery.ValidateStart(start); err != nil {
		return err
	}

	var endDate time.Time
	switch p.Recurrence {
	case RecurrenceOneTime:
		if end != nil {
			return shared.NewDomainError(shared.ErrInvalidInput.Code, "A one-time order has no end date")
		}
	case RecurrenceRecurring:
		if end == nil {
			d, err := delivery.DefaultEndDate(start)
			if err != nil {
				return err
			}
			endDate = d
		} else {
			endDate = delivery.Date(*end)
			if err := delivery.ValidateRange(start, endDate); err != nil {
				return err
			}
		}
	}

	valid, err := delivery.FirstOccurrencePerWeekday(start, p.Policy.LookaheadDays)
	if err != nil {
		return err
	}

	p.StartDate = start
	p.EndDate = endDate
	p.ValidDates = valid
	p.recompute()
	return nil
}

// SetEndDate changes the end date of a recurring plan, validated against the current start
func (p *Plan) SetEndDate(end time.Time) error {
	if err := p.ensureOpen(); err != nil {
		return err
	}
	if p.Recurrence != RecurrenceRecurring {
		return shared.NewDomainError(shared.ErrInvalidState.Code, "Only recurring plans have an end date")
	}
	if p.StartDate.IsZero() {
		return shared.NewDomainError(shared.ErrInvalidState.Code, "Choose a start date first")
	}
	end = delivery.Date(end)
	if err := delivery.ValidateRange(p.StartDate, end); err != nil {
		return err
	}
	p.EndDate = end
	p.recompute()
	return nil
}

// Increment adds one of product to day's basket
func (p *Plan) Increment(day delivery.Weekday, product catalog.Product) error {
	if err := p.ensureSelectable(day); err != nil {
		return err
	}
	p.Selections = p.Selections.Increment(day, product)
	p.recompute()
	return nil
}

// Decrement removes one of the product from day's basket
func (p *Plan) Decrement(day delivery.Weekday, productID uuid.UUID) error {
	if err := p.ensureSelectable(day); err != nil {
		return err
	}
	p.Selections = p.Selections.Decrement(day, productID)
	p.recompute()
	return nil
}

// CopyDay replaces to's basket with from's. Only recurring plans have more than one basket.
func (p *Plan) CopyDay(from, to delivery.Weekday) error {
	if p.Recurrence != RecurrenceRecurring {
		return shared.NewDomainError(shared.ErrInvalidState.Code, "Copying between days needs a recurring plan")
	}
	if err := p.ensureSelectable(from); err != nil {
		return err
	}
	if err := p.ensureSelectable(to); err != nil {
		return err
	}
	p.Selections = p.Selections.Copy(from, to)
	p.recompute()
	return nil
}

// EnterAddress sets the delivery address. The basket for the relevant day(s) must not
// be empty and the postal code must be the serviceable one.
func (p *Plan) EnterAddress(address valueobject.Address) error {
	if err := p.ensureOpen(); err != nil {
		return err
	}
	if !p.State.AtLeast(PlanStateDatesChosen) {
		return shared.NewDomainError(shared.ErrInvalidState.Code, "Choose your delivery dates first")
	}
	if p.RelevantItems() == 0 {
		return shared.ErrEmptySelection
	}
	if address.IsEmpty() {
		return shared.NewDomainError(shared.ErrInvalidInput.Code, "Delivery address is required")
	}
	if !address.InPostalCode(p.Policy.ServiceablePostalCode) {
		return shared.NewDomainError(shared.CodeUnserviceableAddress,
			fmt.Sprintf("We currently deliver only to postal code %s", p.Policy.ServiceablePostalCode))
	}
	p.Address = address
	p.recompute()
	return nil
}

// Quote prices the plan without changing it
func (p *Plan) Quote(engine *pricing.Engine) (pricing.Quote, error) {
	if !p.State.AtLeast(PlanStateDatesChosen) {
		return pricing.Quote{}, shared.NewDomainError(shared.ErrInvalidState.Code, "Choose your delivery dates first")
	}
	if p.Recurrence == RecurrenceOneTime {
		return engine.OneTimeQuote(p.startWeekday(), p.Selections), nil
	}
	return engine.RecurringQuote(p.StartDate, p.EndDate, p.Selections)
}

// ProceedToPayment computes the total and marks the plan ready for payment
func (p *Plan) ProceedToPayment(engine *pricing.Engine) (valueobject.Money, error) {
	if err := p.ensureOpen(); err != nil {
		return valueobject.Money{}, err
	}
	if p.RelevantItems() == 0 {
		return valueobject.Money{}, shared.ErrEmptySelection
	}
	if !p.State.CanTransitionTo(PlanStateReadyForPayment) {
		return valueobject.Money{}, shared.NewDomainError(shared.ErrInvalidState.Code, "Enter a delivery address first")
	}
	q, err := p.Quote(engine)
	if err != nil {
		return valueobject.Money{}, err
	}
	total := q.Total
	p.Total = &total
	p.PaymentRef = ""
	p.State = PlanStateReadyForPayment
	p.CheckoutAttempt++
	return total, nil
}

// AttachPayment records the payment created for the current total
func (p *Plan) AttachPayment(ref string) error {
	if err := p.ensureOpen(); err != nil {
		return err
	}
	if p.State != PlanStateReadyForPayment {
		return shared.NewDomainError(shared.ErrInvalidState.Code, "Plan is not ready for payment")
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return shared.NewDomainError(shared.ErrInvalidInput.Code, "Payment reference is required")
	}
	p.PaymentRef = ref
	return nil
}

// CompletePayment finalizes the plan after the payment collaborator reports success.
// The confirmation is stored on the order unmodified. A plan can be completed once.
func (p *Plan) CompletePayment(confirmation string, now time.Time) (*Order, error) {
	if err := p.ensureOpen(); err != nil {
		return nil, err
	}
	if p.State != PlanStateReadyForPayment || p.Total == nil {
		return nil, shared.NewDomainError(shared.ErrInvalidState.Code, "Plan is not ready for payment")
	}
	if confirmation == "" {
		return nil, shared.NewDomainError(shared.ErrInvalidInput.Code, "Payment confirmation is required")
	}
	order := newOrder(p, confirmation, now)
	p.OrderID = &order.ID
	return order, nil
}

// IsCompleted reports whether an order was created from this plan
func (p *Plan) IsCompleted() bool {
	return p.OrderID != nil
}

// RelevantItems counts items that will be delivered: the start day's basket for
// one-time plans, every basket for recurring ones.
func (p *Plan) RelevantItems() int {
	switch p.Recurrence {
	case RecurrenceOneTime:
		if p.StartDate.IsZero() {
			return 0
		}
		return p.Selections.ItemsOn(p.startWeekday())
	case RecurrenceRecurring:
		return p.Selections.TotalItemsAcrossDays()
	}
	return 0
}

// DeliveryDates lists every delivery the plan covers
func (p *Plan) DeliveryDates() ([]time.Time, error) {
	if p.StartDate.IsZero() {
		return nil, nil
	}
	if p.Recurrence == RecurrenceOneTime {
		return []time.Time{p.StartDate}, nil
	}
	return delivery.DeliveryDatesInRange(p.StartDate, p.EndDate)
}

func (p *Plan) startWeekday() delivery.Weekday {
	w, _ := delivery.WeekdayOf(p.StartDate)
	return w
}

func (p *Plan) ensureOpen() error {
	if p.IsCompleted() {
		return shared.NewDomainError(shared.ErrInvalidState.Code, "Plan has already been paid")
	}
	return nil
}

func (p *Plan) ensureSelectable(day delivery.Weekday) error {
	if err := p.ensureOpen(); err != nil {
		return err
	}
	if !day.IsValid() {
		return shared.NewDomainError(shared.ErrInvalidInput.Code, "Unknown delivery day")
	}
	if !p.State.AtLeast(PlanStateDatesChosen) {
		return shared.NewDomainError(shared.ErrInvalidState.Code, "Choose your delivery dates first")
	}
	if p.Recurrence == RecurrenceOneTime && day != p.startWeekday() {
		return shared.NewDomainError(shared.ErrInvalidInput.Code,
			fmt.Sprintf("A one-time order is delivered on %s only", p.startWeekday()))
	}
	return nil
}

// recompute moves the plan to the furthest state its data supports.
// Any edit invalidates a computed total and pending payment.
func (p *Plan) recompute() {
	p.Total = nil
	p.PaymentRef = ""

	state := PlanStateUnconfigured
	if p.Recurrence.IsValid() {
		state = PlanStateRecurrenceChosen
		if !p.StartDate.IsZero() && (p.Recurrence == RecurrenceOneTime || !p.EndDate.IsZero()) {
			state = PlanStateDatesChosen
			if p.RelevantItems() > 0 {
				state = PlanStateProductsSelected
				if !p.Address.IsEmpty() && p.Address.InPostalCode(p.Policy.ServiceablePostalCode) {
					state = PlanStateAddressEntered
				}
			}
		}
	}
	p.State = state
}
