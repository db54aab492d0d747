package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/selkies/backend/internal/domain/delivery"
	"github.com/selkies/backend/internal/domain/pricing"
	"github.com/selkies/backend/internal/domain/shared"
	"github.com/selkies/backend/internal/domain/shared/valueobject"
	"github.com/selkies/backend/internal/domain/subscription"
	"github.com/selkies/backend/internal/infrastructure/telemetry"
)

// DefaultStartDateHorizon is the number of days offered as candidate start dates
const DefaultStartDateHorizon = 30

// Service orchestrates plan sessions: catalog snapshot, plan edits, pricing and payment.
type Service struct {
	sessions subscription.SessionStore
	catalog  CatalogProvider
	orders   subscription.OrderRepository
	gateway  subscription.PaymentGateway
	archive  subscription.OrderArchive
	metrics  Metrics
	calendar *delivery.Calendar
	engine   *pricing.Engine
	policy   subscription.Policy
	horizon  int
	lang     language.Tag
	ttl      time.Duration
	logger   *zap.Logger
}

// Option configures the Service
type Option func(*Service)

// WithGateway sets the payment gateway
func WithGateway(gateway subscription.PaymentGateway) Option {
	return func(s *Service) {
		s.gateway = gateway
	}
}

// WithArchive sets the order archive
func WithArchive(archive subscription.OrderArchive) Option {
	return func(s *Service) {
		s.archive = archive
	}
}

// WithMetrics sets the business metrics recorder
func WithMetrics(metrics Metrics) Option {
	return func(s *Service) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// WithCalendar sets the delivery calendar (clock and timezone)
func WithCalendar(calendar *delivery.Calendar) Option {
	return func(s *Service) {
		if calendar != nil {
			s.calendar = calendar
		}
	}
}

// WithPolicy overrides the serviceable area and lookahead
func WithPolicy(policy subscription.Policy) Option {
	return func(s *Service) {
		s.policy = policy
	}
}

// WithCurrency sets the plan currency
func WithCurrency(currency valueobject.Currency) Option {
	return func(s *Service) {
		s.engine = pricing.NewEngine(currency)
	}
}

// WithStartDateHorizon sets how many days of start dates are offered by default
func WithStartDateHorizon(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.horizon = days
		}
	}
}

// WithLanguage sets the language used for customer-facing amounts
func WithLanguage(tag language.Tag) Option {
	return func(s *Service) {
		s.lang = tag
	}
}

// WithSessionTTL reports the session lifetime in plan responses
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.ttl = ttl
	}
}

// NewService creates a new Service
func NewService(
	sessions subscription.SessionStore,
	catalog CatalogProvider,
	orders subscription.OrderRepository,
	logger *zap.Logger,
	opts ...Option,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		sessions: sessions,
		catalog:  catalog,
		orders:   orders,
		metrics:  noopMetrics{},
		calendar: delivery.NewCalendar(),
		engine:   pricing.NewEngine(valueobject.DefaultCurrency),
		policy:   subscription.DefaultPolicy(),
		horizon:  DefaultStartDateHorizon,
		lang:     language.English,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartSession creates a plan session with a frozen catalog snapshot.
// A catalog outage does not fail the session; it starts degraded with an empty catalog.
func (s *Service) StartSession(ctx context.Context) (*PlanResponse, error) {
	snapshot, err := s.catalog.Snapshot(ctx)
	degraded := err != nil
	if degraded {
		s.logger.Warn("Starting plan session without catalog", zap.Error(err))
	}

	session := subscription.NewSession(s.policy, snapshot, degraded, s.calendar.Now())
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create plan session: %w", err)
	}
	s.metrics.SessionStarted(ctx, degraded)

	s.logger.Info("Plan session started",
		zap.String("session_id", session.ID.String()),
		zap.Int("products", session.Catalog.Len()),
		zap.Bool("degraded", degraded))
	return s.toPlanResponse(session), nil
}

// GetPlan returns the current view of a session's plan
func (s *Service) GetPlan(ctx context.Context, sessionID uuid.UUID) (*PlanResponse, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.toPlanResponse(session), nil
}

// AbandonSession discards a session and its plan
func (s *Service) AbandonSession(ctx context.Context, sessionID uuid.UUID) error {
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return err
	}
	s.logger.Info("Plan session abandoned", zap.String("session_id", sessionID.String()))
	return nil
}

// ChooseRecurrence sets the plan cadence
func (s *Service) ChooseRecurrence(ctx context.Context, sessionID uuid.UUID, req ChooseRecurrenceRequest) (*PlanResponse, error) {
	mode, err := subscription.ParseRecurrence(req.Recurrence)
	if err != nil {
		return nil, invalidInput(err)
	}
	return s.update(ctx, sessionID, func(p *subscription.Plan) error {
		return p.ChooseRecurrence(mode)
	})
}

// ChooseDates sets the start date and optional end date. Start dates in the past are rejected.
func (s *Service) ChooseDates(ctx context.Context, sessionID uuid.UUID, req ChooseDatesRequest) (*PlanResponse, error) {
	start, err := delivery.ParseDate(req.StartDate)
	if err != nil {
		return nil, err
	}
	if start.Before(s.calendar.Today()) {
		return nil, shared.NewDomainError(shared.CodeInvalidDeliveryDate,
			fmt.Sprintf("%s is in the past", delivery.FormatDate(start)))
	}
	var end *time.Time
	if req.EndDate != nil && *req.EndDate != "" {
		d, err := delivery.ParseDate(*req.EndDate)
		if err != nil {
			return nil, err
		}
		end = &d
	}
	return s.update(ctx, sessionID, func(p *subscription.Plan) error {
		return p.ChooseDates(start, end)
	})
}

// SetEndDate changes a recurring plan's end date
func (s *Service) SetEndDate(ctx context.Context, sessionID uuid.UUID, req SetEndDateRequest) (*PlanResponse, error) {
	end, err := delivery.ParseDate(req.EndDate)
	if err != nil {
		return nil, err
	}
	return s.update(ctx, sessionID, func(p *subscription.Plan) error {
		return p.SetEndDate(end)
	})
}

// Increment adds one unit of a catalog product to a day's basket.
// Only products in the session's catalog snapshot can be selected.
func (s *Service) Increment(ctx context.Context, sessionID uuid.UUID, day string, productID uuid.UUID) (*PlanResponse, error) {
	weekday, err := delivery.ParseWeekday(day)
	if err != nil {
		return nil, invalidInput(err)
	}
	return s.updateSession(ctx, sessionID, func(session *subscription.Session) error {
		product, ok := session.Catalog.Lookup(productID)
		if !ok {
			return shared.NewDomainError(shared.ErrNotFound.Code, "Product is not in the catalog")
		}
		return session.Plan.Increment(weekday, product)
	})
}

// Decrement removes one unit of a product from a day's basket
func (s *Service) Decrement(ctx context.Context, sessionID uuid.UUID, day string, productID uuid.UUID) (*PlanResponse, error) {
	weekday, err := delivery.ParseWeekday(day)
	if err != nil {
		return nil, invalidInput(err)
	}
	return s.update(ctx, sessionID, func(p *subscription.Plan) error {
		return p.Decrement(weekday, productID)
	})
}

// CopyDay replaces one day's basket with another's
func (s *Service) CopyDay(ctx context.Context, sessionID uuid.UUID, day string, req CopyDayRequest) (*PlanResponse, error) {
	from, err := delivery.ParseWeekday(day)
	if err != nil {
		return nil, invalidInput(err)
	}
	to, err := delivery.ParseWeekday(req.To)
	if err != nil {
		return nil, invalidInput(err)
	}
	return s.update(ctx, sessionID, func(p *subscription.Plan) error {
		return p.CopyDay(from, to)
	})
}

// EnterAddress sets the delivery address
func (s *Service) EnterAddress(ctx context.Context, sessionID uuid.UUID, req AddressRequest) (*PlanResponse, error) {
	address, err := req.ToAddress()
	if err != nil {
		return nil, err
	}
	return s.update(ctx, sessionID, func(p *subscription.Plan) error {
		return p.EnterAddress(address)
	})
}

// Quote prices the plan without changing it
func (s *Service) Quote(ctx context.Context, sessionID uuid.UUID) (*QuoteResponse, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	plan := session.Plan
	q, err := plan.Quote(s.engine)
	if err != nil {
		return nil, err
	}
	dates, err := plan.DeliveryDates()
	if err != nil {
		return nil, err
	}
	return ToQuoteResponse(plan, q, dates, FormatMoney(q.Total, s.lang)), nil
}

// Checkout computes the final total and creates a payment for it.
// A gateway failure leaves the plan ready for payment so the customer can retry.
func (s *Service) Checkout(ctx context.Context, sessionID uuid.UUID) (_ *CheckoutResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "plan", "checkout",
		telemetry.WithAttribute(telemetry.SpanAttrSessionID, sessionID.String()))
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	if s.gateway == nil {
		return nil, shared.NewDomainError(shared.CodePaymentFailed, "Payments are not available right now")
	}

	var total valueobject.Money
	session, err := s.sessions.Update(ctx, sessionID, func(session *subscription.Session) error {
		t, err := session.Plan.ProceedToPayment(s.engine)
		if err != nil {
			return err
		}
		total = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	plan := session.Plan

	req := &subscription.CreatePaymentRequest{
		PlanID:         plan.ID,
		AmountMinor:    total.MinorUnits(),
		Currency:       total.Currency(),
		Description:    s.describe(plan, total),
		IdempotencyKey: fmt.Sprintf("%s-%d-%d", plan.ID, plan.CheckoutAttempt, total.MinorUnits()),
	}
	if err := req.Validate(); err != nil {
		return nil, shared.NewDomainError(shared.ErrInvalidState.Code, "Plan total must be greater than zero")
	}
	telemetry.SetAttributes(span,
		telemetry.SpanAttrPlanID, plan.ID.String(),
		telemetry.SpanAttrRecurrence, plan.Recurrence.String(),
		telemetry.SpanAttrAmountMinor, req.AmountMinor)
	s.metrics.CheckoutStarted(ctx, plan.Recurrence.String(), req.AmountMinor)

	payment, err := s.gateway.CreatePayment(ctx, req)
	if err != nil {
		s.logger.Error("Failed to create payment",
			zap.String("session_id", sessionID.String()),
			zap.Int64("amount_minor", req.AmountMinor),
			zap.Error(err))
		s.metrics.PaymentFailed(ctx, "create")
		return nil, shared.NewDomainError(shared.CodePaymentFailed, "Could not start the payment, please try again")
	}

	_, err = s.sessions.Update(ctx, sessionID, func(session *subscription.Session) error {
		p := session.Plan
		if p.State != subscription.PlanStateReadyForPayment || p.Total == nil || !p.Total.Equals(total) {
			return shared.NewDomainError(shared.ErrInvalidState.Code, "Plan changed during checkout, please review it")
		}
		return p.AttachPayment(payment.PaymentID)
	})
	if err != nil {
		if cancelErr := s.gateway.CancelPayment(ctx, payment.PaymentID); cancelErr != nil {
			s.logger.Warn("Failed to cancel orphaned payment",
				zap.String("payment_id", payment.PaymentID),
				zap.Error(cancelErr))
		}
		return nil, err
	}

	s.logger.Info("Checkout started",
		zap.String("session_id", sessionID.String()),
		zap.String("payment_id", payment.PaymentID),
		zap.String("total", total.String()))

	return &CheckoutResponse{
		PaymentID:    payment.PaymentID,
		ClientSecret: payment.ClientSecret,
		Amount:       total.Amount(),
		AmountMinor:  req.AmountMinor,
		Currency:     string(total.Currency()),
		Description:  req.Description,
	}, nil
}

// ConfirmPayment verifies the payment with the gateway and, on success, finalizes the
// plan into an order. An order is saved at most once per plan; repeated confirmations
// return the existing order. A cancelled or pending payment leaves the plan unchanged.
func (s *Service) ConfirmPayment(ctx context.Context, sessionID uuid.UUID, req ConfirmPaymentRequest) (_ *PaymentOutcomeResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "plan", "confirm_payment",
		telemetry.WithAttribute(telemetry.SpanAttrSessionID, sessionID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrPaymentID, req.PaymentID))
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	if s.gateway == nil {
		return nil, shared.NewDomainError(shared.CodePaymentFailed, "Payments are not available right now")
	}
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	plan := session.Plan

	if plan.IsCompleted() {
		order, err := s.orders.FindByPlanID(ctx, plan.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load order for plan %s: %w", plan.ID, err)
		}
		return completedOutcome(order), nil
	}
	if plan.State != subscription.PlanStateReadyForPayment || plan.Total == nil {
		return nil, shared.NewDomainError(shared.ErrInvalidState.Code, "Plan is not ready for payment")
	}
	if plan.PaymentRef == "" || plan.PaymentRef != req.PaymentID {
		return nil, shared.NewDomainError(shared.ErrInvalidInput.Code, "Payment does not belong to this plan")
	}

	result, err := s.gateway.QueryPayment(ctx, req.PaymentID)
	if err != nil {
		s.logger.Error("Failed to verify payment",
			zap.String("payment_id", req.PaymentID),
			zap.Error(err))
		s.metrics.PaymentFailed(ctx, "verify")
		return nil, shared.NewDomainError(shared.CodePaymentFailed, "Could not verify the payment, please try again")
	}

	switch result.Status {
	case subscription.PaymentStatusCanceled:
		s.logger.Info("Payment cancelled", zap.String("payment_id", req.PaymentID))
		return &PaymentOutcomeResponse{
			Status:  result.Status.String(),
			Message: "Payment was cancelled. Your plan is saved and ready whenever you are.",
		}, nil
	case subscription.PaymentStatusPending:
		return &PaymentOutcomeResponse{
			Status:  result.Status.String(),
			Message: "Payment is still being processed",
		}, nil
	case subscription.PaymentStatusFailed:
		s.metrics.PaymentFailed(ctx, "declined")
		msg := "Payment was declined"
		if result.FailureMessage != "" {
			msg = result.FailureMessage
		}
		return nil, shared.NewDomainError(shared.CodePaymentFailed, msg)
	case subscription.PaymentStatusSucceeded:
	default:
		return nil, shared.NewDomainError(shared.CodePaymentFailed, "Unknown payment status")
	}

	if result.AmountMinor != plan.Total.MinorUnits() || result.Currency != plan.Total.Currency() {
		s.logger.Error("Payment amount does not match plan total",
			zap.String("payment_id", req.PaymentID),
			zap.Int64("paid_minor", result.AmountMinor),
			zap.Int64("expected_minor", plan.Total.MinorUnits()))
		s.metrics.PaymentFailed(ctx, "amount_mismatch")
		return nil, shared.NewDomainError(shared.CodePaymentFailed, "Payment amount does not match the plan total")
	}

	confirmation := result.Confirmation
	if confirmation == "" {
		confirmation = result.PaymentID
	}
	order, err := s.finalize(ctx, session, confirmation)
	if err != nil {
		return nil, err
	}
	return completedOutcome(order), nil
}

// HandlePaymentEvent applies a provider notification. A successful payment finalizes the
// plan it was created for even when the browser never called ConfirmPayment. Events for
// payments that already produced an order are ignored.
func (s *Service) HandlePaymentEvent(ctx context.Context, event subscription.PaymentEvent) (err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "plan", "payment_event",
		telemetry.WithAttribute(telemetry.SpanAttrPaymentID, event.PaymentID),
		telemetry.WithAttribute(telemetry.SpanAttrPlanID, event.PlanID.String()))
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	log := s.logger.With(
		zap.String("event_id", event.ID),
		zap.String("payment_id", event.PaymentID),
		zap.String("plan_id", event.PlanID.String()))

	switch event.Status {
	case subscription.PaymentStatusSucceeded:
	case subscription.PaymentStatusFailed:
		log.Warn("Payment failed")
		return nil
	case subscription.PaymentStatusCanceled:
		log.Info("Payment cancelled")
		return nil
	default:
		return nil
	}

	if event.PlanID == uuid.Nil {
		log.Warn("Successful payment carries no plan, ignoring")
		return nil
	}
	if _, err := s.orders.FindByPaymentReference(ctx, event.PaymentID); err == nil {
		log.Debug("Payment already finalized")
		return nil
	} else if !errors.Is(err, shared.ErrNotFound) {
		return fmt.Errorf("failed to look up order for payment %s: %w", event.PaymentID, err)
	}

	_, err = s.ConfirmPayment(ctx, event.PlanID, ConfirmPaymentRequest{PaymentID: event.PaymentID})
	if errors.Is(err, shared.ErrSessionExpired) {
		// Money was taken but the plan is gone; an operator has to refund or rebuild it
		log.Error("Payment succeeded after the plan session expired")
		s.metrics.PaymentFailed(ctx, "session_expired")
		return nil
	}
	return err
}

// finalize saves the order built from a verified payment and marks the plan completed.
// The order store rejects a second order for the same payment, which makes this safe to
// repeat after a partial failure.
func (s *Service) finalize(ctx context.Context, session *subscription.Session, confirmation string) (*subscription.Order, error) {
	plan := *session.Plan
	order, err := plan.CompletePayment(confirmation, s.calendar.Now())
	if err != nil {
		return nil, err
	}

	created := true
	if err := s.orders.Save(ctx, order); err != nil {
		if !errors.Is(err, shared.ErrAlreadyExists) {
			return nil, fmt.Errorf("failed to save order: %w", err)
		}
		existing, findErr := s.orders.FindByPlanID(ctx, plan.ID)
		if findErr != nil {
			return nil, fmt.Errorf("failed to load existing order: %w", findErr)
		}
		order = existing
		created = false
	}

	orderID := order.ID
	_, err = s.sessions.Update(ctx, session.ID, func(current *subscription.Session) error {
		if current.Plan.IsCompleted() {
			return nil
		}
		current.Plan.OrderID = &orderID
		return nil
	})
	if err != nil {
		s.logger.Error("Order saved but session update failed",
			zap.String("session_id", session.ID.String()),
			zap.String("order_id", orderID.String()),
			zap.Error(err))
	}

	if !created {
		return order, nil
	}

	if s.archive != nil {
		if err := s.archive.Archive(ctx, order); err != nil {
			s.logger.Warn("Failed to archive order", zap.String("order_id", order.ID.String()), zap.Error(err))
		}
	}
	telemetry.AddEvent(telemetry.SpanFromContext(ctx), "order_created", telemetry.SpanAttrOrderID, order.ID.String())
	s.metrics.OrderCompleted(ctx, order.Recurrence.String(), order.Total.MinorUnits())
	s.logger.Info("Order created",
		zap.String("order_id", order.ID.String()),
		zap.String("plan_id", order.PlanID.String()),
		zap.String("recurrence", order.Recurrence.String()),
		zap.String("total", order.Total.String()))
	return order, nil
}

// CandidateStartDates lists the delivery days a plan may start on
func (s *Service) CandidateStartDates(horizon int) (*StartDatesResponse, error) {
	if horizon == 0 {
		horizon = s.horizon
	}
	dates, err := s.calendar.CandidateStartDates(horizon)
	if err != nil {
		return nil, err
	}
	resp := &StartDatesResponse{
		Today: delivery.FormatDate(s.calendar.Today()),
		Dates: make([]string, len(dates)),
	}
	for i, d := range dates {
		resp.Dates[i] = delivery.FormatDate(d)
	}
	return resp, nil
}

// CheckDeliveryDate describes a date: whether deliveries happen on it, and for a
// delivery day the default end date and first delivery per weekday from it.
func (s *Service) CheckDeliveryDate(date string) (*DateCheckResponse, error) {
	d, err := delivery.ParseDate(date)
	if err != nil {
		return nil, err
	}
	resp := &DateCheckResponse{
		Date:          delivery.FormatDate(d),
		Weekday:       d.Weekday().String(),
		IsDeliveryDay: delivery.IsDeliveryDay(d),
	}
	if !resp.IsDeliveryDay {
		return resp, nil
	}
	end, err := delivery.DefaultEndDate(d)
	if err != nil {
		return nil, err
	}
	resp.DefaultEndDate = formatDate(end)
	next, err := delivery.FirstOccurrencePerWeekday(d, s.policy.LookaheadDays)
	if err != nil {
		return nil, err
	}
	resp.NextDeliveries = make(map[string]string, len(next))
	for w, nd := range next {
		resp.NextDeliveries[w.String()] = delivery.FormatDate(nd)
	}
	return resp, nil
}

func (s *Service) update(ctx context.Context, sessionID uuid.UUID, fn func(*subscription.Plan) error) (*PlanResponse, error) {
	return s.updateSession(ctx, sessionID, func(session *subscription.Session) error {
		return fn(session.Plan)
	})
}

// updateSession applies fn to a copy of the plan so that a failed operation leaves the
// stored plan untouched.
func (s *Service) updateSession(ctx context.Context, sessionID uuid.UUID, fn func(*subscription.Session) error) (*PlanResponse, error) {
	session, err := s.sessions.Update(ctx, sessionID, func(session *subscription.Session) error {
		working := *session.Plan
		scratch := *session
		scratch.Plan = &working
		if err := fn(&scratch); err != nil {
			return err
		}
		session.Plan = &working
		session.UpdatedAt = s.calendar.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.toPlanResponse(session), nil
}

func (s *Service) toPlanResponse(session *subscription.Session) *PlanResponse {
	var expiresAt *time.Time
	if s.ttl > 0 {
		t := session.UpdatedAt.Add(s.ttl)
		expiresAt = &t
	}
	return ToPlanResponse(session, s.engine.Currency(), expiresAt)
}

func (s *Service) describe(plan *subscription.Plan, total valueobject.Money) string {
	amount := FormatMoney(total, s.lang)
	if plan.Recurrence == subscription.RecurrenceOneTime {
		return fmt.Sprintf("One-time bakery delivery on %s, %s", delivery.FormatDate(plan.StartDate), amount)
	}
	return fmt.Sprintf("Bakery subscription %s to %s, %s",
		delivery.FormatDate(plan.StartDate), delivery.FormatDate(plan.EndDate), amount)
}

func invalidInput(err error) error {
	return shared.NewDomainError(shared.ErrInvalidInput.Code, err.Error())
}

func completedOutcome(order *subscription.Order) *PaymentOutcomeResponse {
	return &PaymentOutcomeResponse{
		Status:  subscription.PaymentStatusSucceeded.String(),
		Message: "Thank you! Your order has been placed.",
		Order:   ToOrderResponse(order),
	}
}
