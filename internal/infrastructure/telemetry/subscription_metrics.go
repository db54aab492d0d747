package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/metric"
)

// ErrMeterNil is returned when a metrics set is built without a meter
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// SubscriptionMetrics records plan session and checkout events.
// It satisfies the subscription service's Metrics port.
type SubscriptionMetrics struct {
	sessionsStarted  *Counter
	checkoutsStarted *Counter
	ordersCompleted  *Counter
	orderRevenue     *Counter
	orderValue       *Histogram
	paymentFailures  *Counter
}

// NewSubscriptionMetrics creates the subscription instruments on meter
func NewSubscriptionMetrics(meter metric.Meter) (*SubscriptionMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	sessions, err := NewCounter(meter, "bakery_plan_sessions_started_total",
		"Plan sessions started, by whether the catalog was degraded", "{session}")
	if err != nil {
		return nil, err
	}
	checkouts, err := NewCounter(meter, "bakery_checkouts_started_total",
		"Checkouts that reached the payment gateway", "{checkout}")
	if err != nil {
		return nil, err
	}
	orders, err := NewCounter(meter, "bakery_orders_completed_total",
		"Orders finalized after a verified payment", "{order}")
	if err != nil {
		return nil, err
	}
	revenue, err := NewCounter(meter, "bakery_order_revenue_minor_total",
		"Sum of completed order totals in minor currency units", "{paisa}")
	if err != nil {
		return nil, err
	}
	value, err := NewHistogram(meter, HistogramOpts{
		Name:        "bakery_order_value",
		Description: "Distribution of completed order totals in major currency units",
		Unit:        "{rupee}",
		Boundaries:  OrderValueBuckets,
	})
	if err != nil {
		return nil, err
	}
	failures, err := NewCounter(meter, "bakery_payment_failures_total",
		"Payments that could not be created, verified or were declined", "{payment}")
	if err != nil {
		return nil, err
	}

	return &SubscriptionMetrics{
		sessionsStarted:  sessions,
		checkoutsStarted: checkouts,
		ordersCompleted:  orders,
		orderRevenue:     revenue,
		orderValue:       value,
		paymentFailures:  failures,
	}, nil
}

// SessionStarted counts a new plan session
func (m *SubscriptionMetrics) SessionStarted(ctx context.Context, degraded bool) {
	m.sessionsStarted.Inc(ctx, AttrDegraded.Bool(degraded))
}

// CheckoutStarted counts a payment creation attempt
func (m *SubscriptionMetrics) CheckoutStarted(ctx context.Context, recurrence string, _ int64) {
	m.checkoutsStarted.Inc(ctx, AttrRecurrence.String(recurrence))
}

// OrderCompleted counts a finalized order and its value
func (m *SubscriptionMetrics) OrderCompleted(ctx context.Context, recurrence string, amountMinor int64) {
	attr := AttrRecurrence.String(recurrence)
	m.ordersCompleted.Inc(ctx, attr)
	m.orderRevenue.Add(ctx, amountMinor, attr)
	m.orderValue.Record(ctx, float64(amountMinor)/100, attr)
}

// PaymentFailed counts a payment failure by stage or reason
func (m *SubscriptionMetrics) PaymentFailed(ctx context.Context, reason string) {
	m.paymentFailures.Inc(ctx, AttrReason.String(reason))
}
