package subscription

import (
	"context"

	"github.com/selkies/backend/internal/domain/catalog"
)

// CatalogProvider supplies the catalog snapshot frozen into new sessions.
// It returns a usable (possibly empty) snapshot alongside any error.
type CatalogProvider interface {
	Snapshot(ctx context.Context) (catalog.Snapshot, error)
}

// Metrics records subscription business events
type Metrics interface {
	SessionStarted(ctx context.Context, degraded bool)
	CheckoutStarted(ctx context.Context, recurrence string, amountMinor int64)
	OrderCompleted(ctx context.Context, recurrence string, amountMinor int64)
	PaymentFailed(ctx context.Context, reason string)
}

type noopMetrics struct{}

func (noopMetrics) SessionStarted(context.Context, bool) {}
func (noopMetrics) CheckoutStarted(context.Context, string, int64) {}
func (noopMetrics) OrderCompleted(context.Context, string, int64) {}
func (noopMetrics) PaymentFailed(context.Context, string) {}
