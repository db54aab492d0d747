package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/selkies/backend/internal/domain/shared"
	"github.com/selkies/backend/internal/domain/subscription"
	"github.com/selkies/backend/internal/infrastructure/persistence/models"
)

// GormOrderRepository implements subscription.OrderRepository using GORM.
// Orders are insert-only.
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// Save inserts a new order. A second order for the same plan or payment
// reference fails with shared.ErrAlreadyExists.
func (r *GormOrderRepository) Save(ctx context.Context, order *subscription.Order) error {
	var row models.OrderModel
	if err := row.FromDomain(order); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isDuplicateKey(err) {
			return shared.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

// FindByID finds an order by its ID
func (r *GormOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*subscription.Order, error) {
	return r.findOne(ctx, "id = ?", id)
}

// FindByPaymentReference finds the order created for a payment
func (r *GormOrderRepository) FindByPaymentReference(ctx context.Context, ref string) (*subscription.Order, error) {
	return r.findOne(ctx, "payment_reference = ?", ref)
}

// FindByPlanID finds the order created from a plan
func (r *GormOrderRepository) FindByPlanID(ctx context.Context, planID uuid.UUID) (*subscription.Order, error) {
	return r.findOne(ctx, "plan_id = ?", planID)
}

func (r *GormOrderRepository) findOne(ctx context.Context, query string, arg any) (*subscription.Order, error) {
	var row models.OrderModel
	if err := r.db.WithContext(ctx).Where(query, arg).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return row.ToDomain()
}

var _ subscription.OrderRepository = (*GormOrderRepository)(nil)
