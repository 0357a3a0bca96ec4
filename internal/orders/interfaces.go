package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/openfoodnetwork/ofn-backend/pkg/db/models"
)

// Repository defines persistence operations for orders, line items and totals.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	UpdateDistribution(ctx context.Context, orderID, distributorID, orderCycleID uuid.UUID) error
	UpsertLineItem(ctx context.Context, orderID, variantID uuid.UUID, quantity int, price decimal.Decimal) (*models.LineItem, error)
	UpdateTotals(ctx context.Context, order *models.Order) error
	MarkComplete(ctx context.Context, orderID uuid.UUID, at time.Time) (int64, error)
}

type orderCycleLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.OrderCycle, error)
}

type variantLoader interface {
	FindVariant(ctx context.Context, id uuid.UUID) (*models.Variant, error)
}

// stockAdjuster changes catalog stock inside the caller's transaction.
type stockAdjuster interface {
	AdjustOnHandTx(tx *gorm.DB, variantID uuid.UUID, delta int) (int64, error)
}

type overrideResolver interface {
	Indexed(ctx context.Context, hubID uuid.UUID) (map[uuid.UUID]models.VariantOverride, error)
	DecrementStock(ctx context.Context, tx *gorm.DB, hubID, variantID uuid.UUID, quantity int)
}

type feeCalculator interface {
	RecalculateFees(ctx context.Context, tx *gorm.DB, oc models.OrderCycle, order models.Order) ([]models.Adjustment, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}
