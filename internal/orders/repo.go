package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/openfoodnetwork/ofn-backend/internal/repo"
	"github.com/openfoodnetwork/ofn-backend/pkg/db/models"
	"github.com/openfoodnetwork/ofn-backend/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Omit("LineItems", "Adjustments").Create(order).Error
}

// FindByID loads the order with line items, their variants and products, and
// adjustments. Returns nil when missing.
func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return repo.First[models.Order](r.db.WithContext(ctx).
		Preload("LineItems", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("LineItems.Variant.Product").
		Preload("Adjustments", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Where("id = ?", id))
}

func (r *repository) UpdateDistribution(ctx context.Context, orderID, distributorID, orderCycleID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", orderID).Updates(map[string]any{
		"distributor_id": distributorID,
		"order_cycle_id": orderCycleID,
		"updated_at":     time.Now().UTC(),
	}).Error
}

// UpsertLineItem sets the quantity and price of the order's line for the
// variant, creating it when absent. A quantity of zero removes the line.
func (r *repository) UpsertLineItem(ctx context.Context, orderID, variantID uuid.UUID, quantity int, price decimal.Decimal) (*models.LineItem, error) {
	db := r.db.WithContext(ctx)
	found, err := repo.First[models.LineItem](db.Where("order_id = ? AND variant_id = ?", orderID, variantID))
	if err != nil {
		return nil, err
	}
	if found == nil {
		if quantity <= 0 {
			return nil, nil
		}
		item := models.LineItem{OrderID: orderID, VariantID: variantID, Quantity: quantity, Price: price}
		if err := db.Omit("Variant").Create(&item).Error; err != nil {
			return nil, err
		}
		return &item, nil
	}
	item := *found

	if quantity <= 0 {
		return nil, db.Delete(&models.LineItem{}, "id = ?", item.ID).Error
	}
	item.Quantity = quantity
	item.Price = price
	if err := db.Model(&item).Updates(map[string]any{"quantity": quantity, "price": price}).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// UpdateTotals persists the monetary totals carried by order.
func (r *repository) UpdateTotals(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", order.ID).Updates(map[string]any{
		"item_total":           order.ItemTotal,
		"adjustment_total":     order.AdjustmentTotal,
		"additional_tax_total": order.AdditionalTaxTotal,
		"included_tax_total":   order.IncludedTaxTotal,
		"total":                order.Total,
		"updated_at":           time.Now().UTC(),
	}).Error
}

// MarkComplete moves a cart to complete. Zero rows means the order was not a cart.
func (r *repository) MarkComplete(ctx context.Context, orderID uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND state = ?", orderID, enums.OrderStateCart).
		Updates(map[string]any{
			"state":        enums.OrderStateComplete,
			"completed_at": at,
			"updated_at":   at,
		})
	return res.RowsAffected, res.Error
}
