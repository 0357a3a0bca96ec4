package fees

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openfoodnetwork/ofn-backend/internal/repo"
	"github.com/openfoodnetwork/ofn-backend/pkg/db/models"
	"github.com/openfoodnetwork/ofn-backend/pkg/enums"
)

// Repository persists enterprise fee adjustments. Every method runs inside the
// caller's transaction.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// TaxCategoriesTx loads the categories with their rates keyed by id.
func (r *Repository) TaxCategoriesTx(tx *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]*models.TaxCategory, error) {
	out := make(map[uuid.UUID]*models.TaxCategory, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var categories []models.TaxCategory
	if err := tx.Preload("TaxRates").Where("id IN ?", ids).Find(&categories).Error; err != nil {
		return nil, err
	}
	for i := range categories {
		out[categories[i].ID] = &categories[i]
	}
	return out, nil
}

// DeleteForOrderTx removes every enterprise fee adjustment on the order and its line items.
func (r *Repository) DeleteForOrderTx(tx *gorm.DB, orderID uuid.UUID) (int64, error) {
	res := tx.Where("order_id = ? AND originator_type = ?", orderID, enums.OriginatorEnterpriseFee).
		Delete(&models.Adjustment{})
	return res.RowsAffected, res.Error
}

// DeleteForLineItemTx removes the enterprise fee adjustments of one line item.
func (r *Repository) DeleteForLineItemTx(tx *gorm.DB, lineItemID uuid.UUID) (int64, error) {
	res := tx.Where("adjustable_type = ? AND adjustable_id = ? AND originator_type = ?",
		enums.AdjustableLineItem, lineItemID, enums.OriginatorEnterpriseFee).
		Delete(&models.Adjustment{})
	return res.RowsAffected, res.Error
}

func (r *Repository) CreateTx(tx *gorm.DB, adjustments []models.Adjustment) error {
	if len(adjustments) == 0 {
		return nil
	}
	return tx.Create(&adjustments).Error
}
