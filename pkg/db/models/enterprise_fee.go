package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/openfoodnetwork/ofn-backend/pkg/enums"
)

// EnterpriseFee is a fee an enterprise charges, priced by a calculator.
type EnterpriseFee struct {
	ID                    uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	EnterpriseID          uuid.UUID            `gorm:"column:enterprise_id;type:uuid;not null;index"`
	FeeType               enums.FeeType        `gorm:"column:fee_type;not null"`
	Name                  string               `gorm:"column:name;not null"`
	TaxCategoryID         *uuid.UUID           `gorm:"column:tax_category_id;type:uuid"`
	InheritsTaxCategory   bool                 `gorm:"column:inherits_tax_category;not null;default:false"`
	CalculatorType        enums.CalculatorType `gorm:"column:calculator_type;not null"`
	CalculatorPreferences datatypes.JSONMap    `gorm:"column:calculator_preferences"`
	Enterprise            *Enterprise          `gorm:"foreignKey:EnterpriseID"`
	TaxCategory           *TaxCategory         `gorm:"foreignKey:TaxCategoryID"`
	DeletedAt             gorm.DeletedAt       `gorm:"column:deleted_at;index"`
	CreatedAt             time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (f *EnterpriseFee) BeforeCreate(*gorm.DB) error {
	assignID(&f.ID)
	return nil
}

// PerItem reports whether the fee is charged on each line item.
func (f EnterpriseFee) PerItem() bool {
	return f.CalculatorType.IsPerItem()
}
