package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/openfoodnetwork/ofn-backend/pkg/enums"
)

// Product is a supplier's catalog entry. Every product owns one master
// variant and any number of sellable variants.
type Product struct {
	ID                 uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	Name               string            `gorm:"column:name;not null;index"`
	SupplierID         uuid.UUID         `gorm:"column:supplier_id;type:uuid;not null;index"`
	PrimaryTaxonID     uuid.UUID         `gorm:"column:primary_taxon_id;type:uuid;not null"`
	VariantUnit        enums.VariantUnit `gorm:"column:variant_unit;not null"`
	VariantUnitScale   *decimal.Decimal  `gorm:"column:variant_unit_scale;type:numeric(10,3)"`
	VariantUnitName    *string           `gorm:"column:variant_unit_name"`
	TaxCategoryID      *uuid.UUID        `gorm:"column:tax_category_id;type:uuid"`
	ShippingCategoryID *uuid.UUID        `gorm:"column:shipping_category_id;type:uuid"`
	AvailableOn        *time.Time        `gorm:"column:available_on"`
	Supplier           *Enterprise       `gorm:"foreignKey:SupplierID"`
	Variants           []Variant         `gorm:"foreignKey:ProductID"`
	DeletedAt          gorm.DeletedAt    `gorm:"column:deleted_at;index"`
	CreatedAt          time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}

// Variant is a sellable unit of a product.
type Variant struct {
	ID              uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	ProductID       uuid.UUID        `gorm:"column:product_id;type:uuid;not null;index"`
	IsMaster        bool             `gorm:"column:is_master;not null;default:false"`
	SKU             string           `gorm:"column:sku;not null;default:''"`
	DisplayName     *string          `gorm:"column:display_name"`
	UnitValue       *decimal.Decimal `gorm:"column:unit_value;type:numeric(12,3)"`
	UnitDescription *string          `gorm:"column:unit_description"`
	Price           decimal.Decimal  `gorm:"column:price;type:numeric(10,2);not null"`
	OnHand          int              `gorm:"column:on_hand;not null;default:0"`
	OnDemand        bool             `gorm:"column:on_demand;not null;default:false"`
	WeightKg        *decimal.Decimal `gorm:"column:weight_kg;type:numeric(10,3)"`
	Product         *Product         `gorm:"foreignKey:ProductID"`
	DeletedAt       gorm.DeletedAt   `gorm:"column:deleted_at;index"`
	CreatedAt       time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (v *Variant) BeforeCreate(*gorm.DB) error {
	assignID(&v.ID)
	return nil
}
