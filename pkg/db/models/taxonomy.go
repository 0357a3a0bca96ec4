package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type TaxCategory struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name      string    `gorm:"column:name;not null;uniqueIndex"`
	IsDefault bool      `gorm:"column:is_default;not null;default:false"`
	TaxRates  []TaxRate `gorm:"foreignKey:TaxCategoryID"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (c *TaxCategory) BeforeCreate(*gorm.DB) error {
	assignID(&c.ID)
	return nil
}

// TaxRate is a fractional rate (0.1 for 10%) belonging to a category.
type TaxRate struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	TaxCategoryID   uuid.UUID       `gorm:"column:tax_category_id;type:uuid;not null;index"`
	Name            string          `gorm:"column:name;not null"`
	Amount          decimal.Decimal `gorm:"column:amount;type:numeric(8,5);not null"`
	IncludedInPrice bool            `gorm:"column:included_in_price;not null;default:false"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (r *TaxRate) BeforeCreate(*gorm.DB) error {
	assignID(&r.ID)
	return nil
}

type ShippingCategory struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name      string    `gorm:"column:name;not null;uniqueIndex"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (c *ShippingCategory) BeforeCreate(*gorm.DB) error {
	assignID(&c.ID)
	return nil
}

// Taxon is a product category such as "Vegetables".
type Taxon struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name      string    `gorm:"column:name;not null;uniqueIndex"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (t *Taxon) BeforeCreate(*gorm.DB) error {
	assignID(&t.ID)
	return nil
}
