package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/openfoodnetwork/ofn-backend/pkg/enums"
)

// Order is a shopper cart that becomes an order on completion.
type Order struct {
	ID                 uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	Number             string           `gorm:"column:number;not null;uniqueIndex"`
	UserID             *uuid.UUID       `gorm:"column:user_id;type:uuid;index"`
	State              enums.OrderState `gorm:"column:state;not null;default:cart"`
	DistributorID      *uuid.UUID       `gorm:"column:distributor_id;type:uuid;index"`
	OrderCycleID       *uuid.UUID       `gorm:"column:order_cycle_id;type:uuid;index"`
	ItemTotal          decimal.Decimal  `gorm:"column:item_total;type:numeric(10,2);not null;default:0"`
	AdjustmentTotal    decimal.Decimal  `gorm:"column:adjustment_total;type:numeric(10,2);not null;default:0"`
	AdditionalTaxTotal decimal.Decimal  `gorm:"column:additional_tax_total;type:numeric(10,2);not null;default:0"`
	IncludedTaxTotal   decimal.Decimal  `gorm:"column:included_tax_total;type:numeric(10,2);not null;default:0"`
	Total              decimal.Decimal  `gorm:"column:total;type:numeric(10,2);not null;default:0"`
	CompletedAt        *time.Time       `gorm:"column:completed_at"`
	LineItems          []LineItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Adjustments        []Adjustment     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt          time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	assignID(&o.ID)
	return nil
}

// VariantIDs lists the variants in the cart in line item order.
func (o Order) VariantIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(o.LineItems))
	for _, li := range o.LineItems {
		ids = append(ids, li.VariantID)
	}
	return ids
}

type LineItem struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID       `gorm:"column:order_id;type:uuid;not null;uniqueIndex:idx_line_items_order_variant"`
	VariantID uuid.UUID       `gorm:"column:variant_id;type:uuid;not null;uniqueIndex:idx_line_items_order_variant"`
	Quantity  int             `gorm:"column:quantity;not null"`
	Price     decimal.Decimal `gorm:"column:price;type:numeric(10,2);not null"`
	Variant   *Variant        `gorm:"foreignKey:VariantID"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (li *LineItem) BeforeCreate(*gorm.DB) error {
	assignID(&li.ID)
	return nil
}

// Amount is price times quantity.
func (li LineItem) Amount() decimal.Decimal {
	return li.Price.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Adjustment is a persisted monetary delta on an order or one of its line items.
type Adjustment struct {
	ID             uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID             `gorm:"column:order_id;type:uuid;not null;index"`
	AdjustableType enums.AdjustableType  `gorm:"column:adjustable_type;not null"`
	AdjustableID   uuid.UUID             `gorm:"column:adjustable_id;type:uuid;not null;index"`
	OriginatorType string                `gorm:"column:originator_type;not null"`
	OriginatorID   uuid.UUID             `gorm:"column:originator_id;type:uuid;not null"`
	Amount         decimal.Decimal       `gorm:"column:amount;type:numeric(10,2);not null"`
	IncludedTax    decimal.Decimal       `gorm:"column:included_tax;type:numeric(10,2);not null;default:0"`
	AdditionalTax  decimal.Decimal       `gorm:"column:additional_tax;type:numeric(10,2);not null;default:0"`
	Label          string                `gorm:"column:label;not null"`
	Mandatory      bool                  `gorm:"column:mandatory;not null;default:true"`
	State          enums.AdjustmentState `gorm:"column:state;not null;default:open"`
	CreatedAt      time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (a *Adjustment) BeforeCreate(*gorm.DB) error {
	assignID(&a.ID)
	return nil
}
