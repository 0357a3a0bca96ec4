package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbtypes "github.com/openfoodnetwork/ofn-backend/pkg/db/types"
	"github.com/openfoodnetwork/ofn-backend/pkg/enums"
)

// OrderCycle is a time-boxed aggregation of supply and demand around a coordinator.
type OrderCycle struct {
	ID              uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	Name            string           `gorm:"column:name;not null"`
	OrdersOpenAt    *time.Time       `gorm:"column:orders_open_at;index"`
	OrdersCloseAt   *time.Time       `gorm:"column:orders_close_at;index"`
	CoordinatorID   uuid.UUID        `gorm:"column:coordinator_id;type:uuid;not null;index"`
	Coordinator     *Enterprise      `gorm:"foreignKey:CoordinatorID"`
	Exchanges       []Exchange       `gorm:"foreignKey:OrderCycleID;constraint:OnDelete:CASCADE"`
	CoordinatorFees []CoordinatorFee `gorm:"foreignKey:OrderCycleID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (oc *OrderCycle) BeforeCreate(*gorm.DB) error {
	assignID(&oc.ID)
	return nil
}

// Status derives the lifecycle state from the open window.
func (oc OrderCycle) Status(now time.Time) enums.OrderCycleStatus {
	switch {
	case oc.OrdersOpenAt == nil || oc.OrdersCloseAt == nil:
		return enums.OrderCycleUndated
	case now.Before(*oc.OrdersOpenAt):
		return enums.OrderCycleUpcoming
	case now.Before(*oc.OrdersCloseAt):
		return enums.OrderCycleOpen
	default:
		return enums.OrderCycleClosed
	}
}

// Exchange is a directed leg of an order cycle. Incoming exchanges bring
// supply to the coordinator; outgoing exchanges carry it to a distributor.
type Exchange struct {
	ID                   uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderCycleID         uuid.UUID         `gorm:"column:order_cycle_id;type:uuid;not null;uniqueIndex:idx_exchanges_order_cycle_sender_receiver"`
	SenderID             uuid.UUID         `gorm:"column:sender_id;type:uuid;not null;uniqueIndex:idx_exchanges_order_cycle_sender_receiver"`
	ReceiverID           uuid.UUID         `gorm:"column:receiver_id;type:uuid;not null;uniqueIndex:idx_exchanges_order_cycle_sender_receiver"`
	Incoming             bool              `gorm:"column:incoming;not null;default:false"`
	PickupTime           *string           `gorm:"column:pickup_time"`
	PickupInstructions   *string           `gorm:"column:pickup_instructions"`
	ReceivalInstructions *string           `gorm:"column:receival_instructions"`
	TagList              dbtypes.TagList   `gorm:"column:tag_list"`
	Sender               *Enterprise       `gorm:"foreignKey:SenderID"`
	Receiver             *Enterprise       `gorm:"foreignKey:ReceiverID"`
	Variants             []ExchangeVariant `gorm:"foreignKey:ExchangeID;constraint:OnDelete:CASCADE"`
	Fees                 []ExchangeFee     `gorm:"foreignKey:ExchangeID;constraint:OnDelete:CASCADE"`
	CreatedAt            time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (e *Exchange) BeforeCreate(*gorm.DB) error {
	assignID(&e.ID)
	return nil
}

// Role is the fee role of enterprises charging on this leg.
func (e Exchange) Role() enums.FeeRole {
	if e.Incoming {
		return enums.FeeRoleSupplier
	}
	return enums.FeeRoleDistributor
}

// Carries reports whether the variant is part of this exchange.
func (e Exchange) Carries(variantID uuid.UUID) bool {
	for _, ev := range e.Variants {
		if ev.VariantID == variantID {
			return true
		}
	}
	return false
}

type ExchangeVariant struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ExchangeID uuid.UUID `gorm:"column:exchange_id;type:uuid;not null;uniqueIndex:idx_exchange_variants_pair"`
	VariantID  uuid.UUID `gorm:"column:variant_id;type:uuid;not null;uniqueIndex:idx_exchange_variants_pair;index"`
	Variant    *Variant  `gorm:"foreignKey:VariantID"`
}

func (ev *ExchangeVariant) BeforeCreate(*gorm.DB) error {
	assignID(&ev.ID)
	return nil
}

// ExchangeFee attaches an enterprise fee to an exchange at a position.
type ExchangeFee struct {
	ID              uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	ExchangeID      uuid.UUID      `gorm:"column:exchange_id;type:uuid;not null;index"`
	EnterpriseFeeID uuid.UUID      `gorm:"column:enterprise_fee_id;type:uuid;not null"`
	Position        int            `gorm:"column:position;not null;default:0"`
	EnterpriseFee   *EnterpriseFee `gorm:"foreignKey:EnterpriseFeeID"`
}

func (f *ExchangeFee) BeforeCreate(*gorm.DB) error {
	assignID(&f.ID)
	return nil
}

// CoordinatorFee attaches an enterprise fee to an order cycle in the coordinator role.
type CoordinatorFee struct {
	ID              uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	OrderCycleID    uuid.UUID      `gorm:"column:order_cycle_id;type:uuid;not null;index"`
	EnterpriseFeeID uuid.UUID      `gorm:"column:enterprise_fee_id;type:uuid;not null"`
	Position        int            `gorm:"column:position;not null;default:0"`
	EnterpriseFee   *EnterpriseFee `gorm:"foreignKey:EnterpriseFeeID"`
}

func (f *CoordinatorFee) BeforeCreate(*gorm.DB) error {
	assignID(&f.ID)
	return nil
}
