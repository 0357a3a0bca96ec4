package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbtypes "github.com/openfoodnetwork/ofn-backend/pkg/db/types"
)

// VariantOverride substitutes a hub's own price and stock for a catalog variant.
// At most one row per (variant, hub) may be active; revoked rows are kept for
// restoration when the producer grants permission again.
type VariantOverride struct {
	ID                  uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	VariantID           uuid.UUID        `gorm:"column:variant_id;type:uuid;not null;uniqueIndex:idx_variant_overrides_active,where:permission_revoked_at IS NULL"`
	HubID               uuid.UUID        `gorm:"column:hub_id;type:uuid;not null;index;uniqueIndex:idx_variant_overrides_active,where:permission_revoked_at IS NULL"`
	Price               *decimal.Decimal `gorm:"column:price;type:numeric(10,2)"`
	CountOnHand         *int             `gorm:"column:count_on_hand"`
	OnDemand            *bool            `gorm:"column:on_demand"`
	DefaultStock        *int             `gorm:"column:default_stock"`
	Resettable          bool             `gorm:"column:resettable;not null;default:false"`
	SKU                 *string          `gorm:"column:sku"`
	TagList             dbtypes.TagList  `gorm:"column:tag_list"`
	PermissionRevokedAt *time.Time       `gorm:"column:permission_revoked_at;index"`
	Variant             *Variant         `gorm:"foreignKey:VariantID"`
	CreatedAt           time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (vo *VariantOverride) BeforeCreate(*gorm.DB) error {
	assignID(&vo.ID)
	return nil
}

// OverrideStatus makes the revocation state explicit.
type OverrideStatus struct {
	Revoked   bool
	RevokedAt time.Time
}

// Status reports whether the override is active or revoked, and since when.
func (vo VariantOverride) Status() OverrideStatus {
	if vo.PermissionRevokedAt == nil {
		return OverrideStatus{}
	}
	return OverrideStatus{Revoked: true, RevokedAt: *vo.PermissionRevokedAt}
}

// StockOverridden reports whether the hub tracks its own count for the variant.
func (vo VariantOverride) StockOverridden() bool {
	return vo.PermissionRevokedAt == nil && vo.CountOnHand != nil
}
