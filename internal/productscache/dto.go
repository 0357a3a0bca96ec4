package productscache

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openfoodnetwork/ofn-backend/pkg/enums"
)

// ShopProduct is one product of a shopfront listing as served to shoppers.
type ShopProduct struct {
	ID           uuid.UUID     `json:"id"`
	Name         string        `json:"name"`
	SupplierID   uuid.UUID     `json:"supplierId"`
	SupplierName string        `json:"supplierName,omitempty"`
	VariantUnit  string        `json:"variantUnit,omitempty"`
	Variants     []ShopVariant `json:"variants"`
}

// ShopVariant carries the hub-resolved price and stock of a variant plus the
// per-item fees the order cycle charges on it.
type ShopVariant struct {
	ID            uuid.UUID                         `json:"id"`
	SKU           string                            `json:"sku,omitempty"`
	DisplayName   *string                           `json:"displayName,omitempty"`
	UnitValue     *decimal.Decimal                  `json:"unitValue,omitempty"`
	Price         decimal.Decimal                   `json:"price"`
	OnHand        int                               `json:"onHand"`
	OnDemand      bool                              `json:"onDemand"`
	Fees          map[enums.FeeType]decimal.Decimal `json:"fees"`
	FeesTotal     decimal.Decimal                   `json:"feesTotal"`
	PriceWithFees decimal.Decimal                   `json:"priceWithFees"`
}
