package ordercycles

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openfoodnetwork/ofn-backend/pkg/db/models"
	"github.com/openfoodnetwork/ofn-backend/pkg/enums"
)

type exchangeResponse struct {
	ID                   uuid.UUID   `json:"id"`
	SenderID             uuid.UUID   `json:"sender_id"`
	ReceiverID           uuid.UUID   `json:"receiver_id"`
	Incoming             bool        `json:"incoming"`
	VariantIDs           []uuid.UUID `json:"variant_ids"`
	EnterpriseFeeIDs     []uuid.UUID `json:"enterprise_fee_ids"`
	PickupTime           *string     `json:"pickup_time,omitempty"`
	PickupInstructions   *string     `json:"pickup_instructions,omitempty"`
	ReceivalInstructions *string     `json:"receival_instructions,omitempty"`
	TagList              []string    `json:"tag_list"`
}

type orderCycleResponse struct {
	ID                uuid.UUID              `json:"id"`
	Name              string                 `json:"name"`
	Status            enums.OrderCycleStatus `json:"status"`
	OrdersOpenAt      *time.Time             `json:"orders_open_at,omitempty"`
	OrdersCloseAt     *time.Time             `json:"orders_close_at,omitempty"`
	CoordinatorID     uuid.UUID              `json:"coordinator_id"`
	CoordinatorFeeIDs []uuid.UUID            `json:"coordinator_fee_ids"`
	Exchanges         []exchangeResponse     `json:"exchanges"`
	UpdatedAt         time.Time              `json:"updated_at"`
}

type feesResponse struct {
	Total  decimal.Decimal                   `json:"total"`
	ByType map[enums.FeeType]decimal.Decimal `json:"by_type"`
}

type variantResponse struct {
	ID          uuid.UUID        `json:"id"`
	ProductID   uuid.UUID        `json:"product_id"`
	ProductName string           `json:"product_name,omitempty"`
	SKU         string           `json:"sku,omitempty"`
	DisplayName *string          `json:"display_name,omitempty"`
	UnitValue   *decimal.Decimal `json:"unit_value,omitempty"`
	Price       decimal.Decimal  `json:"price"`
	OnHand      int              `json:"on_hand"`
	OnDemand    bool             `json:"on_demand"`
}

type exchangeProductsResponse struct {
	Variants   []variantResponse `json:"variants"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

func newOrderCycleResponse(oc *models.OrderCycle, now time.Time) orderCycleResponse {
	resp := orderCycleResponse{
		ID:                oc.ID,
		Name:              oc.Name,
		Status:            oc.Status(now),
		OrdersOpenAt:      oc.OrdersOpenAt,
		OrdersCloseAt:     oc.OrdersCloseAt,
		CoordinatorID:     oc.CoordinatorID,
		CoordinatorFeeIDs: coordinatorFeeIDs(oc.CoordinatorFees),
		Exchanges:         make([]exchangeResponse, 0, len(oc.Exchanges)),
		UpdatedAt:         oc.UpdatedAt,
	}
	for _, ex := range oc.Exchanges {
		variantIDs := make([]uuid.UUID, 0, len(ex.Variants))
		for _, v := range ex.Variants {
			variantIDs = append(variantIDs, v.VariantID)
		}
		tags := []string(ex.TagList)
		if tags == nil {
			tags = []string{}
		}
		resp.Exchanges = append(resp.Exchanges, exchangeResponse{
			ID:                   ex.ID,
			SenderID:             ex.SenderID,
			ReceiverID:           ex.ReceiverID,
			Incoming:             ex.Incoming,
			VariantIDs:           variantIDs,
			EnterpriseFeeIDs:     exchangeFeeIDs(ex.Fees),
			PickupTime:           ex.PickupTime,
			PickupInstructions:   ex.PickupInstructions,
			ReceivalInstructions: ex.ReceivalInstructions,
			TagList:              tags,
		})
	}
	return resp
}

func coordinatorFeeIDs(fees []models.CoordinatorFee) []uuid.UUID {
	sorted := append([]models.CoordinatorFee(nil), fees...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Position < sorted[j].Position })
	ids := make([]uuid.UUID, 0, len(sorted))
	for _, f := range sorted {
		ids = append(ids, f.EnterpriseFeeID)
	}
	return ids
}

func exchangeFeeIDs(fees []models.ExchangeFee) []uuid.UUID {
	sorted := append([]models.ExchangeFee(nil), fees...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Position < sorted[j].Position })
	ids := make([]uuid.UUID, 0, len(sorted))
	for _, f := range sorted {
		ids = append(ids, f.EnterpriseFeeID)
	}
	return ids
}

func newVariantResponse(v models.Variant) variantResponse {
	resp := variantResponse{
		ID:          v.ID,
		ProductID:   v.ProductID,
		SKU:         v.SKU,
		DisplayName: v.DisplayName,
		UnitValue:   v.UnitValue,
		Price:       v.Price,
		OnHand:      v.OnHand,
		OnDemand:    v.OnDemand,
	}
	if v.Product != nil {
		resp.ProductName = v.Product.Name
	}
	return resp
}
