package ordercycles

import (
	"time"

	"github.com/google/uuid"

	ocsvc "github.com/openfoodnetwork/ofn-backend/internal/ordercycles"
)

type exchangeRequest struct {
	SenderID             uuid.UUID   `json:"sender_id" validate:"required"`
	ReceiverID           uuid.UUID   `json:"receiver_id" validate:"required"`
	Incoming             bool        `json:"incoming"`
	VariantIDs           []uuid.UUID `json:"variant_ids"`
	EnterpriseFeeIDs     []uuid.UUID `json:"enterprise_fee_ids"`
	PickupTime           *string     `json:"pickup_time,omitempty"`
	PickupInstructions   *string     `json:"pickup_instructions,omitempty"`
	ReceivalInstructions *string     `json:"receival_instructions,omitempty"`
	TagList              []string    `json:"tag_list,omitempty"`
}

// orderCycleRequest is the full desired state sent on create and update.
type orderCycleRequest struct {
	Name              string            `json:"name" validate:"required,max=255"`
	OrdersOpenAt      *time.Time        `json:"orders_open_at,omitempty"`
	OrdersCloseAt     *time.Time        `json:"orders_close_at,omitempty"`
	CoordinatorID     uuid.UUID         `json:"coordinator_id" validate:"required"`
	CoordinatorFeeIDs []uuid.UUID       `json:"coordinator_fee_ids"`
	Exchanges         []exchangeRequest `json:"exchanges" validate:"dive"`
}

func (req orderCycleRequest) toInput() ocsvc.Input {
	input := ocsvc.Input{
		Name:              req.Name,
		OrdersOpenAt:      req.OrdersOpenAt,
		OrdersCloseAt:     req.OrdersCloseAt,
		CoordinatorID:     req.CoordinatorID,
		CoordinatorFeeIDs: req.CoordinatorFeeIDs,
		Exchanges:         make([]ocsvc.ExchangeInput, 0, len(req.Exchanges)),
	}
	for _, ex := range req.Exchanges {
		input.Exchanges = append(input.Exchanges, ocsvc.ExchangeInput{
			SenderID:             ex.SenderID,
			ReceiverID:           ex.ReceiverID,
			Incoming:             ex.Incoming,
			VariantIDs:           ex.VariantIDs,
			EnterpriseFeeIDs:     ex.EnterpriseFeeIDs,
			PickupTime:           ex.PickupTime,
			PickupInstructions:   ex.PickupInstructions,
			ReceivalInstructions: ex.ReceivalInstructions,
			TagList:              ex.TagList,
		})
	}
	return input
}
