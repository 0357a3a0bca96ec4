package ordercycles

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openfoodnetwork/ofn-backend/pkg/db/models"
	"github.com/openfoodnetwork/ofn-backend/pkg/enums"
)

// ExchangeInput describes one leg of an order cycle on create or update.
type ExchangeInput struct {
	SenderID             uuid.UUID
	ReceiverID           uuid.UUID
	Incoming             bool
	VariantIDs           []uuid.UUID
	EnterpriseFeeIDs     []uuid.UUID
	PickupTime           *string
	PickupInstructions   *string
	ReceivalInstructions *string
	TagList              []string
}

// Input is the full desired state of an order cycle. Updates replace every
// exchange and coordinator fee with the ones given.
type Input struct {
	Name              string
	OrdersOpenAt      *time.Time
	OrdersCloseAt     *time.Time
	CoordinatorID     uuid.UUID
	CoordinatorFeeIDs []uuid.UUID
	Exchanges         []ExchangeInput
}

// FeesByType is the signed fee total for a variant grouped by fee type.
type FeesByType map[enums.FeeType]decimal.Decimal

// Total sums every fee type.
func (f FeesByType) Total() decimal.Decimal {
	total := decimal.Zero
	for _, amount := range f {
		total = total.Add(amount)
	}
	return total
}

// ExchangeProductsPage is one page of variants carried by an exchange.
type ExchangeProductsPage struct {
	Variants   []models.Variant `json:"variants"`
	NextCursor string           `json:"next_cursor,omitempty"`
}
