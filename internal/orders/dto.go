package orders

import "github.com/google/uuid"

// SetDistributionInput picks the distributor and order cycle a cart shops from.
type SetDistributionInput struct {
	OrderID       uuid.UUID
	DistributorID uuid.UUID
	OrderCycleID  uuid.UUID
}

// AddVariantInput adds quantity units of a variant to a cart.
type AddVariantInput struct {
	OrderID   uuid.UUID
	VariantID uuid.UUID
	Quantity  int
}
