package enums

import "fmt"

// OrderState tracks the lifecycle of a shopper order.
type OrderState string

const (
	OrderStateCart     OrderState = "cart"
	OrderStateComplete OrderState = "complete"
	OrderStateCanceled OrderState = "canceled"
)

var validOrderStates = []OrderState{
	OrderStateCart,
	OrderStateComplete,
	OrderStateCanceled,
}

// String implements fmt.Stringer.
func (s OrderState) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderState.
func (s OrderState) IsValid() bool {
	for _, candidate := range validOrderStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseOrderState converts raw input into an OrderState.
func ParseOrderState(value string) (OrderState, error) {
	for _, candidate := range validOrderStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order state %q", value)
}

// AdjustableType identifies what an adjustment is attached to.
type AdjustableType string

const (
	AdjustableOrder    AdjustableType = "order"
	AdjustableLineItem AdjustableType = "line_item"
)

// AdjustmentState mirrors the lifecycle of a persisted adjustment.
type AdjustmentState string

const (
	AdjustmentOpen   AdjustmentState = "open"
	AdjustmentClosed AdjustmentState = "closed"
)

// OriginatorEnterpriseFee is the originator_type of fee adjustments.
const OriginatorEnterpriseFee = "EnterpriseFee"
