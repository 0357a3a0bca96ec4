// Package calculator prices enterprise fees. Each calculator is persisted as a
// type name plus a preferences map and computes a signed amount rounded to
// cents. Negative preferences model discounts.
package calculator

import (
	"github.com/shopspring/decimal"

	"github.com/openfoodnetwork/ofn-backend/pkg/enums"
)

// Computable is what a calculator prices: a single line item or a whole order.
type Computable struct {
	// Amount is price times quantity for a line item or the item total for an order.
	Amount decimal.Decimal
	// UnitPrice is only meaningful for line items.
	UnitPrice decimal.Decimal
	Quantity  int
	// WeightKg is the total weight of the computable.
	WeightKg decimal.Decimal
}

// LineItem builds the computable for quantity units at unitPrice each.
func LineItem(unitPrice decimal.Decimal, quantity int, unitWeightKg decimal.Decimal) Computable {
	qty := decimal.NewFromInt(int64(quantity))
	return Computable{
		Amount:    unitPrice.Mul(qty),
		UnitPrice: unitPrice,
		Quantity:  quantity,
		WeightKg:  unitWeightKg.Mul(qty),
	}
}

// Order builds the computable for a whole order.
func Order(itemTotal decimal.Decimal, quantity int, weightKg decimal.Decimal) Computable {
	return Computable{Amount: itemTotal, Quantity: quantity, WeightKg: weightKg}
}

// Calculator computes a fee amount.
type Calculator interface {
	Type() enums.CalculatorType
	Compute(Computable) decimal.Decimal
	Preferences() map[string]any
}

var hundred = decimal.NewFromInt(100)

func round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// FlatRate charges a fixed amount once per order.
type FlatRate struct {
	Amount decimal.Decimal
}

func (FlatRate) Type() enums.CalculatorType { return enums.CalculatorFlatRate }

func (c FlatRate) Compute(Computable) decimal.Decimal {
	return round(c.Amount)
}

func (c FlatRate) Preferences() map[string]any {
	return map[string]any{"amount": c.Amount.String()}
}

// FlexiRate charges FirstItem for the first unit and AdditionalItem for each
// following unit. When MaxItems is positive the pricing restarts at FirstItem
// every MaxItems units.
type FlexiRate struct {
	FirstItem      decimal.Decimal
	AdditionalItem decimal.Decimal
	MaxItems       int
}

func (FlexiRate) Type() enums.CalculatorType { return enums.CalculatorFlexiRate }

func (c FlexiRate) Compute(in Computable) decimal.Decimal {
	sum := decimal.Zero
	for i := 0; i < in.Quantity; i++ {
		if (c.MaxItems <= 0 && i == 0) || (c.MaxItems > 0 && i%c.MaxItems == 0) {
			sum = sum.Add(c.FirstItem)
		} else {
			sum = sum.Add(c.AdditionalItem)
		}
	}
	return round(sum)
}

func (c FlexiRate) Preferences() map[string]any {
	return map[string]any{
		"first_item":      c.FirstItem.String(),
		"additional_item": c.AdditionalItem.String(),
		"max_items":       c.MaxItems,
	}
}

// PriceSack charges NormalAmount below MinimalAmount and DiscountAmount otherwise.
type PriceSack struct {
	MinimalAmount  decimal.Decimal
	NormalAmount   decimal.Decimal
	DiscountAmount decimal.Decimal
}

func (PriceSack) Type() enums.CalculatorType { return enums.CalculatorPriceSack }

func (c PriceSack) Compute(in Computable) decimal.Decimal {
	if in.Amount.LessThan(c.MinimalAmount) {
		return round(c.NormalAmount)
	}
	return round(c.DiscountAmount)
}

func (c PriceSack) Preferences() map[string]any {
	return map[string]any{
		"minimal_amount":  c.MinimalAmount.String(),
		"normal_amount":   c.NormalAmount.String(),
		"discount_amount": c.DiscountAmount.String(),
	}
}

// FlatPercentItemTotal charges a percentage of the computable amount.
type FlatPercentItemTotal struct {
	FlatPercent decimal.Decimal
}

func (FlatPercentItemTotal) Type() enums.CalculatorType { return enums.CalculatorFlatPercentItemTotal }

func (c FlatPercentItemTotal) Compute(in Computable) decimal.Decimal {
	return round(in.Amount.Mul(c.FlatPercent).Div(hundred))
}

func (c FlatPercentItemTotal) Preferences() map[string]any {
	return map[string]any{"flat_percent": c.FlatPercent.String()}
}

// FlatPercentPerItem rounds the percentage of the unit price to cents before
// multiplying by quantity, so every unit carries the same fee.
type FlatPercentPerItem struct {
	FlatPercent decimal.Decimal
}

func (FlatPercentPerItem) Type() enums.CalculatorType { return enums.CalculatorFlatPercentPerItem }

func (c FlatPercentPerItem) Compute(in Computable) decimal.Decimal {
	unit := in.UnitPrice
	if unit.IsZero() && in.Quantity > 0 {
		unit = in.Amount.Div(decimal.NewFromInt(int64(in.Quantity)))
	}
	perUnit := round(unit.Mul(c.FlatPercent).Div(hundred))
	return perUnit.Mul(decimal.NewFromInt(int64(in.Quantity)))
}

func (c FlatPercentPerItem) Preferences() map[string]any {
	return map[string]any{"flat_percent": c.FlatPercent.String()}
}

// PerItem charges a fixed amount per unit.
type PerItem struct {
	Amount decimal.Decimal
}

func (PerItem) Type() enums.CalculatorType { return enums.CalculatorPerItem }

func (c PerItem) Compute(in Computable) decimal.Decimal {
	return round(c.Amount.Mul(decimal.NewFromInt(int64(in.Quantity))))
}

func (c PerItem) Preferences() map[string]any {
	return map[string]any{"amount": c.Amount.String()}
}

// Weight charges per kilogram of total weight.
type Weight struct {
	PerKg decimal.Decimal
}

func (Weight) Type() enums.CalculatorType { return enums.CalculatorWeight }

func (c Weight) Compute(in Computable) decimal.Decimal {
	return round(in.WeightKg.Mul(c.PerKg))
}

func (c Weight) Preferences() map[string]any {
	return map[string]any{"per_kg": c.PerKg.String()}
}
