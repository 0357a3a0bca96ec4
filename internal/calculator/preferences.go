package calculator

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/openfoodnetwork/ofn-backend/pkg/db/models"
	"github.com/openfoodnetwork/ofn-backend/pkg/enums"
	pkgerrors "github.com/openfoodnetwork/ofn-backend/pkg/errors"
)

// FromPreferences rebuilds a calculator from its persisted type name and
// preferences. Missing preferences default to zero.
func FromPreferences(calcType enums.CalculatorType, prefs map[string]any) (Calculator, error) {
	p := prefReader{prefs: prefs, errs: pkgerrors.FieldErrors{}}

	var calc Calculator
	switch calcType {
	case enums.CalculatorFlatRate:
		calc = FlatRate{Amount: p.decimal("amount")}
	case enums.CalculatorFlexiRate:
		calc = FlexiRate{
			FirstItem:      p.decimal("first_item"),
			AdditionalItem: p.decimal("additional_item"),
			MaxItems:       p.integer("max_items"),
		}
	case enums.CalculatorPriceSack:
		calc = PriceSack{
			MinimalAmount:  p.decimal("minimal_amount"),
			NormalAmount:   p.decimal("normal_amount"),
			DiscountAmount: p.decimal("discount_amount"),
		}
	case enums.CalculatorFlatPercentItemTotal:
		calc = FlatPercentItemTotal{FlatPercent: p.decimal("flat_percent")}
	case enums.CalculatorFlatPercentPerItem:
		calc = FlatPercentPerItem{FlatPercent: p.decimal("flat_percent")}
	case enums.CalculatorPerItem:
		calc = PerItem{Amount: p.decimal("amount")}
	case enums.CalculatorWeight:
		calc = Weight{PerKg: p.decimal("per_kg")}
	default:
		p.errs.Add("calculator_type", fmt.Sprintf("unknown calculator %q", calcType))
	}

	if err := p.errs.Err("invalid calculator preferences"); err != nil {
		return nil, err
	}
	return calc, nil
}

type prefReader struct {
	prefs map[string]any
	errs  pkgerrors.FieldErrors
}

func (p prefReader) decimal(key string) decimal.Decimal {
	raw, ok := p.prefs[key]
	if !ok || raw == nil {
		return decimal.Zero
	}
	d, err := toDecimal(raw)
	if err != nil {
		p.errs.Add(key, "must be a number")
		return decimal.Zero
	}
	return d
}

func (p prefReader) integer(key string) int {
	d := p.decimal(key)
	if !d.IsInteger() {
		p.errs.Add(key, "must be a whole number")
		return 0
	}
	return int(d.IntPart())
}

func toDecimal(raw any) (decimal.Decimal, error) {
	switch v := raw.(type) {
	case decimal.Decimal:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return decimal.Zero, nil
		}
		return decimal.NewFromString(s)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Zero, fmt.Errorf("not finite")
		}
		return decimal.NewFromFloat(v), nil
	case float32:
		return decimal.NewFromFloat32(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case json.Number:
		return decimal.NewFromString(v.String())
	default:
		return decimal.Zero, fmt.Errorf("unsupported preference type %T", raw)
	}
}

// ForFee rebuilds the calculator persisted on an enterprise fee.
func ForFee(fee models.EnterpriseFee) (Calculator, error) {
	return FromPreferences(fee.CalculatorType, map[string]any(fee.CalculatorPreferences))
}
