package calculator

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/openfoodnetwork/ofn-backend/pkg/enums"
	pkgerrors "github.com/openfoodnetwork/ofn-backend/pkg/errors"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCompute(t *testing.T) {
	item := LineItem(d("10.00"), 3, d("0.5"))
	order := Order(d("45.00"), 4, d("2"))

	cases := []struct {
		name string
		calc Calculator
		in   Computable
		want string
	}{
		{"flat rate", FlatRate{Amount: d("2.50")}, order, "2.5"},
		{"flat rate discount", FlatRate{Amount: d("-1.00")}, order, "-1"},
		{"flexi single", FlexiRate{FirstItem: d("5"), AdditionalItem: d("1")}, Order(d("10"), 1, decimal.Zero), "5"},
		{"flexi no max", FlexiRate{FirstItem: d("5"), AdditionalItem: d("1")}, order, "8"},
		{"flexi restarts at max", FlexiRate{FirstItem: d("5"), AdditionalItem: d("1"), MaxItems: 2}, order, "12"},
		{"flexi empty", FlexiRate{FirstItem: d("5"), AdditionalItem: d("1")}, Order(decimal.Zero, 0, decimal.Zero), "0"},
		{"price sack below minimum", PriceSack{MinimalAmount: d("50"), NormalAmount: d("10"), DiscountAmount: d("2")}, order, "10"},
		{"price sack at minimum", PriceSack{MinimalAmount: d("45"), NormalAmount: d("10"), DiscountAmount: d("2")}, order, "2"},
		{"percent of item total", FlatPercentItemTotal{FlatPercent: d("10")}, LineItem(d("10.00"), 1, decimal.Zero), "1"},
		{"percent of item total rounds", FlatPercentItemTotal{FlatPercent: d("7.5")}, LineItem(d("3.33"), 1, decimal.Zero), "0.25"},
		{"percent per item", FlatPercentPerItem{FlatPercent: d("7.5")}, LineItem(d("3.33"), 3, decimal.Zero), "0.75"},
		{"per item", PerItem{Amount: d("0.40")}, item, "1.2"},
		{"weight", Weight{PerKg: d("1.10")}, item, "1.65"},
	}

	for _, tc := range cases {
		got := tc.calc.Compute(tc.in)
		if !got.Equal(d(tc.want)) {
			t.Fatalf("%s: expected %s got %s", tc.name, tc.want, got)
		}
	}
}

func TestFromPreferencesRoundTrip(t *testing.T) {
	calcs := []Calculator{
		FlatRate{Amount: d("1.5")},
		FlexiRate{FirstItem: d("2"), AdditionalItem: d("1"), MaxItems: 3},
		PriceSack{MinimalAmount: d("20"), NormalAmount: d("5"), DiscountAmount: d("1")},
		FlatPercentItemTotal{FlatPercent: d("10")},
		FlatPercentPerItem{FlatPercent: d("12.5")},
		PerItem{Amount: d("0.25")},
		Weight{PerKg: d("3")},
	}
	in := LineItem(d("12.34"), 5, d("0.2"))
	for _, calc := range calcs {
		rebuilt, err := FromPreferences(calc.Type(), calc.Preferences())
		if err != nil {
			t.Fatalf("%s: unexpected error %v", calc.Type(), err)
		}
		if !rebuilt.Compute(in).Equal(calc.Compute(in)) {
			t.Fatalf("%s: rebuilt calculator computes differently", calc.Type())
		}
	}
}

func TestFromPreferencesAcceptsJSONNumbers(t *testing.T) {
	calc, err := FromPreferences(enums.CalculatorFlatPercentItemTotal, map[string]any{"flat_percent": float64(10)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := calc.Compute(LineItem(d("10"), 1, decimal.Zero)); !got.Equal(d("1")) {
		t.Fatalf("expected 1 got %s", got)
	}
}

func TestFromPreferencesValidation(t *testing.T) {
	_, err := FromPreferences("bogus", nil)
	if !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for unknown type, got %v", err)
	}

	_, err = FromPreferences(enums.CalculatorFlatRate, map[string]any{"amount": "ten"})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := typed.Details().(map[string][]string)
	if !ok || len(details["amount"]) == 0 {
		t.Fatalf("expected amount field error, got %#v", typed.Details())
	}

	_, err = FromPreferences(enums.CalculatorFlexiRate, map[string]any{"max_items": "1.5"})
	if !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for fractional max_items, got %v", err)
	}
}

func TestPerItemClassification(t *testing.T) {
	for _, c := range []enums.CalculatorType{enums.CalculatorFlatRate, enums.CalculatorFlexiRate, enums.CalculatorPriceSack} {
		if c.IsPerItem() {
			t.Fatalf("%s should be per order", c)
		}
	}
	for _, c := range []enums.CalculatorType{enums.CalculatorFlatPercentItemTotal, enums.CalculatorFlatPercentPerItem, enums.CalculatorPerItem, enums.CalculatorWeight} {
		if !c.IsPerItem() {
			t.Fatalf("%s should be per item", c)
		}
	}
}
