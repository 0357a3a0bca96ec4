package enums

import "fmt"

// FeeType classifies an enterprise fee for labels and reporting.
type FeeType string

const (
	FeeTypeAdmin       FeeType = "admin"
	FeeTypePacking     FeeType = "packing"
	FeeTypeTransport   FeeType = "transport"
	FeeTypeFundraising FeeType = "fundraising"
	FeeTypeSales       FeeType = "sales"
)

var validFeeTypes = []FeeType{
	FeeTypeAdmin,
	FeeTypePacking,
	FeeTypeTransport,
	FeeTypeFundraising,
	FeeTypeSales,
}

// String implements fmt.Stringer.
func (f FeeType) String() string {
	return string(f)
}

// IsValid reports whether the value is a known FeeType.
func (f FeeType) IsValid() bool {
	for _, candidate := range validFeeTypes {
		if candidate == f {
			return true
		}
	}
	return false
}

// ParseFeeType converts raw input into a FeeType.
func ParseFeeType(value string) (FeeType, error) {
	for _, candidate := range validFeeTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid fee type %q", value)
}

// FeeRole is the position in the supply chain a fee is charged from.
type FeeRole string

const (
	FeeRoleSupplier    FeeRole = "supplier"
	FeeRoleDistributor FeeRole = "distributor"
	FeeRoleCoordinator FeeRole = "coordinator"
)

// String implements fmt.Stringer.
func (r FeeRole) String() string {
	return string(r)
}

// CalculatorType names a persisted fee calculator.
type CalculatorType string

const (
	CalculatorFlatRate             CalculatorType = "flat_rate"
	CalculatorFlexiRate            CalculatorType = "flexi_rate"
	CalculatorPriceSack            CalculatorType = "price_sack"
	CalculatorFlatPercentItemTotal CalculatorType = "flat_percent_item_total"
	CalculatorFlatPercentPerItem   CalculatorType = "flat_percent_per_item"
	CalculatorPerItem              CalculatorType = "per_item"
	CalculatorWeight               CalculatorType = "weight"
)

var validCalculatorTypes = []CalculatorType{
	CalculatorFlatRate,
	CalculatorFlexiRate,
	CalculatorPriceSack,
	CalculatorFlatPercentItemTotal,
	CalculatorFlatPercentPerItem,
	CalculatorPerItem,
	CalculatorWeight,
}

// String implements fmt.Stringer.
func (c CalculatorType) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CalculatorType.
func (c CalculatorType) IsValid() bool {
	for _, candidate := range validCalculatorTypes {
		if candidate == c {
			return true
		}
	}
	return false
}

// IsPerItem reports whether fees using this calculator are charged per line item
// rather than once per order.
func (c CalculatorType) IsPerItem() bool {
	switch c {
	case CalculatorFlatPercentItemTotal, CalculatorFlatPercentPerItem, CalculatorPerItem, CalculatorWeight:
		return true
	}
	return false
}

// ParseCalculatorType converts raw input into a CalculatorType.
func ParseCalculatorType(value string) (CalculatorType, error) {
	for _, candidate := range validCalculatorTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid calculator type %q", value)
}
