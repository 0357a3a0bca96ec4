package enums

import "fmt"

// VariantUnit is the measurement family a product's variants are sold in.
type VariantUnit string

const (
	VariantUnitWeight VariantUnit = "weight"
	VariantUnitVolume VariantUnit = "volume"
	VariantUnitItems  VariantUnit = "items"
)

var validVariantUnits = []VariantUnit{
	VariantUnitWeight,
	VariantUnitVolume,
	VariantUnitItems,
}

// String implements fmt.Stringer.
func (u VariantUnit) String() string {
	return string(u)
}

// IsValid reports whether the value is a known VariantUnit.
func (u VariantUnit) IsValid() bool {
	for _, candidate := range validVariantUnits {
		if candidate == u {
			return true
		}
	}
	return false
}

// ParseVariantUnit converts raw input into a VariantUnit.
func ParseVariantUnit(value string) (VariantUnit, error) {
	for _, candidate := range validVariantUnits {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid variant unit %q", value)
}
