package enums

import "fmt"

// ImportEntryStatus classifies a validated import row.
type ImportEntryStatus string

const (
	ImportNewProduct            ImportEntryStatus = "new_product"
	ImportNewVariant            ImportEntryStatus = "new_variant"
	ImportExistingVariant       ImportEntryStatus = "existing_variant"
	ImportNewInventoryItem      ImportEntryStatus = "new_inventory_item"
	ImportExistingInventoryItem ImportEntryStatus = "existing_inventory_item"
	ImportInvalid               ImportEntryStatus = "invalid"
)

// String implements fmt.Stringer.
func (s ImportEntryStatus) String() string {
	return string(s)
}

// ImportTarget selects whether rows describe catalog products or hub inventory.
type ImportTarget string

const (
	ImportTargetProductList ImportTarget = "product_list"
	ImportTargetInventories ImportTarget = "inventories"
)

// ParseImportTarget converts raw input into an ImportTarget. Empty input means
// a product list import.
func ParseImportTarget(value string) (ImportTarget, error) {
	switch value {
	case "", string(ImportTargetProductList):
		return ImportTargetProductList, nil
	case string(ImportTargetInventories):
		return ImportTargetInventories, nil
	}
	return "", fmt.Errorf("invalid import target %q", value)
}

// ImportDefaultMode decides when a per-enterprise default replaces a row value.
type ImportDefaultMode string

const (
	ImportDefaultOverwriteAll   ImportDefaultMode = "overwrite_all"
	ImportDefaultOverwriteEmpty ImportDefaultMode = "overwrite_empty"
)

// IsValid reports whether the value is a known ImportDefaultMode.
func (m ImportDefaultMode) IsValid() bool {
	return m == ImportDefaultOverwriteAll || m == ImportDefaultOverwriteEmpty
}
