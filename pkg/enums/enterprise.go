package enums

import "fmt"

// EnterpriseSells describes what an enterprise may sell through its shopfront.
type EnterpriseSells string

const (
	EnterpriseSellsNone EnterpriseSells = "none"
	EnterpriseSellsOwn  EnterpriseSells = "own"
	EnterpriseSellsAny  EnterpriseSells = "any"
)

var validEnterpriseSells = []EnterpriseSells{
	EnterpriseSellsNone,
	EnterpriseSellsOwn,
	EnterpriseSellsAny,
}

// String implements fmt.Stringer.
func (s EnterpriseSells) String() string {
	return string(s)
}

// IsValid reports whether the value is a known EnterpriseSells.
func (s EnterpriseSells) IsValid() bool {
	for _, candidate := range validEnterpriseSells {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseEnterpriseSells converts raw input into EnterpriseSells.
func ParseEnterpriseSells(value string) (EnterpriseSells, error) {
	for _, candidate := range validEnterpriseSells {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid enterprise sells %q", value)
}

// EnterprisePermission names a permission granted along an enterprise relationship.
type EnterprisePermission string

const (
	PermissionAddToOrderCycle        EnterprisePermission = "add_to_order_cycle"
	PermissionManageProducts         EnterprisePermission = "manage_products"
	PermissionEditProfile            EnterprisePermission = "edit_profile"
	PermissionCreateVariantOverrides EnterprisePermission = "create_variant_overrides"
)

var validEnterprisePermissions = []EnterprisePermission{
	PermissionAddToOrderCycle,
	PermissionManageProducts,
	PermissionEditProfile,
	PermissionCreateVariantOverrides,
}

// String implements fmt.Stringer.
func (p EnterprisePermission) String() string {
	return string(p)
}

// IsValid reports whether the value is a known EnterprisePermission.
func (p EnterprisePermission) IsValid() bool {
	for _, candidate := range validEnterprisePermissions {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseEnterprisePermission converts raw input into EnterprisePermission.
func ParseEnterprisePermission(value string) (EnterprisePermission, error) {
	for _, candidate := range validEnterprisePermissions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid enterprise permission %q", value)
}
