package productimport

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/openfoodnetwork/ofn-backend/pkg/enums"
	pkgerrors "github.com/openfoodnetwork/ofn-backend/pkg/errors"
)

// Fields a per-enterprise default may set.
const (
	DefaultOnHand           = ColOnHand
	DefaultTaxCategory      = ColTaxCategory
	DefaultShippingCategory = ColShippingCategory
	DefaultAvailableOn      = ColAvailableOn
)

// Settings steer one import run.
type Settings struct {
	ImportInto  enums.ImportTarget
	Enterprises map[uuid.UUID]EnterpriseSettings
}

// EnterpriseSettings apply to rows whose supplier (or hub, for inventory
// imports) is the keyed enterprise.
type EnterpriseSettings struct {
	ResetAllAbsent bool
	Defaults       map[string]Default
}

// Default forces or fills one column. Value uses the CSV cell format; tax and
// shipping categories are given by name.
type Default struct {
	Mode  enums.ImportDefaultMode
	Value string
}

func (s Settings) target() enums.ImportTarget {
	if s.ImportInto == "" {
		return enums.ImportTargetProductList
	}
	return s.ImportInto
}

func (s Settings) forEnterprise(id uuid.UUID) EnterpriseSettings {
	return s.Enterprises[id]
}

// Validate rejects unknown fields and modes and unparseable values.
func (s Settings) Validate() error {
	errs := pkgerrors.FieldErrors{}
	if s.ImportInto != "" && s.ImportInto != enums.ImportTargetProductList && s.ImportInto != enums.ImportTargetInventories {
		errs.Add("import_into", "must be product_list or inventories")
	}
	for enterpriseID, es := range s.Enterprises {
		for field, d := range es.Defaults {
			key := fmt.Sprintf("settings.%s.defaults.%s", enterpriseID, field)
			if !d.Mode.IsValid() {
				errs.Add(key, "mode must be overwrite_all or overwrite_empty")
			}
			switch field {
			case DefaultOnHand:
				if _, err := strconv.Atoi(d.Value); err != nil {
					errs.Add(key, "must be a whole number")
				}
			case DefaultAvailableOn:
				if _, err := parseDate(d.Value); err != nil {
					errs.Add(key, "must be a date (YYYY-MM-DD)")
				}
			case DefaultTaxCategory, DefaultShippingCategory:
			default:
				errs.Add(key, "field cannot be defaulted")
			}
		}
	}
	if errs.Empty() {
		return nil
	}
	return errs.Err("invalid import settings")
}

// applyDefaults overwrites or fills the entry's defaultable columns. Category
// names are resolved by the caller afterwards.
func applyDefaults(e *Entry, defaults map[string]Default) {
	for field, d := range defaults {
		switch field {
		case DefaultOnHand:
			if d.Mode == enums.ImportDefaultOverwriteAll || e.OnHand == nil {
				if n, err := strconv.Atoi(d.Value); err == nil {
					e.OnHand = &n
				}
			}
		case DefaultTaxCategory:
			if d.Mode == enums.ImportDefaultOverwriteAll || e.TaxCategory == "" {
				e.TaxCategory = d.Value
			}
		case DefaultShippingCategory:
			if d.Mode == enums.ImportDefaultOverwriteAll || e.ShippingCategory == "" {
				e.ShippingCategory = d.Value
			}
		case DefaultAvailableOn:
			if d.Mode == enums.ImportDefaultOverwriteAll || e.AvailableOn == nil {
				if at, err := parseDate(d.Value); err == nil {
					e.AvailableOn = &at
				}
			}
		}
	}
}
