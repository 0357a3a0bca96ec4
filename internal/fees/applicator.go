// Package fees turns the enterprise fees of an order cycle into persisted
// order and line item adjustments.
package fees

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openfoodnetwork/ofn-backend/internal/calculator"
	"github.com/openfoodnetwork/ofn-backend/internal/ordercycles"
	"github.com/openfoodnetwork/ofn-backend/pkg/db/models"
	"github.com/openfoodnetwork/ofn-backend/pkg/enums"
)

const wholeOrder = "Whole order"

// Applicator charges one enterprise fee in one role. Variant is nil for
// per-order fees.
type Applicator struct {
	Fee     models.EnterpriseFee
	Variant *models.Variant
	Role    enums.FeeRole
}

// Label reads "<product> - <fee_type> fee by <role> <enterprise>".
func (a Applicator) Label() string {
	subject := wholeOrder
	if a.Variant != nil {
		subject = ""
		if a.Variant.Product != nil {
			subject = a.Variant.Product.Name
		}
	}
	enterprise := ""
	if a.Fee.Enterprise != nil {
		enterprise = a.Fee.Enterprise.Name
	}
	return fmt.Sprintf("%s - %s fee by %s %s", subject, a.Fee.FeeType, a.Role, enterprise)
}

// Amount prices the fee against the computable.
func (a Applicator) Amount(c calculator.Computable) (decimal.Decimal, error) {
	calc, err := calculator.ForFee(a.Fee)
	if err != nil {
		return decimal.Zero, err
	}
	return calc.Compute(c), nil
}

// PerItemApplicatorsFor returns one applicator per per-item fee charged on
// the variant when the distributor sells it through the cycle.
func PerItemApplicatorsFor(oc models.OrderCycle, variant models.Variant, distributorID uuid.UUID) []Applicator {
	links := ordercycles.PerItemFeeChain(oc, variant.ID, distributorID)
	out := make([]Applicator, 0, len(links))
	for _, link := range links {
		v := variant
		out = append(out, Applicator{Fee: link.Fee, Variant: &v, Role: link.Role})
	}
	return out
}

// PerOrderApplicatorsFor returns one applicator per per-order fee of the
// exchanges carrying any of the order's variants.
func PerOrderApplicatorsFor(oc models.OrderCycle, order models.Order) []Applicator {
	if order.DistributorID == nil {
		return nil
	}
	links := ordercycles.PerOrderFeeChain(oc, order.VariantIDs(), *order.DistributorID)
	out := make([]Applicator, 0, len(links))
	for _, link := range links {
		out = append(out, Applicator{Fee: link.Fee, Role: link.Role})
	}
	return out
}
