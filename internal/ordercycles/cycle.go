package ordercycles

import (
	"sort"

	"github.com/google/uuid"

	"github.com/openfoodnetwork/ofn-backend/pkg/db/models"
	"github.com/openfoodnetwork/ofn-backend/pkg/enums"
	pkgerrors "github.com/openfoodnetwork/ofn-backend/pkg/errors"
)

// CannotSupplyMessage is shown when the chosen distributor and order cycle do
// not supply the requested variants.
const CannotSupplyMessage = "Distributor or order cycle cannot supply the products in your cart"

// Incoming returns the exchanges bringing supply to the coordinator. An
// exchange is incoming only when flagged so and received by the coordinator,
// which keeps a coordinator trading with itself from counting twice.
func Incoming(oc models.OrderCycle) []models.Exchange {
	out := make([]models.Exchange, 0, len(oc.Exchanges))
	for _, ex := range oc.Exchanges {
		if ex.Incoming && ex.ReceiverID == oc.CoordinatorID {
			out = append(out, ex)
		}
	}
	return out
}

// Outgoing returns the exchanges carrying supply from the coordinator to distributors.
func Outgoing(oc models.OrderCycle) []models.Exchange {
	out := make([]models.Exchange, 0, len(oc.Exchanges))
	for _, ex := range oc.Exchanges {
		if !ex.Incoming && ex.SenderID == oc.CoordinatorID {
			out = append(out, ex)
		}
	}
	return out
}

// Suppliers lists the distinct senders of incoming exchanges.
func Suppliers(oc models.OrderCycle) []uuid.UUID {
	ids := make([]uuid.UUID, 0)
	for _, ex := range Incoming(oc) {
		ids = appendUnique(ids, ex.SenderID)
	}
	return ids
}

// Distributors lists the distinct receivers of outgoing exchanges.
func Distributors(oc models.OrderCycle) []uuid.UUID {
	ids := make([]uuid.UUID, 0)
	for _, ex := range Outgoing(oc) {
		ids = appendUnique(ids, ex.ReceiverID)
	}
	return ids
}

// HasDistributor reports whether the enterprise receives an outgoing exchange.
func HasDistributor(oc models.OrderCycle, distributorID uuid.UUID) bool {
	for _, id := range Distributors(oc) {
		if id == distributorID {
			return true
		}
	}
	return false
}

// Variants lists every variant in any exchange.
func Variants(oc models.OrderCycle) []uuid.UUID {
	ids := make([]uuid.UUID, 0)
	for _, ex := range oc.Exchanges {
		for _, ev := range ex.Variants {
			ids = appendUnique(ids, ev.VariantID)
		}
	}
	return ids
}

// HasVariant reports whether any exchange carries the variant.
func HasVariant(oc models.OrderCycle, variantID uuid.UUID) bool {
	for _, ex := range oc.Exchanges {
		if ex.Carries(variantID) {
			return true
		}
	}
	return false
}

// VariantsDistributedBy lists the variants of the outgoing exchanges to the distributor.
func VariantsDistributedBy(oc models.OrderCycle, distributorID uuid.UUID) []uuid.UUID {
	ids := make([]uuid.UUID, 0)
	for _, ex := range Outgoing(oc) {
		if ex.ReceiverID != distributorID {
			continue
		}
		for _, ev := range ex.Variants {
			ids = appendUnique(ids, ev.VariantID)
		}
	}
	return ids
}

// Distributes reports whether the variant reaches the distributor in this cycle.
func Distributes(oc models.OrderCycle, distributorID, variantID uuid.UUID) bool {
	for _, ex := range Outgoing(oc) {
		if ex.ReceiverID == distributorID && ex.Carries(variantID) {
			return true
		}
	}
	return false
}

// EnsureSupply fails with a validation error unless the distributor sells
// through the cycle and receives every variant.
func EnsureSupply(oc models.OrderCycle, distributorID uuid.UUID, variantIDs []uuid.UUID) error {
	if !HasDistributor(oc, distributorID) {
		return pkgerrors.New(pkgerrors.CodeValidation, CannotSupplyMessage)
	}
	for _, id := range variantIDs {
		if !Distributes(oc, distributorID, id) {
			return pkgerrors.New(pkgerrors.CodeValidation, CannotSupplyMessage)
		}
	}
	return nil
}

// ExchangeFor returns the exchange between sender and receiver, or nil.
func ExchangeFor(oc models.OrderCycle, senderID, receiverID uuid.UUID) *models.Exchange {
	for i := range oc.Exchanges {
		if oc.Exchanges[i].SenderID == senderID && oc.Exchanges[i].ReceiverID == receiverID {
			return &oc.Exchanges[i]
		}
	}
	return nil
}

// FeeLink is one fee in the supply chain together with the role it is charged in.
type FeeLink struct {
	Fee  models.EnterpriseFee
	Role enums.FeeRole
}

// PerItemFeeChain returns the per-item fees charged on the variant when sold
// by the distributor: incoming exchanges carrying it, then the outgoing
// exchange to the distributor, then the coordinator. Positions are kept
// within each exchange.
func PerItemFeeChain(oc models.OrderCycle, variantID, distributorID uuid.UUID) []FeeLink {
	carries := func(ex models.Exchange) bool { return ex.Carries(variantID) }
	return feeChain(oc, distributorID, carries, true)
}

// PerOrderFeeChain returns the per-order fees of the exchanges carrying any of
// the order's variants to the distributor.
func PerOrderFeeChain(oc models.OrderCycle, variantIDs []uuid.UUID, distributorID uuid.UUID) []FeeLink {
	carries := func(ex models.Exchange) bool {
		for _, id := range variantIDs {
			if ex.Carries(id) {
				return true
			}
		}
		return false
	}
	return feeChain(oc, distributorID, carries, false)
}

func feeChain(oc models.OrderCycle, distributorID uuid.UUID, carries func(models.Exchange) bool, perItem bool) []FeeLink {
	links := make([]FeeLink, 0)
	add := func(fee *models.EnterpriseFee, role enums.FeeRole) {
		if fee == nil || fee.PerItem() != perItem {
			return
		}
		links = append(links, FeeLink{Fee: *fee, Role: role})
	}

	for _, ex := range Incoming(oc) {
		if !carries(ex) {
			continue
		}
		for _, ef := range sortedExchangeFees(ex.Fees) {
			add(ef.EnterpriseFee, enums.FeeRoleSupplier)
		}
	}
	for _, ex := range Outgoing(oc) {
		if ex.ReceiverID != distributorID || !carries(ex) {
			continue
		}
		for _, ef := range sortedExchangeFees(ex.Fees) {
			add(ef.EnterpriseFee, enums.FeeRoleDistributor)
		}
	}
	for _, cf := range sortedCoordinatorFees(oc.CoordinatorFees) {
		add(cf.EnterpriseFee, enums.FeeRoleCoordinator)
	}
	return links
}

func sortedExchangeFees(fees []models.ExchangeFee) []models.ExchangeFee {
	out := append([]models.ExchangeFee(nil), fees...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func sortedCoordinatorFees(fees []models.CoordinatorFee) []models.CoordinatorFee {
	out := append([]models.CoordinatorFee(nil), fees...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func appendUnique(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
