package fees

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/openfoodnetwork/ofn-backend/internal/calculator"
	"github.com/openfoodnetwork/ofn-backend/internal/ordercycles"
	"github.com/openfoodnetwork/ofn-backend/pkg/db/models"
	"github.com/openfoodnetwork/ofn-backend/pkg/enums"
	pkgerrors "github.com/openfoodnetwork/ofn-backend/pkg/errors"
	"github.com/openfoodnetwork/ofn-backend/pkg/logger"
)

// CannotSupplyMessage is shown when the chosen distributor and order cycle do
// not carry every product in the cart.
const CannotSupplyMessage = ordercycles.CannotSupplyMessage

type repository interface {
	TaxCategoriesTx(tx *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]*models.TaxCategory, error)
	DeleteForOrderTx(tx *gorm.DB, orderID uuid.UUID) (int64, error)
	DeleteForLineItemTx(tx *gorm.DB, lineItemID uuid.UUID) (int64, error)
	CreateTx(tx *gorm.DB, adjustments []models.Adjustment) error
}

// Service creates enterprise fee adjustments. Callers pass the order cycle
// loaded with its exchange graph and the order with line items, variants and
// products.
type Service interface {
	CreateLineItemAdjustments(ctx context.Context, tx *gorm.DB, oc models.OrderCycle, order models.Order, item models.LineItem) ([]models.Adjustment, error)
	CreateOrderAdjustments(ctx context.Context, tx *gorm.DB, oc models.OrderCycle, order models.Order) ([]models.Adjustment, error)
	RecalculateFees(ctx context.Context, tx *gorm.DB, oc models.OrderCycle, order models.Order) ([]models.Adjustment, error)
}

type service struct {
	repo repository
	logg *logger.Logger
}

func NewService(repo repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("fee adjustment repository required")
	}
	return &service{repo: repo, logg: logg}, nil
}

// EnsureSupply fails with a validation error unless the distributor sells
// through the cycle and every variant reaches it.
func EnsureSupply(oc models.OrderCycle, distributorID uuid.UUID, variantIDs []uuid.UUID) error {
	return ordercycles.EnsureSupply(oc, distributorID, variantIDs)
}

func (s *service) CreateLineItemAdjustments(ctx context.Context, tx *gorm.DB, oc models.OrderCycle, order models.Order, item models.LineItem) ([]models.Adjustment, error) {
	if order.DistributorID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, CannotSupplyMessage)
	}
	if item.Variant == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "line item variant not loaded")
	}
	if _, err := s.repo.DeleteForLineItemTx(tx, item.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear line item fees")
	}

	applicators := PerItemApplicatorsFor(oc, *item.Variant, *order.DistributorID)
	categories, err := s.taxCategories(tx, applicators)
	if err != nil {
		return nil, err
	}

	weight := decimal.Zero
	if item.Variant.WeightKg != nil {
		weight = *item.Variant.WeightKg
	}
	computable := calculator.LineItem(item.Price, item.Quantity, weight)

	adjustments := make([]models.Adjustment, 0, len(applicators))
	for _, a := range applicators {
		adj, err := s.build(a, computable, categories)
		if err != nil {
			return nil, err
		}
		adj.OrderID = order.ID
		adj.AdjustableType = enums.AdjustableLineItem
		adj.AdjustableID = item.ID
		adjustments = append(adjustments, adj)
	}
	if err := s.repo.CreateTx(tx, adjustments); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create line item fees")
	}
	return adjustments, nil
}

func (s *service) CreateOrderAdjustments(ctx context.Context, tx *gorm.DB, oc models.OrderCycle, order models.Order) ([]models.Adjustment, error) {
	applicators := PerOrderApplicatorsFor(oc, order)
	categories, err := s.taxCategories(tx, applicators)
	if err != nil {
		return nil, err
	}

	computable := orderComputable(order)
	adjustments := make([]models.Adjustment, 0, len(applicators))
	for _, a := range applicators {
		adj, err := s.build(a, computable, categories)
		if err != nil {
			return nil, err
		}
		adj.OrderID = order.ID
		adj.AdjustableType = enums.AdjustableOrder
		adj.AdjustableID = order.ID
		adjustments = append(adjustments, adj)
	}
	if err := s.repo.CreateTx(tx, adjustments); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order fees")
	}
	return adjustments, nil
}

// RecalculateFees drops every enterprise fee adjustment of the order and
// rebuilds them from the cycle's current fees.
func (s *service) RecalculateFees(ctx context.Context, tx *gorm.DB, oc models.OrderCycle, order models.Order) ([]models.Adjustment, error) {
	if order.DistributorID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, CannotSupplyMessage)
	}
	if err := EnsureSupply(oc, *order.DistributorID, order.VariantIDs()); err != nil {
		return nil, err
	}

	removed, err := s.repo.DeleteForOrderTx(tx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear order fees")
	}

	all := make([]models.Adjustment, 0)
	for _, item := range order.LineItems {
		created, err := s.CreateLineItemAdjustments(ctx, tx, oc, order, item)
		if err != nil {
			return nil, err
		}
		all = append(all, created...)
	}
	created, err := s.CreateOrderAdjustments(ctx, tx, oc, order)
	if err != nil {
		return nil, err
	}
	all = append(all, created...)

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id":       order.ID.String(),
			"order_cycle_id": oc.ID.String(),
			"removed":        removed,
			"created":        len(all),
		})
		s.logg.Debug(logCtx, "enterprise fees recalculated")
	}
	return all, nil
}

func (s *service) build(a Applicator, c calculator.Computable, categories map[uuid.UUID]*models.TaxCategory) (models.Adjustment, error) {
	amount, err := a.Amount(c)
	if err != nil {
		return models.Adjustment{}, err
	}
	var category *models.TaxCategory
	if id := taxCategoryID(a); id != nil {
		category = categories[*id]
	}
	included, additional := Tax(amount, category)
	return models.Adjustment{
		OriginatorType: enums.OriginatorEnterpriseFee,
		OriginatorID:   a.Fee.ID,
		Amount:         amount,
		IncludedTax:    included,
		AdditionalTax:  additional,
		Label:          a.Label(),
		Mandatory:      true,
		State:          enums.AdjustmentClosed,
	}, nil
}

func (s *service) taxCategories(tx *gorm.DB, applicators []Applicator) (map[uuid.UUID]*models.TaxCategory, error) {
	ids := make([]uuid.UUID, 0, len(applicators))
	seen := map[uuid.UUID]bool{}
	for _, a := range applicators {
		if id := taxCategoryID(a); id != nil && !seen[*id] {
			seen[*id] = true
			ids = append(ids, *id)
		}
	}
	categories, err := s.repo.TaxCategoriesTx(tx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tax categories")
	}
	return categories, nil
}

// taxCategoryID is the fee's own category, or the product's when the fee
// inherits it. Per-order fees have no product to inherit from.
func taxCategoryID(a Applicator) *uuid.UUID {
	if !a.Fee.InheritsTaxCategory {
		return a.Fee.TaxCategoryID
	}
	if a.Variant == nil || a.Variant.Product == nil {
		return nil
	}
	return a.Variant.Product.TaxCategoryID
}

func orderComputable(order models.Order) calculator.Computable {
	itemTotal := decimal.Zero
	weight := decimal.Zero
	quantity := 0
	for _, li := range order.LineItems {
		itemTotal = itemTotal.Add(li.Amount())
		quantity += li.Quantity
		if li.Variant != nil && li.Variant.WeightKg != nil {
			weight = weight.Add(li.Variant.WeightKg.Mul(decimal.NewFromInt(int64(li.Quantity))))
		}
	}
	return calculator.Order(itemTotal, quantity, weight)
}
