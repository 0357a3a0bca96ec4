package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/openfoodnetwork/ofn-backend/internal/fees"
	"github.com/openfoodnetwork/ofn-backend/internal/ordercycles"
	"github.com/openfoodnetwork/ofn-backend/pkg/config"
	"github.com/openfoodnetwork/ofn-backend/pkg/db/models"
	"github.com/openfoodnetwork/ofn-backend/pkg/enums"
	pkgerrors "github.com/openfoodnetwork/ofn-backend/pkg/errors"
	"github.com/openfoodnetwork/ofn-backend/pkg/logger"
	"github.com/openfoodnetwork/ofn-backend/pkg/outbox"
	"github.com/openfoodnetwork/ofn-backend/pkg/outbox/payloads"
)

// Service defines cart operations from distribution choice to completion.
type Service interface {
	CreateCart(ctx context.Context, userID *uuid.UUID) (*models.Order, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Order, error)
	SetDistribution(ctx context.Context, input SetDistributionInput) (*models.Order, error)
	AddVariant(ctx context.Context, input AddVariantInput) (*models.Order, error)
	Complete(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

// Deps bundles the collaborators of the order service.
type Deps struct {
	Repo        Repository
	Tx          txRunner
	OrderCycles orderCycleLoader
	Variants    variantLoader
	Stock       stockAdjuster
	Overrides   overrideResolver
	Fees        feeCalculator
	Outbox      outbox.Emitter
	Store       config.StoreConfig
	Logger      *logger.Logger
	Now         func() time.Time
}

type service struct {
	repo        Repository
	tx          txRunner
	orderCycles orderCycleLoader
	variants    variantLoader
	stock       stockAdjuster
	overrides   overrideResolver
	fees        feeCalculator
	outbox      outbox.Emitter
	store       config.StoreConfig
	logg        *logger.Logger
	now         func() time.Time
}

// NewService builds the order service.
func NewService(deps Deps) (Service, error) {
	switch {
	case deps.Repo == nil:
		return nil, fmt.Errorf("orders repository required")
	case deps.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case deps.OrderCycles == nil:
		return nil, fmt.Errorf("order cycle loader required")
	case deps.Variants == nil:
		return nil, fmt.Errorf("variant loader required")
	case deps.Stock == nil:
		return nil, fmt.Errorf("stock adjuster required")
	case deps.Overrides == nil:
		return nil, fmt.Errorf("variant override resolver required")
	case deps.Fees == nil:
		return nil, fmt.Errorf("fee calculator required")
	case deps.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:        deps.Repo,
		tx:          deps.Tx,
		orderCycles: deps.OrderCycles,
		variants:    deps.Variants,
		stock:       deps.Stock,
		overrides:   deps.Overrides,
		fees:        deps.Fees,
		outbox:      deps.Outbox,
		store:       deps.Store,
		logg:        deps.Logger,
		now:         now,
	}, nil
}

func (s *service) CreateCart(ctx context.Context, userID *uuid.UUID) (*models.Order, error) {
	order := models.Order{
		Number: newOrderNumber(),
		UserID: userID,
		State:  enums.OrderStateCart,
	}
	if err := s.repo.Create(ctx, &order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart")
	}
	return s.Get(ctx, order.ID)
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *service) cart(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.State != enums.OrderStateCart {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is no longer a cart")
	}
	return order, nil
}

func (s *service) orderCycle(ctx context.Context, id uuid.UUID) (*models.OrderCycle, error) {
	oc, err := s.orderCycles.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order cycle")
	}
	if oc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order cycle not found")
	}
	return oc, nil
}

// SetDistribution chooses where the cart is collected from. The pairing must
// supply every product already in the cart.
func (s *service) SetDistribution(ctx context.Context, input SetDistributionInput) (*models.Order, error) {
	order, err := s.cart(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	oc, err := s.orderCycle(ctx, input.OrderCycleID)
	if err != nil {
		return nil, err
	}
	if oc.Status(s.now()) != enums.OrderCycleOpen {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order cycle is not open")
	}
	if err := fees.EnsureSupply(*oc, input.DistributorID, order.VariantIDs()); err != nil {
		return nil, err
	}

	order.DistributorID = &input.DistributorID
	order.OrderCycleID = &input.OrderCycleID
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.UpdateDistribution(ctx, order.ID, input.DistributorID, input.OrderCycleID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update distribution")
		}
		return s.refresh(ctx, tx, *oc, order.ID)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, order.ID)
}

// AddVariant adds quantity units of the variant to the cart, priced at the
// distributor, and recalculates fees and totals.
func (s *service) AddVariant(ctx context.Context, input AddVariantInput) (*models.Order, error) {
	if input.Quantity <= 0 {
		return nil, pkgerrors.FieldErrors{"quantity": {"must be greater than 0"}}.Err("invalid line item")
	}
	order, err := s.cart(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if order.DistributorID == nil || order.OrderCycleID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "choose a distributor and order cycle first")
	}
	oc, err := s.orderCycle(ctx, *order.OrderCycleID)
	if err != nil {
		return nil, err
	}
	if oc.Status(s.now()) != enums.OrderCycleOpen {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order cycle is not open")
	}
	hubID := *order.DistributorID
	if !ordercycles.Distributes(*oc, hubID, input.VariantID) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fees.CannotSupplyMessage)
	}

	variant, err := s.variants.FindVariant(ctx, input.VariantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variant")
	}
	if variant == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
	}

	quantity := input.Quantity
	for _, li := range order.LineItems {
		if li.VariantID == input.VariantID {
			quantity += li.Quantity
		}
	}
	indexed, err := s.overrides.Indexed(ctx, hubID)
	if err != nil {
		return nil, err
	}
	override, hasOverride := indexed[input.VariantID]
	if err := s.checkStock(*variant, override, hasOverride, quantity); err != nil {
		return nil, err
	}
	price := variant.Price
	if hasOverride && override.Price != nil {
		price = *override.Price
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.repo.WithTx(tx).UpsertLineItem(ctx, order.ID, input.VariantID, quantity, price); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save line item")
		}
		return s.refresh(ctx, tx, *oc, order.ID)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, order.ID)
}

func (s *service) checkStock(variant models.Variant, override models.VariantOverride, hasOverride bool, quantity int) error {
	if s.store.AllowBackorders {
		return nil
	}
	available, onDemand := variant.OnHand, variant.OnDemand
	if hasOverride {
		if override.OnDemand != nil {
			onDemand = *override.OnDemand
		}
		if override.StockOverridden() {
			available = *override.CountOnHand
		}
	}
	if onDemand || quantity <= available {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "insufficient stock").
		WithDetails(map[string][]string{"quantity": {fmt.Sprintf("only %d available", available)}})
}

// Complete finalises the cart: decrements stock at the hub and queues the
// order_completed event. Override stock is best-effort and never blocks.
func (s *service) Complete(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.cart(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if len(order.LineItems) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cart is empty")
	}
	if order.DistributorID == nil || order.OrderCycleID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "choose a distributor and order cycle first")
	}
	oc, err := s.orderCycle(ctx, *order.OrderCycleID)
	if err != nil {
		return nil, err
	}
	if oc.Status(s.now()) != enums.OrderCycleOpen {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order cycle is not open")
	}
	hubID := *order.DistributorID
	if err := fees.EnsureSupply(*oc, hubID, order.VariantIDs()); err != nil {
		return nil, err
	}
	indexed, err := s.overrides.Indexed(ctx, hubID)
	if err != nil {
		return nil, err
	}

	completedAt := s.now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := s.repo.WithTx(tx).MarkComplete(ctx, order.ID, completedAt)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete order")
		}
		if n == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is no longer a cart")
		}

		for _, li := range order.LineItems {
			if vo, ok := indexed[li.VariantID]; ok && vo.StockOverridden() {
				s.overrides.DecrementStock(ctx, tx, hubID, li.VariantID, li.Quantity)
				continue
			}
			if li.Variant != nil && li.Variant.OnDemand {
				continue
			}
			if _, err := s.stock.AdjustOnHandTx(tx, li.VariantID, -li.Quantity); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement stock")
			}
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCompleted,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			OccurredAt:    completedAt,
			Data: payloads.OrderCompletedEvent{
				OrderID:       order.ID,
				Number:        order.Number,
				DistributorID: hubID,
				OrderCycleID:  oc.ID,
				Total:         order.Total,
				CompletedAt:   completedAt,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":       order.ID.String(),
		"order_number":   order.Number,
		"distributor_id": hubID.String(),
		"order_cycle_id": oc.ID.String(),
	})
	s.logg.Info(logCtx, "order completed")
	return s.Get(ctx, order.ID)
}

// refresh rebuilds fee adjustments and totals from the order's current lines.
func (s *service) refresh(ctx context.Context, tx *gorm.DB, oc models.OrderCycle, orderID uuid.UUID) error {
	repo := s.repo.WithTx(tx)
	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
	}
	if order == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	adjustments, err := s.fees.RecalculateFees(ctx, tx, oc, *order)
	if err != nil {
		return err
	}
	ApplyTotals(order, adjustments)
	if err := repo.UpdateTotals(ctx, order); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update totals")
	}
	return nil
}

// ApplyTotals sets the order totals from its line items and adjustments.
func ApplyTotals(order *models.Order, adjustments []models.Adjustment) {
	itemTotal := decimal.Zero
	for _, li := range order.LineItems {
		itemTotal = itemTotal.Add(li.Amount())
	}
	adjustmentTotal, included, additional := decimal.Zero, decimal.Zero, decimal.Zero
	for _, adj := range adjustments {
		adjustmentTotal = adjustmentTotal.Add(adj.Amount)
		included = included.Add(adj.IncludedTax)
		additional = additional.Add(adj.AdditionalTax)
	}
	order.ItemTotal = itemTotal
	order.AdjustmentTotal = adjustmentTotal
	order.IncludedTaxTotal = included
	order.AdditionalTaxTotal = additional
	order.Total = itemTotal.Add(adjustmentTotal).Add(additional)
}

func newOrderNumber() string {
	return "R" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}
