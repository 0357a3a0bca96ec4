package ordercycles

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/openfoodnetwork/ofn-backend/internal/calculator"
	"github.com/openfoodnetwork/ofn-backend/internal/productscache/invalidation"
	"github.com/openfoodnetwork/ofn-backend/pkg/db"
	"github.com/openfoodnetwork/ofn-backend/pkg/db/models"
	dbtypes "github.com/openfoodnetwork/ofn-backend/pkg/db/types"
	"github.com/openfoodnetwork/ofn-backend/pkg/enums"
	pkgerrors "github.com/openfoodnetwork/ofn-backend/pkg/errors"
	"github.com/openfoodnetwork/ofn-backend/pkg/logger"
	"github.com/openfoodnetwork/ofn-backend/pkg/pagination"
)

const exchangePairIndex = "idx_exchanges_order_cycle_sender_receiver"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.OrderCycle, error)
	CreateTx(tx *gorm.DB, oc *models.OrderCycle) error
	ReplaceTx(tx *gorm.DB, oc *models.OrderCycle) error
	List(ctx context.Context, coordinatorIDs []uuid.UUID) ([]models.OrderCycle, error)
	ExistingEnterprises(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error)
	ExistingFees(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error)
	VariantSuppliers(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]uuid.UUID, error)
	ExchangeVariants(ctx context.Context, exchangeID uuid.UUID, params pagination.Params) ([]models.Variant, *pagination.Cursor, error)
	FindVariant(ctx context.Context, id uuid.UUID) (*models.Variant, error)
}

type permissionChecker interface {
	Manages(ctx context.Context, userID, enterpriseID uuid.UUID) (bool, error)
	ManagedEnterpriseIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error)
}

// pricer resolves a hub's override price for a variant, nil when none applies.
type pricer interface {
	PriceFor(ctx context.Context, hubID, variantID uuid.UUID) (*decimal.Decimal, error)
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, tx *gorm.DB, source invalidation.Source, scope invalidation.Scope, reason string) error
}

// Service manages order cycles and answers fee questions about them.
type Service interface {
	Create(ctx context.Context, userID uuid.UUID, input Input) (*models.OrderCycle, error)
	Update(ctx context.Context, userID, id uuid.UUID, input Input) (*models.OrderCycle, error)
	Get(ctx context.Context, id uuid.UUID) (*models.OrderCycle, error)
	List(ctx context.Context, userID uuid.UUID) ([]models.OrderCycle, error)
	Clone(ctx context.Context, userID, id uuid.UUID) (*models.OrderCycle, error)
	FeesFor(ctx context.Context, orderCycleID, variantID, distributorID uuid.UUID) (decimal.Decimal, error)
	FeesByTypeFor(ctx context.Context, orderCycleID, variantID, distributorID uuid.UUID) (FeesByType, error)
	ExchangeProducts(ctx context.Context, orderCycleID, exchangeID uuid.UUID, params pagination.Params) (ExchangeProductsPage, error)
}

type service struct {
	repo        repository
	tx          txRunner
	permissions permissionChecker
	prices      pricer
	cache       cacheInvalidator
	logg        *logger.Logger
}

func NewService(repo repository, tx txRunner, permissions permissionChecker, prices pricer, cache cacheInvalidator, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("order cycle repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if permissions == nil {
		return nil, fmt.Errorf("permission checker required")
	}
	if prices == nil {
		return nil, fmt.Errorf("variant override pricer required")
	}
	if cache == nil {
		return nil, fmt.Errorf("cache invalidator required")
	}
	return &service{repo: repo, tx: tx, permissions: permissions, prices: prices, cache: cache, logg: logg}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.OrderCycle, error) {
	oc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order cycle")
	}
	if oc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order cycle not found")
	}
	return oc, nil
}

// List returns the cycles coordinated by enterprises the user manages. Admins see every cycle.
func (s *service) List(ctx context.Context, userID uuid.UUID) ([]models.OrderCycle, error) {
	admin, err := s.permissions.IsAdmin(ctx, userID)
	if err != nil {
		return nil, err
	}
	var coordinators []uuid.UUID
	if !admin {
		if coordinators, err = s.permissions.ManagedEnterpriseIDs(ctx, userID); err != nil {
			return nil, err
		}
		if coordinators == nil {
			coordinators = []uuid.UUID{}
		}
	}
	cycles, err := s.repo.List(ctx, coordinators)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list order cycles")
	}
	return cycles, nil
}

func (s *service) Create(ctx context.Context, userID uuid.UUID, input Input) (*models.OrderCycle, error) {
	if err := s.validate(ctx, input); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, userID, input.CoordinatorID); err != nil {
		return nil, err
	}

	oc := build(input)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.CreateTx(tx, &oc); err != nil {
			return mapWriteError(err, "create order cycle")
		}
		return s.invalidate(ctx, tx, oc.ID, invalidation.ReasonOrderCycleChanged)
	})
	if err != nil {
		return nil, err
	}
	s.logMutation(ctx, "order cycle created", oc.ID, userID)
	return s.Get(ctx, oc.ID)
}

// Update replaces the cycle's settings, exchanges and coordinator fees.
func (s *service) Update(ctx context.Context, userID, id uuid.UUID, input Input) (*models.OrderCycle, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.validate(ctx, input); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, userID, current.CoordinatorID); err != nil {
		return nil, err
	}
	if input.CoordinatorID != current.CoordinatorID {
		if err := s.authorize(ctx, userID, input.CoordinatorID); err != nil {
			return nil, err
		}
	}

	oc := build(input)
	oc.ID = id
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.ReplaceTx(tx, &oc); err != nil {
			return mapWriteError(err, "update order cycle")
		}
		return s.invalidate(ctx, tx, id, invalidation.ReasonOrderCycleChanged)
	})
	if err != nil {
		return nil, err
	}
	s.logMutation(ctx, "order cycle updated", id, userID)
	return s.Get(ctx, id)
}

// Clone copies a cycle as "COPY OF <name>" with the same coordinator, fees and
// exchanges. The copy is undated.
func (s *service) Clone(ctx context.Context, userID, id uuid.UUID) (*models.OrderCycle, error) {
	src, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, userID, src.CoordinatorID); err != nil {
		return nil, err
	}

	clone := models.OrderCycle{
		Name:          "COPY OF " + src.Name,
		CoordinatorID: src.CoordinatorID,
	}
	for _, cf := range sortedCoordinatorFees(src.CoordinatorFees) {
		clone.CoordinatorFees = append(clone.CoordinatorFees, models.CoordinatorFee{
			EnterpriseFeeID: cf.EnterpriseFeeID,
			Position:        cf.Position,
		})
	}
	for _, ex := range src.Exchanges {
		copied := models.Exchange{
			SenderID:             ex.SenderID,
			ReceiverID:           ex.ReceiverID,
			Incoming:             ex.Incoming,
			PickupTime:           ex.PickupTime,
			PickupInstructions:   ex.PickupInstructions,
			ReceivalInstructions: ex.ReceivalInstructions,
			TagList:              append(dbtypes.TagList(nil), ex.TagList...),
		}
		for _, ev := range ex.Variants {
			copied.Variants = append(copied.Variants, models.ExchangeVariant{VariantID: ev.VariantID})
		}
		for _, ef := range sortedExchangeFees(ex.Fees) {
			copied.Fees = append(copied.Fees, models.ExchangeFee{EnterpriseFeeID: ef.EnterpriseFeeID, Position: ef.Position})
		}
		clone.Exchanges = append(clone.Exchanges, copied)
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.CreateTx(tx, &clone); err != nil {
			return mapWriteError(err, "clone order cycle")
		}
		return s.invalidate(ctx, tx, clone.ID, invalidation.ReasonOrderCycleChanged)
	})
	if err != nil {
		return nil, err
	}
	s.logMutation(ctx, "order cycle cloned", clone.ID, userID)
	return s.Get(ctx, clone.ID)
}

// FeesFor sums the per-item fees charged on one unit of the variant sold by
// the distributor, priced at the distributor's override price when one exists.
func (s *service) FeesFor(ctx context.Context, orderCycleID, variantID, distributorID uuid.UUID) (decimal.Decimal, error) {
	byType, err := s.FeesByTypeFor(ctx, orderCycleID, variantID, distributorID)
	if err != nil {
		return decimal.Zero, err
	}
	return byType.Total(), nil
}

func (s *service) FeesByTypeFor(ctx context.Context, orderCycleID, variantID, distributorID uuid.UUID) (FeesByType, error) {
	oc, err := s.Get(ctx, orderCycleID)
	if err != nil {
		return nil, err
	}
	if err := EnsureSupply(*oc, distributorID, []uuid.UUID{variantID}); err != nil {
		return nil, err
	}
	variant, err := s.repo.FindVariant(ctx, variantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variant")
	}
	if variant == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
	}

	price := variant.Price
	override, err := s.prices.PriceFor(ctx, distributorID, variantID)
	if err != nil {
		return nil, err
	}
	if override != nil {
		price = *override
	}
	weight := decimal.Zero
	if variant.WeightKg != nil {
		weight = *variant.WeightKg
	}

	return FeesByTypeForItem(*oc, variantID, distributorID, calculator.LineItem(price, 1, weight))
}

// FeesByTypeForItem prices the per-item fee chain against a computable line item.
func FeesByTypeForItem(oc models.OrderCycle, variantID, distributorID uuid.UUID, item calculator.Computable) (FeesByType, error) {
	out := FeesByType{}
	for _, link := range PerItemFeeChain(oc, variantID, distributorID) {
		calc, err := calculator.ForFee(link.Fee)
		if err != nil {
			return nil, err
		}
		out[link.Fee.FeeType] = out[link.Fee.FeeType].Add(calc.Compute(item))
	}
	return out, nil
}

func (s *service) ExchangeProducts(ctx context.Context, orderCycleID, exchangeID uuid.UUID, params pagination.Params) (ExchangeProductsPage, error) {
	oc, err := s.Get(ctx, orderCycleID)
	if err != nil {
		return ExchangeProductsPage{}, err
	}
	found := false
	for _, ex := range oc.Exchanges {
		if ex.ID == exchangeID {
			found = true
			break
		}
	}
	if !found {
		return ExchangeProductsPage{}, pkgerrors.New(pkgerrors.CodeNotFound, "exchange not found")
	}

	variants, next, err := s.repo.ExchangeVariants(ctx, exchangeID, params)
	if err != nil {
		return ExchangeProductsPage{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "list exchange products")
	}
	page := ExchangeProductsPage{Variants: variants}
	if page.Variants == nil {
		page.Variants = []models.Variant{}
	}
	if next != nil {
		page.NextCursor = pagination.EncodeCursor(*next)
	}
	return page, nil
}

func (s *service) authorize(ctx context.Context, userID, coordinatorID uuid.UUID) error {
	ok, err := s.permissions.Manages(ctx, userID, coordinatorID)
	if err != nil {
		return err
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeForbidden, "unauthorised")
	}
	return nil
}

func (s *service) validate(ctx context.Context, input Input) error {
	fieldErrs := pkgerrors.FieldErrors{}
	if strings.TrimSpace(input.Name) == "" {
		fieldErrs.Add("name", "can't be blank")
	}
	if input.CoordinatorID == uuid.Nil {
		fieldErrs.Add("coordinator_id", "can't be blank")
	}
	if input.OrdersOpenAt != nil && input.OrdersCloseAt != nil && input.OrdersCloseAt.Before(*input.OrdersOpenAt) {
		fieldErrs.Add("orders_close_at", "must be after orders open")
	}

	enterpriseIDs := []uuid.UUID{input.CoordinatorID}
	feeIDs := append([]uuid.UUID(nil), input.CoordinatorFeeIDs...)
	variantIDs := []uuid.UUID{}
	supplied := map[uuid.UUID][]uuid.UUID{}
	pairs := map[[2]uuid.UUID]bool{}
	for i, ex := range input.Exchanges {
		prefix := fmt.Sprintf("exchanges[%d].", i)
		if ex.SenderID == uuid.Nil {
			fieldErrs.Add(prefix+"sender_id", "can't be blank")
		}
		if ex.ReceiverID == uuid.Nil {
			fieldErrs.Add(prefix+"receiver_id", "can't be blank")
		}
		if ex.Incoming && ex.ReceiverID != input.CoordinatorID {
			fieldErrs.Add(prefix+"receiver_id", "must be the coordinator for incoming exchanges")
		}
		if !ex.Incoming && ex.SenderID != input.CoordinatorID {
			fieldErrs.Add(prefix+"sender_id", "must be the coordinator for outgoing exchanges")
		}
		pair := [2]uuid.UUID{ex.SenderID, ex.ReceiverID}
		if pairs[pair] {
			fieldErrs.Add(prefix+"receiver_id", "has already been taken")
		}
		pairs[pair] = true

		enterpriseIDs = append(enterpriseIDs, ex.SenderID, ex.ReceiverID)
		feeIDs = append(feeIDs, ex.EnterpriseFeeIDs...)
		variantIDs = append(variantIDs, ex.VariantIDs...)
		if ex.Incoming {
			supplied[ex.SenderID] = append(supplied[ex.SenderID], ex.VariantIDs...)
		}
	}

	suppliers, err := s.checkExisting(ctx, fieldErrs, enterpriseIDs, feeIDs, variantIDs)
	if err != nil {
		return err
	}
	for senderID, ids := range supplied {
		for _, id := range ids {
			if supplierID, ok := suppliers[id]; ok && supplierID != senderID {
				fieldErrs.Add("variants", fmt.Sprintf("variant %s is not supplied by %s", id, senderID))
			}
		}
	}
	if !fieldErrs.Empty() {
		return fieldErrs.Err("invalid order cycle")
	}
	return nil
}

// checkExisting flags unknown references and returns the supplier of each known variant.
func (s *service) checkExisting(ctx context.Context, fieldErrs pkgerrors.FieldErrors, enterpriseIDs, feeIDs, variantIDs []uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	enterprises, err := s.repo.ExistingEnterprises(ctx, nonNil(enterpriseIDs))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load enterprises")
	}
	for _, id := range nonNil(enterpriseIDs) {
		if !enterprises[id] {
			fieldErrs.Add("enterprises", fmt.Sprintf("enterprise %s does not exist", id))
		}
	}
	fees, err := s.repo.ExistingFees(ctx, nonNil(feeIDs))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load enterprise fees")
	}
	for _, id := range nonNil(feeIDs) {
		if !fees[id] {
			fieldErrs.Add("enterprise_fees", fmt.Sprintf("enterprise fee %s does not exist", id))
		}
	}
	suppliers, err := s.repo.VariantSuppliers(ctx, nonNil(variantIDs))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variants")
	}
	for _, id := range nonNil(variantIDs) {
		if _, ok := suppliers[id]; !ok {
			fieldErrs.Add("variants", fmt.Sprintf("variant %s does not exist", id))
		}
	}
	return suppliers, nil
}

func (s *service) invalidate(ctx context.Context, tx *gorm.DB, id uuid.UUID, reason string) error {
	return s.cache.Invalidate(ctx, tx,
		invalidation.Source{Type: enums.AggregateOrderCycle, ID: id},
		invalidation.Scope{OrderCycleIDs: []uuid.UUID{id}},
		reason,
	)
}

func (s *service) logMutation(ctx context.Context, msg string, id, userID uuid.UUID) {
	if s.logg == nil {
		return
	}
	ctx = s.logg.WithUserID(s.logg.WithOrderCycleID(ctx, id.String()), userID.String())
	s.logg.Info(ctx, msg)
}

func build(input Input) models.OrderCycle {
	oc := models.OrderCycle{
		Name:          strings.TrimSpace(input.Name),
		OrdersOpenAt:  utc(input.OrdersOpenAt),
		OrdersCloseAt: utc(input.OrdersCloseAt),
		CoordinatorID: input.CoordinatorID,
	}
	for i, feeID := range input.CoordinatorFeeIDs {
		oc.CoordinatorFees = append(oc.CoordinatorFees, models.CoordinatorFee{EnterpriseFeeID: feeID, Position: i})
	}
	for _, in := range input.Exchanges {
		ex := models.Exchange{
			SenderID:             in.SenderID,
			ReceiverID:           in.ReceiverID,
			Incoming:             in.Incoming,
			PickupTime:           in.PickupTime,
			PickupInstructions:   in.PickupInstructions,
			ReceivalInstructions: in.ReceivalInstructions,
			TagList:              dbtypes.TagList(in.TagList),
		}
		seen := map[uuid.UUID]bool{}
		for _, variantID := range in.VariantIDs {
			if seen[variantID] {
				continue
			}
			seen[variantID] = true
			ex.Variants = append(ex.Variants, models.ExchangeVariant{VariantID: variantID})
		}
		for i, feeID := range in.EnterpriseFeeIDs {
			ex.Fees = append(ex.Fees, models.ExchangeFee{EnterpriseFeeID: feeID, Position: i})
		}
		oc.Exchanges = append(oc.Exchanges, ex)
	}
	return oc
}

func mapWriteError(err error, action string) error {
	if db.IsUniqueViolation(err, exchangePairIndex) {
		return pkgerrors.FieldErrors{"exchanges": {"sender and receiver pair has already been taken"}}.Err("invalid order cycle")
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func nonNil(ids []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id != uuid.Nil {
			out = appendUnique(out, id)
		}
	}
	return out
}
