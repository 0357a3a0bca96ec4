package variantoverrides

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/openfoodnetwork/ofn-backend/internal/productscache/invalidation"
	"github.com/openfoodnetwork/ofn-backend/pkg/db"
	"github.com/openfoodnetwork/ofn-backend/pkg/db/models"
	dbtypes "github.com/openfoodnetwork/ofn-backend/pkg/db/types"
	"github.com/openfoodnetwork/ofn-backend/pkg/enums"
	pkgerrors "github.com/openfoodnetwork/ofn-backend/pkg/errors"
	"github.com/openfoodnetwork/ofn-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type repository interface {
	FindActive(ctx context.Context, hubID, variantID uuid.UUID) (*models.VariantOverride, error)
	FindActiveTx(tx *gorm.DB, hubID, variantID uuid.UUID) (*models.VariantOverride, error)
	FindActiveByID(ctx context.Context, id uuid.UUID) (*models.VariantOverride, error)
	ListActiveByHubs(ctx context.Context, hubIDs []uuid.UUID) ([]models.VariantOverride, error)
	CreateTx(tx *gorm.DB, vo *models.VariantOverride) error
	SaveTx(tx *gorm.DB, vo *models.VariantOverride) error
	DeleteTx(tx *gorm.DB, id uuid.UUID) error
	AdjustStockTx(tx *gorm.DB, hubID, variantID uuid.UUID, delta int) (int64, error)
	ResetStockTx(tx *gorm.DB, id uuid.UUID) (int64, error)
	ResetStockForHubTx(tx *gorm.DB, hubID uuid.UUID) (int64, error)
	LoadVariant(ctx context.Context, variantID uuid.UUID) (*models.Variant, error)
}

type permissionChecker interface {
	Manages(ctx context.Context, userID, enterpriseID uuid.UUID) (bool, error)
	CanManageVariantOverride(ctx context.Context, userID, hubID, producerID uuid.UUID) (bool, error)
	VariantOverrideHubs(ctx context.Context, userID uuid.UUID) ([]models.Enterprise, error)
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, tx *gorm.DB, source invalidation.Source, scope invalidation.Scope, reason string) error
}

// Service resolves hub-level price and stock and manages overrides.
type Service interface {
	PriceFor(ctx context.Context, hubID, variantID uuid.UUID) (*decimal.Decimal, error)
	CountOnHandFor(ctx context.Context, hubID, variantID uuid.UUID) (*int, error)
	StockOverridden(ctx context.Context, hubID, variantID uuid.UUID) (bool, error)
	Indexed(ctx context.Context, hubID uuid.UUID) (map[uuid.UUID]models.VariantOverride, error)
	DecrementStock(ctx context.Context, tx *gorm.DB, hubID, variantID uuid.UUID, quantity int)
	IncrementStock(ctx context.Context, tx *gorm.DB, hubID, variantID uuid.UUID, quantity int)
	ResetStock(ctx context.Context, overrideID uuid.UUID) error
	ResetStockForHub(ctx context.Context, userID, hubID uuid.UUID) (int64, error)
	ListForUser(ctx context.Context, userID uuid.UUID, hubID *uuid.UUID) ([]models.VariantOverride, error)
	BulkUpsert(ctx context.Context, userID uuid.UUID, inputs []UpsertInput) ([]models.VariantOverride, error)
}

// UpsertInput is one row of a bulk override edit. A row with every override
// field empty deletes the active override.
type UpsertInput struct {
	HubID        uuid.UUID
	VariantID    uuid.UUID
	Price        *decimal.Decimal
	CountOnHand  *int
	OnDemand     *bool
	DefaultStock *int
	Resettable   bool
	SKU          *string
	TagList      []string
}

func (in UpsertInput) blank() bool {
	return in.Price == nil && in.CountOnHand == nil && in.OnDemand == nil &&
		in.DefaultStock == nil && in.SKU == nil && len(in.TagList) == 0
}

type service struct {
	repo        repository
	tx          txRunner
	permissions permissionChecker
	cache       cacheInvalidator
	logg        *logger.Logger
}

func NewService(repo repository, tx txRunner, permissions permissionChecker, cache cacheInvalidator, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("variant override repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if permissions == nil {
		return nil, fmt.Errorf("permission checker required")
	}
	if cache == nil {
		return nil, fmt.Errorf("cache invalidator required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, tx: tx, permissions: permissions, cache: cache, logg: logg}, nil
}

func (s *service) active(ctx context.Context, hubID, variantID uuid.UUID) (*models.VariantOverride, error) {
	vo, err := s.repo.FindActive(ctx, hubID, variantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variant override")
	}
	return vo, nil
}

// PriceFor returns the hub's override price, or nil when the variant price applies.
func (s *service) PriceFor(ctx context.Context, hubID, variantID uuid.UUID) (*decimal.Decimal, error) {
	vo, err := s.active(ctx, hubID, variantID)
	if err != nil || vo == nil {
		return nil, err
	}
	return vo.Price, nil
}

func (s *service) CountOnHandFor(ctx context.Context, hubID, variantID uuid.UUID) (*int, error) {
	vo, err := s.active(ctx, hubID, variantID)
	if err != nil || vo == nil {
		return nil, err
	}
	return vo.CountOnHand, nil
}

func (s *service) StockOverridden(ctx context.Context, hubID, variantID uuid.UUID) (bool, error) {
	vo, err := s.active(ctx, hubID, variantID)
	if err != nil || vo == nil {
		return false, err
	}
	return vo.StockOverridden(), nil
}

func (s *service) Indexed(ctx context.Context, hubID uuid.UUID) (map[uuid.UUID]models.VariantOverride, error) {
	rows, err := s.repo.ListActiveByHubs(ctx, []uuid.UUID{hubID})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list variant overrides")
	}
	out := make(map[uuid.UUID]models.VariantOverride, len(rows))
	for _, vo := range rows {
		out[vo.VariantID] = vo
	}
	return out, nil
}

// DecrementStock removes quantity from the hub's overridden stock. A missing
// stock-overriding row is logged, never surfaced to the caller.
func (s *service) DecrementStock(ctx context.Context, tx *gorm.DB, hubID, variantID uuid.UUID, quantity int) {
	s.adjustStock(ctx, tx, hubID, variantID, -quantity, "decrement")
}

func (s *service) IncrementStock(ctx context.Context, tx *gorm.DB, hubID, variantID uuid.UUID, quantity int) {
	s.adjustStock(ctx, tx, hubID, variantID, quantity, "increment")
}

func (s *service) adjustStock(ctx context.Context, tx *gorm.DB, hubID, variantID uuid.UUID, delta int, op string) {
	fields := map[string]any{
		"hub_id":     hubID.String(),
		"variant_id": variantID.String(),
		"delta":      delta,
	}
	run := func(tx *gorm.DB) error {
		affected, err := s.repo.AdjustStockTx(tx, hubID, variantID, delta)
		if err != nil {
			return err
		}
		if affected == 0 {
			return errNoStockOverride
		}
		return nil
	}
	var err error
	if tx != nil {
		err = run(tx)
	} else {
		err = s.tx.WithTx(ctx, run)
	}
	if err != nil {
		s.logg.Error(s.logg.WithFields(ctx, fields), "variant override stock "+op+" skipped", err)
	}
}

var errNoStockOverride = errors.New("attempting to change stock of a variant override with no stock level")

// ResetStock restores count_on_hand from default_stock. Overrides that are not
// resettable or carry no default are left untouched and logged. A revoked
// override counts as missing.
func (s *service) ResetStock(ctx context.Context, overrideID uuid.UUID) error {
	vo, err := s.repo.FindActiveByID(ctx, overrideID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variant override")
	}
	if vo == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "variant override not found")
	}
	if !vo.Resettable || vo.DefaultStock == nil {
		ctx = s.logg.WithField(ctx, "variant_override_id", vo.ID.String())
		s.logg.Error(ctx, "variant override reset skipped", errors.New("attempting to reset stock level for a variant with no default stock level"))
		return nil
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.repo.ResetStockTx(tx, vo.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reset variant override stock")
		}
		return s.invalidate(ctx, tx, vo.ID, []uuid.UUID{vo.HubID})
	})
}

func (s *service) ResetStockForHub(ctx context.Context, userID, hubID uuid.UUID) (int64, error) {
	ok, err := s.permissions.Manages(ctx, userID, hubID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, pkgerrors.New(pkgerrors.CodeForbidden, "unauthorised")
	}
	var reset int64
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := s.repo.ResetStockForHubTx(tx, hubID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reset hub stock")
		}
		reset = n
		if n == 0 {
			return nil
		}
		return s.invalidate(ctx, tx, hubID, []uuid.UUID{hubID})
	})
	return reset, err
}

// ListForUser lists active overrides of the hubs the user may override for,
// optionally narrowed to one hub.
func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, hubID *uuid.UUID) ([]models.VariantOverride, error) {
	hubs, err := s.permissions.VariantOverrideHubs(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(hubs))
	for _, hub := range hubs {
		if hubID != nil && hub.ID != *hubID {
			continue
		}
		ids = append(ids, hub.ID)
	}
	if hubID != nil && len(ids) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "unauthorised")
	}
	rows, err := s.repo.ListActiveByHubs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list variant overrides")
	}
	return rows, nil
}

// BulkUpsert applies every input in one transaction. Any invalid or
// unauthorised row rejects the whole batch.
func (s *service) BulkUpsert(ctx context.Context, userID uuid.UUID, inputs []UpsertInput) ([]models.VariantOverride, error) {
	if len(inputs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no variant overrides supplied")
	}
	if fieldErrs := validateInputs(inputs); !fieldErrs.Empty() {
		return nil, fieldErrs.Err("invalid variant overrides")
	}

	for _, in := range inputs {
		if err := s.authorizeUpsert(ctx, userID, in); err != nil {
			return nil, err
		}
	}

	saved := make([]models.VariantOverride, 0, len(inputs))
	hubs := make([]uuid.UUID, 0, len(inputs))
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		for _, in := range inputs {
			vo, err := s.upsertOne(tx, in)
			if err != nil {
				return err
			}
			if vo != nil {
				saved = append(saved, *vo)
			}
			hubs = append(hubs, in.HubID)
		}
		return s.invalidate(ctx, tx, hubs[0], hubs)
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *service) authorizeUpsert(ctx context.Context, userID uuid.UUID, in UpsertInput) error {
	variant, err := s.repo.LoadVariant(ctx, in.VariantID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variant")
	}
	if variant.Product == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	ok, err := s.permissions.CanManageVariantOverride(ctx, userID, in.HubID, variant.Product.SupplierID)
	if err != nil {
		return err
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeForbidden, "unauthorised")
	}
	return nil
}

func (s *service) upsertOne(tx *gorm.DB, in UpsertInput) (*models.VariantOverride, error) {
	existing, err := s.repo.FindActiveTx(tx, in.HubID, in.VariantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variant override")
	}
	if in.blank() {
		if existing != nil {
			if err := s.repo.DeleteTx(tx, existing.ID); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete variant override")
			}
		}
		return nil, nil
	}

	vo := existing
	if vo == nil {
		vo = &models.VariantOverride{HubID: in.HubID, VariantID: in.VariantID}
	}
	vo.Price = in.Price
	vo.CountOnHand = in.CountOnHand
	vo.OnDemand = in.OnDemand
	vo.DefaultStock = in.DefaultStock
	vo.Resettable = in.Resettable
	vo.SKU = in.SKU
	vo.TagList = dbtypes.TagList(in.TagList).Normalize()

	if existing == nil {
		err = s.repo.CreateTx(tx, vo)
	} else {
		err = s.repo.SaveTx(tx, vo)
	}
	if db.IsUniqueViolation(err, "idx_variant_overrides_active") {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "an active override already exists for this variant at this hub")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save variant override")
	}
	return vo, nil
}

func (s *service) invalidate(ctx context.Context, tx *gorm.DB, aggregateID uuid.UUID, hubIDs []uuid.UUID) error {
	err := s.cache.Invalidate(ctx, tx,
		invalidation.Source{Type: enums.AggregateVariantOverride, ID: aggregateID},
		invalidation.Scope{DistributorIDs: hubIDs},
		invalidation.ReasonVariantOverrideChanged,
	)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue cache invalidation")
	}
	return nil
}

func validateInputs(inputs []UpsertInput) pkgerrors.FieldErrors {
	fieldErrs := pkgerrors.FieldErrors{}
	seen := map[[2]uuid.UUID]bool{}
	for i, in := range inputs {
		prefix := fmt.Sprintf("variant_overrides[%d].", i)
		if in.HubID == uuid.Nil {
			fieldErrs.Add(prefix+"hub_id", "is required")
		}
		if in.VariantID == uuid.Nil {
			fieldErrs.Add(prefix+"variant_id", "is required")
		}
		key := [2]uuid.UUID{in.HubID, in.VariantID}
		if seen[key] {
			fieldErrs.Add(prefix+"variant_id", "is duplicated in this request")
		}
		seen[key] = true
		if in.Price != nil && in.Price.IsNegative() {
			fieldErrs.Add(prefix+"price", "must be greater than or equal to 0")
		}
		if in.DefaultStock != nil && *in.DefaultStock < 0 {
			fieldErrs.Add(prefix+"default_stock", "must be greater than or equal to 0")
		}
		if in.Resettable && in.DefaultStock == nil {
			fieldErrs.Add(prefix+"default_stock", "is required when resettable")
		}
		if in.OnDemand != nil && *in.OnDemand && in.CountOnHand != nil {
			fieldErrs.Add(prefix+"count_on_hand", "must be blank when on demand")
		}
		if in.SKU != nil && strings.TrimSpace(*in.SKU) == "" {
			fieldErrs.Add(prefix+"sku", "cannot be blank")
		}
	}
	return fieldErrs
}
