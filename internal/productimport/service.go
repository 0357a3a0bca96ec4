// Package productimport validates and saves spreadsheet uploads of products
// and hub inventory.
package productimport

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	product "github.com/openfoodnetwork/ofn-backend/internal/products"
	"github.com/openfoodnetwork/ofn-backend/internal/productscache/invalidation"
	"github.com/openfoodnetwork/ofn-backend/pkg/db/models"
	"github.com/openfoodnetwork/ofn-backend/pkg/enums"
	pkgerrors "github.com/openfoodnetwork/ofn-backend/pkg/errors"
	"github.com/openfoodnetwork/ofn-backend/pkg/logger"
	"github.com/openfoodnetwork/ofn-backend/pkg/metrics"
)

// Save outcomes, also used as metric labels.
const (
	OutcomeProductCreated   = "product_created"
	OutcomeVariantCreated   = "variant_created"
	OutcomeVariantUpdated   = "variant_updated"
	OutcomeInventoryCreated = "inventory_created"
	OutcomeInventoryUpdated = "inventory_updated"
)

type lookups interface {
	EnterprisesByName(ctx context.Context, names []string) (map[string]models.Enterprise, error)
	TaxonsByName(ctx context.Context, names []string) (map[string]models.Taxon, error)
	TaxCategoriesByName(ctx context.Context, names []string) (map[string]models.TaxCategory, error)
	ShippingCategoriesByName(ctx context.Context, names []string) (map[string]models.ShippingCategory, error)
}

type inventoryStore interface {
	FindActive(ctx context.Context, hubID, variantID uuid.UUID) (*models.VariantOverride, error)
	FindActiveTx(tx *gorm.DB, hubID, variantID uuid.UUID) (*models.VariantOverride, error)
	CreateTx(tx *gorm.DB, vo *models.VariantOverride) error
	SaveTx(tx *gorm.DB, vo *models.VariantOverride) error
	ZeroStockExceptTx(tx *gorm.DB, hubID uuid.UUID, keep []uuid.UUID) (int64, error)
}

type permissionChecker interface {
	EditableEnterpriseIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	CanManageVariantOverride(ctx context.Context, userID, hubID, producerID uuid.UUID) (bool, error)
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, tx *gorm.DB, source invalidation.Source, scope invalidation.Scope, reason string) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Counts are the aggregate results of a save.
type Counts struct {
	ProductsCreated  int `json:"products_created"`
	VariantsCreated  int `json:"variants_created"`
	VariantsUpdated  int `json:"variants_updated"`
	InventoryCreated int `json:"inventory_created"`
	InventoryUpdated int `json:"inventory_updated"`
	Invalid          int `json:"invalid"`
	Reset            int `json:"reset"`
}

// Report is returned by both validation and import runs.
type Report struct {
	Entries []Entry
	Counts  Counts
}

// Service validates and imports uploads on behalf of an enterprise user.
type Service interface {
	Validate(ctx context.Context, userID uuid.UUID, file io.Reader, settings Settings) (*Report, error)
	Import(ctx context.Context, userID uuid.UUID, file io.Reader, settings Settings) (*Report, error)
	ValidateEntries(ctx context.Context, userID uuid.UUID, entries []Entry, settings Settings) ([]Entry, error)
	SaveEntries(ctx context.Context, userID uuid.UUID, entries []Entry, settings Settings) (Counts, error)
}

// ServiceParams wires the importer.
type ServiceParams struct {
	Lookups     lookups
	Catalog     *product.Repository
	Inventory   inventoryStore
	Permissions permissionChecker
	Cache       cacheInvalidator
	Tx          txRunner
	Metrics     *metrics.ProductImportMetrics
	Logger      *logger.Logger
	MaxRows     int
}

type service struct {
	lookups     lookups
	catalog     *product.Repository
	inventory   inventoryStore
	permissions permissionChecker
	cache       cacheInvalidator
	tx          txRunner
	metrics     *metrics.ProductImportMetrics
	logg        *logger.Logger
	maxRows     int
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Lookups == nil:
		return nil, errors.New("import lookups required")
	case params.Catalog == nil:
		return nil, errors.New("product repository required")
	case params.Inventory == nil:
		return nil, errors.New("variant override repository required")
	case params.Permissions == nil:
		return nil, errors.New("permissions required")
	case params.Cache == nil:
		return nil, errors.New("cache invalidator required")
	case params.Tx == nil:
		return nil, errors.New("transaction runner required")
	case params.Logger == nil:
		return nil, errors.New("logger required")
	}
	return &service{
		lookups:     params.Lookups,
		catalog:     params.Catalog,
		inventory:   params.Inventory,
		permissions: params.Permissions,
		cache:       params.Cache,
		tx:          params.Tx,
		metrics:     params.Metrics,
		logg:        params.Logger,
		maxRows:     params.MaxRows,
	}, nil
}

func (s *service) parse(file io.Reader, settings Settings) ([]Entry, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	entries, err := ParseCSV(file, settings.target(), s.maxRows)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}
	return entries, nil
}

func (s *service) Validate(ctx context.Context, userID uuid.UUID, file io.Reader, settings Settings) (*Report, error) {
	entries, err := s.parse(file, settings)
	if err != nil {
		return nil, err
	}
	entries, err = s.ValidateEntries(ctx, userID, entries, settings)
	if err != nil {
		return nil, err
	}
	return &Report{Entries: entries, Counts: Counts{Invalid: countInvalid(entries)}}, nil
}

// Import validates the upload and saves its valid rows. Row failures are
// reported on the entries and never fail the call.
func (s *service) Import(ctx context.Context, userID uuid.UUID, file io.Reader, settings Settings) (*Report, error) {
	entries, err := s.parse(file, settings)
	if err != nil {
		return nil, err
	}
	entries, err = s.ValidateEntries(ctx, userID, entries, settings)
	if err != nil {
		return nil, err
	}
	counts, saveErr := s.SaveEntries(ctx, userID, entries, settings)
	if saveErr != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"user_id": userID.String(),
			"errors":  len(multierr.Errors(saveErr)),
		}), "product import finished with row failures")
	}
	return &Report{Entries: entries, Counts: counts}, nil
}

type resolved struct {
	enterprises        map[string]models.Enterprise
	taxons             map[string]models.Taxon
	taxCategories      map[string]models.TaxCategory
	shippingCategories map[string]models.ShippingCategory
	editable           map[uuid.UUID]bool
}

func (s *service) resolve(ctx context.Context, userID uuid.UUID, entries []Entry, settings Settings) (*resolved, error) {
	var enterprises, taxons, taxCats, shipCats []string
	for _, e := range entries {
		enterprises = appendName(enterprises, e.Supplier)
		enterprises = appendName(enterprises, e.Producer)
		taxons = appendName(taxons, e.Category)
		taxCats = appendName(taxCats, e.TaxCategory)
		shipCats = appendName(shipCats, e.ShippingCategory)
	}
	for _, es := range settings.Enterprises {
		if d, ok := es.Defaults[DefaultTaxCategory]; ok {
			taxCats = appendName(taxCats, d.Value)
		}
		if d, ok := es.Defaults[DefaultShippingCategory]; ok {
			shipCats = appendName(shipCats, d.Value)
		}
	}

	out := &resolved{editable: map[uuid.UUID]bool{}}
	var err error
	if out.enterprises, err = s.lookups.EnterprisesByName(ctx, enterprises); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load enterprises")
	}
	if out.taxons, err = s.lookups.TaxonsByName(ctx, taxons); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load categories")
	}
	if out.taxCategories, err = s.lookups.TaxCategoriesByName(ctx, taxCats); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tax categories")
	}
	if out.shippingCategories, err = s.lookups.ShippingCategoriesByName(ctx, shipCats); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shipping categories")
	}
	editable, err := s.permissions.EditableEnterpriseIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, id := range editable {
		out.editable[id] = true
	}
	return out, nil
}

// ValidateEntries classifies every entry and records per-field errors. One
// row's problems never affect another's classification.
func (s *service) ValidateEntries(ctx context.Context, userID uuid.UUID, entries []Entry, settings Settings) ([]Entry, error) {
	res, err := s.resolve(ctx, userID, entries, settings)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, len(entries))
	for i, e := range entries {
		var err error
		if settings.target() == enums.ImportTargetInventories {
			err = s.validateInventoryRow(ctx, userID, &e, res)
		} else {
			err = s.validateProductRow(ctx, &e, res)
		}
		if err != nil {
			return nil, err
		}
		if e.EnterpriseID != uuid.Nil {
			applyDefaults(&e, settings.forEnterprise(e.EnterpriseID).Defaults)
		}
		resolveCategories(&e, res)
		if !e.Errors.Empty() {
			e.Status = enums.ImportInvalid
		}
		s.metrics.ObserveEntry(string(e.Status))
		out[i] = e
	}
	return out, nil
}

func (s *service) enterprise(e *Entry, field, name string, res *resolved, mustEdit bool) *models.Enterprise {
	if name == "" {
		e.addError(field, "can't be blank")
		return nil
	}
	ent, ok := res.enterprises[name]
	if !ok {
		e.addError(field, "not found in database")
		return nil
	}
	if mustEdit && !res.editable[ent.ID] {
		e.addError(field, "you do not have permission to manage this enterprise")
		return nil
	}
	return &ent
}

func (s *service) validateProductRow(ctx context.Context, e *Entry, res *resolved) error {
	if e.Name == "" {
		e.addError(ColName, "can't be blank")
	}
	supplier := s.enterprise(e, ColSupplier, e.Supplier, res, true)
	if e.Category == "" {
		e.addError(ColCategory, "can't be blank")
	} else if taxon, ok := res.taxons[e.Category]; ok {
		e.TaxonID = taxon.ID
	} else {
		e.addError(ColCategory, "not found in database")
	}
	validatePrice(e)
	if e.VariantUnit == "" && e.Errors[ColVariantUnit] == nil {
		e.addError(ColVariantUnit, "can't be blank")
	}
	if e.UnitValue == nil && e.Errors[ColUnits] == nil {
		e.addError(ColUnits, "can't be blank")
	} else if e.UnitValue != nil && !e.UnitValue.IsPositive() {
		e.addError(ColUnits, "must be greater than 0")
	}
	if (e.VariantUnit == enums.VariantUnitWeight || e.VariantUnit == enums.VariantUnitVolume) && e.VariantUnitScale == nil {
		e.addError(ColUnitType, "can't be blank for weight or volume products")
	}

	if supplier == nil {
		e.Status = enums.ImportInvalid
		return nil
	}
	e.EnterpriseID = supplier.ID

	if e.Name == "" {
		e.Status = enums.ImportInvalid
		return nil
	}
	p, err := s.catalog.FindBySupplierAndName(ctx, supplier.ID, e.Name)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	switch {
	case p == nil:
		e.Status = enums.ImportNewProduct
	default:
		e.ProductID = &p.ID
		if v := product.MatchVariant(*p, e.StoredUnitValue()); v != nil {
			e.VariantID = &v.ID
			e.Status = enums.ImportExistingVariant
		} else {
			e.Status = enums.ImportNewVariant
		}
	}
	return nil
}

// validateInventoryRow treats supplier as the hub receiving the override and
// producer as the owner of the product being overridden.
func (s *service) validateInventoryRow(ctx context.Context, userID uuid.UUID, e *Entry, res *resolved) error {
	if e.Name == "" {
		e.addError(ColName, "can't be blank")
	}
	hub := s.enterprise(e, ColSupplier, e.Supplier, res, true)
	producer := s.enterprise(e, ColProducer, e.Producer, res, false)
	validatePrice(e)
	if e.UnitValue == nil && e.Errors[ColUnits] == nil {
		e.addError(ColUnits, "can't be blank")
	}
	if hub != nil {
		e.EnterpriseID = hub.ID
	}
	if hub == nil || producer == nil || e.Name == "" || e.UnitValue == nil {
		e.Status = enums.ImportInvalid
		return nil
	}
	e.ProducerID = producer.ID

	ok, err := s.permissions.CanManageVariantOverride(ctx, userID, hub.ID, producer.ID)
	if err != nil {
		return err
	}
	if !ok {
		e.addError(ColProducer, "has not granted this hub permission to override its products")
		e.Status = enums.ImportInvalid
		return nil
	}

	p, err := s.catalog.FindBySupplierAndName(ctx, producer.ID, e.Name)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if p == nil {
		e.addError(ColName, "no product with this name for the producer")
		e.Status = enums.ImportInvalid
		return nil
	}
	e.ProductID = &p.ID
	e.VariantUnit = p.VariantUnit
	if e.VariantUnitScale == nil {
		e.VariantUnitScale = p.VariantUnitScale
	}
	v := product.MatchVariant(*p, e.StoredUnitValue())
	if v == nil {
		e.addError(ColUnits, "no variant with these units")
		e.Status = enums.ImportInvalid
		return nil
	}
	e.VariantID = &v.ID

	vo, err := s.inventory.FindActive(ctx, hub.ID, v.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variant override")
	}
	if vo == nil {
		e.Status = enums.ImportNewInventoryItem
	} else {
		e.Status = enums.ImportExistingInventoryItem
	}
	return nil
}

func validatePrice(e *Entry) {
	switch {
	case e.Price == nil && e.Errors[ColPrice] == nil:
		e.addError(ColPrice, "can't be blank")
	case e.Price != nil && e.Price.IsNegative():
		e.addError(ColPrice, "must be greater than or equal to 0")
	}
}

func resolveCategories(e *Entry, res *resolved) {
	if e.TaxCategory != "" {
		if c, ok := res.taxCategories[e.TaxCategory]; ok {
			e.TaxCategoryID = &c.ID
		} else {
			e.addError(ColTaxCategory, "not found in database")
		}
	}
	if e.ShippingCategory != "" {
		if c, ok := res.shippingCategories[e.ShippingCategory]; ok {
			e.ShippingCategoryID = &c.ID
		} else {
			e.addError(ColShippingCategory, "not found in database")
		}
	}
}

// SaveEntries persists every valid entry in its own transaction, then resets
// absent stock and queues cache invalidation per touched enterprise. The
// returned error aggregates row failures.
func (s *service) SaveEntries(ctx context.Context, userID uuid.UUID, entries []Entry, settings Settings) (Counts, error) {
	var (
		counts  Counts
		errs    error
		touched = map[uuid.UUID][]uuid.UUID{}
		order   []uuid.UUID
	)
	inventories := settings.target() == enums.ImportTargetInventories

	for i := range entries {
		e := &entries[i]
		if !e.Valid() {
			counts.Invalid++
			continue
		}
		var outcome string
		var variantID uuid.UUID
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			if inventories {
				outcome, variantID, err = s.saveInventoryRow(tx, *e)
			} else {
				outcome, variantID, err = s.saveProductRow(ctx, tx, *e)
			}
			return err
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("line %d: %w", e.Line, err))
			e.addError("base", "could not be saved")
			s.metrics.IncFailure()
			continue
		}
		e.VariantID = &variantID
		s.metrics.ObserveSaved(outcome)
		switch outcome {
		case OutcomeProductCreated:
			counts.ProductsCreated++
		case OutcomeVariantCreated:
			counts.VariantsCreated++
		case OutcomeVariantUpdated:
			counts.VariantsUpdated++
		case OutcomeInventoryCreated:
			counts.InventoryCreated++
		case OutcomeInventoryUpdated:
			counts.InventoryUpdated++
		}
		if _, seen := touched[e.EnterpriseID]; !seen {
			order = append(order, e.EnterpriseID)
		}
		touched[e.EnterpriseID] = append(touched[e.EnterpriseID], variantID)
	}

	for _, enterpriseID := range order {
		reset, err := s.finishEnterprise(ctx, enterpriseID, touched[enterpriseID], settings.forEnterprise(enterpriseID).ResetAllAbsent, inventories)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("enterprise %s: %w", enterpriseID, err))
			continue
		}
		counts.Reset += int(reset)
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"user_id":           userID.String(),
		"products_created":  counts.ProductsCreated,
		"variants_created":  counts.VariantsCreated,
		"variants_updated":  counts.VariantsUpdated,
		"inventory_created": counts.InventoryCreated,
		"inventory_updated": counts.InventoryUpdated,
		"invalid":           counts.Invalid,
		"reset":             counts.Reset,
	}), "product import saved")
	return counts, errs
}

func (s *service) saveProductRow(ctx context.Context, tx *gorm.DB, e Entry) (string, uuid.UUID, error) {
	catalog := s.catalog.WithTx(tx)
	// Rows earlier in the same upload may have created the product.
	p, err := catalog.FindBySupplierAndName(ctx, e.EnterpriseID, e.Name)
	if err != nil {
		return "", uuid.Nil, err
	}
	if p == nil {
		p = &models.Product{
			Name:               e.Name,
			SupplierID:         e.EnterpriseID,
			PrimaryTaxonID:     e.TaxonID,
			VariantUnit:        e.VariantUnit,
			VariantUnitScale:   e.VariantUnitScale,
			TaxCategoryID:      e.TaxCategoryID,
			ShippingCategoryID: e.ShippingCategoryID,
			AvailableOn:        e.AvailableOn,
			Variants:           []models.Variant{newVariant(e)},
		}
		if e.VariantUnitName != "" {
			p.VariantUnitName = &e.VariantUnitName
		}
		if err := catalog.CreateProduct(ctx, p); err != nil {
			return "", uuid.Nil, err
		}
		return OutcomeProductCreated, p.Variants[len(p.Variants)-1].ID, nil
	}

	if applyProductFields(p, e) {
		if err := catalog.SaveProduct(ctx, p); err != nil {
			return "", uuid.Nil, err
		}
	}
	if v := product.MatchVariant(*p, e.StoredUnitValue()); v != nil {
		v.Price = *e.Price
		if e.OnHand != nil {
			v.OnHand = *e.OnHand
		}
		if e.OnDemand != nil {
			v.OnDemand = *e.OnDemand
		}
		if e.SKU != "" {
			v.SKU = e.SKU
		}
		if e.DisplayName != "" {
			v.DisplayName = &e.DisplayName
		}
		if err := catalog.SaveVariant(ctx, v); err != nil {
			return "", uuid.Nil, err
		}
		return OutcomeVariantUpdated, v.ID, nil
	}
	v := newVariant(e)
	v.ProductID = p.ID
	if err := catalog.CreateVariant(ctx, &v); err != nil {
		return "", uuid.Nil, err
	}
	return OutcomeVariantCreated, v.ID, nil
}

func newVariant(e Entry) models.Variant {
	v := models.Variant{
		SKU:       e.SKU,
		UnitValue: e.StoredUnitValue(),
		Price:     *e.Price,
	}
	if e.OnHand != nil {
		v.OnHand = *e.OnHand
	}
	if e.OnDemand != nil {
		v.OnDemand = *e.OnDemand
	}
	if e.DisplayName != "" {
		v.DisplayName = &e.DisplayName
	}
	return v
}

// applyProductFields copies product-level columns present on the row and
// reports whether anything changed.
func applyProductFields(p *models.Product, e Entry) bool {
	changed := false
	if e.TaxCategoryID != nil {
		p.TaxCategoryID = e.TaxCategoryID
		changed = true
	}
	if e.ShippingCategoryID != nil {
		p.ShippingCategoryID = e.ShippingCategoryID
		changed = true
	}
	if e.AvailableOn != nil {
		p.AvailableOn = e.AvailableOn
		changed = true
	}
	return changed
}

func (s *service) saveInventoryRow(tx *gorm.DB, e Entry) (string, uuid.UUID, error) {
	if e.VariantID == nil {
		return "", uuid.Nil, errors.New("variant not resolved")
	}
	variantID := *e.VariantID
	existing, err := s.inventory.FindActiveTx(tx, e.EnterpriseID, variantID)
	if err != nil {
		return "", uuid.Nil, err
	}
	vo := existing
	if vo == nil {
		vo = &models.VariantOverride{HubID: e.EnterpriseID, VariantID: variantID}
	}
	price := *e.Price
	vo.Price = &price
	if e.OnHand != nil {
		count := *e.OnHand
		vo.CountOnHand = &count
	}
	if e.OnDemand != nil {
		onDemand := *e.OnDemand
		vo.OnDemand = &onDemand
	}
	if e.SKU != "" {
		sku := e.SKU
		vo.SKU = &sku
	}
	if existing == nil {
		if err := s.inventory.CreateTx(tx, vo); err != nil {
			return "", uuid.Nil, err
		}
		return OutcomeInventoryCreated, variantID, nil
	}
	if err := s.inventory.SaveTx(tx, vo); err != nil {
		return "", uuid.Nil, err
	}
	return OutcomeInventoryUpdated, variantID, nil
}

// finishEnterprise zeroes stock absent from the upload when asked and queues
// the cache invalidation for the listings showing the enterprise's stock: the
// hub itself for inventories, the distributors of its products otherwise.
func (s *service) finishEnterprise(ctx context.Context, enterpriseID uuid.UUID, keep []uuid.UUID, resetAbsent, inventories bool) (int64, error) {
	var reset int64
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if resetAbsent {
			var err error
			if inventories {
				reset, err = s.inventory.ZeroStockExceptTx(tx, enterpriseID, keep)
			} else {
				reset, err = s.catalog.WithTx(tx).ZeroStockExcept(ctx, enterpriseID, keep)
			}
			if err != nil {
				return err
			}
		}
		scope := invalidation.Scope{DistributorIDs: []uuid.UUID{enterpriseID}}
		if !inventories {
			distributors, err := s.catalog.WithTx(tx).DistributorsOfSupplier(ctx, enterpriseID)
			if err != nil {
				return err
			}
			if len(distributors) == 0 {
				return nil
			}
			scope.DistributorIDs = distributors
		}
		return s.cache.Invalidate(ctx, tx,
			invalidation.Source{Type: enums.AggregateEnterprise, ID: enterpriseID},
			scope, invalidation.ReasonProductImported)
	})
	if err != nil {
		return 0, err
	}
	s.metrics.AddReset(reset)
	return reset, nil
}

func countInvalid(entries []Entry) int {
	n := 0
	for _, e := range entries {
		if !e.Valid() {
			n++
		}
	}
	return n
}

func appendName(names []string, name string) []string {
	if name == "" {
		return names
	}
	for _, n := range names {
		if n == name {
			return names
		}
	}
	return append(names, name)
}
