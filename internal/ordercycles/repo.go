package ordercycles

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openfoodnetwork/ofn-backend/internal/repo"
	"github.com/openfoodnetwork/ofn-backend/pkg/db/models"
	"github.com/openfoodnetwork/ofn-backend/pkg/pagination"
)

// Repository persists order cycles with their exchanges and fees.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

func withGraph(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Coordinator").
		Preload("CoordinatorFees", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("CoordinatorFees.EnterpriseFee").
		Preload("CoordinatorFees.EnterpriseFee.Enterprise").
		Preload("Exchanges", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Exchanges.Sender").
		Preload("Exchanges.Receiver").
		Preload("Exchanges.Variants").
		Preload("Exchanges.Fees", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Exchanges.Fees.EnterpriseFee").
		Preload("Exchanges.Fees.EnterpriseFee.Enterprise")
}

// FindByID loads the order cycle with its full exchange graph. Returns nil when missing.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.OrderCycle, error) {
	return repo.First[models.OrderCycle](withGraph(r.DB(ctx)).Where("id = ?", id))
}

// CreateTx inserts the order cycle together with its exchanges, variants and fees.
func (r *Repository) CreateTx(tx *gorm.DB, oc *models.OrderCycle) error {
	return tx.Omit("Coordinator", "Exchanges.Sender", "Exchanges.Receiver",
		"Exchanges.Variants.Variant", "Exchanges.Fees.EnterpriseFee", "CoordinatorFees.EnterpriseFee").
		Create(oc).Error
}

// ReplaceTx updates the scalar columns and replaces every exchange and
// coordinator fee with those carried by oc.
func (r *Repository) ReplaceTx(tx *gorm.DB, oc *models.OrderCycle) error {
	if err := tx.Model(&models.OrderCycle{}).Where("id = ?", oc.ID).Updates(map[string]any{
		"name":            oc.Name,
		"orders_open_at":  oc.OrdersOpenAt,
		"orders_close_at": oc.OrdersCloseAt,
		"coordinator_id":  oc.CoordinatorID,
		"updated_at":      time.Now().UTC(),
	}).Error; err != nil {
		return err
	}

	exchangeIDs := tx.Model(&models.Exchange{}).Select("id").Where("order_cycle_id = ?", oc.ID)
	if err := tx.Where("exchange_id IN (?)", exchangeIDs).Delete(&models.ExchangeVariant{}).Error; err != nil {
		return err
	}
	if err := tx.Where("exchange_id IN (?)", exchangeIDs).Delete(&models.ExchangeFee{}).Error; err != nil {
		return err
	}
	if err := tx.Where("order_cycle_id = ?", oc.ID).Delete(&models.Exchange{}).Error; err != nil {
		return err
	}
	if err := tx.Where("order_cycle_id = ?", oc.ID).Delete(&models.CoordinatorFee{}).Error; err != nil {
		return err
	}

	for i := range oc.CoordinatorFees {
		oc.CoordinatorFees[i].ID = uuid.Nil
		oc.CoordinatorFees[i].OrderCycleID = oc.ID
		if err := tx.Omit("EnterpriseFee").Create(&oc.CoordinatorFees[i]).Error; err != nil {
			return err
		}
	}
	for i := range oc.Exchanges {
		ex := &oc.Exchanges[i]
		ex.ID = uuid.Nil
		ex.OrderCycleID = oc.ID
		if err := tx.Omit("Sender", "Receiver", "Variants.Variant", "Fees.EnterpriseFee").Create(ex).Error; err != nil {
			return err
		}
	}
	return nil
}

// List returns the order cycles coordinated by any of the enterprises, newest first.
// A nil coordinators slice lists every cycle.
func (r *Repository) List(ctx context.Context, coordinatorIDs []uuid.UUID) ([]models.OrderCycle, error) {
	q := r.DB(ctx).Preload("Coordinator").Order("created_at DESC")
	if coordinatorIDs != nil {
		if len(coordinatorIDs) == 0 {
			return []models.OrderCycle{}, nil
		}
		q = q.Where("coordinator_id IN ?", coordinatorIDs)
	}
	var out []models.OrderCycle
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// TransitionedBetween returns the cycles whose open or close time falls in (from, to].
func (r *Repository) TransitionedBetween(ctx context.Context, from, to time.Time) ([]models.OrderCycle, error) {
	var out []models.OrderCycle
	err := withGraph(r.DB(ctx)).
		Where("(orders_open_at > ? AND orders_open_at <= ?) OR (orders_close_at > ? AND orders_close_at <= ?)", from, to, from, to).
		Order("orders_open_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ExistingEnterprises returns which of the ids name an enterprise.
func (r *Repository) ExistingEnterprises(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	return existing(r.DB(ctx), &models.Enterprise{}, ids)
}

func (r *Repository) ExistingFees(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	return existing(r.DB(ctx), &models.EnterpriseFee{}, ids)
}

// VariantSuppliers maps each existing variant to its product's supplier.
func (r *Repository) VariantSuppliers(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	out := make(map[uuid.UUID]uuid.UUID, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []struct {
		ID         uuid.UUID
		SupplierID uuid.UUID
	}
	err := r.DB(ctx).
		Model(&models.Variant{}).
		Select("variants.id AS id, products.supplier_id AS supplier_id").
		Joins("JOIN products ON products.id = variants.product_id").
		Where("variants.id IN ?", ids).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row.SupplierID
	}
	return out, nil
}

func existing(db *gorm.DB, model any, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	found := make(map[uuid.UUID]bool, len(ids))
	if len(ids) == 0 {
		return found, nil
	}
	var rows []uuid.UUID
	if err := db.Model(model).Where("id IN ?", ids).Pluck("id", &rows).Error; err != nil {
		return nil, err
	}
	for _, id := range rows {
		found[id] = true
	}
	return found, nil
}

// ExchangeVariants pages through the variants of an exchange ordered by
// (created_at, id) of the variant.
func (r *Repository) ExchangeVariants(ctx context.Context, exchangeID uuid.UUID, params pagination.Params) ([]models.Variant, *pagination.Cursor, error) {
	page, err := pagination.Keyset("variants", params)
	if err != nil {
		return nil, nil, err
	}
	var variants []models.Variant
	err = r.DB(ctx).
		Model(&models.Variant{}).
		Preload("Product").
		Joins("JOIN exchange_variants ev ON ev.variant_id = variants.id").
		Where("ev.exchange_id = ?", exchangeID).
		Scopes(page).
		Find(&variants).Error
	if err != nil {
		return nil, nil, err
	}
	variants, next := pagination.Page(variants, params, func(v models.Variant) pagination.Cursor {
		return pagination.Cursor{CreatedAt: v.CreatedAt, ID: v.ID}
	})
	return variants, next, nil
}

// FindVariant loads a variant with its product, or nil when missing.
func (r *Repository) FindVariant(ctx context.Context, id uuid.UUID) (*models.Variant, error) {
	return repo.First[models.Variant](r.DB(ctx).Preload("Product").Where("id = ?", id))
}
