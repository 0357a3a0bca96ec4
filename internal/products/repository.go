package product

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/openfoodnetwork/ofn-backend/pkg/db/models"
)

// Repository wires together product and variant persistence helpers.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

func (r *Repository) conn(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return r.db
	}
	return r.db.WithContext(ctx)
}

// FindBySupplierAndName matches a product by exact, case-sensitive name.
func (r *Repository) FindBySupplierAndName(ctx context.Context, supplierID uuid.UUID, name string) (*models.Product, error) {
	var product models.Product
	err := r.conn(ctx).
		Preload("Variants", func(db *gorm.DB) *gorm.DB { return db.Order("is_master DESC, created_at ASC") }).
		Where("supplier_id = ? AND name = ?", supplierID, name).
		Order("created_at ASC").
		First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// FindVariant loads a live variant with its product, or nil.
func (r *Repository) FindVariant(ctx context.Context, id uuid.UUID) (*models.Variant, error) {
	var v models.Variant
	err := r.conn(ctx).Preload("Product").First(&v, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ProductsWithVariants loads the live products owning the given variants
// with every live variant of each product.
func (r *Repository) ProductsWithVariants(ctx context.Context, variantIDs []uuid.UUID) ([]models.Product, error) {
	if len(variantIDs) == 0 {
		return []models.Product{}, nil
	}
	productIDs := r.conn(ctx).Model(&models.Variant{}).Select("product_id").Where("id IN ?", variantIDs)
	var products []models.Product
	err := r.conn(ctx).
		Preload("Supplier").
		Preload("Variants", func(db *gorm.DB) *gorm.DB { return db.Order("is_master DESC, created_at ASC") }).
		Where("id IN (?)", productIDs).
		Order("name ASC").
		Find(&products).Error
	if err != nil {
		return nil, err
	}
	return products, nil
}

// CreateProduct inserts the product, a master variant priced like the first
// sellable variant, and the sellable variants it carries.
func (r *Repository) CreateProduct(ctx context.Context, product *models.Product) error {
	variants := product.Variants
	product.Variants = nil
	if err := r.conn(ctx).Omit("Supplier").Create(product).Error; err != nil {
		return err
	}

	master := models.Variant{ProductID: product.ID, IsMaster: true}
	if len(variants) > 0 {
		master.Price = variants[0].Price
	}
	if err := r.conn(ctx).Create(&master).Error; err != nil {
		return err
	}
	for i := range variants {
		variants[i].ProductID = product.ID
		if err := r.conn(ctx).Omit("Product").Create(&variants[i]).Error; err != nil {
			return err
		}
	}
	product.Variants = append([]models.Variant{master}, variants...)
	return nil
}

func (r *Repository) CreateVariant(ctx context.Context, v *models.Variant) error {
	return r.conn(ctx).Omit("Product").Create(v).Error
}

func (r *Repository) SaveVariant(ctx context.Context, v *models.Variant) error {
	return r.conn(ctx).Omit("Product").Save(v).Error
}

func (r *Repository) SaveProduct(ctx context.Context, p *models.Product) error {
	return r.conn(ctx).Omit("Supplier", "Variants").Save(p).Error
}

// AdjustOnHand applies delta to a variant's on_hand in one statement.
func (r *Repository) AdjustOnHand(ctx context.Context, variantID uuid.UUID, delta int) (int64, error) {
	res := r.conn(ctx).Model(&models.Variant{}).
		Where("id = ?", variantID).
		UpdateColumn("on_hand", gorm.Expr("on_hand + ?", delta))
	return res.RowsAffected, res.Error
}

func (r *Repository) AdjustOnHandTx(tx *gorm.DB, variantID uuid.UUID, delta int) (int64, error) {
	return r.WithTx(tx).AdjustOnHand(tx.Statement.Context, variantID, delta)
}

// ZeroStockExcept sets on_hand to zero for the supplier's stocked, non-master
// variants outside keep.
func (r *Repository) ZeroStockExcept(ctx context.Context, supplierID uuid.UUID, keep []uuid.UUID) (int64, error) {
	q := r.conn(ctx).Model(&models.Variant{}).
		Where("is_master = ? AND on_hand <> 0", false).
		Where("product_id IN (?)", r.conn(ctx).Model(&models.Product{}).Select("id").Where("supplier_id = ?", supplierID))
	if len(keep) > 0 {
		q = q.Where("id NOT IN ?", keep)
	}
	res := q.UpdateColumn("on_hand", 0)
	return res.RowsAffected, res.Error
}

// DistributorsOfSupplier lists the enterprises that receive any of the
// supplier's variants through an outgoing exchange of some order cycle.
func (r *Repository) DistributorsOfSupplier(ctx context.Context, supplierID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.conn(ctx).
		Table("exchanges").
		Distinct().
		Joins("JOIN order_cycles ON order_cycles.id = exchanges.order_cycle_id").
		Joins("JOIN exchange_variants ON exchange_variants.exchange_id = exchanges.id").
		Joins("JOIN variants ON variants.id = exchange_variants.variant_id").
		Joins("JOIN products ON products.id = variants.product_id").
		Where("exchanges.incoming = ? AND exchanges.sender_id = order_cycles.coordinator_id", false).
		Where("products.supplier_id = ?", supplierID).
		Pluck("exchanges.receiver_id", &ids).Error
	return ids, err
}

// MatchVariant returns the product's sellable variant with the unit value, or nil.
func MatchVariant(product models.Product, unitValue *decimal.Decimal) *models.Variant {
	for i := range product.Variants {
		v := &product.Variants[i]
		if v.IsMaster {
			continue
		}
		switch {
		case unitValue == nil && v.UnitValue == nil:
			return v
		case unitValue != nil && v.UnitValue != nil && v.UnitValue.Equal(*unitValue):
			return v
		}
	}
	return nil
}
