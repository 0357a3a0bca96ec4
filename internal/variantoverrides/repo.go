package variantoverrides

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openfoodnetwork/ofn-backend/internal/repo"
	"github.com/openfoodnetwork/ofn-backend/pkg/db/models"
)

const activeClause = "permission_revoked_at IS NULL"

// producerVariants selects the variant ids of every product supplied by ?.
const producerVariants = "variant_id IN (SELECT v.id FROM variants v JOIN products p ON p.id = v.product_id WHERE p.supplier_id = ?)"

// Repository persists variant overrides. Only rows with a nil
// permission_revoked_at take part in price and stock resolution.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// FindActive returns the active override for (hub, variant) or nil.
func (r *Repository) FindActive(ctx context.Context, hubID, variantID uuid.UUID) (*models.VariantOverride, error) {
	return findActive(r.DB(ctx), hubID, variantID)
}

func (r *Repository) FindActiveTx(tx *gorm.DB, hubID, variantID uuid.UUID) (*models.VariantOverride, error) {
	return findActive(tx, hubID, variantID)
}

func findActive(db *gorm.DB, hubID, variantID uuid.UUID) (*models.VariantOverride, error) {
	return repo.First[models.VariantOverride](db.Where("hub_id = ? AND variant_id = ?", hubID, variantID).Where(activeClause))
}

// FindActiveByID loads an override unless it is missing or permission-revoked.
func (r *Repository) FindActiveByID(ctx context.Context, id uuid.UUID) (*models.VariantOverride, error) {
	return repo.First[models.VariantOverride](r.DB(ctx).Where("id = ?", id).Where(activeClause))
}

// ListActiveByHubs returns active overrides of the given hubs with their
// variant and product preloaded.
func (r *Repository) ListActiveByHubs(ctx context.Context, hubIDs []uuid.UUID) ([]models.VariantOverride, error) {
	if len(hubIDs) == 0 {
		return nil, nil
	}
	var out []models.VariantOverride
	err := r.DB(ctx).Preload("Variant.Product").
		Where("hub_id IN ?", hubIDs).
		Where(activeClause).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

func (r *Repository) CreateTx(tx *gorm.DB, vo *models.VariantOverride) error {
	return tx.Create(vo).Error
}

func (r *Repository) SaveTx(tx *gorm.DB, vo *models.VariantOverride) error {
	return tx.Omit("Variant").Save(vo).Error
}

func (r *Repository) DeleteTx(tx *gorm.DB, id uuid.UUID) error {
	return tx.Where("id = ?", id).Delete(&models.VariantOverride{}).Error
}

// AdjustStockTx adds delta to count_on_hand of the active stock-overriding row
// in a single statement and reports how many rows changed.
func (r *Repository) AdjustStockTx(tx *gorm.DB, hubID, variantID uuid.UUID, delta int) (int64, error) {
	res := tx.Model(&models.VariantOverride{}).
		Where("hub_id = ? AND variant_id = ?", hubID, variantID).
		Where(activeClause).
		Where("count_on_hand IS NOT NULL").
		Update("count_on_hand", gorm.Expr("count_on_hand + ?", delta))
	return res.RowsAffected, res.Error
}

// ResetStockTx copies default_stock into count_on_hand for one active resettable row.
func (r *Repository) ResetStockTx(tx *gorm.DB, id uuid.UUID) (int64, error) {
	res := tx.Model(&models.VariantOverride{}).
		Where("id = ? AND resettable = ? AND default_stock IS NOT NULL", id, true).
		Where(activeClause).
		Update("count_on_hand", gorm.Expr("default_stock"))
	return res.RowsAffected, res.Error
}

// ResetStockForHubTx resets every active resettable override of the hub.
func (r *Repository) ResetStockForHubTx(tx *gorm.DB, hubID uuid.UUID) (int64, error) {
	res := tx.Model(&models.VariantOverride{}).
		Where("hub_id = ? AND resettable = ? AND default_stock IS NOT NULL", hubID, true).
		Where(activeClause).
		Update("count_on_hand", gorm.Expr("default_stock"))
	return res.RowsAffected, res.Error
}

// RevokeForRelationshipTx soft-disables the hub's active overrides of the
// producer's variants.
func (r *Repository) RevokeForRelationshipTx(tx *gorm.DB, producerID, hubID uuid.UUID, at time.Time) (int64, error) {
	res := tx.Model(&models.VariantOverride{}).
		Where("hub_id = ?", hubID).
		Where(activeClause).
		Where(producerVariants, producerID).
		Update("permission_revoked_at", at)
	return res.RowsAffected, res.Error
}

// RestoreForRelationshipTx reactivates the most recently revoked override per
// variant, skipping variants that gained a new active override meanwhile.
func (r *Repository) RestoreForRelationshipTx(tx *gorm.DB, producerID, hubID uuid.UUID) (int64, error) {
	res := tx.Model(&models.VariantOverride{}).
		Where("hub_id = ?", hubID).
		Where("permission_revoked_at IS NOT NULL").
		Where(producerVariants, producerID).
		Where(`NOT EXISTS (SELECT 1 FROM variant_overrides a
			WHERE a.hub_id = variant_overrides.hub_id
			AND a.variant_id = variant_overrides.variant_id
			AND a.permission_revoked_at IS NULL)`).
		Where(`permission_revoked_at = (SELECT MAX(b.permission_revoked_at) FROM variant_overrides b
			WHERE b.hub_id = variant_overrides.hub_id
			AND b.variant_id = variant_overrides.variant_id)`).
		Update("permission_revoked_at", nil)
	return res.RowsAffected, res.Error
}

// ZeroStockExceptTx sets count_on_hand to zero on the hub's stock-overriding
// rows whose variant is not in keep. Used by inventory import resets.
func (r *Repository) ZeroStockExceptTx(tx *gorm.DB, hubID uuid.UUID, keep []uuid.UUID) (int64, error) {
	q := tx.Model(&models.VariantOverride{}).
		Where("hub_id = ?", hubID).
		Where(activeClause).
		Where("count_on_hand IS NOT NULL")
	if len(keep) > 0 {
		q = q.Where("variant_id NOT IN ?", keep)
	}
	res := q.Update("count_on_hand", 0)
	return res.RowsAffected, res.Error
}

// LoadVariant loads a live variant with its product.
func (r *Repository) LoadVariant(ctx context.Context, variantID uuid.UUID) (*models.Variant, error) {
	var v models.Variant
	if err := r.DB(ctx).Preload("Product").Where("id = ?", variantID).First(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}
