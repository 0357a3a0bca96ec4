package enterprises

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openfoodnetwork/ofn-backend/internal/repo"
	"github.com/openfoodnetwork/ofn-backend/pkg/db/models"
)

type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// FindByID returns nil when no enterprise has the id.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Enterprise, error) {
	return repo.First[models.Enterprise](r.DB(ctx).Where("id = ?", id))
}

func (r *Repository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Enterprise, error) {
	out := []models.Enterprise{}
	if len(ids) == 0 {
		return out, nil
	}
	err := r.DB(ctx).Where("id IN ?", ids).Order("name ASC").Find(&out).Error
	return out, err
}

// PermalinksWithPrefix returns taken permalinks equal to base or starting with
// base followed by a dash.
func (r *Repository) PermalinksWithPrefix(ctx context.Context, base string) ([]string, error) {
	var out []string
	err := r.DB(ctx).Model(&models.Enterprise{}).
		Where("permalink = ? OR permalink LIKE ?", base, base+"-%").
		Pluck("permalink", &out).Error
	return out, err
}

func (r *Repository) NameTaken(ctx context.Context, name string, except uuid.UUID) (bool, error) {
	var count int64
	err := r.DB(ctx).Model(&models.Enterprise{}).
		Where("name = ? AND id <> ?", name, except).
		Count(&count).Error
	return count > 0, err
}

func (r *Repository) CreateTx(tx *gorm.DB, e *models.Enterprise) error {
	return tx.Create(e).Error
}

func (r *Repository) SaveTx(tx *gorm.DB, e *models.Enterprise) error {
	return tx.Save(e).Error
}

func (r *Repository) AddManagerTx(tx *gorm.DB, enterpriseID, userID uuid.UUID) error {
	return tx.Create(&models.EnterpriseRole{EnterpriseID: enterpriseID, UserID: userID}).Error
}

func (r *Repository) RemoveManagerTx(tx *gorm.DB, enterpriseID, userID uuid.UUID) (int64, error) {
	res := tx.Where("enterprise_id = ? AND user_id = ?", enterpriseID, userID).Delete(&models.EnterpriseRole{})
	return res.RowsAffected, res.Error
}

func (r *Repository) IsManager(ctx context.Context, enterpriseID, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.DB(ctx).Model(&models.EnterpriseRole{}).
		Where("enterprise_id = ? AND user_id = ?", enterpriseID, userID).
		Count(&count).Error
	return count > 0, err
}

// Managers lists the users holding a role on the enterprise by email.
func (r *Repository) Managers(ctx context.Context, enterpriseID uuid.UUID) ([]models.User, error) {
	var out []models.User
	err := r.DB(ctx).
		Joins("JOIN enterprise_roles ON enterprise_roles.user_id = users.id").
		Where("enterprise_roles.enterprise_id = ?", enterpriseID).
		Order("users.email ASC").
		Find(&out).Error
	return out, err
}
