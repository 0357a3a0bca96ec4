package permissions

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openfoodnetwork/ofn-backend/internal/repo"
	"github.com/openfoodnetwork/ofn-backend/pkg/db/models"
	"github.com/openfoodnetwork/ofn-backend/pkg/enums"
)

// Repository answers the enterprise graph queries behind permission checks.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// IsAdmin reports whether the user carries the admin flag.
func (r *Repository) IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	var user models.User
	err := r.DB(ctx).Select("id", "admin").Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return user.Admin, nil
}

// ManagedEnterprises returns the enterprises the user holds a role in.
func (r *Repository) ManagedEnterprises(ctx context.Context, userID uuid.UUID) ([]models.Enterprise, error) {
	var out []models.Enterprise
	err := r.DB(ctx).
		Joins("JOIN enterprise_roles er ON er.enterprise_id = enterprises.id").
		Where("er.user_id = ?", userID).
		Order("enterprises.name ASC").
		Find(&out).Error
	return out, err
}

func (r *Repository) AllEnterprises(ctx context.Context) ([]models.Enterprise, error) {
	var out []models.Enterprise
	err := r.DB(ctx).Order("name ASC").Find(&out).Error
	return out, err
}

func (r *Repository) EnterprisesByID(ctx context.Context, ids []uuid.UUID) ([]models.Enterprise, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []models.Enterprise
	err := r.DB(ctx).Where("id IN ?", ids).Order("name ASC").Find(&out).Error
	return out, err
}

// Relationships returns relationships whose child is one of childIDs and that
// carry permission, permissions preloaded.
func (r *Repository) Relationships(ctx context.Context, permission enums.EnterprisePermission, childIDs []uuid.UUID) ([]models.EnterpriseRelationship, error) {
	if len(childIDs) == 0 {
		return nil, nil
	}
	var out []models.EnterpriseRelationship
	err := r.DB(ctx).
		Preload("Permissions").
		Where("child_id IN ?", childIDs).
		Where("EXISTS (SELECT 1 FROM enterprise_relationship_permissions p WHERE p.enterprise_relationship_id = enterprise_relationships.id AND p.name = ?)", permission).
		Find(&out).Error
	return out, err
}

// FindRelationshipTx locks the relationship row for update on Postgres.
func (r *Repository) FindRelationshipTx(tx *gorm.DB, parentID, childID uuid.UUID) (*models.EnterpriseRelationship, error) {
	var rel models.EnterpriseRelationship
	err := tx.Preload("Permissions").
		Where("parent_id = ? AND child_id = ?", parentID, childID).
		First(&rel).Error
	if err != nil {
		return nil, err
	}
	return &rel, nil
}

func (r *Repository) CreateRelationshipTx(tx *gorm.DB, parentID, childID uuid.UUID) (*models.EnterpriseRelationship, error) {
	rel := models.EnterpriseRelationship{ParentID: parentID, ChildID: childID}
	if err := tx.Create(&rel).Error; err != nil {
		return nil, err
	}
	return &rel, nil
}

func (r *Repository) AddPermissionTx(tx *gorm.DB, relationshipID uuid.UUID, permission enums.EnterprisePermission) error {
	return tx.Create(&models.EnterpriseRelationshipPermission{
		RelationshipID: relationshipID,
		Name:           permission,
	}).Error
}

func (r *Repository) RemovePermissionTx(tx *gorm.DB, relationshipID uuid.UUID, permission enums.EnterprisePermission) (int64, error) {
	res := tx.Where("enterprise_relationship_id = ? AND name = ?", relationshipID, permission).
		Delete(&models.EnterpriseRelationshipPermission{})
	return res.RowsAffected, res.Error
}
