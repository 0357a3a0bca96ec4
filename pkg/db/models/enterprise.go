package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openfoodnetwork/ofn-backend/pkg/enums"
)

// Enterprise is a producer, hub or shop taking part in order cycles.
type Enterprise struct {
	ID                uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	Name              string                `gorm:"column:name;not null;uniqueIndex"`
	Permalink         string                `gorm:"column:permalink;not null;uniqueIndex"`
	Sells             enums.EnterpriseSells `gorm:"column:sells;not null;default:none"`
	IsPrimaryProducer bool                  `gorm:"column:is_primary_producer;not null;default:false"`
	OwnerID           uuid.UUID             `gorm:"column:owner_id;type:uuid;not null"`
	CreatedAt         time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (e *Enterprise) BeforeCreate(*gorm.DB) error {
	assignID(&e.ID)
	return nil
}

// IsDistributor reports whether the enterprise runs a shopfront.
func (e Enterprise) IsDistributor() bool {
	return e.Sells != enums.EnterpriseSellsNone && e.Sells != ""
}

// EnterpriseRole records that a user manages an enterprise.
type EnterpriseRole struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UserID       uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex:idx_enterprise_roles_user_enterprise"`
	EnterpriseID uuid.UUID `gorm:"column:enterprise_id;type:uuid;not null;uniqueIndex:idx_enterprise_roles_user_enterprise"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (r *EnterpriseRole) BeforeCreate(*gorm.DB) error {
	assignID(&r.ID)
	return nil
}

// EnterpriseRelationship is a parent to child grant of named permissions.
type EnterpriseRelationship struct {
	ID          uuid.UUID                          `gorm:"column:id;type:uuid;primaryKey"`
	ParentID    uuid.UUID                          `gorm:"column:parent_id;type:uuid;not null;uniqueIndex:idx_enterprise_relationships_pair"`
	ChildID     uuid.UUID                          `gorm:"column:child_id;type:uuid;not null;uniqueIndex:idx_enterprise_relationships_pair"`
	Permissions []EnterpriseRelationshipPermission `gorm:"foreignKey:RelationshipID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time                          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time                          `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *EnterpriseRelationship) BeforeCreate(*gorm.DB) error {
	assignID(&r.ID)
	return nil
}

// Has reports whether the relationship carries the named permission.
func (r EnterpriseRelationship) Has(permission enums.EnterprisePermission) bool {
	for _, p := range r.Permissions {
		if p.Name == permission {
			return true
		}
	}
	return false
}

type EnterpriseRelationshipPermission struct {
	ID             uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	RelationshipID uuid.UUID                  `gorm:"column:enterprise_relationship_id;type:uuid;not null;uniqueIndex:idx_relationship_permissions_name"`
	Name           enums.EnterprisePermission `gorm:"column:name;not null;uniqueIndex:idx_relationship_permissions_name"`
	CreatedAt      time.Time                  `gorm:"column:created_at;autoCreateTime"`
}

func (p *EnterpriseRelationshipPermission) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}
