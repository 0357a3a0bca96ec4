package enterprises

import (
	"time"

	"github.com/google/uuid"

	"github.com/openfoodnetwork/ofn-backend/pkg/db/models"
	"github.com/openfoodnetwork/ofn-backend/pkg/enums"
)

// EnterpriseDTO is the API shape of an enterprise.
type EnterpriseDTO struct {
	ID                uuid.UUID             `json:"id"`
	Name              string                `json:"name"`
	Permalink         string                `json:"permalink"`
	Sells             enums.EnterpriseSells `json:"sells"`
	IsPrimaryProducer bool                  `json:"is_primary_producer"`
	IsDistributor     bool                  `json:"is_distributor"`
	OwnerID           uuid.UUID             `json:"owner_id"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
}

func FromModel(e *models.Enterprise) *EnterpriseDTO {
	if e == nil {
		return nil
	}
	return &EnterpriseDTO{
		ID:                e.ID,
		Name:              e.Name,
		Permalink:         e.Permalink,
		Sells:             e.Sells,
		IsPrimaryProducer: e.IsPrimaryProducer,
		IsDistributor:     e.IsDistributor(),
		OwnerID:           e.OwnerID,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}
}

// ManagerDTO lists a user allowed to act for an enterprise.
type ManagerDTO struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	Owner  bool      `json:"owner"`
}

// CreateInput describes a new enterprise. Permalink defaults to a slug of
// the name.
type CreateInput struct {
	Name              string
	Permalink         string
	Sells             enums.EnterpriseSells
	IsPrimaryProducer bool
}

// UpdateInput changes only the fields that are set.
type UpdateInput struct {
	Name              *string
	Permalink         *string
	Sells             *enums.EnterpriseSells
	IsPrimaryProducer *bool
}
