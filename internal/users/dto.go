package users

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/openfoodnetwork/ofn-backend/pkg/db/models"
)

// UserDTO is what the API returns for a user. EnterpriseIDs lists the
// enterprises the user owns or manages, so clients can pick a shop to act
// for without another round trip.
type UserDTO struct {
	ID            uuid.UUID   `json:"id"`
	Email         string      `json:"email"`
	Admin         bool        `json:"admin"`
	EnterpriseIDs []uuid.UUID `json:"enterprise_ids"`
	LastLoginAt   *time.Time  `json:"last_login_at,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

// CreateUserDTO is the input to Repository.Create. The repository
// normalises Email.
type CreateUserDTO struct {
	Email        string
	PasswordHash string
	Admin        bool
}

func FromModel(u *models.User, enterpriseIDs []uuid.UUID) *UserDTO {
	if u == nil {
		return nil
	}
	ids := slices.Clone(enterpriseIDs)
	if ids == nil {
		ids = []uuid.UUID{}
	}
	return &UserDTO{
		ID:            u.ID,
		Email:         u.Email,
		Admin:         u.Admin,
		EnterpriseIDs: ids,
		LastLoginAt:   u.LastLoginAt,
		CreatedAt:     u.CreatedAt,
	}
}

func (c CreateUserDTO) ToModel() *models.User {
	return &models.User{
		Email:        NormalizeEmail(c.Email),
		PasswordHash: c.PasswordHash,
		Admin:        c.Admin,
	}
}
