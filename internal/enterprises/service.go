// Package enterprises manages producers, hubs and shops along with the users
// allowed to act for them.
package enterprises

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"

	"github.com/openfoodnetwork/ofn-backend/internal/productscache/invalidation"
	"github.com/openfoodnetwork/ofn-backend/pkg/db"
	"github.com/openfoodnetwork/ofn-backend/pkg/db/models"
	"github.com/openfoodnetwork/ofn-backend/pkg/enums"
	pkgerrors "github.com/openfoodnetwork/ofn-backend/pkg/errors"
	"github.com/openfoodnetwork/ofn-backend/pkg/logger"
)

const (
	maxNameLength = 255
	nameIndex     = "idx_enterprises_name"
)

type enterpriseRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Enterprise, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Enterprise, error)
	PermalinksWithPrefix(ctx context.Context, base string) ([]string, error)
	NameTaken(ctx context.Context, name string, except uuid.UUID) (bool, error)
	CreateTx(tx *gorm.DB, e *models.Enterprise) error
	SaveTx(tx *gorm.DB, e *models.Enterprise) error
	AddManagerTx(tx *gorm.DB, enterpriseID, userID uuid.UUID) error
	RemoveManagerTx(tx *gorm.DB, enterpriseID, userID uuid.UUID) (int64, error)
	IsManager(ctx context.Context, enterpriseID, userID uuid.UUID) (bool, error)
	Managers(ctx context.Context, enterpriseID uuid.UUID) ([]models.User, error)
}

type userLookup interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

type permissionChecker interface {
	ManagedEnterpriseIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	Manages(ctx context.Context, userID, enterpriseID uuid.UUID) (bool, error)
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, tx *gorm.DB, source invalidation.Source, scope invalidation.Scope, reason string) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type Service interface {
	Create(ctx context.Context, userID uuid.UUID, input CreateInput) (*EnterpriseDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*EnterpriseDTO, error)
	ListManaged(ctx context.Context, userID uuid.UUID) ([]EnterpriseDTO, error)
	Update(ctx context.Context, userID, id uuid.UUID, input UpdateInput) (*EnterpriseDTO, error)
	ListManagers(ctx context.Context, userID, id uuid.UUID) ([]ManagerDTO, error)
	AddManager(ctx context.Context, userID, id uuid.UUID, email string) (*ManagerDTO, error)
	RemoveManager(ctx context.Context, userID, id, managerID uuid.UUID) error
}

type service struct {
	repo        enterpriseRepository
	users       userLookup
	permissions permissionChecker
	cache       cacheInvalidator
	tx          txRunner
	logg        *logger.Logger
}

func NewService(repo enterpriseRepository, users userLookup, permissions permissionChecker, cache cacheInvalidator, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("enterprise repository required")
	}
	if users == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if permissions == nil {
		return nil, fmt.Errorf("permissions required")
	}
	if cache == nil {
		return nil, fmt.Errorf("cache invalidator required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, users: users, permissions: permissions, cache: cache, tx: tx, logg: logg}, nil
}

// Create stores the enterprise with the caller as owner and first manager.
func (s *service) Create(ctx context.Context, userID uuid.UUID, input CreateInput) (*EnterpriseDTO, error) {
	name := strings.TrimSpace(input.Name)
	sells := input.Sells
	if sells == "" {
		sells = enums.EnterpriseSellsNone
	}
	fields := pkgerrors.FieldErrors{}
	validateName(fields, name)
	if !sells.IsValid() {
		fields.Add("sells", "must be none, own or any")
	}
	if !fields.Empty() {
		return nil, fields.Err("invalid enterprise")
	}
	if err := s.ensureNameFree(ctx, name, uuid.Nil); err != nil {
		return nil, err
	}

	base := input.Permalink
	if strings.TrimSpace(base) == "" {
		base = name
	}
	permalink, err := s.uniquePermalink(ctx, base, "")
	if err != nil {
		return nil, err
	}

	e := &models.Enterprise{
		Name:              name,
		Permalink:         permalink,
		Sells:             sells,
		IsPrimaryProducer: input.IsPrimaryProducer,
		OwnerID:           userID,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.CreateTx(tx, e); err != nil {
			return err
		}
		return s.repo.AddManagerTx(tx, e.ID, userID)
	})
	if err != nil {
		if db.IsUniqueViolation(err, nameIndex) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "name has already been taken")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create enterprise")
	}

	logCtx := s.logg.WithEnterpriseID(ctx, e.ID.String())
	s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
		"permalink": e.Permalink,
		"user_id":   userID.String(),
	}), "enterprise created")
	return FromModel(e), nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*EnterpriseDTO, error) {
	e, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromModel(e), nil
}

func (s *service) ListManaged(ctx context.Context, userID uuid.UUID) ([]EnterpriseDTO, error) {
	ids, err := s.permissions.ManagedEnterpriseIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list enterprises")
	}
	out := make([]EnterpriseDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return out, nil
}

// Update applies the set fields. Changing what an enterprise sells drops its
// cached shopfront listings.
func (s *service) Update(ctx context.Context, userID, id uuid.UUID, input UpdateInput) (*EnterpriseDTO, error) {
	if err := s.authorize(ctx, userID, id); err != nil {
		return nil, err
	}
	e, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	fields := pkgerrors.FieldErrors{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		validateName(fields, name)
		if fields.Empty() && name != e.Name {
			if err := s.ensureNameFree(ctx, name, e.ID); err != nil {
				return nil, err
			}
		}
		e.Name = name
	}
	sellsChanged := false
	if input.Sells != nil {
		if !input.Sells.IsValid() {
			fields.Add("sells", "must be none, own or any")
		}
		sellsChanged = *input.Sells != e.Sells
		e.Sells = *input.Sells
	}
	if !fields.Empty() {
		return nil, fields.Err("invalid enterprise")
	}
	if input.IsPrimaryProducer != nil {
		e.IsPrimaryProducer = *input.IsPrimaryProducer
	}
	if input.Permalink != nil && slug.Make(*input.Permalink) != e.Permalink {
		permalink, err := s.uniquePermalink(ctx, *input.Permalink, e.Permalink)
		if err != nil {
			return nil, err
		}
		e.Permalink = permalink
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.SaveTx(tx, e); err != nil {
			return err
		}
		if !sellsChanged {
			return nil
		}
		return s.cache.Invalidate(ctx, tx,
			invalidation.Source{Type: enums.AggregateEnterprise, ID: e.ID},
			invalidation.Scope{DistributorIDs: []uuid.UUID{e.ID}},
			invalidation.ReasonEnterpriseChanged)
	})
	if err != nil {
		if db.IsUniqueViolation(err, nameIndex) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "name has already been taken")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update enterprise")
	}
	return FromModel(e), nil
}

func (s *service) ListManagers(ctx context.Context, userID, id uuid.UUID) ([]ManagerDTO, error) {
	if err := s.authorize(ctx, userID, id); err != nil {
		return nil, err
	}
	e, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	users, err := s.repo.Managers(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list managers")
	}
	out := make([]ManagerDTO, 0, len(users))
	for _, u := range users {
		out = append(out, ManagerDTO{UserID: u.ID, Email: u.Email, Owner: u.ID == e.OwnerID})
	}
	return out, nil
}

// AddManager grants an existing user a role on the enterprise. Adding a
// current manager is a no-op.
func (s *service) AddManager(ctx context.Context, userID, id uuid.UUID, email string) (*ManagerDTO, error) {
	if err := s.authorize(ctx, userID, id); err != nil {
		return nil, err
	}
	e, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup user")
	}
	dto := &ManagerDTO{UserID: user.ID, Email: user.Email, Owner: user.ID == e.OwnerID}

	already, err := s.repo.IsManager(ctx, id, user.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check manager")
	}
	if already {
		return dto, nil
	}
	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.AddManagerTx(tx, id, user.ID)
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add manager")
	}
	return dto, nil
}

// RemoveManager revokes a user's role. The owner always keeps theirs.
func (s *service) RemoveManager(ctx context.Context, userID, id, managerID uuid.UUID) error {
	if err := s.authorize(ctx, userID, id); err != nil {
		return err
	}
	e, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if managerID == e.OwnerID {
		return pkgerrors.New(pkgerrors.CodeConflict, "cannot remove the enterprise owner")
	}
	var removed int64
	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		removed, err = s.repo.RemoveManagerTx(tx, id, managerID)
		return err
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove manager")
	}
	if removed == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "manager not found")
	}
	return nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Enterprise, error) {
	e, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load enterprise")
	}
	if e == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "enterprise not found")
	}
	return e, nil
}

func (s *service) authorize(ctx context.Context, userID, id uuid.UUID) error {
	ok, err := s.permissions.Manages(ctx, userID, id)
	if err != nil {
		return err
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeForbidden, "you do not manage this enterprise")
	}
	return nil
}

func (s *service) ensureNameFree(ctx context.Context, name string, except uuid.UUID) error {
	taken, err := s.repo.NameTaken(ctx, name, except)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check name")
	}
	if taken {
		return pkgerrors.New(pkgerrors.CodeConflict, "name has already been taken")
	}
	return nil
}

// uniquePermalink slugs raw and appends the lowest free numeric suffix.
// current is the enterprise's own permalink, which never counts as taken.
func (s *service) uniquePermalink(ctx context.Context, raw, current string) (string, error) {
	base := slug.Make(raw)
	if base == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "permalink must contain letters or digits").
			WithDetails(map[string]any{"field": "permalink"})
	}
	taken, err := s.repo.PermalinksWithPrefix(ctx, base)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check permalink")
	}
	used := make(map[string]bool, len(taken))
	for _, p := range taken {
		if p != current {
			used[p] = true
		}
	}
	candidate := base
	for n := 1; used[candidate]; n++ {
		candidate = fmt.Sprintf("%s-%d", base, n)
	}
	return candidate, nil
}

func validateName(fields pkgerrors.FieldErrors, name string) {
	switch {
	case name == "":
		fields.Add("name", "can't be blank")
	case len(name) > maxNameLength:
		fields.Add("name", fmt.Sprintf("must be at most %d characters", maxNameLength))
	}
}
