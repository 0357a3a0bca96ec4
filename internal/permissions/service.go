package permissions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openfoodnetwork/ofn-backend/internal/productscache/invalidation"
	"github.com/openfoodnetwork/ofn-backend/pkg/db/models"
	"github.com/openfoodnetwork/ofn-backend/pkg/enums"
	pkgerrors "github.com/openfoodnetwork/ofn-backend/pkg/errors"
	"github.com/openfoodnetwork/ofn-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type repository interface {
	IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error)
	ManagedEnterprises(ctx context.Context, userID uuid.UUID) ([]models.Enterprise, error)
	AllEnterprises(ctx context.Context) ([]models.Enterprise, error)
	EnterprisesByID(ctx context.Context, ids []uuid.UUID) ([]models.Enterprise, error)
	Relationships(ctx context.Context, permission enums.EnterprisePermission, childIDs []uuid.UUID) ([]models.EnterpriseRelationship, error)
	FindRelationshipTx(tx *gorm.DB, parentID, childID uuid.UUID) (*models.EnterpriseRelationship, error)
	CreateRelationshipTx(tx *gorm.DB, parentID, childID uuid.UUID) (*models.EnterpriseRelationship, error)
	AddPermissionTx(tx *gorm.DB, relationshipID uuid.UUID, permission enums.EnterprisePermission) error
	RemovePermissionTx(tx *gorm.DB, relationshipID uuid.UUID, permission enums.EnterprisePermission) (int64, error)
}

// overrideRevoker soft-disables and restores a hub's overrides of a producer's
// variants when the create_variant_overrides grant changes.
type overrideRevoker interface {
	RevokeForRelationshipTx(tx *gorm.DB, producerID, hubID uuid.UUID, at time.Time) (int64, error)
	RestoreForRelationshipTx(tx *gorm.DB, producerID, hubID uuid.UUID) (int64, error)
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, tx *gorm.DB, source invalidation.Source, scope invalidation.Scope, reason string) error
}

// Service answers "what may this user touch" questions and edits the
// relationship graph.
type Service interface {
	IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error)
	ManagedEnterpriseIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	Manages(ctx context.Context, userID, enterpriseID uuid.UUID) (bool, error)
	EnterprisesGranting(ctx context.Context, permission enums.EnterprisePermission, to []uuid.UUID) ([]uuid.UUID, error)
	EditableEnterpriseIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	VariantOverrideHubs(ctx context.Context, userID uuid.UUID) ([]models.Enterprise, error)
	VariantOverrideProducers(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	VariantOverrideProducersPerHub(ctx context.Context, userID uuid.UUID) (map[uuid.UUID][]uuid.UUID, error)
	CanManageVariantOverride(ctx context.Context, userID, hubID, producerID uuid.UUID) (bool, error)
	GrantPermission(ctx context.Context, input ChangePermissionInput) error
	RevokePermission(ctx context.Context, input ChangePermissionInput) error
}

// ChangePermissionInput names one permission on the parent → child relationship.
type ChangePermissionInput struct {
	ActorUserID uuid.UUID
	ParentID    uuid.UUID
	ChildID     uuid.UUID
	Permission  enums.EnterprisePermission
}

type service struct {
	repo      repository
	tx        txRunner
	overrides overrideRevoker
	cache     cacheInvalidator
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(repo repository, tx txRunner, overrides overrideRevoker, cache cacheInvalidator, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("permissions repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if overrides == nil {
		return nil, fmt.Errorf("variant override revoker required")
	}
	if cache == nil {
		return nil, fmt.Errorf("cache invalidator required")
	}
	return &service{
		repo:      repo,
		tx:        tx,
		overrides: overrides,
		cache:     cache,
		logg:      logg,
		now:       time.Now,
	}, nil
}

func (s *service) IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	admin, err := s.repo.IsAdmin(ctx, userID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	return admin, nil
}

// managed returns every enterprise the user may act for; admins get all.
func (s *service) managed(ctx context.Context, userID uuid.UUID) ([]models.Enterprise, error) {
	admin, err := s.IsAdmin(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out []models.Enterprise
	if admin {
		out, err = s.repo.AllEnterprises(ctx)
	} else {
		out, err = s.repo.ManagedEnterprises(ctx, userID)
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load managed enterprises")
	}
	return out, nil
}

func (s *service) ManagedEnterpriseIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	enterprises, err := s.managed(ctx, userID)
	if err != nil {
		return nil, err
	}
	return enterpriseIDs(enterprises), nil
}

func (s *service) Manages(ctx context.Context, userID, enterpriseID uuid.UUID) (bool, error) {
	ids, err := s.ManagedEnterpriseIDs(ctx, userID)
	if err != nil {
		return false, err
	}
	return containsID(ids, enterpriseID), nil
}

func (s *service) EnterprisesGranting(ctx context.Context, permission enums.EnterprisePermission, to []uuid.UUID) ([]uuid.UUID, error) {
	if !permission.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown permission %q", permission)
	}
	rels, err := s.repo.Relationships(ctx, permission, to)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load relationships")
	}
	ids := make([]uuid.UUID, 0, len(rels))
	for _, rel := range rels {
		ids = appendUnique(ids, rel.ParentID)
	}
	return ids, nil
}

// EditableEnterpriseIDs is the set of enterprises whose products the user may
// create or change: managed ones plus those granting manage_products to them.
func (s *service) EditableEnterpriseIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	managed, err := s.ManagedEnterpriseIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	granting, err := s.EnterprisesGranting(ctx, enums.PermissionManageProducts, managed)
	if err != nil {
		return nil, err
	}
	out := append([]uuid.UUID{}, managed...)
	for _, id := range granting {
		out = appendUnique(out, id)
	}
	return out, nil
}

// VariantOverrideHubs are the managed enterprises that sell.
func (s *service) VariantOverrideHubs(ctx context.Context, userID uuid.UUID) ([]models.Enterprise, error) {
	enterprises, err := s.managed(ctx, userID)
	if err != nil {
		return nil, err
	}
	hubs := make([]models.Enterprise, 0, len(enterprises))
	for _, e := range enterprises {
		if e.IsDistributor() {
			hubs = append(hubs, e)
		}
	}
	return hubs, nil
}

// VariantOverrideProducersPerHub maps each override hub to the producers whose
// variants it may override: producers granting create_variant_overrides to the
// hub, every managed primary producer, and the hub itself when it produces.
func (s *service) VariantOverrideProducersPerHub(ctx context.Context, userID uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	managed, err := s.managed(ctx, userID)
	if err != nil {
		return nil, err
	}
	var hubs []uuid.UUID
	var managedProducers []uuid.UUID
	for _, e := range managed {
		if e.IsDistributor() {
			hubs = append(hubs, e.ID)
		}
		if e.IsPrimaryProducer {
			managedProducers = append(managedProducers, e.ID)
		}
	}
	out := make(map[uuid.UUID][]uuid.UUID, len(hubs))
	if len(hubs) == 0 {
		return out, nil
	}

	rels, err := s.repo.Relationships(ctx, enums.PermissionCreateVariantOverrides, hubs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load relationships")
	}
	for _, hubID := range hubs {
		out[hubID] = []uuid.UUID{}
	}
	for _, rel := range rels {
		out[rel.ChildID] = appendUnique(out[rel.ChildID], rel.ParentID)
	}
	for _, hubID := range hubs {
		for _, producerID := range managedProducers {
			out[hubID] = appendUnique(out[hubID], producerID)
		}
	}
	return out, nil
}

func (s *service) VariantOverrideProducers(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	perHub, err := s.VariantOverrideProducersPerHub(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out []uuid.UUID
	for _, producers := range perHub {
		for _, id := range producers {
			out = appendUnique(out, id)
		}
	}
	return out, nil
}

func (s *service) CanManageVariantOverride(ctx context.Context, userID, hubID, producerID uuid.UUID) (bool, error) {
	perHub, err := s.VariantOverrideProducersPerHub(ctx, userID)
	if err != nil {
		return false, err
	}
	producers, ok := perHub[hubID]
	if !ok {
		return false, nil
	}
	return containsID(producers, producerID), nil
}

func (s *service) GrantPermission(ctx context.Context, input ChangePermissionInput) error {
	if err := s.authorizeChange(ctx, input); err != nil {
		return err
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		rel, err := s.repo.FindRelationshipTx(tx, input.ParentID, input.ChildID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			rel, err = s.repo.CreateRelationshipTx(tx, input.ParentID, input.ChildID)
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load relationship")
		}
		if rel.Has(input.Permission) {
			return nil
		}
		if err := s.repo.AddPermissionTx(tx, rel.ID, input.Permission); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add permission")
		}
		if input.Permission != enums.PermissionCreateVariantOverrides {
			return nil
		}
		restored, err := s.overrides.RestoreForRelationshipTx(tx, input.ParentID, input.ChildID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore variant overrides")
		}
		s.logChange(ctx, input, "variant overrides restored", restored)
		return s.invalidateHub(ctx, tx, input.ChildID)
	})
}

func (s *service) RevokePermission(ctx context.Context, input ChangePermissionInput) error {
	if err := s.authorizeChange(ctx, input); err != nil {
		return err
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		rel, err := s.repo.FindRelationshipTx(tx, input.ParentID, input.ChildID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "relationship not found")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load relationship")
		}
		removed, err := s.repo.RemovePermissionTx(tx, rel.ID, input.Permission)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove permission")
		}
		if removed == 0 || input.Permission != enums.PermissionCreateVariantOverrides {
			return nil
		}
		revoked, err := s.overrides.RevokeForRelationshipTx(tx, input.ParentID, input.ChildID, s.now().UTC())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke variant overrides")
		}
		s.logChange(ctx, input, "variant overrides revoked", revoked)
		return s.invalidateHub(ctx, tx, input.ChildID)
	})
}

// authorizeChange requires the actor to manage the granting (parent) side.
func (s *service) authorizeChange(ctx context.Context, input ChangePermissionInput) error {
	if !input.Permission.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "unknown permission %q", input.Permission)
	}
	if input.ParentID == input.ChildID {
		return pkgerrors.New(pkgerrors.CodeValidation, "an enterprise cannot grant permissions to itself")
	}
	found, err := s.repo.EnterprisesByID(ctx, []uuid.UUID{input.ParentID, input.ChildID})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load enterprises")
	}
	if len(found) != 2 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "enterprise not found")
	}
	ok, err := s.Manages(ctx, input.ActorUserID, input.ParentID)
	if err != nil {
		return err
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeForbidden, "unauthorised")
	}
	return nil
}

func (s *service) invalidateHub(ctx context.Context, tx *gorm.DB, hubID uuid.UUID) error {
	err := s.cache.Invalidate(ctx, tx,
		invalidation.Source{Type: enums.AggregateEnterprise, ID: hubID},
		invalidation.Scope{DistributorIDs: []uuid.UUID{hubID}},
		invalidation.ReasonPermissionChanged,
	)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue cache invalidation")
	}
	return nil
}

func (s *service) logChange(ctx context.Context, input ChangePermissionInput, msg string, affected int64) {
	if s.logg == nil {
		return
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"producer_id": input.ParentID.String(),
		"hub_id":      input.ChildID.String(),
		"affected":    affected,
	})
	s.logg.Info(ctx, msg)
}

func enterpriseIDs(enterprises []models.Enterprise) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(enterprises))
	for _, e := range enterprises {
		ids = append(ids, e.ID)
	}
	return ids
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

func appendUnique(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	if containsID(ids, id) {
		return ids
	}
	return append(ids, id)
}
