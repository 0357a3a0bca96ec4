package enterprises

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/openfoodnetwork/ofn-backend/internal/permissions"
	"github.com/openfoodnetwork/ofn-backend/internal/productscache/invalidation"
	"github.com/openfoodnetwork/ofn-backend/internal/testdb"
	"github.com/openfoodnetwork/ofn-backend/internal/users"
	"github.com/openfoodnetwork/ofn-backend/internal/variantoverrides"
	"github.com/openfoodnetwork/ofn-backend/pkg/db"
	"github.com/openfoodnetwork/ofn-backend/pkg/db/models"
	"github.com/openfoodnetwork/ofn-backend/pkg/enums"
	pkgerrors "github.com/openfoodnetwork/ofn-backend/pkg/errors"
	"github.com/openfoodnetwork/ofn-backend/pkg/logger"
)

type recordingCache struct {
	scopes  []invalidation.Scope
	reasons []string
}

func (r *recordingCache) Invalidate(_ context.Context, _ *gorm.DB, _ invalidation.Source, scope invalidation.Scope, reason string) error {
	r.scopes = append(r.scopes, scope)
	r.reasons = append(r.reasons, reason)
	return nil
}

type world struct {
	db    *gorm.DB
	f     testdb.Fixtures
	svc   Service
	cache *recordingCache
	user  models.User
}

func newWorld(t *testing.T) world {
	t.Helper()
	conn := testdb.Open(t)
	f := testdb.NewFixtures(t, conn)
	runner := db.NewFromGorm(conn)
	logg := logger.New(logger.Options{ServiceName: "test", Output: &bytes.Buffer{}})
	perms, err := permissions.NewService(permissions.NewRepository(conn), runner, variantoverrides.NewRepository(conn), &recordingCache{}, logg)
	require.NoError(t, err)
	cache := &recordingCache{}
	svc, err := NewService(NewRepository(conn), users.NewRepository(conn), perms, cache, runner, logg)
	require.NoError(t, err)
	return world{db: conn, f: f, svc: svc, cache: cache, user: f.User("owner@example.com", false)}
}

func TestCreateAssignsUniquePermalinkAndManager(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	first, err := w.svc.Create(ctx, w.user.ID, CreateInput{Name: "Green Farm & Co", IsPrimaryProducer: true})
	require.NoError(t, err)
	assert.Equal(t, "green-farm-and-co", first.Permalink)
	assert.Equal(t, enums.EnterpriseSellsNone, first.Sells)
	assert.False(t, first.IsDistributor)
	assert.Equal(t, w.user.ID, first.OwnerID)

	second, err := w.svc.Create(ctx, w.user.ID, CreateInput{Name: "Green Farm Shop", Permalink: "Green Farm & Co", Sells: enums.EnterpriseSellsAny})
	require.NoError(t, err)
	assert.Equal(t, "green-farm-and-co-1", second.Permalink)
	assert.True(t, second.IsDistributor)

	managed, err := w.svc.ListManaged(ctx, w.user.ID)
	require.NoError(t, err)
	require.Len(t, managed, 2)
	assert.Equal(t, "Green Farm & Co", managed[0].Name)
}

func TestCreateValidation(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	_, err := w.svc.Create(ctx, w.user.ID, CreateInput{Name: "  ", Sells: "everything"})
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	_, err = w.svc.Create(ctx, w.user.ID, CreateInput{Name: "Farm"})
	require.NoError(t, err)
	_, err = w.svc.Create(ctx, w.user.ID, CreateInput{Name: "Farm"})
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeConflict))

	_, err = w.svc.Create(ctx, w.user.ID, CreateInput{Name: "Other", Permalink: "!!!"})
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestUpdateRequiresManagerAndInvalidatesOnSellsChange(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	created, err := w.svc.Create(ctx, w.user.ID, CreateInput{Name: "Hub", Sells: enums.EnterpriseSellsAny})
	require.NoError(t, err)

	stranger := w.f.User("stranger@example.com", false)
	name := "Hijacked"
	_, err = w.svc.Update(ctx, stranger.ID, created.ID, UpdateInput{Name: &name})
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))

	rename := "City Hub"
	updated, err := w.svc.Update(ctx, w.user.ID, created.ID, UpdateInput{Name: &rename})
	require.NoError(t, err)
	assert.Equal(t, "City Hub", updated.Name)
	assert.Equal(t, "hub", updated.Permalink)
	assert.Empty(t, w.cache.scopes)

	none := enums.EnterpriseSellsNone
	permalink := "city-hub"
	updated, err = w.svc.Update(ctx, w.user.ID, created.ID, UpdateInput{Sells: &none, Permalink: &permalink})
	require.NoError(t, err)
	assert.Equal(t, "city-hub", updated.Permalink)
	assert.False(t, updated.IsDistributor)
	require.Len(t, w.cache.scopes, 1)
	assert.Equal(t, []uuid.UUID{created.ID}, w.cache.scopes[0].DistributorIDs)
	assert.Equal(t, invalidation.ReasonEnterpriseChanged, w.cache.reasons[0])
}

func TestManagers(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	created, err := w.svc.Create(ctx, w.user.ID, CreateInput{Name: "Farm"})
	require.NoError(t, err)
	helper := w.f.User("helper@example.com", false)

	added, err := w.svc.AddManager(ctx, w.user.ID, created.ID, " Helper@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, helper.ID, added.UserID)
	_, err = w.svc.AddManager(ctx, w.user.ID, created.ID, "helper@example.com")
	require.NoError(t, err)

	_, err = w.svc.AddManager(ctx, w.user.ID, created.ID, "nobody@example.com")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))

	managers, err := w.svc.ListManagers(ctx, w.user.ID, created.ID)
	require.NoError(t, err)
	require.Len(t, managers, 2)
	assert.Equal(t, "helper@example.com", managers[0].Email)
	assert.True(t, managers[1].Owner)

	// The new manager may act for the enterprise.
	_, err = w.svc.ListManagers(ctx, helper.ID, created.ID)
	require.NoError(t, err)

	err = w.svc.RemoveManager(ctx, helper.ID, created.ID, w.user.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeConflict))

	require.NoError(t, w.svc.RemoveManager(ctx, w.user.ID, created.ID, helper.ID))
	err = w.svc.RemoveManager(ctx, w.user.ID, created.ID, helper.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))

	_, err = w.svc.ListManagers(ctx, helper.ID, created.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))
}

func TestGetNotFound(t *testing.T) {
	w := newWorld(t)
	_, err := w.svc.Get(context.Background(), uuid.New())
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}
