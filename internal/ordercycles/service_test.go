package ordercycles

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/openfoodnetwork/ofn-backend/internal/productscache/invalidation"
	"github.com/openfoodnetwork/ofn-backend/internal/testdb"
	"github.com/openfoodnetwork/ofn-backend/pkg/db"
	"github.com/openfoodnetwork/ofn-backend/pkg/db/models"
	"github.com/openfoodnetwork/ofn-backend/pkg/enums"
	pkgerrors "github.com/openfoodnetwork/ofn-backend/pkg/errors"
	"github.com/openfoodnetwork/ofn-backend/pkg/logger"
	"github.com/openfoodnetwork/ofn-backend/pkg/pagination"
)

type stubPermissions struct {
	manages bool
	admin   bool
	managed []uuid.UUID
}

func (s stubPermissions) Manages(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return s.manages, nil
}

func (s stubPermissions) ManagedEnterpriseIDs(context.Context, uuid.UUID) ([]uuid.UUID, error) {
	return s.managed, nil
}

func (s stubPermissions) IsAdmin(context.Context, uuid.UUID) (bool, error) {
	return s.admin, nil
}

type stubPricer map[[2]uuid.UUID]decimal.Decimal

func (s stubPricer) PriceFor(_ context.Context, hubID, variantID uuid.UUID) (*decimal.Decimal, error) {
	if price, ok := s[[2]uuid.UUID{hubID, variantID}]; ok {
		return &price, nil
	}
	return nil, nil
}

type recordingCache struct {
	scopes  []invalidation.Scope
	reasons []string
}

func (r *recordingCache) Invalidate(_ context.Context, _ *gorm.DB, _ invalidation.Source, scope invalidation.Scope, reason string) error {
	r.scopes = append(r.scopes, scope)
	r.reasons = append(r.reasons, reason)
	return nil
}

type fixture struct {
	db          *gorm.DB
	f           testdb.Fixtures
	svc         Service
	repo        *Repository
	cache       *recordingCache
	prices      stubPricer
	coordinator models.Enterprise
	supplier    models.Enterprise
	shop        models.Enterprise
	product     models.Product
	variant     models.Variant
}

func newFixture(t *testing.T, perms stubPermissions) fixture {
	t.Helper()
	conn := testdb.Open(t)
	f := testdb.NewFixtures(t, conn)
	coordinator := f.Enterprise("Hub", enums.EnterpriseSellsAny)
	supplier := f.Enterprise("Farm", enums.EnterpriseSellsNone)
	shop := f.Enterprise("Shop", enums.EnterpriseSellsAny)
	product, variant := f.Product(supplier, "Carrots", "10.00")

	cache := &recordingCache{}
	prices := stubPricer{}
	repo := NewRepository(conn)
	logg := logger.New(logger.Options{ServiceName: "test", Output: &bytes.Buffer{}})
	svc, err := NewService(repo, db.NewFromGorm(conn), perms, prices, cache, logg)
	require.NoError(t, err)
	return fixture{
		db: conn, f: f, svc: svc, repo: repo, cache: cache, prices: prices,
		coordinator: coordinator, supplier: supplier, shop: shop, product: product, variant: variant,
	}
}

func (fx fixture) input(fees ...models.EnterpriseFee) Input {
	feeIDs := make([]uuid.UUID, 0, len(fees))
	for _, f := range fees {
		feeIDs = append(feeIDs, f.ID)
	}
	open := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	closeAt := open.Add(72 * time.Hour)
	pickup := "Saturday 10am"
	return Input{
		Name:              "Autumn Harvest",
		OrdersOpenAt:      &open,
		OrdersCloseAt:     &closeAt,
		CoordinatorID:     fx.coordinator.ID,
		CoordinatorFeeIDs: feeIDs,
		Exchanges: []ExchangeInput{
			{SenderID: fx.supplier.ID, ReceiverID: fx.coordinator.ID, Incoming: true, VariantIDs: []uuid.UUID{fx.variant.ID}},
			{SenderID: fx.coordinator.ID, ReceiverID: fx.shop.ID, VariantIDs: []uuid.UUID{fx.variant.ID}, PickupTime: &pickup, TagList: []string{"members"}},
		},
	}
}

func TestCreateAndGet(t *testing.T) {
	fx := newFixture(t, stubPermissions{manages: true})
	ctx := context.Background()
	adminFee := fx.f.Fee(fx.coordinator, enums.FeeTypeAdmin, enums.CalculatorFlatRate, map[string]any{"amount": "2.00"})

	oc, err := fx.svc.Create(ctx, uuid.New(), fx.input(adminFee))
	require.NoError(t, err)

	assert.Equal(t, "Autumn Harvest", oc.Name)
	require.Len(t, oc.Exchanges, 2)
	require.Len(t, oc.CoordinatorFees, 1)
	assert.Equal(t, adminFee.ID, oc.CoordinatorFees[0].EnterpriseFeeID)
	assert.Equal(t, []uuid.UUID{fx.supplier.ID}, Suppliers(*oc))
	assert.Equal(t, []uuid.UUID{fx.shop.ID}, Distributors(*oc))
	assert.True(t, Distributes(*oc, fx.shop.ID, fx.variant.ID))

	out := ExchangeFor(*oc, fx.coordinator.ID, fx.shop.ID)
	require.NotNil(t, out)
	require.NotNil(t, out.PickupTime)
	assert.Equal(t, "Saturday 10am", *out.PickupTime)
	assert.Equal(t, []string{"members"}, []string(out.TagList))

	assert.Equal(t, enums.OrderCycleOpen, oc.Status(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)))
	require.Len(t, fx.cache.scopes, 1)
	assert.Equal(t, []uuid.UUID{oc.ID}, fx.cache.scopes[0].OrderCycleIDs)
	assert.Equal(t, invalidation.ReasonOrderCycleChanged, fx.cache.reasons[0])
}

func TestCreateRejectsDuplicateExchangePair(t *testing.T) {
	fx := newFixture(t, stubPermissions{manages: true})
	in := fx.input()
	in.Exchanges = append(in.Exchanges, ExchangeInput{SenderID: fx.coordinator.ID, ReceiverID: fx.shop.ID})

	_, err := fx.svc.Create(context.Background(), uuid.New(), in)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
	details, ok := pkgerrors.As(err).Details().(map[string][]string)
	require.True(t, ok)
	assert.Contains(t, details["exchanges[2].receiver_id"], "has already been taken")
	assert.Empty(t, fx.cache.scopes)
}

func TestDuplicatePairRejectedByIndex(t *testing.T) {
	fx := newFixture(t, stubPermissions{manages: true})
	oc := models.OrderCycle{
		Name:          "Dup",
		CoordinatorID: fx.coordinator.ID,
		Exchanges: []models.Exchange{
			{SenderID: fx.coordinator.ID, ReceiverID: fx.shop.ID},
			{SenderID: fx.coordinator.ID, ReceiverID: fx.shop.ID},
		},
	}
	err := db.NewFromGorm(fx.db).WithTx(context.Background(), func(tx *gorm.DB) error {
		return fx.repo.CreateTx(tx, &oc)
	})
	require.Error(t, err)
	mapped := mapWriteError(err, "create order cycle")
	assert.True(t, pkgerrors.Is(mapped, pkgerrors.CodeValidation))
}

func TestCreateValidation(t *testing.T) {
	fx := newFixture(t, stubPermissions{manages: true})
	in := fx.input()
	in.Name = " "
	early := in.OrdersOpenAt.Add(-time.Hour)
	in.OrdersCloseAt = &early
	in.Exchanges[0].VariantIDs = append(in.Exchanges[0].VariantIDs, uuid.New())
	in.CoordinatorFeeIDs = []uuid.UUID{uuid.New()}

	_, err := fx.svc.Create(context.Background(), uuid.New(), in)
	require.Error(t, err)
	details := pkgerrors.As(err).Details().(map[string][]string)
	assert.Contains(t, details, "name")
	assert.Contains(t, details, "orders_close_at")
	assert.Contains(t, details, "variants")
	assert.Contains(t, details, "enterprise_fees")
}

func TestCreateRequiresCoordinatorManagement(t *testing.T) {
	fx := newFixture(t, stubPermissions{manages: false})
	_, err := fx.svc.Create(context.Background(), uuid.New(), fx.input())
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))
	assert.Equal(t, "unauthorised", pkgerrors.As(err).Message())
}

func TestUpdateReplacesExchanges(t *testing.T) {
	fx := newFixture(t, stubPermissions{manages: true})
	ctx := context.Background()
	oc, err := fx.svc.Create(ctx, uuid.New(), fx.input())
	require.NoError(t, err)

	other := fx.f.Enterprise("Corner Store", enums.EnterpriseSellsAny)
	in := fx.input()
	in.Name = "Winter"
	in.Exchanges[1].ReceiverID = other.ID

	updated, err := fx.svc.Update(ctx, uuid.New(), oc.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "Winter", updated.Name)
	assert.Equal(t, []uuid.UUID{other.ID}, Distributors(*updated))
	assert.False(t, HasDistributor(*updated, fx.shop.ID))

	var count int64
	require.NoError(t, fx.db.Model(&models.Exchange{}).Where("order_cycle_id = ?", oc.ID).Count(&count).Error)
	assert.EqualValues(t, 2, count)
	assert.Len(t, fx.cache.scopes, 2)
}

func TestCloneRoundTrip(t *testing.T) {
	fx := newFixture(t, stubPermissions{manages: true})
	ctx := context.Background()
	coordFee := fx.f.Fee(fx.coordinator, enums.FeeTypeAdmin, enums.CalculatorFlatRate, map[string]any{"amount": "1.00"})
	packing := fx.f.Fee(fx.supplier, enums.FeeTypePacking, enums.CalculatorPerItem, map[string]any{"amount": "0.50"})
	in := fx.input(coordFee)
	in.Exchanges[0].EnterpriseFeeIDs = []uuid.UUID{packing.ID}

	src, err := fx.svc.Create(ctx, uuid.New(), in)
	require.NoError(t, err)

	clone, err := fx.svc.Clone(ctx, uuid.New(), src.ID)
	require.NoError(t, err)
	assert.NotEqual(t, src.ID, clone.ID)
	assert.Equal(t, "COPY OF Autumn Harvest", clone.Name)
	assert.Nil(t, clone.OrdersOpenAt)
	assert.Nil(t, clone.OrdersCloseAt)
	assert.Equal(t, enums.OrderCycleUndated, clone.Status(time.Now()))
	assert.Equal(t, src.CoordinatorID, clone.CoordinatorID)
	require.Len(t, clone.CoordinatorFees, 1)
	assert.Equal(t, coordFee.ID, clone.CoordinatorFees[0].EnterpriseFeeID)

	require.Len(t, clone.Exchanges, len(src.Exchanges))
	for _, ex := range src.Exchanges {
		copied := ExchangeFor(*clone, ex.SenderID, ex.ReceiverID)
		require.NotNil(t, copied)
		assert.NotEqual(t, ex.ID, copied.ID)
		assert.Equal(t, ex.Incoming, copied.Incoming)
		assert.Equal(t, len(ex.Variants), len(copied.Variants))
		require.Equal(t, len(ex.Fees), len(copied.Fees))
		for i := range ex.Fees {
			assert.Equal(t, ex.Fees[i].EnterpriseFeeID, copied.Fees[i].EnterpriseFeeID)
		}
	}
}

func TestFeesForSumsChainAtDistributorPrice(t *testing.T) {
	fx := newFixture(t, stubPermissions{manages: true})
	ctx := context.Background()
	supplierFee := fx.f.Fee(fx.supplier, enums.FeeTypePacking, enums.CalculatorPerItem, map[string]any{"amount": "1.00"})
	shopFee := fx.f.Fee(fx.shop, enums.FeeTypeSales, enums.CalculatorFlatPercentPerItem, map[string]any{"flat_percent": "10"})
	coordFee := fx.f.Fee(fx.coordinator, enums.FeeTypeAdmin, enums.CalculatorPerItem, map[string]any{"amount": "-0.25"})
	orderFee := fx.f.Fee(fx.coordinator, enums.FeeTypeTransport, enums.CalculatorFlatRate, map[string]any{"amount": "5.00"})

	in := fx.input(coordFee, orderFee)
	in.Exchanges[0].EnterpriseFeeIDs = []uuid.UUID{supplierFee.ID}
	in.Exchanges[1].EnterpriseFeeIDs = []uuid.UUID{shopFee.ID}
	oc, err := fx.svc.Create(ctx, uuid.New(), in)
	require.NoError(t, err)

	total, err := fx.svc.FeesFor(ctx, oc.ID, fx.variant.ID, fx.shop.ID)
	require.NoError(t, err)
	assert.Equal(t, "1.75", total.StringFixed(2))

	byType, err := fx.svc.FeesByTypeFor(ctx, oc.ID, fx.variant.ID, fx.shop.ID)
	require.NoError(t, err)
	assert.Equal(t, "1.00", byType[enums.FeeTypePacking].StringFixed(2))
	assert.Equal(t, "1.00", byType[enums.FeeTypeSales].StringFixed(2))
	assert.Equal(t, "-0.25", byType[enums.FeeTypeAdmin].StringFixed(2))
	_, hasTransport := byType[enums.FeeTypeTransport]
	assert.False(t, hasTransport)

	fx.prices[[2]uuid.UUID{fx.shop.ID, fx.variant.ID}] = decimal.RequireFromString("20.00")
	total, err = fx.svc.FeesFor(ctx, oc.ID, fx.variant.ID, fx.shop.ID)
	require.NoError(t, err)
	assert.Equal(t, "2.75", total.StringFixed(2))
}

func TestFeesForRejectsUnsuppliedDistributor(t *testing.T) {
	fx := newFixture(t, stubPermissions{manages: true})
	ctx := context.Background()
	coordFee := fx.f.Fee(fx.coordinator, enums.FeeTypeAdmin, enums.CalculatorPerItem, map[string]any{"amount": "0.50"})
	in := fx.input(coordFee)
	oc, err := fx.svc.Create(ctx, uuid.New(), in)
	require.NoError(t, err)

	stranger := fx.f.Enterprise("Stranger", enums.EnterpriseSellsAny)
	_, err = fx.svc.FeesFor(ctx, oc.ID, fx.variant.ID, stranger.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
	assert.Equal(t, CannotSupplyMessage, pkgerrors.As(err).Message())

	unlisted := fx.f.Variant(fx.product, "9.00", 3)
	_, err = fx.svc.FeesByTypeFor(ctx, oc.ID, unlisted.ID, fx.shop.ID)
	require.Error(t, err)
	assert.Equal(t, CannotSupplyMessage, pkgerrors.As(err).Message())

	total, err := fx.svc.FeesFor(ctx, oc.ID, fx.variant.ID, fx.shop.ID)
	require.NoError(t, err)
	assert.Equal(t, "0.50", total.StringFixed(2))
}

func TestCreateRejectsIncomingVariantFromAnotherSupplier(t *testing.T) {
	fx := newFixture(t, stubPermissions{manages: true})
	orchard := fx.f.Enterprise("Orchard", enums.EnterpriseSellsNone)
	in := fx.input()
	in.Exchanges = append(in.Exchanges, ExchangeInput{
		SenderID:   orchard.ID,
		ReceiverID: fx.coordinator.ID,
		Incoming:   true,
		VariantIDs: []uuid.UUID{fx.variant.ID},
	})

	_, err := fx.svc.Create(context.Background(), uuid.New(), in)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
	details := pkgerrors.As(err).Details().(map[string][]string)
	require.Contains(t, details, "variants")
	assert.Contains(t, details["variants"][0], "is not supplied by")
}

func TestExchangeProductsPaginates(t *testing.T) {
	fx := newFixture(t, stubPermissions{manages: true})
	ctx := context.Background()
	v2 := fx.f.Variant(fx.product, "11.00", 5)
	v3 := fx.f.Variant(fx.product, "12.00", 5)
	in := fx.input()
	in.Exchanges[1].VariantIDs = []uuid.UUID{fx.variant.ID, v2.ID, v3.ID}
	oc, err := fx.svc.Create(ctx, uuid.New(), in)
	require.NoError(t, err)
	out := ExchangeFor(*oc, fx.coordinator.ID, fx.shop.ID)
	require.NotNil(t, out)

	first, err := fx.svc.ExchangeProducts(ctx, oc.ID, out.ID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Variants, 2)
	assert.NotEmpty(t, first.NextCursor)
	require.NotNil(t, first.Variants[0].Product)
	assert.Equal(t, "Carrots", first.Variants[0].Product.Name)

	second, err := fx.svc.ExchangeProducts(ctx, oc.ID, out.ID, pagination.Params{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Variants, 1)
	assert.Empty(t, second.NextCursor)

	_, err = fx.svc.ExchangeProducts(ctx, oc.ID, uuid.New(), pagination.Params{})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestListScopesToManagedCoordinators(t *testing.T) {
	fx := newFixture(t, stubPermissions{manages: true})
	ctx := context.Background()
	_, err := fx.svc.Create(ctx, uuid.New(), fx.input())
	require.NoError(t, err)

	perms := stubPermissions{managed: []uuid.UUID{fx.shop.ID}}
	scoped, err := NewService(fx.repo, db.NewFromGorm(fx.db), perms, fx.prices, fx.cache, nil)
	require.NoError(t, err)
	cycles, err := scoped.List(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, cycles)

	admin, err := NewService(fx.repo, db.NewFromGorm(fx.db), stubPermissions{admin: true}, fx.prices, fx.cache, nil)
	require.NoError(t, err)
	cycles, err = admin.List(ctx, uuid.New())
	require.NoError(t, err)
	assert.Len(t, cycles, 1)
}
