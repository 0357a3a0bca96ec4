// Package testdb opens isolated in-memory SQLite databases migrated with every
// model, plus small fixture builders shared by repository and service tests.
package testdb

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/openfoodnetwork/ofn-backend/pkg/db/models"
	"github.com/openfoodnetwork/ofn-backend/pkg/enums"
)

// Open returns a fresh migrated database private to the calling test.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := "file:ofn_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}

// Fixtures inserts domain records, failing the test on any error.
type Fixtures struct {
	t  testing.TB
	db *gorm.DB
}

func NewFixtures(t testing.TB, db *gorm.DB) Fixtures {
	return Fixtures{t: t, db: db}
}

func (f Fixtures) create(value any) {
	f.t.Helper()
	if err := f.db.Create(value).Error; err != nil {
		f.t.Fatalf("create %T: %v", value, err)
	}
}

func (f Fixtures) User(email string, admin bool) models.User {
	f.t.Helper()
	u := models.User{Email: email, PasswordHash: "x", Admin: admin}
	f.create(&u)
	return u
}

func (f Fixtures) Enterprise(name string, sells enums.EnterpriseSells) models.Enterprise {
	f.t.Helper()
	e := models.Enterprise{
		Name:              name,
		Permalink:         uuid.NewString(),
		Sells:             sells,
		IsPrimaryProducer: sells != enums.EnterpriseSellsAny,
		OwnerID:           uuid.New(),
	}
	f.create(&e)
	return e
}

// Manage makes the user a manager of the enterprise.
func (f Fixtures) Manage(user models.User, enterprise models.Enterprise) {
	f.t.Helper()
	f.create(&models.EnterpriseRole{UserID: user.ID, EnterpriseID: enterprise.ID})
}

// Grant records a relationship from parent to child carrying the permissions.
func (f Fixtures) Grant(parent, child models.Enterprise, permissions ...enums.EnterprisePermission) models.EnterpriseRelationship {
	f.t.Helper()
	rel := models.EnterpriseRelationship{ParentID: parent.ID, ChildID: child.ID}
	for _, p := range permissions {
		rel.Permissions = append(rel.Permissions, models.EnterpriseRelationshipPermission{Name: p})
	}
	f.create(&rel)
	return rel
}

func (f Fixtures) Taxon(name string) models.Taxon {
	f.t.Helper()
	tx := models.Taxon{Name: name}
	f.create(&tx)
	return tx
}

func (f Fixtures) ShippingCategory(name string) models.ShippingCategory {
	f.t.Helper()
	c := models.ShippingCategory{Name: name}
	f.create(&c)
	return c
}

// TaxCategory creates a category with a single rate such as "0.1".
func (f Fixtures) TaxCategory(name, rate string, includedInPrice bool) models.TaxCategory {
	f.t.Helper()
	c := models.TaxCategory{Name: name}
	f.create(&c)
	r := models.TaxRate{
		TaxCategoryID:   c.ID,
		Name:            name,
		Amount:          decimal.RequireFromString(rate),
		IncludedInPrice: includedInPrice,
	}
	f.create(&r)
	c.TaxRates = []models.TaxRate{r}
	return c
}

// Product creates a product with its master variant and one sellable variant
// priced at price. The sellable variant is returned.
func (f Fixtures) Product(supplier models.Enterprise, name, price string) (models.Product, models.Variant) {
	f.t.Helper()
	taxon := models.Taxon{Name: "taxon-" + uuid.NewString()}
	f.create(&taxon)

	unit := decimal.NewFromInt(1)
	p := models.Product{
		Name:           name,
		SupplierID:     supplier.ID,
		PrimaryTaxonID: taxon.ID,
		VariantUnit:    enums.VariantUnitItems,
	}
	f.create(&p)
	master := models.Variant{ProductID: p.ID, IsMaster: true, Price: decimal.RequireFromString(price)}
	f.create(&master)
	v := models.Variant{
		ProductID: p.ID,
		SKU:       name,
		UnitValue: &unit,
		Price:     decimal.RequireFromString(price),
		OnHand:    10,
	}
	f.create(&v)
	return p, v
}

// Variant adds another sellable variant to an existing product.
func (f Fixtures) Variant(product models.Product, price string, onHand int) models.Variant {
	f.t.Helper()
	v := models.Variant{ProductID: product.ID, Price: decimal.RequireFromString(price), OnHand: onHand}
	f.create(&v)
	return v
}

// Fee creates an enterprise fee using the named calculator.
func (f Fixtures) Fee(enterprise models.Enterprise, feeType enums.FeeType, calc enums.CalculatorType, prefs map[string]any) models.EnterpriseFee {
	f.t.Helper()
	fee := models.EnterpriseFee{
		EnterpriseID:          enterprise.ID,
		FeeType:               feeType,
		Name:                  string(feeType) + " fee",
		CalculatorType:        calc,
		CalculatorPreferences: datatypes.JSONMap(prefs),
	}
	f.create(&fee)
	return fee
}

// ExchangeSpec describes one exchange of an order cycle fixture.
type ExchangeSpec struct {
	Sender, Receiver models.Enterprise
	Incoming         bool
	Variants         []models.Variant
	Fees             []models.EnterpriseFee
}

// OrderCycle persists an order cycle with its exchanges and coordinator fees.
func (f Fixtures) OrderCycle(name string, coordinator models.Enterprise, coordinatorFees []models.EnterpriseFee, exchanges ...ExchangeSpec) models.OrderCycle {
	f.t.Helper()
	oc := models.OrderCycle{Name: name, CoordinatorID: coordinator.ID}
	for i, fee := range coordinatorFees {
		oc.CoordinatorFees = append(oc.CoordinatorFees, models.CoordinatorFee{EnterpriseFeeID: fee.ID, Position: i})
	}
	for _, def := range exchanges {
		ex := models.Exchange{SenderID: def.Sender.ID, ReceiverID: def.Receiver.ID, Incoming: def.Incoming}
		for _, v := range def.Variants {
			ex.Variants = append(ex.Variants, models.ExchangeVariant{VariantID: v.ID})
		}
		for i, fee := range def.Fees {
			ex.Fees = append(ex.Fees, models.ExchangeFee{EnterpriseFeeID: fee.ID, Position: i})
		}
		oc.Exchanges = append(oc.Exchanges, ex)
	}
	f.create(&oc)
	return oc
}

// Line is one line item of an order fixture.
type Line struct {
	Variant  models.Variant
	Quantity int
}

// Order persists a cart at the distributor for the cycle. Lines are priced at
// the variant's catalog price.
func (f Fixtures) Order(distributor models.Enterprise, oc models.OrderCycle, lines ...Line) models.Order {
	f.t.Helper()
	distributorID, ocID := distributor.ID, oc.ID
	order := models.Order{
		Number:        "R" + uuid.NewString()[:8],
		State:         enums.OrderStateCart,
		DistributorID: &distributorID,
		OrderCycleID:  &ocID,
	}
	for _, l := range lines {
		order.LineItems = append(order.LineItems, models.LineItem{
			VariantID: l.Variant.ID,
			Quantity:  l.Quantity,
			Price:     l.Variant.Price,
		})
	}
	f.create(&order)
	return order
}
