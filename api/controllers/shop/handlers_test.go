package shop

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfoodnetwork/ofn-backend/api/middleware"
	"github.com/openfoodnetwork/ofn-backend/internal/orders"
	"github.com/openfoodnetwork/ofn-backend/internal/productscache"
	"github.com/openfoodnetwork/ofn-backend/pkg/db/models"
	"github.com/openfoodnetwork/ofn-backend/pkg/enums"
)

type stubCache struct {
	distributor, orderCycle uuid.UUID
}

func (s *stubCache) ProductsFor(_ context.Context, distributorID, orderCycleID uuid.UUID) ([]productscache.ShopProduct, error) {
	s.distributor, s.orderCycle = distributorID, orderCycleID
	return []productscache.ShopProduct{{ID: uuid.New(), Name: "Carrots", Variants: []productscache.ShopVariant{}}}, nil
}

type stubOrders struct {
	orders    map[uuid.UUID]*models.Order
	added     orders.AddVariantInput
	completed uuid.UUID
}

func (s *stubOrders) CreateCart(_ context.Context, userID *uuid.UUID) (*models.Order, error) {
	o := &models.Order{ID: uuid.New(), Number: "R000000001", UserID: userID, State: enums.OrderStateCart}
	s.orders[o.ID] = o
	return o, nil
}

func (s *stubOrders) Get(_ context.Context, id uuid.UUID) (*models.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, assert.AnError
	}
	return o, nil
}

func (s *stubOrders) SetDistribution(_ context.Context, input orders.SetDistributionInput) (*models.Order, error) {
	o := s.orders[input.OrderID]
	o.DistributorID, o.OrderCycleID = &input.DistributorID, &input.OrderCycleID
	return o, nil
}

func (s *stubOrders) AddVariant(_ context.Context, input orders.AddVariantInput) (*models.Order, error) {
	s.added = input
	o := s.orders[input.OrderID]
	o.LineItems = append(o.LineItems, models.LineItem{ID: uuid.New(), VariantID: input.VariantID, Quantity: input.Quantity, Price: decimal.NewFromInt(2)})
	return o, nil
}

func (s *stubOrders) Complete(_ context.Context, orderID uuid.UUID) (*models.Order, error) {
	s.completed = orderID
	o := s.orders[orderID]
	o.State = enums.OrderStateComplete
	return o, nil
}

func router(cache productscache.Service, svc orders.Service) http.Handler {
	r := chi.NewRouter()
	r.Get("/shops/{distributorId}/order-cycles/{orderCycleId}/products", Products(cache, nil))
	r.Post("/orders", CreateCart(svc, nil))
	r.Get("/orders/{orderId}", GetOrder(svc, nil))
	r.Put("/orders/{orderId}/distribution", SetDistribution(svc, nil))
	r.Post("/orders/{orderId}/line-items", AddLineItem(svc, nil))
	r.Post("/orders/{orderId}/complete", Complete(svc, nil))
	return r
}

func do(h http.Handler, user uuid.UUID, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if user != uuid.Nil {
		req = req.WithContext(middleware.WithUser(req.Context(), user))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestProducts(t *testing.T) {
	cache := &stubCache{}
	distributor, oc := uuid.New(), uuid.New()

	rec := do(router(cache, nil), uuid.Nil, http.MethodGet, "/shops/"+distributor.String()+"/order-cycles/"+oc.String()+"/products", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, distributor, cache.distributor)
	assert.Equal(t, oc, cache.orderCycle)
	assert.Contains(t, rec.Body.String(), `"name":"Carrots"`)
}

func TestCartFlow(t *testing.T) {
	svc := &stubOrders{orders: map[uuid.UUID]*models.Order{}}
	h := router(nil, svc)
	user := uuid.New()

	rec := do(h, user, http.MethodPost, "/orders", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var orderID uuid.UUID
	for id := range svc.orders {
		orderID = id
	}
	base := "/orders/" + orderID.String()

	rec = do(h, user, http.MethodPut, base+"/distribution", `{"distributor_id":"`+uuid.NewString()+`","order_cycle_id":"`+uuid.NewString()+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	variant := uuid.New()
	rec = do(h, user, http.MethodPost, base+"/line-items", `{"variant_id":"`+variant.String()+`","quantity":3}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, svc.added.Quantity)
	assert.Contains(t, rec.Body.String(), `"variant_id":"`+variant.String()+`"`)

	rec = do(h, user, http.MethodPost, base+"/line-items", `{"variant_id":"`+variant.String()+`","quantity":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h, user, http.MethodPost, base+"/complete", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, orderID, svc.completed)
	assert.Contains(t, rec.Body.String(), `"state":"complete"`)
}

func TestOrdersAreScopedToOwner(t *testing.T) {
	svc := &stubOrders{orders: map[uuid.UUID]*models.Order{}}
	owner := uuid.New()
	order, err := svc.CreateCart(context.Background(), &owner)
	require.NoError(t, err)
	h := router(nil, svc)

	rec := do(h, uuid.New(), http.MethodGet, "/orders/"+order.ID.String(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(h, uuid.New(), http.MethodPost, "/orders/"+order.ID.String()+"/complete", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, uuid.Nil, svc.completed)

	rec = do(h, uuid.Nil, http.MethodGet, "/orders/"+order.ID.String(), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(h, owner, http.MethodGet, "/orders/"+order.ID.String(), "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
