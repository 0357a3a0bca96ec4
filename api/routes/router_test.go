package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/openfoodnetwork/ofn-backend/api/controllers"
	"github.com/openfoodnetwork/ofn-backend/internal/orders"
	"github.com/openfoodnetwork/ofn-backend/internal/productscache"
	pkgAuth "github.com/openfoodnetwork/ofn-backend/pkg/auth"
	"github.com/openfoodnetwork/ofn-backend/pkg/auth/session"
	"github.com/openfoodnetwork/ofn-backend/pkg/config"
	"github.com/openfoodnetwork/ofn-backend/pkg/db/models"
	"github.com/openfoodnetwork/ofn-backend/pkg/logger"
	"github.com/openfoodnetwork/ofn-backend/pkg/redis"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubSessions struct {
	live bool
}

func (s stubSessions) HasSession(context.Context, string) (bool, error) {
	return s.live, nil
}

type stubCache struct{}

func (stubCache) ProductsFor(context.Context, uuid.UUID, uuid.UUID) ([]productscache.ShopProduct, error) {
	return []productscache.ShopProduct{}, nil
}

type stubOrders struct {
	orders.Service
	carts int
}

func (s *stubOrders) CreateCart(_ context.Context, userID *uuid.UUID) (*models.Order, error) {
	s.carts++
	return &models.Order{ID: uuid.New(), UserID: userID}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: config.JWTConfig{
			Secret:                 "secret",
			Issuer:                 "issuer",
			ExpirationMinutes:      60,
			RefreshTokenTTLMinutes: 120,
		},
		Import: config.ImportConfig{MaxUploadMB: 1},
	}
}

func newTestRouter(t *testing.T, cfg *config.Config, ord *stubOrders) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })

	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	return NewRouter(cfg, logg, Deps{
		Redis:    redis.NewFromRedis(raw),
		Sessions: stubSessions{live: true},
		Ready:    map[string]controllers.Pinger{"db": stubPinger{}},
	}, Services{
		ProductsCache: stubCache{},
		Orders:        ord,
	})
}

func buildToken(t *testing.T, cfg *config.Config, userID uuid.UUID) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID: userID,
		JTI:    session.NewAccessID(),
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestHealthReady(t *testing.T) {
	router := newTestRouter(t, testConfig(), &stubOrders{})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestShopProductsArePublic(t *testing.T) {
	router := newTestRouter(t, testConfig(), &stubOrders{})
	path := "/api/v1/shops/" + uuid.NewString() + "/order-cycles/" + uuid.NewString() + "/products"
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 without token got %d", resp.Code)
	}
}

func TestOrdersRejectMissingJWT(t *testing.T) {
	router := newTestRouter(t, testConfig(), &stubOrders{})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/orders", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}
}

func TestAdminRejectsMissingJWT(t *testing.T) {
	router := newTestRouter(t, testConfig(), &stubOrders{})
	for _, path := range []string{"/api/admin/v1/order-cycles", "/api/admin/v1/variant-overrides", "/api/admin/v1/enterprises"} {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401 got %d", path, resp.Code)
		}
	}
}

func TestRevokedSessionIsRejected(t *testing.T) {
	cfg := testConfig()
	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	router := NewRouter(cfg, nil, Deps{Redis: redis.NewFromRedis(raw), Sessions: stubSessions{live: false}}, Services{Orders: &stubOrders{}})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, uuid.New()))
	req.Header.Set("Idempotency-Key", "k")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for revoked session got %d", resp.Code)
	}
}

func TestCreateCartIsIdempotent(t *testing.T) {
	cfg := testConfig()
	ord := &stubOrders{}
	router := newTestRouter(t, cfg, ord)
	token := buildToken(t, cfg, uuid.New())

	send := func(key string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(""))
		req.Header.Set("Authorization", "Bearer "+token)
		if key != "" {
			req.Header.Set("Idempotency-Key", key)
		}
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		return resp.Code
	}

	if code := send(""); code != http.StatusBadRequest {
		t.Fatalf("expected 400 without idempotency key got %d", code)
	}
	if code := send("cart-1"); code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", code)
	}
	if code := send("cart-1"); code != http.StatusCreated {
		t.Fatalf("expected replayed 201 got %d", code)
	}
	if ord.carts != 1 {
		t.Fatalf("expected one cart, got %d", ord.carts)
	}
}

func TestNilServicesAnswerInternalError(t *testing.T) {
	cfg := testConfig()
	router := NewRouter(cfg, nil, Deps{Sessions: stubSessions{live: true}}, Services{})

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/order-cycles", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, uuid.New()))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", resp.Code)
	}
}
