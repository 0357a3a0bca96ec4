package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openfoodnetwork/ofn-backend/api/controllers"
	authcontrollers "github.com/openfoodnetwork/ofn-backend/api/controllers/auth"
	enterprisecontrollers "github.com/openfoodnetwork/ofn-backend/api/controllers/enterprises"
	occontrollers "github.com/openfoodnetwork/ofn-backend/api/controllers/ordercycles"
	permissioncontrollers "github.com/openfoodnetwork/ofn-backend/api/controllers/permissions"
	importcontrollers "github.com/openfoodnetwork/ofn-backend/api/controllers/productimport"
	shopcontrollers "github.com/openfoodnetwork/ofn-backend/api/controllers/shop"
	vocontrollers "github.com/openfoodnetwork/ofn-backend/api/controllers/variantoverrides"
	"github.com/openfoodnetwork/ofn-backend/api/middleware"
	"github.com/openfoodnetwork/ofn-backend/internal/auth"
	"github.com/openfoodnetwork/ofn-backend/internal/enterprises"
	"github.com/openfoodnetwork/ofn-backend/internal/ordercycles"
	"github.com/openfoodnetwork/ofn-backend/internal/orders"
	"github.com/openfoodnetwork/ofn-backend/internal/permissions"
	"github.com/openfoodnetwork/ofn-backend/internal/productimport"
	"github.com/openfoodnetwork/ofn-backend/internal/productscache"
	"github.com/openfoodnetwork/ofn-backend/internal/variantoverrides"
	"github.com/openfoodnetwork/ofn-backend/pkg/auth/session"
	"github.com/openfoodnetwork/ofn-backend/pkg/config"
	"github.com/openfoodnetwork/ofn-backend/pkg/logger"
	"github.com/openfoodnetwork/ofn-backend/pkg/metrics"
	"github.com/openfoodnetwork/ofn-backend/pkg/redis"
)

// Services are the domain services mounted on the router. Nil services
// answer with an internal error instead of panicking.
type Services struct {
	Auth             auth.Service
	Register         auth.RegisterService
	Enterprises      enterprises.Service
	OrderCycles      ordercycles.Service
	VariantOverrides variantoverrides.Service
	Permissions      permissions.Service
	ProductImport    productimport.Service
	ProductsCache    productscache.Service
	Orders           orders.Service
}

// Deps are the infrastructure handles the router needs besides services.
type Deps struct {
	Redis       *redis.Client
	Sessions    session.AccessSessionChecker
	Ready       map[string]controllers.Pinger
	Metrics     prometheus.Gatherer
	HTTPMetrics *metrics.HTTPMetrics
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps, svc Services) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, deps.HTTPMetrics),
		middleware.CORS(cfg.CORS),
	)

	limits := cfg.RateLimit
	authRules := []middleware.RateLimitRule{
		{Scope: middleware.ScopeIP, Limit: limits.LoginIPLimit},
		{Scope: middleware.ScopeEmail, Limit: limits.LoginEmailLimit},
	}
	loginPolicy := middleware.NewRateLimitPolicy("login", limits.LoginWindow, authRules...)
	registerPolicy := middleware.NewRateLimitPolicy("register", limits.LoginWindow, authRules...)
	importPolicy := middleware.NewRateLimitPolicy("product-import", limits.ImportWindow,
		middleware.RateLimitRule{Scope: middleware.ScopeUser, Limit: limits.ImportUserLimit})

	// A nil *redis.Client must not reach the middleware as a non-nil interface.
	limiter := noLimiter()
	idempotent := func(time.Duration) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler { return next }
	}
	if deps.Redis != nil {
		limiter = func(p middleware.RateLimitPolicy) func(http.Handler) http.Handler {
			return middleware.RateLimit(p, deps.Redis, logg)
		}
		idempotent = func(ttl time.Duration) func(http.Handler) http.Handler {
			return middleware.Idempotency(deps.Redis, logg, ttl)
		}
	}
	idempotency := idempotent(middleware.IdempotencyTTL)
	authenticate := middleware.Auth(cfg.JWT, deps.Sessions, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Ready))
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(limiter(loginPolicy)).Post("/login", authcontrollers.Login(svc.Auth, logg))
		r.With(limiter(registerPolicy), idempotency).Post("/register", authcontrollers.Register(svc.Register, svc.Auth, logg))
		r.Post("/refresh", authcontrollers.Refresh(svc.Auth, logg))
		r.Post("/logout", authcontrollers.Logout(svc.Auth, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/shops/{distributorId}/order-cycles/{orderCycleId}/products", shopcontrollers.Products(svc.ProductsCache, logg))

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Route("/orders", func(r chi.Router) {
				r.With(idempotency).Post("/", shopcontrollers.CreateCart(svc.Orders, logg))
				r.Get("/{orderId}", shopcontrollers.GetOrder(svc.Orders, logg))
				r.Put("/{orderId}/distribution", shopcontrollers.SetDistribution(svc.Orders, logg))
				r.With(idempotency).Post("/{orderId}/line-items", shopcontrollers.AddLineItem(svc.Orders, logg))
				r.With(idempotent(middleware.CheckoutIdempotencyTTL)).Post("/{orderId}/complete", shopcontrollers.Complete(svc.Orders, logg))
			})
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(authenticate)

		r.Route("/enterprises", func(r chi.Router) {
			r.Get("/", enterprisecontrollers.ListManaged(svc.Enterprises, logg))
			r.With(idempotency).Post("/", enterprisecontrollers.Create(svc.Enterprises, logg))
			r.Get("/{enterpriseId}", enterprisecontrollers.Get(svc.Enterprises, logg))
			r.Patch("/{enterpriseId}", enterprisecontrollers.Update(svc.Enterprises, logg))
			r.Get("/{enterpriseId}/managers", enterprisecontrollers.ListManagers(svc.Enterprises, logg))
			r.Post("/{enterpriseId}/managers", enterprisecontrollers.AddManager(svc.Enterprises, logg))
			r.Delete("/{enterpriseId}/managers/{userId}", enterprisecontrollers.RemoveManager(svc.Enterprises, logg))
		})

		r.Put("/enterprise-relationships/{parentId}/{childId}/permissions/{permission}", permissioncontrollers.Grant(svc.Permissions, logg))
		r.Delete("/enterprise-relationships/{parentId}/{childId}/permissions/{permission}", permissioncontrollers.Revoke(svc.Permissions, logg))

		r.Route("/order-cycles", func(r chi.Router) {
			r.Get("/", occontrollers.List(svc.OrderCycles, logg))
			r.With(idempotency).Post("/", occontrollers.Create(svc.OrderCycles, logg))
			r.Get("/{orderCycleId}", occontrollers.Get(svc.OrderCycles, logg))
			r.Put("/{orderCycleId}", occontrollers.Update(svc.OrderCycles, logg))
			r.With(idempotency).Post("/{orderCycleId}/clone", occontrollers.Clone(svc.OrderCycles, logg))
			r.Get("/{orderCycleId}/fees", occontrollers.Fees(svc.OrderCycles, logg))
			r.Get("/{orderCycleId}/exchanges/{exchangeId}/products", occontrollers.ExchangeProducts(svc.OrderCycles, logg))
		})

		r.Get("/variant-overrides", vocontrollers.List(svc.VariantOverrides, logg))
		r.Post("/variant-overrides/bulk", vocontrollers.BulkUpsert(svc.VariantOverrides, logg))
		r.Post("/hubs/{hubId}/variant-overrides/reset", vocontrollers.ResetStock(svc.VariantOverrides, logg))

		r.Group(func(r chi.Router) {
			r.Use(limiter(importPolicy))
			r.Post("/product-import/validate", importcontrollers.Validate(svc.ProductImport, cfg.Import, logg))
			r.With(idempotency).Post("/product-import", importcontrollers.Import(svc.ProductImport, cfg.Import, logg))
		})
	})

	return r
}

func noLimiter() func(middleware.RateLimitPolicy) func(http.Handler) http.Handler {
	return func(middleware.RateLimitPolicy) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler { return next }
	}
}
