package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/openfoodnetwork/ofn-backend/api/controllers"
	"github.com/openfoodnetwork/ofn-backend/api/routes"
	"github.com/openfoodnetwork/ofn-backend/internal/auth"
	"github.com/openfoodnetwork/ofn-backend/internal/enterprises"
	"github.com/openfoodnetwork/ofn-backend/internal/fees"
	"github.com/openfoodnetwork/ofn-backend/internal/ordercycles"
	"github.com/openfoodnetwork/ofn-backend/internal/orders"
	"github.com/openfoodnetwork/ofn-backend/internal/permissions"
	"github.com/openfoodnetwork/ofn-backend/internal/productimport"
	product "github.com/openfoodnetwork/ofn-backend/internal/products"
	"github.com/openfoodnetwork/ofn-backend/internal/productscache"
	"github.com/openfoodnetwork/ofn-backend/internal/productscache/invalidation"
	"github.com/openfoodnetwork/ofn-backend/internal/users"
	"github.com/openfoodnetwork/ofn-backend/internal/variantoverrides"
	"github.com/openfoodnetwork/ofn-backend/pkg/auth/session"
	"github.com/openfoodnetwork/ofn-backend/pkg/config"
	"github.com/openfoodnetwork/ofn-backend/pkg/db"
	"github.com/openfoodnetwork/ofn-backend/pkg/env"
	"github.com/openfoodnetwork/ofn-backend/pkg/logger"
	"github.com/openfoodnetwork/ofn-backend/pkg/metrics"
	"github.com/openfoodnetwork/ofn-backend/pkg/migrate"
	"github.com/openfoodnetwork/ofn-backend/pkg/outbox"
	"github.com/openfoodnetwork/ofn-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.AutoRun(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(ctx, "failed to create session manager", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svcs, err := buildServices(cfg, logg, dbClient, redisClient, sessionManager, registry)
	if err != nil {
		logg.Error(ctx, "failed to wire services", err)
		os.Exit(1)
	}

	addr := ":" + env.Get("PORT", cfg.App.Port)
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": env.InstanceID("local"),
	})
	logg.Info(logCtx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Deps{
			Redis:       redisClient,
			Sessions:    sessionManager,
			Ready:       map[string]controllers.Pinger{"db": dbClient, "redis": redisClient},
			Metrics:     registry,
			HTTPMetrics: metrics.NewHTTPMetrics(registry),
		}, svcs),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(logCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(logCtx, "api server shutdown failed", err)
		}
		logg.Info(logCtx, "api server stopped")
	}
}

func buildServices(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, sessions *session.Manager, reg prometheus.Registerer) (routes.Services, error) {
	conn := dbClient.DB()

	cache, err := invalidation.NewEmitter(outbox.NewService(outbox.NewRepository(conn), logg))
	if err != nil {
		return routes.Services{}, err
	}

	perms, err := permissions.NewService(permissions.NewRepository(conn), dbClient, variantoverrides.NewRepository(conn), cache, logg)
	if err != nil {
		return routes.Services{}, err
	}
	overrides, err := variantoverrides.NewService(variantoverrides.NewRepository(conn), dbClient, perms, cache, logg)
	if err != nil {
		return routes.Services{}, err
	}
	orderCycles, err := ordercycles.NewService(ordercycles.NewRepository(conn), dbClient, perms, overrides, cache, logg)
	if err != nil {
		return routes.Services{}, err
	}
	ents, err := enterprises.NewService(enterprises.NewRepository(conn), users.NewRepository(conn), perms, cache, dbClient, logg)
	if err != nil {
		return routes.Services{}, err
	}

	catalogRepo := product.NewRepository(conn)
	catalog, err := product.NewService(catalogRepo)
	if err != nil {
		return routes.Services{}, err
	}
	shopCache, err := productscache.NewService(ordercycles.NewRepository(conn), catalog, overrides, redisClient, cfg.Cache.ProductsTTL, logg)
	if err != nil {
		return routes.Services{}, err
	}

	feeSvc, err := fees.NewService(fees.NewRepository(conn), logg)
	if err != nil {
		return routes.Services{}, err
	}
	orderSvc, err := orders.NewService(orders.Deps{
		Repo:        orders.NewRepository(conn),
		Tx:          dbClient,
		OrderCycles: ordercycles.NewRepository(conn),
		Variants:    catalogRepo,
		Stock:       catalogRepo,
		Overrides:   overrides,
		Fees:        feeSvc,
		Outbox:      outbox.NewService(outbox.NewRepository(conn), logg),
		Store:       cfg.Store,
		Logger:      logg,
	})
	if err != nil {
		return routes.Services{}, err
	}

	importer, err := productimport.NewService(productimport.ServiceParams{
		Lookups:     productimport.NewRepository(conn),
		Catalog:     catalogRepo,
		Inventory:   variantoverrides.NewRepository(conn),
		Permissions: perms,
		Cache:       cache,
		Tx:          dbClient,
		Metrics:     metrics.NewProductImportMetrics(reg),
		Logger:      logg,
		MaxRows:     cfg.Import.MaxRows,
	})
	if err != nil {
		return routes.Services{}, err
	}

	authSvc, err := auth.NewService(auth.ServiceParams{
		Users:          users.NewRepository(conn),
		SessionManager: sessions,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
		Logger:         logg,
	})
	if err != nil {
		return routes.Services{}, err
	}
	registerSvc, err := auth.NewRegisterService(auth.RegisterServiceParams{
		Tx:             dbClient,
		PasswordConfig: cfg.Password,
	})
	if err != nil {
		return routes.Services{}, err
	}

	return routes.Services{
		Auth:             authSvc,
		Register:         registerSvc,
		Enterprises:      ents,
		OrderCycles:      orderCycles,
		VariantOverrides: overrides,
		Permissions:      perms,
		ProductImport:    importer,
		ProductsCache:    shopCache,
		Orders:           orderSvc,
	}, nil
}
